package uast

import "fmt"

// Span is a byte-accurate source location. Byte offsets are 0-based with an
// exclusive end; lines and columns are 1-based.
type Span struct {
	StartByte int `json:"start_byte"`
	EndByte   int `json:"end_byte"`
	StartLine int `json:"start_line"`
	StartCol  int `json:"start_col"`
	EndLine   int `json:"end_line"`
	EndCol    int `json:"end_col"`
}

// NewSpan builds a span from byte offsets by locating line/column positions
// in source.
func NewSpan(source []byte, startByte, endByte int) Span {
	sl, sc := PointAt(source, startByte)
	el, ec := PointAt(source, endByte)
	return Span{
		StartByte: startByte,
		EndByte:   endByte,
		StartLine: sl,
		StartCol:  sc,
		EndLine:   el,
		EndCol:    ec,
	}
}

// Len returns the span length in bytes.
func (s Span) Len() int {
	return s.EndByte - s.StartByte
}

// IsEmpty reports whether the span covers zero bytes.
func (s Span) IsEmpty() bool {
	return s.StartByte == s.EndByte
}

// String renders the span as line:col-line:col.
func (s Span) String() string {
	return fmt.Sprintf("%d:%d-%d:%d", s.StartLine, s.StartCol, s.EndLine, s.EndCol)
}

// PointAt maps a byte offset into source to a 1-based (line, column) pair.
// Columns count bytes from the start of the line, keeping positions
// consistent with tree-sitter's UTF-8 byte addressing. Offsets past the end
// of source are clamped.
func PointAt(source []byte, offset int) (line, col int) {
	if offset > len(source) {
		offset = len(source)
	}
	line, col = 1, 1
	for i := 0; i < offset; i++ {
		if source[i] == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
	return line, col
}
