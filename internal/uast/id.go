package uast

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
)

// NodeID is the stable 128-bit identity of a node, derived from repo id,
// normalized path, span position, and kind. Identical inputs always yield
// identical ids; any differing input yields a different id.
type NodeID [16]byte

// ComputeNodeID derives the deterministic id for a node. The path is
// normalized before hashing so platform differences cannot bifurcate
// identity. Only the line/column corners of the span participate, not byte
// offsets: an edit earlier on another line shifts the byte offsets of every
// later declaration without moving it, and identity must survive that.
func ComputeNodeID(repoID, path string, span Span, kind NodeKind) NodeID {
	h := sha256.New()
	h.Write([]byte(repoID))
	h.Write([]byte{0})
	h.Write([]byte(NormalizePath(path)))
	h.Write([]byte{0})

	var buf [8]byte
	for _, v := range []int{span.StartLine, span.StartCol, span.EndLine, span.EndCol} {
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		h.Write(buf[:])
	}

	h.Write([]byte(kind))

	var id NodeID
	copy(id[:], h.Sum(nil)[:16])
	return id
}

// String returns the full hex form of the id.
func (id NodeID) String() string {
	return hex.EncodeToString(id[:])
}

// Short returns the first 8 hex characters, for logs.
func (id NodeID) Short() string {
	return id.String()[:8]
}

// IsZero reports whether the id is the zero value.
func (id NodeID) IsZero() bool {
	return id == NodeID{}
}

// ParseNodeID decodes a 32-character hex string into a NodeID.
func ParseNodeID(s string) (NodeID, error) {
	var id NodeID
	raw, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("uast: parse node id: %w", err)
	}
	if len(raw) != len(id) {
		return id, fmt.Errorf("uast: parse node id: want %d bytes, got %d", len(id), len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

// MarshalText implements encoding.TextMarshaler so NodeID serializes as hex
// in JSON wire messages.
func (id NodeID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *NodeID) UnmarshalText(text []byte) error {
	parsed, err := ParseNodeID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// NormalizePath converts a path to the canonical repo-relative form used for
// identity: forward slashes, cleaned, no leading "./".
func NormalizePath(path string) string {
	p := filepath.ToSlash(path)
	p = strings.TrimPrefix(p, "./")
	if cleaned := filepath.ToSlash(filepath.Clean(p)); cleaned != "." {
		p = cleaned
	}
	return p
}
