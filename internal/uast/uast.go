// Package uast defines the language-neutral node and edge model that every
// language adapter projects into, along with the deterministic identity
// scheme used across the whole graph.
package uast

import "strings"

// NodeKind classifies nodes in the universal AST.
type NodeKind string

const (
	KindModule    NodeKind = "module"
	KindClass     NodeKind = "class"
	KindFunction  NodeKind = "function"
	KindMethod    NodeKind = "method"
	KindParameter NodeKind = "parameter"
	KindVariable  NodeKind = "variable"
	KindCall      NodeKind = "call"
	KindImport    NodeKind = "import"
	KindLiteral   NodeKind = "literal"
	KindRoute     NodeKind = "route"
	KindSQLQuery  NodeKind = "sql_query"
	KindEvent     NodeKind = "event"
	KindUnknown   NodeKind = "unknown"
)

// EdgeKind classifies relationships between nodes.
type EdgeKind string

const (
	EdgeCalls      EdgeKind = "CALLS"
	EdgeReads      EdgeKind = "READS"
	EdgeWrites     EdgeKind = "WRITES"
	EdgeImports    EdgeKind = "IMPORTS"
	EdgeEmits      EdgeKind = "EMITS"
	EdgeRoutesTo   EdgeKind = "ROUTES_TO"
	EdgeRaises     EdgeKind = "RAISES"
	EdgeExtends    EdgeKind = "EXTENDS"
	EdgeImplements EdgeKind = "IMPLEMENTS"
)

// Language identifies a programming language for parsing.
type Language string

const (
	LangGo         Language = "go"
	LangPython     Language = "python"
	LangTypeScript Language = "typescript"
	LangRust       Language = "rust"
	LangUnknown    Language = "unknown"
)

// extensionLanguages is the explicit extension-to-language map used for
// adapter selection. Content sniffing is the fallback, never type inspection.
var extensionLanguages = map[string]Language{
	".go":  LangGo,
	".py":  LangPython,
	".pyw": LangPython,
	".ts":  LangTypeScript,
	".tsx": LangTypeScript,
	".rs":  LangRust,
}

// LanguageFromExtension maps a file extension (with leading dot) to a
// language. Unknown extensions return LangUnknown.
func LanguageFromExtension(ext string) Language {
	if lang, ok := extensionLanguages[strings.ToLower(ext)]; ok {
		return lang
	}
	return LangUnknown
}

// SniffLanguage inspects file content for language hints when the extension
// alone is not conclusive. Currently recognizes python shebang lines.
func SniffLanguage(source []byte) Language {
	const maxSniff = 128
	head := source
	if len(head) > maxSniff {
		head = head[:maxSniff]
	}
	line, _, _ := strings.Cut(string(head), "\n")
	if strings.HasPrefix(line, "#!") && strings.Contains(line, "python") {
		return LangPython
	}
	return LangUnknown
}
