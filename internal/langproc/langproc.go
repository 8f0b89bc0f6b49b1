// Package langproc defines the language processor capability that docstringify uses to find functions in a source file and splice doc comments into them, plus the
// language-independent splicing engine that processors share.
//
// A processor parses source text into a Tree (never failing, even on malformed input), extracts one Span per function definition in source order, and inserts doc
// comments at each span's captured offsets. Because spans are patched by offset rather than by searching for their text, two functions with byte-identical source
// are each patched in place.
//
// Concrete processors live in subpackages (python, golang) and are collected in a Registry.
package langproc

import (
	"context"
	"errors"
)

var (
	// ErrContractViolation is returned when a caller breaks InsertDocstrings' preconditions (ex: len(spans) != len(docs), or a span that does not address its own
	// text in the source).
	ErrContractViolation = errors.New("contract violation")

	// ErrNoInsertionPoint is returned when a doc comment cannot be placed in a span (ex: no line follows the function header).
	ErrNoInsertionPoint = errors.New("cannot place doc-comment")

	// ErrFormat wraps errors returned by a Formatter after splicing.
	ErrFormat = errors.New("format failed")
)

// Processor is the capability set for one target language.
type Processor interface {
	// Name is a short, lowercase language name (ex: "python", "go").
	Name() string

	// VerifyExtension reports whether path has the language's file extension. It is a pure, case-sensitive suffix check and performs no I/O.
	VerifyExtension(path string) bool

	// Parse parses src. It never fails: malformed input yields a best-effort tree whose HasErrors reports true.
	Parse(src []byte) Tree

	// ExtractFunctionDeclarations returns a span for each function definition in tree, ordered by Start. Spans are not deduplicated by content.
	ExtractFunctionDeclarations(tree Tree) []Span

	// InsertDocstrings splices docs[i] into spans[i] for every non-blank docs[i], formats the result, and returns it with the number of insertions. src must be the
	// text spans were extracted from.
	InsertDocstrings(ctx context.Context, src []byte, spans []Span, docs []string) ([]byte, int, error)
}

// Tree is a parsed source file. Each processor has its own implementation; a processor handed a Tree it did not produce reparses Source.
type Tree interface {
	Source() []byte
	HasErrors() bool
}

// Span is the verbatim text of one function definition and where it sits in the source it was extracted from. Identity is positional: two spans with equal Text
// are distinct.
//
// Invariant: src[Start:End] == Text.
type Span struct {
	Name  string // Function name. Methods are qualified where the language allows it (ex: "Writer.Process").
	Text  string // Verbatim source text of the definition.
	Start int    // Byte offset of the first byte of Text.
	End   int    // Byte offset one past the last byte of Text.

	// HeaderStart is the byte offset where the definition's header begins. It differs from Start when Text includes leading material, such as a Go doc comment.
	HeaderStart int

	// HeaderEnd is the byte offset of the token that terminates the header (Python's ':' or Go's '{'), or -1 when the parser could not identify it. When -1, the
	// splicer falls back to looking for the first line that ends with the style's HeaderSuffix.
	HeaderEnd int
}

// Formatter canonically reformats a whole source file.
type Formatter interface {
	Format(ctx context.Context, src []byte) ([]byte, error)
}

// FormatterFunc adapts a function to a Formatter.
type FormatterFunc func(ctx context.Context, src []byte) ([]byte, error)

func (f FormatterFunc) Format(ctx context.Context, src []byte) ([]byte, error) {
	return f(ctx, src)
}

// NopFormatter returns its input unchanged.
var NopFormatter Formatter = FormatterFunc(func(_ context.Context, src []byte) ([]byte, error) {
	return src, nil
})
