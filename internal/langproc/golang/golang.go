// Package golang is the langproc.Processor for Go source. Spans are top-level func declarations (functions and methods), including any existing doc comment, and
// generated comments are placed directly above the func keyword, as Go doc comments are.
package golang

import (
	"context"
	"go/ast"
	"go/format"
	"go/parser"
	"go/token"
	"strings"

	"github.com/codalotl/docstringify/internal/langproc"

	"golang.org/x/tools/imports"
)

// Name is the language name of this processor.
const Name = "go"

// Processor implements langproc.Processor for Go.
type Processor struct {
	style langproc.Style
}

var _ langproc.Processor = (*Processor)(nil)

// New returns a Go processor that formats spliced files with formatter (nil means langproc.NopFormatter).
func New(formatter langproc.Formatter) *Processor {
	if formatter == nil {
		formatter = langproc.NopFormatter
	}
	return &Processor{
		style: langproc.Style{
			Placement:    langproc.PlaceAboveHeader,
			HeaderSuffix: "{",
			Commentize:   Commentize,
			Formatter:    formatter,
		},
	}
}

func (p *Processor) Name() string { return Name }

// VerifyExtension reports whether path ends in ".go" (case-sensitive).
func (p *Processor) VerifyExtension(path string) bool {
	return strings.HasSuffix(path, ".go")
}

// Tree is a go/parser parse of a Go file. File is never nil; for badly broken input it may have no declarations.
type Tree struct {
	src  []byte
	fset *token.FileSet
	file *ast.File
	err  error
}

func (t *Tree) Source() []byte { return t.src }

// HasErrors reports whether go/parser returned errors.
func (t *Tree) HasErrors() bool { return t.err != nil }

// Err returns the parse error, if any (typically a scanner.ErrorList).
func (t *Tree) Err() error { return t.err }

// File returns the (possibly partial) AST.
func (t *Tree) File() *ast.File { return t.file }

// Parse parses src with comments and all errors. go/parser returns a partial AST alongside its errors, which is kept.
func (p *Processor) Parse(src []byte) langproc.Tree {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "", src, parser.ParseComments|parser.AllErrors|parser.SkipObjectResolution)
	if file == nil {
		file = &ast.File{Name: ast.NewIdent("")}
	}
	return &Tree{src: src, fset: fset, file: file, err: err}
}

// ExtractFunctionDeclarations returns a span per top-level func declaration. A span starts at the declaration's doc comment when it has one; HeaderStart is always
// the func keyword. Declarations whose positions do not map into the source (possible in broken files) are skipped.
func (p *Processor) ExtractFunctionDeclarations(tree langproc.Tree) []langproc.Span {
	t, ok := tree.(*Tree)
	if !ok {
		t = p.Parse(tree.Source()).(*Tree)
	}

	offset := func(pos token.Pos) int {
		if !pos.IsValid() {
			return -1
		}
		return t.fset.PositionFor(pos, false).Offset
	}

	var spans []langproc.Span
	for _, decl := range t.file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Name == nil {
			continue
		}

		headerStart := offset(fn.Pos())
		start := headerStart
		if fn.Doc != nil {
			start = offset(fn.Doc.Pos())
		}
		end := offset(fn.End())
		headerEnd := -1
		if fn.Body != nil {
			headerEnd = offset(fn.Body.Lbrace)
		}

		if start < 0 || headerStart < start || end < headerStart || end > len(t.src) {
			continue
		}
		spans = append(spans, langproc.Span{
			Name:        funcName(fn),
			Text:        string(t.src[start:end]),
			Start:       start,
			End:         end,
			HeaderStart: headerStart,
			HeaderEnd:   headerEnd,
		})
	}
	return spans
}

// InsertDocstrings splices docs above each func, then formats the file.
func (p *Processor) InsertDocstrings(ctx context.Context, src []byte, spans []langproc.Span, docs []string) ([]byte, int, error) {
	return langproc.Splice(ctx, src, spans, docs, p.style)
}

// funcName returns "Name" for functions and "Recv.Name" for methods (ex: "List.Len" for `func (l *List[T]) Len() int`).
func funcName(fn *ast.FuncDecl) string {
	if fn.Recv == nil || len(fn.Recv.List) == 0 {
		return fn.Name.Name
	}
	if recv := receiverTypeName(fn.Recv.List[0].Type); recv != "" {
		return recv + "." + fn.Name.Name
	}
	return fn.Name.Name
}

func receiverTypeName(expr ast.Expr) string {
	switch e := expr.(type) {
	case *ast.StarExpr:
		return receiverTypeName(e.X)
	case *ast.ParenExpr:
		return receiverTypeName(e.X)
	case *ast.IndexExpr:
		return receiverTypeName(e.X)
	case *ast.IndexListExpr:
		return receiverTypeName(e.X)
	case *ast.Ident:
		return e.Name
	}
	return ""
}

// Commentize returns doc as // comment lines. Lines that already are line comments are kept, blank lines become "//", and a /* */ block is returned as is.
func Commentize(doc string) string {
	doc = strings.TrimSpace(doc)
	if doc == "" || strings.HasPrefix(doc, "/*") {
		return doc
	}
	lines := strings.Split(doc, "\n")
	for i, line := range lines {
		line = strings.TrimRight(line, " \t\r")
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "//"):
			lines[i] = trimmed
		case trimmed == "":
			lines[i] = "//"
		default:
			lines[i] = "// " + line
		}
	}
	return strings.Join(lines, "\n")
}

// Goimports formats like goimports in format-only mode: gofmt plus import grouping and sorting, without adding or removing imports.
var Goimports langproc.Formatter = langproc.FormatterFunc(func(_ context.Context, src []byte) ([]byte, error) {
	return imports.Process("", src, &imports.Options{Comments: true, TabIndent: true, TabWidth: 8, FormatOnly: true})
})

// Gofmt formats with go/format, exactly as gofmt does.
var Gofmt langproc.Formatter = langproc.FormatterFunc(func(_ context.Context, src []byte) ([]byte, error) {
	return format.Source(src)
})
