// Package python is the langproc.Processor for Python source. It parses with tree-sitter, extracts every function_definition (including methods and nested functions),
// places docstrings as the first statement of the body, and formats with black.
package python

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/codalotl/docstringify/internal/langproc"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// Name is the language name of this processor.
const Name = "python"

// functionQuery matches every named function definition, at any depth.
const functionQuery = `(function_definition name: (identifier)) @function`

// Processor implements langproc.Processor for Python.
type Processor struct {
	query *sitter.Query
	style langproc.Style
}

var _ langproc.Processor = (*Processor)(nil)

// New returns a Python processor that formats spliced files with formatter (nil means langproc.NopFormatter).
func New(formatter langproc.Formatter) (*Processor, error) {
	q, err := sitter.NewQuery([]byte(functionQuery), python.GetLanguage())
	if err != nil {
		return nil, fmt.Errorf("python: compile function query: %w", err)
	}
	if formatter == nil {
		formatter = langproc.NopFormatter
	}
	return &Processor{
		query: q,
		style: langproc.Style{
			Placement:    langproc.PlaceBodyStart,
			HeaderSuffix: ":",
			Commentize:   Commentize,
			Formatter:    formatter,
		},
	}, nil
}

func (p *Processor) Name() string { return Name }

// VerifyExtension reports whether path ends in ".py" (case-sensitive).
func (p *Processor) VerifyExtension(path string) bool {
	return strings.HasSuffix(path, ".py")
}

// Tree is a tree-sitter parse of Python source. Its root may be nil if tree-sitter could not produce a tree at all.
type Tree struct {
	src []byte
	ts  *sitter.Tree
}

func (t *Tree) Source() []byte { return t.src }

// HasErrors reports whether the parse contains ERROR or MISSING nodes (or failed entirely).
func (t *Tree) HasErrors() bool {
	if t.ts == nil {
		return true
	}
	return t.ts.RootNode().HasError()
}

// Root returns the module node, or nil.
func (t *Tree) Root() *sitter.Node {
	if t.ts == nil {
		return nil
	}
	return t.ts.RootNode()
}

// Parse parses src. Tree-sitter recovers from syntax errors, so any input yields a tree.
func (p *Processor) Parse(src []byte) langproc.Tree {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(python.GetLanguage())

	ts, err := parser.ParseCtx(context.Background(), nil, src)
	if err != nil {
		return &Tree{src: src}
	}
	return &Tree{src: src, ts: ts}
}

// ExtractFunctionDeclarations returns a span for each function_definition in tree, ordered by start offset. Decorators are not part of a span.
func (p *Processor) ExtractFunctionDeclarations(tree langproc.Tree) []langproc.Span {
	t, ok := tree.(*Tree)
	if !ok {
		t = p.Parse(tree.Source()).(*Tree)
	}
	root := t.Root()
	if root == nil {
		return nil
	}

	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(p.query, root)

	var spans []langproc.Span
	for {
		m, ok := qc.NextMatch()
		if !ok {
			break
		}
		for _, c := range m.Captures {
			spans = append(spans, spanFor(c.Node, t.src))
		}
	}

	sort.SliceStable(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })
	return spans
}

// InsertDocstrings splices docs into spans, then formats the file.
func (p *Processor) InsertDocstrings(ctx context.Context, src []byte, spans []langproc.Span, docs []string) ([]byte, int, error) {
	return langproc.Splice(ctx, src, spans, docs, p.style)
}

func spanFor(n *sitter.Node, src []byte) langproc.Span {
	start, end := int(n.StartByte()), int(n.EndByte())
	span := langproc.Span{
		Text:        string(src[start:end]),
		Start:       start,
		End:         end,
		HeaderStart: start,
		HeaderEnd:   headerColon(n),
	}
	if name := n.ChildByFieldName("name"); name != nil {
		span.Name = name.Content(src)
	}
	return span
}

// headerColon returns the offset of the ':' that ends n's header, or -1. Colons inside parameters or annotations belong to child nodes, so only n's direct children
// are considered.
func headerColon(n *sitter.Node) int {
	body := n.ChildByFieldName("body")
	colon := -1
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c == nil || c.Type() != ":" || c.IsMissing() {
			continue
		}
		if body != nil && c.EndByte() > body.StartByte() {
			break
		}
		colon = int(c.StartByte())
	}
	return colon
}
