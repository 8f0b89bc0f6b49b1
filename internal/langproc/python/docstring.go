package python

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// Commentize returns doc as a Python string literal suitable as a docstring. A doc that already is a single string literal (optionally prefixed, ex: r"""...""")
// is returned trimmed; anything else is wrapped in triple double quotes, with the closing quotes on their own line when the doc spans multiple lines. Backslashes
// and embedded triple quotes are escaped so the literal's value is doc.
func Commentize(doc string) string {
	doc = strings.TrimSpace(doc)
	if doc == "" || isStringLiteral(doc) {
		return doc
	}
	doc = strings.ReplaceAll(doc, `\`, `\\`)
	doc = strings.ReplaceAll(doc, `"""`, `\"\"\"`)
	if strings.Contains(doc, "\n") {
		return `"""` + doc + "\n" + `"""`
	}
	if strings.HasSuffix(doc, `"`) {
		doc += " "
	}
	return `"""` + doc + `"""`
}

// isStringLiteral reports whether s parses as a module holding exactly one expression statement, and that expression is a single string.
func isStringLiteral(s string) bool {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(context.Background(), nil, []byte(s))
	if err != nil {
		return false
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() || root.NamedChildCount() != 1 {
		return false
	}
	stmt := root.NamedChild(0)
	if stmt.Type() != "expression_statement" || stmt.NamedChildCount() != 1 {
		return false
	}
	return stmt.NamedChild(0).Type() == "string"
}
