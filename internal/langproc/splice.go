package langproc

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Placement says where a doc comment goes relative to a function definition.
type Placement int

const (
	// PlaceBodyStart inserts the doc comment as the first line of the body, directly after the header line, indented like the first body line (Python docstrings).
	PlaceBodyStart Placement = iota

	// PlaceAboveHeader inserts the doc comment on the line(s) directly above the header, indented like the header (Go doc comments).
	PlaceAboveHeader
)

// Style is the language-specific part of splicing.
type Style struct {
	Placement Placement

	// HeaderSuffix is the trimmed line ending that terminates a header (ex: ":" or "{"). Used only when a span's HeaderEnd is -1.
	HeaderSuffix string

	// Commentize converts a generated doc comment into the language's comment form (ex: wrapping in triple quotes). nil leaves it unchanged.
	Commentize func(doc string) string

	// Formatter runs over the whole text after splicing. nil means NopFormatter.
	Formatter Formatter
}

// insertion is text to add at an offset of the original source.
type insertion struct {
	offset int
	text   string
}

// Splice implements Processor.InsertDocstrings for processors described by style. Every insertion point is computed against the original src and the insertions
// are applied in offset order, so each span is patched at its own location regardless of duplicate text or nesting.
//
// Blank docs (after trimming whitespace) are skipped and not counted. Nothing is formatted when an error is returned.
func Splice(ctx context.Context, src []byte, spans []Span, docs []string, style Style) ([]byte, int, error) {
	if len(spans) != len(docs) {
		return nil, 0, fmt.Errorf("%w: len(spans)=%d != len(docs)=%d", ErrContractViolation, len(spans), len(docs))
	}

	var ins []insertion
	for i, span := range spans {
		if strings.TrimSpace(docs[i]) == "" {
			continue
		}
		if err := checkSpan(src, span); err != nil {
			return nil, 0, err
		}

		doc := strings.TrimSpace(docs[i])
		if style.Commentize != nil {
			doc = style.Commentize(doc)
		}

		var (
			in  insertion
			err error
		)
		switch style.Placement {
		case PlaceAboveHeader:
			in = aboveHeader(src, span, doc)
		default:
			in, err = bodyStart(src, span, doc, style.HeaderSuffix)
		}
		if err != nil {
			return nil, 0, err
		}
		ins = append(ins, in)
	}

	out := apply(src, ins)

	formatter := style.Formatter
	if formatter == nil {
		formatter = NopFormatter
	}
	formatted, err := formatter.Format(ctx, out)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrFormat, err)
	}
	return formatted, len(ins), nil
}

func checkSpan(src []byte, span Span) error {
	if span.Start < 0 || span.End > len(src) || span.Start > span.End {
		return fmt.Errorf("%w: span %q [%d,%d) is outside a source of %d bytes", ErrContractViolation, span.Name, span.Start, span.End, len(src))
	}
	if string(src[span.Start:span.End]) != span.Text {
		return fmt.Errorf("%w: span %q does not match the source at [%d,%d)", ErrContractViolation, span.Name, span.Start, span.End)
	}
	if span.HeaderStart < span.Start || span.HeaderStart > span.End {
		return fmt.Errorf("%w: span %q has header start %d outside [%d,%d)", ErrContractViolation, span.Name, span.HeaderStart, span.Start, span.End)
	}
	return nil
}

// bodyStart places doc on a new line after the header line, indented like the first non-blank line after the header.
func bodyStart(src []byte, span Span, doc string, headerSuffix string) (insertion, error) {
	headerEnd := span.HeaderEnd
	if headerEnd < span.HeaderStart || headerEnd >= span.End {
		headerEnd = findHeaderEnd(src, span, headerSuffix)
		if headerEnd < 0 {
			return insertion{}, fmt.Errorf("%w: no header terminator %q in function %q", ErrNoInsertionPoint, headerSuffix, span.Name)
		}
	}

	// Offset just past the newline that ends the header line.
	nl := strings.IndexByte(string(src[headerEnd:span.End]), '\n')
	if nl < 0 {
		return insertion{}, fmt.Errorf("%w: function %q has no line after its header", ErrNoInsertionPoint, span.Name)
	}
	at := headerEnd + nl + 1

	indent, ok := firstIndent(string(src[at:span.End]))
	if !ok {
		return insertion{}, fmt.Errorf("%w: function %q has no body line after its header", ErrNoInsertionPoint, span.Name)
	}
	return insertion{offset: at, text: indentLines(doc, indent) + "\n"}, nil
}

// aboveHeader places doc on new lines directly above the header line.
func aboveHeader(src []byte, span Span, doc string) insertion {
	lineStart := span.HeaderStart
	for lineStart > 0 && src[lineStart-1] != '\n' {
		lineStart--
	}
	indent := string(src[lineStart:span.HeaderStart])
	if strings.TrimLeft(indent, " \t") != "" {
		// Something other than whitespace precedes the header on its line; start the comment on a fresh line at the header.
		return insertion{offset: span.HeaderStart, text: "\n" + doc + "\n"}
	}
	return insertion{offset: lineStart, text: indentLines(doc, indent) + "\n"}
}

// findHeaderEnd returns the offset of the last byte of the first line in span (starting at its header) whose trimmed content ends with suffix, or -1.
func findHeaderEnd(src []byte, span Span, suffix string) int {
	if suffix == "" {
		return -1
	}
	offset := span.HeaderStart
	for _, line := range strings.SplitAfter(string(src[span.HeaderStart:span.End]), "\n") {
		trimmed := strings.TrimRight(line, " \t\r\n")
		if strings.HasSuffix(strings.TrimSpace(trimmed), suffix) {
			return offset + len(trimmed) - 1
		}
		offset += len(line)
	}
	return -1
}

// firstIndent returns the leading whitespace of the first non-blank line of text.
func firstIndent(text string) (string, bool) {
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		return line[:len(line)-len(strings.TrimLeft(line, " \t"))], true
	}
	return "", false
}

// indentLines prefixes each non-empty line of doc with indent.
func indentLines(doc string, indent string) string {
	lines := strings.Split(doc, "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			lines[i] = ""
			continue
		}
		lines[i] = indent + line
	}
	return strings.Join(lines, "\n")
}

func apply(src []byte, ins []insertion) []byte {
	if len(ins) == 0 {
		out := make([]byte, len(src))
		copy(out, src)
		return out
	}
	sort.SliceStable(ins, func(i, j int) bool { return ins[i].offset < ins[j].offset })

	size := len(src)
	for _, in := range ins {
		size += len(in.text)
	}
	out := make([]byte, 0, size)
	prev := 0
	for _, in := range ins {
		out = append(out, src[prev:in.offset]...)
		out = append(out, in.text...)
		prev = in.offset
	}
	return append(out, src[prev:]...)
}
