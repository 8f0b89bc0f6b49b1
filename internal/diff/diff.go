// Package diff computes line diffs between the old and new text of a file and renders them as unified diffs, optionally with ANSI colors. '\n' is the line
// separator.
package diff

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Op is an operation from old text to new text.
type Op int

const (
	OpEqual Op = iota
	OpInsert
	OpDelete
)

// Line is one line of a diff, without its trailing newline.
type Line struct {
	Op   Op
	Text string
}

// Lines diffs oldText to newText line by line. Deleted lines come before inserted lines within a changed region.
func Lines(oldText, newText string) []Line {
	dmp := diffmatchpatch.New()
	rOld, rNew, lineArray := dmp.DiffLinesToRunes(oldText, newText)
	diffs := dmp.DiffCleanupMerge(dmp.DiffMainRunes(rOld, rNew, false))

	var out []Line
	for _, d := range diffs {
		var op Op
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			op = OpInsert
		case diffmatchpatch.DiffDelete:
			op = OpDelete
		default:
			op = OpEqual
		}
		// Each rune of d.Text indexes a line in lineArray.
		for _, r := range d.Text {
			idx := int(r)
			if idx < 0 || idx >= len(lineArray) {
				continue
			}
			out = append(out, Line{Op: op, Text: strings.TrimSuffix(lineArray[idx], "\n")})
		}
	}
	return out
}

// Changed reports whether any line differs.
func Changed(lines []Line) bool {
	for _, l := range lines {
		if l.Op != OpEqual {
			return true
		}
	}
	return false
}

const (
	reset    = "\x1b[0m"
	red      = "\x1b[31m"
	green    = "\x1b[32m"
	magenta  = "\x1b[35m"
	cyanBold = "\x1b[1;36m"
)

// Unified returns a unified diff of oldText to newText with contextSize lines of context around each change, or "" when the texts have the same lines. If color,
// headers and changed lines carry ANSI color codes. The result ends with a newline.
func Unified(oldText, newText, fromName, toName string, contextSize int, color bool) string {
	lines := Lines(oldText, newText)
	if !Changed(lines) {
		return ""
	}
	if contextSize < 0 {
		contextSize = 0
	}

	colorize := func(s, code string) string {
		if !color {
			return s
		}
		return code + s + reset
	}

	// oldBefore[i] and newBefore[i] are the number of old and new lines before lines[i].
	oldBefore := make([]int, len(lines)+1)
	newBefore := make([]int, len(lines)+1)
	var changes []int
	for i, l := range lines {
		oldBefore[i+1], newBefore[i+1] = oldBefore[i], newBefore[i]
		if l.Op != OpInsert {
			oldBefore[i+1]++
		}
		if l.Op != OpDelete {
			newBefore[i+1]++
		}
		if l.Op != OpEqual {
			changes = append(changes, i)
		}
	}

	var b strings.Builder
	b.WriteString(colorize("--- "+fromName, cyanBold) + "\n")
	b.WriteString(colorize("+++ "+toName, cyanBold) + "\n")

	for g := 0; g < len(changes); {
		// Merge changes whose gap of equal lines is small enough that their contexts would touch.
		last := g
		for last+1 < len(changes) && changes[last+1]-changes[last]-1 <= 2*contextSize {
			last++
		}
		start := max(changes[g]-contextSize, 0)
		end := min(changes[last]+contextSize+1, len(lines))

		oldCount := oldBefore[end] - oldBefore[start]
		newCount := newBefore[end] - newBefore[start]
		header := fmt.Sprintf("@@ -%d,%d +%d,%d @@", hunkStart(oldBefore[start], oldCount), oldCount, hunkStart(newBefore[start], newCount), newCount)
		b.WriteString(colorize(header, magenta) + "\n")

		for _, l := range lines[start:end] {
			switch l.Op {
			case OpInsert:
				b.WriteString(colorize("+"+l.Text, green))
			case OpDelete:
				b.WriteString(colorize("-"+l.Text, red))
			default:
				b.WriteString(" " + l.Text)
			}
			b.WriteString("\n")
		}
		g = last + 1
	}
	return b.String()
}

// hunkStart returns the 1-based start line of a hunk side. An empty side names the line before it, as in `@@ -0,0 +1,2 @@`.
func hunkStart(before, count int) int {
	if count == 0 {
		return before
	}
	return before + 1
}
