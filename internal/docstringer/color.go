package docstringer

import (
	"os"

	"golang.org/x/term"
)

func (w *Writer) color() bool {
	switch w.Color {
	case ColorAlways:
		return true
	case ColorNever:
		return false
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.Out.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
