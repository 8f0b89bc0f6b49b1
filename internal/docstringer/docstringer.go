// Package docstringer adds missing doc comments to source files. A Writer walks a file or directory tree; for each file some langproc.Processor accepts, it extracts
// every function, asks a generate.Generator for one doc comment per function, splices them all in a single pass, and replaces the file atomically when at least
// one comment was inserted.
//
// Per-file failures (a broken processor contract, an unplaceable comment, a formatter or generation error, or a file edited during the run) abort that file only,
// unless Options.FailFast is set. Files that cannot be read or written are skipped with a warning.
package docstringer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/codalotl/docstringify/internal/diff"
	"github.com/codalotl/docstringify/internal/generate"
	"github.com/codalotl/docstringify/internal/health"
	"github.com/codalotl/docstringify/internal/langproc"
	"github.com/codalotl/docstringify/internal/safewrite"
)

// ColorMode controls ANSI colors in dry-run diffs.
type ColorMode int

const (
	ColorAuto   ColorMode = iota // Color when Out is a terminal and NO_COLOR is unset.
	ColorAlways                  // Always color.
	ColorNever                   // Never color.
)

// Options configures a Writer.
type Options struct {
	// Out receives the per-file summary lines and dry-run diffs. nil means os.Stdout.
	Out io.Writer

	// Verbosity > 0 also reports files that got no doc comments.
	Verbosity int

	// DryRun prints a unified diff per changed file instead of writing it.
	DryRun bool

	// FailFast stops at the first file that fails instead of continuing with the rest of the tree.
	FailFast bool

	// Exclude holds filepath.Match patterns matched against the base name of each entry found while walking a directory. Matching entries (files or directories)
	// are not visited.
	Exclude []string

	Color ColorMode

	health.Ctx
}

// Stats are the totals of one Process call.
type Stats struct {
	Dirs       int // Directories visited, including the root if it is one.
	Files      int // Files some processor accepted.
	Insertions int // Doc comments inserted (or, in a dry run, that would be).
	Skipped    int // Functions that got no doc comment because the generator declined or answered with a malformed response.
	Failed     int // Files aborted by an error.
}

// Add adds o to s.
func (s *Stats) Add(o Stats) {
	s.Dirs += o.Dirs
	s.Files += o.Files
	s.Insertions += o.Insertions
	s.Skipped += o.Skipped
	s.Failed += o.Failed
}

// Writer inserts doc comments into files.
type Writer struct {
	Generator  generate.Generator
	Processors *langproc.Registry
	Options
}

// New returns a Writer. Unset Out and Logger get defaults.
func New(generator generate.Generator, processors *langproc.Registry, options Options) *Writer {
	if options.Out == nil {
		options.Out = os.Stdout
	}
	options.Ctx = health.NewCtx(options.Logger)
	return &Writer{Generator: generator, Processors: processors, Options: options}
}

// errStop ends a fail-fast walk; the failure itself is already recorded.
var errStop = errors.New("stop")

// Process adds doc comments to path: a file, or a directory walked recursively in sorted order. A symlink given as path is followed; symlinks found while walking
// are not.
//
// The returned error joins every per-file failure, and is non-nil if path itself cannot be read or ctx is canceled. Stats are valid even when an error is returned.
func (w *Writer) Process(ctx context.Context, path string) (Stats, error) {
	if w.Out == nil {
		w.Out = os.Stdout
	}
	if w.Logger == nil {
		w.Ctx = health.NewCtx(nil)
	}

	info, err := os.Stat(path)
	if err != nil {
		return Stats{}, w.LogWrappedErr("cannot read path", err, "path", path)
	}

	var failures []error
	stats, err := w.visit(ctx, path, info, &failures)
	if err != nil && !errors.Is(err, errStop) {
		failures = append(failures, err)
	}
	return stats, errors.Join(failures...)
}

func (w *Writer) visit(ctx context.Context, path string, info fs.FileInfo, failures *[]error) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}

	switch {
	case info.IsDir():
		return w.visitDir(ctx, path, failures)

	case info.Mode().IsRegular():
		proc := w.Processors.ForPath(path)
		if proc == nil {
			return Stats{}, nil
		}
		stats, err := w.processFile(ctx, path, proc)
		stats.Files = 1
		if err == nil {
			return stats, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return stats, ctxErr
		}
		stats.Failed = 1
		*failures = append(*failures, w.LogWrappedErr("cannot docstringify file", err, "path", path))
		if w.FailFast {
			return stats, errStop
		}
		return stats, nil

	default:
		w.Debug("skipping non-regular file", "path", path, "mode", info.Mode().String())
		return Stats{}, nil
	}
}

func (w *Writer) visitDir(ctx context.Context, dir string, failures *[]error) (Stats, error) {
	stats := Stats{Dirs: 1}

	// os.ReadDir returns entries sorted by name.
	entries, err := os.ReadDir(dir)
	if err != nil {
		if len(entries) == 0 {
			w.Logger.Warn("cannot read directory; skipping", "path", dir, "err", err)
			return stats, nil
		}
		w.Logger.Warn("cannot read all of directory", "path", dir, "err", err)
	}

	for _, entry := range entries {
		if w.excluded(entry.Name()) {
			w.Debug("excluded", "path", filepath.Join(dir, entry.Name()))
			continue
		}
		if entry.Type()&fs.ModeSymlink != 0 {
			w.Debug("skipping symlink", "path", filepath.Join(dir, entry.Name()))
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// Removed since ReadDir.
			continue
		}
		s, err := w.visit(ctx, filepath.Join(dir, entry.Name()), info, failures)
		stats.Add(s)
		if err != nil {
			return stats, err
		}
	}
	return stats, nil
}

func (w *Writer) excluded(name string) bool {
	for _, pattern := range w.Exclude {
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

// processFile runs the single-file pipeline. It returns an error only for failures that abort the file; unreadable or unwritable files are skipped with a warning.
func (w *Writer) processFile(ctx context.Context, path string, proc langproc.Processor) (Stats, error) {
	var stats Stats

	snap, err := safewrite.Read(path)
	if err != nil {
		w.Logger.Warn("cannot read file; skipping", "path", path, "err", err)
		return stats, nil
	}

	tree := proc.Parse(snap.Data)
	if tree.HasErrors() {
		w.Log("file has syntax errors; continuing", "path", path, "language", proc.Name())
	}
	spans := proc.ExtractFunctionDeclarations(tree)
	w.Debug("extracted functions", "path", path, "language", proc.Name(), "count", len(spans))

	docs := make([]string, len(spans))
	for i, span := range spans {
		doc, err := w.Generator.Generate(ctx, generate.Request{Language: proc.Name(), FunctionText: span.Text})
		if errors.Is(err, generate.ErrMalformedResponse) {
			w.Logger.Warn("unusable doc comment; skipping function", "path", path, "function", span.Name, "err", err)
			doc, err = "", nil
		}
		if err != nil {
			return stats, health.Wrap("generation failed", err, "function", span.Name)
		}
		if strings.TrimSpace(doc) == "" {
			stats.Skipped++
		}
		docs[i] = doc
	}

	out, n, err := proc.InsertDocstrings(ctx, snap.Data, spans, docs)
	if err != nil {
		return stats, err
	}
	if n == 0 {
		if w.Verbosity > 0 {
			fmt.Fprintf(w.Out, "No docstrings generated in %s.\n", path)
		}
		return stats, nil
	}

	if w.DryRun {
		fmt.Fprint(w.Out, diff.Unified(string(snap.Data), string(out), path, path, 3, w.color()))
		fmt.Fprintf(w.Out, "Would generate %s in %s.\n", docstrings(n), path)
		stats.Insertions = n
		return stats, nil
	}

	if err := snap.Replace(ctx, out); err != nil {
		if errors.Is(err, safewrite.ErrModified) || ctx.Err() != nil {
			return stats, err
		}
		w.Logger.Warn("cannot write file; skipping", "path", path, "err", err)
		return stats, nil
	}
	stats.Insertions = n
	w.Log("wrote file", "path", path, "insertions", n)
	fmt.Fprintf(w.Out, "Generated %s in %s.\n", docstrings(n), path)
	return stats, nil
}

func docstrings(n int) string {
	if n == 1 {
		return "1 docstring"
	}
	return fmt.Sprintf("%d docstrings", n)
}
