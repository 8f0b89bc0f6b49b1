package python

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/codalotl/docstringify/internal/langproc"
)

// Black formats Python source by piping it through the black CLI.
type Black struct {
	path       string
	lineLength int
}

var _ langproc.Formatter = (*Black)(nil)

// NewBlack locates the black executable (command defaults to "black"; it may be a name on $PATH or a path). lineLength <= 0 uses black's default. An error is returned
// when the executable cannot be found.
func NewBlack(command string, lineLength int) (*Black, error) {
	if command == "" {
		command = "black"
	}
	path, err := exec.LookPath(command)
	if err != nil {
		return nil, fmt.Errorf("black not available: install black (pip install black) or set python.formatter to none: %w", err)
	}
	return &Black{path: path, lineLength: lineLength}, nil
}

// Format runs `black --quiet [--line-length N] -` with src on stdin and returns stdout.
func (b *Black) Format(ctx context.Context, src []byte) ([]byte, error) {
	args := []string{"--quiet"}
	if b.lineLength > 0 {
		args = append(args, "--line-length", strconv.Itoa(b.lineLength))
	}
	args = append(args, "-")

	cmd := exec.CommandContext(ctx, b.path, args...)
	cmd.Stdin = bytes.NewReader(src)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("black failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}
