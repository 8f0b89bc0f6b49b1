// Package safewrite reads a file and later replaces it in one atomic step, refusing to replace it if its bytes changed after they were read.
package safewrite

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"
)

// ErrModified is returned by Replace when the file no longer holds the bytes that were read.
var ErrModified = errors.New("file modified since it was read")

// Snapshot is the content of a file at the time it was read.
type Snapshot struct {
	Path   string
	Data   []byte
	Mode   fs.FileMode // Permission bits.
	Digest [32]byte    // blake3 of Data.
}

// Read reads path.
func Read(path string) (*Snapshot, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Path: path, Data: data, Mode: info.Mode().Perm(), Digest: blake3.Sum256(data)}, nil
}

// Changed reports whether the file's current bytes differ from s.Data. A file that no longer exists has changed.
func (s *Snapshot) Changed() (bool, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return blake3.Sum256(data) != s.Digest, nil
}

// Replace writes data to a temp file in the same directory with s.Mode, syncs it, and renames it over s.Path. The parent directory is synced afterwards on a best-effort
// basis. ErrModified is returned, and nothing is written, if the file changed since Read. A file the caller cannot open for writing is not replaced, even when the
// directory would allow the rename.
func (s *Snapshot) Replace(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	changed, err := s.Changed()
	if err != nil {
		return err
	}
	if changed {
		return fmt.Errorf("%w: %s", ErrModified, s.Path)
	}

	target, err := os.OpenFile(s.Path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	_ = target.Close()

	dir := filepath.Dir(s.Path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.Path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Chmod(s.Mode); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, s.Path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	_ = syncDir(dir)
	return nil
}

// syncDir fsyncs dir so the rename is durable. Not supported on every platform.
func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
