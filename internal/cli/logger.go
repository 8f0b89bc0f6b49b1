package cli

import (
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"
)

// logFileEnv names a file that receives the logs (appended) instead of stderr.
const logFileEnv = "DOCSTRINGIFY_LOG_FILE"

// newLogger returns the run logger and a func that releases its file. The level is Warn, Info at verbosity 1, and Debug above. Every record carries a run id.
//
// If $DOCSTRINGIFY_LOG_FILE cannot be opened, logs go to stderr.
func newLogger(verbosity int, stderr io.Writer) (*slog.Logger, func()) {
	level := slog.LevelWarn
	switch {
	case verbosity >= 2:
		level = slog.LevelDebug
	case verbosity == 1:
		level = slog.LevelInfo
	}

	w := stderr
	closeFn := func() {}
	if path := os.Getenv(logFileEnv); path != "" {
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err == nil {
			w = f
			closeFn = func() { _ = f.Close() }
		}
	}

	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	return logger.With("run", uuid.NewString()), closeFn
}
