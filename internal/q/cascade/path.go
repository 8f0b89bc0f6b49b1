package cascade

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

var isWindows = runtime.GOOS == "windows"

// ExpandPath turns path into an absolute path, replacing a leading "~" (also "~/" or `~\`) with the user's home directory. Windows gets the same treatment even though it has no
// native "~". An empty path stays empty.
func ExpandPath(path string) string {
	if path == "" {
		return ""
	}

	expanded := path
	if strings.HasPrefix(expanded, "~") {
		if home, _ := os.UserHomeDir(); home != "" {
			switch {
			case expanded == "~" || expanded == "~/" || expanded == `~\`:
				expanded = home
			case strings.HasPrefix(expanded, "~/") || strings.HasPrefix(expanded, `~\`):
				expanded = filepath.Join(home, expanded[2:])
			}
		}
	}

	if !filepath.IsAbs(expanded) {
		if abs, err := filepath.Abs(expanded); err == nil {
			expanded = abs
		}
	}
	return expanded
}

// InUserConfigDirectory joins subPath onto the directory that holds per-user config: the home directory, or %USERPROFILE%/AppData/Local on Windows.
func InUserConfigDirectory(subPath string) string {
	if isWindows {
		return filepath.Join(ExpandPath("~/AppData/Local"), subPath)
	}
	return filepath.Join(ExpandPath("~"), subPath)
}
