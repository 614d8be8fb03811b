package capture

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ToolOverrideEnvVar names the environment variable used to point tool
// discovery at a vendored binary directory (e.g. an app bundle's
// Resources dir) before falling back to well-known system paths.
const ToolOverrideEnvVar = "XTOOL_TOOL_DIR"

// discoverTool finds the first executable match for name, searching in
// order: the override directory (if set), the running executable's own
// directory, /usr/bin, /usr/local/bin, /usr/sbin, then every PATH entry.
func discoverTool(name string) (string, bool) {
	dirs := make([]string, 0, 8)

	if override := os.Getenv(ToolOverrideEnvVar); override != "" {
		dirs = append(dirs, override)
	}

	if exe, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Dir(exe))
	}

	dirs = append(dirs, "/usr/bin", "/usr/local/bin", "/usr/sbin")

	if pathEnv := os.Getenv("PATH"); pathEnv != "" {
		dirs = append(dirs, strings.Split(pathEnv, string(os.PathListSeparator))...)
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() && isExecutable(info.Mode()) {
			return candidate, true
		}
	}

	// Fall back to exec.LookPath for platforms where the heuristics above
	// miss something PATH resolution would have found (e.g. extensions on
	// Windows-style PATH entries).
	if path, err := exec.LookPath(name); err == nil {
		return path, true
	}

	return "", false
}

func isExecutable(mode os.FileMode) bool {
	return mode&0o111 != 0
}
