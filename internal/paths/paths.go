// Package paths resolves the on-disk locations used by the client.
package paths

import (
	"os"
	"path/filepath"
	"strings"
)

// AppName names the per-user configuration directory.
const AppName = "gemini"

// ConfigDir returns ~/.config/gemini, or an empty string if the home
// directory is unavailable.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", AppName)
}

// ConfigFile returns the default config file path.
func ConfigFile() string {
	return join(ConfigDir(), "config.yaml")
}

// IdentityDB returns the default identity database path.
func IdentityDB() string {
	return join(ConfigDir(), "identities.db")
}

// TracesFile returns the default trace export path.
func TracesFile() string {
	return join(ConfigDir(), "traces", "traces.jsonl")
}

// DebugLog returns the default debug log path.
func DebugLog() string {
	return join(ConfigDir(), "debug.log")
}

func join(dir string, elem ...string) string {
	if dir == "" {
		return ""
	}
	return filepath.Join(append([]string{dir}, elem...)...)
}

// Expand replaces a leading "~" with the home directory and cleans the
// result. Empty input stays empty.
//
//   - "~/x/y.db" -> "/home/me/x/y.db"
//   - "~"        -> "/home/me"
//   - "rel/x.db" -> "rel/x.db"
func Expand(path string) string {
	if path == "" {
		return ""
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Clean(path)
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return filepath.Clean(path)
}
