package logging

import (
	"os"
	"path/filepath"
)

// DefaultLogDir returns ~/.nocmatch/logs, or a temp dir fallback when the
// home directory cannot be resolved.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".nocmatch", "logs")
	}
	return filepath.Join(home, ".nocmatch", "logs")
}

// DefaultLogPath returns the shared log file used by every command.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "nocmatch.log")
}
