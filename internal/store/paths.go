// Package store persists session state in SQLite so one-shot hook processes
// can share a session.
package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// DBFile is the database file name inside a .nudge directory.
const DBFile = "nudge.db"

// GlobalNudgePath returns the path to the global .nudge directory.
// On Unix: ~/.nudge
// On Windows: %USERPROFILE%\.nudge
func GlobalNudgePath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".nudge"), nil
}

// LocalNudgePath returns the path to the local .nudge directory
// for the given project root.
func LocalNudgePath(projectRoot string) string {
	return filepath.Join(projectRoot, ".nudge")
}

// DefaultDBPath returns the database path for projectRoot.
func DefaultDBPath(projectRoot string) string {
	return filepath.Join(LocalNudgePath(projectRoot), DBFile)
}
