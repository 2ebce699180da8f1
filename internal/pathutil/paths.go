// Package pathutil normalizes file paths reported by agents so they can be
// matched against library file patterns.
package pathutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// RedactPath reduces a full path to .../<parent>/<basename> for safe messages.
// For example, "/home/user/.nudge/library.yaml" becomes ".../.nudge/library.yaml".
func RedactPath(path string) string {
	if path == "" {
		return ""
	}
	cleaned := filepath.Clean(path)
	dir := filepath.Dir(cleaned)
	base := filepath.Base(cleaned)
	parent := filepath.Base(dir)
	if parent == "." || parent == string(filepath.Separator) {
		return base
	}
	return ".../" + parent + "/" + base
}

// ProjectRelative rewrites path relative to root with forward slashes, the
// form file patterns are written in. Relative paths are taken to be relative
// to root already. Paths outside root come back cleaned but absolute, and
// symlinked roots are resolved before comparing.
func ProjectRelative(root, path string) string {
	if path == "" || strings.ContainsRune(path, '\x00') {
		return ""
	}
	if !filepath.IsAbs(path) {
		return filepath.ToSlash(filepath.Clean(path))
	}

	absPath := filepath.Clean(path)
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return filepath.ToSlash(absPath)
	}

	for _, pair := range [][2]string{{absRoot, absPath}, resolvedPair(absRoot, absPath)} {
		if pair[0] == "" {
			continue
		}
		if isSubpath(pair[1], pair[0]) {
			rel, err := filepath.Rel(pair[0], pair[1])
			if err == nil {
				return filepath.ToSlash(rel)
			}
		}
	}
	return filepath.ToSlash(absPath)
}

func resolvedPair(root, path string) [2]string {
	r, err := resolveExistingParent(root)
	if err != nil {
		return [2]string{}
	}
	dir, err := resolveExistingParent(filepath.Dir(path))
	if err != nil {
		return [2]string{}
	}
	return [2]string{r, filepath.Join(dir, filepath.Base(path))}
}

// resolveExistingParent walks up the directory tree to find the deepest existing
// ancestor, resolves symlinks on it, then re-appends the non-existent tail.
// This handles cases where the target file or some parent directories don't exist yet.
func resolveExistingParent(dir string) (string, error) {
	resolved, err := filepath.EvalSymlinks(dir)
	if err == nil {
		return resolved, nil
	}

	parent := filepath.Dir(dir)
	if parent == dir {
		return "", fmt.Errorf("cannot resolve path: %s", RedactPath(dir))
	}

	resolvedParent, err := resolveExistingParent(parent)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolvedParent, filepath.Base(dir)), nil
}

// isSubpath checks whether path is equal to or a subdirectory of base.
func isSubpath(path, base string) bool {
	if path == base {
		return true
	}
	// Ensure base ends with separator so "/tmp/foo" doesn't match "/tmp/foobar"
	prefix := base + string(os.PathSeparator)
	return strings.HasPrefix(path, prefix)
}
