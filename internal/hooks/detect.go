package hooks

import (
	"os"
	"path/filepath"
)

// DetectionResult holds information about a detected platform.
type DetectionResult struct {
	Platform   Platform
	Name       string
	ConfigPath string
	HasHooks   bool
	Error      error
}

// DetectAll scans root for every supported platform.
func DetectAll(root string) []DetectionResult {
	return DefaultRegistry.DetectAllWithStatus(root)
}

// DetectAllWithStatus scans for platforms and includes hook status.
func (r *Registry) DetectAllWithStatus(root string) []DetectionResult {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var results []DetectionResult
	for _, p := range r.platforms {
		if !p.Detect(root) {
			continue
		}

		result := DetectionResult{
			Platform:   p,
			Name:       p.Name(),
			ConfigPath: p.ConfigPath(root),
		}
		if has, err := p.HasNudgeHook(root); err != nil {
			result.Error = err
		} else {
			result.HasHooks = has
		}
		results = append(results, result)
	}
	return results
}

// EnsureClaudeDir creates the .claude directory if it doesn't exist.
func EnsureClaudeDir(root string) error {
	return os.MkdirAll(filepath.Join(root, ".claude"), 0700)
}
