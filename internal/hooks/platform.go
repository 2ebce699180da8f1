// Package hooks installs nudge's hook handlers into the settings of AI
// coding tools, so reminders are injected without the agent asking.
package hooks

import (
	"fmt"
	"sync"
)

// Platform is an AI tool whose settings can run nudge hooks.
type Platform interface {
	// Name returns the human-readable name of the platform.
	Name() string

	// Detect checks if the platform is configured under root.
	Detect(root string) bool

	// ConfigPath returns the platform's settings file under root.
	ConfigPath(root string) string

	// ReadConfig reads and parses the existing settings.
	// Returns nil if no settings exist yet.
	ReadConfig(root string) (map[string]interface{}, error)

	// GenerateHookConfig merges hooks running command into existing, which
	// may be nil. Earlier nudge entries are replaced.
	GenerateHookConfig(existing map[string]interface{}, command string) (map[string]interface{}, error)

	// WriteConfig writes the settings file.
	WriteConfig(root string, config map[string]interface{}) error

	// HasNudgeHook reports whether nudge hooks are already configured.
	HasNudgeHook(root string) (bool, error)
}

// Registry manages registered platforms.
type Registry struct {
	mu        sync.RWMutex
	platforms []Platform
}

// NewRegistry creates a new platform registry.
func NewRegistry() *Registry {
	return &Registry{
		platforms: make([]Platform, 0),
	}
}

// Register adds a platform to the registry.
func (r *Registry) Register(p Platform) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.platforms = append(r.platforms, p)
}

// All returns all registered platforms.
func (r *Registry) All() []Platform {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]Platform, len(r.platforms))
	copy(result, r.platforms)
	return result
}

// Get returns a platform by name, or nil if not found.
func (r *Registry) Get(name string) Platform {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.platforms {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// ConfigureResult holds the result of configuring a platform.
type ConfigureResult struct {
	Platform   string `json:"platform"`
	ConfigPath string `json:"config_path"`
	Created    bool   `json:"created"` // settings file did not exist before
	Replaced   bool   `json:"replaced"` // earlier nudge hooks were replaced
	Error      error  `json:"-"`
}

// ConfigurePlatform installs hooks running command for one platform.
func ConfigurePlatform(p Platform, root, command string) ConfigureResult {
	result := ConfigureResult{
		Platform:   p.Name(),
		ConfigPath: p.ConfigPath(root),
	}

	had, err := p.HasNudgeHook(root)
	if err != nil {
		result.Error = fmt.Errorf("failed to read config: %w", err)
		return result
	}
	result.Replaced = had

	existing, err := p.ReadConfig(root)
	if err != nil {
		result.Error = fmt.Errorf("failed to read config: %w", err)
		return result
	}
	result.Created = existing == nil

	merged, err := p.GenerateHookConfig(existing, command)
	if err != nil {
		result.Error = fmt.Errorf("failed to generate hook config: %w", err)
		return result
	}

	if err := p.WriteConfig(root, merged); err != nil {
		result.Error = fmt.Errorf("failed to write config: %w", err)
		return result
	}
	return result
}

// DefaultRegistry is the global registry with all supported platforms.
var DefaultRegistry = NewRegistry()

func init() {
	DefaultRegistry.Register(NewClaudePlatform())
}
