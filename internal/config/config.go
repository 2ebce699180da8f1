// Package config provides unified configuration loading for nudge.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nvandessel/nudge/internal/activation"
	"github.com/nvandessel/nudge/internal/constants"
)

// Store drivers.
const (
	StoreSQLite = "sqlite"
	StoreFile   = "file"
)

// NudgeConfig contains all nudge configuration settings.
type NudgeConfig struct {
	// Schedule controls how often reminders are injected.
	Schedule ScheduleConfig `json:"schedule" yaml:"schedule"`

	// Matching contains settings for the trigger matching engine.
	Matching MatchingConfig `json:"matching" yaml:"matching"`

	// Keywords extends the built-in synonym, stop-word and context tables.
	Keywords KeywordsConfig `json:"keywords" yaml:"keywords"`

	// Library locates the constraint library.
	Library LibraryConfig `json:"library" yaml:"library"`

	// Logging contains settings for operational and decision logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Store configures session persistence.
	Store StoreConfig `json:"store" yaml:"store"`
}

// ScheduleConfig configures the injection cadence.
type ScheduleConfig struct {
	// EveryNInteractions injects on the first interaction and every Nth after.
	EveryNInteractions int `json:"every_n_interactions" yaml:"every_n_interactions"`

	// PhaseOverrides replaces the interval while a phase is active.
	PhaseOverrides map[string]int `json:"phase_overrides,omitempty" yaml:"phase_overrides,omitempty"`
}

// MatchingConfig configures activation ranking.
type MatchingConfig struct {
	// MaxActiveConstraints caps the activations returned per interaction.
	MaxActiveConstraints int `json:"max_active_constraints" yaml:"max_active_constraints"`

	// SessionBoost multiplies the confidence of constraints already seen in
	// the session. 1.0 disables session adaptation.
	SessionBoost float64 `json:"session_boost" yaml:"session_boost"`

	// EvaluationTimeout bounds one pipeline evaluation. Zero means no limit.
	EvaluationTimeout time.Duration `json:"evaluation_timeout" yaml:"evaluation_timeout"`
}

// KeywordsConfig extends the keyword tables.
type KeywordsConfig struct {
	// Synonyms adds synonym groups; every word in a group is a synonym of the others.
	Synonyms [][]string `json:"synonyms,omitempty" yaml:"synonyms,omitempty"`

	// StopWords adds words dropped during extraction.
	StopWords []string `json:"stop_words,omitempty" yaml:"stop_words,omitempty"`

	// ContextTypes adds detection rules, checked after the built-in ones.
	ContextTypes []activation.ContextRule `json:"context_types,omitempty" yaml:"context_types,omitempty"`
}

// LibraryConfig locates the constraint library.
type LibraryConfig struct {
	// Path is the library YAML file. Empty uses the built-in library.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// Watch reloads the library when the file changes (long-running servers only).
	Watch bool `json:"watch" yaml:"watch"`
}

// LoggingConfig configures nudge's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables decision logging to .nudge/decisions.jsonl.
	// "trace" additionally includes the full trigger context of each decision.
	Level string `json:"level" yaml:"level"`
}

// StoreConfig configures session persistence.
type StoreConfig struct {
	// Driver is "sqlite" (default) or "file".
	Driver string `json:"driver" yaml:"driver"`

	// Path is the database file (sqlite) or session directory (file).
	// Empty resolves under the project's .nudge directory.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

// Default returns a NudgeConfig with sensible defaults.
func Default() *NudgeConfig {
	return &NudgeConfig{
		Schedule: ScheduleConfig{
			EveryNInteractions: constants.DefaultEveryNInteractions,
		},
		Matching: MatchingConfig{
			MaxActiveConstraints: constants.DefaultMaxActiveConstraints,
			SessionBoost:         constants.DefaultSessionBoost,
			EvaluationTimeout:    constants.DefaultEvaluationTimeout,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Store: StoreConfig{
			Driver: StoreSQLite,
		},
	}
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.nudge/config.yaml -> <root>/.nudge/config.yaml -> environment variables.
// An empty root skips the project file.
func Load(root string) (*NudgeConfig, error) {
	config := Default()

	var paths []string
	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(homeDir, ".nudge", "config.yaml"))
	}
	if root != "" {
		paths = append(paths, filepath.Join(root, ".nudge", "config.yaml"))
	}

	for _, p := range paths {
		if _, statErr := os.Stat(p); statErr != nil {
			continue
		}
		if err := mergeFile(config, p); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	// Apply environment variable overrides
	applyEnvOverrides(config)

	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file on top of the defaults.
func LoadFromFile(path string) (*NudgeConfig, error) {
	config := Default()
	if err := mergeFile(config, path); err != nil {
		return nil, err
	}
	return config, nil
}

// mergeFile decodes path over config. Keys absent from the file keep their
// current values.
func mergeFile(config *NudgeConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}

	// Relative library and store paths are relative to the config file's project.
	base := filepath.Dir(filepath.Dir(path))
	config.Library.Path = resolvePath(base, expandEnvVars(config.Library.Path))
	config.Store.Path = resolvePath(base, expandEnvVars(config.Store.Path))
	return nil
}

func resolvePath(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	if strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[2:])
		}
	}
	return filepath.Join(base, p)
}

// Validate checks that the configuration is valid.
func (c *NudgeConfig) Validate() error {
	if c.Schedule.EveryNInteractions < 1 {
		return fmt.Errorf("every_n_interactions must be at least 1, got %d", c.Schedule.EveryNInteractions)
	}
	for phase, n := range c.Schedule.PhaseOverrides {
		if n < 1 {
			return fmt.Errorf("phase override %q must be at least 1, got %d", phase, n)
		}
	}

	if c.Matching.MaxActiveConstraints < 1 {
		return fmt.Errorf("max_active_constraints must be at least 1, got %d", c.Matching.MaxActiveConstraints)
	}
	if c.Matching.SessionBoost < 1 {
		return fmt.Errorf("session_boost must be at least 1.0, got %f", c.Matching.SessionBoost)
	}
	if c.Matching.EvaluationTimeout < 0 {
		return fmt.Errorf("evaluation_timeout must be non-negative, got %v", c.Matching.EvaluationTimeout)
	}

	for i, rule := range c.Keywords.ContextTypes {
		if rule.Name == "" || len(rule.Keywords) == 0 {
			return fmt.Errorf("context_types[%d] needs a name and at least one keyword", i)
		}
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level)
	}

	if c.Store.Driver != StoreSQLite && c.Store.Driver != StoreFile {
		return fmt.Errorf("invalid store driver: %s (valid: %s, %s)", c.Store.Driver, StoreSQLite, StoreFile)
	}

	return nil
}

// ContextRules returns the built-in detection rules followed by the configured ones.
func (c *NudgeConfig) ContextRules() []activation.ContextRule {
	return append(activation.DefaultContextRules(), c.Keywords.ContextTypes...)
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *NudgeConfig) {
	if v := os.Getenv("NUDGE_EVERY_N_INTERACTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Schedule.EveryNInteractions = n
		}
	}

	if v := os.Getenv("NUDGE_MAX_ACTIVE_CONSTRAINTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Matching.MaxActiveConstraints = n
		}
	}

	if v := os.Getenv("NUDGE_SESSION_BOOST"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Matching.SessionBoost = f
		}
	}

	if v := os.Getenv("NUDGE_EVALUATION_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Matching.EvaluationTimeout = d
		}
	}

	if v := os.Getenv("NUDGE_LIBRARY"); v != "" {
		config.Library.Path = v
	}

	if v := os.Getenv("NUDGE_LIBRARY_WATCH"); v != "" {
		config.Library.Watch = v == "true" || v == "1"
	}

	if v := os.Getenv("NUDGE_STORE_DRIVER"); v != "" {
		config.Store.Driver = v
	}

	if v := os.Getenv("NUDGE_STORE_PATH"); v != "" {
		config.Store.Path = v
	}

	if v := os.Getenv("NUDGE_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
