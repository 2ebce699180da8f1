package hooks

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Hook events nudge subscribes to.
const (
	EventUserPrompt = "UserPromptSubmit"
	EventPreToolUse = "PreToolUse"
)

// ToolMatcher selects the tool calls that get a pre-tool-use reminder.
const ToolMatcher = "Write|Edit|MultiEdit|NotebookEdit|Bash"

// nudgeMarker identifies hook commands that belong to nudge.
const nudgeMarker = " hook "

var events = []string{EventUserPrompt, EventPreToolUse}

// ClaudePlatform implements the Platform interface for Claude Code.
type ClaudePlatform struct{}

// NewClaudePlatform creates a new Claude Code platform instance.
func NewClaudePlatform() *ClaudePlatform {
	return &ClaudePlatform{}
}

// Name returns the platform name.
func (c *ClaudePlatform) Name() string {
	return "Claude Code"
}

// Detect checks if a .claude directory exists under root.
func (c *ClaudePlatform) Detect(root string) bool {
	info, err := os.Stat(filepath.Join(root, ".claude"))
	if err != nil {
		return false
	}
	return info.IsDir()
}

// ConfigPath returns the path to Claude Code's settings file.
func (c *ClaudePlatform) ConfigPath(root string) string {
	return filepath.Join(root, ".claude", "settings.json")
}

// ReadConfig reads the existing Claude Code settings.
func (c *ClaudePlatform) ReadConfig(root string) (map[string]interface{}, error) {
	data, err := os.ReadFile(c.ConfigPath(root))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read settings.json: %w", err)
	}

	// Handle empty file
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}

	var config map[string]interface{}
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse settings.json: %w", err)
	}
	return config, nil
}

// GenerateHookConfig merges nudge hooks into existing: the user-prompt hook
// on every prompt and the pre-tool-use hook on editing and shell tools.
// Earlier nudge entries are removed first, so running it twice is a no-op.
func (c *ClaudePlatform) GenerateHookConfig(existing map[string]interface{}, command string) (map[string]interface{}, error) {
	if strings.TrimSpace(command) == "" {
		return nil, fmt.Errorf("hook command is required")
	}
	config := existing
	if config == nil {
		config = make(map[string]interface{})
	}

	hooksSection, ok := config["hooks"].(map[string]interface{})
	if !ok {
		hooksSection = make(map[string]interface{})
	}
	hooksSection = removeNudgeEntries(hooksSection, command)

	userPrompt := getOrCreateEventArray(hooksSection, EventUserPrompt)
	hooksSection[EventUserPrompt] = append(userPrompt, map[string]interface{}{
		"hooks": []interface{}{commandHook(command + " hook user-prompt")},
	})

	preToolUse := getOrCreateEventArray(hooksSection, EventPreToolUse)
	hooksSection[EventPreToolUse] = append(preToolUse, map[string]interface{}{
		"matcher": ToolMatcher,
		"hooks":   []interface{}{commandHook(command + " hook pre-tool-use")},
	})

	config["hooks"] = hooksSection
	return config, nil
}

// WriteConfig writes the configuration to settings.json.
func (c *ClaudePlatform) WriteConfig(root string, config map[string]interface{}) error {
	configPath := c.ConfigPath(root)
	if err := os.MkdirAll(filepath.Dir(configPath), 0700); err != nil {
		return fmt.Errorf("failed to create .claude directory: %w", err)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write settings.json: %w", err)
	}
	return nil
}

// HasNudgeHook checks every subscribed event for a nudge hook command.
func (c *ClaudePlatform) HasNudgeHook(root string) (bool, error) {
	config, err := c.ReadConfig(root)
	if err != nil || config == nil {
		return false, err
	}
	hooksSection, ok := config["hooks"].(map[string]interface{})
	if !ok {
		return false, nil
	}
	for _, event := range events {
		entries, _ := hooksSection[event].([]interface{})
		for _, entry := range entries {
			if m, ok := entry.(map[string]interface{}); ok && entryHasNudgeCommand(m, "nudge") {
				return true, nil
			}
		}
	}
	return false, nil
}

func commandHook(command string) map[string]interface{} {
	return map[string]interface{}{
		"type":    "command",
		"command": command,
	}
}

// removeNudgeEntries drops entries whose commands run nudge hooks, either
// through command or the plain "nudge" binary. Other entries are preserved.
func removeNudgeEntries(hooksSection map[string]interface{}, command string) map[string]interface{} {
	for _, event := range events {
		entries, ok := hooksSection[event].([]interface{})
		if !ok {
			continue
		}

		var kept []interface{}
		for _, entry := range entries {
			m, ok := entry.(map[string]interface{})
			if ok && (entryHasNudgeCommand(m, command) || entryHasNudgeCommand(m, "nudge")) {
				continue
			}
			kept = append(kept, entry)
		}

		if len(kept) > 0 {
			hooksSection[event] = kept
		} else {
			delete(hooksSection, event)
		}
	}
	return hooksSection
}

// entryHasNudgeCommand checks if a hook entry runs "<binary> hook ...".
func entryHasNudgeCommand(entry map[string]interface{}, binary string) bool {
	hooksList, ok := entry["hooks"].([]interface{})
	if !ok {
		return false
	}
	for _, hook := range hooksList {
		hookMap, ok := hook.(map[string]interface{})
		if !ok {
			continue
		}
		cmd, ok := hookMap["command"].(string)
		if !ok {
			continue
		}
		if strings.HasPrefix(cmd, binary+nudgeMarker) || strings.Contains(cmd, "/"+binary+nudgeMarker) {
			return true
		}
	}
	return false
}

// getOrCreateEventArray gets or creates an event array from the hooks section.
func getOrCreateEventArray(hooksSection map[string]interface{}, event string) []interface{} {
	arr, ok := hooksSection[event].([]interface{})
	if !ok {
		return make([]interface{}, 0)
	}
	return arr
}
