// Package session holds the per-session aggregate: the append-only activation
// history, the tool-call counter and the properties derived from them.
//
// All public methods are safe for concurrent use, but callers that read and
// then write (evaluate, then record) should go through Registry.Do so the
// sequence runs under the session's lock.
package session

import (
	"sync"
	"time"

	"github.com/nvandessel/nudge/internal/constants"
	"github.com/nvandessel/nudge/internal/models"
)

// Config holds session configuration.
type Config struct {
	// Boost multiplies the relevance of constraints that already activated
	// in this session. Default: 1.2.
	Boost float64
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{Boost: constants.DefaultSessionBoost}
}

// Context is the aggregate root for one session id.
type Context struct {
	mu        sync.RWMutex
	id        string
	config    Config
	createdAt time.Time
	history   []models.ConstraintActivation
	counts    map[models.ConstraintID]int
	toolCalls int
	workflows map[models.ConstraintID][]byte

	// derived, recomputed on every append
	pattern  string
	dominant string
}

// New creates an empty session.
func New(id string, config Config) *Context {
	if config.Boost <= 0 {
		config.Boost = constants.DefaultSessionBoost
	}
	c := &Context{
		id:        id,
		config:    config,
		createdAt: time.Now(),
	}
	c.clear()
	return c
}

// Restore rebuilds a session from persisted data.
func Restore(snap Snapshot, config Config) *Context {
	c := New(snap.ID, config)
	if !snap.CreatedAt.IsZero() {
		c.createdAt = snap.CreatedAt
	}
	c.toolCalls = snap.ToolCalls
	for _, a := range snap.History {
		c.append(a)
	}
	for id, data := range snap.Workflows {
		c.workflows[id] = append([]byte(nil), data...)
	}
	c.recompute()
	return c
}

// ID returns the session id. It survives Reset.
func (c *Context) ID() string {
	return c.id
}

// RecordActivation appends a to the history.
func (c *Context) RecordActivation(a models.ConstraintActivation) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.append(a)
	c.recompute()
}

// RecordToolCall increments the tool-call counter and returns the new count,
// which is the 1-based number of the interaction being handled.
func (c *Context) RecordToolCall() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.toolCalls++
	return c.toolCalls
}

// ToolCallCount returns the number of tool calls recorded.
func (c *Context) ToolCallCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.toolCalls
}

// History returns a copy of the activation history, oldest first.
func (c *Context) History() []models.ConstraintActivation {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]models.ConstraintActivation, len(c.history))
	copy(out, c.history)
	return out
}

// ActivationCount returns how often id activated in this session.
func (c *Context) ActivationCount(id models.ConstraintID) int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.counts[id]
}

// DetectedActivityPattern describes what the session has been doing:
// "unknown" without history, "test-driven" once three or more activations
// came from testing contexts, "mixed-development" when three or more context
// types appear and none holds more than half, else "<type>-focused" for the
// most frequent type.
func (c *Context) DetectedActivityPattern() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.pattern
}

// DominantContextType returns the most frequent context type in the history,
// ties going to the type seen first, or "unknown" without history.
func (c *Context) DominantContextType() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.dominant
}

// GetSessionRelevanceAdjustment returns the multiplier for id: neutral for
// constraints that have not activated yet, the configured boost otherwise.
func (c *Context) GetSessionRelevanceAdjustment(id models.ConstraintID) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.counts[id] > 0 {
		return c.config.Boost
	}
	return constants.NeutralAdjustment
}

// WorkflowState returns the saved state of a composition workflow.
func (c *Context) WorkflowState(id models.ConstraintID) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	data, ok := c.workflows[id]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}

// SetWorkflowState saves the state of a composition workflow.
func (c *Context) SetWorkflowState(id models.ConstraintID, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.workflows[id] = append([]byte(nil), data...)
}

// Reset clears history, counter and workflow state. The id is kept.
func (c *Context) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.clear()
}

// Snapshot returns a copy of the session's data.
func (c *Context) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := Snapshot{
		ID:                  c.id,
		CreatedAt:           c.createdAt,
		ToolCalls:           c.toolCalls,
		History:             make([]models.ConstraintActivation, len(c.history)),
		Workflows:           make(map[models.ConstraintID][]byte, len(c.workflows)),
		ActivityPattern:     c.pattern,
		DominantContextType: c.dominant,
	}
	copy(snap.History, c.history)
	for id, data := range c.workflows {
		snap.Workflows[id] = append([]byte(nil), data...)
	}
	return snap
}

// Clone returns an independent copy, used for evaluations that may be
// abandoned part way.
func (c *Context) Clone() *Context {
	return Restore(c.Snapshot(), c.config)
}

func (c *Context) clear() {
	c.history = nil
	c.counts = make(map[models.ConstraintID]int)
	c.toolCalls = 0
	c.workflows = make(map[models.ConstraintID][]byte)
	c.pattern = constants.PatternUnknown
	c.dominant = constants.ContextTypeUnknown
}

func (c *Context) append(a models.ConstraintActivation) {
	c.history = append(c.history, a)
	c.counts[a.ConstraintID]++
}

func (c *Context) recompute() {
	c.pattern, c.dominant = classify(c.history)
}

// classify derives the activity pattern and dominant context type.
func classify(history []models.ConstraintActivation) (pattern, dominant string) {
	if len(history) == 0 {
		return constants.PatternUnknown, constants.ContextTypeUnknown
	}

	counts := make(map[string]int)
	var order []string
	for _, a := range history {
		ct := a.TriggerContext.ContextType
		if ct == "" {
			ct = constants.ContextTypeUnknown
		}
		if counts[ct] == 0 {
			order = append(order, ct)
		}
		counts[ct]++
	}

	dominant = order[0]
	for _, ct := range order[1:] {
		if counts[ct] > counts[dominant] {
			dominant = ct
		}
	}

	switch {
	case counts[constants.ContextTypeTesting] >= constants.TestDrivenMinActivations:
		pattern = constants.PatternTestDriven
	case len(order) >= constants.MixedDevelopmentMinTypes && counts[dominant]*2 <= len(history):
		pattern = constants.PatternMixedDevelopment
	case dominant == constants.ContextTypeUnknown:
		pattern = constants.PatternUnknown
	default:
		pattern = dominant + constants.PatternFocusedSuffix
	}
	return pattern, dominant
}
