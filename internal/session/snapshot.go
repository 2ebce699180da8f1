package session

import (
	"time"

	"github.com/nvandessel/nudge/internal/models"
)

// Snapshot is the persisted form of a session.
type Snapshot struct {
	ID        string                         `json:"id"`
	CreatedAt time.Time                      `json:"created_at"`
	ToolCalls int                            `json:"tool_calls"`
	History   []models.ConstraintActivation  `json:"history"`
	Workflows map[models.ConstraintID][]byte `json:"workflows,omitempty"`

	// Derived, informational only. Restore recomputes them.
	ActivityPattern     string `json:"activity_pattern"`
	DominantContextType string `json:"dominant_context_type"`
}
