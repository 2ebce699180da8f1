// Package schedule decides on which interactions reminders are injected.
package schedule

import (
	"github.com/nvandessel/nudge/internal/models"
)

// Scheduler applies a ScheduleConfiguration to interaction counts.
// It holds no mutable state and is safe for concurrent use.
type Scheduler struct {
	cfg models.ScheduleConfiguration
}

// New creates a scheduler for cfg.
func New(cfg models.ScheduleConfiguration) *Scheduler {
	return &Scheduler{cfg: cfg}
}

// Config returns the scheduler's configuration.
func (s *Scheduler) Config() models.ScheduleConfiguration {
	return s.cfg
}

// ShouldInject reports whether interaction n (1-based) gets reminders.
// The first interaction always does, then every Nth one.
func (s *Scheduler) ShouldInject(n int) bool {
	return inject(n, s.cfg.EveryNInteractions())
}

// ShouldInjectInPhase is ShouldInject using the phase's interval override.
func (s *Scheduler) ShouldInjectInPhase(n int, phase string) bool {
	return inject(n, s.cfg.Interval(phase))
}

// NextInjection returns the first interaction after n that gets reminders.
func (s *Scheduler) NextInjection(n int, phase string) int {
	interval := s.cfg.Interval(phase)
	if n < 1 {
		return 1
	}
	return (n/interval + 1) * interval
}

func inject(n, interval int) bool {
	if n < 1 {
		return false
	}
	return n == 1 || n%interval == 0
}
