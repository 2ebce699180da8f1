package models

import (
	"fmt"
)

// ScheduleConfiguration sets the injection cadence.
type ScheduleConfiguration struct {
	everyN         int
	phaseOverrides map[string]int
}

// NewScheduleConfiguration validates the cadence. Overrides map a phase name to
// its own interval; every interval must be at least 1.
func NewScheduleConfiguration(everyNInteractions int, phaseOverrides map[string]int) (ScheduleConfiguration, error) {
	if everyNInteractions < 1 {
		return ScheduleConfiguration{}, fmt.Errorf("every_n_interactions must be at least 1, got %d", everyNInteractions)
	}
	overrides := make(map[string]int, len(phaseOverrides))
	for phase, n := range phaseOverrides {
		if phase == "" {
			return ScheduleConfiguration{}, fmt.Errorf("phase override needs a phase name")
		}
		if n < 1 {
			return ScheduleConfiguration{}, fmt.Errorf("phase %q interval must be at least 1, got %d", phase, n)
		}
		overrides[phase] = n
	}
	return ScheduleConfiguration{everyN: everyNInteractions, phaseOverrides: overrides}, nil
}

// EveryNInteractions returns the default interval.
func (s ScheduleConfiguration) EveryNInteractions() int {
	if s.everyN < 1 {
		return 1
	}
	return s.everyN
}

// Interval returns the interval for phase, falling back to the default.
func (s ScheduleConfiguration) Interval(phase string) int {
	if n, ok := s.phaseOverrides[phase]; ok {
		return n
	}
	return s.EveryNInteractions()
}
