package schedule

import (
	"reflect"
	"testing"

	"github.com/nvandessel/nudge/internal/models"
)

func mustConfig(t *testing.T, n int, overrides map[string]int) models.ScheduleConfiguration {
	t.Helper()
	cfg, err := models.NewScheduleConfiguration(n, overrides)
	if err != nil {
		t.Fatalf("NewScheduleConfiguration() error = %v", err)
	}
	return cfg
}

func TestScheduler_ShouldInject(t *testing.T) {
	tests := []struct {
		name string
		n    int
		upTo int
		want []bool
	}{
		{"every third", 3, 7, []bool{true, false, true, false, false, true, false}},
		{"every interaction", 1, 4, []bool{true, true, true, true}},
		{"every second", 2, 5, []bool{true, true, false, true, false}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(mustConfig(t, tt.n, nil))
			got := make([]bool, 0, tt.upTo)
			for i := 1; i <= tt.upTo; i++ {
				got = append(got, s.ShouldInject(i))
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ShouldInject(1..%d) = %v, want %v", tt.upTo, got, tt.want)
			}
		})
	}
}

func TestScheduler_ShouldInject_NonPositive(t *testing.T) {
	s := New(mustConfig(t, 3, nil))
	for _, n := range []int{0, -1, -3} {
		if s.ShouldInject(n) {
			t.Errorf("ShouldInject(%d) = true, want false", n)
		}
	}
}

func TestScheduler_ShouldInjectInPhase(t *testing.T) {
	s := New(mustConfig(t, 3, map[string]int{"red": 1, "refactor": 5}))

	if !s.ShouldInjectInPhase(2, "red") {
		t.Error("red phase should inject on every interaction")
	}
	if s.ShouldInjectInPhase(3, "refactor") {
		t.Error("refactor phase should skip interaction 3")
	}
	if !s.ShouldInjectInPhase(5, "refactor") {
		t.Error("refactor phase should inject on interaction 5")
	}
	if !s.ShouldInjectInPhase(3, "green") {
		t.Error("phases without an override use the default interval")
	}
}

func TestScheduler_NextInjection(t *testing.T) {
	s := New(mustConfig(t, 3, nil))

	tests := []struct {
		n    int
		want int
	}{
		{0, 1},
		{1, 3},
		{2, 3},
		{3, 6},
		{4, 6},
	}
	for _, tt := range tests {
		if got := s.NextInjection(tt.n, ""); got != tt.want {
			t.Errorf("NextInjection(%d) = %d, want %d", tt.n, got, tt.want)
		}
	}
}

func TestScheduler_ZeroConfig(t *testing.T) {
	s := New(models.ScheduleConfiguration{})
	for i := 1; i <= 3; i++ {
		if !s.ShouldInject(i) {
			t.Errorf("zero config should behave as every interaction, skipped %d", i)
		}
	}
}
