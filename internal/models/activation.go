package models

import (
	"fmt"
	"math"
	"time"
)

// ActivationReason explains which signal produced an activation.
type ActivationReason string

const (
	ReasonKeywordMatch        ActivationReason = "keyword_match"
	ReasonFilePatternMatch    ActivationReason = "file_pattern_match"
	ReasonContextPatternMatch ActivationReason = "context_pattern_match"
	ReasonCombinedFactors     ActivationReason = "combined_factors"
	ReasonUnknown             ActivationReason = "unknown"

	// The phase-based selection path produces this one.
	ReasonPhaseMatch ActivationReason = "phase_match"

	// Composition strategies produce these two.
	ReasonCompositionStep      ActivationReason = "composition_step"
	ReasonViolationRemediation ActivationReason = "violation_remediation"
)

// ConstraintActivation records that a constraint is relevant to an interaction.
// Values are never mutated after creation; WithConfidence returns a new one.
type ConstraintActivation struct {
	ConstraintID    ConstraintID     `json:"constraint_id"`
	ConfidenceScore float64          `json:"confidence_score"`
	Reason          ActivationReason `json:"reason"`
	TriggerContext  TriggerContext   `json:"trigger_context"`
	Timestamp       time.Time        `json:"timestamp"`
}

// NewConstraintActivation validates the score and returns an activation.
func NewConstraintActivation(id ConstraintID, score float64, reason ActivationReason, ctx TriggerContext, at time.Time) (ConstraintActivation, error) {
	if id == "" {
		return ConstraintActivation{}, fmt.Errorf("%w: activation needs a constraint id", ErrInvalidConstraint)
	}
	if math.IsNaN(score) || score < 0 || score > 1 {
		return ConstraintActivation{}, fmt.Errorf("%w: confidence must be between 0 and 1, got %f", ErrInvalidConstraint, score)
	}
	if reason == "" {
		reason = ReasonUnknown
	}
	return ConstraintActivation{
		ConstraintID:    id,
		ConfidenceScore: score,
		Reason:          reason,
		TriggerContext:  ctx,
		Timestamp:       at,
	}, nil
}

// WithConfidence returns a copy carrying score clamped to [0, 1].
func (a ConstraintActivation) WithConfidence(score float64) ConstraintActivation {
	a.ConfidenceScore = clamp01(score)
	a.TriggerContext.Keywords = append([]string(nil), a.TriggerContext.Keywords...)
	return a
}
