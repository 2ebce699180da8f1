// Package constants provides named constants used throughout the nudge codebase.
// This centralizes magic numbers for better maintainability and documentation.
package constants

import "time"

// Keyword match scores, in priority order.
const (
	// ExactMatchScore is awarded when a target keyword equals a context keyword
	// (case-insensitive).
	ExactMatchScore = 1.0

	// SynonymMatchScore is awarded when a target keyword is reachable from a
	// context keyword through the synonym table.
	SynonymMatchScore = 0.9

	// FuzzyMatchScore is awarded when the normalized Levenshtein similarity of
	// two keywords reaches FuzzySimilarityThreshold.
	FuzzyMatchScore = 0.7

	// FuzzySimilarityThreshold is the minimum normalized edit-distance similarity
	// for a fuzzy match.
	FuzzySimilarityThreshold = 0.7

	// FuzzyMinLength is the minimum length both keywords need before fuzzy
	// matching is attempted. Short tokens produce too many false positives.
	FuzzyMinLength = 3

	// MinKeywordLength drops single-character tokens during extraction.
	MinKeywordLength = 2
)

// Relevance component weights. They are proportional: the relevance score
// divides by the total weight of the components that participate.
const (
	// KeywordWeight is the weight of keyword overlap.
	KeywordWeight = 0.5

	// FilePatternWeight is the weight of a file-pattern match.
	FilePatternWeight = 0.2

	// ContextPatternWeight is the weight of a context-pattern match.
	ContextPatternWeight = 0.3

	// VetoScore is the relevance assigned when an anti-pattern matches.
	VetoScore = 0.0
)

// Activation defaults.
const (
	// DefaultConfidenceThreshold is the minimum relevance for a constraint to
	// activate when its trigger configuration does not set one.
	DefaultConfidenceThreshold = 0.7

	// DefaultMaxActiveConstraints caps the number of activations per interaction.
	DefaultMaxActiveConstraints = 5

	// DefaultEveryNInteractions is the default injection cadence.
	DefaultEveryNInteractions = 3

	// DefaultSessionBoost is the relevance multiplier for constraints that
	// already activated earlier in the same session.
	DefaultSessionBoost = 1.2

	// NeutralAdjustment is the session multiplier for constraints never seen
	// in the session.
	NeutralAdjustment = 1.0

	// DefaultEvaluationTimeout bounds one pipeline evaluation.
	DefaultEvaluationTimeout = 50 * time.Millisecond

	// CompositionConfidence is the confidence carried by activations that a
	// composition strategy mandates.
	CompositionConfidence = 1.0
)

// Session activity pattern detection.
const (
	// TestDrivenMinActivations is the number of "testing" activations that
	// marks a session as test-driven.
	TestDrivenMinActivations = 3

	// MixedDevelopmentMinTypes is the number of distinct context types that
	// marks a session as mixed-development when none dominates.
	MixedDevelopmentMinTypes = 3
)

// Context type and activity pattern labels.
const (
	ContextTypeUnknown      = "unknown"
	ContextTypeTesting      = "testing"
	ContextTypeRefactoring  = "refactoring"
	ContextTypeArchitecture = "architecture"

	PatternUnknown          = "unknown"
	PatternTestDriven       = "test-driven"
	PatternMixedDevelopment = "mixed-development"
	PatternFocusedSuffix    = "-focused"
)
