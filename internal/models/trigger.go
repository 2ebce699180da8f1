package models

import (
	"fmt"
	"math"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/nvandessel/nudge/internal/constants"
)

// TriggerConfiguration describes when a constraint is relevant to an interaction.
type TriggerConfiguration struct {
	Keywords        []string `json:"keywords,omitempty"`
	FilePatterns    []string `json:"file_patterns,omitempty"`
	ContextPatterns []string `json:"context_patterns,omitempty"`

	// AntiPatterns veto activation: when any of them appears among the
	// context keywords or equals the context type, relevance is zero.
	AntiPatterns []string `json:"anti_patterns,omitempty"`

	// ConfidenceThreshold is the minimum relevance for activation.
	ConfidenceThreshold float64 `json:"confidence_threshold"`
}

// NewTriggerConfiguration validates cfg. A zero threshold is replaced with
// constants.DefaultConfidenceThreshold.
func NewTriggerConfiguration(cfg TriggerConfiguration) (TriggerConfiguration, error) {
	if len(cfg.Keywords) == 0 && len(cfg.FilePatterns) == 0 && len(cfg.ContextPatterns) == 0 {
		return TriggerConfiguration{}, fmt.Errorf("%w: trigger needs at least one keyword, file pattern or context pattern", ErrInvalidConstraint)
	}
	if cfg.ConfidenceThreshold == 0 {
		cfg.ConfidenceThreshold = constants.DefaultConfidenceThreshold
	}
	if math.IsNaN(cfg.ConfidenceThreshold) || cfg.ConfidenceThreshold < 0 || cfg.ConfidenceThreshold > 1 {
		return TriggerConfiguration{}, fmt.Errorf("%w: confidence_threshold must be between 0 and 1, got %f", ErrInvalidConstraint, cfg.ConfidenceThreshold)
	}
	for _, p := range cfg.FilePatterns {
		if _, err := globRegexp(p); err != nil {
			return TriggerConfiguration{}, fmt.Errorf("%w: file pattern %q: %v", ErrInvalidConstraint, p, err)
		}
	}
	return cfg.clone(), nil
}

// Threshold returns the configured threshold, or the default when unset.
func (c TriggerConfiguration) Threshold() float64 {
	if c.ConfidenceThreshold <= 0 {
		return constants.DefaultConfidenceThreshold
	}
	return c.ConfidenceThreshold
}

func (c TriggerConfiguration) clone() TriggerConfiguration {
	out := c
	out.Keywords = append([]string(nil), c.Keywords...)
	out.FilePatterns = append([]string(nil), c.FilePatterns...)
	out.ContextPatterns = append([]string(nil), c.ContextPatterns...)
	out.AntiPatterns = append([]string(nil), c.AntiPatterns...)
	return out
}

// TriggerContext is the normalized snapshot of one interaction.
type TriggerContext struct {
	Keywords    []string  `json:"keywords"`
	FilePath    string    `json:"file_path,omitempty"`
	ContextType string    `json:"context_type"`
	SessionID   string    `json:"session_id"`
	ToolName    string    `json:"tool_name,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// KeywordScorer computes the confidence that target keywords are covered by
// context keywords. keywords.Matcher implements it.
type KeywordScorer interface {
	CalculateMatchConfidence(target, context []string) float64
}

// Relevance is the outcome of scoring a trigger configuration against a context.
type Relevance struct {
	Score          float64          `json:"score"`
	Keyword        float64          `json:"keyword"`
	FilePattern    float64          `json:"file_pattern"`
	ContextPattern float64          `json:"context_pattern"`
	Vetoed         bool             `json:"vetoed"`
	VetoedBy       string           `json:"vetoed_by,omitempty"`
	Reason         ActivationReason `json:"reason"`
}

// Relevance scores cfg against the context. It is a pure function of its inputs.
//
// Components participate only when the configuration defines them and the
// context carries the matching signal; absent signals are neutral. The score
// is the weighted mean of the participating components. An anti-pattern hit
// forces the score to constants.VetoScore.
func (c TriggerContext) Relevance(cfg TriggerConfiguration, scorer KeywordScorer) Relevance {
	if anti, ok := c.matchesAntiPattern(cfg.AntiPatterns); ok {
		return Relevance{Score: constants.VetoScore, Vetoed: true, VetoedBy: anti, Reason: ReasonUnknown}
	}

	var r Relevance
	var weighted, total float64

	if len(cfg.Keywords) > 0 && len(c.Keywords) > 0 && scorer != nil {
		r.Keyword = clamp01(scorer.CalculateMatchConfidence(cfg.Keywords, c.Keywords))
		weighted += r.Keyword * constants.KeywordWeight
		total += constants.KeywordWeight
	}

	if len(cfg.FilePatterns) > 0 && c.FilePath != "" {
		for _, p := range cfg.FilePatterns {
			if MatchFilePattern(p, c.FilePath) {
				r.FilePattern = 1.0
				break
			}
		}
		weighted += r.FilePattern * constants.FilePatternWeight
		total += constants.FilePatternWeight
	}

	if len(cfg.ContextPatterns) > 0 && c.ContextType != "" && c.ContextType != constants.ContextTypeUnknown {
		r.ContextPattern = c.contextPatternScore(cfg.ContextPatterns, scorer)
		weighted += r.ContextPattern * constants.ContextPatternWeight
		total += constants.ContextPatternWeight
	}

	if total > 0 {
		r.Score = clamp01(weighted / total)
	}
	r.Reason = reasonFor(r)
	return r
}

func (c TriggerContext) contextPatternScore(patterns []string, scorer KeywordScorer) float64 {
	for _, p := range patterns {
		if strings.EqualFold(p, c.ContextType) {
			return 1.0
		}
	}
	if scorer == nil {
		return 0
	}
	signals := append([]string{c.ContextType}, c.Keywords...)
	return clamp01(scorer.CalculateMatchConfidence(patterns, signals))
}

func (c TriggerContext) matchesAntiPattern(anti []string) (string, bool) {
	for _, a := range anti {
		if a == "" {
			continue
		}
		if strings.EqualFold(a, c.ContextType) {
			return a, true
		}
		for _, kw := range c.Keywords {
			if strings.EqualFold(a, kw) {
				return a, true
			}
		}
	}
	return "", false
}

func reasonFor(r Relevance) ActivationReason {
	var reasons []ActivationReason
	if r.Keyword > 0 {
		reasons = append(reasons, ReasonKeywordMatch)
	}
	if r.FilePattern > 0 {
		reasons = append(reasons, ReasonFilePatternMatch)
	}
	if r.ContextPattern > 0 {
		reasons = append(reasons, ReasonContextPatternMatch)
	}
	switch len(reasons) {
	case 0:
		return ReasonUnknown
	case 1:
		return reasons[0]
	default:
		return ReasonCombinedFactors
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// globCache holds compiled file patterns. Patterns come from immutable
// configuration so the cache only grows with the library size.
var globCache sync.Map // string -> *regexp.Regexp

// MatchFilePattern reports whether path matches a glob pattern.
// Supports '*' (within a segment), '**' (across segments) and '?'.
// Patterns without a '/' are also matched against the base name.
func MatchFilePattern(pattern, path string) bool {
	re, err := globRegexp(pattern)
	if err != nil {
		return false
	}
	path = filepath.ToSlash(path)
	if re.MatchString(path) {
		return true
	}
	if !strings.Contains(pattern, "/") {
		return re.MatchString(filepath.Base(path))
	}
	return false
}

func globRegexp(pattern string) (*regexp.Regexp, error) {
	if v, ok := globCache.Load(pattern); ok {
		return v.(*regexp.Regexp), nil
	}
	var b strings.Builder
	b.WriteString("^")
	p := filepath.ToSlash(pattern)
	for i := 0; i < len(p); i++ {
		ch := p[i]
		switch ch {
		case '*':
			if i+1 < len(p) && p[i+1] == '*' {
				i++
				// "**/" also matches zero directories
				if i+1 < len(p) && p[i+1] == '/' {
					i++
					b.WriteString("(?:.*/)?")
				} else {
					b.WriteString(".*")
				}
			} else {
				b.WriteString("[^/]*")
			}
		case '?':
			b.WriteString("[^/]")
		default:
			b.WriteString(regexp.QuoteMeta(string(ch)))
		}
	}
	b.WriteString("$")
	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, err
	}
	globCache.Store(pattern, re)
	return re, nil
}
