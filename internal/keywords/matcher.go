// Package keywords turns free text into keywords and scores how well one
// keyword set covers another, using exact, synonym and fuzzy matching.
//
// A Matcher is stateless apart from its immutable Tables and is safe for
// concurrent use.
package keywords

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/nvandessel/nudge/internal/constants"
)

// tokenPattern matches words and hyphenated or underscored compounds like
// "red-green-refactor" or "user_service".
var tokenPattern = regexp.MustCompile(`[\p{L}][\p{L}\p{N}]*(?:[-_][\p{L}\p{N}]+)*`)

// Matcher extracts and compares keywords.
type Matcher struct {
	tables *Tables
}

// NewMatcher creates a matcher over tables. Nil tables means DefaultTables().
func NewMatcher(tables *Tables) *Matcher {
	if tables == nil {
		tables = DefaultTables()
	}
	return &Matcher{tables: tables}
}

// Tables returns the matcher's tables.
func (m *Matcher) Tables() *Tables {
	return m.tables
}

// ExtractKeywords tokenizes text on word boundaries. All-caps acronyms such as
// "TDD" keep their case, everything else is lowercased. Stop-words and
// single-character tokens are dropped and duplicates removed (first occurrence
// wins, compared case-insensitively).
func (m *Matcher) ExtractKeywords(text string) []string {
	keywords := make([]string, 0)
	if strings.TrimSpace(text) == "" {
		return keywords
	}

	seen := make(map[string]bool)
	for _, tok := range tokenPattern.FindAllString(text, -1) {
		if utf8.RuneCountInString(tok) < constants.MinKeywordLength {
			continue
		}
		lower := strings.ToLower(tok)
		if m.tables.IsStopWord(lower) || seen[lower] {
			continue
		}
		seen[lower] = true
		if isAcronym(tok) {
			keywords = append(keywords, tok)
		} else {
			keywords = append(keywords, lower)
		}
	}
	return keywords
}

// isAcronym reports whether every letter in tok is upper case.
func isAcronym(tok string) bool {
	letters := 0
	for _, r := range tok {
		if unicode.IsLetter(r) {
			if !unicode.IsUpper(r) {
				return false
			}
			letters++
		}
	}
	return letters >= 2
}

// ExpandSynonyms returns the lowercased keywords followed by every synonym of
// each, deduplicated in first-seen order.
func (m *Matcher) ExpandSynonyms(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	seen := make(map[string]bool, len(keywords))
	add := func(w string) {
		if w != "" && !seen[w] {
			seen[w] = true
			out = append(out, w)
		}
	}
	for _, kw := range keywords {
		add(normalize(kw))
	}
	for _, kw := range keywords {
		for _, syn := range m.tables.Synonyms(kw) {
			add(syn)
		}
	}
	return out
}

// CalculateMatchConfidence scores how well target keywords are covered by
// context keywords. Each target takes its best match: exact (1.0), synonym
// (0.9), fuzzy (0.7) or none. The result is the mean over targets that
// matched at all; 0 when either side is empty or nothing matched.
func (m *Matcher) CalculateMatchConfidence(target, context []string) float64 {
	if len(target) == 0 || len(context) == 0 {
		return 0.0
	}

	exact := make(map[string]bool, len(context))
	for _, c := range context {
		if c = normalize(c); c != "" {
			exact[c] = true
		}
	}
	if len(exact) == 0 {
		return 0.0
	}
	expanded := m.ExpandSynonyms(context)
	expandedSet := make(map[string]bool, len(expanded))
	for _, w := range expanded {
		expandedSet[w] = true
	}

	var sum float64
	matched := 0
	for _, t := range target {
		score := m.bestMatch(normalize(t), exact, expandedSet, expanded)
		if score > 0 {
			sum += score
			matched++
		}
	}
	if matched == 0 {
		return 0.0
	}
	return sum / float64(matched)
}

func (m *Matcher) bestMatch(target string, exact, expandedSet map[string]bool, expanded []string) float64 {
	if target == "" {
		return 0
	}
	if exact[target] {
		return constants.ExactMatchScore
	}
	if expandedSet[target] {
		return constants.SynonymMatchScore
	}
	if utf8.RuneCountInString(target) < constants.FuzzyMinLength {
		return 0
	}
	for _, c := range expanded {
		if utf8.RuneCountInString(c) < constants.FuzzyMinLength {
			continue
		}
		if Similarity(target, c) >= constants.FuzzySimilarityThreshold {
			return constants.FuzzyMatchScore
		}
	}
	return 0
}
