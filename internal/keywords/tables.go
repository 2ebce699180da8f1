package keywords

import (
	"strings"
)

// Tables holds the synonym groups and stop-words used by a Matcher.
// A Tables value is built once at startup and never mutated afterwards, so it
// can be shared between goroutines without locking.
type Tables struct {
	groups    [][]string       // each group lowercased, declaration order
	index     map[string][]int // lowercase word -> indexes into groups
	stopWords map[string]bool
}

// NewTables builds tables from synonym groups and stop-words. Words are
// lowercased; empty words and single-member groups are ignored.
func NewTables(groups [][]string, stopWords []string) *Tables {
	t := &Tables{
		index:     make(map[string][]int),
		stopWords: make(map[string]bool, len(stopWords)),
	}
	t.addGroups(groups)
	for _, w := range stopWords {
		if w = normalize(w); w != "" {
			t.stopWords[w] = true
		}
	}
	return t
}

// DefaultTables returns the built-in synonym and stop-word tables.
func DefaultTables() *Tables {
	return NewTables(defaultSynonyms, defaultStopWords)
}

// Extend returns new tables holding t's entries plus the extra ones.
// t itself is left untouched.
func (t *Tables) Extend(groups [][]string, stopWords []string) *Tables {
	out := &Tables{
		index:     make(map[string][]int, len(t.index)),
		stopWords: make(map[string]bool, len(t.stopWords)+len(stopWords)),
	}
	out.addGroups(t.groups)
	out.addGroups(groups)
	for w := range t.stopWords {
		out.stopWords[w] = true
	}
	for _, w := range stopWords {
		if w = normalize(w); w != "" {
			out.stopWords[w] = true
		}
	}
	return out
}

func (t *Tables) addGroups(groups [][]string) {
	for _, g := range groups {
		seen := make(map[string]bool, len(g))
		var members []string
		for _, w := range g {
			w = normalize(w)
			if w == "" || seen[w] {
				continue
			}
			seen[w] = true
			members = append(members, w)
		}
		if len(members) < 2 {
			continue
		}
		idx := len(t.groups)
		t.groups = append(t.groups, members)
		for _, w := range members {
			t.index[w] = append(t.index[w], idx)
		}
	}
}

// IsStopWord reports whether word is a stop-word (case-insensitive).
func (t *Tables) IsStopWord(word string) bool {
	return t.stopWords[normalize(word)]
}

// Synonyms returns every member of every group containing word, excluding
// word itself. Matching is case-insensitive.
func (t *Tables) Synonyms(word string) []string {
	w := normalize(word)
	var out []string
	seen := map[string]bool{w: true}
	for _, idx := range t.index[w] {
		for _, m := range t.groups[idx] {
			if !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	}
	return out
}

// AreSynonyms reports whether a and b share a synonym group.
func (t *Tables) AreSynonyms(a, b string) bool {
	a, b = normalize(a), normalize(b)
	if a == b {
		return false
	}
	for _, ia := range t.index[a] {
		for _, ib := range t.index[b] {
			if ia == ib {
				return true
			}
		}
	}
	return false
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// defaultSynonyms groups words that name the same development concept.
var defaultSynonyms = [][]string{
	// Testing
	{"test", "tests", "testing", "unittest", "unit-test", "unit-tests", "spec", "specs"},
	{"tdd", "test-driven", "test-first", "red-green-refactor"},
	{"assert", "assertion", "assertions", "expect", "expectation"},
	{"mock", "mocks", "stub", "stubs", "fake", "fakes", "double"},
	{"coverage", "covered", "uncovered"},

	// Refactoring
	{"refactor", "refactoring", "refactored", "restructure", "rework", "cleanup", "clean-up", "simplify"},
	{"rename", "renaming", "renamed"},
	{"extract", "extraction", "extracted"},

	// Architecture
	{"architecture", "architectural", "design", "structure"},
	{"layer", "layers", "layering", "layered", "tier", "tiers"},
	{"dependency", "dependencies", "import", "imports", "coupling"},
	{"interface", "interfaces", "abstraction", "contract", "port", "ports"},
	{"domain", "entity", "entities", "aggregate", "aggregates"},
	{"pure", "side-effect-free", "immutable", "stateless"},

	// Implementation
	{"implement", "implementation", "implementing", "implemented"},
	{"function", "functions", "method", "methods", "func"},
	{"error", "errors", "exception", "exceptions", "failure"},
	{"database", "db", "sql", "persistence", "repository"},
	{"api", "endpoint", "endpoints", "rest", "handler", "handlers"},
	{"security", "auth", "authentication", "authorization", "vulnerability"},
	{"performance", "optimize", "optimization", "latency", "throughput"},
	{"config", "configuration", "settings"},
}

// defaultStopWords contains common English words excluded from keyword extraction.
var defaultStopWords = []string{
	"the", "a", "an", "is", "are", "was", "were", "do", "does", "did",
	"have", "has", "had", "be", "been", "being", "will", "would", "could", "should",
	"may", "might", "can", "shall", "not", "no", "and", "or", "but", "if",
	"then", "than", "so", "as", "at", "by", "for", "from", "in", "into",
	"of", "on", "to", "with", "about", "up", "out", "it", "its", "this",
	"that", "what", "which", "who", "how", "when", "where", "why", "you", "me",
	"my", "your", "we", "they", "he", "she", "her", "him", "us", "them",
	"our", "let", "lets", "please", "just", "also", "some", "any", "all", "there",
	"here", "these", "those", "now", "want", "need", "i",
}
