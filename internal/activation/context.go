package activation

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/nvandessel/nudge/internal/constants"
	"github.com/nvandessel/nudge/internal/keywords"
	"github.com/nvandessel/nudge/internal/models"
)

// ContextRule maps a context type to the keywords that reveal it.
// Rules are checked in order; the first rule with a hit wins.
type ContextRule struct {
	Name     string   `json:"name" yaml:"name"`
	Keywords []string `json:"keywords" yaml:"keywords"`
}

// DefaultContextRules returns the built-in detection rules:
// testing, then refactoring, then architecture.
func DefaultContextRules() []ContextRule {
	return []ContextRule{
		{
			Name: constants.ContextTypeTesting,
			Keywords: []string{
				"test", "tests", "testing", "spec", "specs", "unittest", "tdd",
				"assert", "assertion", "mock", "mocks", "coverage", "fixture", "fixtures",
				"pytest", "jest",
			},
		},
		{
			Name: constants.ContextTypeRefactoring,
			Keywords: []string{
				"refactor", "refactoring", "rename", "extract", "restructure", "cleanup",
				"simplify", "rework", "dedupe", "inline",
			},
		},
		{
			Name: constants.ContextTypeArchitecture,
			Keywords: []string{
				"architecture", "architectural", "design", "layer", "layers", "layering",
				"dependency", "dependencies", "interface", "interfaces", "module", "modules",
				"boundary", "boundaries", "domain",
			},
		},
	}
}

// filePathKeys are the tool parameter names that carry the file being worked on.
var filePathKeys = []string{"file_path", "path", "filePath", "notebook_path", "file"}

// Analyzer turns raw interactions into TriggerContexts.
type Analyzer struct {
	matcher *keywords.Matcher
	rules   []ContextRule
	ruleSet []map[string]bool
	now     func() time.Time
}

// NewAnalyzer creates an analyzer. Nil matcher uses the default tables;
// nil rules uses DefaultContextRules().
func NewAnalyzer(matcher *keywords.Matcher, rules []ContextRule) *Analyzer {
	if matcher == nil {
		matcher = keywords.NewMatcher(nil)
	}
	if rules == nil {
		rules = DefaultContextRules()
	}
	a := &Analyzer{
		matcher: matcher,
		rules:   append([]ContextRule(nil), rules...),
		now:     time.Now,
	}
	for _, r := range a.rules {
		set := make(map[string]bool, len(r.Keywords))
		for _, kw := range r.Keywords {
			set[strings.ToLower(strings.TrimSpace(kw))] = true
		}
		a.ruleSet = append(a.ruleSet, set)
	}
	return a
}

// AnalyzeToolCallContext builds a context from a tool invocation. Keywords come
// from the method name and every string parameter value except the file path,
// visited in sorted key order so the result is deterministic.
func (a *Analyzer) AnalyzeToolCallContext(method string, params map[string]interface{}, sessionID string) models.TriggerContext {
	filePath := ExtractFilePath(params)

	var text strings.Builder
	text.WriteString(method)
	collectText(&text, params, filePath)

	kws := a.matcher.ExtractKeywords(text.String())
	return models.TriggerContext{
		Keywords:    kws,
		FilePath:    filePath,
		ContextType: a.DetectContextType(kws, filePath),
		SessionID:   sessionID,
		ToolName:    method,
		Timestamp:   a.now(),
	}
}

// AnalyzeUserInput builds a context from free text.
func (a *Analyzer) AnalyzeUserInput(text, sessionID string) models.TriggerContext {
	kws := a.matcher.ExtractKeywords(text)
	return models.TriggerContext{
		Keywords:    kws,
		ContextType: a.DetectContextType(kws, ""),
		SessionID:   sessionID,
		Timestamp:   a.now(),
	}
}

// DetectContextType returns the name of the first rule with a keyword among
// kws or among the segments of filePath, or "unknown".
func (a *Analyzer) DetectContextType(kws []string, filePath string) string {
	signals := make([]string, 0, len(kws)+8)
	for _, kw := range kws {
		signals = append(signals, strings.ToLower(kw))
	}
	signals = append(signals, pathTokens(filePath)...)

	for i, r := range a.rules {
		for _, s := range signals {
			if a.ruleSet[i][s] {
				return r.Name
			}
		}
	}
	return constants.ContextTypeUnknown
}

// ExtractFilePath returns the first non-empty file path parameter.
func ExtractFilePath(params map[string]interface{}) string {
	for _, key := range filePathKeys {
		if fp, ok := params[key].(string); ok && fp != "" {
			return fp
		}
	}
	return ""
}

// pathTokens splits a path into lowercase alphanumeric segments, so that
// "pkg/order_test.go" yields pkg, order, test, go.
func pathTokens(path string) []string {
	if path == "" {
		return nil
	}
	return strings.FieldsFunc(strings.ToLower(path), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func collectText(b *strings.Builder, v interface{}, skip string) {
	switch val := v.(type) {
	case string:
		if val != "" && val != skip {
			b.WriteByte(' ')
			b.WriteString(val)
		}
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			collectText(b, val[k], skip)
		}
	case map[string]string:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			collectText(b, val[k], skip)
		}
	case []interface{}:
		for _, item := range val {
			collectText(b, item, skip)
		}
	case []string:
		for _, item := range val {
			collectText(b, item, skip)
		}
	case nil:
	case bool, float64, int, int64:
		// numbers and flags carry no keywords
	default:
		collectText(b, fmt.Sprint(val), skip)
	}
}
