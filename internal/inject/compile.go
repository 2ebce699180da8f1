// Package inject renders activations into the reminder text handed to the
// agent.
package inject

import (
	"fmt"
	"strings"

	"github.com/nvandessel/nudge/internal/models"
	"github.com/nvandessel/nudge/internal/pipeline"
	"github.com/nvandessel/nudge/internal/sanitize"
)

// Format specifies the output format for rendered reminders
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatXML      Format = "xml"
	FormatPlain    Format = "plain"
)

// Lookup resolves a constraint id. *library.Library implements it.
type Lookup interface {
	Lookup(id models.ConstraintID) (models.Constraint, error)
}

// Rendered is the text for one injection.
type Rendered struct {
	// The formatted text ready for injection
	Text string `json:"text"`

	Sections []Section `json:"sections"`

	// Token statistics
	TotalTokens int `json:"total_tokens"`

	Format Format `json:"format"`

	// Included lists the rendered constraints in order.
	Included []string `json:"included"`

	// Excluded lists constraints dropped for the token budget.
	Excluded []string `json:"excluded,omitempty"`
}

// Section groups rendered constraints.
type Section struct {
	Title       string   `json:"title"`
	Content     string   `json:"content"`
	TokenCount  int      `json:"token_count"`
	Constraints []string `json:"constraints"`
}

// Compiler turns pipeline results into reminder text.
type Compiler struct {
	format    Format
	maxTokens int
}

// NewCompiler creates a markdown compiler without a token budget.
func NewCompiler() *Compiler {
	return &Compiler{format: FormatMarkdown}
}

// WithFormat sets the output format
func (c *Compiler) WithFormat(format Format) *Compiler {
	c.format = format
	return c
}

// WithMaxTokens drops trailing reminders that do not fit in n tokens.
// Zero means no limit. Workflow steps are always kept.
func (c *Compiler) WithMaxTokens(n int) *Compiler {
	c.maxTokens = n
	return c
}

type item struct {
	id       string
	title    string
	lines    []string
	guidance string
	workflow models.ConstraintID
}

// Compile renders res. Nothing is rendered for skipped interactions.
// Library texts pass through sanitize.Reminder first.
func (c *Compiler) Compile(res pipeline.Result, lib Lookup) *Rendered {
	out := &Rendered{
		Sections: []Section{},
		Format:   c.format,
		Included: []string{},
	}
	if !res.Injected || len(res.Activations) == 0 {
		return out
	}

	stepOf := make(map[models.ConstraintID]pipeline.Step, len(res.Steps))
	for _, st := range res.Steps {
		if _, dup := stepOf[st.Activation.ConstraintID]; !dup {
			stepOf[st.Activation.ConstraintID] = st
		}
	}

	var steps, reminders []item
	for _, a := range res.Activations {
		it := c.item(a, lib)
		if st, ok := stepOf[a.ConstraintID]; ok {
			it.workflow = st.WorkflowID
			it.guidance = sanitize.Reminder(st.Guidance)
			steps = append(steps, it)
			continue
		}
		reminders = append(reminders, it)
	}

	reminders, out.Excluded = c.budget(steps, reminders)

	if len(steps) > 0 {
		out.Sections = append(out.Sections, c.section("Workflow", steps))
	}
	if len(reminders) > 0 {
		out.Sections = append(out.Sections, c.section("Reminders", reminders))
	}
	for _, s := range out.Sections {
		out.Included = append(out.Included, s.Constraints...)
	}

	out.Text = c.assembleText(out.Sections)
	out.TotalTokens = estimateTokens(out.Text)
	return out
}

func (c *Compiler) item(a models.ConstraintActivation, lib Lookup) item {
	it := item{id: string(a.ConstraintID)}
	if lib != nil {
		if con, err := lib.Lookup(a.ConstraintID); err == nil {
			def := con.Def()
			it.title = sanitize.Reminder(def.Title)
			for _, r := range def.Reminders {
				if line := sanitize.Reminder(r); line != "" {
					it.lines = append(it.lines, line)
				}
			}
		}
	}
	if len(it.lines) == 0 {
		if it.title != "" {
			it.lines = []string{it.title}
			it.title = ""
		} else {
			it.lines = []string{it.id}
		}
	}
	return it
}

// budget keeps reminders in rank order while they fit next to the steps.
func (c *Compiler) budget(steps, reminders []item) ([]item, []string) {
	if c.maxTokens <= 0 {
		return reminders, nil
	}
	used := 0
	for _, it := range steps {
		used += estimateTokens(c.formatItem(it))
	}
	var kept []item
	var excluded []string
	for _, it := range reminders {
		cost := estimateTokens(c.formatItem(it))
		if used+cost <= c.maxTokens {
			kept = append(kept, it)
			used += cost
		} else {
			excluded = append(excluded, it.id)
		}
	}
	return kept, excluded
}

func (c *Compiler) section(title string, items []item) Section {
	s := Section{Title: title, Constraints: make([]string, 0, len(items))}
	parts := make([]string, 0, len(items))
	for _, it := range items {
		parts = append(parts, c.formatItem(it))
		s.Constraints = append(s.Constraints, it.id)
	}
	s.Content = strings.Join(parts, "\n")
	s.TokenCount = estimateTokens(s.Content)
	return s
}

func (c *Compiler) formatItem(it item) string {
	switch c.format {
	case FormatXML:
		return c.formatItemXML(it)
	case FormatPlain:
		return c.formatItemPlain(it)
	default:
		return c.formatItemMarkdown(it)
	}
}

func (c *Compiler) formatItemMarkdown(it item) string {
	var b strings.Builder
	for i, line := range it.lines {
		if i > 0 {
			b.WriteString("\n")
		}
		if i == 0 && it.title != "" {
			fmt.Fprintf(&b, "- **%s**: %s", it.title, line)
		} else {
			fmt.Fprintf(&b, "- %s", line)
		}
	}
	if it.workflow != "" {
		fmt.Fprintf(&b, " _(%s)_", it.workflow)
	}
	if it.guidance != "" {
		fmt.Fprintf(&b, "\n  > %s", it.guidance)
	}
	return b.String()
}

func (c *Compiler) formatItemXML(it item) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<constraint id=\"%s\"", escapeXML(it.id))
	if it.workflow != "" {
		fmt.Fprintf(&b, " workflow=\"%s\"", escapeXML(string(it.workflow)))
	}
	b.WriteString(">")
	b.WriteString(escapeXML(strings.Join(it.lines, " ")))
	if it.guidance != "" {
		fmt.Fprintf(&b, "<guidance>%s</guidance>", escapeXML(it.guidance))
	}
	b.WriteString("</constraint>")
	return b.String()
}

func (c *Compiler) formatItemPlain(it item) string {
	text := strings.Join(it.lines, " ")
	if it.guidance != "" {
		text += " (" + it.guidance + ")"
	}
	return text
}

// escapeXML escapes XML special characters in content strings.
func escapeXML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;") // Must be first!
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	s = strings.ReplaceAll(s, "'", "&apos;")
	return s
}

// assembleText combines sections into the final text
func (c *Compiler) assembleText(sections []Section) string {
	if len(sections) == 0 {
		return ""
	}

	var parts []string

	switch c.format {
	case FormatXML:
		parts = append(parts, "<nudge>")
		for _, s := range sections {
			tag := strings.ToLower(s.Title)
			parts = append(parts, fmt.Sprintf("<%s>", tag), s.Content, fmt.Sprintf("</%s>", tag))
		}
		parts = append(parts, "</nudge>")

	case FormatPlain:
		for i, s := range sections {
			if i > 0 {
				parts = append(parts, "")
			}
			parts = append(parts, s.Title+":", s.Content)
		}

	default: // FormatMarkdown
		parts = append(parts, "## Nudge", "")
		for _, s := range sections {
			parts = append(parts, fmt.Sprintf("### %s", s.Title), s.Content, "")
		}
	}

	return strings.TrimSpace(strings.Join(parts, "\n"))
}

// estimateTokens provides a rough token count estimate
// Uses the common heuristic of ~4 characters per token
func estimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}
