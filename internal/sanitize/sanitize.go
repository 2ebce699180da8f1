// Package sanitize cleans text on its way into and out of nudge. Reminder
// texts from a constraint library end up in the agent's context, so they lose
// control characters, markup tags, headings and code fences. Interaction
// text from hooks and MCP clients is only stripped and bounded before it is
// analyzed.
package sanitize

import (
	"regexp"
	"strings"
)

// MaxReminderLength is the maximum length of one rendered reminder.
const MaxReminderLength = 500

// MaxInputLength bounds interaction text handed to keyword extraction.
const MaxInputLength = 8192

// Pre-compiled regular expressions for performance.
var (
	// reXMLTag matches XML/HTML tags including those with attributes and self-closing tags.
	// It also matches XML processing instructions like <?xml ...?>.
	reXMLTag = regexp.MustCompile(`<[/?!]?[a-zA-Z][a-zA-Z0-9]*(?:\s+[^>]*)?/?>|<\?[^?]*\?>`)

	// reMarkdownHeading matches markdown headings at the start of a line (# , ## , etc.).
	reMarkdownHeading = regexp.MustCompile(`(?m)^#{1,6}\s+`)

	reHorizontalRule = regexp.MustCompile(`(?m)^[-*_]{3,}\s*$`)

	reTripleBacktick = regexp.MustCompile("```+")

	// reWhitespaceRun collapses the newlines a rule or heading removal leaves behind.
	reWhitespaceRun = regexp.MustCompile(`\s*\n\s*`)
)

// Reminder makes one reminder line safe to splice into a rendered list:
//  1. Strip null bytes and ASCII control characters (except \n, \t)
//  2. Strip XML/HTML tags
//  3. Drop markdown headings and horizontal rules
//  4. Collapse triple backticks to a single backtick
//  5. Join lines with a single space
//  6. Truncate to MaxReminderLength
func Reminder(input string) string {
	if input == "" {
		return ""
	}

	s := stripControlChars(input)
	s = reXMLTag.ReplaceAllString(s, "")
	s = reMarkdownHeading.ReplaceAllString(s, "")
	s = reHorizontalRule.ReplaceAllString(s, "")
	s = reTripleBacktick.ReplaceAllString(s, "`")
	s = reWhitespaceRun.ReplaceAllString(strings.TrimSpace(s), " ")

	if len(s) > MaxReminderLength {
		s = truncate(s, MaxReminderLength) + "..."
	}
	return s
}

// Input strips control characters from interaction text and bounds its
// length. Newlines and tabs survive; they separate words.
func Input(input string) string {
	s := strings.TrimSpace(stripControlChars(input))
	if len(s) > MaxInputLength {
		s = truncate(s, MaxInputLength)
	}
	return s
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	for n > 0 && n < len(s) && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

// stripControlChars removes ASCII control characters (0x00-0x1F) from the string,
// except for newline (0x0A) and tab (0x09) which are preserved.
func stripControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x20 && r != '\n' && r != '\t' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
