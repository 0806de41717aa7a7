// Package caption turns the free text that backends return (titles,
// descriptions, post captions) into a short caption without promotional noise.
//
// The cleaning is heuristic. Each line of the input is checked against an
// ordered rule table; the first rule that matches drops the line. Lines that
// survive lose their hashtag tokens and are joined with single spaces.
package caption

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"
)

// MaxRunes is the longest caption kept before truncation
const MaxRunes = 1024

// Ellipsis marks a truncated caption
const Ellipsis = "..."

var stripTags = bluemonday.StrictPolicy()

// line is one non-empty, trimmed input line with its tokens pre-split
type line struct {
	text  string
	lower string
	words []string // tokens that are not hashtags
}

func newLine(text string) line {
	l := line{text: text, lower: strings.ToLower(text)}
	for _, tok := range strings.Fields(text) {
		if !strings.HasPrefix(tok, "#") {
			l.words = append(l.words, tok)
		}
	}
	return l
}

// lineRule drops a line when match returns true
type lineRule struct {
	name  string
	match func(l line) bool
}

var lineRules = []lineRule{
	{
		name: "filler",
		match: func(l line) bool {
			return l.text == "." || l.text == ".." || l.text == "..."
		},
	},
	{
		name: "follow handle",
		match: func(l line) bool {
			return strings.Contains(l.lower, "follow") && strings.Contains(l.lower, "@")
		},
	},
	{
		name: "hashtags only",
		match: func(l line) bool {
			return len(l.words) == 0
		},
	},
	{
		name: "short follow",
		match: func(l line) bool {
			return len(l.words) <= 3 && strings.Contains(strings.ToLower(strings.Join(l.words, " ")), "follow")
		},
	},
}

// droppedBy returns the name of the first rule matching l, or ""
func droppedBy(l line) string {
	for _, r := range lineRules {
		if r.match(l) {
			return r.name
		}
	}
	return ""
}

// Clean returns the cleaned caption for raw, or "" when nothing meaningful
// is left.
func Clean(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}

	text := raw
	if strings.ContainsRune(text, '<') {
		text = html.UnescapeString(stripTags.Sanitize(text))
	}
	text = norm.NFC.String(text)

	var kept []string
	for _, rawLine := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(rawLine)
		if trimmed == "" {
			continue
		}
		l := newLine(trimmed)
		if droppedBy(l) != "" {
			continue
		}
		kept = append(kept, strings.Join(l.words, " "))
	}

	return Truncate(strings.TrimSpace(strings.Join(kept, " ")))
}

// Truncate cuts s to MaxRunes runes and appends Ellipsis when it was longer
func Truncate(s string) string {
	if utf8.RuneCountInString(s) <= MaxRunes {
		return s
	}
	runes := []rune(s)
	return string(runes[:MaxRunes]) + Ellipsis
}

// First returns the first non-empty cleaned value among candidates
func First(candidates ...string) string {
	for _, c := range candidates {
		if cleaned := Clean(c); cleaned != "" {
			return cleaned
		}
	}
	return ""
}
