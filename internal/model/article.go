package model

import (
	"strings"
	"time"
	"unicode"
)

// SummaryMaxLen bounds the article summary captured at crawl time.
const SummaryMaxLen = 300

// Article is a discovered piece of content. It is immutable once produced;
// its identity for deduplication is DedupeKey, a normalized function of
// (source, title) so that surface differences in the same headline collapse
// to one key.
type Article struct {
	Title        string    `json:"title"`
	URL          string    `json:"url"`
	Summary      string    `json:"summary"`
	Source       string    `json:"source"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// DedupeKey returns the duplicate-guard key for this article:
// "article:<source>:<normalized title>". Articles with the same source and
// a title that normalizes identically share a key; the same title from a
// different source does not.
func (a Article) DedupeKey() string {
	return "article:" + a.Source + ":" + NormalizeTitle(a.Title)
}

// NormalizeTitle lowercases the title and strips every non-alphanumeric
// rune, so "GPT-5 Launches!" and "gpt 5 launches" produce the same key.
func NormalizeTitle(title string) string {
	var b strings.Builder
	b.Grow(len(title))
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// TruncateSummary clips s to SummaryMaxLen runes, appending an ellipsis
// when anything was cut.
func TruncateSummary(s string) string {
	runes := []rune(s)
	if len(runes) <= SummaryMaxLen {
		return s
	}
	return string(runes[:SummaryMaxLen-3]) + "..."
}

// Valid reports whether the article carries the minimum required fields.
func (a Article) Valid() bool {
	return strings.TrimSpace(a.Title) != "" && strings.TrimSpace(a.URL) != ""
}
