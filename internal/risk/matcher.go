// Package risk holds the high-concern lexical matcher shared by the
// transcript sampler and the safety backstop. It is a deliberately simple,
// testable strategy object so it can later be swapped for a classifier
// without touching pipeline control flow.
package risk

import (
	"regexp"
	"strings"
)

// Matcher decides whether a transcript segment contains high-concern
// language (self-harm, suicidal ideation, hopelessness, disappearance).
type Matcher interface {
	MatchesSegment(segment string) bool
}

// LexiconMatcher is the default regex-backed Matcher. Known-imprecise:
// false positives and negatives are both possible.
type LexiconMatcher struct {
	pattern *regexp.Regexp
}

var highConcernPattern = regexp.MustCompile(strings.Join([]string{
	`(?i)\b(?:`,
	`kill(?:ing)? myself`,
	`|suicide|suicidal`,
	`|hurt(?:ing)? myself`,
	`|harm(?:ing)? myself`,
	`|cut(?:ting)? myself`,
	`|self[- ]harm`,
	`|end(?:ing)? my life`,
	`|end it all`,
	`|take my(?: own)? life`,
	`|want(?:ed)? to die`,
	`|better off dead`,
	`|no reason to live`,
	`|no point in living`,
	`|hopeless`,
	`|can'?t go on`,
	`|nothing matters anymore`,
	`|want(?:ed)? to disappear`,
	`|wish i (?:was|were) (?:gone|never born)`,
	`)\b`,
}, ""))

// NewLexiconMatcher returns the fixed high-concern matcher.
func NewLexiconMatcher() *LexiconMatcher {
	return &LexiconMatcher{pattern: highConcernPattern}
}

func (m *LexiconMatcher) MatchesSegment(segment string) bool {
	return m.pattern.MatchString(segment)
}

var blankLinePattern = regexp.MustCompile(`\n\s*\n`)

// SplitSegments breaks a transcript into paragraph-like segments on blank
// lines, trimming each and dropping empties.
func SplitSegments(text string) []string {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	raw := blankLinePattern.Split(normalized, -1)
	segments := make([]string, 0, len(raw))
	for _, seg := range raw {
		seg = strings.TrimSpace(seg)
		if seg != "" {
			segments = append(segments, seg)
		}
	}
	return segments
}

// ScanSegments returns the segments of transcript flagged by the matcher,
// in order, deduplicated by lower-cased whitespace-collapsed text.
func ScanSegments(m Matcher, transcript string) []string {
	seen := map[string]struct{}{}
	var matched []string
	for _, seg := range SplitSegments(transcript) {
		if !m.MatchesSegment(seg) {
			continue
		}
		key := NormalizeKey(seg)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		matched = append(matched, seg)
	}
	return matched
}

// NormalizeKey collapses whitespace and lowercases for dedup comparisons.
func NormalizeKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
