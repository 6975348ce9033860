// Package sampler compresses arbitrarily long transcripts into a bounded
// prompt budget. Naive head/tail truncation silently drops late-session
// disclosures, so the sampler keeps opening/closing context, two interior
// windows, and every high-concern line found anywhere in the transcript.
package sampler

import (
	"strings"
	"unicode/utf8"

	"github.com/tumainilabs/session_copilot/internal/risk"
)

const (
	// DefaultBudget matches the prompt budget of the analysis model.
	DefaultBudget = 22000

	sectionSeparator = "\n\n[...transcript truncated...]\n\n"
	riskHeader       = "[high-concern lines]\n"

	minAvailableFloor = 1000
	minClipChars      = 12

	headWeight = 30
	midWeight  = 16
	tailWeight = 28
	riskWeight = 10
)

// Result is a bounded representation of a transcript plus diagnostics that
// end up in the analysis meta block.
type Result struct {
	Text              string
	CharsSent         int
	Truncated         bool
	WindowCount       int
	RiskLinesIncluded int
}

// Sampler produces deterministic bounded samples of transcripts.
type Sampler struct {
	budget  int
	matcher risk.Matcher
}

// New returns a sampler with the given hard character budget. A budget of
// zero or less falls back to DefaultBudget.
func New(budget int, matcher risk.Matcher) *Sampler {
	if budget <= 0 {
		budget = DefaultBudget
	}
	return &Sampler{budget: budget, matcher: matcher}
}

// Sample returns transcript unchanged when it fits the budget. Otherwise it
// assembles head, two interior windows, the high-concern lines, and tail,
// guaranteeing len(Text) <= budget.
func (s *Sampler) Sample(transcript string) Result {
	if len(transcript) <= s.budget {
		return Result{
			Text:        transcript,
			CharsSent:   len(transcript),
			Truncated:   false,
			WindowCount: 1,
		}
	}

	overhead := 4*len(sectionSeparator) + len(riskHeader)
	available := s.budget - overhead
	if available < minAvailableFloor {
		available = minAvailableFloor
	}
	// The floor can push available past a transcript only slightly over a
	// small budget; section sizes must never exceed the transcript itself.
	if available > len(transcript) {
		available = len(transcript)
	}

	headChars := available * headWeight / 100
	midChars := available * midWeight / 100
	tailChars := available * tailWeight / 100
	riskChars := available * riskWeight / 100

	head := clipEnd(transcript, headChars)
	tail := clipTail(transcript, tailChars)
	mid1 := windowAt(transcript, 38, midChars)
	mid2 := windowAt(transcript, 62, midChars)

	riskBlock, riskCount := packRiskLines(risk.ScanSegments(s.matcher, transcript), riskChars)

	text := assemble(head, mid1, mid2, riskBlock, tail)

	// Labeling overhead can be misestimated; force a final head/tail clip.
	for len(text) > s.budget {
		excess := len(text) - s.budget
		if cut := min(excess, len(tail)-1); cut > 0 {
			tail = clipTail(tail, len(tail)-cut)
			excess -= cut
		}
		if excess > 0 && len(head) > 1 {
			head = clipEnd(head, len(head)-min(excess, len(head)-1))
		}
		next := assemble(head, mid1, mid2, riskBlock, tail)
		if len(next) >= len(text) {
			// Sections can no longer shrink; clip the assembled text itself.
			text = clipEnd(next, s.budget)
			break
		}
		text = next
	}

	return Result{
		Text:              text,
		CharsSent:         len(text),
		Truncated:         true,
		WindowCount:       4,
		RiskLinesIncluded: riskCount,
	}
}

// windowAt slices size chars centered at percent of the transcript length,
// clipped to transcript and rune bounds.
func windowAt(transcript string, percent, size int) string {
	if size <= 0 {
		return ""
	}
	if size >= len(transcript) {
		return transcript
	}
	center := len(transcript) * percent / 100
	start := center - size/2
	if start < 0 {
		start = 0
	}
	if start+size > len(transcript) {
		start = len(transcript) - size
	}
	for start > 0 && !utf8.RuneStart(transcript[start]) {
		start--
	}
	end := start + size
	for end > start && end < len(transcript) && !utf8.RuneStart(transcript[end]) {
		end--
	}
	return transcript[start:end]
}

// packRiskLines greedily fits matched lines into the budget. A line that
// does not fit is hard-clipped with an ellipsis rather than dropped, so a
// single oversized disclosure still survives sampling.
func packRiskLines(lines []string, budget int) (string, int) {
	if len(lines) == 0 || budget <= 0 {
		return "", 0
	}

	var b strings.Builder
	count := 0
	remaining := budget
	for _, line := range lines {
		need := len(line)
		if count > 0 {
			need++
		}
		if need <= remaining {
			if count > 0 {
				b.WriteByte('\n')
				remaining--
			}
			b.WriteString(line)
			remaining -= len(line)
			count++
			continue
		}
		if remaining >= minClipChars {
			if count > 0 {
				b.WriteByte('\n')
				remaining--
			}
			b.WriteString(clipEnd(line, remaining-3) + "...")
			count++
		}
		break
	}
	return b.String(), count
}

// clipEnd returns at most n leading bytes of s without splitting a rune.
func clipEnd(s string, n int) string {
	if n >= len(s) {
		return s
	}
	if n < 0 {
		n = 0
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// clipTail returns at most n trailing bytes of s without splitting a rune.
func clipTail(s string, n int) string {
	if n >= len(s) {
		return s
	}
	if n < 0 {
		n = 0
	}
	start := len(s) - n
	for start < len(s) && !utf8.RuneStart(s[start]) {
		start++
	}
	return s[start:]
}

func assemble(head, mid1, mid2, riskBlock, tail string) string {
	sections := []string{head, mid1, mid2}
	if riskBlock != "" {
		sections = append(sections, riskHeader+riskBlock)
	}
	sections = append(sections, tail)
	return strings.Join(sections, sectionSeparator)
}
