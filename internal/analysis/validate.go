package analysis

import (
	"fmt"
	"strings"

	"github.com/tumainilabs/session_copilot/internal/domain"
)

const (
	minSummaryLen       = 20
	minJustificationLen = 20
	minQuoteLen         = 8
	minRationaleLen     = 10
	maxQuotes           = 3
	summarySentences    = 3
)

// llmOutput is the typed contract for raw model output, before meta is
// attached. Parsing alone proves nothing; validateLLMOutput re-checks every
// claim the response schema makes.
type llmOutput struct {
	SessionSummary      string               `json:"sessionSummary"`
	ContentCoverage     domain.ScoredMetric  `json:"contentCoverage"`
	FacilitationQuality domain.ScoredMetric  `json:"facilitationQuality"`
	ProtocolSafety      domain.ScoredMetric  `json:"protocolSafety"`
	RiskDetection       domain.RiskDetection `json:"riskDetection"`
}

// validateLLMOutput returns every contract violation found. sampledText is
// the transcript representation the model actually saw; all quotes must be
// exact substrings of it.
func validateLLMOutput(out llmOutput, sampledText string) []string {
	var errs []string

	summary := strings.TrimSpace(out.SessionSummary)
	if len(summary) < minSummaryLen {
		errs = append(errs, fmt.Sprintf("format:sessionSummary must be at least %d chars", minSummaryLen))
	}
	if got := len(sentenceSegments(summary)); got != summarySentences {
		errs = append(errs, fmt.Sprintf("format:sessionSummary must be exactly %d sentences, got %d", summarySentences, got))
	}

	errs = append(errs, validateMetric("contentCoverage", out.ContentCoverage, sampledText)...)
	errs = append(errs, validateMetric("facilitationQuality", out.FacilitationQuality, sampledText)...)
	errs = append(errs, validateMetric("protocolSafety", out.ProtocolSafety, sampledText)...)
	errs = append(errs, validateRiskDetection(out.RiskDetection, sampledText)...)

	return errs
}

func validateMetric(name string, metric domain.ScoredMetric, sampledText string) []string {
	var errs []string

	if metric.Score < 1 || metric.Score > 3 {
		errs = append(errs, fmt.Sprintf("format:%s.score must be 1, 2 or 3", name))
	} else if want := domain.RatingForScore(name, metric.Score); metric.Rating != want {
		errs = append(errs, fmt.Sprintf("format:%s.rating %q is inconsistent with score %d (want %q)", name, metric.Rating, metric.Score, want))
	}

	if len(strings.TrimSpace(metric.Justification)) < minJustificationLen {
		errs = append(errs, fmt.Sprintf("format:%s.justification must be at least %d chars", name, minJustificationLen))
	}

	if len(metric.EvidenceQuotes) < 1 || len(metric.EvidenceQuotes) > maxQuotes {
		errs = append(errs, fmt.Sprintf("format:%s.evidenceQuotes must contain 1-%d quotes", name, maxQuotes))
	}
	for i, quote := range metric.EvidenceQuotes {
		if len(strings.TrimSpace(quote)) < minQuoteLen {
			errs = append(errs, fmt.Sprintf("format:%s.evidenceQuotes[%d] must be at least %d chars", name, i, minQuoteLen))
			continue
		}
		if !strings.Contains(sampledText, quote) {
			errs = append(errs, fmt.Sprintf("format:%s.evidenceQuotes[%d] must be an exact substring of the transcript", name, i))
		}
	}

	return errs
}

func validateRiskDetection(rd domain.RiskDetection, sampledText string) []string {
	var errs []string

	if rd.Flag != domain.FlagSafe && rd.Flag != domain.FlagRisk {
		errs = append(errs, "format:riskDetection.flag must be SAFE or RISK")
	}
	if len(strings.TrimSpace(rd.Rationale)) < minRationaleLen {
		errs = append(errs, fmt.Sprintf("format:riskDetection.rationale must be at least %d chars", minRationaleLen))
	}
	if len(rd.ExtractedQuotes) > maxQuotes {
		errs = append(errs, fmt.Sprintf("format:riskDetection.extractedQuotes must contain at most %d quotes", maxQuotes))
	}
	if rd.Flag == domain.FlagRisk && len(rd.ExtractedQuotes) == 0 {
		errs = append(errs, "format:riskDetection RISK requires at least one extracted quote")
	}
	if rd.Flag == domain.FlagSafe && len(rd.ExtractedQuotes) > 0 {
		errs = append(errs, "format:riskDetection SAFE must not include extracted quotes")
	}
	for i, quote := range rd.ExtractedQuotes {
		if len(strings.TrimSpace(quote)) < minQuoteLen {
			errs = append(errs, fmt.Sprintf("format:riskDetection.extractedQuotes[%d] must be at least %d chars", i, minQuoteLen))
			continue
		}
		if !strings.Contains(sampledText, quote) {
			errs = append(errs, fmt.Sprintf("format:riskDetection.extractedQuotes[%d] must be an exact substring of the transcript", i))
		}
	}

	return errs
}

// sentenceSegments splits on sentence-terminal punctuation followed by a
// space, after whitespace normalization. Deliberately naive: it mirrors how
// the summary contract is communicated to the model.
func sentenceSegments(s string) []string {
	normalized := strings.Join(strings.Fields(s), " ")
	var segments []string
	start := 0
	for i := 0; i < len(normalized); i++ {
		c := normalized[i]
		if c != '.' && c != '!' && c != '?' {
			continue
		}
		if i+1 < len(normalized) && normalized[i+1] != ' ' {
			continue
		}
		if seg := strings.TrimSpace(normalized[start : i+1]); seg != "" {
			segments = append(segments, seg)
		}
		start = i + 1
	}
	if rest := strings.TrimSpace(normalized[start:]); rest != "" {
		segments = append(segments, rest)
	}
	return segments
}
