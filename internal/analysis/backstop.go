package analysis

import (
	"github.com/tumainilabs/session_copilot/internal/domain"
	"github.com/tumainilabs/session_copilot/internal/risk"
)

// backstopRationale replaces the model rationale on a forced escalation so
// the override is auditable as deterministic, not model-generated.
const backstopRationale = "High-concern language was detected in the transcript by a deterministic safety scan. Escalated for supervisor review independent of the model verdict."

// applyBackstop rescans the full original transcript, never the sampled
// text, so a risk signal outside the sampled windows is still caught. It
// only ever escalates: a model-assigned RISK is left untouched. Returns
// true when the verdict was overridden.
func applyBackstop(result *domain.SessionAnalysis, originalTranscript string, matcher risk.Matcher) bool {
	if result.RiskDetection.Flag == domain.FlagRisk {
		return false
	}

	matches := risk.ScanSegments(matcher, originalTranscript)
	if len(matches) == 0 {
		return false
	}
	if len(matches) > maxQuotes {
		matches = matches[:maxQuotes]
	}

	result.RiskDetection = domain.RiskDetection{
		Flag:                     domain.FlagRisk,
		Rationale:                backstopRationale,
		ExtractedQuotes:          matches,
		RequiresSupervisorReview: true,
	}
	return true
}
