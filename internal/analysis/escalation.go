package analysis

import "github.com/tumainilabs/session_copilot/internal/domain"

// escalateFromScores derives "needs human triage" from rubric quality
// alone, decoupled from the binary risk flag: poor facilitation or content
// fidelity is a supervision-worthy event even without safety language.
func escalateFromScores(contentCoverage, facilitationQuality, protocolSafety int) bool {
	if contentCoverage == 1 || facilitationQuality == 1 || protocolSafety == 1 {
		return true
	}
	if protocolSafety <= 2 {
		return true
	}
	low := 0
	for _, score := range []int{contentCoverage, facilitationQuality, protocolSafety} {
		if score <= 2 {
			low++
		}
	}
	return low >= 2
}

// applyEscalation finalizes requiresSupervisorReview as the OR of the model
// signal, the score heuristic, and the risk flag itself. A RISK flag always
// implies supervisor review.
func applyEscalation(result *domain.SessionAnalysis) {
	result.RiskDetection.RequiresSupervisorReview = result.RiskDetection.RequiresSupervisorReview ||
		escalateFromScores(
			result.ContentCoverage.Score,
			result.FacilitationQuality.Score,
			result.ProtocolSafety.Score,
		) ||
		result.RiskDetection.Flag == domain.FlagRisk
}
