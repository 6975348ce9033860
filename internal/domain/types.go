package domain

import "strings"

// Session lifecycle statuses. PROCESSED doubles as the legacy "no decision
// yet" placeholder in stored final_status values, see DeriveDisplayStatus.
const (
	StatusProcessed        = "PROCESSED"
	StatusFlaggedForReview = "FLAGGED_FOR_REVIEW"
	StatusSafe             = "SAFE"
	StatusRisk             = "RISK"
)

const (
	DecisionValidated  = "VALIDATED"
	DecisionRejected   = "REJECTED"
	DecisionOverridden = "OVERRIDDEN"
)

const (
	FlagSafe = "SAFE"
	FlagRisk = "RISK"
)

// Rubric ratings, band-locked to scores 1..3 per metric.
const (
	RatingMissed   = "MISSED"
	RatingPartial  = "PARTIAL"
	RatingComplete = "COMPLETE"

	RatingPoor      = "POOR"
	RatingAdequate  = "ADEQUATE"
	RatingExcellent = "EXCELLENT"

	RatingViolation  = "VIOLATION"
	RatingMinorDrift = "MINOR_DRIFT"
	RatingAdherent   = "ADHERENT"
)

// ScoredMetric is one rubric dimension of a session analysis.
type ScoredMetric struct {
	Score          int      `json:"score"`
	Rating         string   `json:"rating"`
	Justification  string   `json:"justification"`
	EvidenceQuotes []string `json:"evidenceQuotes"`
}

// RiskDetection is the binary safety verdict plus its triage signal.
type RiskDetection struct {
	Flag                     string   `json:"flag"`
	Rationale                string   `json:"rationale"`
	ExtractedQuotes          []string `json:"extractedQuotes"`
	RequiresSupervisorReview bool     `json:"requiresSupervisorReview"`
}

// AnalysisMeta records generation provenance and sampling diagnostics.
type AnalysisMeta struct {
	Model                       string `json:"model"`
	PromptVersion               string `json:"promptVersion"`
	GeneratedAtUTC              string `json:"generatedAt"`
	LatencyMs                   int64  `json:"latencyMs"`
	TranscriptCharsSent         int    `json:"transcriptCharsSent"`
	TranscriptWasTruncated      bool   `json:"transcriptWasTruncated"`
	TranscriptWindowCount       int    `json:"transcriptWindowCount"`
	TranscriptRiskLinesIncluded int    `json:"transcriptRiskLinesIncluded"`
}

// SessionAnalysis is the canonical AI output for one session. At most one
// exists per session; re-running the pipeline replaces it wholesale.
type SessionAnalysis struct {
	SessionSummary      string        `json:"sessionSummary"`
	ContentCoverage     ScoredMetric  `json:"contentCoverage"`
	FacilitationQuality ScoredMetric  `json:"facilitationQuality"`
	ProtocolSafety      ScoredMetric  `json:"protocolSafety"`
	RiskDetection       RiskDetection `json:"riskDetection"`
	Meta                AnalysisMeta  `json:"meta"`
}

// Review is the supervisor decision for one session. Once present its
// finalStatus is canonical for display purposes.
type Review struct {
	SessionID    string `json:"sessionId"`
	SupervisorID string `json:"supervisorId"`
	Decision     string `json:"decision"`
	FinalStatus  string `json:"finalStatus"`
	Note         string `json:"note"`
	UpdatedAtUTC string `json:"updatedAt"`
}

// Session is a recorded facilitation session. The transcript is immutable
// once created.
type Session struct {
	ID             string `json:"id"`
	SupervisorID   string `json:"supervisorId"`
	FellowName     string `json:"fellowName"`
	GroupID        string `json:"groupId"`
	OccurredAtUTC  string `json:"occurredAt"`
	TranscriptText string `json:"transcriptText"`
	FinalStatus    string `json:"finalStatus,omitempty"`
}

// ValidDecision reports whether raw is a known review decision.
func ValidDecision(raw string) bool {
	switch raw {
	case DecisionValidated, DecisionRejected, DecisionOverridden:
		return true
	}
	return false
}

// ValidFinalStatus reports whether raw may be written by a review. The
// legacy PROCESSED placeholder is read-compatible but never written.
func ValidFinalStatus(raw string) bool {
	switch raw {
	case StatusFlaggedForReview, StatusSafe, StatusRisk:
		return true
	}
	return false
}

// RatingForScore returns the band-locked rating of a metric score.
// Metric must be one of the json field names of SessionAnalysis.
func RatingForScore(metric string, score int) string {
	bands, ok := ratingBands[metric]
	if !ok || score < 1 || score > 3 {
		return ""
	}
	return bands[score-1]
}

var ratingBands = map[string][3]string{
	"contentCoverage":     {RatingMissed, RatingPartial, RatingComplete},
	"facilitationQuality": {RatingPoor, RatingAdequate, RatingExcellent},
	"protocolSafety":      {RatingViolation, RatingMinorDrift, RatingAdherent},
}

// NormalizeStatus uppercases and trims a status-like value.
func NormalizeStatus(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}
