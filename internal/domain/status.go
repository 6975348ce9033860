package domain

// StatusInputs are the signals DisplayStatus is derived from. FinalStatus
// and AnalysisSafetyFlag are empty when absent; AnalysisRequiresReview is
// nil when no analysis exists.
type StatusInputs struct {
	FinalStatus            string
	AnalysisSafetyFlag     string
	AnalysisRequiresReview *bool
}

// DeriveDisplayStatus merges the persisted human decision, the AI safety
// flag and the escalation signal into one canonical status. It is pure and
// recomputed on every read; list filtering, dashboard metrics and detail
// views must all call this same function.
//
// Precedence, first match wins:
//  1. a genuine human finalStatus (the legacy PROCESSED placeholder counts
//     as "no decision yet")
//  2. AI flag RISK
//  3. AI requires-supervisor-review
//  4. AI flag SAFE
//  5. PROCESSED
func DeriveDisplayStatus(in StatusInputs) string {
	if in.FinalStatus != "" && in.FinalStatus != StatusProcessed {
		return in.FinalStatus
	}
	if in.AnalysisSafetyFlag == FlagRisk {
		return StatusRisk
	}
	if in.AnalysisRequiresReview != nil && *in.AnalysisRequiresReview {
		return StatusFlaggedForReview
	}
	if in.AnalysisSafetyFlag == FlagSafe {
		return StatusSafe
	}
	return StatusProcessed
}

// DisplaySeverityRank orders statuses most-urgent-first for list views.
func DisplaySeverityRank(status string) int {
	switch status {
	case StatusRisk:
		return 0
	case StatusFlaggedForReview:
		return 1
	case StatusSafe:
		return 2
	default:
		return 3
	}
}
