// Package analysis runs the transcript review pipeline: sample, prompt,
// call the model under a strict output contract, verify the result, then
// apply the deterministic safety backstop and escalation heuristic.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tumainilabs/session_copilot/internal/domain"
	"github.com/tumainilabs/session_copilot/internal/openai"
	"github.com/tumainilabs/session_copilot/internal/prompt"
	"github.com/tumainilabs/session_copilot/internal/risk"
	"github.com/tumainilabs/session_copilot/internal/sampler"
)

const maxValidationAttempts = 2

// ValidationError is the terminal failure of the validation loop: the model
// could not produce contract-conforming output within the attempt budget.
// Callers must treat it as "no analysis", never as a SAFE result.
type ValidationError struct {
	Attempts   int
	LastReason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("AI output failed schema validation after %d attempts: %s", e.Attempts, e.LastReason)
}

// Service is the analysis pipeline with explicitly constructed dependencies.
type Service struct {
	llm     openai.Generator
	sampler *sampler.Sampler
	matcher risk.Matcher
	log     *zap.SugaredLogger
}

// NewService wires the pipeline. matcher is shared with the sampler so the
// backstop scans for exactly the lexicon sampling preserves.
func NewService(llm openai.Generator, s *sampler.Sampler, matcher risk.Matcher, log *zap.SugaredLogger) *Service {
	return &Service{llm: llm, sampler: s, matcher: matcher, log: log}
}

// Analyze reviews one transcript. On success the returned analysis already
// includes the backstop override and escalation heuristic; there is no
// partial or best-effort result on failure.
func (s *Service) Analyze(ctx context.Context, transcriptText string) (domain.SessionAnalysis, error) {
	started := time.Now()
	sample := s.sampler.Sample(transcriptText)
	s.log.Debugw("transcript sampled",
		"chars_sent", sample.CharsSent,
		"truncated", sample.Truncated,
		"windows", sample.WindowCount,
		"risk_lines", sample.RiskLinesIncluded,
	)

	lastReason := "invalid AI output"
	var lastErr error

	for attempt := 1; attempt <= maxValidationAttempts; attempt++ {
		p := prompt.BuildAnalysisPrompt(sample.Text, attempt > 1)

		content, err := s.llm.GenerateAnalysis(ctx, p.SystemPrompt, p.UserPrompt)
		if err != nil {
			lastReason = err.Error()
			lastErr = err
			s.log.Warnw("model call failed", "attempt", attempt, "error", err)
			continue
		}
		lastErr = nil

		var out llmOutput
		if err := json.Unmarshal([]byte(content), &out); err != nil {
			lastReason = fmt.Sprintf("parse error: %v", err)
			s.log.Warnw("model output unparseable", "attempt", attempt, "error", err)
			continue
		}

		if violations := validateLLMOutput(out, sample.Text); len(violations) > 0 {
			lastReason = strings.Join(violations, "; ")
			s.log.Warnw("model output violated contract", "attempt", attempt, "violations", len(violations))
			continue
		}

		result := domain.SessionAnalysis{
			SessionSummary:      out.SessionSummary,
			ContentCoverage:     out.ContentCoverage,
			FacilitationQuality: out.FacilitationQuality,
			ProtocolSafety:      out.ProtocolSafety,
			RiskDetection:       out.RiskDetection,
			Meta: domain.AnalysisMeta{
				Model:                       s.llm.Model(),
				PromptVersion:               prompt.Version,
				GeneratedAtUTC:              time.Now().UTC().Format(time.RFC3339),
				LatencyMs:                   time.Since(started).Milliseconds(),
				TranscriptCharsSent:         sample.CharsSent,
				TranscriptWasTruncated:      sample.Truncated,
				TranscriptWindowCount:       sample.WindowCount,
				TranscriptRiskLinesIncluded: sample.RiskLinesIncluded,
			},
		}

		if overridden := applyBackstop(&result, transcriptText, s.matcher); overridden {
			s.log.Infow("backstop escalated model SAFE verdict",
				"quotes", len(result.RiskDetection.ExtractedQuotes),
			)
		}
		applyEscalation(&result)

		return result, nil
	}

	if lastErr != nil {
		return domain.SessionAnalysis{}, fmt.Errorf("model call failed after %d attempts: %w", maxValidationAttempts, lastErr)
	}
	return domain.SessionAnalysis{}, &ValidationError{Attempts: maxValidationAttempts, LastReason: lastReason}
}
