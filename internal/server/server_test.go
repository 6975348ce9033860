package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tumainilabs/session_copilot/internal/analysis"
	"github.com/tumainilabs/session_copilot/internal/domain"
	"github.com/tumainilabs/session_copilot/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeAnalyzer struct {
	mu     sync.Mutex
	calls  int
	result domain.SessionAnalysis
	err    error
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, transcriptText string) (domain.SessionAnalysis, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return domain.SessionAnalysis{}, f.err
	}
	return f.result, nil
}

func (f *fakeAnalyzer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func safeAnalysis() domain.SessionAnalysis {
	return domain.SessionAnalysis{
		SessionSummary: "The session opened well. Content was covered. It closed warmly.",
		ContentCoverage: domain.ScoredMetric{
			Score: 3, Rating: domain.RatingComplete,
			Justification:  "Curriculum content was fully present.",
			EvidenceQuotes: []string{"welcome everyone"},
		},
		FacilitationQuality: domain.ScoredMetric{
			Score: 3, Rating: domain.RatingExcellent,
			Justification:  "Warm and inviting facilitation style.",
			EvidenceQuotes: []string{"welcome everyone"},
		},
		ProtocolSafety: domain.ScoredMetric{
			Score: 3, Rating: domain.RatingAdherent,
			Justification:  "No protocol drift occurred in session.",
			EvidenceQuotes: []string{"glad to be here"},
		},
		RiskDetection: domain.RiskDetection{
			Flag:            domain.FlagSafe,
			Rationale:       "No safety concerns surfaced here.",
			ExtractedQuotes: []string{},
		},
		Meta: domain.AnalysisMeta{
			Model:                 "gpt-4o-mini",
			PromptVersion:         "session-analysis-v2",
			GeneratedAtUTC:        "2026-08-20T09:05:00Z",
			TranscriptWindowCount: 1,
		},
	}
}

type testEnv struct {
	store    *store.Store
	analyzer *fakeAnalyzer
	router   *gin.Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "copilot.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	fa := &fakeAnalyzer{result: safeAnalysis()}
	srv := New(st, fa, zap.NewNop().Sugar())
	return &testEnv{store: st, analyzer: fa, router: srv.Router()}
}

func (e *testEnv) seedSession(t *testing.T, id, supervisorID string) {
	t.Helper()
	err := e.store.CreateSession(domain.Session{
		ID:             id,
		SupervisorID:   supervisorID,
		FellowName:     "Amina Odhiambo",
		GroupID:        "group-7",
		OccurredAtUTC:  "2026-08-20T09:00:00Z",
		TranscriptText: "Facilitator: welcome everyone.\n\nStudent: glad to be here.",
	})
	if err != nil {
		t.Fatalf("seed session: %v", err)
	}
}

func (e *testEnv) do(method, path, supervisorID string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if supervisorID != "" {
		req.Header.Set(supervisorHeader, supervisorID)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestHealthcheck(t *testing.T) {
	env := newTestEnv(t)
	if w := env.do(http.MethodGet, "/healthcheck", "", nil); w.Code != http.StatusOK {
		t.Fatalf("healthcheck status %d", w.Code)
	}
}

func TestAnalyzeAuth(t *testing.T) {
	env := newTestEnv(t)
	env.seedSession(t, "sess-1", "sup-1")

	if w := env.do(http.MethodPost, "/api/sessions/sess-1/analyze", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("missing header: status %d", w.Code)
	}
	if w := env.do(http.MethodPost, "/api/sessions/missing/analyze", "sup-1", nil); w.Code != http.StatusNotFound {
		t.Fatalf("unknown session: status %d", w.Code)
	}
	if w := env.do(http.MethodPost, "/api/sessions/sess-1/analyze", "sup-2", nil); w.Code != http.StatusForbidden {
		t.Fatalf("foreign session: status %d", w.Code)
	}
	if env.analyzer.callCount() != 0 {
		t.Fatalf("auth failures must not reach the pipeline")
	}
}

func TestAnalyzeIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	env.seedSession(t, "sess-1", "sup-1")

	first := env.do(http.MethodPost, "/api/sessions/sess-1/analyze", "sup-1", nil)
	if first.Code != http.StatusOK {
		t.Fatalf("first analyze: status %d body %s", first.Code, first.Body)
	}
	second := env.do(http.MethodPost, "/api/sessions/sess-1/analyze", "sup-1", nil)
	if second.Code != http.StatusOK {
		t.Fatalf("second analyze: status %d", second.Code)
	}
	if env.analyzer.callCount() != 1 {
		t.Fatalf("expected 1 pipeline run, got %d", env.analyzer.callCount())
	}

	var resp struct {
		Cached bool `json:"cached"`
	}
	if err := json.Unmarshal(second.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Cached {
		t.Fatalf("second analyze must report the cached analysis")
	}
}

func TestAnalyzeConcurrentCallsConverge(t *testing.T) {
	env := newTestEnv(t)
	env.seedSession(t, "sess-1", "sup-1")

	var wg sync.WaitGroup
	codes := make([]int, 2)
	for i := range codes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i] = env.do(http.MethodPost, "/api/sessions/sess-1/analyze", "sup-1", nil).Code
		}(i)
	}
	wg.Wait()

	for i, code := range codes {
		if code != http.StatusOK {
			t.Fatalf("call %d: status %d", i, code)
		}
	}
	if _, err := env.store.GetAnalysis("sess-1"); err != nil {
		t.Fatalf("expected one persisted analysis: %v", err)
	}
}

func TestAnalyzeErrorMapping(t *testing.T) {
	env := newTestEnv(t)
	env.seedSession(t, "sess-1", "sup-1")
	env.analyzer.err = &analysis.ValidationError{Attempts: 2, LastReason: "format:sessionSummary too short"}

	if w := env.do(http.MethodPost, "/api/sessions/sess-1/analyze", "sup-1", nil); w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("validation failure: status %d", w.Code)
	}
	if _, err := env.store.GetAnalysis("sess-1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("failed analysis must not persist")
	}

	env.analyzer.err = errors.New("dial tcp: connection refused")
	if w := env.do(http.MethodPost, "/api/sessions/sess-1/analyze", "sup-1", nil); w.Code != http.StatusBadGateway {
		t.Fatalf("transport failure: status %d", w.Code)
	}
}

func TestReviewNoteRules(t *testing.T) {
	env := newTestEnv(t)
	env.seedSession(t, "sess-1", "sup-1")

	w := env.do(http.MethodPost, "/api/sessions/sess-1/review", "sup-1", map[string]string{
		"decision":    "REJECTED",
		"finalStatus": "SAFE",
		"note":        "   ",
	})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("rejected without note: status %d", w.Code)
	}
	if _, err := env.store.GetReview("sess-1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("invalid review must not persist")
	}

	w = env.do(http.MethodPost, "/api/sessions/sess-1/review", "sup-1", map[string]string{
		"decision":    "VALIDATED",
		"finalStatus": "SAFE",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("validated without note: status %d body %s", w.Code, w.Body)
	}

	session, err := env.store.GetSession("sess-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if session.FinalStatus != domain.StatusSafe {
		t.Fatalf("final status not applied, got %q", session.FinalStatus)
	}
}

func TestReviewValidation(t *testing.T) {
	env := newTestEnv(t)
	env.seedSession(t, "sess-1", "sup-1")

	longNote := make([]byte, maxNoteLen+1)
	for i := range longNote {
		longNote[i] = 'x'
	}

	cases := []map[string]string{
		{"decision": "MAYBE", "finalStatus": "SAFE"},
		{"decision": "VALIDATED", "finalStatus": "PROCESSED"},
		{"decision": "VALIDATED", "finalStatus": "SAFE", "note": string(longNote)},
	}
	for i, body := range cases {
		if w := env.do(http.MethodPost, "/api/sessions/sess-1/review", "sup-1", body); w.Code != http.StatusUnprocessableEntity {
			t.Fatalf("case %d: status %d", i, w.Code)
		}
	}
}

func TestListSessionsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.seedSession(t, "sess-1", "sup-1")
	env.seedSession(t, "sess-2", "sup-1")

	risk := safeAnalysis()
	risk.RiskDetection = domain.RiskDetection{
		Flag:                     domain.FlagRisk,
		Rationale:                "Concerning language detected here.",
		ExtractedQuotes:          []string{"glad to be here"},
		RequiresSupervisorReview: true,
	}
	if err := env.store.UpsertAnalysis("sess-2", risk); err != nil {
		t.Fatalf("UpsertAnalysis: %v", err)
	}

	w := env.do(http.MethodGet, "/api/sessions?status=RISK", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list: status %d", w.Code)
	}
	var resp struct {
		Sessions []store.SessionListItem `json:"sessions"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(resp.Sessions) != 1 || resp.Sessions[0].ID != "sess-2" {
		t.Fatalf("status filter mismatch: %+v", resp.Sessions)
	}
}

func TestSessionDetail(t *testing.T) {
	env := newTestEnv(t)
	env.seedSession(t, "sess-1", "sup-1")

	risk := safeAnalysis()
	risk.RiskDetection = domain.RiskDetection{
		Flag:                     domain.FlagRisk,
		Rationale:                "Concerning language detected here.",
		ExtractedQuotes:          []string{"glad to be here"},
		RequiresSupervisorReview: true,
	}
	if err := env.store.UpsertAnalysis("sess-1", risk); err != nil {
		t.Fatalf("UpsertAnalysis: %v", err)
	}

	w := env.do(http.MethodGet, "/api/sessions/sess-1", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("detail: status %d", w.Code)
	}
	var resp struct {
		DisplayStatus  string           `json:"displayStatus"`
		RiskHighlights []quoteHighlight `json:"riskHighlights"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode detail: %v", err)
	}
	if resp.DisplayStatus != domain.StatusRisk {
		t.Fatalf("displayStatus got %q", resp.DisplayStatus)
	}
	if len(resp.RiskHighlights) != 1 || resp.RiskHighlights[0].Quote != "glad to be here" {
		t.Fatalf("riskHighlights mismatch: %+v", resp.RiskHighlights)
	}
	if resp.RiskHighlights[0].End-resp.RiskHighlights[0].Start != len("glad to be here") {
		t.Fatalf("highlight span mismatch: %+v", resp.RiskHighlights[0])
	}

	if w := env.do(http.MethodGet, "/api/sessions/missing", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("missing detail: status %d", w.Code)
	}
}

func TestDashboardMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.seedSession(t, "sess-1", "sup-1")

	risk := safeAnalysis()
	risk.RiskDetection = domain.RiskDetection{
		Flag:                     domain.FlagRisk,
		Rationale:                "Concerning language detected here.",
		ExtractedQuotes:          []string{"glad to be here"},
		RequiresSupervisorReview: true,
	}
	if err := env.store.UpsertAnalysis("sess-1", risk); err != nil {
		t.Fatalf("UpsertAnalysis: %v", err)
	}

	w := env.do(http.MethodGet, "/api/dashboard/metrics", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("metrics: status %d", w.Code)
	}
	var m store.DashboardMetrics
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode metrics: %v", err)
	}
	if m.RiskCount != 1 || m.SessionsNeedingReview != 1 {
		t.Fatalf("metrics mismatch: %+v", m)
	}
}
