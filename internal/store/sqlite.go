// Package store persists sessions, analyses and reviews in SQLite. Display
// status is never stored; every read derives it through domain.DeriveDisplayStatus
// so list views, detail views and dashboard metrics can never disagree.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tumainilabs/session_copilot/internal/domain"
)

// ErrNotFound is returned when a session, analysis or review does not exist.
var ErrNotFound = errors.New("not found")

const createSessionsTableSQL = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	supervisor_id TEXT NOT NULL,
	fellow_name TEXT NOT NULL,
	group_id TEXT NOT NULL,
	occurred_at_utc TEXT NOT NULL,
	transcript_text TEXT NOT NULL,
	final_status TEXT
)`

const createAnalysesTableSQL = `
CREATE TABLE IF NOT EXISTS analyses (
	session_id TEXT PRIMARY KEY,
	result_json TEXT NOT NULL,
	safety_flag TEXT NOT NULL,
	risk_quotes_json TEXT NOT NULL,
	requires_supervisor_review INTEGER NOT NULL,
	model TEXT NOT NULL,
	prompt_version TEXT NOT NULL,
	latency_ms INTEGER NOT NULL,
	transcript_chars_sent INTEGER NOT NULL,
	transcript_was_truncated INTEGER NOT NULL,
	window_count INTEGER NOT NULL,
	risk_lines_included INTEGER NOT NULL,
	generated_at_utc TEXT NOT NULL
)`

const createReviewsTableSQL = `
CREATE TABLE IF NOT EXISTS reviews (
	session_id TEXT PRIMARY KEY,
	supervisor_id TEXT NOT NULL,
	decision TEXT NOT NULL,
	final_status TEXT NOT NULL,
	note TEXT NOT NULL,
	updated_at_utc TEXT NOT NULL
)`

var createIndexesSQL = []string{
	`CREATE INDEX IF NOT EXISTS idx_sessions_supervisor ON sessions(supervisor_id)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_occurred_at ON sessions(occurred_at_utc)`,
	`CREATE INDEX IF NOT EXISTS idx_analyses_safety_flag ON analyses(safety_flag, requires_supervisor_review)`,
	`CREATE INDEX IF NOT EXISTS idx_reviews_updated_at ON reviews(updated_at_utc)`,
}

const insertSessionSQL = `
INSERT INTO sessions (
	id,
	supervisor_id,
	fellow_name,
	group_id,
	occurred_at_utc,
	transcript_text,
	final_status
) VALUES (?, ?, ?, ?, ?, ?, ?)`

const selectSessionSQL = `
SELECT id, supervisor_id, fellow_name, group_id, occurred_at_utc, transcript_text, final_status
FROM sessions WHERE id = ?`

const upsertAnalysisSQL = `
INSERT INTO analyses (
	session_id,
	result_json,
	safety_flag,
	risk_quotes_json,
	requires_supervisor_review,
	model,
	prompt_version,
	latency_ms,
	transcript_chars_sent,
	transcript_was_truncated,
	window_count,
	risk_lines_included,
	generated_at_utc
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(session_id) DO UPDATE SET
	result_json = excluded.result_json,
	safety_flag = excluded.safety_flag,
	risk_quotes_json = excluded.risk_quotes_json,
	requires_supervisor_review = excluded.requires_supervisor_review,
	model = excluded.model,
	prompt_version = excluded.prompt_version,
	latency_ms = excluded.latency_ms,
	transcript_chars_sent = excluded.transcript_chars_sent,
	transcript_was_truncated = excluded.transcript_was_truncated,
	window_count = excluded.window_count,
	risk_lines_included = excluded.risk_lines_included,
	generated_at_utc = excluded.generated_at_utc`

const selectAnalysisSQL = `
SELECT result_json, safety_flag, requires_supervisor_review
FROM analyses WHERE session_id = ?`

const upsertReviewSQL = `
INSERT INTO reviews (
	session_id,
	supervisor_id,
	decision,
	final_status,
	note,
	updated_at_utc
) VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(session_id) DO UPDATE SET
	supervisor_id = excluded.supervisor_id,
	decision = excluded.decision,
	final_status = excluded.final_status,
	note = excluded.note,
	updated_at_utc = excluded.updated_at_utc`

const updateSessionFinalStatusSQL = `UPDATE sessions SET final_status = ? WHERE id = ?`

const selectReviewSQL = `
SELECT session_id, supervisor_id, decision, final_status, note, updated_at_utc
FROM reviews WHERE session_id = ?`

const selectSessionRowsSQL = `
SELECT
	s.id,
	s.supervisor_id,
	s.fellow_name,
	s.group_id,
	s.occurred_at_utc,
	s.final_status,
	a.safety_flag,
	a.requires_supervisor_review,
	r.updated_at_utc
FROM sessions s
LEFT JOIN analyses a ON a.session_id = s.id
LEFT JOIN reviews r ON r.session_id = s.id`

// Store is the SQLite-backed persistence layer.
type Store struct {
	db *sql.DB
}

// Open creates the database file (and parent directory) if needed and
// ensures the schema.
func Open(dbPath string) (*Store, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(10000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func ensureSchema(db *sql.DB) error {
	for _, stmt := range []string{createSessionsTableSQL, createAnalysesTableSQL, createReviewsTableSQL} {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	for _, stmt := range createIndexesSQL {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

// CreateSession inserts a new session. The transcript is immutable after this.
func (s *Store) CreateSession(session domain.Session) error {
	var finalStatus any
	if session.FinalStatus != "" {
		finalStatus = session.FinalStatus
	}
	if _, err := s.db.Exec(
		insertSessionSQL,
		session.ID,
		session.SupervisorID,
		strings.TrimSpace(session.FellowName),
		strings.TrimSpace(session.GroupID),
		session.OccurredAtUTC,
		session.TranscriptText,
		finalStatus,
	); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSession returns one session including its transcript.
func (s *Store) GetSession(id string) (domain.Session, error) {
	var session domain.Session
	var finalStatus sql.NullString
	err := s.db.QueryRow(selectSessionSQL, id).Scan(
		&session.ID,
		&session.SupervisorID,
		&session.FellowName,
		&session.GroupID,
		&session.OccurredAtUTC,
		&session.TranscriptText,
		&finalStatus,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, ErrNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("select session: %w", err)
	}
	session.FinalStatus = finalStatus.String
	return session, nil
}

// UpsertAnalysis replaces the session analysis wholesale. Denormalized
// columns exist for filtering only; result_json is canonical.
func (s *Store) UpsertAnalysis(sessionID string, analysis domain.SessionAnalysis) error {
	resultJSON, err := json.Marshal(analysis)
	if err != nil {
		return fmt.Errorf("marshal analysis: %w", err)
	}
	quotesJSON, err := json.Marshal(analysis.RiskDetection.ExtractedQuotes)
	if err != nil {
		return fmt.Errorf("marshal risk quotes: %w", err)
	}
	if _, err := s.db.Exec(
		upsertAnalysisSQL,
		sessionID,
		string(resultJSON),
		analysis.RiskDetection.Flag,
		string(quotesJSON),
		boolToInt(analysis.RiskDetection.RequiresSupervisorReview),
		analysis.Meta.Model,
		analysis.Meta.PromptVersion,
		analysis.Meta.LatencyMs,
		analysis.Meta.TranscriptCharsSent,
		boolToInt(analysis.Meta.TranscriptWasTruncated),
		analysis.Meta.TranscriptWindowCount,
		analysis.Meta.TranscriptRiskLinesIncluded,
		analysis.Meta.GeneratedAtUTC,
	); err != nil {
		return fmt.Errorf("upsert analysis: %w", err)
	}
	return nil
}

// GetAnalysis returns the stored analysis for a session. Rows persisted
// before the escalation signal existed get requiresSupervisorReview forced
// to true on read when the flag is RISK.
func (s *Store) GetAnalysis(sessionID string) (domain.SessionAnalysis, error) {
	var resultJSON, safetyFlag string
	var requiresReview int
	err := s.db.QueryRow(selectAnalysisSQL, sessionID).Scan(&resultJSON, &safetyFlag, &requiresReview)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SessionAnalysis{}, ErrNotFound
	}
	if err != nil {
		return domain.SessionAnalysis{}, fmt.Errorf("select analysis: %w", err)
	}
	var analysis domain.SessionAnalysis
	if err := json.Unmarshal([]byte(resultJSON), &analysis); err != nil {
		return domain.SessionAnalysis{}, fmt.Errorf("unmarshal analysis: %w", err)
	}
	if analysis.RiskDetection.Flag == domain.FlagRisk {
		analysis.RiskDetection.RequiresSupervisorReview = true
	}
	return analysis, nil
}

// SubmitReview stores the supervisor decision and the session final status
// in one transaction. Resubmitting replaces the previous review.
func (s *Store) SubmitReview(review domain.Review) (domain.Review, error) {
	if !domain.ValidDecision(review.Decision) {
		return domain.Review{}, fmt.Errorf("unknown decision %q", review.Decision)
	}
	if !domain.ValidFinalStatus(review.FinalStatus) {
		return domain.Review{}, fmt.Errorf("unknown final status %q", review.FinalStatus)
	}
	if strings.TrimSpace(review.UpdatedAtUTC) == "" {
		review.UpdatedAtUTC = time.Now().UTC().Format(time.RFC3339)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return domain.Review{}, fmt.Errorf("begin review tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(updateSessionFinalStatusSQL, review.FinalStatus, review.SessionID)
	if err != nil {
		return domain.Review{}, fmt.Errorf("update session final status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Review{}, fmt.Errorf("update session final status: %w", err)
	}
	if affected == 0 {
		return domain.Review{}, ErrNotFound
	}

	if _, err := tx.Exec(
		upsertReviewSQL,
		review.SessionID,
		review.SupervisorID,
		review.Decision,
		review.FinalStatus,
		strings.TrimSpace(review.Note),
		review.UpdatedAtUTC,
	); err != nil {
		return domain.Review{}, fmt.Errorf("upsert review: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.Review{}, fmt.Errorf("commit review tx: %w", err)
	}
	return review, nil
}

// GetReview returns the stored supervisor review for a session.
func (s *Store) GetReview(sessionID string) (domain.Review, error) {
	var review domain.Review
	err := s.db.QueryRow(selectReviewSQL, sessionID).Scan(
		&review.SessionID,
		&review.SupervisorID,
		&review.Decision,
		&review.FinalStatus,
		&review.Note,
		&review.UpdatedAtUTC,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Review{}, ErrNotFound
	}
	if err != nil {
		return domain.Review{}, fmt.Errorf("select review: %w", err)
	}
	return review, nil
}

// SessionListItem is one row of the session list, transcript omitted.
type SessionListItem struct {
	ID            string `json:"id"`
	SupervisorID  string `json:"supervisorId"`
	FellowName    string `json:"fellowName"`
	GroupID       string `json:"groupId"`
	OccurredAtUTC string `json:"occurredAt"`
	DisplayStatus string `json:"displayStatus"`
	HasAnalysis   bool   `json:"hasAnalysis"`
	HasReview     bool   `json:"hasReview"`
}

// ListFilter narrows the session list. Empty fields mean "no filter".
type ListFilter struct {
	Status string
	Search string
}

// ListSessions returns sessions most-urgent-first (RISK, FLAGGED_FOR_REVIEW,
// SAFE, PROCESSED), newest-first within a severity band. Status filtering
// happens on the derived status, not stored columns.
func (s *Store) ListSessions(filter ListFilter) ([]SessionListItem, error) {
	rows, err := s.sessionRows()
	if err != nil {
		return nil, err
	}

	wantStatus := domain.NormalizeStatus(filter.Status)
	search := strings.ToLower(strings.TrimSpace(filter.Search))

	items := make([]SessionListItem, 0, len(rows))
	for _, row := range rows {
		if wantStatus != "" && row.displayStatus != wantStatus {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(row.fellowName), search) &&
			!strings.Contains(strings.ToLower(row.groupID), search) {
			continue
		}
		items = append(items, SessionListItem{
			ID:            row.id,
			SupervisorID:  row.supervisorID,
			FellowName:    row.fellowName,
			GroupID:       row.groupID,
			OccurredAtUTC: row.occurredAtUTC,
			DisplayStatus: row.displayStatus,
			HasAnalysis:   row.hasAnalysis,
			HasReview:     row.hasReview,
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		ri, rj := domain.DisplaySeverityRank(items[i].DisplayStatus), domain.DisplaySeverityRank(items[j].DisplayStatus)
		if ri != rj {
			return ri < rj
		}
		return items[i].OccurredAtUTC > items[j].OccurredAtUTC
	})
	return items, nil
}

// DashboardMetrics summarizes the supervisor workload.
type DashboardMetrics struct {
	RiskCount             int `json:"riskCount"`
	SessionsNeedingReview int `json:"sessionsNeedingReview"`
	ReviewedToday         int `json:"reviewedToday"`
	TodayTotal            int `json:"todayTotal"`
}

// Metrics computes dashboard counts from the same derived status the list
// uses. "Today" is the UTC calendar day.
func (s *Store) Metrics(now time.Time) (DashboardMetrics, error) {
	rows, err := s.sessionRows()
	if err != nil {
		return DashboardMetrics{}, err
	}

	today := now.UTC().Format("2006-01-02")
	var m DashboardMetrics
	for _, row := range rows {
		switch row.displayStatus {
		case domain.StatusRisk:
			m.RiskCount++
			m.SessionsNeedingReview++
		case domain.StatusFlaggedForReview:
			m.SessionsNeedingReview++
		}
		if row.hasReview && strings.HasPrefix(row.reviewUpdatedAtUTC, today) {
			m.ReviewedToday++
		}
		if strings.HasPrefix(row.occurredAtUTC, today) {
			m.TodayTotal++
		}
	}
	return m, nil
}

type sessionRow struct {
	id                 string
	supervisorID       string
	fellowName         string
	groupID            string
	occurredAtUTC      string
	displayStatus      string
	hasAnalysis        bool
	hasReview          bool
	reviewUpdatedAtUTC string
}

func (s *Store) sessionRows() ([]sessionRow, error) {
	rows, err := s.db.Query(selectSessionRowsSQL)
	if err != nil {
		return nil, fmt.Errorf("select session rows: %w", err)
	}
	defer rows.Close()

	var out []sessionRow
	for rows.Next() {
		var row sessionRow
		var finalStatus, safetyFlag, reviewUpdatedAt sql.NullString
		var requiresReview sql.NullInt64
		if err := rows.Scan(
			&row.id,
			&row.supervisorID,
			&row.fellowName,
			&row.groupID,
			&row.occurredAtUTC,
			&finalStatus,
			&safetyFlag,
			&requiresReview,
			&reviewUpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}

		inputs := domain.StatusInputs{
			FinalStatus:        finalStatus.String,
			AnalysisSafetyFlag: safetyFlag.String,
		}
		if requiresReview.Valid {
			v := requiresReview.Int64 != 0
			if safetyFlag.String == domain.FlagRisk {
				v = true
			}
			inputs.AnalysisRequiresReview = &v
		}
		row.displayStatus = domain.DeriveDisplayStatus(inputs)
		row.hasAnalysis = safetyFlag.Valid
		row.hasReview = reviewUpdatedAt.Valid
		row.reviewUpdatedAtUTC = reviewUpdatedAt.String
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session rows: %w", err)
	}
	return out, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
