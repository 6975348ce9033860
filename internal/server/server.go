// Package server exposes the supervisor-facing HTTP API.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tumainilabs/session_copilot/internal/analysis"
	"github.com/tumainilabs/session_copilot/internal/domain"
	"github.com/tumainilabs/session_copilot/internal/store"
)

const (
	supervisorHeader = "X-Supervisor-ID"
	maxNoteLen       = 1000
)

// Analyzer runs the review pipeline on one transcript.
type Analyzer interface {
	Analyze(ctx context.Context, transcriptText string) (domain.SessionAnalysis, error)
}

// Server holds handler dependencies.
type Server struct {
	store    *store.Store
	analyzer Analyzer
	log      *zap.SugaredLogger
}

func New(st *store.Store, analyzer Analyzer, log *zap.SugaredLogger) *Server {
	return &Server{store: st, analyzer: analyzer, log: log}
}

// Router builds the gin engine with all routes attached.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.log))

	r.GET("/healthcheck", s.healthcheck)

	api := r.Group("/api")
	api.GET("/sessions", s.listSessions)
	api.GET("/sessions/:id", s.sessionDetail)
	api.POST("/sessions/:id/analyze", s.analyzeSession)
	api.POST("/sessions/:id/review", s.submitReview)
	api.GET("/dashboard/metrics", s.dashboardMetrics)

	return r
}

func requestLogger(log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		fields := []interface{}{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		switch {
		case status >= 500:
			log.Errorw("HTTP request", fields...)
		case status >= 400:
			log.Warnw("HTTP request", fields...)
		default:
			log.Infow("HTTP request", fields...)
		}
	}
}

func (s *Server) healthcheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ownedSession authenticates the caller and loads the session, writing the
// error response itself when the check fails.
func (s *Server) ownedSession(c *gin.Context) (domain.Session, bool) {
	supervisorID := strings.TrimSpace(c.GetHeader(supervisorHeader))
	if supervisorID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing " + supervisorHeader + " header"})
		return domain.Session{}, false
	}

	session, err := s.store.GetSession(c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return domain.Session{}, false
	}
	if err != nil {
		s.log.Errorw("load session", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage failure"})
		return domain.Session{}, false
	}
	if session.SupervisorID != supervisorID {
		c.JSON(http.StatusForbidden, gin.H{"error": "session belongs to another supervisor"})
		return domain.Session{}, false
	}
	return session, true
}

// analyzeSession runs the pipeline once per session. A stored analysis is
// returned as-is without a model call; re-analysis replaces it only when a
// concurrent caller raced past the existence check, which converges through
// the upsert.
func (s *Server) analyzeSession(c *gin.Context) {
	session, ok := s.ownedSession(c)
	if !ok {
		return
	}

	if existing, err := s.store.GetAnalysis(session.ID); err == nil {
		c.JSON(http.StatusOK, gin.H{"analysis": existing, "cached": true})
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		s.log.Errorw("load analysis", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage failure"})
		return
	}

	result, err := s.analyzer.Analyze(c.Request.Context(), session.TranscriptText)
	if err != nil {
		var verr *analysis.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": verr.Error()})
			return
		}
		s.log.Errorw("analysis pipeline failed", "session_id", session.ID, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "analysis provider unavailable"})
		return
	}

	if err := s.store.UpsertAnalysis(session.ID, result); err != nil {
		s.log.Errorw("persist analysis", "session_id", session.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage failure"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"analysis": result, "cached": false})
}

type reviewRequest struct {
	Decision    string `json:"decision"`
	FinalStatus string `json:"finalStatus"`
	Note        string `json:"note"`
}

func (s *Server) submitReview(c *gin.Context) {
	session, ok := s.ownedSession(c)
	if !ok {
		return
	}

	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	req.Decision = domain.NormalizeStatus(req.Decision)
	req.FinalStatus = domain.NormalizeStatus(req.FinalStatus)
	if !domain.ValidDecision(req.Decision) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "decision must be VALIDATED, REJECTED or OVERRIDDEN"})
		return
	}
	if !domain.ValidFinalStatus(req.FinalStatus) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "finalStatus must be FLAGGED_FOR_REVIEW, SAFE or RISK"})
		return
	}
	if len(req.Note) > maxNoteLen {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "note exceeds 1000 characters"})
		return
	}
	if (req.Decision == domain.DecisionRejected || req.Decision == domain.DecisionOverridden) && strings.TrimSpace(req.Note) == "" {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "a note is required when rejecting or overriding"})
		return
	}

	review, err := s.store.SubmitReview(domain.Review{
		SessionID:    session.ID,
		SupervisorID: session.SupervisorID,
		Decision:     req.Decision,
		FinalStatus:  req.FinalStatus,
		Note:         req.Note,
	})
	if err != nil {
		s.log.Errorw("persist review", "session_id", session.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage failure"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"review": review})
}

func (s *Server) listSessions(c *gin.Context) {
	items, err := s.store.ListSessions(store.ListFilter{
		Status: c.Query("status"),
		Search: c.Query("search"),
	})
	if err != nil {
		s.log.Errorw("list sessions", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage failure"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": items})
}

// quoteHighlight locates one risk quote inside the transcript for the UI.
type quoteHighlight struct {
	Quote string `json:"quote"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

func highlightQuotes(transcript string, quotes []string) []quoteHighlight {
	highlights := make([]quoteHighlight, 0, len(quotes))
	for _, quote := range quotes {
		idx := strings.Index(transcript, quote)
		if idx < 0 {
			continue
		}
		highlights = append(highlights, quoteHighlight{Quote: quote, Start: idx, End: idx + len(quote)})
	}
	return highlights
}

func (s *Server) sessionDetail(c *gin.Context) {
	session, err := s.store.GetSession(c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	if err != nil {
		s.log.Errorw("load session", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage failure"})
		return
	}

	resp := gin.H{"session": session}
	inputs := domain.StatusInputs{FinalStatus: session.FinalStatus}

	if a, err := s.store.GetAnalysis(session.ID); err == nil {
		resp["analysis"] = a
		resp["riskHighlights"] = highlightQuotes(session.TranscriptText, a.RiskDetection.ExtractedQuotes)
		inputs.AnalysisSafetyFlag = a.RiskDetection.Flag
		inputs.AnalysisRequiresReview = &a.RiskDetection.RequiresSupervisorReview
	} else if !errors.Is(err, store.ErrNotFound) {
		s.log.Errorw("load analysis", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage failure"})
		return
	}

	if r, err := s.store.GetReview(session.ID); err == nil {
		resp["review"] = r
	} else if !errors.Is(err, store.ErrNotFound) {
		s.log.Errorw("load review", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage failure"})
		return
	}

	resp["displayStatus"] = domain.DeriveDisplayStatus(inputs)
	c.JSON(http.StatusOK, resp)
}

func (s *Server) dashboardMetrics(c *gin.Context) {
	m, err := s.store.Metrics(time.Now())
	if err != nil {
		s.log.Errorw("dashboard metrics", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage failure"})
		return
	}
	c.JSON(http.StatusOK, m)
}
