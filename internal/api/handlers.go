package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pricescout/product-finder/internal/coordinator"
	"github.com/pricescout/product-finder/internal/history"
	"github.com/pricescout/product-finder/internal/models"
	"github.com/pricescout/product-finder/internal/session"
)

// Searcher runs one coordinated search.
type Searcher interface {
	Search(ctx context.Context, req coordinator.Request) models.SearchOutcome
}

// HistorySink persists and reads back completed searches.
type HistorySink interface {
	RecordSearch(ctx context.Context, sessionID string, outcome models.SearchOutcome) (uuid.UUID, error)
	Recent(ctx context.Context, sessionID string, limit int) ([]history.Record, error)
	SessionStats(ctx context.Context, sessionID string) (history.Stats, error)
}

// SessionStore tracks per-session search activity.
type SessionStore interface {
	Create(ctx context.Context, id string) (string, error)
	Get(ctx context.Context, id string) (*session.Session, error)
	RecordSearch(ctx context.Context, id string, searchID string) error
	Delete(ctx context.Context, id string) error
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Defaults are the search knobs applied when a request leaves them unset.
type Defaults struct {
	MaxResultsPerPlatform int
	Parallel              bool
}

type Handlers struct {
	searcher Searcher
	history  HistorySink
	sessions SessionStore
	db       Pinger
	cache    Pinger
	defaults Defaults
	logger   *slog.Logger
}

func NewHandlers(searcher Searcher, hist HistorySink, sessions SessionStore, db, cache Pinger, defaults Defaults, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	if defaults.MaxResultsPerPlatform <= 0 {
		defaults.MaxResultsPerPlatform = 10
	}
	return &Handlers{
		searcher: searcher,
		history:  hist,
		sessions: sessions,
		db:       db,
		cache:    cache,
		defaults: defaults,
		logger:   logger.With("component", "api"),
	}
}

// Routes wires the handlers onto a fresh router.
func (h *Handlers) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/health", h.Health)
	r.Route("/api", func(r chi.Router) {
		r.Post("/search", h.Search)
		r.Get("/history", h.GetHistory)
		r.Get("/history/stats", h.GetHistoryStats)
		r.Post("/sessions", h.CreateSession)
		r.Get("/sessions/{sessionID}", h.GetSession)
		r.Delete("/sessions/{sessionID}", h.DeleteSession)
	})

	return r
}

// SearchRequest is the body of POST /api/search.
type SearchRequest struct {
	Brand                 string   `json:"brand"`
	Model                 string   `json:"model"`
	MaxPrice              float64  `json:"max_price"`
	Platforms             []string `json:"platforms"`
	MaxResultsPerPlatform int      `json:"max_results_per_platform"`
	Parallel              *bool    `json:"parallel"`
	SessionID             string   `json:"session_id"`
}

// SearchResponse wraps the search outcome with the persistence ids.
type SearchResponse struct {
	models.SearchOutcome
	SearchID        string `json:"search_id,omitempty"`
	SessionID       string `json:"session_id,omitempty"`
	ExecutionTimeMS int64  `json:"execution_time_ms"`
}

// Search runs a coordinated product search across the requested platforms.
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	criteria, err := models.NewSearchCriteria(req.Brand, req.Model, req.MaxPrice)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	parallel := h.defaults.Parallel
	if req.Parallel != nil {
		parallel = *req.Parallel
	}
	maxResults := req.MaxResultsPerPlatform
	if maxResults <= 0 {
		maxResults = h.defaults.MaxResultsPerPlatform
	}

	platforms := make([]models.Platform, len(req.Platforms))
	for i, p := range req.Platforms {
		platforms[i] = models.Platform(p)
	}

	outcome := h.searcher.Search(r.Context(), coordinator.Request{
		Criteria:              criteria,
		Platforms:             platforms,
		MaxResultsPerPlatform: maxResults,
		Parallel:              parallel,
	})

	resp := SearchResponse{
		SearchOutcome:   outcome,
		ExecutionTimeMS: outcome.ExecutionTime.Milliseconds(),
	}
	resp.SessionID = h.persistSearch(r.Context(), req.SessionID, outcome, &resp)

	h.respondJSON(w, http.StatusOK, resp)
}

// persistSearch records the outcome in history and on the session, creating
// a session when the request carried none. All of it is best effort: a
// storage failure is logged, never surfaced as a search failure.
func (h *Handlers) persistSearch(ctx context.Context, sessionID string, outcome models.SearchOutcome, resp *SearchResponse) string {
	if h.sessions != nil && sessionID == "" {
		created, err := h.sessions.Create(ctx, "")
		if err != nil {
			h.logger.Warn("failed to create session", "error", err)
		} else {
			sessionID = created
		}
	}

	if h.history == nil {
		return sessionID
	}

	searchID, err := h.history.RecordSearch(ctx, sessionID, outcome)
	if err != nil {
		h.logger.Warn("failed to record search history", "error", err)
		return sessionID
	}
	resp.SearchID = searchID.String()

	if h.sessions == nil || sessionID == "" {
		return sessionID
	}
	if err := h.sessions.RecordSearch(ctx, sessionID, searchID.String()); err != nil {
		h.logger.Warn("failed to update session", "session_id", sessionID, "error", err)
	}
	return sessionID
}

// GetHistory returns recent searches, optionally scoped by ?session_id=.
func (h *Handlers) GetHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.respondError(w, http.StatusServiceUnavailable, "history is not configured")
		return
	}

	limit := 10
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			h.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	records, err := h.history.Recent(r.Context(), r.URL.Query().Get("session_id"), limit)
	if err != nil {
		h.logger.Error("failed to load history", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	if records == nil {
		records = []history.Record{}
	}

	h.respondJSON(w, http.StatusOK, records)
}

// GetHistoryStats returns aggregate search statistics, optionally scoped by
// ?session_id=.
func (h *Handlers) GetHistoryStats(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.respondError(w, http.StatusServiceUnavailable, "history is not configured")
		return
	}

	stats, err := h.history.SessionStats(r.Context(), r.URL.Query().Get("session_id"))
	if err != nil {
		h.logger.Error("failed to load search stats", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to load search stats")
		return
	}

	h.respondJSON(w, http.StatusOK, stats)
}

// CreateSessionRequest optionally pins the id of the new session.
type CreateSessionRequest struct {
	SessionID string `json:"session_id"`
}

func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	if h.sessions == nil {
		h.respondError(w, http.StatusServiceUnavailable, "sessions are not configured")
		return
	}

	var req CreateSessionRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	id, err := h.sessions.Create(r.Context(), req.SessionID)
	if err != nil {
		h.logger.Error("failed to create session", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	h.respondJSON(w, http.StatusCreated, map[string]string{"session_id": id})
}

func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	if h.sessions == nil {
		h.respondError(w, http.StatusServiceUnavailable, "sessions are not configured")
		return
	}

	id := chi.URLParam(r, "sessionID")
	sess, err := h.sessions.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			h.respondError(w, http.StatusNotFound, "session not found")
			return
		}
		h.logger.Error("failed to load session", "session_id", id, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to load session")
		return
	}

	h.respondJSON(w, http.StatusOK, sess)
}

func (h *Handlers) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if h.sessions == nil {
		h.respondError(w, http.StatusServiceUnavailable, "sessions are not configured")
		return
	}

	id := chi.URLParam(r, "sessionID")
	if err := h.sessions.Delete(r.Context(), id); err != nil {
		h.logger.Error("failed to delete session", "session_id", id, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to delete session")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Health reports reachability of the backing stores. A missing store is
// reported as "disabled", not as a failure.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := map[string]string{}

	checks["database"] = h.checkPinger(ctx, h.db)
	checks["redis"] = h.checkPinger(ctx, h.cache)

	overall := "ok"
	for _, state := range checks {
		if state == "unreachable" {
			overall = "degraded"
			status = http.StatusServiceUnavailable
		}
	}

	h.respondJSON(w, status, map[string]interface{}{
		"status": overall,
		"checks": checks,
	})
}

func (h *Handlers) checkPinger(ctx context.Context, p Pinger) string {
	if p == nil {
		return "disabled"
	}
	if err := p.Ping(ctx); err != nil {
		return "unreachable"
	}
	return "ok"
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
