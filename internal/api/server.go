package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/ajitpratap0/openclaw-sentinel/internal/digest"
	"github.com/ajitpratap0/openclaw-sentinel/internal/models"
	"github.com/ajitpratap0/openclaw-sentinel/internal/pipeline"
	"github.com/ajitpratap0/openclaw-sentinel/internal/store"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// Service is the orchestration surface the API triggers.
type Service interface {
	RunCycle(ctx context.Context, since time.Time) (*pipeline.CycleReport, error)
	ProcessAlerts(ctx context.Context) ([]models.Alert, error)
	BuildDigest(ctx context.Context, now time.Time) (*digest.Digest, error)
	Status(ctx context.Context) (*pipeline.Status, error)
}

// Server is an HTTP API server that exposes cycles, changes, alerts and the digest.
type Server struct {
	store       store.Store
	svc         Service
	logger      *slog.Logger
	authToken   string // empty = no auth required
	corsOrigins []string
}

// NewServer creates a new Server with the given dependencies. corsOrigins
// enables CORS for browser dashboards; nil leaves CORS off.
func NewServer(st store.Store, svc Service, logger *slog.Logger, authToken string, corsOrigins []string) *Server {
	return &Server{
		store:       st,
		svc:         svc,
		logger:      logger,
		authToken:   authToken,
		corsOrigins: corsOrigins,
	}
}

// Handler returns an http.Handler with all routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Probes and metrics: no auth required.
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /v1/status", s.auth(s.handleStatus))
	mux.HandleFunc("GET /v1/cycles", s.auth(s.handleListCycles))
	mux.HandleFunc("GET /v1/cycles/{id}", s.auth(s.handleGetCycle))
	mux.HandleFunc("POST /v1/cycles", s.auth(s.handleRunCycle))
	mux.HandleFunc("GET /v1/changes", s.auth(s.handleListChanges))
	mux.HandleFunc("GET /v1/changes/{id}", s.auth(s.handleGetChange))
	mux.HandleFunc("GET /v1/alerts", s.auth(s.handleListAlerts))
	mux.HandleFunc("POST /v1/alerts/process", s.auth(s.handleProcessAlerts))
	mux.HandleFunc("GET /v1/digest", s.auth(s.handleDigest))

	if len(s.corsOrigins) == 0 {
		return mux
	}
	return cors.New(cors.Options{
		AllowedOrigins:   s.corsOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
	}).Handler(mux)
}

// --- middleware ---

// auth wraps a handler with Bearer token authentication when authToken is set.
func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.authToken == "" {
			next(w, r)
			return
		}
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
			s.writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

// --- handlers ---

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.Warn("readiness check failed", "error", err)
		s.writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Status(r.Context())
	if err != nil {
		s.logger.Error("failed to get status", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get status")
		return
	}
	s.writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleListCycles(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cycles, err := s.store.ListCycles(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list cycles", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list cycles")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"cycles": nonNil(cycles)})
}

func (s *Server) handleGetCycle(w http.ResponseWriter, r *http.Request) {
	c, err := s.store.GetCycle(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "cycle not found")
			return
		}
		s.logger.Error("failed to get cycle", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get cycle")
		return
	}
	s.writeJSON(w, http.StatusOK, c)
}

// runCycleRequest is the optional body accepted by POST /v1/cycles.
type runCycleRequest struct {
	Since string `json:"since"`
}

func (s *Server) handleRunCycle(w http.ResponseWriter, r *http.Request) {
	var req runCycleRequest
	if r.ContentLength != 0 {
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	since, err := ParseSince(req.Since, time.Now().UTC())
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := s.svc.RunCycle(r.Context(), since)
	if err != nil {
		if errors.Is(err, pipeline.ErrAllSourcesFailed) && report != nil {
			s.writeJSON(w, http.StatusBadGateway, map[string]any{"error": "all sources failed", "cycle": report.Cycle})
			return
		}
		s.logger.Error("cycle failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "cycle failed")
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleListChanges(w http.ResponseWriter, r *http.Request) {
	filter, err := changeFilterFromQuery(r, time.Now().UTC())
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	changes, err := s.store.ListChanges(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list changes", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list changes")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"changes": nonNil(changes)})
}

func (s *Server) handleGetChange(w http.ResponseWriter, r *http.Request) {
	c, err := s.store.GetChange(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "change not found")
			return
		}
		s.logger.Error("failed to get change", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get change")
		return
	}
	s.writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := parseLimit(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter := store.HistoryFilter{Limit: limit, ChangeID: q.Get("change_id"), EntityID: q.Get("entity_id")}
	if v := q.Get("since"); v != "" {
		since, err := ParseSince(v, time.Now().UTC())
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Since = &since
	}
	if v := q.Get("type"); v != "" {
		et := models.EntityType(v)
		filter.EntityType = &et
	}
	history, err := s.store.ListAlertHistory(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list alerts", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"alerts": nonNil(history)})
}

func (s *Server) handleProcessAlerts(w http.ResponseWriter, r *http.Request) {
	sent, err := s.svc.ProcessAlerts(r.Context())
	if err != nil {
		s.logger.Error("failed to process alerts", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to process alerts")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"sent": len(sent), "alerts": nonNil(sent)})
}

func (s *Server) handleDigest(w http.ResponseWriter, r *http.Request) {
	d, err := s.svc.BuildDigest(r.Context(), time.Now().UTC())
	if err != nil {
		s.logger.Error("failed to build digest", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to build digest")
		return
	}
	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(d.Text))
		return
	}
	s.writeJSON(w, http.StatusOK, d)
}

// --- helpers ---

// changeFilterFromQuery reads since, min_score, unsent, type, cycle, order
// and limit from the query string.
func changeFilterFromQuery(r *http.Request, now time.Time) (store.ChangeFilter, error) {
	q := r.URL.Query()
	limit, err := parseLimit(r)
	if err != nil {
		return store.ChangeFilter{}, err
	}
	f := store.ChangeFilter{Limit: limit, CycleID: q.Get("cycle"), Order: store.OrderRecent}
	if v := q.Get("since"); v != "" {
		since, err := ParseSince(v, now)
		if err != nil {
			return f, err
		}
		f.Since = &since
	}
	if v := q.Get("min_score"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 100 {
			return f, errors.New("min_score must be an integer between 0 and 100")
		}
		f.MinScore = &n
	}
	if v := q.Get("unsent"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, errors.New("unsent must be a boolean")
		}
		f.UnsentOnly = b
	}
	if v := q.Get("type"); v != "" {
		et := models.EntityType(v)
		f.EntityType = &et
	}
	switch o := store.Order(q.Get("order")); o {
	case "":
	case store.OrderScore, store.OrderRecent:
		f.Order = o
	default:
		return f, errors.New("order must be score or recent")
	}
	return f, nil
}

// ParseSince accepts an RFC 3339 timestamp, a YYYY-MM-DD date or a Go
// duration meaning "that long ago". Empty yields the zero time.
func ParseSince(v string, now time.Time) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.DateOnly, v); err == nil {
		return t, nil
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return now.Add(-d), nil
	}
	return time.Time{}, errors.New("since must be RFC 3339, YYYY-MM-DD or a duration such as 72h")
}

func parseLimit(r *http.Request) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return defaultLimit, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	return min(n, maxLimit), nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// writeJSON encodes v as JSON and writes it to w with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(v); encErr != nil {
		s.logger.Error("failed to encode response", "error", encErr)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// Shutdown gracefully shuts down an http.Server with the given timeout.
// This is a convenience helper used by the serve command.
func Shutdown(srv *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return srv.Shutdown(ctx)
}
