// Package ops exposes the internal HTTP surface: manual sync triggers, test
// notifications, and the store/insight read models the dashboard consumes.
// It is not the public API; it binds on an internal port and carries no
// auth of its own.
package ops

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"salespulse/internal/types"
)

// Service is the operations surface the server fronts. Implemented by
// scheduler.Ops.
type Service interface {
	TriggerSync(ctx context.Context, storeID string) (cycleID string, err error)
	SendTestNotification(ctx context.Context, userID string, channel types.ChannelType) (insightID string, enqueued int, err error)
	StoreStatuses(ctx context.Context) ([]*types.StoreStatusView, error)
	RecentInsights(ctx context.Context, storeID string, limit int) ([]*types.Insight, error)
	DispatchCounts(ctx context.Context) (map[types.DispatchStatus]int64, error)
}

// Pinger reports backing-store health for the health endpoint. Implemented
// by pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the internal HTTP server.
type Server struct {
	service  Service
	db       Pinger
	router   chi.Router
	validate *validator.Validate
	logger   types.Logger
}

// NewServer builds the server and mounts its routes.
func NewServer(service Service, db Pinger, logger types.Logger) *Server {
	s := &Server{
		service:  service,
		db:       db,
		router:   chi.NewRouter(),
		validate: validator.New(),
		logger:   logger,
	}
	s.mountRoutes()
	return s
}

// ServeHTTP makes the server an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) mountRoutes() {
	s.router.Use(s.recoverer)
	s.router.Use(s.traceMiddleware)
	s.router.Use(s.requestLogger)

	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/internal", func(r chi.Router) {
		r.Post("/stores/{storeID}/sync", s.handleTriggerSync)
		r.Post("/users/{userID}/test-notification", s.handleTestNotification)
		r.Get("/stores/status", s.handleStoreStatuses)
		r.Get("/stores/{storeID}/insights", s.handleRecentInsights)
		r.Get("/dispatches/status", s.handleDispatchCounts)
	})
}

// traceMiddleware ensures every request context carries a trace ID,
// honoring one supplied by the caller.
func (s *Server) traceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get("X-Trace-Id")
		if traceID == "" {
			traceID = uuid.New().String()
		}
		ctx := types.WithTraceID(r.Context(), traceID)
		w.Header().Set("X-Trace-Id", traceID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic serving request",
					"method", r.Method,
					"path", r.URL.Path,
					"panic", rec,
				)
				writeError(w, r, types.NewAppError(types.ErrCodeInternalUnexpected, "internal error", nil))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration_ms", time.Since(start).Milliseconds(),
			"trace_id", types.GetTraceID(r.Context()),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type triggerSyncResponse struct {
	CycleID string `json:"cycle_id"`
}

func (s *Server) handleTriggerSync(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "storeID")

	cycleID, err := s.service.TriggerSync(r.Context(), storeID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, triggerSyncResponse{CycleID: cycleID})
}

type testNotificationRequest struct {
	Channel string `json:"channel" validate:"omitempty,oneof=email slack whatsapp"`
}

type testNotificationResponse struct {
	InsightID string `json:"insight_id"`
	Enqueued  int    `json:"enqueued"`
}

func (s *Server) handleTestNotification(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req testNotificationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, r, types.NewAppError(types.ErrCodeValidationBadChannel,
			"channel must be one of email, slack, whatsapp", err))
		return
	}

	insightID, enqueued, err := s.service.SendTestNotification(r.Context(), userID, types.ChannelType(req.Channel))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, testNotificationResponse{
		InsightID: insightID,
		Enqueued:  enqueued,
	})
}

func (s *Server) handleStoreStatuses(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.service.StoreStatuses(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statuses)
}

func (s *Server) handleDispatchCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := s.service.DispatchCounts(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (s *Server) handleRecentInsights(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "storeID")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, r, types.NewAppError(types.ErrCodeValidationBadMessage,
				"limit must be a positive integer", err))
			return
		}
		limit = parsed
	}

	insights, err := s.service.RecentInsights(r.Context(), storeID, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, insights)
}

// ListenAndServe runs the server on addr until ctx is cancelled, then
// drains with a bounded shutdown window.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
