package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kidandcat/taskmaster/internal/auth"
	"github.com/kidandcat/taskmaster/internal/config"
	"github.com/kidandcat/taskmaster/internal/db"
	"github.com/kidandcat/taskmaster/internal/reminder"
)

// Deps wires the API to its collaborators. Job may be nil when no VAPID key
// pair is configured; push routes then answer 503.
type Deps struct {
	Store          *db.DB
	Resolver       *auth.Resolver
	Job            *reminder.Job
	VAPIDPublicKey string
	CronSecret     string
	RateLimit      config.RateLimitConfig
	// Location reads zone-less due dates. Defaults to UTC.
	Location       *time.Location
	Gatherer       prometheus.Gatherer
	Logger         *zap.Logger
}

type Server struct {
	store      *db.DB
	resolver   *auth.Resolver
	job        *reminder.Job
	publicKey  string
	cronSecret string
	limiter    *ipLimiter
	location   *time.Location
	gatherer   prometheus.Gatherer
	logger     *zap.Logger
}

func NewServer(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Location == nil {
		d.Location = time.UTC
	}
	return &Server{
		store:      d.Store,
		resolver:   d.Resolver,
		job:        d.Job,
		publicKey:  d.VAPIDPublicKey,
		cronSecret: d.CronSecret,
		limiter:    newIPLimiter(d.RateLimit),
		location:   d.Location,
		gatherer:   d.Gatherer,
		logger:     d.Logger,
	}
}

// Handler returns the root handler with all routes and middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	// Public
	mux.Handle("POST /api/auth", s.limiter.middleware(http.HandlerFunc(s.handleAuth)))
	mux.HandleFunc("GET /api/vapid-public-key", s.handleVAPIDPublicKey)
	mux.HandleFunc("GET /api/cron/check-due-tasks", s.handleCheckDueTasks)

	// Device-authenticated
	mux.Handle("GET /api/tasks", s.requireDevice(s.handleGetTasks))
	mux.Handle("POST /api/tasks", s.requireDevice(s.handleCreateTask))
	mux.Handle("PUT /api/tasks", s.requireDevice(s.handleUpdateTask))
	mux.Handle("DELETE /api/tasks", s.requireDevice(s.handleDeleteTask))

	mux.Handle("GET /api/push-subscription", s.requireDevice(s.handleGetSubscriptions))
	mux.Handle("POST /api/push-subscription", s.requireDevice(s.handleSaveSubscription))
	mux.Handle("DELETE /api/push-subscription", s.requireDevice(s.handleDeleteSubscription))

	mux.Handle("POST /api/test-notification", s.requireDevice(s.handleTestNotification))

	return s.recoverer(s.logRequests(mux))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// fail maps a core error to a response. Storage details are logged, never returned.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error, msg string) {
	var ve *db.ValidationError
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, ve.Error())
	case errors.Is(err, db.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		s.logger.Error(msg,
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, msg)
	}
}

const maxBodyBytes = 64 << 10

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
