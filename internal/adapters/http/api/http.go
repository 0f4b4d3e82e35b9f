// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	service "github.com/okian/racescore/internal/app"
	"github.com/okian/racescore/internal/adapters/repository"
	"github.com/okian/racescore/internal/domain/model"
	"github.com/okian/racescore/internal/domain/rules"
	"github.com/okian/racescore/pkg/metrics"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the service implementation.
type Dependencies interface {
	ScoreDependencies
	ResultsDependencies
	RuleSetDependencies
	StatsProvider
}

// Server wires HTTP routes for the scoring API.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	scoreHandler   *ScoreHandler
	resultsHandler *ResultsHandler
	ruleSetHandler *RuleSetHandler
	limiter        *Limiter
}

// Option configures a Server.
type Option func(*Server)

// WithScoreRateLimit bounds POST score requests per second. A non-positive
// limit disables limiting.
func WithScoreRateLimit(perSecond float64, burst int) Option {
	return func(s *Server) {
		s.limiter = NewLimiter(perSecond, burst)
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		healthHandler:  NewHealthHandler(),
		statsHandler:   NewStatsHandler(deps),
		scoreHandler:   NewScoreHandler(deps),
		resultsHandler: NewResultsHandler(deps),
		ruleSetHandler: NewRuleSetHandler(deps),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register attaches all HTTP routes to r.
func (s *Server) Register(_ context.Context, r chi.Router) {
	r.Use(middleware.Recoverer)

	r.Get("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
	r.Get("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	r.Route("/v1", func(r chi.Router) {
		r.Post("/games/{gameID}/score", MetricsMiddleware(s.limiter.Wrap(s.scoreHandler.HandleScore), "score"))
		r.Get("/games/{gameID}/results", MetricsMiddleware(s.resultsHandler.HandleGetResults, "results"))
		r.Get("/rulesets", MetricsMiddleware(s.ruleSetHandler.HandleList, "rulesets"))
		r.Get("/rulesets/{version}", MetricsMiddleware(s.ruleSetHandler.HandleGet, "ruleset"))
	})
}

// Handler returns a router with every route registered.
func (s *Server) Handler(ctx context.Context) http.Handler {
	r := chi.NewRouter()
	s.Register(ctx, r)
	return r
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeServiceError maps service error classes to HTTP statuses. Unexpected
// failures are reported with fallback as the message.
func writeServiceError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, repository.ErrGameNotFound), errors.Is(err, repository.ErrRuleSetNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, service.ErrConfiguration):
		writeError(w, http.StatusUnprocessableEntity, "configuration_error", err)
	case errors.Is(err, service.ErrBusy):
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
		writeError(w, http.StatusConflict, "busy", err)
	case errors.Is(err, service.ErrQueueFull):
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
		writeError(w, http.StatusTooManyRequests, "queue_full", err)
	case errors.Is(err, service.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Code: "internal_error", Message: fallback})
	}
}

const retryAfterSeconds = 1

// gameParam reads the {gameID} URL parameter.
func gameParam(r *http.Request) model.GameID {
	return model.GameID(chi.URLParam(r, "gameID"))
}

// ruleSetView is the JSON shape of a published rule set.
type ruleSetView = rules.Document
