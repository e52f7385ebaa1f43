// Package api is cyrano's admin surface: catalog CRUD, experiment lifecycle,
// history queries, and rehearsal sessions. The engine itself is driven off
// the bus; nothing here sits on the outreach hot path.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/cyrano/internal/catalog"
	"github.com/MikeSquared-Agency/cyrano/internal/engine"
	"github.com/MikeSquared-Agency/cyrano/internal/experiment"
	"github.com/MikeSquared-Agency/cyrano/internal/history"
	"github.com/MikeSquared-Agency/cyrano/internal/rehearsal"
	"github.com/MikeSquared-Agency/cyrano/internal/store"
)

// Store is the durable layer as the admin surface sees it.
type Store interface {
	CreateGoal(ctx context.Context, g *catalog.Goal) error
	UpdateGoal(ctx context.Context, g *catalog.Goal) error
	DisableGoal(ctx context.Context, id uuid.UUID) error
	GetGoal(ctx context.Context, id uuid.UUID) (*catalog.Goal, error)
	ListGoals(ctx context.Context, onlyEnabled bool) ([]*catalog.Goal, error)

	ListHistory(ctx context.Context, f store.HistoryFilter) ([]history.Record, error)

	CreateExperiment(ctx context.Context, e *experiment.Experiment) error
	StartExperiment(ctx context.Context, id uuid.UUID) error
	PauseExperiment(ctx context.Context, id uuid.UUID) error
	ConcludeExperiment(ctx context.Context, id uuid.UUID) (*experiment.Experiment, error)
	CancelExperiment(ctx context.Context, id uuid.UUID) (*experiment.Experiment, error)
	GetExperiment(ctx context.Context, id uuid.UUID) (*experiment.Experiment, error)
	ListExperiments(ctx context.Context) ([]*experiment.Experiment, error)

	GetSession(ctx context.Context, id uuid.UUID) (*rehearsal.Session, error)
	ListSessions(ctx context.Context, limit int) ([]*rehearsal.Session, error)
}

// Rehearser drives rehearsal sessions; satisfied by rehearsal.Sandbox.
type Rehearser interface {
	Start(ctx context.Context, operator string, persona engine.Snapshot) (*rehearsal.Session, error)
	Advance(ctx context.Context, sessionID uuid.UUID, resp engine.ClassifiedResponse) (*rehearsal.Session, error)
	Complete(ctx context.Context, sessionID uuid.UUID, notes, summary string) (*rehearsal.Session, error)
	Abandon(ctx context.Context, sessionID uuid.UUID, notes string) (*rehearsal.Session, error)
}

type Server struct {
	router   *chi.Mux
	port     int
	apiToken string
	store    Store
	sandbox  Rehearser
	logger   *slog.Logger
}

func NewServer(port int, apiToken string, st Store, sandbox Rehearser, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)

	s := &Server{
		router:   router,
		port:     port,
		apiToken: apiToken,
		store:    st,
		sandbox:  sandbox,
		logger:   logger,
	}

	router.Get("/health", s.health)
	router.Get("/api/v1/cyrano/status", s.status)

	router.Route("/api/v1/goals", func(r chi.Router) {
		r.Use(BearerAuthMiddleware(apiToken))
		r.Post("/", s.createGoal)
		r.Get("/", s.listGoals)
		r.Get("/{id}", s.getGoal)
		r.Put("/{id}", s.updateGoal)
		r.Post("/{id}/disable", s.disableGoal)
	})

	router.Route("/api/v1/experiments", func(r chi.Router) {
		r.Use(BearerAuthMiddleware(apiToken))
		r.Post("/", s.createExperiment)
		r.Get("/", s.listExperiments)
		r.Get("/{id}", s.getExperiment)
		r.Post("/{id}/start", s.startExperiment)
		r.Post("/{id}/pause", s.pauseExperiment)
		r.Post("/{id}/conclude", s.concludeExperiment)
		r.Post("/{id}/cancel", s.cancelExperiment)
	})

	router.Route("/api/v1/history", func(r chi.Router) {
		r.Use(BearerAuthMiddleware(apiToken))
		r.Get("/", s.listHistory)
	})

	router.Route("/api/v1/rehearsals", func(r chi.Router) {
		r.Use(BearerAuthMiddleware(apiToken))
		r.Post("/", s.startRehearsal)
		r.Get("/", s.listRehearsals)
		r.Get("/{id}", s.getRehearsal)
		r.Post("/{id}/advance", s.advanceRehearsal)
		r.Post("/{id}/complete", s.completeRehearsal)
		r.Post("/{id}/abandon", s.abandonRehearsal)
	})

	return s
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("API server starting", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

// BearerAuthMiddleware rejects requests without the expected bearer token. An
// empty token disables the check, for local runs.
func BearerAuthMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
				writeError(w, http.StatusUnauthorized, "missing or invalid token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"agent":  "cyrano",
		"status": "active",
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// writeStoreError maps the store's sentinel errors onto HTTP statuses.
func writeStoreError(w http.ResponseWriter, err error) {
	var verr *catalog.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error": verr.Error(),
			"code":  verr.Code,
			"field": verr.Field,
		})
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrInvalidSplit):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, store.ErrExperimentRunning),
		errors.Is(err, store.ErrExperimentConcluded),
		errors.Is(err, store.ErrExperimentNotRunning),
		errors.Is(err, store.ErrGoalReferenced),
		errors.Is(err, store.ErrSessionClosed):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return false
	}
	return true
}
