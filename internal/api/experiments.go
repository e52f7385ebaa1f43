package api

import (
	"context"
	"net/http"

	"github.com/MikeSquared-Agency/cyrano/internal/experiment"
	"github.com/google/uuid"
)

func (s *Server) createExperiment(w http.ResponseWriter, r *http.Request) {
	var e experiment.Experiment
	if !decodeBody(w, r, &e) {
		return
	}
	if len(e.ControlGoals) == 0 || len(e.ControlGoals) != len(e.VariantGoals) {
		writeError(w, http.StatusUnprocessableEntity, "control and variant goal lists must pair up")
		return
	}
	// Zero means "unset"; the store fills in the even split.
	if e.Split < 0 || e.Split >= 1 {
		writeError(w, http.StatusUnprocessableEntity, "split must be between 0 and 1 exclusive")
		return
	}
	if err := s.store.CreateExperiment(r.Context(), &e); err != nil {
		writeStoreError(w, err)
		return
	}
	s.logger.Info("experiment created", "experiment_id", e.ID)
	writeJSON(w, http.StatusCreated, e)
}

func (s *Server) listExperiments(w http.ResponseWriter, r *http.Request) {
	exps, err := s.store.ListExperiments(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if exps == nil {
		exps = []*experiment.Experiment{}
	}
	writeJSON(w, http.StatusOK, exps)
}

func (s *Server) getExperiment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	e, err := s.store.GetExperiment(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) startExperiment(w http.ResponseWriter, r *http.Request) {
	s.lifecycle(w, r, "running", s.store.StartExperiment)
}

func (s *Server) pauseExperiment(w http.ResponseWriter, r *http.Request) {
	s.lifecycle(w, r, "paused", s.store.PauseExperiment)
}

// lifecycle handles the start/pause transitions, which mutate status and
// return nothing else.
func (s *Server) lifecycle(w http.ResponseWriter, r *http.Request, state string, op func(context.Context, uuid.UUID) error) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := op(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	s.logger.Info("experiment "+state, "experiment_id", id)
	writeJSON(w, http.StatusOK, map[string]string{"status": state})
}

func (s *Server) concludeExperiment(w http.ResponseWriter, r *http.Request) {
	s.finish(w, r, s.store.ConcludeExperiment)
}

func (s *Server) cancelExperiment(w http.ResponseWriter, r *http.Request) {
	s.finish(w, r, s.store.CancelExperiment)
}

// finish handles conclude/cancel, which return the final experiment with its
// summary stats.
func (s *Server) finish(w http.ResponseWriter, r *http.Request, op func(context.Context, uuid.UUID) (*experiment.Experiment, error)) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	e, err := op(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.logger.Info("experiment finished",
		"experiment_id", e.ID, "status", string(e.Status), "winner", e.Winner, "significant", e.Significant)
	writeJSON(w, http.StatusOK, e)
}
