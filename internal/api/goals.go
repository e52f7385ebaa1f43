package api

import (
	"net/http"

	"github.com/MikeSquared-Agency/cyrano/internal/catalog"
)

func (s *Server) createGoal(w http.ResponseWriter, r *http.Request) {
	var g catalog.Goal
	if !decodeBody(w, r, &g) {
		return
	}
	if err := s.store.CreateGoal(r.Context(), &g); err != nil {
		writeStoreError(w, err)
		return
	}
	s.logger.Info("goal created", "goal_id", g.ID, "name", g.Name)
	writeJSON(w, http.StatusCreated, g)
}

func (s *Server) listGoals(w http.ResponseWriter, r *http.Request) {
	onlyEnabled := r.URL.Query().Get("enabled") == "true"
	goals, err := s.store.ListGoals(r.Context(), onlyEnabled)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if goals == nil {
		goals = []*catalog.Goal{}
	}
	writeJSON(w, http.StatusOK, goals)
}

func (s *Server) getGoal(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	g, err := s.store.GetGoal(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) updateGoal(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var g catalog.Goal
	if !decodeBody(w, r, &g) {
		return
	}
	g.ID = id
	if err := s.store.UpdateGoal(r.Context(), &g); err != nil {
		writeStoreError(w, err)
		return
	}
	s.logger.Info("goal updated", "goal_id", g.ID, "name", g.Name)
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) disableGoal(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.store.DisableGoal(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	s.logger.Info("goal disabled", "goal_id", id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
}
