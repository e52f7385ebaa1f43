package api

import (
	"net/http"
	"strconv"

	"github.com/MikeSquared-Agency/cyrano/internal/engine"
	"github.com/MikeSquared-Agency/cyrano/internal/rehearsal"
)

type startRehearsalRequest struct {
	Operator string          `json:"operator"`
	Persona  engine.Snapshot `json:"persona"`
}

func (s *Server) startRehearsal(w http.ResponseWriter, r *http.Request) {
	var req startRehearsalRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Operator == "" {
		writeError(w, http.StatusUnprocessableEntity, "operator is required")
		return
	}
	sess, err := s.sandbox.Start(r.Context(), req.Operator, req.Persona)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.logger.Info("rehearsal started", "session_id", sess.ID, "operator", sess.Operator)
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) listRehearsals(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	sessions, err := s.store.ListSessions(r.Context(), limit)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if sessions == nil {
		sessions = []*rehearsal.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) getRehearsal(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	sess, err := s.store.GetSession(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) advanceRehearsal(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var resp engine.ClassifiedResponse
	if !decodeBody(w, r, &resp) {
		return
	}
	sess, err := s.sandbox.Advance(r.Context(), id, resp)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

type closeRehearsalRequest struct {
	Notes   string `json:"notes,omitempty"`
	Summary string `json:"summary,omitempty"`
}

func (s *Server) completeRehearsal(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req closeRehearsalRequest
	if !decodeBody(w, r, &req) {
		return
	}
	sess, err := s.sandbox.Complete(r.Context(), id, req.Notes, req.Summary)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.logger.Info("rehearsal completed", "session_id", sess.ID)
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) abandonRehearsal(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req closeRehearsalRequest
	if !decodeBody(w, r, &req) {
		return
	}
	sess, err := s.sandbox.Abandon(r.Context(), id, req.Notes)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.logger.Info("rehearsal abandoned", "session_id", sess.ID)
	writeJSON(w, http.StatusOK, sess)
}
