package api

import (
	"net/http"
	"strconv"

	"github.com/MikeSquared-Agency/cyrano/internal/history"
	"github.com/MikeSquared-Agency/cyrano/internal/store"
	"github.com/google/uuid"
)

func (s *Server) listHistory(w http.ResponseWriter, r *http.Request) {
	var f store.HistoryFilter
	q := r.URL.Query()

	if v := q.Get("individual_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid individual_id")
			return
		}
		f.IndividualID = id
	}
	if v := q.Get("goal_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid goal_id")
			return
		}
		f.GoalID = id
	}
	if v := q.Get("status"); v != "" {
		st := history.Status(v)
		if !st.Valid() {
			writeError(w, http.StatusBadRequest, "invalid status")
			return
		}
		f.Status = st
	}
	f.NeedsReview = q.Get("needs_review") == "true"
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		f.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid offset")
			return
		}
		f.Offset = n
	}

	recs, err := s.store.ListHistory(r.Context(), f)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if recs == nil {
		recs = []history.Record{}
	}
	writeJSON(w, http.StatusOK, recs)
}
