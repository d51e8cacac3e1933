package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/flowlab-core/internal/runlog"
)

// handleListRuns returns archived runs, newest first.
//
// Query parameters: status, limit, offset.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeUnavailable(w, "run archive not configured")
		return
	}

	q := r.URL.Query()
	filter := runlog.Filter{Status: q.Get("status")}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		if v := q.Get(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				writeBadRequest(w, name+" must be an integer")
				return
			}
			*dst = n
		}
	}

	result, err := s.runs.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing runs failed", "error", err)
		writeInternalError(w, "failed to list runs")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleGetRun returns one archived run with its records and timeline.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeUnavailable(w, "run archive not configured")
		return
	}

	id := chi.URLParam(r, "id")
	run, err := s.runs.Get(r.Context(), id)
	if errors.Is(err, runlog.ErrNotFound) {
		writeNotFound(w, "run not found")
		return
	}
	if err != nil {
		s.logger.Error("loading run failed", "run_id", id, "error", err)
		writeInternalError(w, "failed to load run")
		return
	}
	writeJSON(w, http.StatusOK, run)
}
