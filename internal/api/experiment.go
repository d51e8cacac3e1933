package api

import (
	"errors"
	"net/http"

	"github.com/nerrad567/flowlab-core/internal/experiment"
)

// currentExperiment writes a 404 and returns false when nothing is attached.
func (s *Server) currentExperiment(w http.ResponseWriter) (*experiment.Experiment, bool) {
	exp := s.Experiment()
	if exp == nil {
		writeNotFound(w, "no experiment attached")
		return nil, false
	}
	return exp, true
}

func (s *Server) handleGetExperiment(w http.ResponseWriter, _ *http.Request) {
	exp, ok := s.currentExperiment(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, exp.Status())
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	exp, ok := s.currentExperiment(w)
	if !ok {
		return
	}
	if err := exp.Pause(); err != nil {
		s.writeControlError(w, r, "pause", err)
		return
	}
	s.logger.Info("experiment paused via API", "experiment_id", exp.ID())
	writeJSON(w, http.StatusOK, exp.Status())
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	exp, ok := s.currentExperiment(w)
	if !ok {
		return
	}
	if err := exp.Resume(); err != nil {
		s.writeControlError(w, r, "resume", err)
		return
	}
	s.logger.Info("experiment resumed via API", "experiment_id", exp.ID())
	writeJSON(w, http.StatusOK, exp.Status())
}

func (s *Server) handleCancel(w http.ResponseWriter, _ *http.Request) {
	exp, ok := s.currentExperiment(w)
	if !ok {
		return
	}
	if exp.WasExecuted() {
		writeConflict(w, "experiment already finished")
		return
	}
	exp.Cancel()
	s.logger.Info("experiment cancelled via API", "experiment_id", exp.ID())
	writeJSON(w, http.StatusAccepted, exp.Status())
}

func (s *Server) writeControlError(w http.ResponseWriter, r *http.Request, action string, err error) {
	switch {
	case errors.Is(err, experiment.ErrCancelled):
		writeConflict(w, "experiment was cancelled")
	case errors.Is(err, experiment.ErrNotRunning):
		writeConflict(w, "experiment is not running")
	default:
		s.logger.Error("experiment control failed", "action", action, "error", err,
			"request_id", r.Context().Value(ctxKeyRequestID))
		writeInternalError(w, "failed to "+action+" experiment")
	}
}

func (s *Server) handleRecords(w http.ResponseWriter, _ *http.Request) {
	exp, ok := s.currentExperiment(w)
	if !ok {
		return
	}
	records := exp.Records()
	if records == nil {
		records = []experiment.ExecutionRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"records": records,
		"count":   len(records),
	})
}

// handleTimeline returns datapoints, optionally for one device (?device=).
func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	exp, ok := s.currentExperiment(w)
	if !ok {
		return
	}

	timeline := exp.Timeline()
	if device := r.URL.Query().Get("device"); device != "" {
		points, found := timeline[device]
		if !found {
			writeNotFound(w, "no datapoints for device "+device)
			return
		}
		timeline = map[string][]experiment.Datapoint{device: points}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"devices":  exp.Devices(),
		"timeline": timeline,
	})
}
