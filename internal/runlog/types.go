package runlog

import (
	"time"

	"github.com/nerrad567/flowlab-core/internal/experiment"
)

// Run is one archived experiment run.
type Run struct {
	ID          string        `json:"id"`
	Protocol    string        `json:"protocol"`
	Status      string        `json:"status"`
	Error       string        `json:"error,omitempty"`
	DryRun      int           `json:"dry_run"`
	Strict      bool          `json:"strict"`
	StartedAt   time.Time     `json:"started_at"`
	EndedAt     time.Time     `json:"ended_at"`
	TotalPaused time.Duration `json:"total_paused"`
	CreatedAt   time.Time     `json:"created_at"`

	// Records and Timeline are filled by Get and Save, not by List.
	Records  []experiment.ExecutionRecord      `json:"records,omitempty"`
	Timeline map[string][]experiment.Datapoint `json:"timeline,omitempty"`
}

// Filter controls which runs List returns.
type Filter struct {
	Status string // optional: completed, stopped_by_cancellation, stopped_by_failure
	Limit  int    // default 20, max 200
	Offset int
}

// ListResult is one page of runs, newest first.
type ListResult struct {
	Runs   []Run `json:"runs"`
	Total  int   `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

// FromExperiment captures a finished experiment for archiving.
func FromExperiment(exp *experiment.Experiment, status string, runErr error, strict bool) (*Run, error) {
	if !exp.WasExecuted() || exp.IsExecuting() {
		return nil, ErrNotFinished
	}

	st := exp.Status()
	run := &Run{
		ID:          st.ID,
		Protocol:    st.Protocol,
		Status:      status,
		DryRun:      int(st.DryRun),
		Strict:      strict,
		StartedAt:   st.StartTime,
		EndedAt:     st.EndTime,
		TotalPaused: st.TotalPaused,
		Records:     exp.Records(),
		Timeline:    exp.Timeline(),
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	return run, nil
}
