package experiment

import (
	"fmt"
	"time"

	"github.com/nerrad567/flowlab-core/internal/component"
)

// DryRun selects simulated execution. 0 is a real run; N >= 1 simulates
// at N times real speed with no device commits.
type DryRun int

// DryRunOff disables simulation.
const DryRunOff DryRun = 0

// Enabled reports whether the run is simulated.
func (d DryRun) Enabled() bool { return d > 0 }

// Validate rejects negative factors.
func (d DryRun) Validate() error {
	if d < 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidDryRun, int(d))
	}
	return nil
}

// Scale converts a nominal protocol duration to real time.
func (d DryRun) Scale(nominal time.Duration) time.Duration {
	if d <= 1 {
		return nominal
	}
	return nominal / time.Duration(d)
}

func (d DryRun) String() string {
	if d <= 0 {
		return "off"
	}
	return fmt.Sprintf("%dx", int(d))
}

// RecordKind tells executed actions apart from dry-run simulations.
type RecordKind string

const (
	KindExecuted  RecordKind = "executed"
	KindSimulated RecordKind = "simulated"
)

// ExecutionRecord is one entry of the run's append-only execution log.
type ExecutionRecord struct {
	Timestamp time.Time        `json:"timestamp"`
	Component string           `json:"component"`
	Kind      RecordKind       `json:"kind"`
	Params    component.Params `json:"params"`

	// Offset is the procedure's nominal offset from the start of the run.
	Offset time.Duration `json:"offset"`

	// Elapsed is the pause-adjusted real time since the start of the run.
	Elapsed time.Duration `json:"elapsed"`

	// Error is set when a lenient run tolerated a failed commit.
	Error string `json:"error,omitempty"`
}

// Datapoint is one sensor sample on the run timeline.
type Datapoint struct {
	Value     float64       `json:"value"`
	Timestamp time.Time     `json:"timestamp"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Status is a point-in-time copy of the experiment's flags and clock.
type Status struct {
	ID          string        `json:"id"`
	Protocol    string        `json:"protocol"`
	StartTime   time.Time     `json:"start_time,omitzero"`
	EndTime     time.Time     `json:"end_time,omitzero"`
	DryRun      DryRun        `json:"dry_run"`
	Paused      bool          `json:"paused"`
	Cancelled   bool          `json:"cancelled"`
	EndSignal   bool          `json:"end_signal"`
	IsExecuting bool          `json:"is_executing"`
	WasExecuted bool          `json:"was_executed"`
	TotalPaused time.Duration `json:"total_paused"`
	Elapsed     time.Duration `json:"elapsed"`
	Records     int           `json:"records"`
}

// Observer receives run outputs as they are appended.
//
// Calls happen on executor goroutines outside the experiment lock and
// must not block for long.
type Observer interface {
	RecordAdded(rec ExecutionRecord)
	DatapointAdded(device string, dp Datapoint)
}

// StatusObserver is implemented by observers that also want flag changes.
type StatusObserver interface {
	StatusChanged(st Status)
}

// Releaser is implemented by observers holding run-bound resources.
type Releaser interface {
	Release()
}
