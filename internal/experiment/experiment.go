package experiment

import (
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/flowlab-core/internal/protocol"
)

// Experiment is the runtime context of one compiled protocol.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Experiment struct {
	id       string
	protocol *protocol.Compiled
	now      func() time.Time

	mu          sync.Mutex
	changed     chan struct{}
	started     bool
	startTime   time.Time
	endTime     time.Time
	dryRun      DryRun
	paused      bool
	pausedAt    time.Time
	totalPaused time.Duration
	cancelled   bool
	endSignal   bool
	isExecuting bool
	wasExecuted bool
	records     []ExecutionRecord
	timeline    map[string][]Datapoint
	observers   []Observer
}

// New creates an experiment for a compiled protocol.
func New(p *protocol.Compiled) *Experiment {
	return &Experiment{
		id:       uuid.New().String(),
		protocol: p,
		now:      time.Now,
		changed:  make(chan struct{}),
		timeline: make(map[string][]Datapoint),
	}
}

// ID returns the experiment's unique identifier.
func (e *Experiment) ID() string { return e.id }

// Protocol returns the compiled protocol this experiment runs.
func (e *Experiment) Protocol() *protocol.Compiled { return e.protocol }

// Changed returns a channel closed at the next flag change.
// Call it again after it fires to wait for the following change.
func (e *Experiment) Changed() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.changed
}

// notifyLocked wakes every waiter and returns the status snapshot to
// fan out to status observers once the lock is dropped.
func (e *Experiment) notifyLocked() (Status, []Observer) {
	close(e.changed)
	e.changed = make(chan struct{})
	return e.statusLocked(), slices.Clone(e.observers)
}

func publishStatus(st Status, observers []Observer) {
	for _, o := range observers {
		if so, ok := o.(StatusObserver); ok {
			so.StatusChanged(st)
		}
	}
}

// Begin starts the run clock. It may succeed only once per experiment.
func (e *Experiment) Begin(dryRun DryRun) error {
	if err := dryRun.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return ErrAlreadyStarted
	}
	e.started = true
	e.startTime = e.now()
	e.dryRun = dryRun
	e.isExecuting = true
	st, obs := e.notifyLocked()
	e.mu.Unlock()

	publishStatus(st, obs)
	return nil
}

// Pause suspends the run. Pausing an already paused run is a no-op.
func (e *Experiment) Pause() error {
	e.mu.Lock()
	switch {
	case e.cancelled:
		e.mu.Unlock()
		return ErrCancelled
	case !e.isExecuting:
		e.mu.Unlock()
		return ErrNotRunning
	case e.paused:
		e.mu.Unlock()
		return nil
	}
	e.paused = true
	e.pausedAt = e.now()
	st, obs := e.notifyLocked()
	e.mu.Unlock()

	publishStatus(st, obs)
	return nil
}

// Resume continues a paused run and adds the pause to the paused total.
// Resuming a run that is not paused is a no-op.
func (e *Experiment) Resume() error {
	e.mu.Lock()
	if e.cancelled {
		e.mu.Unlock()
		return ErrCancelled
	}
	if !e.paused {
		e.mu.Unlock()
		return nil
	}
	e.closePauseLocked(e.now())
	st, obs := e.notifyLocked()
	e.mu.Unlock()

	publishStatus(st, obs)
	return nil
}

func (e *Experiment) closePauseLocked(at time.Time) {
	e.totalPaused += at.Sub(e.pausedAt)
	e.paused = false
	e.pausedAt = time.Time{}
}

// Cancel requests a stop. Cancellation is terminal.
func (e *Experiment) Cancel() {
	e.mu.Lock()
	if e.cancelled {
		e.mu.Unlock()
		return
	}
	e.cancelled = true
	st, obs := e.notifyLocked()
	e.mu.Unlock()

	publishStatus(st, obs)
}

// SetEndSignal marks the protocol's inferred duration as elapsed.
func (e *Experiment) SetEndSignal() {
	e.mu.Lock()
	if e.endSignal {
		e.mu.Unlock()
		return
	}
	e.endSignal = true
	st, obs := e.notifyLocked()
	e.mu.Unlock()

	publishStatus(st, obs)
}

// MarkEnded records the end of the run.
func (e *Experiment) MarkEnded() {
	e.mu.Lock()
	e.endTime = e.now()
	e.mu.Unlock()
}

// Finish sets the terminal flags. An open pause is folded into the
// paused total up to the recorded end.
func (e *Experiment) Finish() {
	e.mu.Lock()
	if e.endTime.IsZero() {
		e.endTime = e.now()
	}
	if e.paused {
		e.closePauseLocked(e.endTime)
	}
	e.wasExecuted = true
	e.isExecuting = false
	st, obs := e.notifyLocked()
	e.mu.Unlock()

	publishStatus(st, obs)
}

// Elapsed returns the pause-adjusted time since start at instant now.
// Time spent in an ongoing pause does not count.
func (e *Experiment) Elapsed(now time.Time) time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.elapsedLocked(now)
}

func (e *Experiment) elapsedLocked(now time.Time) time.Duration {
	if !e.started {
		return 0
	}
	elapsed := now.Sub(e.startTime) - e.totalPaused
	if e.paused {
		elapsed -= now.Sub(e.pausedAt)
	}
	return elapsed
}

// Paused reports whether the run is paused.
func (e *Experiment) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

// Cancelled reports whether a stop was requested.
func (e *Experiment) Cancelled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancelled
}

// EndSignal reports whether the inferred duration has elapsed.
func (e *Experiment) EndSignal() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.endSignal
}

// IsExecuting reports whether the run is in progress.
func (e *Experiment) IsExecuting() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isExecuting
}

// WasExecuted reports whether the run has finished.
func (e *Experiment) WasExecuted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.wasExecuted
}

// DryRun returns the dry-run factor set at Begin.
func (e *Experiment) DryRun() DryRun {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dryRun
}

// StartTime returns the run start, zero before Begin.
func (e *Experiment) StartTime() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.startTime
}

// EndTime returns the run end, zero while running.
func (e *Experiment) EndTime() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.endTime
}

// TotalPausedDuration returns the sum of completed pauses.
func (e *Experiment) TotalPausedDuration() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.totalPaused
}

// Status returns a snapshot of the flags and clock.
func (e *Experiment) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.statusLocked()
}

func (e *Experiment) statusLocked() Status {
	name := ""
	if e.protocol != nil {
		name = e.protocol.Name
	}
	st := Status{
		ID:          e.id,
		Protocol:    name,
		StartTime:   e.startTime,
		EndTime:     e.endTime,
		DryRun:      e.dryRun,
		Paused:      e.paused,
		Cancelled:   e.cancelled,
		EndSignal:   e.endSignal,
		IsExecuting: e.isExecuting,
		WasExecuted: e.wasExecuted,
		TotalPaused: e.totalPaused,
		Records:     len(e.records),
	}
	switch {
	case e.isExecuting:
		st.Elapsed = e.elapsedLocked(e.now())
	case e.wasExecuted:
		st.Elapsed = e.endTime.Sub(e.startTime) - e.totalPaused
	}
	return st
}

// AppendRecord adds an entry to the execution log and notifies observers.
func (e *Experiment) AppendRecord(rec ExecutionRecord) {
	e.mu.Lock()
	e.records = append(e.records, rec)
	obs := slices.Clone(e.observers)
	e.mu.Unlock()

	for _, o := range obs {
		o.RecordAdded(rec)
	}
}

// AddDatapoint appends a sample to a device's timeline and notifies observers.
func (e *Experiment) AddDatapoint(device string, dp Datapoint) {
	e.mu.Lock()
	e.timeline[device] = append(e.timeline[device], dp)
	obs := slices.Clone(e.observers)
	e.mu.Unlock()

	for _, o := range obs {
		o.DatapointAdded(device, dp)
	}
}

// Records returns a copy of the execution log.
func (e *Experiment) Records() []ExecutionRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.records)
}

// Timeline returns a copy of every device's datapoints.
func (e *Experiment) Timeline() map[string][]Datapoint {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string][]Datapoint, len(e.timeline))
	for device, dps := range e.timeline {
		out[device] = slices.Clone(dps)
	}
	return out
}

// Devices returns the names of devices with at least one datapoint, sorted.
func (e *Experiment) Devices() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Sorted(maps.Keys(e.timeline))
}

// BindObserver attaches an observer for the rest of the run.
func (e *Experiment) BindObserver(o Observer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, o)
}

// ReleaseObservers detaches every observer and releases those that hold
// resources.
func (e *Experiment) ReleaseObservers() {
	e.mu.Lock()
	obs := e.observers
	e.observers = nil
	e.mu.Unlock()

	for _, o := range obs {
		if r, ok := o.(Releaser); ok {
			r.Release()
		}
	}
}
