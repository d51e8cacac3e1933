package execution

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/flowlab-core/internal/component"
	"github.com/nerrad567/flowlab-core/internal/experiment"
)

// DefaultTeardownTimeout bounds the reset-to-base-state phase.
const DefaultTeardownTimeout = 10 * time.Second

// Status classifies how a run ended.
type Status string

const (
	StatusCompleted             Status = "completed"
	StatusStoppedByCancellation Status = "stopped_by_cancellation"
	StatusStoppedByFailure      Status = "stopped_by_failure"
)

// Options control one run.
type Options struct {
	// DryRun is 0 for a real run or the speed factor of a simulation.
	DryRun experiment.DryRun

	// Strict aborts the run on the first commit or sensor failure.
	Strict bool

	// TeardownTimeout bounds the final reset. Zero means DefaultTeardownTimeout.
	TeardownTimeout time.Duration
}

// Outcome describes a finished run.
type Outcome struct {
	Status      Status
	Err         error
	StartTime   time.Time
	EndTime     time.Time
	TotalPaused time.Duration
	Records     int
}

// Executor runs experiments.
type Executor struct {
	log   Logger
	timer Timer
}

// NewExecutor creates an executor. A nil logger discards output.
func NewExecutor(log Logger) *Executor {
	if log == nil {
		log = noopLogger{}
	}
	return &Executor{log: log, timer: NewTimer(log)}
}

// Run executes exp's protocol and blocks until it ends.
//
// The returned error is non-nil only when the run could not begin. Once
// begun, failures and cancellations are reported in the Outcome, and
// every device has been reset to its base state by the time Run returns.
func (e *Executor) Run(ctx context.Context, exp *experiment.Experiment, opts Options) (Outcome, error) {
	if exp == nil || exp.Protocol() == nil {
		return Outcome{}, fmt.Errorf("%w: no protocol", ErrInvalidProtocol)
	}
	if err := exp.Protocol().Validate(); err != nil {
		return Outcome{}, fmt.Errorf("%w: %w", ErrInvalidProtocol, err)
	}
	if err := opts.DryRun.Validate(); err != nil {
		return Outcome{}, fmt.Errorf("%w: %w", ErrInvalidDryRun, err)
	}
	if err := exp.Begin(opts.DryRun); err != nil {
		return Outcome{}, fmt.Errorf("%w: %w", ErrAlreadyExecuted, err)
	}
	if opts.TeardownTimeout <= 0 {
		opts.TeardownTimeout = DefaultTeardownTimeout
	}

	p := exp.Protocol()
	guards := guardAll(p.Components())

	e.log.Info("experiment started",
		"experiment_id", exp.ID(),
		"protocol", p.Name,
		"start", exp.StartTime().Format(time.RFC3339),
		"duration", p.InferredDuration(),
		"strict", opts.Strict,
	)
	if opts.DryRun.Enabled() {
		e.log.Info("simulating", "speed", opts.DryRun.String(),
			"expected_duration", opts.DryRun.Scale(p.InferredDuration()))
	}

	connected, err := e.connect(ctx, exp, guards)
	if err == nil {
		err = e.execute(ctx, exp, guards, opts)
	}

	e.teardown(ctx, exp, guards, connected, opts.TeardownTimeout)

	outcome := Outcome{
		Status:      classify(ctx, err),
		Err:         err,
		StartTime:   exp.StartTime(),
		EndTime:     exp.EndTime(),
		TotalPaused: exp.TotalPausedDuration(),
		Records:     len(exp.Records()),
	}
	e.log.Info("experiment finished",
		"experiment_id", exp.ID(),
		"status", outcome.Status,
		"end", outcome.EndTime.Format(time.RFC3339),
		"elapsed", outcome.EndTime.Sub(outcome.StartTime)-outcome.TotalPaused,
		"records", outcome.Records,
	)
	if err != nil && outcome.Status == StatusStoppedByFailure {
		e.log.Error("experiment failed", "experiment_id", exp.ID(), "error", err)
	}
	return outcome, nil
}

func classify(ctx context.Context, err error) Status {
	switch {
	case err == nil:
		return StatusCompleted
	case errors.Is(err, ErrCancelled), ctx.Err() != nil && errors.Is(err, ctx.Err()):
		return StatusStoppedByCancellation
	default:
		return StatusStoppedByFailure
	}
}

// connect acquires device connections in schedule order. On failure the
// connectors acquired so far are returned so teardown can release them.
func (e *Executor) connect(ctx context.Context, exp *experiment.Experiment, guards []*guarded) ([]component.Connector, error) {
	if exp.DryRun().Enabled() {
		return nil, nil
	}

	var connected []component.Connector
	for _, g := range guards {
		conn, ok := g.c.(component.Connector)
		if !ok {
			continue
		}
		if err := conn.Connect(ctx); err != nil {
			return connected, fmt.Errorf("%w: %s: %w", ErrDeviceConnect, g.c.Name(), err)
		}
		e.log.Debug("device connected", "component", g.c.Name())
		connected = append(connected, conn)
	}
	return connected, nil
}

// execute runs every task of the experiment in one group.
func (e *Executor) execute(ctx context.Context, exp *experiment.Experiment, guards []*guarded, opts Options) error {
	p := exp.Protocol()
	g, gctx := errgroup.WithContext(ctx)
	sensorCtx, stopSensors := context.WithCancel(gctx)
	defer stopSensors()

	for i, entry := range p.Entries {
		s := &scheduler{
			exp:    exp,
			g:      guards[i],
			procs:  entry.Procedures,
			timer:  e.timer,
			strict: opts.Strict,
			log:    e.log,
		}
		if n := len(entry.Procedures); n > 0 {
			e.log.Debug("schedule built", "component", s.name(),
				"procedures", n, "ends_at", entry.Procedures[n-1].Time)
		}
		g.Go(recoverTask(gctx, "schedule "+s.name(), s.Run))

		if obs, ok := entry.Component.(component.Observable); ok {
			m := &monitor{exp: exp, obs: obs, timer: e.timer, strict: opts.Strict, log: e.log}
			g.Go(recoverTask(sensorCtx, "monitor "+obs.Name(), m.Run))
		}
	}

	watcher := &cancellationWatcher{exp: exp}
	pauser := &pauseController{exp: exp, guards: guards, strict: opts.Strict, log: e.log}
	end := &endSignal{exp: exp, duration: p.InferredDuration(), timer: e.timer, stop: stopSensors, log: e.log}

	g.Go(recoverTask(gctx, "cancellation watcher", watcher.Run))
	g.Go(recoverTask(gctx, "pause controller", pauser.Run))
	g.Go(recoverTask(gctx, "end signal", end.Run))

	return g.Wait()
}

// recoverTask binds a task to its context and turns a panic into an
// ErrUnexpected failure of the run.
func recoverTask(ctx context.Context, name string, fn func(context.Context) error) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%w: %s panicked: %v", ErrUnexpected, name, r)
			}
		}()
		return fn(ctx)
	}
}

// teardown resets devices and releases connections on every exit path.
// Its errors are logged, never returned.
func (e *Executor) teardown(ctx context.Context, exp *experiment.Experiment, guards []*guarded, connected []component.Connector, timeout time.Duration) {
	exp.MarkEnded()

	tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	dry := exp.DryRun().Enabled()
	for _, g := range guards {
		if err := resetGuarded(tctx, g, dry); err != nil {
			e.log.Error("reset to base state failed", "component", g.c.Name(), "error", err)
		}
	}

	for _, conn := range slices.Backward(connected) {
		if err := conn.Close(); err != nil {
			e.log.Error("releasing device connection failed", "error", err)
		}
	}

	exp.Finish()
	exp.ReleaseObservers()
}

func resetGuarded(ctx context.Context, g *guarded, dry bool) (err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: reset panicked: %v", ErrUnexpected, r)
		}
	}()

	if err := g.c.ApplyParams(g.c.BaseState()); err != nil {
		return err
	}
	if dry {
		return nil
	}
	return g.c.Commit(ctx)
}
