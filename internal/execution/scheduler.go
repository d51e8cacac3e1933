package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/flowlab-core/internal/experiment"
	"github.com/nerrad567/flowlab-core/internal/protocol"
)

// scheduler applies one component's procedures in order.
type scheduler struct {
	exp    *experiment.Experiment
	g      *guarded
	procs  []protocol.Procedure
	timer  Timer
	strict bool
	log    Logger
}

func (s *scheduler) name() string { return s.g.c.Name() }

// Run executes every procedure at its offset. It returns early only on a
// strict failure, a cancellation or the end of ctx.
func (s *scheduler) Run(ctx context.Context) error {
	for _, p := range s.procs {
		if err := s.step(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// step waits for the procedure's offset and applies it under the guard.
// A pause that began before the guard was taken sends it back to waiting;
// a cancellation ends the step without a commit.
func (s *scheduler) step(ctx context.Context, p protocol.Procedure) error {
	label := fmt.Sprintf("%s@%s", s.name(), p.Time)
	for {
		if err := s.timer.Wait(ctx, s.exp, p.Time, label); err != nil {
			return err
		}

		paused, err := s.applyGuarded(ctx, p)
		if paused {
			continue
		}
		return err
	}
}

func (s *scheduler) applyGuarded(ctx context.Context, p protocol.Procedure) (paused bool, err error) {
	s.g.mu.Lock()
	defer s.g.mu.Unlock()

	if s.exp.Cancelled() {
		return false, ErrCancelled
	}
	if s.exp.Paused() {
		return true, nil
	}
	return false, s.apply(ctx, p)
}

// apply must be called with the guard held.
func (s *scheduler) apply(ctx context.Context, p protocol.Procedure) error {
	dry := s.exp.DryRun().Enabled()
	kind := experiment.KindExecuted
	if dry {
		kind = experiment.KindSimulated
	}

	var failure error
	if err := s.g.c.ApplyParams(p.Params); err != nil {
		failure = fmt.Errorf("%w: %s: applying params: %w", ErrDeviceCommit, s.name(), err)
	} else if dry {
		s.log.Info("simulated action", "component", s.name(), "offset", p.Time, "params", p.Params)
	} else if err := s.g.c.Commit(ctx); err != nil {
		failure = fmt.Errorf("%w: %s: %w", ErrDeviceCommit, s.name(), err)
	}

	now := s.timer.now()
	rec := experiment.ExecutionRecord{
		Timestamp: now,
		Component: s.name(),
		Kind:      kind,
		Params:    p.Params.Clone(),
		Offset:    p.Time,
		Elapsed:   s.exp.Elapsed(now),
	}
	if failure != nil {
		rec.Error = failure.Error()
	}
	s.exp.AppendRecord(rec)

	if failure == nil {
		s.log.Debug("procedure applied", "component", s.name(), "offset", p.Time, "elapsed", rec.Elapsed.Round(time.Millisecond))
		return nil
	}
	if s.strict {
		s.log.Error("procedure failed", "component", s.name(), "offset", p.Time, "error", failure)
		return failure
	}
	s.log.Warn("procedure failed, continuing", "component", s.name(), "offset", p.Time, "error", failure)
	return nil
}
