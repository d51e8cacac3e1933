package execution

import (
	"context"
	"time"

	"github.com/nerrad567/flowlab-core/internal/experiment"
)

// Timer waits for offsets on an experiment's pause-adjusted clock.
type Timer struct {
	now func() time.Time
	log Logger
}

// NewTimer creates a timer on the wall clock.
func NewTimer(log Logger) Timer {
	if log == nil {
		log = noopLogger{}
	}
	return Timer{now: time.Now, log: log}
}

// Wait returns once the experiment clock reaches offset, scaled down by
// the experiment's dry-run factor.
//
// The residual is recomputed after every sleep, so a pause that starts
// mid-sleep extends the wait by exactly its length. While the experiment
// is paused Wait blocks on its change notifications. A cancelled
// experiment ends the wait with ErrCancelled.
func (t Timer) Wait(ctx context.Context, exp *experiment.Experiment, offset time.Duration, label string) error {
	target := exp.DryRun().Scale(offset)

	for {
		if err := waitWhilePaused(ctx, exp); err != nil {
			return err
		}

		residual := target - exp.Elapsed(t.now())
		if residual <= 0 {
			return nil
		}

		t.log.Debug("waiting", "task", label, "offset", offset, "residual", residual)
		if err := sleep(ctx, residual); err != nil {
			return err
		}
	}
}

// waitWhilePaused blocks until the experiment is running.
func waitWhilePaused(ctx context.Context, exp *experiment.Experiment) error {
	for {
		changed := exp.Changed()
		if exp.Cancelled() {
			return ErrCancelled
		}
		if !exp.Paused() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
