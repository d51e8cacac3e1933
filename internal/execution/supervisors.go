package execution

import (
	"context"
	"time"

	"github.com/nerrad567/flowlab-core/internal/experiment"
)

// cancellationWatcher turns the experiment's cancelled flag into a task
// error so the whole group stops.
type cancellationWatcher struct {
	exp *experiment.Experiment
}

func (w *cancellationWatcher) Run(ctx context.Context) error {
	for {
		changed := w.exp.Changed()
		if w.exp.Cancelled() {
			return ErrCancelled
		}
		if w.exp.EndSignal() {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-changed:
		}
	}
}

// endSignal marks the end of the protocol once its last offset is reached
// and stops the sensor monitors.
type endSignal struct {
	exp      *experiment.Experiment
	duration time.Duration
	timer    Timer
	stop     context.CancelFunc
	log      Logger
}

func (e *endSignal) Run(ctx context.Context) error {
	if err := e.timer.Wait(ctx, e.exp, e.duration, "end signal"); err != nil {
		return nil //nolint:nilerr // the task that ended the run reports why
	}
	e.log.Debug("end signal reached", "duration", e.duration)
	e.exp.SetEndSignal()
	e.stop()
	return nil
}
