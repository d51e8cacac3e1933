package execution

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/nerrad567/flowlab-core/internal/component"
	"github.com/nerrad567/flowlab-core/internal/experiment"
	"github.com/nerrad567/flowlab-core/internal/protocol"
)

// unit is one protocol "second" on the test clock.
const unit = 10 * time.Millisecond

func at(n float64, p component.Params) protocol.Procedure {
	return protocol.Procedure{Time: time.Duration(n * float64(unit)), Params: p}
}

func newExperiment(name string, entries ...protocol.Entry) *experiment.Experiment {
	return experiment.New(&protocol.Compiled{Name: name, Entries: entries})
}

// eventLog collects connector events across devices.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, fmt.Sprintf(format, args...))
}

func (l *eventLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

// fakeDevice is a pump-like device with a connection and fault hooks.
type fakeDevice struct {
	name        string
	log         *eventLog
	failConnect bool

	// failBase and blockBase make commits at base state (rate 0) fail or
	// block until the context ends.
	failBase  bool
	blockBase bool

	mu      sync.Mutex
	state   component.PumpState
	commits int
}

func (d *fakeDevice) Name() string { return d.name }

func (d *fakeDevice) ApplyParams(p component.Params) error {
	if _, ok := p["explode"]; ok {
		panic("device firmware crashed")
	}
	rate, ok, err := p.Float("rate")
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if ok {
		d.state.Rate = rate
	}
	return nil
}

func (d *fakeDevice) Commit(ctx context.Context) error {
	d.mu.Lock()
	atBase := d.state.Rate == 0
	d.mu.Unlock()

	switch {
	case atBase && d.blockBase:
		<-ctx.Done()
		return ctx.Err()
	case atBase && d.failBase:
		return fmt.Errorf("%s refuses to stop", d.name)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.commits++
	return nil
}

// fakeSensor is a fakeDevice that yields a fixed list of readings.
type fakeSensor struct {
	*fakeDevice
	readings []component.Reading
}

func (s *fakeSensor) ReadStream(ctx context.Context, _ bool) iter.Seq2[component.Reading, error] {
	return func(yield func(component.Reading, error) bool) {
		for _, r := range s.readings {
			if ctx.Err() != nil || !yield(r, nil) {
				return
			}
		}
	}
}

func (d *fakeDevice) BaseState() component.Params { return component.PumpState{}.Params() }

func (d *fakeDevice) Snapshot() component.Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *fakeDevice) Restore(s component.Snapshot) error {
	st, ok := s.(component.PumpState)
	if !ok {
		return errors.New("wrong snapshot")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = st
	return nil
}

func (d *fakeDevice) Connect(context.Context) error {
	if d.failConnect {
		return errors.New("port busy")
	}
	d.log.add("connect %s", d.name)
	return nil
}

func (d *fakeDevice) Close() error {
	d.log.add("close %s", d.name)
	return nil
}

// recordingObserver counts what the experiment hands to observers.
type recordingObserver struct {
	mu         sync.Mutex
	records    int
	datapoints int
	released   bool
}

func (o *recordingObserver) RecordAdded(experiment.ExecutionRecord) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.records++
}

func (o *recordingObserver) DatapointAdded(string, experiment.Datapoint) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.datapoints++
}

func (o *recordingObserver) Release() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.released = true
}

// runAsync runs exp in the background and returns a channel with the outcome.
func runAsync(ctx context.Context, exp *experiment.Experiment, opts Options) <-chan Outcome {
	done := make(chan Outcome, 1)
	go func() {
		out, err := NewExecutor(nil).Run(ctx, exp, opts)
		if err != nil {
			out = Outcome{Status: StatusStoppedByFailure, Err: err}
		}
		done <- out
	}()
	return done
}
