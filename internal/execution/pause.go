package execution

import (
	"context"
	"fmt"

	"github.com/nerrad567/flowlab-core/internal/component"
	"github.com/nerrad567/flowlab-core/internal/experiment"
)

// PauseState is the pause controller's view of the run.
type PauseState int

const (
	Running PauseState = iota
	Paused
)

func (s PauseState) String() string {
	switch s {
	case Running:
		return "running"
	case Paused:
		return "paused"
	default:
		return fmt.Sprintf("PauseState(%d)", int(s))
	}
}

// pauseController parks every device at base state while the experiment
// is paused and restores the exact prior state on resume.
type pauseController struct {
	exp    *experiment.Experiment
	guards []*guarded
	strict bool
	log    Logger

	// Owned by the Run goroutine.
	state     PauseState
	snapshots map[string]component.Snapshot
}

func (p *pauseController) Run(ctx context.Context) error {
	for {
		changed := p.exp.Changed()

		var err error
		switch want := p.exp.Paused(); {
		case want && p.state == Running:
			err = p.pause(ctx)
		case !want && p.state == Paused:
			err = p.resume(ctx)
		}
		if err != nil {
			return err
		}

		// Devices parked by a pause stay with the controller until resume.
		if p.exp.Cancelled() || (p.exp.EndSignal() && p.state == Running) {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-changed:
		}
	}
}

func (p *pauseController) pause(ctx context.Context) error {
	p.log.Info("pausing experiment", "components", len(p.guards))
	p.snapshots = make(map[string]component.Snapshot, len(p.guards))

	for _, g := range p.guards {
		err := p.withGuard(g, func() error {
			p.snapshots[g.c.Name()] = g.c.Snapshot()
			if err := g.c.ApplyParams(g.c.BaseState()); err != nil {
				return err
			}
			return p.commit(ctx, g.c)
		})
		if err := p.handle(g.c.Name(), "pause", err); err != nil {
			return err
		}
	}
	p.state = Paused
	return nil
}

func (p *pauseController) resume(ctx context.Context) error {
	p.log.Info("resuming experiment", "components", len(p.guards))

	for _, g := range p.guards {
		snap, ok := p.snapshots[g.c.Name()]
		if !ok {
			continue
		}
		err := p.withGuard(g, func() error {
			if err := g.c.Restore(snap); err != nil {
				return err
			}
			return p.commit(ctx, g.c)
		})
		if err := p.handle(g.c.Name(), "resume", err); err != nil {
			return err
		}
	}
	p.snapshots = nil
	p.state = Running
	return nil
}

func (p *pauseController) withGuard(g *guarded, fn func() error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return fn()
}

func (p *pauseController) commit(ctx context.Context, c component.Component) error {
	if p.exp.DryRun().Enabled() {
		return nil
	}
	return c.Commit(ctx)
}

// handle applies the failure policy to one component's pause or resume.
func (p *pauseController) handle(name, phase string, err error) error {
	if err == nil {
		return nil
	}
	failure := fmt.Errorf("%w: %s during %s: %w", ErrDeviceCommit, name, phase, err)
	if p.strict {
		p.log.Error("pause transition failed", "component", name, "phase", phase, "error", err)
		return failure
	}
	p.log.Warn("pause transition failed, continuing", "component", name, "phase", phase, "error", err)
	return nil
}
