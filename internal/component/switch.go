package component

import (
	"context"
	"fmt"
	"sync"
)

// Switch is a simulated on/off device such as a valve or a stirrer.
//
// Parameters: active (bool). Base state: inactive.
type Switch struct {
	name string

	mu        sync.Mutex
	state     SwitchState
	committed SwitchState
	commits   int

	// failWhenActive turns the switch into the broken_switch kind.
	failWhenActive bool
}

// NewSwitch creates a simulated switch.
func NewSwitch(name string) *Switch {
	return &Switch{name: name}
}

// NewBrokenSwitch creates a switch whose commits fail while it is active.
// Used to rehearse failure handling on the bench.
func NewBrokenSwitch(name string) *Switch {
	return &Switch{name: name, failWhenActive: true}
}

func (s *Switch) Name() string { return s.name }

func (s *Switch) ValidateParams(p Params) error {
	if err := p.checkKeys("active"); err != nil {
		return err
	}
	_, _, err := p.Bool("active")
	return err
}

func (s *Switch) ApplyParams(p Params) error {
	if err := s.ValidateParams(p); err != nil {
		return err
	}
	active, ok, _ := p.Bool("active") //nolint:errcheck // validated above

	s.mu.Lock()
	defer s.mu.Unlock()
	if ok {
		s.state.Active = active
	}
	return nil
}

func (s *Switch) Commit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWhenActive && s.state.Active {
		return fmt.Errorf("%w: %s cannot switch on", ErrCommitFailed, s.name)
	}
	s.committed = s.state
	s.commits++
	return nil
}

func (s *Switch) BaseState() Params { return SwitchState{}.Params() }

func (s *Switch) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Switch) Restore(snap Snapshot) error {
	st, ok := snap.(SwitchState)
	if !ok {
		return fmt.Errorf("%w: %s got %s", ErrSnapshotKind, s.name, snap.Kind())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
	return nil
}

// Committed returns the state last pushed to the device.
func (s *Switch) Committed() SwitchState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.committed
}

// Commits returns the number of successful commits.
func (s *Switch) Commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}
