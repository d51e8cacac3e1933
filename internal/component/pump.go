package component

import (
	"context"
	"fmt"
	"sync"

	"github.com/nerrad567/flowlab-core/internal/infrastructure/mqtt"
)

// Publisher sends device commands over the bus.
// *mqtt.Client satisfies it.
type Publisher interface {
	PublishJSON(topic string, v any) error
}

// Pump is a flow pump.
//
// Parameters: rate (mL/min, >= 0). Base state: rate 0.
// Without a publisher the pump is simulated; with one, every commit is
// published to the device's command topic.
type Pump struct {
	name     string
	protocol string
	pub      Publisher

	mu        sync.Mutex
	state     PumpState
	committed PumpState
	commits   int
}

// NewPump creates a simulated pump.
func NewPump(name string) *Pump {
	return &Pump{name: name}
}

// NewMQTTPump creates a pump driven through an MQTT bridge.
func NewMQTTPump(name, protocol string, pub Publisher) *Pump {
	return &Pump{name: name, protocol: protocol, pub: pub}
}

func (p *Pump) Name() string { return p.name }

func (p *Pump) ValidateParams(params Params) error {
	_, _, err := params.nonNegativeRate()
	return err
}

func (p *Pump) ApplyParams(params Params) error {
	rate, ok, err := params.nonNegativeRate()
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if ok {
		p.state.Rate = rate
	}
	return nil
}

// Commit sends the current rate. The device lock is held while
// publishing so commits reach the bridge in order.
func (p *Pump) Commit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pub != nil {
		topic := mqtt.Topics{}.DeviceCommand(p.protocol, p.name)
		if err := p.pub.PublishJSON(topic, p.state); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrCommitFailed, p.name, err)
		}
	}
	p.committed = p.state
	p.commits++
	return nil
}

func (p *Pump) BaseState() Params { return PumpState{}.Params() }

func (p *Pump) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Pump) Restore(snap Snapshot) error {
	st, ok := snap.(PumpState)
	if !ok {
		return fmt.Errorf("%w: %s got %s", ErrSnapshotKind, p.name, snap.Kind())
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = st
	return nil
}

// Committed returns the state last pushed to the device.
func (p *Pump) Committed() PumpState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.committed
}

// Commits returns the number of successful commits.
func (p *Pump) Commits() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.commits
}
