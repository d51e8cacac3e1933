package component

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/nerrad567/flowlab-core/internal/infrastructure/mqtt"
)

// readingBuffer bounds readings queued between the broker and the monitor.
const readingBuffer = 64

// Subscriber receives device readings from the bus.
// *mqtt.Client satisfies it.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	QoS() byte
}

// Bus is the MQTT surface bridged devices need.
type Bus interface {
	Publisher
	Subscriber
}

type busReading struct {
	reading Reading
	err     error
}

// MQTTSensor is a sensor behind an MQTT bridge.
//
// Parameters: rate (Hz, >= 0), published to the command topic on commit.
// Readings arrive on flowlab/state/{protocol}/{device} while connected.
// In a dry run the hardware is not connected and no readings are produced.
type MQTTSensor struct {
	name     string
	protocol string
	bus      Bus

	mu         sync.Mutex
	state      SensorState
	committed  SensorState
	subscribed bool

	readings chan busReading
}

// NewMQTTSensor creates a sensor read through an MQTT bridge.
func NewMQTTSensor(name, protocol string, bus Bus) *MQTTSensor {
	return &MQTTSensor{
		name:     name,
		protocol: protocol,
		bus:      bus,
		readings: make(chan busReading, readingBuffer),
	}
}

func (s *MQTTSensor) Name() string { return s.name }

func (s *MQTTSensor) ValidateParams(p Params) error {
	_, _, err := p.nonNegativeRate()
	return err
}

func (s *MQTTSensor) ApplyParams(p Params) error {
	hz, ok, err := p.nonNegativeRate()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if ok {
		s.state.Rate = hz
	}
	return nil
}

func (s *MQTTSensor) Commit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	topic := mqtt.Topics{}.DeviceCommand(s.protocol, s.name)
	if err := s.bus.PublishJSON(topic, s.state); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrCommitFailed, s.name, err)
	}
	s.committed = s.state
	return nil
}

func (s *MQTTSensor) BaseState() Params { return SensorState{}.Params() }

func (s *MQTTSensor) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *MQTTSensor) Restore(snap Snapshot) error {
	st, ok := snap.(SensorState)
	if !ok {
		return fmt.Errorf("%w: %s got %s", ErrSnapshotKind, s.name, snap.Kind())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
	return nil
}

func (s *MQTTSensor) stateTopic() string {
	return mqtt.Topics{}.DeviceState(s.protocol, s.name)
}

// Connect subscribes to the device's state topic.
func (s *MQTTSensor) Connect(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subscribed {
		return nil
	}
	if err := s.bus.Subscribe(s.stateTopic(), s.bus.QoS(), s.handleState); err != nil {
		return fmt.Errorf("subscribing %s: %w", s.name, err)
	}
	s.subscribed = true
	return nil
}

// Close unsubscribes from the device's state topic.
func (s *MQTTSensor) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.subscribed {
		return nil
	}
	s.subscribed = false
	if err := s.bus.Unsubscribe(s.stateTopic()); err != nil {
		return fmt.Errorf("unsubscribing %s: %w", s.name, err)
	}
	return nil
}

// handleState queues a reading, dropping the oldest when the monitor
// falls behind.
func (s *MQTTSensor) handleState(_ string, payload []byte) error {
	var msg mqtt.StateMessage
	br := busReading{}
	if err := json.Unmarshal(payload, &msg); err != nil {
		br.err = fmt.Errorf("%w: %s: malformed state payload: %w", ErrReadFailed, s.name, err)
	} else {
		ts := time.Now()
		if msg.Timestamp != "" {
			if parsed, perr := time.Parse(time.RFC3339Nano, msg.Timestamp); perr == nil {
				ts = parsed
			}
		}
		br.reading = Reading{Value: msg.Value, Timestamp: ts}
	}

	for {
		select {
		case s.readings <- br:
			return br.err
		default:
		}
		select {
		case <-s.readings:
		default:
		}
	}
}

// ReadStream yields readings received from the bridge until ctx ends.
func (s *MQTTSensor) ReadStream(ctx context.Context, dryRun bool) iter.Seq2[Reading, error] {
	return func(yield func(Reading, error) bool) {
		if dryRun {
			<-ctx.Done()
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case br := <-s.readings:
				if !yield(br.reading, br.err) {
					return
				}
			}
		}
	}
}
