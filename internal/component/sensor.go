package component

import (
	"context"
	"fmt"
	"iter"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// idlePoll is how often a sensor with rate 0 checks for a new rate.
	idlePoll = 100 * time.Millisecond

	// brokenSensorReads is how many good readings a broken sensor gives.
	brokenSensorReads = 15
)

// Sensor is a simulated sensor producing a random walk.
//
// Parameters: rate (Hz, >= 0). Base state: rate 0, which stops sampling.
// Sampling follows the in-memory rate, so dry runs produce readings too.
type Sensor struct {
	name string

	mu        sync.Mutex
	state     SensorState
	committed SensorState
	commits   int
	value     float64
	reads     int
	rng       *rand.Rand

	limiter *rate.Limiter

	// failAfter > 0 turns the sensor into the broken_sensor kind.
	failAfter int
}

// NewSensor creates a simulated sensor.
func NewSensor(name string) *Sensor {
	return &Sensor{
		name:    name,
		rng:     rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5eed)), // #nosec G404 -- simulation noise
		limiter: rate.NewLimiter(rate.Inf, 1),
	}
}

// NewBrokenSensor creates a sensor whose reads fail after fifteen good
// readings while sampling.
func NewBrokenSensor(name string) *Sensor {
	s := NewSensor(name)
	s.failAfter = brokenSensorReads
	return s
}

func (s *Sensor) Name() string { return s.name }

func (s *Sensor) ValidateParams(p Params) error {
	_, _, err := p.nonNegativeRate()
	return err
}

func (s *Sensor) ApplyParams(p Params) error {
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

func (s *Sensor) Commit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.committed = s.state
	s.commits++
	return nil
}

func (s *Sensor) BaseState() Params { return SensorState{}.Params() }

func (s *Sensor) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Sensor) Restore(snap Snapshot) error {
	st, ok := snap.(SensorState)
	if !ok {
		return fmt.Errorf("%w: %s got %s", ErrSnapshotKind, s.name, snap.Kind())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
	return nil
}

// Committed returns the state last pushed to the device.
func (s *Sensor) Committed() SensorState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.committed
}

// Commits returns the number of successful commits.
func (s *Sensor) Commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}

func (s *Sensor) currentRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Rate
}

func (s *Sensor) sample() (Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reads++
	if s.failAfter > 0 && s.reads > s.failAfter && s.state.Rate > 0 {
		return Reading{}, fmt.Errorf("%w: %s stopped responding after %d reads", ErrReadFailed, s.name, s.failAfter)
	}

	s.value += s.rng.Float64()*2 - 1
	return Reading{Value: s.value, Timestamp: time.Now()}, nil
}

// ReadStream samples at the current rate until ctx ends. While the rate
// is 0 no readings are produced.
func (s *Sensor) ReadStream(ctx context.Context, _ bool) iter.Seq2[Reading, error] {
	return func(yield func(Reading, error) bool) {
		for {
			hz := s.currentRate()
			if hz <= 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(idlePoll):
					continue
				}
			}

			s.limiter.SetLimit(rate.Limit(hz))
			if err := s.limiter.Wait(ctx); err != nil {
				return
			}

			if !yield(s.sample()) {
				return
			}
		}
	}
}
