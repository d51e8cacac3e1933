package component

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/flowlab-core/internal/infrastructure/mqtt"
)

type published struct {
	topic string
	value any
}

type fakeBus struct {
	mu         sync.Mutex
	published  []published
	handlers   map[string]mqtt.MessageHandler
	publishErr error
}

func newFakeBus() *fakeBus {
	return &fakeBus{handlers: make(map[string]mqtt.MessageHandler)}
}

func (b *fakeBus) PublishJSON(topic string, v any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.publishErr != nil {
		return b.publishErr
	}
	b.published = append(b.published, published{topic: topic, value: v})
	return nil
}

func (b *fakeBus) Subscribe(topic string, _ byte, h mqtt.MessageHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = h
	return nil
}

func (b *fakeBus) Unsubscribe(topic string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, topic)
	return nil
}

func (b *fakeBus) QoS() byte { return 1 }

func (b *fakeBus) deliver(t *testing.T, topic string, payload string) error {
	t.Helper()
	b.mu.Lock()
	h, ok := b.handlers[topic]
	b.mu.Unlock()
	require.True(t, ok, "no handler for %s", topic)
	return h(topic, []byte(payload))
}

func TestParams_Float(t *testing.T) {
	tests := []struct {
		name    string
		params  Params
		want    float64
		wantOK  bool
		wantErr bool
	}{
		{name: "float", params: Params{"rate": 1.5}, want: 1.5, wantOK: true},
		{name: "int from yaml", params: Params{"rate": 2}, want: 2, wantOK: true},
		{name: "absent", params: Params{}, wantOK: false},
		{name: "string", params: Params{"rate": "fast"}, wantOK: true, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := tt.params.Float("rate")
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidParam)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestParams_Clone(t *testing.T) {
	orig := Params{"rate": 1.0}
	c := orig.Clone()
	c["rate"] = 2.0
	assert.Equal(t, 1.0, orig["rate"])

	assert.NotNil(t, Params(nil).Clone())
}

func TestValidateParams(t *testing.T) {
	tests := []struct {
		name    string
		c       Validator
		params  Params
		wantErr bool
	}{
		{name: "switch ok", c: NewSwitch("v"), params: Params{"active": true}},
		{name: "switch wrong type", c: NewSwitch("v"), params: Params{"active": 1}, wantErr: true},
		{name: "switch unknown key", c: NewSwitch("v"), params: Params{"rate": 1}, wantErr: true},
		{name: "pump ok", c: NewPump("p"), params: Params{"rate": 3}},
		{name: "pump negative", c: NewPump("p"), params: Params{"rate": -1}, wantErr: true},
		{name: "sensor ok", c: NewSensor("s"), params: Params{"rate": 10.0}},
		{name: "sensor unknown key", c: NewSensor("s"), params: Params{"active": true}, wantErr: true},
		{name: "empty is fine", c: NewPump("p"), params: Params{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.c.ValidateParams(tt.params)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidParam)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSwitch_ApplyAndCommit(t *testing.T) {
	s := NewSwitch("valve")
	ctx := context.Background()

	require.NoError(t, s.ApplyParams(Params{"active": true}))
	assert.Equal(t, SwitchState{}, s.Committed(), "apply must not touch the device")

	require.NoError(t, s.Commit(ctx))
	assert.Equal(t, SwitchState{Active: true}, s.Committed())
	assert.Equal(t, 1, s.Commits())

	require.NoError(t, s.ApplyParams(s.BaseState()))
	require.NoError(t, s.Commit(ctx))
	assert.Equal(t, SwitchState{}, s.Committed())
}

func TestBrokenSwitch(t *testing.T) {
	s := NewBrokenSwitch("valve")
	ctx := context.Background()

	require.NoError(t, s.ApplyParams(Params{"active": true}))
	assert.ErrorIs(t, s.Commit(ctx), ErrCommitFailed)

	require.NoError(t, s.ApplyParams(Params{"active": false}))
	assert.NoError(t, s.Commit(ctx))
}

func TestCommit_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, NewPump("p").Commit(ctx), context.Canceled)
	assert.ErrorIs(t, NewSwitch("s").Commit(ctx), context.Canceled)
}

func TestSnapshotRestore(t *testing.T) {
	tests := []struct {
		name   string
		c      Component
		params Params
	}{
		{name: "switch", c: NewSwitch("v"), params: Params{"active": true}},
		{name: "pump", c: NewPump("p"), params: Params{"rate": 4.5}},
		{name: "sensor", c: NewSensor("s"), params: Params{"rate": 2.0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, tt.c.ApplyParams(tt.params))
			snap := tt.c.Snapshot()

			require.NoError(t, tt.c.ApplyParams(tt.c.BaseState()))
			assert.NotEqual(t, snap, tt.c.Snapshot())

			require.NoError(t, tt.c.Restore(snap))
			assert.Equal(t, snap, tt.c.Snapshot())
		})
	}
}

func TestRestore_WrongKind(t *testing.T) {
	err := NewPump("p").Restore(SwitchState{Active: true})
	assert.ErrorIs(t, err, ErrSnapshotKind)
}

func TestMQTTPump_PublishesOnCommit(t *testing.T) {
	bus := newFakeBus()
	p := NewMQTTPump("pumpA", "serial", bus)

	require.NoError(t, p.ApplyParams(Params{"rate": 1.5}))
	assert.Empty(t, bus.published)

	require.NoError(t, p.Commit(context.Background()))
	require.Len(t, bus.published, 1)
	assert.Equal(t, "flowlab/command/serial/pumpA", bus.published[0].topic)
	assert.Equal(t, PumpState{Rate: 1.5}, bus.published[0].value)
}

func TestMQTTPump_PublishFailure(t *testing.T) {
	bus := newFakeBus()
	bus.publishErr = errors.New("not connected")
	p := NewMQTTPump("pumpA", "serial", bus)

	require.NoError(t, p.ApplyParams(Params{"rate": 1}))
	err := p.Commit(context.Background())
	assert.ErrorIs(t, err, ErrCommitFailed)
	assert.Equal(t, 0, p.Commits())
}

func collect(ctx context.Context, o Observable, dryRun bool, n int) ([]Reading, []error) {
	var (
		readings []Reading
		errs     []error
	)
	for r, err := range o.ReadStream(ctx, dryRun) {
		if err != nil {
			errs = append(errs, err)
		} else {
			readings = append(readings, r)
		}
		if len(readings)+len(errs) >= n {
			break
		}
	}
	return readings, errs
}

func TestSensor_ReadStream(t *testing.T) {
	s := NewSensor("od")
	require.NoError(t, s.ApplyParams(Params{"rate": 200.0}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	readings, errs := collect(ctx, s, false, 5)
	assert.Empty(t, errs)
	assert.Len(t, readings, 5)
}

func TestSensor_RateZeroProducesNothing(t *testing.T) {
	s := NewSensor("od")

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()

	readings, errs := collect(ctx, s, false, 1)
	assert.Empty(t, readings)
	assert.Empty(t, errs)
}

func TestBrokenSensor_FailsAfterGoodReads(t *testing.T) {
	s := NewBrokenSensor("od")
	require.NoError(t, s.ApplyParams(Params{"rate": 1000.0}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	readings, errs := collect(ctx, s, false, brokenSensorReads+1)
	assert.Len(t, readings, brokenSensorReads)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrReadFailed)
}

func TestMQTTSensor_ConnectReadClose(t *testing.T) {
	bus := newFakeBus()
	s := NewMQTTSensor("od", "serial", bus)
	topic := "flowlab/state/serial/od"

	require.NoError(t, s.Connect(context.Background()))
	require.NoError(t, bus.deliver(t, topic, `{"value": 0.42, "timestamp": "2026-10-16T12:00:00Z"}`))
	assert.ErrorIs(t, bus.deliver(t, topic, `not json`), ErrReadFailed)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	readings, errs := collect(ctx, s, false, 2)
	require.Len(t, readings, 1)
	assert.InDelta(t, 0.42, readings[0].Value, 1e-9)
	assert.Equal(t, time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC), readings[0].Timestamp.UTC())
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrReadFailed)

	require.NoError(t, s.Close())
	bus.mu.Lock()
	assert.Empty(t, bus.handlers)
	bus.mu.Unlock()
}

func TestMQTTSensor_DropsOldestWhenFull(t *testing.T) {
	bus := newFakeBus()
	s := NewMQTTSensor("od", "serial", bus)
	require.NoError(t, s.Connect(context.Background()))

	for range readingBuffer + 5 {
		require.NoError(t, bus.deliver(t, "flowlab/state/serial/od", `{"value": 1}`))
	}
	assert.Len(t, s.readings, readingBuffer)
}

func TestMQTTSensor_DryRunProducesNothing(t *testing.T) {
	s := NewMQTTSensor("od", "serial", newFakeBus())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	readings, errs := collect(ctx, s, true, 1)
	assert.Empty(t, readings)
	assert.Empty(t, errs)
}
