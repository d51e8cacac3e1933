package telemetry

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/flowlab-core/internal/component"
	"github.com/nerrad567/flowlab-core/internal/experiment"
	"github.com/nerrad567/flowlab-core/internal/protocol"
)

type point struct {
	measurement string
	tags        map[string]string
	fields      map[string]any
	ts          time.Time
}

type fakeWriter struct {
	mu      sync.Mutex
	points  []point
	flushed int
}

func (w *fakeWriter) WritePointWithTime(m string, tags map[string]string, fields map[string]any, ts time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.points = append(w.points, point{m, tags, fields, ts})
}

func (w *fakeWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.flushed++
}

func (w *fakeWriter) byMeasurement(m string) []point {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []point
	for _, p := range w.points {
		if p.measurement == m {
			out = append(out, p)
		}
	}
	return out
}

func TestInfluxObserver(t *testing.T) {
	w := &fakeWriter{}
	exp := experiment.New(&protocol.Compiled{Name: "hydrogenation"})
	obs := NewInfluxObserver(w, exp, "lab-001")
	exp.BindObserver(obs)

	require.NoError(t, exp.Begin(experiment.DryRunOff))

	ts := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	exp.AppendRecord(experiment.ExecutionRecord{
		Timestamp: ts,
		Component: "pumpA",
		Kind:      experiment.KindExecuted,
		Params:    component.Params{"rate": 1.5, "label": "ignored"},
		Offset:    10 * time.Second,
		Elapsed:   10*time.Second + 2*time.Millisecond,
	})
	exp.AddDatapoint("od", experiment.Datapoint{Value: 0.42, Timestamp: ts, Elapsed: time.Second})

	records := w.byMeasurement(MeasurementRecord)
	require.Len(t, records, 1)
	assert.Equal(t, "pumpA", records[0].tags["component"])
	assert.Equal(t, "executed", records[0].tags["kind"])
	assert.Equal(t, exp.ID(), records[0].tags["experiment_id"])
	assert.Equal(t, "hydrogenation", records[0].tags["protocol"])
	assert.Equal(t, 1.5, records[0].fields["param_rate"])
	assert.NotContains(t, records[0].fields, "param_label")
	assert.Equal(t, false, records[0].fields["failed"])
	assert.Equal(t, ts, records[0].ts)

	points := w.byMeasurement(MeasurementDatapoint)
	require.Len(t, points, 1)
	assert.Equal(t, "od", points[0].tags["device"])
	assert.Equal(t, 0.42, points[0].fields["value"])
	assert.NotContains(t, points[0].tags, "component")

	assert.NotEmpty(t, w.byMeasurement(MeasurementStatus), "Begin publishes a status change")

	exp.ReleaseObservers()
	assert.Equal(t, 1, w.flushed)
}
