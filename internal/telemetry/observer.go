// Package telemetry exports experiment outputs to the time-series store.
package telemetry

import (
	"maps"
	"time"

	"github.com/nerrad567/flowlab-core/internal/experiment"
)

// Measurement names written to InfluxDB.
const (
	MeasurementRecord    = "execution_record"
	MeasurementDatapoint = "datapoint"
	MeasurementStatus    = "experiment_status"
)

// PointWriter queues points for asynchronous delivery.
// *influxdb.Client satisfies it.
type PointWriter interface {
	WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time)
	Flush()
}

// InfluxObserver writes one run's records, datapoints and status changes.
// Bind it with Experiment.BindObserver; the executor flushes it when the
// run ends.
type InfluxObserver struct {
	w    PointWriter
	base map[string]string
}

// NewInfluxObserver creates an observer tagging every point with the
// experiment and lab identity.
func NewInfluxObserver(w PointWriter, exp *experiment.Experiment, labID string) *InfluxObserver {
	base := map[string]string{"experiment_id": exp.ID(), "lab_id": labID}
	if p := exp.Protocol(); p != nil {
		base["protocol"] = p.Name
	}
	return &InfluxObserver{w: w, base: base}
}

func (o *InfluxObserver) tags(extra ...string) map[string]string {
	t := maps.Clone(o.base)
	for i := 0; i+1 < len(extra); i += 2 {
		t[extra[i]] = extra[i+1]
	}
	return t
}

// RecordAdded writes one execution record. Numeric parameters become
// fields so they can be graphed next to sensor data.
func (o *InfluxObserver) RecordAdded(rec experiment.ExecutionRecord) {
	fields := map[string]any{
		"offset_s":  rec.Offset.Seconds(),
		"elapsed_s": rec.Elapsed.Seconds(),
		"failed":    rec.Error != "",
	}
	for k, v := range rec.Params {
		switch n := v.(type) {
		case float64, int, int64, bool:
			fields["param_"+k] = n
		}
	}
	o.w.WritePointWithTime(MeasurementRecord,
		o.tags("component", rec.Component, "kind", string(rec.Kind)), fields, rec.Timestamp)
}

// DatapointAdded writes one sensor sample.
func (o *InfluxObserver) DatapointAdded(device string, dp experiment.Datapoint) {
	o.w.WritePointWithTime(MeasurementDatapoint,
		o.tags("device", device),
		map[string]any{"value": dp.Value, "elapsed_s": dp.Elapsed.Seconds()},
		dp.Timestamp)
}

// StatusChanged writes the run flags on every change.
func (o *InfluxObserver) StatusChanged(st experiment.Status) {
	o.w.WritePointWithTime(MeasurementStatus, o.tags(), map[string]any{
		"paused":       st.Paused,
		"cancelled":    st.Cancelled,
		"end_signal":   st.EndSignal,
		"is_executing": st.IsExecuting,
		"elapsed_s":    st.Elapsed.Seconds(),
		"records":      st.Records,
	}, time.Now())
}

// Release flushes queued points.
func (o *InfluxObserver) Release() {
	o.w.Flush()
}
