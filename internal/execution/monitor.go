package execution

import (
	"context"
	"fmt"

	"github.com/nerrad567/flowlab-core/internal/component"
	"github.com/nerrad567/flowlab-core/internal/experiment"
)

// monitor forwards one observable device's readings to the timeline.
type monitor struct {
	exp    *experiment.Experiment
	obs    component.Observable
	timer  Timer
	strict bool
	log    Logger
}

// Run consumes the device stream until ctx ends. ctx is cancelled by
// the end signal as well as by a failing run.
func (m *monitor) Run(ctx context.Context) error {
	name := m.obs.Name()
	for reading, err := range m.obs.ReadStream(ctx, m.exp.DryRun().Enabled()) {
		if err != nil {
			failure := fmt.Errorf("%w: %s: %w", ErrSensorRead, name, err)
			if m.strict {
				m.log.Error("sensor read failed", "component", name, "error", err)
				return failure
			}
			m.log.Warn("sensor read failed, continuing", "component", name, "error", err)
			continue
		}

		if reading.Timestamp.IsZero() {
			reading.Timestamp = m.timer.now()
		}
		m.exp.AddDatapoint(name, experiment.Datapoint{
			Value:     reading.Value,
			Timestamp: reading.Timestamp,
			Elapsed:   m.exp.Elapsed(reading.Timestamp),
		})
	}
	return nil
}
