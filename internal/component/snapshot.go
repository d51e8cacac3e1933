package component

// Snapshot is the captured mutable state of one component.
//
// The set of implementations is closed: SwitchState, PumpState and
// SensorState.
type Snapshot interface {
	// Kind names the component kind the snapshot belongs to.
	Kind() string

	sealed()
}

// SwitchState is the state of an on/off device.
type SwitchState struct {
	Active bool `json:"active"`
}

// PumpState is the state of a flow pump. Rate is in mL/min.
type PumpState struct {
	Rate float64 `json:"rate"`
}

// SensorState is the state of a sampling sensor. Rate is in Hz.
type SensorState struct {
	Rate float64 `json:"rate"`
}

func (SwitchState) Kind() string { return "switch" }
func (PumpState) Kind() string   { return "pump" }
func (SensorState) Kind() string { return "sensor" }

func (SwitchState) sealed() {}
func (PumpState) sealed()   {}
func (SensorState) sealed() {}

// Params renders the snapshot as protocol parameters.
func (s SwitchState) Params() Params { return Params{"active": s.Active} }

// Params renders the snapshot as protocol parameters.
func (s PumpState) Params() Params { return Params{"rate": s.Rate} }

// Params renders the snapshot as protocol parameters.
func (s SensorState) Params() Params { return Params{"rate": s.Rate} }
