package component

import (
	"fmt"
	"sync"

	"github.com/nerrad567/flowlab-core/internal/infrastructure/config"
)

// Device kinds accepted in the devices section of the config file.
const (
	KindSwitch       = "switch"
	KindBrokenSwitch = "broken_switch"
	KindPump         = "pump"
	KindSensor       = "sensor"
	KindBrokenSensor = "broken_sensor"
	KindMQTTPump     = "mqtt_pump"
	KindMQTTSensor   = "mqtt_sensor"
)

// Registry maps device names to components.
//
// All public methods are thread-safe.
type Registry struct {
	mu         sync.RWMutex
	components map[string]Component
	order      []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{components: make(map[string]Component)}
}

// Register adds a component under its name.
func (r *Registry) Register(c Component) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := c.Name()
	if _, exists := r.components[name]; exists {
		return fmt.Errorf("%w: %s", ErrExists, name)
	}
	r.components[name] = c
	r.order = append(r.order, name)
	return nil
}

// Get returns the component registered under name.
func (r *Registry) Get(name string) (Component, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.components[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return c, nil
}

// Names returns registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Len returns the number of registered components.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.components)
}

// Build creates one component from its declaration. bus may be nil when
// no MQTT kinds are declared.
func Build(d config.DeviceConfig, bus Bus) (Component, error) {
	switch d.Kind {
	case KindSwitch:
		return NewSwitch(d.Name), nil
	case KindBrokenSwitch:
		return NewBrokenSwitch(d.Name), nil
	case KindPump:
		return NewPump(d.Name), nil
	case KindSensor:
		return NewSensor(d.Name), nil
	case KindBrokenSensor:
		return NewBrokenSensor(d.Name), nil
	case KindMQTTPump:
		if bus == nil {
			return nil, fmt.Errorf("%w: %s", ErrNoBus, d.Name)
		}
		return NewMQTTPump(d.Name, d.Protocol, bus), nil
	case KindMQTTSensor:
		if bus == nil {
			return nil, fmt.Errorf("%w: %s", ErrNoBus, d.Name)
		}
		return NewMQTTSensor(d.Name, d.Protocol, bus), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, d.Kind)
	}
}

// BuildRegistry creates and registers every declared device.
func BuildRegistry(devices []config.DeviceConfig, bus Bus) (*Registry, error) {
	r := NewRegistry()
	for _, d := range devices {
		c, err := Build(d, bus)
		if err != nil {
			return nil, err
		}
		if err := r.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}
