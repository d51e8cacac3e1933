package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Topic prefixes for the FlowLab MQTT hierarchy.
//
// Device topics use the flat scheme flowlab/{category}/{protocol}/{device}.
const (
	// TopicPrefix is the base for every FlowLab topic.
	TopicPrefix = "flowlab"

	// TopicPrefixExperiment is the base for per-run topics.
	TopicPrefixExperiment = "flowlab/experiment"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "flowlab/system"
)

// Topics provides builders for FlowLab MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.DeviceCommand("modbus", "pump-a") // flowlab/command/modbus/pump-a
type Topics struct{}

// DeviceCommand returns the topic a device bridge listens on for set-points.
//
// Example: flowlab/command/modbus/pump-a
func (Topics) DeviceCommand(protocol, device string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefix, protocol, device)
}

// DeviceState returns the topic a device bridge publishes readings on.
//
// Example: flowlab/state/modbus/thermo-1
func (Topics) DeviceState(protocol, device string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, protocol, device)
}

// ExperimentControl returns the topic carrying pause/resume/cancel requests.
//
// Example: flowlab/experiment/7f9c.../control
func (Topics) ExperimentControl(experimentID string) string {
	return fmt.Sprintf("%s/%s/control", TopicPrefixExperiment, experimentID)
}

// ExperimentStatus returns the retained run-status topic.
//
// Example: flowlab/experiment/7f9c.../status
func (Topics) ExperimentStatus(experimentID string) string {
	return fmt.Sprintf("%s/%s/status", TopicPrefixExperiment, experimentID)
}

// SystemStatus returns the core online/offline topic.
//
// Example: flowlab/system/status
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// AllDeviceStates matches readings from every bridge.
//
// Pattern: flowlab/state/+/+
func (Topics) AllDeviceStates() string {
	return TopicPrefix + "/state/+/+"
}

// AllExperimentControls matches control requests for any run.
//
// Pattern: flowlab/experiment/+/control
func (Topics) AllExperimentControls() string {
	return TopicPrefixExperiment + "/+/control"
}

// ParseDeviceTopic splits a device topic into its category, protocol and device.
// It returns ok=false for topics outside the flat device scheme.
func ParseDeviceTopic(topic string) (category, protocol, device string, ok bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != TopicPrefix {
		return "", "", "", false
	}
	if parts[1] != "command" && parts[1] != "state" {
		return "", "", "", false
	}
	return parts[1], parts[2], parts[3], true
}

// Control actions accepted on the experiment control topic.
const (
	ActionPause  = "pause"
	ActionResume = "resume"
	ActionCancel = "cancel"
)

// ControlMessage is the payload of an experiment control request.
type ControlMessage struct {
	Action string `json:"action"`
}

// ParseControlMessage decodes and validates a control payload.
func ParseControlMessage(payload []byte) (ControlMessage, error) {
	var msg ControlMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return ControlMessage{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	switch msg.Action {
	case ActionPause, ActionResume, ActionCancel:
		return msg, nil
	default:
		return ControlMessage{}, fmt.Errorf("%w: unknown action %q", ErrInvalidPayload, msg.Action)
	}
}

// StateMessage is the payload a bridge publishes on a device state topic.
type StateMessage struct {
	Value     float64 `json:"value"`
	Timestamp string  `json:"timestamp,omitempty"`
}
