package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nerrad567/flowlab-core/internal/experiment"
	"github.com/nerrad567/flowlab-core/internal/infrastructure/logging"
	"github.com/nerrad567/flowlab-core/internal/infrastructure/mqtt"
)

// controlBus is the MQTT surface the control bridge needs.
// *mqtt.Client satisfies it.
type controlBus interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	PublishRetained(topic string, payload []byte) error
	QoS() byte
}

// controlBridge exposes an experiment on the MQTT bus: it applies
// pause/resume/cancel requests from the control topic and publishes every
// status change to the status topic.
type controlBridge struct {
	bus   controlBus
	exp   *experiment.Experiment
	log   *logging.Logger
	topic string
}

func newControlBridge(bus controlBus, exp *experiment.Experiment, log *logging.Logger) *controlBridge {
	return &controlBridge{
		bus:   bus,
		exp:   exp,
		log:   log,
		topic: mqtt.Topics{}.ExperimentControl(exp.ID()),
	}
}

// Start subscribes to the control topic and binds the status publisher.
func (b *controlBridge) Start() error {
	if err := b.bus.Subscribe(b.topic, b.bus.QoS(), b.handleControl); err != nil {
		return fmt.Errorf("subscribing to %s: %w", b.topic, err)
	}
	b.exp.BindObserver(b)
	b.log.Info("experiment control topic ready", "topic", b.topic)
	return nil
}

// Stop unsubscribes from the control topic.
func (b *controlBridge) Stop() {
	if err := b.bus.Unsubscribe(b.topic); err != nil {
		b.log.Warn("unsubscribing control topic failed", "topic", b.topic, "error", err)
	}
}

func (b *controlBridge) handleControl(_ string, payload []byte) error {
	msg, err := mqtt.ParseControlMessage(payload)
	if err != nil {
		return err
	}

	switch msg.Action {
	case mqtt.ActionPause:
		err = b.exp.Pause()
	case mqtt.ActionResume:
		err = b.exp.Resume()
	case mqtt.ActionCancel:
		b.exp.Cancel()
	}
	if errors.Is(err, experiment.ErrCancelled) || errors.Is(err, experiment.ErrNotRunning) {
		b.log.Warn("control request ignored", "action", msg.Action, "reason", err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("applying %s: %w", msg.Action, err)
	}
	b.log.Info("control request applied", "action", msg.Action)
	return nil
}

func (b *controlBridge) RecordAdded(experiment.ExecutionRecord) {}

func (b *controlBridge) DatapointAdded(string, experiment.Datapoint) {}

// StatusChanged publishes the new status, retained so late subscribers
// see the current state. Failures are logged only.
func (b *controlBridge) StatusChanged(st experiment.Status) {
	topic := mqtt.Topics{}.ExperimentStatus(st.ID)
	payload, err := json.Marshal(st)
	if err != nil {
		b.log.Error("encoding experiment status failed", "error", err)
		return
	}
	if err := b.bus.PublishRetained(topic, payload); err != nil {
		b.log.Warn("publishing experiment status failed", "topic", topic, "error", err)
	}
}
