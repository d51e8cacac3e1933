// Package mqtt provides MQTT connectivity for FlowLab Core.
//
// MQTT is the bus between the executor and bench hardware bridges.
// Device commands flow out on flowlab/command/{protocol}/{device},
// readings flow back on flowlab/state/{protocol}/{device}, and each
// running experiment listens for pause/resume/cancel requests on
// flowlab/experiment/{id}/control.
//
//	FlowLab Core ↔ MQTT Broker ↔ Device Bridges
//
// The client reconnects automatically and restores its subscriptions.
// A Last Will on flowlab/system/status lets bridges notice a crashed core.
//
// Usage:
//
//	client, err := mqtt.Connect(ctx, cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topic := mqtt.Topics{}.DeviceCommand("modbus", "pump-a")
//	err = client.PublishJSON(topic, map[string]any{"rate": 1.5})
package mqtt
