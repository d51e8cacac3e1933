// Package component defines the devices a protocol drives.
//
// A device is described by capabilities rather than a class hierarchy:
//
//   - Component: every device. ApplyParams changes in-memory state only;
//     Commit pushes that state to the hardware and may fail or block.
//     BaseState is the fixed safe configuration the device returns to on
//     pause and at the end of every run. Snapshot and Restore capture the
//     mutable state as a tagged Snapshot value.
//   - Observable: devices that produce readings through ReadStream.
//   - Connector: devices that hold a connection for the length of a run.
//
// The executor discovers Observable and Connector once, with a type
// assertion, when it builds the run.
//
// Built-in kinds cover bench simulation (switch, pump, sensor and their
// deliberately failing variants) and MQTT-bridged hardware (mqtt_pump,
// mqtt_sensor). BuildRegistry creates them from the devices section of
// the config file.
package component
