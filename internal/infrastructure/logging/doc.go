// Package logging provides structured logging for FlowLab Core.
//
// It wraps log/slog so every package logs the same way: JSON for
// machine consumption, text for the bench terminal, and default
// service/version fields on every entry.
//
// Configuration lives in the logging section of the config file:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "text"     # json, text
//	  output: "stderr"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	runLog := logger.ForExperiment(exp.ID())
//	runLog.Info("experiment started", "protocol", exp.Protocol().Name)
//
// Never log secrets (MQTT passwords, InfluxDB tokens).
package logging
