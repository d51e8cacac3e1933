// Package influxdb provides InfluxDB connectivity for FlowLab Core.
//
// It wraps influxdb-client-go v2 with connection checks and a
// non-blocking batched write API. The telemetry package turns execution
// records and sensor datapoints into points written through this client.
//
// Usage:
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	client.SetOnError(func(err error) { logger.Warn("telemetry write", "error", err) })
package influxdb
