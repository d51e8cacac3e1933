package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WritePointWithTime queues one point with an explicit timestamp.
//
// Tags should stay low-cardinality (experiment ID, device name, kind);
// measured values go in fields. The write is non-blocking and silently
// dropped when the client is not connected.
//
// Example:
//
//	client.WritePointWithTime("datapoint",
//	    map[string]string{"experiment_id": id, "device": "thermo-1"},
//	    map[string]any{"value": 21.5, "elapsed_s": 3.2},
//	    reading.Timestamp)
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
}

// WritePoint queues one point stamped with the current time.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}
