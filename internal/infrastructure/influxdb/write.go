package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WritePoint writes a point stamped now.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a point at ts. Offline replays pass the scan
// time so a batch uploaded hours later still lands where it happened:
//
//	client.WritePointWithTime("movement",
//	    map[string]string{"hostel": "A", "action": "in"},
//	    map[string]any{"time_spent_minutes": 500.0},
//	    scannedAt)
//
// Points without fields are dropped, as are writes after Close.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, ts time.Time) {
	if len(fields) == 0 || !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, ts))
}
