// Package influxdb writes movement and canteen telemetry to InfluxDB v2.
//
// Writes are non-blocking and batched by the client library. Write errors
// arrive asynchronously and are reported through SetOnError. The store of
// record is always the SQL database; telemetry is best-effort and the
// service runs without it when the influxdb section is disabled.
//
// Usage:
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without telemetry
//	}
//	defer client.Close()
package influxdb
