// Package influxdb provides the optional local history sink of the edge agent.
//
// It wraps the official influxdb-client-go v2 library. When enabled, every
// telemetry sample and every session state transition is also written to a
// local InfluxDB so readings and connectivity history are kept while the
// platform is unreachable.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    client = nil // writes on a nil client are no-ops
//	}
//	defer client.Close()
//
//	client.WriteTelemetry(device.ID, map[string]float64{"temperature": 24.3}, time.Now())
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are delivered via a
// callback. Connection and health check errors are returned directly.
package influxdb
