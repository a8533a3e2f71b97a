package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the agent.
const (
	MeasurementTelemetry = "telemetry"
	MeasurementSession   = "session"
)

// WriteTelemetry records one telemetry sample.
//
// The write is non-blocking; data is batched and sent asynchronously.
// It is a no-op when the client is nil or closed.
//
// Example:
//
//	client.WriteTelemetry("smartoffice-a1b2c3d4e5f6",
//	    map[string]float64{"temperature": 24.3, "humidity": 51.2, "rssi": -61},
//	    time.Now())
func (c *Client) WriteTelemetry(deviceID string, fields map[string]float64, ts time.Time) {
	if !c.IsConnected() || len(fields) == 0 {
		return
	}
	c.writes.WritePoint(telemetryPoint(deviceID, fields, ts))
}

// WriteSessionState records a session state transition so connectivity
// history survives on the device even while the platform is unreachable.
func (c *Client) WriteSessionState(deviceID, state string, attempts int, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writes.WritePoint(sessionPoint(deviceID, state, attempts, ts))
}

func telemetryPoint(deviceID string, fields map[string]float64, ts time.Time) *write.Point {
	pointFields := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		pointFields[k] = v
	}
	return write.NewPoint(
		MeasurementTelemetry,
		map[string]string{"device_id": deviceID},
		pointFields,
		ts,
	)
}

func sessionPoint(deviceID, state string, attempts int, ts time.Time) *write.Point {
	return write.NewPoint(
		MeasurementSession,
		map[string]string{
			"device_id": deviceID,
			"state":     state,
		},
		map[string]interface{}{
			"connect_attempts": attempts,
		},
		ts,
	)
}
