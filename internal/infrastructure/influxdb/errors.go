package influxdb

import "errors"

// Sentinel errors for the local history client. Check with errors.Is().
var (
	// ErrDisabled is returned by Connect when history is switched off.
	// Callers treat it as "run without history", not as a failure.
	ErrDisabled = errors.New("influxdb: disabled in configuration")

	// ErrConnectionFailed means the server did not answer the startup ping.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrNotConnected is returned by HealthCheck after Close.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrWriteFailed wraps asynchronous batch errors passed to the
	// SetOnError callback.
	ErrWriteFailed = errors.New("influxdb: write failed")
)
