package influxdb

import "errors"

// Sentinel errors, checkable with errors.Is.
var (
	// ErrNotConnected: the client has been closed or never connected.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrConnectionFailed: the initial ping did not succeed.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrWriteFailed: a synchronous write failed. Batched writes report
	// failures through the error callback instead.
	ErrWriteFailed = errors.New("influxdb: write failed")

	// ErrDisabled: the influxdb section of the config has enabled: false.
	ErrDisabled = errors.New("influxdb: disabled in configuration")
)
