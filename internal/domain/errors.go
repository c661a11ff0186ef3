package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────

var (
	// Downlink errors
	ErrDeviceRequired = errors.New("device id required")
	ErrNotConnected   = errors.New("broker client not connected")

	// Durable log errors
	ErrNoRecord = errors.New("no persisted records for device")
)
