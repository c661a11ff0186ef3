// Package domain holds the core types shared across scalewatch.
// Domain types are pure — no infrastructure dependency.
package domain

import (
	"encoding/json"
	"time"
)

// UplinkRecord is the canonical, normalized form of one sensor uplink.
// It is created once at ingestion time and never mutated afterwards;
// every consumer (live stream, history, durable log, registry) reads
// the same record.
type UplinkRecord struct {
	DeviceID    string    `json:"devId"`
	ReceivedAt  time.Time `json:"ts"`
	Weights     []float64 `json:"weights"`
	Battery     *float64  `json:"battery,omitempty"`
	Temperature *float64  `json:"temp,omitempty"`
	RSSI        *float64  `json:"rssi,omitempty"`
	SNR         *float64  `json:"snr,omitempty"`

	// Raw is the decoded payload exactly as received, kept for
	// diagnostics. Never re-parsed by the pipeline.
	Raw json.RawMessage `json:"raw,omitempty"`
}

// DownlinkRequest describes one outbound command for a device.
// Zero values for FPort, PayloadHex and Confirmed are replaced by
// defaults when the request is validated.
type DownlinkRequest struct {
	DeviceID   string `json:"devId"`
	FPort      int    `json:"fport"`
	PayloadHex string `json:"payloadHex"`
	Confirmed  bool   `json:"confirmed"`
}

// Downlink request defaults.
const (
	DefaultFPort      = 10
	DefaultPayloadHex = "00"
)

// WithDefaults returns a copy of the request with defaults applied.
func (r DownlinkRequest) WithDefaults() DownlinkRequest {
	if r.FPort == 0 {
		r.FPort = DefaultFPort
	}
	if r.PayloadHex == "" {
		r.PayloadHex = DefaultPayloadHex
	}
	return r
}

// DeviceInfo is one row of the device registry: bookkeeping about a
// device derived from the uplinks it has sent.
type DeviceInfo struct {
	DeviceID    string    `json:"devId"`
	FirstSeen   time.Time `json:"firstSeen"`
	LastSeen    time.Time `json:"lastSeen"`
	UplinkCount int64     `json:"uplinkCount"`
	LastBattery *float64  `json:"lastBattery,omitempty"`
	LastRSSI    *float64  `json:"lastRssi,omitempty"`
	LastSNR     *float64  `json:"lastSnr,omitempty"`
}

// DownlinkEntry is one row of the downlink audit trail.
type DownlinkEntry struct {
	ID         string    `json:"id"`
	DeviceID   string    `json:"devId"`
	FPort      int       `json:"fport"`
	PayloadHex string    `json:"payloadHex"`
	Confirmed  bool      `json:"confirmed"`
	CreatedAt  time.Time `json:"createdAt"`
}
