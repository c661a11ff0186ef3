package ttn

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/scalewatch/scalewatch/internal/domain"
	"github.com/scalewatch/scalewatch/internal/infra/metrics"
)

// publisher is the slice of Client the downlink path needs.
type publisher interface {
	Publish(topic string, payload []byte) error
}

// Downlinker encodes downlink commands and publishes them on the shared
// broker connection. It is an independent control path: callers may
// invoke Send concurrently with ingestion.
type Downlinker struct {
	cfg ClientConfig
	pub publisher
}

// NewDownlinker creates a downlinker sharing the ingestion client's
// connection.
func NewDownlinker(client *Client) *Downlinker {
	return &Downlinker{cfg: client.cfg, pub: client}
}

var nonHex = regexp.MustCompile(`[^0-9a-fA-F]`)

// Send validates the request, applies defaults, and publishes a
// single-item downlink envelope to the device's push topic. It resolves
// on the local publish ack only; server-side scheduling is not awaited.
func (d *Downlinker) Send(req domain.DownlinkRequest) error {
	if req.DeviceID == "" {
		metrics.DownlinksFailed.WithLabelValues("validation").Inc()
		return domain.ErrDeviceRequired
	}
	req = req.WithDefaults()

	payload, err := decodeHex(req.PayloadHex)
	if err != nil {
		metrics.DownlinksFailed.WithLabelValues("payload").Inc()
		return fmt.Errorf("decode payload: %w", err)
	}

	env := downlinkEnvelope{
		Downlinks: []downlinkItem{{
			FPort:      req.FPort,
			FrmPayload: base64.StdEncoding.EncodeToString(payload),
			Priority:   downlinkPriority,
			Confirmed:  req.Confirmed,
		}},
	}
	body, err := json.Marshal(env)
	if err != nil {
		metrics.DownlinksFailed.WithLabelValues("encode").Inc()
		return fmt.Errorf("encode downlink: %w", err)
	}

	if err := d.pub.Publish(d.cfg.DownlinkTopic(req.DeviceID), body); err != nil {
		metrics.DownlinksFailed.WithLabelValues("publish").Inc()
		return err
	}
	metrics.DownlinksSent.Inc()
	return nil
}

// decodeHex strips every non-hexadecimal character, drops a trailing
// odd nibble, and decodes the rest to raw bytes.
func decodeHex(s string) ([]byte, error) {
	clean := nonHex.ReplaceAllString(s, "")
	if len(clean)%2 == 1 {
		clean = clean[:len(clean)-1]
	}
	return hex.DecodeString(clean)
}
