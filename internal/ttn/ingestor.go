package ttn

import (
	"encoding/json"
	"log"
	"time"

	"github.com/scalewatch/scalewatch/internal/domain"
	"github.com/scalewatch/scalewatch/internal/infra/metrics"
)

// Sink consumes one normalized record. Sinks are invoked synchronously
// from the ingestion handler, in registration order; an error from one
// sink never stops the others.
type Sink interface {
	HandleUplink(rec *domain.UplinkRecord) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(rec *domain.UplinkRecord) error

// HandleUplink calls f(rec).
func (f SinkFunc) HandleUplink(rec *domain.UplinkRecord) error { return f(rec) }

type namedSink struct {
	name string
	sink Sink
}

// Ingestor turns raw broker messages into UplinkRecords and dispatches
// each record to every registered sink. All handling happens on the
// client's dispatch path, so records for one device are processed in
// receive order.
type Ingestor struct {
	client *Client
	sinks  []namedSink

	// now is swapped in tests to pin the arrival-time fallback.
	now func() time.Time
}

// NewIngestor creates an ingestor bound to the shared broker client.
func NewIngestor(client *Client) *Ingestor {
	return &Ingestor{client: client, now: time.Now}
}

// AddSink registers a consumer of normalized records. The name is used
// only for diagnostics.
func (i *Ingestor) AddSink(name string, s Sink) {
	i.sinks = append(i.sinks, namedSink{name: name, sink: s})
}

// Start registers the message handler and connects the broker client.
func (i *Ingestor) Start() error {
	i.client.SetHandler(i.handleMessage)
	return i.client.Connect()
}

// handleMessage processes one inbound uplink. Malformed messages are
// dropped with a diagnostic; ingestion always continues.
func (i *Ingestor) handleMessage(topic string, payload []byte) {
	var env uplinkEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		metrics.UplinksDropped.WithLabelValues("parse").Inc()
		log.Printf("[ingest] drop unparseable message on %s: %v", topic, err)
		return
	}
	if env.EndDeviceIDs.DeviceID == "" {
		metrics.UplinksDropped.WithLabelValues("missing_device").Inc()
		log.Printf("[ingest] drop message without device id on %s", topic)
		return
	}

	rec := i.normalize(&env)
	metrics.UplinksReceived.Inc()

	for _, ns := range i.sinks {
		if err := ns.sink.HandleUplink(rec); err != nil {
			log.Printf("[ingest] sink %s: %v", ns.name, err)
		}
	}
}

// normalize builds the canonical immutable record from a parsed
// envelope.
func (i *Ingestor) normalize(env *uplinkEnvelope) *domain.UplinkRecord {
	up := &env.UplinkMessage

	var decoded map[string]any
	if len(up.DecodedPayload) > 0 {
		// Undecodable payloads degrade to an empty weight list, same
		// as any other unknown shape.
		_ = json.Unmarshal(up.DecodedPayload, &decoded)
	}

	ts := i.now().UTC()
	if up.ReceivedAt != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, up.ReceivedAt); err == nil {
			ts = parsed
		}
	}

	rec := &domain.UplinkRecord{
		DeviceID:    env.EndDeviceIDs.DeviceID,
		ReceivedAt:  ts,
		Weights:     ExtractWeights(decoded),
		Battery:     extractOptional(decoded, "batt", "battery"),
		Temperature: extractOptional(decoded, "temp", "temperature"),
		Raw:         up.DecodedPayload,
	}

	// Signal quality comes from the first gateway only.
	if len(up.RxMetadata) > 0 {
		rec.RSSI = up.RxMetadata[0].RSSI
		rec.SNR = up.RxMetadata[0].SNR
	}

	return rec
}
