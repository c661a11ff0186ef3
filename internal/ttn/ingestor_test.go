package ttn

import (
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/scalewatch/scalewatch/internal/domain"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestIngestor(t *testing.T) (*Ingestor, *[]*domain.UplinkRecord) {
	t.Helper()
	i := NewIngestor(nil)
	i.now = func() time.Time { return fixedNow }

	var got []*domain.UplinkRecord
	i.AddSink("capture", SinkFunc(func(rec *domain.UplinkRecord) error {
		got = append(got, rec)
		return nil
	}))
	return i, &got
}

const sampleUplink = `{
	"end_device_ids": {"device_id": "hive-01"},
	"uplink_message": {
		"received_at": "2026-03-01T08:30:00.123456789Z",
		"decoded_payload": {"weights": [12.5, 13], "batt": 3.6, "temp": 19},
		"rx_metadata": [{"rssi": -71, "snr": 9.5}, {"rssi": -120, "snr": -3}]
	}
}`

// ─── Normalization ──────────────────────────────────────────────────────────

func TestIngestor_NormalizesUplink(t *testing.T) {
	i, got := newTestIngestor(t)

	i.handleMessage("v3/app@ttn/devices/hive-01/up", []byte(sampleUplink))

	if len(*got) != 1 {
		t.Fatalf("expected 1 record, got %d", len(*got))
	}
	rec := (*got)[0]
	if rec.DeviceID != "hive-01" {
		t.Errorf("DeviceID = %q, want hive-01", rec.DeviceID)
	}
	want := time.Date(2026, 3, 1, 8, 30, 0, 123456789, time.UTC)
	if !rec.ReceivedAt.Equal(want) {
		t.Errorf("ReceivedAt = %v, want %v", rec.ReceivedAt, want)
	}
	assertWeights(t, rec.Weights, []float64{12.5, 13})
	if rec.Battery == nil || *rec.Battery != 3.6 {
		t.Errorf("Battery = %v, want 3.6", rec.Battery)
	}
	if rec.Temperature == nil || *rec.Temperature != 19 {
		t.Errorf("Temperature = %v, want 19", rec.Temperature)
	}
	// First gateway only.
	if rec.RSSI == nil || *rec.RSSI != -71 {
		t.Errorf("RSSI = %v, want -71", rec.RSSI)
	}
	if rec.SNR == nil || *rec.SNR != 9.5 {
		t.Errorf("SNR = %v, want 9.5", rec.SNR)
	}
	if len(rec.Raw) == 0 {
		t.Error("Raw payload should be retained")
	}
}

func TestIngestor_TimestampFallsBackToArrival(t *testing.T) {
	i, got := newTestIngestor(t)

	i.handleMessage("t", []byte(`{
		"end_device_ids": {"device_id": "hive-02"},
		"uplink_message": {"decoded_payload": {"weight": 1}}
	}`))

	if len(*got) != 1 {
		t.Fatalf("expected 1 record, got %d", len(*got))
	}
	if !(*got)[0].ReceivedAt.Equal(fixedNow) {
		t.Errorf("ReceivedAt = %v, want arrival time %v", (*got)[0].ReceivedAt, fixedNow)
	}
}

func TestIngestor_NoMetadataNoOptionals(t *testing.T) {
	i, got := newTestIngestor(t)

	i.handleMessage("t", []byte(`{
		"end_device_ids": {"device_id": "hive-03"},
		"uplink_message": {"decoded_payload": {}}
	}`))

	rec := (*got)[0]
	if rec.RSSI != nil || rec.SNR != nil || rec.Battery != nil || rec.Temperature != nil {
		t.Errorf("optional fields should be nil: %+v", rec)
	}
	assertWeights(t, rec.Weights, []float64{})
}

// ─── Drops ──────────────────────────────────────────────────────────────────

func TestIngestor_DropsUnparseable(t *testing.T) {
	i, got := newTestIngestor(t)

	i.handleMessage("t", []byte("{not json"))

	if len(*got) != 0 {
		t.Fatalf("malformed message must not reach sinks, got %d records", len(*got))
	}
}

func TestIngestor_DropsMissingDeviceID(t *testing.T) {
	i, got := newTestIngestor(t)

	i.handleMessage("t", []byte(`{"uplink_message": {"decoded_payload": {"weight": 1}}}`))

	if len(*got) != 0 {
		t.Fatalf("message without device id must not reach sinks, got %d records", len(*got))
	}
}

// ─── Sink Independence ──────────────────────────────────────────────────────

func TestIngestor_SinkFailureDoesNotStopOthers(t *testing.T) {
	i := NewIngestor(nil)
	i.now = func() time.Time { return fixedNow }

	var before, after int
	i.AddSink("before", SinkFunc(func(*domain.UplinkRecord) error {
		before++
		return nil
	}))
	i.AddSink("failing", SinkFunc(func(*domain.UplinkRecord) error {
		return errors.New("disk full")
	}))
	i.AddSink("after", SinkFunc(func(*domain.UplinkRecord) error {
		after++
		return nil
	}))

	i.handleMessage("t", []byte(sampleUplink))

	if before != 1 || after != 1 {
		t.Fatalf("sinks around the failing one must still run: before=%d after=%d", before, after)
	}
}

// ─── Ordering ───────────────────────────────────────────────────────────────

func TestIngestor_PerDeviceOrderPreserved(t *testing.T) {
	i, got := newTestIngestor(t)

	msg := func(dev string, w float64) []byte {
		return []byte(`{
			"end_device_ids": {"device_id": "` + dev + `"},
			"uplink_message": {"decoded_payload": {"weight": ` +
			strconv.FormatFloat(w, 'g', -1, 64) + `}}
		}`)
	}

	i.handleMessage("t", msg("A", 1))
	i.handleMessage("t", msg("B", 10))
	i.handleMessage("t", msg("A", 2))
	i.handleMessage("t", msg("B", 20))

	var aWeights []float64
	for _, rec := range *got {
		if rec.DeviceID == "A" {
			aWeights = append(aWeights, rec.Weights[0])
		}
	}
	assertWeights(t, aWeights, []float64{1, 2})
}
