package api

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/scalewatch/scalewatch/internal/bus"
	"github.com/scalewatch/scalewatch/internal/domain"
	"github.com/scalewatch/scalewatch/internal/history"
	"github.com/scalewatch/scalewatch/internal/infra/sqlite"
	"github.com/scalewatch/scalewatch/internal/recordlog"
)

type fakeDownlinker struct {
	err   error
	calls int
	last  domain.DownlinkRequest
}

func (f *fakeDownlinker) Send(req domain.DownlinkRequest) error {
	f.calls++
	f.last = req
	return f.err
}

type testEnv struct {
	srv  *Server
	hist *history.Store
	rlog *recordlog.Log
	db   *sqlite.DB
	bus  *bus.Bus
	dl   *fakeDownlinker
}

func newTestServer(t *testing.T) *testEnv {
	t.Helper()

	rlog, err := recordlog.New(t.TempDir())
	if err != nil {
		t.Fatalf("recordlog.New() error: %v", err)
	}
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("sqlite.Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	env := &testEnv{
		hist: history.NewStore(0),
		rlog: rlog,
		db:   db,
		bus:  bus.New(),
		dl:   &fakeDownlinker{},
	}
	env.srv = NewServer(env.hist, env.rlog, env.db, env.bus, env.dl)
	return env
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reqBody *strings.Reader
	if body == "" {
		reqBody = strings.NewReader("")
	} else {
		reqBody = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reqBody)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	var decoded map[string]any
	if strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rr.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("decode %s %s response: %v", method, path, err)
		}
	}
	return rr, decoded
}

func uplink(dev string, w float64) *domain.UplinkRecord {
	return &domain.UplinkRecord{
		DeviceID:   dev,
		ReceivedAt: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
		Weights:    []float64{w},
	}
}

// ─── Health / Status ────────────────────────────────────────────────────────

func TestAPI_Health(t *testing.T) {
	env := newTestServer(t)
	rr, body := doJSON(t, env.srv.Handler(), "GET", "/api/health", "")

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if body["ok"] != true {
		t.Errorf("ok = %v, want true", body["ok"])
	}
	if body["time"] == nil {
		t.Error("time missing from health response")
	}
}

// ─── History ────────────────────────────────────────────────────────────────

func TestAPI_History_DefaultLimit(t *testing.T) {
	env := newTestServer(t)
	for i := 0; i < 300; i++ {
		env.hist.Append(uplink("hive-01", float64(i)))
	}

	rr, body := doJSON(t, env.srv.Handler(), "GET", "/api/devices/hive-01/history", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	records := body["records"].([]any)
	if len(records) != history.DefaultLimit {
		t.Errorf("got %d records, want default %d", len(records), history.DefaultLimit)
	}
}

func TestAPI_History_LimitClamped(t *testing.T) {
	env := newTestServer(t)
	for i := 0; i < 5; i++ {
		env.hist.Append(uplink("hive-01", float64(i)))
	}

	_, body := doJSON(t, env.srv.Handler(), "GET", "/api/devices/hive-01/history?limit=0", "")
	if got := len(body["records"].([]any)); got != 1 {
		t.Errorf("limit=0 returned %d records, want 1", got)
	}

	_, body = doJSON(t, env.srv.Handler(), "GET", "/api/devices/hive-01/history?limit=999999", "")
	if got := len(body["records"].([]any)); got != 5 {
		t.Errorf("limit=999999 returned %d records, want all 5", got)
	}
}

func TestAPI_History_BadLimit(t *testing.T) {
	env := newTestServer(t)
	rr, _ := doJSON(t, env.srv.Handler(), "GET", "/api/devices/hive-01/history?limit=abc", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestAPI_History_UnknownDeviceEmpty(t *testing.T) {
	env := newTestServer(t)
	rr, body := doJSON(t, env.srv.Handler(), "GET", "/api/devices/ghost/history", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for unknown device", rr.Code)
	}
	if got := len(body["records"].([]any)); got != 0 {
		t.Errorf("got %d records for unknown device, want 0", got)
	}
}

// ─── Log Export ─────────────────────────────────────────────────────────────

func TestAPI_LogExport(t *testing.T) {
	env := newTestServer(t)
	if err := env.rlog.Append(uplink("hive-01", 12.5)); err != nil {
		t.Fatalf("Append() error: %v", err)
	}

	rr, _ := doJSON(t, env.srv.Handler(), "GET", "/api/devices/hive-01/log", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("Content-Type = %q, want text/csv", ct)
	}
	if !strings.HasPrefix(rr.Body.String(), "timestamp,weight_1,") {
		t.Errorf("export should start with the CSV header, got %q", rr.Body.String())
	}
}

func TestAPI_LogExport_NotFound(t *testing.T) {
	env := newTestServer(t)
	rr, _ := doJSON(t, env.srv.Handler(), "GET", "/api/devices/ghost/log", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

// ─── Downlink ───────────────────────────────────────────────────────────────

func TestAPI_Tare_Success(t *testing.T) {
	env := newTestServer(t)
	rr, body := doJSON(t, env.srv.Handler(), "POST", "/api/tare",
		`{"devId":"hive-01","fport":10,"payloadHex":"00"}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %s)", rr.Code, rr.Body.String())
	}
	if body["ok"] != true {
		t.Errorf("ok = %v, want true", body["ok"])
	}
	if env.dl.calls != 1 || env.dl.last.DeviceID != "hive-01" {
		t.Errorf("downlinker called %d times, last = %+v", env.dl.calls, env.dl.last)
	}

	// Audit trail captured the command.
	entries, err := env.db.ListDownlinks(10)
	if err != nil {
		t.Fatalf("ListDownlinks() error: %v", err)
	}
	if len(entries) != 1 || entries[0].DeviceID != "hive-01" {
		t.Errorf("audit entries = %+v, want 1 for hive-01", entries)
	}
}

func TestAPI_Tare_AuditRecordsAppliedDefaults(t *testing.T) {
	env := newTestServer(t)
	rr, _ := doJSON(t, env.srv.Handler(), "POST", "/api/tare", `{"devId":"hive-01"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %s)", rr.Code, rr.Body.String())
	}

	// The audit trail stores what actually went out, defaults included.
	entries, err := env.db.ListDownlinks(10)
	if err != nil {
		t.Fatalf("ListDownlinks() error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(entries))
	}
	e := entries[0]
	if e.FPort != domain.DefaultFPort || e.PayloadHex != domain.DefaultPayloadHex {
		t.Errorf("audit entry = %+v, want defaults fport=%d payload=%q",
			e, domain.DefaultFPort, domain.DefaultPayloadHex)
	}
	if e.Confirmed {
		t.Error("confirmed should default to false in the audit entry")
	}
}

func TestAPI_Tare_MissingDevice(t *testing.T) {
	env := newTestServer(t)
	env.dl.err = domain.ErrDeviceRequired

	rr, _ := doJSON(t, env.srv.Handler(), "POST", "/api/tare", `{}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestAPI_Tare_NotConnected(t *testing.T) {
	env := newTestServer(t)
	env.dl.err = domain.ErrNotConnected

	rr, _ := doJSON(t, env.srv.Handler(), "POST", "/api/tare", `{"devId":"hive-01"}`)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rr.Code)
	}
}

// ─── Devices ────────────────────────────────────────────────────────────────

func TestAPI_Devices(t *testing.T) {
	env := newTestServer(t)
	if err := env.db.RecordUplink(uplink("hive-01", 1)); err != nil {
		t.Fatalf("RecordUplink() error: %v", err)
	}

	rr, body := doJSON(t, env.srv.Handler(), "GET", "/api/devices", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	devices := body["devices"].([]any)
	if len(devices) != 1 {
		t.Fatalf("got %d devices, want 1", len(devices))
	}
}

// ─── Live Stream ────────────────────────────────────────────────────────────

func TestAPI_Events_SSE(t *testing.T) {
	env := newTestServer(t)
	ts := httptest.NewServer(env.srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/events")
	if err != nil {
		t.Fatalf("GET /api/events: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("Content-Type = %q, want text/event-stream", ct)
	}

	reader := bufio.NewReader(resp.Body)
	waitForLine := func(prefix string) string {
		t.Helper()
		deadline := time.Now().Add(5 * time.Second)
		for time.Now().Before(deadline) {
			line, err := reader.ReadString('\n')
			if err != nil {
				t.Fatalf("read stream: %v", err)
			}
			if strings.HasPrefix(line, prefix) {
				return strings.TrimSpace(line)
			}
		}
		t.Fatalf("no line with prefix %q before deadline", prefix)
		return ""
	}

	// The ready event confirms the subscription is registered; only
	// records published after it are delivered.
	waitForLine("event: ready")

	env.bus.Publish(uplink("hive-01", 42))

	waitForLine("event: up")
	data := waitForLine("data: ")

	var rec domain.UplinkRecord
	if err := json.Unmarshal([]byte(strings.TrimPrefix(data, "data: ")), &rec); err != nil {
		t.Fatalf("decode streamed record: %v", err)
	}
	if rec.DeviceID != "hive-01" || rec.Weights[0] != 42 {
		t.Errorf("streamed record = %+v", rec)
	}
}
