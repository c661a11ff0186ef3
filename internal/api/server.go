// Package api provides the HTTP server for scalewatch: downlink
// submission, bounded history reads, durable log export, the live
// record stream, and device bookkeeping.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/scalewatch/scalewatch/internal/bus"
	"github.com/scalewatch/scalewatch/internal/domain"
	"github.com/scalewatch/scalewatch/internal/health"
	"github.com/scalewatch/scalewatch/internal/history"
	"github.com/scalewatch/scalewatch/internal/infra/sqlite"
	"github.com/scalewatch/scalewatch/internal/recordlog"
)

// Downlinker submits one downlink command to the broker.
type Downlinker interface {
	Send(req domain.DownlinkRequest) error
}

// Server is the scalewatch HTTP API server.
type Server struct {
	history        *history.Store
	log            *recordlog.Log
	db             *sqlite.DB
	bus            *bus.Bus
	downlink       Downlinker
	health         *health.Checker
	metricsEnabled bool
}

// NewServer creates a new API server over the core components.
func NewServer(hist *history.Store, rlog *recordlog.Log, db *sqlite.DB, b *bus.Bus, dl Downlinker) *Server {
	return &Server{history: hist, log: rlog, db: db, bus: b, downlink: dl}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetHealth attaches the periodic health checker.
func (s *Server) SetHealth(c *health.Checker) { s.health = c }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{
				"status": "scalewatch is running",
			})
		})
		r.Get("/devices", s.handleListDevices)
		r.Get("/devices/{deviceID}/history", s.handleHistory)
		r.Get("/devices/{deviceID}/log", s.handleLogExport)
		r.Get("/downlinks", s.handleListDownlinks)
		r.Post("/tare", s.handleTare)
		r.Get("/events", s.handleEvents)
	})

	// Prometheus metrics endpoint
	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// ─── Handlers ───────────────────────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"ok":   true,
		"time": time.Now().UTC().Format(time.RFC3339),
	}
	if s.health != nil {
		resp["ok"] = s.health.IsHealthy()
		resp["checks"] = s.health.Statuses()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.db.ListDevices()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")

	limit := history.DefaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = n // clamped by the store
	}

	records := s.history.Recent(deviceID, limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"devId":   deviceID,
		"records": records,
	})
}

func (s *Server) handleLogExport(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")

	data, err := s.log.Fetch(deviceID)
	if errors.Is(err, domain.ErrNoRecord) {
		writeError(w, http.StatusNotFound, "no records for device")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="`+deviceID+`.csv"`)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) handleListDownlinks(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	entries, err := s.db.ListDownlinks(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"downlinks": entries})
}

func (s *Server) handleTare(w http.ResponseWriter, r *http.Request) {
	var req domain.DownlinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.downlink.Send(req); err != nil {
		switch {
		case errors.Is(err, domain.ErrDeviceRequired):
			writeError(w, http.StatusBadRequest, "devId required")
		case errors.Is(err, domain.ErrNotConnected):
			writeError(w, http.StatusServiceUnavailable, "broker not connected")
		default:
			writeError(w, http.StatusBadGateway, err.Error())
		}
		return
	}

	sent := req.WithDefaults()
	entry := domain.DownlinkEntry{
		ID:         uuid.NewString(),
		DeviceID:   sent.DeviceID,
		FPort:      sent.FPort,
		PayloadHex: sent.PayloadHex,
		Confirmed:  sent.Confirmed,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.db.RecordDownlink(entry); err != nil {
		// The command already went out; audit failure is reported but
		// does not fail the request.
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "auditError": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": entry.ID})
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": msg,
	})
}

// corsMiddleware adds CORS headers for the dashboard frontend.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
