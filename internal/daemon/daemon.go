package daemon

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/scalewatch/scalewatch/internal/api"
	"github.com/scalewatch/scalewatch/internal/bus"
	"github.com/scalewatch/scalewatch/internal/health"
	"github.com/scalewatch/scalewatch/internal/history"
	"github.com/scalewatch/scalewatch/internal/infra/sqlite"
	"github.com/scalewatch/scalewatch/internal/recordlog"
	"github.com/scalewatch/scalewatch/internal/ttn"
)

// Daemon is the core scalewatch runtime. It wires together all
// services: the broker client feeding the ingestor, the three record
// sinks plus the device registry, and the HTTP API over them.
type Daemon struct {
	Config   Config
	DB       *sqlite.DB
	History  *history.Store
	Log      *recordlog.Log
	Bus      *bus.Bus
	Client   *ttn.Client
	Ingestor *ttn.Ingestor
	Downlink *ttn.Downlinker
	Server   *api.Server
	Health   *health.Checker

	cancel context.CancelFunc
}

// New creates and initializes a Daemon with all services wired.
func New() (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewWithConfig(cfg)
}

// NewWithConfig creates a Daemon with the given configuration.
func NewWithConfig(cfg Config) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := sqlite.Open(cfg.Storage.Dir)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	logDir := filepath.Join(cfg.Storage.Dir, "records")
	rlog, err := recordlog.New(logDir)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open record log: %w", err)
	}

	d := &Daemon{
		Config:  cfg,
		DB:      db,
		History: history.NewStore(cfg.History.MaxRecords),
		Log:     rlog,
		Bus:     bus.New(),
	}

	d.Client = ttn.NewClient(ttn.ClientConfig{
		Host:              cfg.TTN.Host,
		AppID:             cfg.TTN.AppID,
		Tenant:            cfg.TTN.Tenant,
		APIKey:            cfg.TTN.APIKey,
		ReconnectInterval: cfg.TTN.ReconnectIntervalDuration(),
	})
	d.Downlink = ttn.NewDownlinker(d.Client)

	// Sink order: live consumers first, then the stores. Each sink is
	// isolated — a durable-write failure never stops the broadcast.
	d.Ingestor = ttn.NewIngestor(d.Client)
	d.Ingestor.AddSink("bus", d.Bus)
	d.Ingestor.AddSink("history", d.History)
	d.Ingestor.AddSink("recordlog", d.Log)
	d.Ingestor.AddSink("registry", d.DB)

	d.Health = health.NewChecker(db, logDir, d.Client.Connected)

	srv := api.NewServer(d.History, d.Log, d.DB, d.Bus, d.Downlink)
	srv.SetHealth(d.Health)
	if cfg.Telemetry.Prometheus {
		srv.EnableMetrics()
	}
	d.Server = srv

	return d, nil
}

// Serve connects the broker, starts the HTTP server, and blocks until
// shutdown.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	go d.Health.Run(ctx)

	if err := d.Ingestor.Start(); err != nil {
		// The client keeps retrying on its own; log and carry on so the
		// API stays reachable while the broker is down.
		log.Printf("[daemon] broker connect: %v", err)
	}

	addr := fmt.Sprintf("%s:%d", d.Config.API.Host, d.Config.API.Port)

	httpServer := &http.Server{
		Addr:        addr,
		Handler:     d.Server.Handler(),
		ReadTimeout: 30 * time.Second,
		// No write timeout: /api/events streams indefinitely.
		IdleTimeout: 2 * time.Minute,
	}

	// Graceful shutdown on signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		d.Client.Close()
		_ = httpServer.Shutdown(shutdownCtx)
		_ = d.DB.Close()
	}()

	fmt.Printf("scalewatch serving on http://%s\n", addr)
	fmt.Printf("  Uplinks: %s via %s\n", d.Client.UplinkTopic(), d.Config.TTN.Host)
	if d.Config.Telemetry.Prometheus {
		fmt.Printf("  Metrics: http://%s/metrics\n", addr)
	}

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close shuts down all daemon resources.
func (d *Daemon) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.Client != nil {
		d.Client.Close()
	}
	if d.DB != nil {
		_ = d.DB.Close()
	}
}
