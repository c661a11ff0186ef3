// Package sqlite provides SQLite-based bookkeeping for scalewatch: the
// device registry and the downlink audit trail. Uses WAL mode for
// concurrent reads and crash-safe writes.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)

	"github.com/scalewatch/scalewatch/internal/domain"
)

// DB wraps a SQLite connection with WAL mode and migrations.
type DB struct {
	db *sql.DB
}

// Open creates or opens the SQLite database at dir/state.db.
// Enables WAL mode, foreign keys, and 5-second busy timeout.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, "state.db")
	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// Connection pool settings for SQLite
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return d, nil
}

// Close cleanly shuts down the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks database connectivity.
func (d *DB) Ping() error {
	return d.db.Ping()
}

// migrate runs idempotent schema migrations.
func (d *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS devices (
			device_id    TEXT PRIMARY KEY,
			first_seen   INTEGER NOT NULL,
			last_seen    INTEGER NOT NULL,
			uplink_count INTEGER NOT NULL DEFAULT 0,
			last_battery REAL,
			last_rssi    REAL,
			last_snr     REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_devices_seen ON devices(last_seen)`,

		`CREATE TABLE IF NOT EXISTS downlinks (
			id          TEXT PRIMARY KEY,
			device_id   TEXT NOT NULL,
			f_port      INTEGER NOT NULL,
			payload_hex TEXT NOT NULL,
			confirmed   BOOLEAN NOT NULL DEFAULT 0,
			created_at  INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_downlinks_created ON downlinks(created_at)`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}
	return nil
}

// ─── Device Registry ────────────────────────────────────────────────────────

// RecordUplink upserts the device row for one uplink: first/last seen
// timestamps, a running uplink count, and the latest signal readings.
func (d *DB) RecordUplink(rec *domain.UplinkRecord) error {
	ts := rec.ReceivedAt.UTC().Unix()
	_, err := d.db.Exec(`
		INSERT INTO devices (device_id, first_seen, last_seen, uplink_count, last_battery, last_rssi, last_snr)
		VALUES (?, ?, ?, 1, ?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			last_seen    = excluded.last_seen,
			uplink_count = uplink_count + 1,
			last_battery = COALESCE(excluded.last_battery, last_battery),
			last_rssi    = COALESCE(excluded.last_rssi, last_rssi),
			last_snr     = COALESCE(excluded.last_snr, last_snr)`,
		rec.DeviceID, ts, ts, rec.Battery, rec.RSSI, rec.SNR)
	if err != nil {
		return fmt.Errorf("record uplink: %w", err)
	}
	return nil
}

// HandleUplink makes the registry an ingestion sink.
func (d *DB) HandleUplink(rec *domain.UplinkRecord) error {
	return d.RecordUplink(rec)
}

// ListDevices returns all known devices, most recently seen first.
func (d *DB) ListDevices() ([]domain.DeviceInfo, error) {
	rows, err := d.db.Query(`
		SELECT device_id, first_seen, last_seen, uplink_count, last_battery, last_rssi, last_snr
		FROM devices ORDER BY last_seen DESC`)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	devices := []domain.DeviceInfo{}
	for rows.Next() {
		var (
			info                 domain.DeviceInfo
			firstSeen, lastSeen  int64
			battery, rssi, snr   sql.NullFloat64
		)
		if err := rows.Scan(&info.DeviceID, &firstSeen, &lastSeen, &info.UplinkCount,
			&battery, &rssi, &snr); err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		info.FirstSeen = time.Unix(firstSeen, 0).UTC()
		info.LastSeen = time.Unix(lastSeen, 0).UTC()
		info.LastBattery = nullableFloat(battery)
		info.LastRSSI = nullableFloat(rssi)
		info.LastSNR = nullableFloat(snr)
		devices = append(devices, info)
	}
	return devices, rows.Err()
}

// ─── Downlink Audit ─────────────────────────────────────────────────────────

// RecordDownlink appends one entry to the downlink audit trail.
func (d *DB) RecordDownlink(entry domain.DownlinkEntry) error {
	_, err := d.db.Exec(`
		INSERT INTO downlinks (id, device_id, f_port, payload_hex, confirmed, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.DeviceID, entry.FPort, entry.PayloadHex, entry.Confirmed,
		entry.CreatedAt.UTC().Unix())
	if err != nil {
		return fmt.Errorf("record downlink: %w", err)
	}
	return nil
}

// ListDownlinks returns the most recent audit entries, newest first.
func (d *DB) ListDownlinks(limit int) ([]domain.DownlinkEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.db.Query(`
		SELECT id, device_id, f_port, payload_hex, confirmed, created_at
		FROM downlinks ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list downlinks: %w", err)
	}
	defer rows.Close()

	entries := []domain.DownlinkEntry{}
	for rows.Next() {
		var (
			e         domain.DownlinkEntry
			createdAt int64
		)
		if err := rows.Scan(&e.ID, &e.DeviceID, &e.FPort, &e.PayloadHex, &e.Confirmed, &createdAt); err != nil {
			return nil, fmt.Errorf("scan downlink: %w", err)
		}
		e.CreatedAt = time.Unix(createdAt, 0).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nullableFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
