// Package recordlog appends every normalized record to a durable
// per-device CSV file. The log is append-only: entries are never
// rewritten or removed by scalewatch.
package recordlog

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/scalewatch/scalewatch/internal/domain"
	"github.com/scalewatch/scalewatch/internal/infra/metrics"
)

// fixedCols counts the non-weight columns: timestamp plus
// battery, temperature, rssi, snr.
const fixedCols = 5

// Log writes one CSV file per device under dir. The header — and with
// it the weight column count — is fixed by the first record persisted
// for that device. Later records with a different weight count are
// appended with their available weight columns only; the mismatch is
// counted and logged, never reconciled (see DESIGN.md).
type Log struct {
	dir string

	mu   sync.Mutex
	cols map[string]int // device → weight columns fixed by the header
}

// New creates the log directory if needed.
func New(dir string) (*Log, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	return &Log{dir: dir, cols: make(map[string]int)}, nil
}

// Append writes one record to its device file, creating the file with a
// header on first sight of the device. Errors are returned to the
// caller and counted; they never abort ingestion.
func (l *Log) Append(rec *domain.UplinkRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	cols, err := l.headerCols(rec)
	if err != nil {
		metrics.LogWriteFailures.Inc()
		return err
	}
	if len(rec.Weights) != cols {
		metrics.LogSchemaMismatch.Inc()
		log.Printf("[recordlog] %s: record has %d weights, header fixed %d columns",
			rec.DeviceID, len(rec.Weights), cols)
	}

	f, err := os.OpenFile(l.path(rec.DeviceID), os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		metrics.LogWriteFailures.Inc()
		return fmt.Errorf("open %s: %w", rec.DeviceID, err)
	}
	defer f.Close()

	if _, err := f.WriteString(formatLine(rec)); err != nil {
		metrics.LogWriteFailures.Inc()
		return fmt.Errorf("append %s: %w", rec.DeviceID, err)
	}
	return nil
}

// HandleUplink makes the log an ingestion sink.
func (l *Log) HandleUplink(rec *domain.UplinkRecord) error {
	return l.Append(rec)
}

// Fetch returns the raw file contents for bulk export, or ErrNoRecord
// if nothing was ever persisted for the device.
func (l *Log) Fetch(deviceID string) ([]byte, error) {
	data, err := os.ReadFile(l.path(deviceID))
	if os.IsNotExist(err) {
		return nil, domain.ErrNoRecord
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", deviceID, err)
	}
	return data, nil
}

// headerCols returns the weight column count for a device, creating the
// file with a header derived from this record when the device is new.
// Caller holds l.mu.
func (l *Log) headerCols(rec *domain.UplinkRecord) (int, error) {
	if cols, ok := l.cols[rec.DeviceID]; ok {
		return cols, nil
	}

	path := l.path(rec.DeviceID)
	if f, err := os.Open(path); err == nil {
		// Existing file from a previous run: the header line fixes the
		// schema.
		line, err := bufio.NewReader(f).ReadString('\n')
		f.Close()
		if err != nil && err != io.EOF {
			return 0, fmt.Errorf("read header %s: %w", rec.DeviceID, err)
		}
		cols := strings.Count(strings.TrimRight(line, "\n"), ",") + 1 - fixedCols
		if cols < 0 {
			cols = 0
		}
		l.cols[rec.DeviceID] = cols
		return cols, nil
	}

	cols := len(rec.Weights)
	header := make([]string, 0, cols+fixedCols)
	header = append(header, "timestamp")
	for i := 1; i <= cols; i++ {
		header = append(header, "weight_"+strconv.Itoa(i))
	}
	header = append(header, "battery", "temperature", "rssi", "snr")

	if err := os.WriteFile(path, []byte(strings.Join(header, ",")+"\n"), 0600); err != nil {
		return 0, fmt.Errorf("write header %s: %w", rec.DeviceID, err)
	}
	l.cols[rec.DeviceID] = cols
	return cols, nil
}

// formatLine renders one record as a CSV line: timestamp, the record's
// available weight columns, then the optional fields (empty when
// absent).
func formatLine(rec *domain.UplinkRecord) string {
	fields := make([]string, 0, len(rec.Weights)+fixedCols)
	fields = append(fields, rec.ReceivedAt.UTC().Format(time.RFC3339Nano))
	for _, w := range rec.Weights {
		fields = append(fields, formatFloat(w))
	}
	for _, opt := range []*float64{rec.Battery, rec.Temperature, rec.RSSI, rec.SNR} {
		if opt != nil {
			fields = append(fields, formatFloat(*opt))
		} else {
			fields = append(fields, "")
		}
	}
	return strings.Join(fields, ",") + "\n"
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// path maps a device id onto a file name, replacing anything outside
// [A-Za-z0-9._-] so a hostile id cannot escape the log directory.
func (l *Log) path(deviceID string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, deviceID)
	if safe == "" {
		safe = "_"
	}
	return filepath.Join(l.dir, safe+".csv")
}
