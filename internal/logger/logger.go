// Package logger records per-cycle sensor snapshots to CSV files with
// automatic rotation.
package logger

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/openrls/linbcm/internal/bcm"
)

// Logger writes timestamped snapshots at a bounded rate.
type Logger struct {
	mu       sync.Mutex
	dir      string
	interval time.Duration
	enabled  bool

	file   *os.File
	writer *csv.Writer
	lastTs time.Time
	rows   int
}

// Config holds logger configuration.
type Config struct {
	Enabled    bool
	Path       string
	IntervalMs int
}

const maxRowsPerFile = 100_000

var csvHeader = []string{
	"timestamp", "cycle", "drl",
	"counter", "light", "saturated", "overflow",
	"solar", "temp_c", "temp2_c",
	"rain_active", "rain_raw",
	"dropped_frames",
}

// New creates a new Logger.
func New(cfg Config) *Logger {
	if cfg.Path == "" {
		cfg.Path = "/var/log/linbcm"
	}
	interval := time.Duration(cfg.IntervalMs) * time.Millisecond
	if interval < 50*time.Millisecond {
		interval = 500 * time.Millisecond
	}
	return &Logger{
		dir:      cfg.Path,
		interval: interval,
		enabled:  cfg.Enabled,
	}
}

// Record writes a snapshot if the minimum interval has elapsed.
func (l *Logger) Record(snap bcm.Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enabled {
		return
	}
	now := time.Now()
	if now.Sub(l.lastTs) < l.interval {
		return
	}
	l.lastTs = now

	if l.writer == nil || l.rows >= maxRowsPerFile {
		if err := l.rotateFile(now); err != nil {
			log.Printf("[logger] rotate failed: %v", err)
			return
		}
	}

	if err := l.writer.Write(buildRow(now, snap)); err != nil {
		log.Printf("[logger] write failed: %v", err)
		return
	}
	l.writer.Flush()
	l.rows++
}

// Close flushes and closes the current log file.
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closeFile()
}

func (l *Logger) rotateFile(now time.Time) error {
	l.closeFile()

	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return fmt.Errorf("mkdir %s: %w", l.dir, err)
	}
	path := filepath.Join(l.dir, fmt.Sprintf("rls_%s.csv", now.Format("2006-01-02_150405")))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	l.file = f
	l.writer = csv.NewWriter(f)
	l.rows = 0

	if err := l.writer.Write(csvHeader); err != nil {
		return err
	}
	l.writer.Flush()

	log.Printf("[logger] opened %s", path)
	return nil
}

func (l *Logger) closeFile() {
	if l.writer != nil {
		l.writer.Flush()
		l.writer = nil
	}
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
}

func buildRow(ts time.Time, snap bcm.Snapshot) []string {
	row := make([]string, len(csvHeader))
	row[0] = ts.Format(time.RFC3339Nano)
	row[1] = fmt.Sprintf("%d", snap.Stats.Cycles)
	row[2] = snap.DRL

	if li := snap.Reading.Light; li != nil {
		row[3] = fmt.Sprintf("%d", li.Counter)
		row[4] = fmt.Sprintf("%d", li.Intensity)
		row[5] = boolStr(li.Saturated)
		row[6] = fmt.Sprintf("%d", li.OverflowIndicator)
	}
	if env := snap.Reading.Env; env != nil {
		row[7] = fmt.Sprintf("%d", env.Solar)
		row[8] = fmt.Sprintf("%.1f", env.TempC)
		row[9] = fmt.Sprintf("%.1f", env.SecondaryTempC)
	}
	if rain := snap.Reading.Rain; rain != nil {
		row[10] = boolStr(rain.Active)
		row[11] = fmt.Sprintf("% X", rain.Raw[:])
	}
	row[12] = fmt.Sprintf("%d", snap.Stats.DroppedFrames)
	return row
}

func boolStr(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
