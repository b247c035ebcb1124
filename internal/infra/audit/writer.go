// Package audit appends every attempt record to a rotating JSONL file.
package audit

import (
	"encoding/json"
	"log/slog"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/vietddude/bulwark/internal/core/domain"
)

// Config controls the audit trail destination and rotation.
type Config struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Writer appends attempt records as JSON lines to a rotating file. It
// satisfies the journal sink contract.
type Writer struct {
	mu  sync.Mutex
	out *lumberjack.Logger
	log *slog.Logger
}

// NewWriter creates an audit writer. Rotation fields fall back to
// defaults when zero.
func NewWriter(cfg Config) *Writer {
	maxSize := cfg.MaxSizeMB
	if maxSize == 0 {
		maxSize = 50
	}
	maxBackups := cfg.MaxBackups
	if maxBackups == 0 {
		maxBackups = 3
	}
	maxAge := cfg.MaxAgeDays
	if maxAge == 0 {
		maxAge = 28
	}
	return &Writer{
		out: &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    maxSize,
			MaxBackups: maxBackups,
			MaxAge:     maxAge,
			Compress:   cfg.Compress,
		},
		log: slog.Default().With("component", "audit"),
	}
}

// Record appends one attempt record as a JSON line.
func (w *Writer) Record(rec domain.AttemptRecord) {
	line, err := json.Marshal(rec)
	if err != nil {
		w.log.Error("Failed to encode audit record", "error", err)
		return
	}
	line = append(line, '\n')

	w.mu.Lock()
	_, err = w.out.Write(line)
	w.mu.Unlock()
	if err != nil {
		w.log.Error("Failed to write audit record", "error", err)
	}
}

// Close closes the underlying file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.out.Close()
}
