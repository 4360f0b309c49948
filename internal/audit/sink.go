// Package audit writes append-only routing events (vendor failures, circuit
// trips, model fallbacks) as JSON lines.
package audit

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/LavishGent/routewise/internal/config"
	"github.com/LavishGent/routewise/internal/types"
)

const (
	defaultBufferSize = 1000
	defaultWorkers    = 1
)

// Sink is an AuditSink that owns background resources.
type Sink interface {
	types.AuditSink
	Close(timeout time.Duration) error
}

// New returns a FileSink for cfg, or a NopSink when auditing is disabled.
func New(cfg *config.AuditConfig, logger *slog.Logger) (Sink, error) {
	if !cfg.Enabled {
		return NopSink{}, nil
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audit dir %q: %w", cfg.Dir, err)
	}

	prefix := cfg.FilePrefix
	if prefix == "" {
		prefix = "routing"
	}
	writer := &lumberjack.Logger{
		Filename: filepath.Join(cfg.Dir, prefix+".jsonl"),
		MaxSize:  cfg.MaxSizeMB,
		MaxAge:   cfg.RetentionDays,
	}

	s := newFileSink(zapcore.AddSync(writer), cfg.BufferSize, cfg.Workers, logger)
	s.path = writer.Filename
	s.closer = writer.Close
	return s, nil
}

// FileSink encodes records on worker goroutines. Record never blocks: when
// the buffer is full the record is dropped with a warning.
//
//nolint:govet // FileSink struct - logical grouping prioritized over alignment
type FileSink struct {
	core    zapcore.Core
	logger  *slog.Logger
	records chan types.AuditRecord
	closer  func() error
	path    string
	now     func() time.Time
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	// abandoned is set when Close times out; workers then discard the rest
	// of the queue.
	abandoned atomic.Bool

	written atomic.Int64
	dropped atomic.Int64
}

func newFileSink(out zapcore.WriteSyncer, bufferSize, workers int, logger *slog.Logger) *FileSink {
	if logger == nil {
		logger = slog.Default()
	}
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	if workers <= 0 {
		workers = defaultWorkers
	}

	encoderCfg := zapcore.EncoderConfig{
		TimeKey:    "timestamp",
		MessageKey: "event",
		EncodeTime: func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString(t.UTC().Format(time.RFC3339Nano))
		},
		EncodeDuration: zapcore.StringDurationEncoder,
		LineEnding:     zapcore.DefaultLineEnding,
	}

	s := &FileSink{
		core:    zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.Lock(out), zapcore.InfoLevel),
		logger:  logger.With("component", "audit"),
		records: make(chan types.AuditRecord, bufferSize),
		now:     time.Now,
	}
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	return s
}

// Record queues rec with a timestamp and id added when absent. The caller's
// map is not modified.
func (s *FileSink) Record(rec types.AuditRecord) {
	out := make(types.AuditRecord, len(rec)+2)
	for k, v := range rec {
		out[k] = v
	}
	if _, ok := out["timestamp"]; !ok {
		out["timestamp"] = s.now()
	}
	if _, ok := out["id"]; !ok {
		out["id"] = strings.ReplaceAll(uuid.NewString(), "-", "")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.logger.Debug("Audit sink closed, dropping record", "event", rec.Event())
		return
	}

	select {
	case s.records <- out:
	default:
		s.dropped.Add(1)
		s.logger.Warn("Audit buffer full, dropping record", "event", rec.Event())
	}
}

func (s *FileSink) worker() {
	defer s.wg.Done()
	for rec := range s.records {
		if s.abandoned.Load() {
			s.dropped.Add(1)
			continue
		}
		if err := s.write(rec); err != nil {
			s.logger.Warn("Failed to write audit record", "event", rec.Event(), "error", err)
			continue
		}
		s.written.Add(1)
	}
}

func (s *FileSink) write(rec types.AuditRecord) error {
	entry := zapcore.Entry{
		Level:   zapcore.InfoLevel,
		Time:    timestampOf(rec, s.now),
		Message: rec.Event(),
	}

	keys := make([]string, 0, len(rec))
	for k := range rec {
		if k != "event" && k != "timestamp" {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	fields := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, zap.Any(k, rec[k]))
	}
	return s.core.Write(entry, fields)
}

func timestampOf(rec types.AuditRecord, now func() time.Time) time.Time {
	switch ts := rec["timestamp"].(type) {
	case time.Time:
		return ts
	case string:
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			return t
		}
	}
	return now()
}

// Close stops accepting records and waits up to timeout for queued ones
// to be written. On timeout the remaining records are discarded and the
// file is closed as soon as the in-flight write returns.
func (s *FileSink) Close(timeout time.Duration) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.records)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		pending := len(s.records)
		s.abandoned.Store(true)
		go func() {
			<-done
			if err := s.closeWriter(); err != nil {
				s.logger.Warn("Failed to close audit file", "error", err)
			}
		}()
		return fmt.Errorf("audit sink: %d records pending: %w", pending, types.ErrShutdownTimeout)
	}
	return s.closeWriter()
}

func (s *FileSink) closeWriter() error {
	if err := s.core.Sync(); err != nil {
		s.logger.Debug("Audit sync failed", "error", err)
	}
	if s.closer != nil {
		return s.closer()
	}
	return nil
}

// Path is the active audit file, empty for sinks not backed by a file.
func (s *FileSink) Path() string {
	return s.path
}

// Written is the number of records encoded so far.
func (s *FileSink) Written() int64 {
	return s.written.Load()
}

// Dropped is the number of records discarded because the buffer was full.
func (s *FileSink) Dropped() int64 {
	return s.dropped.Load()
}

// NopSink discards records.
type NopSink struct{}

func (NopSink) Record(types.AuditRecord) {}
func (NopSink) Close(time.Duration) error { return nil }

// MemorySink keeps records in memory.
type MemorySink struct {
	mu      sync.Mutex
	records []types.AuditRecord
}

func (m *MemorySink) Record(rec types.AuditRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
}

func (m *MemorySink) Close(time.Duration) error { return nil }

// Records returns a copy of everything recorded so far.
func (m *MemorySink) Records() []types.AuditRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.records)
}

// Events returns the event names in recording order.
func (m *MemorySink) Events() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.records))
	for i, r := range m.records {
		out[i] = r.Event()
	}
	return out
}

var (
	_ Sink = (*FileSink)(nil)
	_ Sink = NopSink{}
	_ Sink = (*MemorySink)(nil)
)
