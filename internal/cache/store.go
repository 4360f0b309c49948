package cache

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/LavishGent/routewise/internal/types"
)

//go:embed schema.sql
var schemaSQL string

const (
	selectEntrySQL = `SELECT backend, response, created_at FROM cache WHERE operation = ? AND cache_key = ?`
	upsertEntrySQL = `INSERT INTO cache (operation, cache_key, backend, response, created_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (operation, cache_key)
DO UPDATE SET backend = excluded.backend, response = excluded.response, created_at = excluded.created_at`
	clearSQL = `DELETE FROM cache`
	countSQL = `SELECT COUNT(*) FROM cache`
)

// Store is the persisted source of truth for cached responses, one sqlite
// table keyed by (operation, cache_key). Every statement runs under one mutex.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger

	mu     sync.Mutex
	closed atomic.Bool
}

// OpenStore opens (creating if needed) the sqlite cache at path. An empty
// path opens a private in-memory database.
func OpenStore(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create cache directory: %w", err)
		}
		dsn = "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}
	// One connection: in-memory databases are per connection, and all
	// access is serialized anyway.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping cache database: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("init cache schema: %w", err)
	}

	s := NewStoreFromDB(db, logger)
	s.path = path
	s.logger.Debug("Cache store opened", "path", displayPath(path))
	return s, nil
}

// NewStoreFromDB wraps an already initialised database handle.
func NewStoreFromDB(db *sql.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		db:     db,
		logger: logger.With("component", "cache-store"),
	}
}

func displayPath(path string) string {
	if path == "" {
		return ":memory:"
	}
	return path
}

// Name returns the layer name.
func (s *Store) Name() string {
	return "sqlite"
}

// IsAvailable returns true until the store is closed.
func (s *Store) IsAvailable() bool {
	return !s.closed.Load()
}

// Path returns the database file path, empty for in-memory stores.
func (s *Store) Path() string {
	return s.path
}

// Load returns the row for (operation, key) or ErrCacheMiss.
func (s *Store) Load(ctx context.Context, operation, key string) (*types.CacheEntry, error) {
	if s.closed.Load() {
		return nil, types.ErrClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		backend   sql.NullString
		response  string
		createdAt float64
	)
	err := s.db.QueryRowContext(ctx, selectEntrySQL, operation, key).Scan(&backend, &response, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrCacheMiss
		}
		return nil, types.NewCacheError("Load", key, "sqlite", err)
	}

	return &types.CacheEntry{
		Operation: operation,
		Key:       key,
		Backend:   backend.String,
		Payload:   response,
		CreatedAt: fromEpoch(createdAt),
	}, nil
}

// Save upserts entry, replacing backend, payload and created_at.
func (s *Store) Save(ctx context.Context, entry *types.CacheEntry) error {
	if s.closed.Load() {
		return types.ErrClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	backend := sql.NullString{String: entry.Backend, Valid: entry.Backend != ""}
	_, err := s.db.ExecContext(ctx, upsertEntrySQL,
		entry.Operation, entry.Key, backend, entry.Payload, toEpoch(entry.CreatedAt))
	if err != nil {
		return types.NewCacheError("Save", entry.Key, "sqlite", err)
	}
	return nil
}

// Clear deletes every row.
func (s *Store) Clear(ctx context.Context) error {
	if s.closed.Load() {
		return types.ErrClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, clearSQL); err != nil {
		return types.NewCacheError("Clear", "", "sqlite", err)
	}
	return nil
}

// Count returns the number of stored rows.
func (s *Store) Count(ctx context.Context) (int64, error) {
	if s.closed.Load() {
		return 0, types.ErrClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	if err := s.db.QueryRowContext(ctx, countSQL).Scan(&n); err != nil {
		return 0, types.NewCacheError("Count", "", "sqlite", err)
	}
	return n, nil
}

// Close closes the database. Further calls return ErrClosed.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// created_at is stored as fractional unix seconds.
func toEpoch(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func fromEpoch(f float64) time.Time {
	sec := int64(f)
	nsec := int64((f - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec)
}
