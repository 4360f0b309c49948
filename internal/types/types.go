// Package types provides shared types for the routewise routing layer.
// This package breaks import cycles between pkg/routewise and the internal packages.
package types

import (
	"strings"
	"time"
)

// CacheEntry is one cached backend response, unique per (Operation, Key).
type CacheEntry struct {
	Operation string    `json:"operation"`
	Key       string    `json:"key"`
	Backend   string    `json:"backend,omitempty"`
	Payload   string    `json:"payload"`
	CreatedAt time.Time `json:"createdAt"`
}

// Fresh reports whether the entry is usable under ttl at now.
// A non-positive ttl never expires.
func (e *CacheEntry) Fresh(ttl time.Duration, now time.Time) bool {
	if ttl <= 0 {
		return true
	}
	return now.Sub(e.CreatedAt) <= ttl
}

// Age returns how long ago the entry was written.
func (e *CacheEntry) Age(now time.Time) time.Duration {
	return now.Sub(e.CreatedAt)
}

// CompositeKey joins an operation and a cache key for single-keyspace layers.
func CompositeKey(operation, key string) string {
	return operation + ":" + key
}

// SplitList splits a comma separated list, trimming blanks and dropping empties.
func SplitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Cost is an estimated price in USD per 1k tokens.
type Cost struct {
	Prompt     float64 `json:"prompt" yaml:"prompt"`
	Completion float64 `json:"completion" yaml:"completion"`
}

// Clock returns the current time. Components accept one so tests can move time.
type Clock func() time.Time

// MemoryCacheStats contains counters of the in-process cache layer.
type MemoryCacheStats struct {
	Hits      int64
	Misses    int64
	Sets      int64
	Deletes   int64
	Evictions int64

	// Operations breaks hits, misses, sets and evictions down by the
	// operation half of the composite key.
	Operations map[string]OperationCacheStats
}

// OperationCacheStats counts one operation's traffic in a cache layer.
type OperationCacheStats struct {
	Hits      int64
	Misses    int64
	Sets      int64
	Evictions int64
}

// HitRatio returns hits over lookups, 0 without traffic.
func (s OperationCacheStats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}
