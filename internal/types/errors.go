package types

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrCacheMiss           = errors.New("routewise: cache entry not found")
	ErrClosed              = errors.New("routewise: closed")
	ErrInvalidKey          = errors.New("routewise: invalid name")
	ErrCircuitOpen         = errors.New("routewise: circuit breaker open")
	ErrBackendUnavailable  = errors.New("routewise: backend unavailable")
	ErrRateLimited         = errors.New("routewise: rate limited")
	ErrAllBackendsFailed   = errors.New("routewise: all backends failed")
	ErrConfiguration       = errors.New("routewise: configuration error")
	ErrUnknownOperation    = errors.New("routewise: unknown operation")
	ErrNoCandidates        = errors.New("routewise: no candidates available")
	ErrBulkheadFull        = errors.New("routewise: bulkhead at capacity")
	ErrBulkheadTimeout     = errors.New("routewise: bulkhead timeout")
	ErrSerializationFailed = errors.New("routewise: serialization failed")
	ErrShutdownTimeout     = errors.New("routewise: shutdown timeout waiting for background operations")
	ErrRedisUnavailable    = errors.New("routewise: redis unavailable")
	ErrWriteQueueFull      = errors.New("routewise: write queue full")
)

// ErrorClass is the closed set of failure classes a backend adapter reports.
type ErrorClass int

const (
	ClassTransient ErrorClass = iota
	ClassRateLimited
	ClassBadRequest
	ClassFatal
)

func (c ErrorClass) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassRateLimited:
		return "rate_limit"
	case ClassBadRequest:
		return "bad_request"
	case ClassFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

type CacheError struct {
	Op    string
	Key   string
	Layer string
	Err   error
}

func (e *CacheError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("cache %s on %s [%s]: %v", e.Op, e.Layer, e.Key, e.Err)
	}
	return fmt.Sprintf("cache %s on %s: %v", e.Op, e.Layer, e.Err)
}

func (e *CacheError) Unwrap() error {
	return e.Err
}

func NewCacheError(op, key, layer string, err error) *CacheError {
	return &CacheError{
		Op:    op,
		Key:   key,
		Layer: layer,
		Err:   err,
	}
}

// BackendError is the error an adapter returns after translating a
// backend-specific failure into an ErrorClass.
type BackendError struct {
	Backend    string
	Class      ErrorClass
	StatusCode int
	Err        error
}

func (e *BackendError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("backend %s (%s, status %d): %v", e.Backend, e.Class, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("backend %s (%s): %v", e.Backend, e.Class, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// Is reports rate-limit classified errors as ErrRateLimited.
func (e *BackendError) Is(target error) bool {
	return target == ErrRateLimited && e.Class == ClassRateLimited
}

func NewBackendError(backend string, class ErrorClass, err error) *BackendError {
	return &BackendError{
		Backend: backend,
		Class:   class,
		Err:     err,
	}
}

// RateLimitedError returns a BackendError classified as rate limited.
func RateLimitedError(backend string, err error) *BackendError {
	if err == nil {
		err = ErrRateLimited
	}
	return NewBackendError(backend, ClassRateLimited, err)
}

// AllBackendsFailedError is returned when every candidate for an operation
// was exhausted and no stale cache entry could be served.
type AllBackendsFailedError struct {
	Operation string
	Attempts  int
	Errs      []error
}

func (e *AllBackendsFailedError) Error() string {
	if len(e.Errs) == 0 {
		return fmt.Sprintf("all backends failed for %q after %d attempt(s)", e.Operation, e.Attempts)
	}
	msgs := make([]string, 0, len(e.Errs))
	for _, err := range e.Errs {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("all backends failed for %q after %d attempt(s): %s",
		e.Operation, e.Attempts, strings.Join(msgs, "; "))
}

func (e *AllBackendsFailedError) Is(target error) bool {
	return target == ErrAllBackendsFailed
}

func (e *AllBackendsFailedError) Unwrap() []error {
	return e.Errs
}

// ConfigError describes invalid or incomplete configuration detected before
// any backend is contacted.
type ConfigError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	msg := e.Reason
	if e.Field != "" {
		msg = e.Field + ": " + e.Reason
	}
	if e.Err != nil {
		return fmt.Sprintf("configuration error: %s: %v", msg, e.Err)
	}
	return "configuration error: " + msg
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrConfiguration
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func NewConfigError(field, reason string) *ConfigError {
	return &ConfigError{Field: field, Reason: reason}
}

func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

func IsCircuitOpen(err error) bool {
	return errors.Is(err, ErrCircuitOpen)
}

func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

func IsAllBackendsFailed(err error) bool {
	return errors.Is(err, ErrAllBackendsFailed)
}

func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}
