package routewise

import (
	"github.com/LavishGent/routewise/internal/types"
)

type (
	// BackendError is what a vendor implementation or model client returns
	// to have its failure classified.
	BackendError = types.BackendError
	// AllBackendsFailedError lists every vendor error of a failed route.
	AllBackendsFailedError = types.AllBackendsFailedError
	// ConfigError reports invalid or incomplete configuration.
	ConfigError = types.ConfigError
)

var (
	// ErrCircuitOpen indicates that a vendor's circuit breaker is open.
	ErrCircuitOpen = types.ErrCircuitOpen
	// ErrRateLimited matches every error classified as rate limited.
	ErrRateLimited = types.ErrRateLimited
	// ErrAllBackendsFailed matches AllBackendsFailedError.
	ErrAllBackendsFailed = types.ErrAllBackendsFailed
	// ErrConfiguration matches ConfigError.
	ErrConfiguration = types.ErrConfiguration
	// ErrUnknownOperation indicates an operation with no category or vendors.
	ErrUnknownOperation = types.ErrUnknownOperation
	// ErrNoCandidates indicates that every model was filtered out.
	ErrNoCandidates = types.ErrNoCandidates
	// ErrBulkheadFull indicates a vendor's bulkhead queue is full.
	ErrBulkheadFull = types.ErrBulkheadFull
	// ErrBulkheadTimeout indicates a bulkhead slot was not acquired in time.
	ErrBulkheadTimeout = types.ErrBulkheadTimeout
	// ErrShutdownTimeout indicates Close gave up waiting for pending work.
	ErrShutdownTimeout = types.ErrShutdownTimeout
	// ErrClosed indicates use after Close.
	ErrClosed = types.ErrClosed
)

// NewBackendError wraps err with its backend and failure class.
func NewBackendError(backend string, class ErrorClass, err error) *BackendError {
	return types.NewBackendError(backend, class, err)
}

// RateLimitedError wraps err as a rate-limit failure of backend.
func RateLimitedError(backend string, err error) *BackendError {
	return types.RateLimitedError(backend, err)
}

func IsCircuitOpen(err error) bool {
	return types.IsCircuitOpen(err)
}

func IsRateLimited(err error) bool {
	return types.IsRateLimited(err)
}

func IsAllBackendsFailed(err error) bool {
	return types.IsAllBackendsFailed(err)
}

func IsConfigurationError(err error) bool {
	return types.IsConfigurationError(err)
}
