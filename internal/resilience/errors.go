package resilience

import (
	"context"
	"errors"

	"github.com/LavishGent/routewise/internal/types"
)

var (
	ErrCircuitOpen     = types.ErrCircuitOpen
	ErrBulkheadFull    = types.ErrBulkheadFull
	ErrBulkheadTimeout = types.ErrBulkheadTimeout
)

// IsBulkheadError returns true if the error is a bulkhead error.
func IsBulkheadError(err error) bool {
	return errors.Is(err, types.ErrBulkheadFull) || errors.Is(err, types.ErrBulkheadTimeout)
}

// Classify maps err onto the closed set of failure classes. Adapters attach
// a class with types.BackendError; everything unrecognised is transient.
func Classify(err error) types.ErrorClass {
	if err == nil {
		return types.ClassTransient
	}

	var backendErr *types.BackendError
	if errors.As(err, &backendErr) {
		return backendErr.Class
	}

	if errors.Is(err, types.ErrRateLimited) {
		return types.ClassRateLimited
	}

	if errors.Is(err, context.Canceled) {
		return types.ClassFatal
	}

	if errors.Is(err, types.ErrConfiguration) {
		return types.ClassFatal
	}

	// Deadlines, network failures and anything unrecognised.
	return types.ClassTransient
}

// IsRateLimit reports whether err classifies as rate limited.
func IsRateLimit(err error) bool {
	return err != nil && Classify(err) == types.ClassRateLimited
}
