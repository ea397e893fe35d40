package annotation

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrInvalidOptions is returned before any store access when the search
	// options cannot be served.
	ErrInvalidOptions = errors.New("invalid search options")

	// ErrStoreUnavailable wraps backend failures. Stores are expected to wrap
	// their driver errors with it.
	ErrStoreUnavailable = errors.New("annotation store unavailable")

	// ErrStoreTimeout wraps deadline expiry while talking to the store.
	ErrStoreTimeout = errors.New("annotation store timeout")

	// ErrInconsistentSnapshot marks a store that shrank while a search was
	// running. It is logged and recorded in Metadata, never returned.
	ErrInconsistentSnapshot = errors.New("inconsistent snapshot")
)

func invalidOptions(field, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidOptions, field, fmt.Sprintf(format, args...))
}

// StoreError classifies err as a timeout or an unavailable store, keeping the
// original error in the chain. Nil stays nil.
func StoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrStoreTimeout) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w", op, ErrStoreTimeout, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

// IsInvalidOptions checks if an error is an options validation error.
func IsInvalidOptions(err error) bool {
	return errors.Is(err, ErrInvalidOptions)
}

// IsTimeout checks if an error came from a store deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrStoreTimeout)
}

// IsStoreFailure checks if an error originated in the backing store.
func IsStoreFailure(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrStoreTimeout)
}
