package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured is returned when a guild has no payout configuration yet.
	ErrNotConfigured = errors.New("guild is not configured")

	// ErrOutOfStock is returned by TakeRandom when no account matches.
	// It is a business outcome, not a failure of the store.
	ErrOutOfStock = errors.New("out of stock")

	// ErrInvalidArgument is returned for empty identifiers or credentials.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnavailable wraps every failure of the backing store.
	ErrUnavailable = errors.New("store unavailable")
)

// Unavailable wraps err so that errors.Is(err, ErrUnavailable) holds while
// keeping the driver error in the chain.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

// Invalid reports a rejected argument.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
