package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSignal rejects a malformed or unconfirmed inbound payload
	// before any venue call is made.
	ErrInvalidSignal = errors.New("invalid signal")

	// ErrInvalidSize rejects a zero or negative computed order size.
	ErrInvalidSize = errors.New("invalid position size")

	// ErrInvalidParameter flags negative prices or quantities in pure
	// calculations.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrFillFailed marks an entry order that was placed but reported zero
	// executed quantity. The placed-order ack is still returned for audit.
	ErrFillFailed = errors.New("entry order not filled")

	ErrPositionNotFound = errors.New("position not found")
)

// GatewayError wraps a transient venue or network failure. Monitor loops
// isolate these per symbol; callers retry on their next cycle.
type GatewayError struct {
	Venue string
	Op    string
	Err   error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Venue, e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// CriticalInvariantError reports a failed breakeven stop-loss move after the
// first take-profit fill. This is the one failure class that must be
// escalated rather than merely logged: the remaining position would be
// running without its risk floor.
type CriticalInvariantError struct {
	Symbol string
	Err    error
}

func (e *CriticalInvariantError) Error() string {
	return fmt.Sprintf("critical: stop-loss not moved to entry for %s: %v", e.Symbol, e.Err)
}

func (e *CriticalInvariantError) Unwrap() error { return e.Err }
