package domain

import (
	"errors"
	"fmt"
)

var (
	ErrSerializationFailure = errors.New("serialization failure")
	ErrNotFound             = errors.New("not found")

	ErrRaffleClosed          = errors.New("raffle is no longer active")
	ErrSelfPurchaseForbidden = errors.New("cannot buy tickets in your own raffle")
	ErrNoNumbers             = errors.New("no ticket numbers requested")
	ErrRequestTooLarge       = errors.New("too many ticket numbers in one request")
	ErrNothingToConfirm      = errors.New("no reserved tickets to confirm")

	ErrForbidden                = errors.New("access denied")
	ErrAlreadyDrawn             = errors.New("winners have already been drawn")
	ErrInsufficientParticipants = errors.New("not enough sold tickets to draw")
	ErrNoDraw                   = errors.New("no draw has been performed")
)

// InvalidNumbersError reports numbers that are out of range or duplicated
// within a single purchase request.
type InvalidNumbersError struct {
	Offending []int
}

func (e *InvalidNumbersError) Error() string {
	return fmt.Sprintf("invalid ticket numbers: %v", e.Offending)
}

// NumbersUnavailableError reports every contested number so the caller can
// re-offer the remainder of a multi-number request.
type NumbersUnavailableError struct {
	Conflicting []int
}

func (e *NumbersUnavailableError) Error() string {
	return fmt.Sprintf("ticket numbers already taken: %v", e.Conflicting)
}

// InsufficientCapacityError rejects a request larger than what is left in
// the pool, before any ledger row is touched.
type InsufficientCapacityError struct {
	Available int
	Requested int
}

func (e *InsufficientCapacityError) Error() string {
	return fmt.Sprintf("only %d tickets available, requested %d", e.Available, e.Requested)
}
