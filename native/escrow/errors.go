package escrow

import "errors"

// Sentinel errors surfaced by the engine. Every failure leaves the persisted
// record untouched; callers match with errors.Is to map them onto transport
// error codes.
var (
	// ErrNotFound is returned when an escrow id was never allocated.
	ErrNotFound = errors.New("escrow: not found")
	// ErrInvalidParty is returned at creation when buyer and seller are not
	// two distinct, non-zero principals.
	ErrInvalidParty = errors.New("escrow: invalid party")
	// ErrInvalidAmount is returned at creation for a missing or non-positive
	// amount.
	ErrInvalidAmount = errors.New("escrow: invalid amount")
	// ErrWrongStatus is returned when an operation is not valid in the
	// record's current status.
	ErrWrongStatus = errors.New("escrow: wrong status")
	// ErrWrongParty is returned when the caller lacks the role the operation
	// requires.
	ErrWrongParty = errors.New("escrow: wrong party")
	// ErrWrongAmount is returned when a deposit does not match the escrow
	// amount exactly.
	ErrWrongAmount = errors.New("escrow: wrong amount")
	// ErrTooEarly is returned when a time-based release is attempted before
	// the end time.
	ErrTooEarly = errors.New("escrow: release time not reached")
	// ErrUnauthorized is returned when a non-administrator invokes an
	// administrator-only operation.
	ErrUnauthorized = errors.New("escrow: unauthorized")
	// ErrTransferFailed is returned when moving value to a recipient did not
	// complete; the status never advances in that case.
	ErrTransferFailed = errors.New("escrow: transfer failed")
)
