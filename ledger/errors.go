/*
errors.go - Centralized error taxonomy for the ledger core

PURPOSE:
  All error types in one place for consistency and discoverability.
  Every error here is a recoverable-by-caller condition reported as a
  value, never a process abort.

ERROR CATEGORIES:
  1. Not found    - Referenced entity absent (coupon, account, assignment)
  2. Conflict     - Uniqueness violations (duplicate code, already assigned)
  3. Business     - Rule violations (insufficient points)
  4. Unavailable  - Storage-layer faults, propagated unchanged so the
                    boundary layer decides retry policy

USAGE:
  if errors.Is(err, ledger.ErrInsufficientPoints) {
      // balance unchanged, safe to surface to the user
  }

SEE ALSO:
  - store/sqlite: maps UNIQUE constraint failures onto these errors
  - api/handlers.go: maps these onto HTTP status codes
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrCouponNotFound is returned when a referenced coupon code is absent.
	ErrCouponNotFound = errors.New("coupon not found")

	// ErrDuplicateCode is returned when creating a coupon whose code is
	// already present. The existing record is left untouched.
	ErrDuplicateCode = errors.New("coupon code already exists")

	// ErrReservedCode is returned when a regular coupon is created with the
	// reward-code prefix, which is reserved for minted coupons.
	ErrReservedCode = errors.New("coupon code uses reserved prefix")

	// ErrAccountNotFound is returned when identity resolution fails.
	ErrAccountNotFound = errors.New("account not found")

	// ErrDuplicateHandle is returned when registering an account whose
	// handle is already taken.
	ErrDuplicateHandle = errors.New("account handle already exists")

	// ErrAlreadyAssigned is returned when the (account, coupon) pair already
	// exists. The store is unchanged; this is a no-op reported as an error.
	ErrAlreadyAssigned = errors.New("coupon already assigned to account")

	// ErrNotAssigned is returned when revoking a pair that does not exist.
	ErrNotAssigned = errors.New("coupon not assigned to account")

	// ErrInsufficientPoints is returned when a debit exceeds the current
	// balance. The entire debit is rejected; the balance is unchanged.
	ErrInsufficientPoints = errors.New("insufficient reward points")

	// ErrInvalidPoints is returned when a debit or redemption requests a
	// non-positive point count.
	ErrInvalidPoints = errors.New("points must be positive")

	// ErrInvalidAmount is returned when Earn is called with a negative
	// purchase amount.
	ErrInvalidAmount = errors.New("purchase amount must not be negative")

	// ErrUnavailable wraps storage-layer faults (unreachable backend,
	// serialization failure). The core never retries these itself: retrying
	// a non-idempotent mutation like Earn could double-count.
	ErrUnavailable = errors.New("storage unavailable")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientPointsError reports how short a debit fell.
type InsufficientPointsError struct {
	Account   AccountRef
	Available int64
	Requested int64
}

func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("insufficient reward points: available %d, requested %d",
		e.Available, e.Requested)
}

func (e *InsufficientPointsError) Unwrap() error {
	return ErrInsufficientPoints
}

// CompensationError is returned when a redemption failed after the debit
// succeeded AND the compensating re-credit also failed. Points may be
// spent with no coupon granted; this must never be dropped silently.
type CompensationError struct {
	Account AccountRef
	Points  int64
	Cause   error // the failure that triggered compensation
	Credit  error // the failure of the compensation itself
}

func (e *CompensationError) Error() string {
	return fmt.Sprintf("redemption failed (%v) and compensation of %d points for %q failed: %v",
		e.Cause, e.Points, e.Account, e.Credit)
}

func (e *CompensationError) Unwrap() error {
	return ErrUnavailable
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCouponNotFound) ||
		errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrNotAssigned)
}

// IsConflict returns true if the error indicates a uniqueness violation.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateCode) ||
		errors.Is(err, ErrAlreadyAssigned)
}

// IsClientError returns true if the error is due to invalid client input
// or a business-rule violation, as opposed to a system fault.
func IsClientError(err error) bool {
	return IsNotFound(err) ||
		IsConflict(err) ||
		errors.Is(err, ErrInsufficientPoints) ||
		errors.Is(err, ErrInvalidPoints) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrReservedCode)
}
