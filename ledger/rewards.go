/*
rewards.go - Per-account points balance and purchase history

PURPOSE:
  RewardsLedger owns each account's integer point balance and its
  append-only purchase history.

CRITICAL INVARIANTS:
  1. NON-NEGATIVE: Balance never goes below zero. A debit that would make
     it negative is rejected entirely - no partial debit.
  2. APPEND-ONLY: PurchaseRecords are never mutated or deleted.
  3. SERIALIZED PER ACCOUNT: Concurrent Earn/Debit calls against the same
     account must not interleave their read-modify-write; the net effect
     equals some serial ordering (no lost updates). Operations on different
     accounts never block one another.

POINT CALCULATION:
  pointsEarned = round(amount) to the nearest integer (half away from
  zero). This is the single pinned rule; see PointsForAmount in types.go.

SEE ALSO:
  - engine.go: Redeem debits here and re-credits on compensation
*/
package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// REWARDS LEDGER - Owns Balance and PurchaseRecord per account
// =============================================================================

// EarnResult reports the outcome of recording a purchase.
type EarnResult struct {
	Record     PurchaseRecord
	NewBalance int64
}

type RewardsLedger interface {
	// Earn records a purchase and credits round(amount) points. Returns
	// ErrAccountNotFound for an unknown account. The record append and the
	// balance increment happen atomically.
	Earn(ctx context.Context, account AccountRef, amount decimal.Decimal, items []string) (EarnResult, error)

	// Balance returns the current point balance. A registered account that
	// has never purchased has a defined balance of zero; only an unknown
	// account yields ErrAccountNotFound.
	Balance(ctx context.Context, account AccountRef) (int64, error)

	// History returns the account's purchase records, newest first.
	History(ctx context.Context, account AccountRef) ([]PurchaseRecord, error)

	// Debit deducts points and returns the new balance. Fails with
	// ErrInvalidPoints if points <= 0, ErrAccountNotFound for an unknown
	// account, and *InsufficientPointsError (wrapping
	// ErrInsufficientPoints) if points exceed the balance - in which case
	// the balance is unchanged.
	Debit(ctx context.Context, account AccountRef, points int64) (int64, error)

	// Credit adds points back and returns the new balance. Used only by
	// redemption compensation; it does not write a PurchaseRecord.
	Credit(ctx context.Context, account AccountRef, points int64) (int64, error)
}
