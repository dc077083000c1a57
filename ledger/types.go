/*
Package ledger provides the coupon and rewards ledger core.

PURPOSE:
  This package contains the domain types and orchestration logic for a small
  commerce platform's reward system: a coupon catalog, a per-account
  coupon-assignment relation, and a per-account points balance fed by
  recorded purchases and spent through redemption into newly minted coupons.

KEY CONCEPTS IN THIS FILE (types.go):
  - Coupon: A discount voucher keyed by a unique, immutable code
  - Assignment: The (account, coupon) relation with its assignment time
  - PurchaseRecord: An immutable history entry behind every points grant
  - AccountRef: An opaque reference to an externally owned account

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal for money, never float64
  2. Immutability: PurchaseRecords are never modified once written
  3. Ownership: Each store owns exactly one of these types; cross-references
     are by key only, so cascades are explicit, not implicit

SEE ALSO:
  - errors.go: Error taxonomy shared by all stores
  - coupons.go: CouponStore and reward-code minting
  - rewards.go: RewardsLedger (balances and purchase history)
  - engine.go: RedemptionEngine orchestration
*/
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ACCOUNT - Opaque identity reference (owned externally)
// =============================================================================

// AccountRef identifies an account by its handle. The ledger never creates
// or owns accounts; it only references them by key.
type AccountRef string

// Identity resolves user handles to account references. The concrete
// implementation (registration, password checks) lives outside the core;
// the ledger only needs existence.
type Identity interface {
	// Resolve returns the account reference for a handle, or
	// ErrAccountNotFound if no such account exists.
	Resolve(ctx context.Context, handle string) (AccountRef, error)
}

// =============================================================================
// COUPON - Discount voucher keyed by unique code
// =============================================================================

type CouponKind string

const (
	// KindRegular is a directly issued coupon (admin/merchant created).
	KindRegular CouponKind = "regular"

	// KindRewards is a coupon minted by the redemption engine in exchange
	// for points. Its code always carries the reserved RW- prefix.
	KindRewards CouponKind = "rewards"
)

type Coupon struct {
	Code       string
	Discount   decimal.Decimal
	Kind       CouponKind
	PointsCost int64
	CreatedAt  time.Time
}

// =============================================================================
// ASSIGNMENT - (account, coupon) relation
// =============================================================================

// Assignment links an account to a coupon. At most one assignment exists
// per (account, code) pair; a second attempt is reported as
// ErrAlreadyAssigned, never silently ignored, so retried requests can tell
// idempotent-retry from genuine duplicate intent.
type Assignment struct {
	Account    AccountRef
	Code       string
	AssignedAt time.Time
}

// =============================================================================
// PURCHASE RECORD - Append-only history entry
// =============================================================================

// PurchaseRecord is written once per Earn call and never mutated or
// deleted. History queries return records newest-first.
type PurchaseRecord struct {
	ID           string
	Account      AccountRef
	Amount       decimal.Decimal
	PointsEarned int64
	Items        []string
	At           time.Time
}

// =============================================================================
// POINTS RULES - Fixed, deterministic conversion rules
// =============================================================================

// PointsPerUnit is the redemption exchange rate: 100 points buy 1 unit
// of discount.
const PointsPerUnit = 100

// PointsForAmount converts a purchase amount to earned points using the
// single pinned rounding rule: round half away from zero to the nearest
// integer. 19.6 earns 20 points, 19.4 earns 19.
func PointsForAmount(amount decimal.Decimal) int64 {
	return amount.Round(0).IntPart()
}

// DiscountForPoints converts redeemed points to a discount magnitude at
// the fixed exchange rate. Integer division: 250 points yield 2.
func DiscountForPoints(points int64) decimal.Decimal {
	return decimal.NewFromInt(points / PointsPerUnit)
}
