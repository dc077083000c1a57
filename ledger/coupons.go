/*
coupons.go - Coupon catalog interface and reward-code minting

PURPOSE:
  CouponStore owns coupon records keyed by code and enforces code
  uniqueness. Uniqueness must hold under concurrent Create calls racing on
  the same candidate code, so the contract is an atomic insert-if-absent at
  the storage layer - never a separate existence-check-then-insert.

REWARD CODES:
  Minted coupons carry a reserved RW- prefix so a generated code can never
  collide with a manually issued one. Collision between two generated codes
  is resolved by retrying against the atomic Create, not by trusting
  probabilistic uniqueness.

SEE ALSO:
  - store/sqlite: UNIQUE(code) + constraint-error mapping
  - ledger/store/memory.go: map insert under write lock
  - engine.go: MintRewardCoupon caller
*/
package ledger

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// COUPON STORE - Owns coupon records, enforces code uniqueness
// =============================================================================

type CouponStore interface {
	// CreateCoupon inserts a coupon if and only if the code is absent.
	// Returns ErrDuplicateCode if the code is already present; the stored
	// record is left untouched. The insert is atomic with the existence
	// check.
	CreateCoupon(ctx context.Context, c Coupon) error

	// GetCoupon returns the coupon for a code, or ErrCouponNotFound.
	GetCoupon(ctx context.Context, code string) (Coupon, error)

	// ListCoupons returns a snapshot of all coupons at call time. Order is
	// advisory, not semantic.
	ListCoupons(ctx context.Context) ([]Coupon, error)

	// DeleteCoupon removes the record, or returns ErrCouponNotFound. It
	// does NOT touch assignments; callers pair it with RevokeAll inside a
	// transaction boundary (see RedemptionEngine.DeleteCoupon).
	DeleteCoupon(ctx context.Context, code string) error
}

// =============================================================================
// REWARD CODE GENERATION
// =============================================================================

// RewardCodePrefix marks codes minted by the redemption engine. Regular
// coupon creation rejects codes with this prefix (ErrReservedCode), so the
// two namespaces cannot collide.
const RewardCodePrefix = "RW-"

const (
	rewardCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789" // no 0/O, 1/I
	rewardCodeLength   = 10
	mintMaxAttempts    = 5
)

// randomRewardCode produces one candidate code. Uniqueness is NOT
// guaranteed here; MintRewardCoupon retries against CreateCoupon.
func randomRewardCode() (string, error) {
	buf := make([]byte, rewardCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("%w: reading random bytes: %v", ErrUnavailable, err)
	}
	var b strings.Builder
	b.WriteString(RewardCodePrefix)
	for _, c := range buf {
		b.WriteByte(rewardCodeAlphabet[int(c)%len(rewardCodeAlphabet)])
	}
	return b.String(), nil
}

// MintRewardCoupon creates a rewards-kind coupon under a freshly generated
// code, retrying on code collision. The returned coupon is already
// persisted in the store.
func MintRewardCoupon(ctx context.Context, store CouponStore, clock Clock, discount decimal.Decimal, pointsCost int64) (Coupon, error) {
	for attempt := 0; attempt < mintMaxAttempts; attempt++ {
		code, err := randomRewardCode()
		if err != nil {
			return Coupon{}, err
		}

		c := Coupon{
			Code:       code,
			Discount:   discount,
			Kind:       KindRewards,
			PointsCost: pointsCost,
			CreatedAt:  clock.Now(),
		}
		err = store.CreateCoupon(ctx, c)
		if err == nil {
			return c, nil
		}
		if IsConflict(err) {
			continue // another caller won the race on this code; try again
		}
		return Coupon{}, err
	}
	return Coupon{}, fmt.Errorf("%w: could not mint a unique reward code after %d attempts",
		ErrUnavailable, mintMaxAttempts)
}
