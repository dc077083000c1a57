/*
engine.go - Redemption and cascade orchestration

PURPOSE:
  The RedemptionEngine coordinates CouponStore + AssignmentIndex +
  RewardsLedger for the two operations that span more than one store:

  Redeem:       debit points, mint a rewards coupon, assign it - as one
                logical unit
  DeleteCoupon: remove a coupon and cascade into the assignment index -
                atomically visible

REDEEM STATE MACHINE:
  validating -> debiting -> minting -> assigning -> committed

  From any state after the debit succeeded, a failure moves to
  compensating -> failed: the debit is re-credited before the error
  surfaces, so a failed redemption never leaves points spent with no
  coupon granted. This compensating action is the central correctness
  property of this component. A concurrent balance read may transiently
  see the debited value before compensation completes; what it must never
  see is that state as final.

  If the compensation itself fails, the engine fails loudly with a
  CompensationError carrying both causes - never silently.

SEE ALSO:
  - coupons.go: MintRewardCoupon (code-collision retry)
  - backend.go: WithTx contract used by DeleteCoupon
*/
package ledger

import (
	"context"

	"github.com/rs/zerolog"
)

// =============================================================================
// REDEMPTION ENGINE
// =============================================================================

type RedemptionEngine struct {
	backend  Backend
	identity Identity
	clock    Clock
	log      zerolog.Logger
}

func NewRedemptionEngine(backend Backend, identity Identity, clock Clock, log zerolog.Logger) *RedemptionEngine {
	return &RedemptionEngine{
		backend:  backend,
		identity: identity,
		clock:    clock,
		log:      log,
	}
}

// redeemState names the phases of a single Redeem call, for logging.
type redeemState string

const (
	stateValidating   redeemState = "validating"
	stateDebiting     redeemState = "debiting"
	stateMinting      redeemState = "minting"
	stateAssigning    redeemState = "assigning"
	stateCommitted    redeemState = "committed"
	stateCompensating redeemState = "compensating"
	stateFailed       redeemState = "failed"
)

// RedeemResult is the success payload of Redeem.
type RedeemResult struct {
	Coupon           Coupon
	RemainingBalance int64
}

// Redeem converts points into a freshly minted, account-assigned coupon.
// discount = floor(points / 100); a zero-discount coupon is not rejected
// here - restricting small redemptions is a boundary-layer policy choice.
//
// All-or-nothing: if the debit fails, no coupon is created and no
// assignment occurs. If any later step fails, the debit is re-credited
// before the error is returned.
func (e *RedemptionEngine) Redeem(ctx context.Context, handle string, points int64) (RedeemResult, error) {
	account, err := e.identity.Resolve(ctx, handle)
	if err != nil {
		return RedeemResult{}, err
	}
	if points <= 0 {
		return RedeemResult{}, ErrInvalidPoints
	}

	balance, err := e.backend.Debit(ctx, account, points)
	if err != nil {
		return RedeemResult{}, err
	}

	coupon, err := MintRewardCoupon(ctx, e.backend, e.clock, DiscountForPoints(points), points)
	if err != nil {
		return RedeemResult{}, e.compensate(ctx, account, points, stateMinting, err)
	}

	if _, err := e.backend.Assign(ctx, account, coupon.Code); err != nil {
		// Best effort: drop the orphaned coupon before re-crediting. The
		// code is freshly minted, so ErrCouponNotFound cannot race here.
		if delErr := e.backend.DeleteCoupon(ctx, coupon.Code); delErr != nil {
			e.log.Error().Err(delErr).Str("code", coupon.Code).
				Msg("could not remove unassigned reward coupon")
		}
		return RedeemResult{}, e.compensate(ctx, account, points, stateAssigning, err)
	}

	e.log.Info().Str("account", string(account)).Int64("points", points).
		Str("code", coupon.Code).Str("state", string(stateCommitted)).
		Msg("redemption committed")

	return RedeemResult{Coupon: coupon, RemainingBalance: balance}, nil
}

// compensate re-credits a debit after a post-debit failure and returns the
// error the caller should surface.
func (e *RedemptionEngine) compensate(ctx context.Context, account AccountRef, points int64, failedAt redeemState, cause error) error {
	e.log.Warn().Str("account", string(account)).Int64("points", points).
		Str("failed_at", string(failedAt)).Str("state", string(stateCompensating)).
		Err(cause).Msg("redemption failed after debit, re-crediting")

	if _, err := e.backend.Credit(ctx, account, points); err != nil {
		comp := &CompensationError{Account: account, Points: points, Cause: cause, Credit: err}
		e.log.Error().Str("account", string(account)).Int64("points", points).
			Str("state", string(stateFailed)).Err(comp).Msg("redemption compensation failed")
		return comp
	}
	return cause
}

// =============================================================================
// ASSIGNMENT ORCHESTRATION - validates both references before linking
// =============================================================================

// Assign links an existing coupon to an existing account. Reference
// validation happens here so the index itself stays decoupled from the
// identity layer and the coupon catalog.
func (e *RedemptionEngine) Assign(ctx context.Context, handle, code string) (Assignment, error) {
	account, err := e.identity.Resolve(ctx, handle)
	if err != nil {
		return Assignment{}, err
	}
	if _, err := e.backend.GetCoupon(ctx, code); err != nil {
		return Assignment{}, err
	}
	return e.backend.Assign(ctx, account, code)
}

// ListForAccount returns the coupons currently assigned to an account.
func (e *RedemptionEngine) ListForAccount(ctx context.Context, handle string) ([]Coupon, error) {
	account, err := e.identity.Resolve(ctx, handle)
	if err != nil {
		return nil, err
	}
	return ResolveAssignments(ctx, e.backend, e.backend, account)
}

// RevokeOne removes a coupon from one account.
func (e *RedemptionEngine) RevokeOne(ctx context.Context, handle, code string) error {
	account, err := e.identity.Resolve(ctx, handle)
	if err != nil {
		return err
	}
	return e.backend.RevokeOne(ctx, account, code)
}

// =============================================================================
// CASCADE DELETE - coupon removal plus assignment cleanup, atomic
// =============================================================================

// DeleteCoupon removes a coupon and every assignment referencing it. The
// pair runs inside one transaction boundary so a concurrent reader sees
// either both effects or neither - never a deleted coupon still present in
// an account's list, nor a dangling reference that resolves.
func (e *RedemptionEngine) DeleteCoupon(ctx context.Context, code string) error {
	return e.backend.WithTx(ctx, func(tx Backend) error {
		if err := tx.DeleteCoupon(ctx, code); err != nil {
			return err
		}
		return tx.RevokeAll(ctx, code)
	})
}
