package ledger_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/commerce-ledger/ledger"
	"github.com/warp/commerce-ledger/ledger/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// accountResolver implements ledger.Identity straight off the account store,
// without the password machinery.
type accountResolver struct {
	accounts ledger.AccountStore
}

func (r accountResolver) Resolve(ctx context.Context, handle string) (ledger.AccountRef, error) {
	a, err := r.accounts.GetAccount(ctx, handle)
	if err != nil {
		return "", err
	}
	return ledger.AccountRef(a.Handle), nil
}

func newTestEngine(t *testing.T) (*ledger.RedemptionEngine, *store.Memory) {
	t.Helper()
	backend := store.NewMemory(ledger.NewSystemClock())
	engine := ledger.NewRedemptionEngine(backend, accountResolver{backend}, ledger.NewSystemClock(), zerolog.Nop())
	return engine, backend
}

func engineOver(backend ledger.Backend) *ledger.RedemptionEngine {
	return ledger.NewRedemptionEngine(backend, accountResolver{backend}, ledger.NewSystemClock(), zerolog.Nop())
}

func registerAccount(t *testing.T, backend ledger.Backend, handle string) ledger.AccountRef {
	t.Helper()
	err := backend.CreateAccount(context.Background(), ledger.Account{
		Handle:    handle,
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	return ledger.AccountRef(handle)
}

func earn(t *testing.T, backend ledger.Backend, account ledger.AccountRef, amount string) {
	t.Helper()
	d, err := decimal.NewFromString(amount)
	require.NoError(t, err)
	_, err = backend.Earn(context.Background(), account, d, nil)
	require.NoError(t, err)
}

// =============================================================================
// FAULT-INJECTING BACKENDS
// =============================================================================

// faultyBackend wraps a real backend and fails selected operations.
type faultyBackend struct {
	ledger.Backend

	failCreateCoupon error
	failAssign       error
	failCredit       error

	// duplicateCreates makes the first N CreateCoupon calls report a code
	// collision before delegating.
	duplicateCreates int
}

func (f *faultyBackend) CreateCoupon(ctx context.Context, c ledger.Coupon) error {
	if f.duplicateCreates > 0 {
		f.duplicateCreates--
		return ledger.ErrDuplicateCode
	}
	if f.failCreateCoupon != nil {
		return f.failCreateCoupon
	}
	return f.Backend.CreateCoupon(ctx, c)
}

func (f *faultyBackend) Assign(ctx context.Context, account ledger.AccountRef, code string) (ledger.Assignment, error) {
	if f.failAssign != nil {
		return ledger.Assignment{}, f.failAssign
	}
	return f.Backend.Assign(ctx, account, code)
}

func (f *faultyBackend) Credit(ctx context.Context, account ledger.AccountRef, points int64) (int64, error) {
	if f.failCredit != nil {
		return 0, f.failCredit
	}
	return f.Backend.Credit(ctx, account, points)
}

// =============================================================================
// REDEEM - HAPPY PATH
// =============================================================================

func TestRedeem_MintsAssignsAndDebits(t *testing.T) {
	// GIVEN: An account with 300 points
	// WHEN: Redeeming 250 points
	// THEN: A rewards coupon with discount 2 is minted, assigned, and the
	//       balance drops to 50

	engine, backend := newTestEngine(t)
	ctx := context.Background()

	alice := registerAccount(t, backend, "alice")
	earn(t, backend, alice, "300")

	result, err := engine.Redeem(ctx, "alice", 250)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(result.Coupon.Code, ledger.RewardCodePrefix))
	assert.Equal(t, ledger.KindRewards, result.Coupon.Kind)
	assert.Equal(t, int64(250), result.Coupon.PointsCost)
	assert.True(t, result.Coupon.Discount.Equal(decimal.NewFromInt(2)))
	assert.Equal(t, int64(50), result.RemainingBalance)

	// The coupon is persisted and assigned.
	stored, err := backend.GetCoupon(ctx, result.Coupon.Code)
	require.NoError(t, err)
	assert.Equal(t, result.Coupon.Code, stored.Code)

	assigned, err := engine.ListForAccount(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, assigned, 1)
	assert.Equal(t, result.Coupon.Code, assigned[0].Code)
}

func TestRedeem_ZeroDiscountAllowed(t *testing.T) {
	// GIVEN: An account with 60 points
	// WHEN: Redeeming 50 points (below the 100-point exchange rate)
	// THEN: The redemption succeeds with a zero-discount coupon

	engine, backend := newTestEngine(t)

	alice := registerAccount(t, backend, "alice")
	earn(t, backend, alice, "60")

	result, err := engine.Redeem(context.Background(), "alice", 50)
	require.NoError(t, err)
	assert.True(t, result.Coupon.Discount.IsZero())
	assert.Equal(t, int64(10), result.RemainingBalance)
}

func TestRedeem_RetriesOnCodeCollision(t *testing.T) {
	// GIVEN: The first two generated codes collide with existing coupons
	// WHEN: Redeeming
	// THEN: Minting retries and the third attempt succeeds

	inner := store.NewMemory(ledger.NewSystemClock())
	backend := &faultyBackend{Backend: inner, duplicateCreates: 2}
	engine := engineOver(backend)

	alice := registerAccount(t, inner, "alice")
	earn(t, inner, alice, "100")

	result, err := engine.Redeem(context.Background(), "alice", 100)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(result.Coupon.Code, ledger.RewardCodePrefix))
}

// =============================================================================
// REDEEM - FAILURE AND COMPENSATION
// =============================================================================

func TestRedeem_InsufficientPoints_NothingHappens(t *testing.T) {
	// GIVEN: An account with 20 points
	// WHEN: Redeeming 2000 points
	// THEN: The redemption fails, the balance is unchanged, and no coupon
	//       was created

	engine, backend := newTestEngine(t)
	ctx := context.Background()

	alice := registerAccount(t, backend, "alice")
	earn(t, backend, alice, "20")

	_, err := engine.Redeem(ctx, "alice", 2000)
	assert.ErrorIs(t, err, ledger.ErrInsufficientPoints)

	var insErr *ledger.InsufficientPointsError
	require.ErrorAs(t, err, &insErr)
	assert.Equal(t, int64(20), insErr.Available)
	assert.Equal(t, int64(2000), insErr.Requested)

	balance, err := backend.Balance(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(20), balance)

	coupons, err := backend.ListCoupons(ctx)
	require.NoError(t, err)
	assert.Empty(t, coupons)
}

func TestRedeem_NonPositivePoints_Rejected(t *testing.T) {
	engine, backend := newTestEngine(t)
	registerAccount(t, backend, "alice")

	_, err := engine.Redeem(context.Background(), "alice", 0)
	assert.ErrorIs(t, err, ledger.ErrInvalidPoints)

	_, err = engine.Redeem(context.Background(), "alice", -10)
	assert.ErrorIs(t, err, ledger.ErrInvalidPoints)
}

func TestRedeem_UnknownAccount_Rejected(t *testing.T) {
	engine, _ := newTestEngine(t)

	_, err := engine.Redeem(context.Background(), "nobody", 100)
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
}

func TestRedeem_MintFailure_RecreditsDebit(t *testing.T) {
	// GIVEN: The coupon store rejects every insert
	// WHEN: Redeeming 100 of 150 points
	// THEN: The debit is compensated and the balance is back to 150

	inner := store.NewMemory(ledger.NewSystemClock())
	boom := errors.New("disk on fire")
	backend := &faultyBackend{Backend: inner, failCreateCoupon: boom}
	engine := engineOver(backend)
	ctx := context.Background()

	alice := registerAccount(t, inner, "alice")
	earn(t, inner, alice, "150")

	_, err := engine.Redeem(ctx, "alice", 100)
	assert.ErrorIs(t, err, boom)

	balance, err := inner.Balance(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(150), balance, "debit must be re-credited")
}

func TestRedeem_AssignFailure_RecreditsAndDropsCoupon(t *testing.T) {
	// GIVEN: Assignment always fails
	// WHEN: Redeeming
	// THEN: The balance is restored and the orphaned coupon is removed

	inner := store.NewMemory(ledger.NewSystemClock())
	boom := errors.New("index corrupt")
	backend := &faultyBackend{Backend: inner, failAssign: boom}
	engine := engineOver(backend)
	ctx := context.Background()

	alice := registerAccount(t, inner, "alice")
	earn(t, inner, alice, "200")

	_, err := engine.Redeem(ctx, "alice", 100)
	assert.ErrorIs(t, err, boom)

	balance, err := inner.Balance(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(200), balance)

	coupons, err := inner.ListCoupons(ctx)
	require.NoError(t, err)
	assert.Empty(t, coupons, "orphaned reward coupon must not linger")
}

func TestRedeem_CompensationFailure_FailsLoudly(t *testing.T) {
	// GIVEN: Assignment fails AND the compensating credit fails
	// WHEN: Redeeming
	// THEN: The error is a CompensationError carrying both causes

	inner := store.NewMemory(ledger.NewSystemClock())
	assignErr := errors.New("index corrupt")
	creditErr := errors.New("account store gone")
	backend := &faultyBackend{Backend: inner, failAssign: assignErr, failCredit: creditErr}
	engine := engineOver(backend)

	alice := registerAccount(t, inner, "alice")
	earn(t, inner, alice, "200")

	_, err := engine.Redeem(context.Background(), "alice", 100)

	var comp *ledger.CompensationError
	require.ErrorAs(t, err, &comp)
	assert.Equal(t, alice, comp.Account)
	assert.Equal(t, int64(100), comp.Points)
	assert.ErrorIs(t, comp.Cause, assignErr)
	assert.ErrorIs(t, comp.Credit, creditErr)
	assert.ErrorIs(t, err, ledger.ErrUnavailable)
}

// =============================================================================
// ASSIGN / REVOKE ORCHESTRATION
// =============================================================================

func TestAssign_ValidatesBothReferences(t *testing.T) {
	engine, backend := newTestEngine(t)
	ctx := context.Background()

	registerAccount(t, backend, "alice")
	require.NoError(t, backend.CreateCoupon(ctx, ledger.Coupon{
		Code: "SPRING10", Discount: decimal.NewFromInt(10), Kind: ledger.KindRegular,
	}))

	// Unknown account.
	_, err := engine.Assign(ctx, "nobody", "SPRING10")
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)

	// Unknown coupon.
	_, err = engine.Assign(ctx, "alice", "NOPE")
	assert.ErrorIs(t, err, ledger.ErrCouponNotFound)

	// Valid pair.
	a, err := engine.Assign(ctx, "alice", "SPRING10")
	require.NoError(t, err)
	assert.Equal(t, ledger.AccountRef("alice"), a.Account)
	assert.Equal(t, "SPRING10", a.Code)

	// Second attempt is a conflict, not a silent no-op.
	_, err = engine.Assign(ctx, "alice", "SPRING10")
	assert.ErrorIs(t, err, ledger.ErrAlreadyAssigned)
}

func TestListForAccount_OmitsVanishedCoupons(t *testing.T) {
	// GIVEN: An assignment whose coupon was removed directly from the store
	// WHEN: Listing the account's coupons
	// THEN: The dangling reference is filtered out, not an error

	engine, backend := newTestEngine(t)
	ctx := context.Background()

	registerAccount(t, backend, "alice")
	require.NoError(t, backend.CreateCoupon(ctx, ledger.Coupon{Code: "A", Kind: ledger.KindRegular}))
	require.NoError(t, backend.CreateCoupon(ctx, ledger.Coupon{Code: "B", Kind: ledger.KindRegular}))
	_, err := engine.Assign(ctx, "alice", "A")
	require.NoError(t, err)
	_, err = engine.Assign(ctx, "alice", "B")
	require.NoError(t, err)

	// Remove B without touching the index.
	require.NoError(t, backend.DeleteCoupon(ctx, "B"))

	coupons, err := engine.ListForAccount(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, coupons, 1)
	assert.Equal(t, "A", coupons[0].Code)
}

func TestRevokeOne_UnassignedPair_Rejected(t *testing.T) {
	engine, backend := newTestEngine(t)
	ctx := context.Background()

	registerAccount(t, backend, "alice")
	require.NoError(t, backend.CreateCoupon(ctx, ledger.Coupon{Code: "X", Kind: ledger.KindRegular}))

	err := engine.RevokeOne(ctx, "alice", "X")
	assert.ErrorIs(t, err, ledger.ErrNotAssigned)
}

// =============================================================================
// CASCADE DELETE
// =============================================================================

func TestDeleteCoupon_CascadesIntoAssignments(t *testing.T) {
	// GIVEN: A coupon assigned to two accounts
	// WHEN: Deleting the coupon
	// THEN: The coupon and both assignments are gone

	engine, backend := newTestEngine(t)
	ctx := context.Background()

	registerAccount(t, backend, "alice")
	registerAccount(t, backend, "bob")
	require.NoError(t, backend.CreateCoupon(ctx, ledger.Coupon{Code: "SHARED", Kind: ledger.KindRegular}))
	_, err := engine.Assign(ctx, "alice", "SHARED")
	require.NoError(t, err)
	_, err = engine.Assign(ctx, "bob", "SHARED")
	require.NoError(t, err)

	require.NoError(t, engine.DeleteCoupon(ctx, "SHARED"))

	_, err = backend.GetCoupon(ctx, "SHARED")
	assert.ErrorIs(t, err, ledger.ErrCouponNotFound)

	for _, handle := range []string{"alice", "bob"} {
		coupons, err := engine.ListForAccount(ctx, handle)
		require.NoError(t, err)
		assert.Empty(t, coupons, "account %s", handle)
	}
}

func TestDeleteCoupon_Missing_RejectedWithoutSideEffects(t *testing.T) {
	// GIVEN: An unrelated assignment
	// WHEN: Deleting a coupon that does not exist
	// THEN: ErrCouponNotFound, and the unrelated assignment survives

	engine, backend := newTestEngine(t)
	ctx := context.Background()

	registerAccount(t, backend, "alice")
	require.NoError(t, backend.CreateCoupon(ctx, ledger.Coupon{Code: "KEEP", Kind: ledger.KindRegular}))
	_, err := engine.Assign(ctx, "alice", "KEEP")
	require.NoError(t, err)

	err = engine.DeleteCoupon(ctx, "GHOST")
	assert.ErrorIs(t, err, ledger.ErrCouponNotFound)

	coupons, err := engine.ListForAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, coupons, 1)
}

// =============================================================================
// END-TO-END SCENARIO
// =============================================================================

func TestRewardsLifecycle_EarnFailEarnRedeem(t *testing.T) {
	// GIVEN: A fresh account
	// WHEN: Earning 19.6, over-redeeming, earning 9980, then redeeming all
	// THEN: Balances and the final coupon follow the fixed conversion rules

	engine, backend := newTestEngine(t)
	ctx := context.Background()

	alice := registerAccount(t, backend, "alice")

	// 19.6 rounds half away from zero to 20 points.
	result, err := backend.Earn(ctx, alice, decimal.RequireFromString("19.6"), []string{"espresso kit"})
	require.NoError(t, err)
	assert.Equal(t, int64(20), result.Record.PointsEarned)
	assert.Equal(t, int64(20), result.NewBalance)

	// Over-redeeming leaves everything untouched.
	_, err = engine.Redeem(ctx, "alice", 2000)
	assert.ErrorIs(t, err, ledger.ErrInsufficientPoints)
	balance, err := backend.Balance(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(20), balance)

	// A big purchase tops the balance up to exactly 10000.
	result, err = backend.Earn(ctx, alice, decimal.NewFromInt(9980), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), result.NewBalance)

	// Redeeming everything yields a discount-100 coupon and a zero balance.
	redeemed, err := engine.Redeem(ctx, "alice", 10000)
	require.NoError(t, err)
	assert.True(t, redeemed.Coupon.Discount.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, int64(0), redeemed.RemainingBalance)

	// History shows both purchases, newest first.
	history, err := backend.History(ctx, alice)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.True(t, history[0].Amount.Equal(decimal.NewFromInt(9980)))
	assert.Equal(t, []string{"espresso kit"}, history[1].Items)
}
