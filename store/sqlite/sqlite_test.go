package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/commerce-ledger/ledger"
	"github.com/warp/commerce-ledger/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:", ledger.NewSystemClock())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func addAccount(t *testing.T, s *sqlite.Store, handle string) ledger.AccountRef {
	t.Helper()
	require.NoError(t, s.CreateAccount(context.Background(), ledger.Account{
		Handle:       handle,
		PasswordHash: []byte("irrelevant"),
		CreatedAt:    time.Now().UTC(),
	}))
	return ledger.AccountRef(handle)
}

// =============================================================================
// COUPONS
// =============================================================================

func TestSQLite_CreateCoupon_UniqueConstraintMapped(t *testing.T) {
	// GIVEN: A stored coupon
	// WHEN: Inserting the same code again
	// THEN: The UNIQUE violation surfaces as ErrDuplicateCode

	s := newTestStore(t)
	ctx := context.Background()

	c := ledger.Coupon{
		Code:      "SPRING10",
		Discount:  decimal.NewFromInt(10),
		Kind:      ledger.KindRegular,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.CreateCoupon(ctx, c))

	err := s.CreateCoupon(ctx, c)
	assert.ErrorIs(t, err, ledger.ErrDuplicateCode)
}

func TestSQLite_Coupon_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	in := ledger.Coupon{
		Code:       "RW-ABCDEFGHJK",
		Discount:   decimal.RequireFromString("12.5"),
		Kind:       ledger.KindRewards,
		PointsCost: 1250,
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, s.CreateCoupon(ctx, in))

	out, err := s.GetCoupon(ctx, "RW-ABCDEFGHJK")
	require.NoError(t, err)
	assert.Equal(t, in.Code, out.Code)
	assert.True(t, in.Discount.Equal(out.Discount))
	assert.Equal(t, in.Kind, out.Kind)
	assert.Equal(t, in.PointsCost, out.PointsCost)

	_, err = s.GetCoupon(ctx, "MISSING")
	assert.ErrorIs(t, err, ledger.ErrCouponNotFound)
}

// =============================================================================
// ASSIGNMENTS
// =============================================================================

func TestSQLite_Assign_PairPrimaryKeyMapped(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := addAccount(t, s, "alice")

	_, err := s.Assign(ctx, alice, "X")
	require.NoError(t, err)

	_, err = s.Assign(ctx, alice, "X")
	assert.ErrorIs(t, err, ledger.ErrAlreadyAssigned)

	bob := addAccount(t, s, "bob")
	_, err = s.Assign(ctx, bob, "X")
	assert.NoError(t, err)
}

func TestSQLite_RevokeAll_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, h := range []string{"a", "b"} {
		account := addAccount(t, s, h)
		_, err := s.Assign(ctx, account, "SHARED")
		require.NoError(t, err)
	}

	require.NoError(t, s.RevokeAll(ctx, "SHARED"))
	require.NoError(t, s.RevokeAll(ctx, "SHARED"))

	links, err := s.ListAssignments(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, links)
}

// =============================================================================
// REWARDS
// =============================================================================

func TestSQLite_EarnDebitCredit_Lifecycle(t *testing.T) {
	// GIVEN: A fresh account
	// WHEN: Earning 19.6, debiting 15, crediting 15 back
	// THEN: The balance follows 0 -> 20 -> 5 -> 20

	s := newTestStore(t)
	ctx := context.Background()
	alice := addAccount(t, s, "alice")

	result, err := s.Earn(ctx, alice, decimal.RequireFromString("19.6"), []string{"kit"})
	require.NoError(t, err)
	assert.Equal(t, int64(20), result.Record.PointsEarned)
	assert.Equal(t, int64(20), result.NewBalance)

	remaining, err := s.Debit(ctx, alice, 15)
	require.NoError(t, err)
	assert.Equal(t, int64(5), remaining)

	restored, err := s.Credit(ctx, alice, 15)
	require.NoError(t, err)
	assert.Equal(t, int64(20), restored)
}

func TestSQLite_Debit_GuardedUpdateRejectsOverdraft(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := addAccount(t, s, "alice")

	_, err := s.Earn(ctx, alice, decimal.NewFromInt(30), nil)
	require.NoError(t, err)

	_, err = s.Debit(ctx, alice, 31)

	var insErr *ledger.InsufficientPointsError
	require.ErrorAs(t, err, &insErr)
	assert.Equal(t, int64(30), insErr.Available)
	assert.Equal(t, int64(31), insErr.Requested)

	balance, err := s.Balance(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(30), balance, "rejected debit must not change the balance")
}

func TestSQLite_Debit_UnknownAccount(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Debit(context.Background(), "ghost", 10)
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
}

func TestSQLite_History_NewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := addAccount(t, s, "alice")

	for _, amount := range []string{"1", "2", "3"} {
		_, err := s.Earn(ctx, alice, decimal.RequireFromString(amount), []string{"item-" + amount})
		require.NoError(t, err)
	}

	history, err := s.History(ctx, alice)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, []string{"item-3"}, history[0].Items)
	assert.Equal(t, []string{"item-1"}, history[2].Items)
}

func TestSQLite_History_UnknownAccount(t *testing.T) {
	s := newTestStore(t)

	_, err := s.History(context.Background(), "ghost")
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func TestSQLite_CreateAccount_DuplicateHandleMapped(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	addAccount(t, s, "alice")
	err := s.CreateAccount(ctx, ledger.Account{
		Handle:       "alice",
		PasswordHash: []byte("other"),
		CreatedAt:    time.Now().UTC(),
	})
	assert.ErrorIs(t, err, ledger.ErrDuplicateHandle)
}

// =============================================================================
// TRANSACTION BOUNDARY
// =============================================================================

func TestSQLite_WithTx_CascadeDeleteAtomic(t *testing.T) {
	// GIVEN: A coupon assigned to two accounts
	// WHEN: Delete + RevokeAll run inside one transaction
	// THEN: Both effects are committed together

	s := newTestStore(t)
	ctx := context.Background()

	alice := addAccount(t, s, "alice")
	bob := addAccount(t, s, "bob")
	require.NoError(t, s.CreateCoupon(ctx, ledger.Coupon{
		Code: "SHARED", Discount: decimal.NewFromInt(5),
		Kind: ledger.KindRegular, CreatedAt: time.Now().UTC(),
	}))
	_, err := s.Assign(ctx, alice, "SHARED")
	require.NoError(t, err)
	_, err = s.Assign(ctx, bob, "SHARED")
	require.NoError(t, err)

	err = s.WithTx(ctx, func(tx ledger.Backend) error {
		if err := tx.DeleteCoupon(ctx, "SHARED"); err != nil {
			return err
		}
		return tx.RevokeAll(ctx, "SHARED")
	})
	require.NoError(t, err)

	_, err = s.GetCoupon(ctx, "SHARED")
	assert.ErrorIs(t, err, ledger.ErrCouponNotFound)
	for _, account := range []ledger.AccountRef{alice, bob} {
		links, err := s.ListAssignments(ctx, account)
		require.NoError(t, err)
		assert.Empty(t, links)
	}
}

func TestSQLite_WithTx_RollsBackOnError(t *testing.T) {
	// GIVEN: A coupon assigned to alice
	// WHEN: The transaction fails after delete and revoke
	// THEN: Coupon and assignment both survive

	s := newTestStore(t)
	ctx := context.Background()
	alice := addAccount(t, s, "alice")

	require.NoError(t, s.CreateCoupon(ctx, ledger.Coupon{
		Code: "TX", Discount: decimal.NewFromInt(1),
		Kind: ledger.KindRegular, CreatedAt: time.Now().UTC(),
	}))
	_, err := s.Assign(ctx, alice, "TX")
	require.NoError(t, err)

	boom := errors.New("abort")
	err = s.WithTx(ctx, func(tx ledger.Backend) error {
		if err := tx.DeleteCoupon(ctx, "TX"); err != nil {
			return err
		}
		if err := tx.RevokeAll(ctx, "TX"); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.GetCoupon(ctx, "TX")
	assert.NoError(t, err)

	links, err := s.ListAssignments(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, links, 1)
}
