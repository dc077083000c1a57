// Package store provides Backend implementations.
package store

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/commerce-ledger/ledger"
)

// =============================================================================
// MEMORY BACKEND - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements ledger.Backend with three independent lock domains:
//
//	couponMu  - coupon catalog
//	assignMu  - assignment index
//	accountMu - account map structure; each account carries its own mutex
//	            so balance operations on different accounts never block
//	            one another
//
// Insert-if-absent is a map check under the write lock, which is the
// in-memory equivalent of a UNIQUE constraint.
type Memory struct {
	clock ledger.Clock

	couponMu sync.RWMutex
	coupons  map[string]ledger.Coupon

	assignMu  sync.RWMutex
	byAccount map[ledger.AccountRef][]ledger.Assignment
	byCode    map[string]map[ledger.AccountRef]struct{}

	accountMu sync.RWMutex
	accounts  map[string]*accountState
}

// accountState serializes all balance mutations for one account.
type accountState struct {
	mu        sync.Mutex
	account   ledger.Account
	balance   int64
	purchases []ledger.PurchaseRecord // append order (oldest first)
}

func NewMemory(clock ledger.Clock) *Memory {
	return &Memory{
		clock:     clock,
		coupons:   make(map[string]ledger.Coupon),
		byAccount: make(map[ledger.AccountRef][]ledger.Assignment),
		byCode:    make(map[string]map[ledger.AccountRef]struct{}),
		accounts:  make(map[string]*accountState),
	}
}

var _ ledger.Backend = (*Memory)(nil)

// =============================================================================
// COUPON STORE
// =============================================================================

func (m *Memory) CreateCoupon(_ context.Context, c ledger.Coupon) error {
	m.couponMu.Lock()
	defer m.couponMu.Unlock()
	return m.createCouponLocked(c)
}

func (m *Memory) createCouponLocked(c ledger.Coupon) error {
	if _, ok := m.coupons[c.Code]; ok {
		return ledger.ErrDuplicateCode
	}
	m.coupons[c.Code] = c
	return nil
}

func (m *Memory) GetCoupon(_ context.Context, code string) (ledger.Coupon, error) {
	m.couponMu.RLock()
	defer m.couponMu.RUnlock()

	c, ok := m.coupons[code]
	if !ok {
		return ledger.Coupon{}, ledger.ErrCouponNotFound
	}
	return c, nil
}

func (m *Memory) ListCoupons(_ context.Context) ([]ledger.Coupon, error) {
	m.couponMu.RLock()
	defer m.couponMu.RUnlock()

	out := make([]ledger.Coupon, 0, len(m.coupons))
	for _, c := range m.coupons {
		out = append(out, c)
	}
	return out, nil
}

func (m *Memory) DeleteCoupon(_ context.Context, code string) error {
	m.couponMu.Lock()
	defer m.couponMu.Unlock()
	return m.deleteCouponLocked(code)
}

func (m *Memory) deleteCouponLocked(code string) error {
	if _, ok := m.coupons[code]; !ok {
		return ledger.ErrCouponNotFound
	}
	delete(m.coupons, code)
	return nil
}

// =============================================================================
// ASSIGNMENT INDEX
// =============================================================================

func (m *Memory) Assign(_ context.Context, account ledger.AccountRef, code string) (ledger.Assignment, error) {
	m.assignMu.Lock()
	defer m.assignMu.Unlock()
	return m.assignLocked(account, code)
}

func (m *Memory) assignLocked(account ledger.AccountRef, code string) (ledger.Assignment, error) {
	if _, ok := m.byCode[code][account]; ok {
		return ledger.Assignment{}, ledger.ErrAlreadyAssigned
	}

	a := ledger.Assignment{Account: account, Code: code, AssignedAt: m.clock.Now()}
	m.byAccount[account] = append(m.byAccount[account], a)
	if m.byCode[code] == nil {
		m.byCode[code] = make(map[ledger.AccountRef]struct{})
	}
	m.byCode[code][account] = struct{}{}
	return a, nil
}

func (m *Memory) ListAssignments(_ context.Context, account ledger.AccountRef) ([]ledger.Assignment, error) {
	m.assignMu.RLock()
	defer m.assignMu.RUnlock()

	out := make([]ledger.Assignment, len(m.byAccount[account]))
	copy(out, m.byAccount[account])
	return out, nil
}

func (m *Memory) RevokeOne(_ context.Context, account ledger.AccountRef, code string) error {
	m.assignMu.Lock()
	defer m.assignMu.Unlock()
	return m.revokeOneLocked(account, code)
}

func (m *Memory) revokeOneLocked(account ledger.AccountRef, code string) error {
	if _, ok := m.byCode[code][account]; !ok {
		return ledger.ErrNotAssigned
	}

	delete(m.byCode[code], account)
	if len(m.byCode[code]) == 0 {
		delete(m.byCode, code)
	}

	links := m.byAccount[account]
	for i, a := range links {
		if a.Code == code {
			m.byAccount[account] = append(links[:i:i], links[i+1:]...)
			break
		}
	}
	return nil
}

func (m *Memory) RevokeAll(_ context.Context, code string) error {
	m.assignMu.Lock()
	defer m.assignMu.Unlock()
	m.revokeAllLocked(code)
	return nil
}

// revokeAllLocked runs in O(assignees of code), not O(all accounts): the
// byCode index names exactly the accounts to touch.
func (m *Memory) revokeAllLocked(code string) {
	for account := range m.byCode[code] {
		links := m.byAccount[account]
		for i, a := range links {
			if a.Code == code {
				m.byAccount[account] = append(links[:i:i], links[i+1:]...)
				break
			}
		}
	}
	delete(m.byCode, code)
}

// =============================================================================
// ACCOUNT STORE
// =============================================================================

func (m *Memory) CreateAccount(_ context.Context, a ledger.Account) error {
	m.accountMu.Lock()
	defer m.accountMu.Unlock()

	if _, ok := m.accounts[a.Handle]; ok {
		return ledger.ErrDuplicateHandle
	}
	m.accounts[a.Handle] = &accountState{account: a}
	return nil
}

func (m *Memory) GetAccount(_ context.Context, handle string) (ledger.Account, error) {
	m.accountMu.RLock()
	defer m.accountMu.RUnlock()

	st, ok := m.accounts[handle]
	if !ok {
		return ledger.Account{}, ledger.ErrAccountNotFound
	}
	return st.account, nil
}

// state fetches the per-account state without holding the map lock longer
// than the lookup itself.
func (m *Memory) state(account ledger.AccountRef) (*accountState, error) {
	m.accountMu.RLock()
	defer m.accountMu.RUnlock()

	st, ok := m.accounts[string(account)]
	if !ok {
		return nil, ledger.ErrAccountNotFound
	}
	return st, nil
}

// =============================================================================
// REWARDS LEDGER
// =============================================================================

func (m *Memory) Earn(_ context.Context, account ledger.AccountRef, amount decimal.Decimal, items []string) (ledger.EarnResult, error) {
	if amount.IsNegative() {
		return ledger.EarnResult{}, ledger.ErrInvalidAmount
	}

	st, err := m.state(account)
	if err != nil {
		return ledger.EarnResult{}, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	record := ledger.PurchaseRecord{
		ID:           uuid.NewString(),
		Account:      account,
		Amount:       amount,
		PointsEarned: ledger.PointsForAmount(amount),
		Items:        append([]string(nil), items...),
		At:           m.clock.Now(),
	}
	st.purchases = append(st.purchases, record)
	st.balance += record.PointsEarned

	return ledger.EarnResult{Record: record, NewBalance: st.balance}, nil
}

func (m *Memory) Balance(_ context.Context, account ledger.AccountRef) (int64, error) {
	st, err := m.state(account)
	if err != nil {
		return 0, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	return st.balance, nil
}

func (m *Memory) History(_ context.Context, account ledger.AccountRef) ([]ledger.PurchaseRecord, error) {
	st, err := m.state(account)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	// Newest first.
	out := make([]ledger.PurchaseRecord, len(st.purchases))
	for i, r := range st.purchases {
		out[len(st.purchases)-1-i] = r
	}
	return out, nil
}

func (m *Memory) Debit(_ context.Context, account ledger.AccountRef, points int64) (int64, error) {
	if points <= 0 {
		return 0, ledger.ErrInvalidPoints
	}

	st, err := m.state(account)
	if err != nil {
		return 0, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if points > st.balance {
		return 0, &ledger.InsufficientPointsError{
			Account:   account,
			Available: st.balance,
			Requested: points,
		}
	}
	st.balance -= points
	return st.balance, nil
}

func (m *Memory) Credit(_ context.Context, account ledger.AccountRef, points int64) (int64, error) {
	if points <= 0 {
		return 0, ledger.ErrInvalidPoints
	}

	st, err := m.state(account)
	if err != nil {
		return 0, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	st.balance += points
	return st.balance, nil
}

// =============================================================================
// TRANSACTION BOUNDARY
// =============================================================================

// WithTx holds both the coupon and the assignment write locks across fn,
// snapshotting first so a failing fn rolls back. Concurrent readers of
// either store block until commit, which is what makes the cascade delete
// appear atomic. Balance operations run in their own lock domain and are
// individually atomic already, so the transactional view simply delegates
// them.
func (m *Memory) WithTx(ctx context.Context, fn func(ledger.Backend) error) error {
	m.couponMu.Lock()
	defer m.couponMu.Unlock()
	m.assignMu.Lock()
	defer m.assignMu.Unlock()

	snap := m.snapshotLocked()

	if err := fn(&memoryTxView{parent: m}); err != nil {
		m.restoreLocked(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	coupons   map[string]ledger.Coupon
	byAccount map[ledger.AccountRef][]ledger.Assignment
	byCode    map[string]map[ledger.AccountRef]struct{}
}

func (m *Memory) snapshotLocked() memorySnapshot {
	coupons := make(map[string]ledger.Coupon, len(m.coupons))
	for k, v := range m.coupons {
		coupons[k] = v
	}
	byAccount := make(map[ledger.AccountRef][]ledger.Assignment, len(m.byAccount))
	for k, v := range m.byAccount {
		byAccount[k] = append([]ledger.Assignment(nil), v...)
	}
	byCode := make(map[string]map[ledger.AccountRef]struct{}, len(m.byCode))
	for k, v := range m.byCode {
		inner := make(map[ledger.AccountRef]struct{}, len(v))
		for a := range v {
			inner[a] = struct{}{}
		}
		byCode[k] = inner
	}
	return memorySnapshot{coupons: coupons, byAccount: byAccount, byCode: byCode}
}

func (m *Memory) restoreLocked(s memorySnapshot) {
	m.coupons = s.coupons
	m.byAccount = s.byAccount
	m.byCode = s.byCode
}

// memoryTxView operates on the parent while the parent already holds the
// coupon and assignment locks.
type memoryTxView struct {
	parent *Memory
}

var _ ledger.Backend = (*memoryTxView)(nil)

func (tv *memoryTxView) CreateCoupon(_ context.Context, c ledger.Coupon) error {
	return tv.parent.createCouponLocked(c)
}

func (tv *memoryTxView) GetCoupon(_ context.Context, code string) (ledger.Coupon, error) {
	c, ok := tv.parent.coupons[code]
	if !ok {
		return ledger.Coupon{}, ledger.ErrCouponNotFound
	}
	return c, nil
}

func (tv *memoryTxView) ListCoupons(_ context.Context) ([]ledger.Coupon, error) {
	out := make([]ledger.Coupon, 0, len(tv.parent.coupons))
	for _, c := range tv.parent.coupons {
		out = append(out, c)
	}
	return out, nil
}

func (tv *memoryTxView) DeleteCoupon(_ context.Context, code string) error {
	return tv.parent.deleteCouponLocked(code)
}

func (tv *memoryTxView) Assign(_ context.Context, account ledger.AccountRef, code string) (ledger.Assignment, error) {
	return tv.parent.assignLocked(account, code)
}

func (tv *memoryTxView) ListAssignments(_ context.Context, account ledger.AccountRef) ([]ledger.Assignment, error) {
	out := make([]ledger.Assignment, len(tv.parent.byAccount[account]))
	copy(out, tv.parent.byAccount[account])
	return out, nil
}

func (tv *memoryTxView) RevokeOne(_ context.Context, account ledger.AccountRef, code string) error {
	return tv.parent.revokeOneLocked(account, code)
}

func (tv *memoryTxView) RevokeAll(_ context.Context, code string) error {
	tv.parent.revokeAllLocked(code)
	return nil
}

func (tv *memoryTxView) CreateAccount(ctx context.Context, a ledger.Account) error {
	return tv.parent.CreateAccount(ctx, a)
}

func (tv *memoryTxView) GetAccount(ctx context.Context, handle string) (ledger.Account, error) {
	return tv.parent.GetAccount(ctx, handle)
}

func (tv *memoryTxView) Earn(ctx context.Context, account ledger.AccountRef, amount decimal.Decimal, items []string) (ledger.EarnResult, error) {
	return tv.parent.Earn(ctx, account, amount, items)
}

func (tv *memoryTxView) Balance(ctx context.Context, account ledger.AccountRef) (int64, error) {
	return tv.parent.Balance(ctx, account)
}

func (tv *memoryTxView) History(ctx context.Context, account ledger.AccountRef) ([]ledger.PurchaseRecord, error) {
	return tv.parent.History(ctx, account)
}

func (tv *memoryTxView) Debit(ctx context.Context, account ledger.AccountRef, points int64) (int64, error) {
	return tv.parent.Debit(ctx, account, points)
}

func (tv *memoryTxView) Credit(ctx context.Context, account ledger.AccountRef, points int64) (int64, error) {
	return tv.parent.Credit(ctx, account, points)
}

func (tv *memoryTxView) WithTx(_ context.Context, fn func(ledger.Backend) error) error {
	// Already inside the transaction; nested calls run in the same scope.
	return fn(tv)
}
