/*
Package sqlite provides the SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements ledger.Backend and catalog.Store using SQLite. The same
  patterns apply to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  accounts:    Account records; the points column is the reward balance
  coupons:     Coupon catalog, UNIQUE on code
  assignments: (account, code) relation, PK on the pair, index on code
  purchases:   Append-only purchase history, index on (account, at DESC)
  shops:       Shop catalog
  shop_items:  Items per shop

UNIQUENESS VIA CONSTRAINTS:
  Coupon codes, account handles, and assignment pairs are enforced by
  UNIQUE constraints, so insert-if-absent is a single atomic INSERT; the
  constraint-failure error is mapped back onto the domain error
  (ErrDuplicateCode, ErrDuplicateHandle, ErrAlreadyAssigned). No
  check-then-insert.

NON-NEGATIVE BALANCES:
  Debit is a single guarded UPDATE:

    UPDATE accounts SET points = points - ? WHERE handle = ? AND points >= ?

  Zero rows affected means either the account is missing or the balance is
  short; a follow-up read distinguishes the two. The guard also serializes
  concurrent debits correctly without a read-modify-write window.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging): multiple readers don't
  block, single writer at a time, better crash recovery.

CONCURRENCY:
  Uses sync.RWMutex around writes, like a connection pool of one. In
  production with PostgreSQL, database-level concurrency control handles
  this instead.

USAGE:
  backend, err := sqlite.New("./data/ledger.db", ledger.NewSystemClock())
  if err != nil {
      log.Fatal(err)
  }
  defer backend.Close()

SEE ALSO:
  - ledger/backend.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/commerce-ledger/catalog"
	"github.com/warp/commerce-ledger/ledger"
)

// Store implements ledger.Backend and catalog.Store using SQLite.
type Store struct {
	db    *sql.DB
	clock ledger.Clock
	mu    sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string, clock ledger.Clock) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db, clock: clock}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Accounts (identity + reward balance)
	CREATE TABLE IF NOT EXISTS accounts (
		handle TEXT PRIMARY KEY,
		password_hash BLOB NOT NULL,
		points INTEGER NOT NULL DEFAULT 0 CHECK (points >= 0),
		created_at TEXT NOT NULL
	);

	-- Coupon catalog
	CREATE TABLE IF NOT EXISTS coupons (
		code TEXT PRIMARY KEY,
		discount TEXT NOT NULL,
		kind TEXT NOT NULL,
		points_cost INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	-- Assignment relation: at most one row per (account, code)
	CREATE TABLE IF NOT EXISTS assignments (
		account TEXT NOT NULL,
		code TEXT NOT NULL,
		assigned_at TEXT NOT NULL,
		PRIMARY KEY (account, code)
	);

	-- For O(assignees) cascade revoke
	CREATE INDEX IF NOT EXISTS idx_assignments_code
		ON assignments(code);

	-- Purchases (append-only history)
	CREATE TABLE IF NOT EXISTS purchases (
		id TEXT PRIMARY KEY,
		account TEXT NOT NULL,
		amount TEXT NOT NULL,
		points_earned INTEGER NOT NULL,
		items_json TEXT,
		at TEXT NOT NULL
	);

	-- History queries are newest-first per account (hot path)
	CREATE INDEX IF NOT EXISTS idx_purchases_account_at
		ON purchases(account, at DESC);

	-- Shops
	CREATE TABLE IF NOT EXISTS shops (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		owner TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_shops_owner
		ON shops(owner);

	-- Shop items
	CREATE TABLE IF NOT EXISTS shop_items (
		id TEXT PRIMARY KEY,
		shop_id TEXT NOT NULL,
		name TEXT NOT NULL,
		description TEXT,
		price TEXT NOT NULL,
		category TEXT,
		stock INTEGER NOT NULL DEFAULT 0,
		available BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_shop_items_shop
		ON shop_items(shop_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var _ ledger.Backend = (*Store)(nil)
var _ catalog.Store = (*Store)(nil)

// =============================================================================
// COUPON STORE (ledger.CouponStore interface)
// =============================================================================

func (s *Store) CreateCoupon(ctx context.Context, c ledger.Coupon) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createCoupon(ctx, s.db, c)
}

func createCoupon(ctx context.Context, q dbtx, c ledger.Coupon) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO coupons (code, discount, kind, points_cost, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		c.Code, c.Discount.String(), string(c.Kind), c.PointsCost,
		c.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ledger.ErrDuplicateCode
		}
		return fault("insert coupon", err)
	}
	return nil
}

func (s *Store) GetCoupon(ctx context.Context, code string) (ledger.Coupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getCoupon(ctx, s.db, code)
}

func getCoupon(ctx context.Context, q dbtx, code string) (ledger.Coupon, error) {
	row := q.QueryRowContext(ctx,
		`SELECT code, discount, kind, points_cost, created_at
		 FROM coupons WHERE code = ?`, code)
	return scanCoupon(row)
}

func (s *Store) ListCoupons(ctx context.Context) ([]ledger.Coupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listCoupons(ctx, s.db)
}

func listCoupons(ctx context.Context, q dbtx) ([]ledger.Coupon, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT code, discount, kind, points_cost, created_at
		 FROM coupons ORDER BY created_at ASC`)
	if err != nil {
		return nil, fault("list coupons", err)
	}
	defer rows.Close()

	var out []ledger.Coupon
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) DeleteCoupon(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteCoupon(ctx, s.db, code)
}

func deleteCoupon(ctx context.Context, q dbtx, code string) error {
	res, err := q.ExecContext(ctx, `DELETE FROM coupons WHERE code = ?`, code)
	if err != nil {
		return fault("delete coupon", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fault("delete coupon", err)
	}
	if n == 0 {
		return ledger.ErrCouponNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCoupon(row rowScanner) (ledger.Coupon, error) {
	var (
		c         ledger.Coupon
		discount  string
		kind      string
		createdAt string
	)
	err := row.Scan(&c.Code, &discount, &kind, &c.PointsCost, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Coupon{}, ledger.ErrCouponNotFound
	}
	if err != nil {
		return ledger.Coupon{}, fault("scan coupon", err)
	}
	c.Discount = mustDecimal(discount)
	c.Kind = ledger.CouponKind(kind)
	c.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return c, nil
}

// =============================================================================
// ASSIGNMENT INDEX (ledger.AssignmentIndex interface)
// =============================================================================

func (s *Store) Assign(ctx context.Context, account ledger.AccountRef, code string) (ledger.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.assign(ctx, s.db, account, code)
}

func (s *Store) assign(ctx context.Context, q dbtx, account ledger.AccountRef, code string) (ledger.Assignment, error) {
	a := ledger.Assignment{Account: account, Code: code, AssignedAt: s.clock.Now()}
	_, err := q.ExecContext(ctx,
		`INSERT INTO assignments (account, code, assigned_at) VALUES (?, ?, ?)`,
		string(account), code, a.AssignedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ledger.Assignment{}, ledger.ErrAlreadyAssigned
		}
		return ledger.Assignment{}, fault("insert assignment", err)
	}
	return a, nil
}

func (s *Store) ListAssignments(ctx context.Context, account ledger.AccountRef) ([]ledger.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listAssignments(ctx, s.db, account)
}

func listAssignments(ctx context.Context, q dbtx, account ledger.AccountRef) ([]ledger.Assignment, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT account, code, assigned_at FROM assignments
		 WHERE account = ? ORDER BY assigned_at ASC`, string(account))
	if err != nil {
		return nil, fault("list assignments", err)
	}
	defer rows.Close()

	var out []ledger.Assignment
	for rows.Next() {
		var (
			a          ledger.Assignment
			acc        string
			assignedAt string
		)
		if err := rows.Scan(&acc, &a.Code, &assignedAt); err != nil {
			return nil, fault("scan assignment", err)
		}
		a.Account = ledger.AccountRef(acc)
		a.AssignedAt, _ = time.Parse(time.RFC3339Nano, assignedAt)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) RevokeOne(ctx context.Context, account ledger.AccountRef, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return revokeOne(ctx, s.db, account, code)
}

func revokeOne(ctx context.Context, q dbtx, account ledger.AccountRef, code string) error {
	res, err := q.ExecContext(ctx,
		`DELETE FROM assignments WHERE account = ? AND code = ?`,
		string(account), code)
	if err != nil {
		return fault("revoke assignment", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fault("revoke assignment", err)
	}
	if n == 0 {
		return ledger.ErrNotAssigned
	}
	return nil
}

func (s *Store) RevokeAll(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return revokeAll(ctx, s.db, code)
}

func revokeAll(ctx context.Context, q dbtx, code string) error {
	// Idempotent: zero rows is success.
	if _, err := q.ExecContext(ctx, `DELETE FROM assignments WHERE code = ?`, code); err != nil {
		return fault("revoke all assignments", err)
	}
	return nil
}

// =============================================================================
// ACCOUNT STORE (ledger.AccountStore interface)
// =============================================================================

func (s *Store) CreateAccount(ctx context.Context, a ledger.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createAccount(ctx, s.db, a)
}

func createAccount(ctx context.Context, q dbtx, a ledger.Account) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO accounts (handle, password_hash, points, created_at)
		 VALUES (?, ?, 0, ?)`,
		a.Handle, a.PasswordHash, a.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ledger.ErrDuplicateHandle
		}
		return fault("insert account", err)
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, handle string) (ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getAccount(ctx, s.db, handle)
}

func getAccount(ctx context.Context, q dbtx, handle string) (ledger.Account, error) {
	var (
		a         ledger.Account
		createdAt string
	)
	err := q.QueryRowContext(ctx,
		`SELECT handle, password_hash, created_at FROM accounts WHERE handle = ?`,
		handle,
	).Scan(&a.Handle, &a.PasswordHash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Account{}, ledger.ErrAccountNotFound
	}
	if err != nil {
		return ledger.Account{}, fault("get account", err)
	}
	a.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return a, nil
}

// =============================================================================
// REWARDS LEDGER (ledger.RewardsLedger interface)
// =============================================================================

func (s *Store) Earn(ctx context.Context, account ledger.AccountRef, amount decimal.Decimal, items []string) (ledger.EarnResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ledger.EarnResult{}, fault("begin earn", err)
	}
	defer tx.Rollback()

	result, err := s.earn(ctx, tx, account, amount, items)
	if err != nil {
		return ledger.EarnResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return ledger.EarnResult{}, fault("commit earn", err)
	}
	return result, nil
}

func (s *Store) earn(ctx context.Context, q dbtx, account ledger.AccountRef, amount decimal.Decimal, items []string) (ledger.EarnResult, error) {
	if amount.IsNegative() {
		return ledger.EarnResult{}, ledger.ErrInvalidAmount
	}

	record := ledger.PurchaseRecord{
		ID:           uuid.NewString(),
		Account:      account,
		Amount:       amount,
		PointsEarned: ledger.PointsForAmount(amount),
		Items:        items,
		At:           s.clock.Now(),
	}

	res, err := q.ExecContext(ctx,
		`UPDATE accounts SET points = points + ? WHERE handle = ?`,
		record.PointsEarned, string(account))
	if err != nil {
		return ledger.EarnResult{}, fault("credit points", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return ledger.EarnResult{}, fault("credit points", err)
	}
	if n == 0 {
		return ledger.EarnResult{}, ledger.ErrAccountNotFound
	}

	itemsJSON, _ := json.Marshal(record.Items)
	if _, err := q.ExecContext(ctx,
		`INSERT INTO purchases (id, account, amount, points_earned, items_json, at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		record.ID, string(account), amount.String(), record.PointsEarned,
		string(itemsJSON), record.At.Format(time.RFC3339Nano),
	); err != nil {
		return ledger.EarnResult{}, fault("insert purchase", err)
	}

	balance, err := balanceOf(ctx, q, account)
	if err != nil {
		return ledger.EarnResult{}, err
	}
	return ledger.EarnResult{Record: record, NewBalance: balance}, nil
}

func (s *Store) Balance(ctx context.Context, account ledger.AccountRef) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return balanceOf(ctx, s.db, account)
}

func balanceOf(ctx context.Context, q dbtx, account ledger.AccountRef) (int64, error) {
	var points int64
	err := q.QueryRowContext(ctx,
		`SELECT points FROM accounts WHERE handle = ?`, string(account),
	).Scan(&points)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ledger.ErrAccountNotFound
	}
	if err != nil {
		return 0, fault("read balance", err)
	}
	return points, nil
}

func (s *Store) History(ctx context.Context, account ledger.AccountRef) ([]ledger.PurchaseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return history(ctx, s.db, account)
}

func history(ctx context.Context, q dbtx, account ledger.AccountRef) ([]ledger.PurchaseRecord, error) {
	if _, err := balanceOf(ctx, q, account); err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx,
		`SELECT id, account, amount, points_earned, items_json, at
		 FROM purchases WHERE account = ?
		 ORDER BY at DESC, rowid DESC`, string(account))
	if err != nil {
		return nil, fault("list purchases", err)
	}
	defer rows.Close()

	var out []ledger.PurchaseRecord
	for rows.Next() {
		var (
			r         ledger.PurchaseRecord
			acc       string
			amount    string
			itemsJSON sql.NullString
			at        string
		)
		if err := rows.Scan(&r.ID, &acc, &amount, &r.PointsEarned, &itemsJSON, &at); err != nil {
			return nil, fault("scan purchase", err)
		}
		r.Account = ledger.AccountRef(acc)
		r.Amount = mustDecimal(amount)
		r.At, _ = time.Parse(time.RFC3339Nano, at)
		if itemsJSON.Valid && itemsJSON.String != "" {
			json.Unmarshal([]byte(itemsJSON.String), &r.Items)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) Debit(ctx context.Context, account ledger.AccountRef, points int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.debit(ctx, s.db, account, points)
}

func (s *Store) debit(ctx context.Context, q dbtx, account ledger.AccountRef, points int64) (int64, error) {
	if points <= 0 {
		return 0, ledger.ErrInvalidPoints
	}

	// The guard in the WHERE clause makes the check-and-deduct atomic.
	res, err := q.ExecContext(ctx,
		`UPDATE accounts SET points = points - ?
		 WHERE handle = ? AND points >= ?`,
		points, string(account), points)
	if err != nil {
		return 0, fault("debit points", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fault("debit points", err)
	}
	if n == 0 {
		available, err := balanceOf(ctx, q, account)
		if err != nil {
			return 0, err // ErrAccountNotFound or a fault
		}
		return 0, &ledger.InsufficientPointsError{
			Account:   account,
			Available: available,
			Requested: points,
		}
	}

	return balanceOf(ctx, q, account)
}

func (s *Store) Credit(ctx context.Context, account ledger.AccountRef, points int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.credit(ctx, s.db, account, points)
}

func (s *Store) credit(ctx context.Context, q dbtx, account ledger.AccountRef, points int64) (int64, error) {
	if points <= 0 {
		return 0, ledger.ErrInvalidPoints
	}

	res, err := q.ExecContext(ctx,
		`UPDATE accounts SET points = points + ? WHERE handle = ?`,
		points, string(account))
	if err != nil {
		return 0, fault("credit points", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fault("credit points", err)
	}
	if n == 0 {
		return 0, ledger.ErrAccountNotFound
	}

	return balanceOf(ctx, q, account)
}

// =============================================================================
// TRANSACTION BOUNDARY (ledger.Backend WithTx)
// =============================================================================

// WithTx executes fn within one SQL transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Backend) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fault("begin transaction", err)
	}
	defer tx.Rollback()

	if err := fn(&txBackend{tx: tx, parent: s}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fault("commit transaction", err)
	}
	return nil
}

// txBackend routes every operation through the open *sql.Tx. The parent's
// mutex is already held by WithTx.
type txBackend struct {
	tx     *sql.Tx
	parent *Store
}

var _ ledger.Backend = (*txBackend)(nil)

func (t *txBackend) CreateCoupon(ctx context.Context, c ledger.Coupon) error {
	return createCoupon(ctx, t.tx, c)
}

func (t *txBackend) GetCoupon(ctx context.Context, code string) (ledger.Coupon, error) {
	return getCoupon(ctx, t.tx, code)
}

func (t *txBackend) ListCoupons(ctx context.Context) ([]ledger.Coupon, error) {
	return listCoupons(ctx, t.tx)
}

func (t *txBackend) DeleteCoupon(ctx context.Context, code string) error {
	return deleteCoupon(ctx, t.tx, code)
}

func (t *txBackend) Assign(ctx context.Context, account ledger.AccountRef, code string) (ledger.Assignment, error) {
	return t.parent.assign(ctx, t.tx, account, code)
}

func (t *txBackend) ListAssignments(ctx context.Context, account ledger.AccountRef) ([]ledger.Assignment, error) {
	return listAssignments(ctx, t.tx, account)
}

func (t *txBackend) RevokeOne(ctx context.Context, account ledger.AccountRef, code string) error {
	return revokeOne(ctx, t.tx, account, code)
}

func (t *txBackend) RevokeAll(ctx context.Context, code string) error {
	return revokeAll(ctx, t.tx, code)
}

func (t *txBackend) CreateAccount(ctx context.Context, a ledger.Account) error {
	return createAccount(ctx, t.tx, a)
}

func (t *txBackend) GetAccount(ctx context.Context, handle string) (ledger.Account, error) {
	return getAccount(ctx, t.tx, handle)
}

func (t *txBackend) Earn(ctx context.Context, account ledger.AccountRef, amount decimal.Decimal, items []string) (ledger.EarnResult, error) {
	return t.parent.earn(ctx, t.tx, account, amount, items)
}

func (t *txBackend) Balance(ctx context.Context, account ledger.AccountRef) (int64, error) {
	return balanceOf(ctx, t.tx, account)
}

func (t *txBackend) History(ctx context.Context, account ledger.AccountRef) ([]ledger.PurchaseRecord, error) {
	return history(ctx, t.tx, account)
}

func (t *txBackend) Debit(ctx context.Context, account ledger.AccountRef, points int64) (int64, error) {
	return t.parent.debit(ctx, t.tx, account, points)
}

func (t *txBackend) Credit(ctx context.Context, account ledger.AccountRef, points int64) (int64, error) {
	return t.parent.credit(ctx, t.tx, account, points)
}

func (t *txBackend) WithTx(_ context.Context, fn func(ledger.Backend) error) error {
	// Already inside a transaction; nested calls share its scope.
	return fn(t)
}

// =============================================================================
// HELPERS
// =============================================================================

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// fault wraps a driver-level failure as the Unavailable error kind so the
// boundary layer can decide retry policy. Business errors never pass
// through here.
func fault(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ledger.ErrUnavailable, op, err)
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
