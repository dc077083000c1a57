/*
backend.go - The full persistence surface behind the ledger

PURPOSE:
  A Backend bundles the four store interfaces plus a transaction boundary.
  One concrete struct per storage technology implements all of them:

    ledger/store/memory.go  In-memory (tests, dev)
    store/sqlite            Durable SQLite

  Bundling matters because the cascade delete (coupon + its assignments)
  must appear atomic to concurrent readers, which requires both stores to
  share a transaction boundary even though each owns its own data.

TRANSACTION CONTRACT:
  WithTx executes fn against a transactional view of the backend. If fn
  returns an error, no write performed inside fn is visible afterwards.
  While the transaction is open, concurrent readers see either the full
  before-state or the full after-state, never a mix.

SEE ALSO:
  - engine.go: DeleteCoupon, the one orchestration that needs WithTx
*/
package ledger

import "context"

// Backend is everything a storage implementation provides to the core.
type Backend interface {
	CouponStore
	AssignmentIndex
	RewardsLedger
	AccountStore

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back; otherwise it is committed.
	WithTx(ctx context.Context, fn func(Backend) error) error
}
