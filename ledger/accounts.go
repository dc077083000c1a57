package ledger

import (
	"context"
	"time"
)

// =============================================================================
// ACCOUNT STORE - Persistence for accounts (consumed by the identity layer)
// =============================================================================

// Account is the stored form of a registered user. The ledger core only
// ever references accounts by handle; registration and password checks live
// in the identity package.
type Account struct {
	Handle       string
	PasswordHash []byte
	CreatedAt    time.Time
}

type AccountStore interface {
	// CreateAccount inserts an account if and only if the handle is absent.
	// Returns ErrDuplicateHandle otherwise. Insert-if-absent is atomic.
	// A new account starts with a zero point balance.
	CreateAccount(ctx context.Context, a Account) error

	// GetAccount returns the account for a handle, or ErrAccountNotFound.
	GetAccount(ctx context.Context, handle string) (Account, error)
}
