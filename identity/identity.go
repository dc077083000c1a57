/*
Package identity handles account registration and authentication.

PURPOSE:
  Thin layer over ledger.AccountStore. Passwords are hashed with bcrypt
  on the way in and compared with constant-time bcrypt comparison on the
  way out. The rest of the system only ever sees account handles.

SEE ALSO:
  - ledger/accounts.go: the storage contract
  - api/handlers.go: register/login endpoints
*/
package identity

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/warp/commerce-ledger/ledger"
)

var (
	// ErrInvalidCredentials is returned on any login failure. The caller
	// cannot distinguish a bad password from an unknown handle.
	ErrInvalidCredentials = errors.New("invalid handle or password")

	// ErrWeakPassword is returned when a registration password is too short.
	ErrWeakPassword = errors.New("password must be at least 6 characters")

	// ErrInvalidHandle is returned when a handle is empty or contains spaces.
	ErrInvalidHandle = errors.New("handle must be non-empty without spaces")
)

const minPasswordLen = 6

// Registry registers accounts and resolves handles for the ledger core.
// It implements ledger.Identity.
type Registry struct {
	accounts ledger.AccountStore
	clock    ledger.Clock
}

func NewRegistry(accounts ledger.AccountStore, clock ledger.Clock) *Registry {
	return &Registry{accounts: accounts, clock: clock}
}

var _ ledger.Identity = (*Registry)(nil)

// Register creates a new account with a bcrypt-hashed password.
// Returns ledger.ErrDuplicateHandle if the handle is taken.
func (r *Registry) Register(ctx context.Context, handle, password string) (ledger.Account, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" || strings.ContainsAny(handle, " \t\n") {
		return ledger.Account{}, ErrInvalidHandle
	}
	if len(password) < minPasswordLen {
		return ledger.Account{}, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return ledger.Account{}, err
	}

	a := ledger.Account{
		Handle:       handle,
		PasswordHash: hash,
		CreatedAt:    r.clock.Now(),
	}
	if err := r.accounts.CreateAccount(ctx, a); err != nil {
		return ledger.Account{}, err
	}
	return a, nil
}

// Authenticate checks a handle/password pair. On success it returns the
// account ref used by the ledger core; on any failure it returns
// ErrInvalidCredentials so the response does not leak which part failed.
func (r *Registry) Authenticate(ctx context.Context, handle, password string) (ledger.AccountRef, error) {
	a, err := r.accounts.GetAccount(ctx, handle)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		// Burn roughly the same time as a real comparison.
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", err
	}
	if err := bcrypt.CompareHashAndPassword(a.PasswordHash, []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	return ledger.AccountRef(a.Handle), nil
}

// Resolve maps a handle to an account ref, or ledger.ErrAccountNotFound.
func (r *Registry) Resolve(ctx context.Context, handle string) (ledger.AccountRef, error) {
	a, err := r.accounts.GetAccount(ctx, handle)
	if err != nil {
		return "", err
	}
	return ledger.AccountRef(a.Handle), nil
}

// dummyHash is a bcrypt hash of an unguessable value, used to equalize
// timing between unknown-handle and wrong-password failures.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("commerce-ledger-dummy"), bcrypt.DefaultCost)
