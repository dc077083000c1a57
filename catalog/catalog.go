/*
Package catalog provides the shop and item catalog.

PURPOSE:
  Plumbing around the coupon/rewards core: shops owned by accounts, and
  the items sold in them. Purchases recorded against the rewards ledger
  reference these items by name only - the catalog has no hold over the
  ledger and vice versa.

OWNERSHIP RULE:
  Every shop has exactly one owner (an account handle). Mutating a shop or
  its items requires the caller to be that owner; the check lives in the
  HTTP handlers, the store just persists.
*/
package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrShopNotFound = errors.New("shop not found")
	ErrItemNotFound = errors.New("shop item not found")

	// ErrNotOwner is returned when a mutation is attempted by an account
	// that does not own the shop.
	ErrNotOwner = errors.New("account does not own this shop")
)

type Shop struct {
	ID        string
	Name      string
	Owner     string // account handle
	CreatedAt time.Time
}

type ShopItem struct {
	ID          string
	ShopID      string
	Name        string
	Description string
	Price       decimal.Decimal
	Category    string
	Stock       int64
	Available   bool
	CreatedAt   time.Time
}

// Store persists shops and items. Implementations: catalog.Memory and
// store/sqlite.Store.
type Store interface {
	CreateShop(ctx context.Context, s Shop) error
	GetShop(ctx context.Context, id string) (Shop, error)
	ListShops(ctx context.Context) ([]Shop, error)
	UpdateShop(ctx context.Context, s Shop) error
	DeleteShop(ctx context.Context, id string) error

	CreateItem(ctx context.Context, item ShopItem) error
	GetItem(ctx context.Context, id string) (ShopItem, error)
	ListShopItems(ctx context.Context, shopID string) ([]ShopItem, error)
	UpdateItem(ctx context.Context, item ShopItem) error
	DeleteItem(ctx context.Context, id string) error
}
