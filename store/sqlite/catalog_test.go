package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/commerce-ledger/catalog"
)

func testShop(owner string) catalog.Shop {
	return catalog.Shop{
		ID:        uuid.NewString(),
		Name:      "Corner Store",
		Owner:     owner,
		CreatedAt: time.Now().UTC(),
	}
}

func testItem(shopID string) catalog.ShopItem {
	return catalog.ShopItem{
		ID:          uuid.NewString(),
		ShopID:      shopID,
		Name:        "Espresso Kit",
		Description: "Everything but the beans",
		Price:       decimal.RequireFromString("49.90"),
		Category:    "kitchen",
		Stock:       12,
		Available:   true,
		CreatedAt:   time.Now().UTC(),
	}
}

func TestSQLite_Shop_CRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	shop := testShop("alice")
	require.NoError(t, s.CreateShop(ctx, shop))

	got, err := s.GetShop(ctx, shop.ID)
	require.NoError(t, err)
	assert.Equal(t, shop.Name, got.Name)
	assert.Equal(t, "alice", got.Owner)

	got.Name = "Corner Store Deluxe"
	require.NoError(t, s.UpdateShop(ctx, got))
	got, err = s.GetShop(ctx, shop.ID)
	require.NoError(t, err)
	assert.Equal(t, "Corner Store Deluxe", got.Name)

	shops, err := s.ListShops(ctx)
	require.NoError(t, err)
	assert.Len(t, shops, 1)

	require.NoError(t, s.DeleteShop(ctx, shop.ID))
	_, err = s.GetShop(ctx, shop.ID)
	assert.ErrorIs(t, err, catalog.ErrShopNotFound)
}

func TestSQLite_DeleteShop_RemovesItems(t *testing.T) {
	// GIVEN: A shop with two items
	// WHEN: Deleting the shop
	// THEN: The items go with it

	s := newTestStore(t)
	ctx := context.Background()

	shop := testShop("alice")
	require.NoError(t, s.CreateShop(ctx, shop))

	a := testItem(shop.ID)
	b := testItem(shop.ID)
	require.NoError(t, s.CreateItem(ctx, a))
	require.NoError(t, s.CreateItem(ctx, b))

	require.NoError(t, s.DeleteShop(ctx, shop.ID))

	_, err := s.GetItem(ctx, a.ID)
	assert.ErrorIs(t, err, catalog.ErrItemNotFound)
	_, err = s.GetItem(ctx, b.ID)
	assert.ErrorIs(t, err, catalog.ErrItemNotFound)
}

func TestSQLite_CreateItem_UnknownShopRejected(t *testing.T) {
	s := newTestStore(t)

	err := s.CreateItem(context.Background(), testItem("no-such-shop"))
	assert.ErrorIs(t, err, catalog.ErrShopNotFound)
}

func TestSQLite_Item_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	shop := testShop("alice")
	require.NoError(t, s.CreateShop(ctx, shop))

	item := testItem(shop.ID)
	require.NoError(t, s.CreateItem(ctx, item))

	got, err := s.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, item.Name, got.Name)
	assert.Equal(t, item.Description, got.Description)
	assert.True(t, item.Price.Equal(got.Price))
	assert.Equal(t, item.Stock, got.Stock)
	assert.True(t, got.Available)

	got.Stock = 0
	got.Available = false
	require.NoError(t, s.UpdateItem(ctx, got))

	got, err = s.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.False(t, got.Available)
	assert.Equal(t, int64(0), got.Stock)

	items, err := s.ListShopItems(ctx, shop.ID)
	require.NoError(t, err)
	assert.Len(t, items, 1)

	require.NoError(t, s.DeleteItem(ctx, item.ID))
	err = s.DeleteItem(ctx, item.ID)
	assert.ErrorIs(t, err, catalog.ErrItemNotFound)
}
