package sqlite

// catalog.Store implementation. Shops and items live in the same database
// as the ledger but in their own tables; nothing here crosses into the
// ledger's tables.

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/warp/commerce-ledger/catalog"
)

func (s *Store) CreateShop(ctx context.Context, shop catalog.Shop) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO shops (id, name, owner, created_at) VALUES (?, ?, ?, ?)`,
		shop.ID, shop.Name, shop.Owner, shop.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fault("insert shop", err)
	}
	return nil
}

func (s *Store) GetShop(ctx context.Context, id string) (catalog.Shop, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		shop      catalog.Shop
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, owner, created_at FROM shops WHERE id = ?`, id,
	).Scan(&shop.ID, &shop.Name, &shop.Owner, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.Shop{}, catalog.ErrShopNotFound
	}
	if err != nil {
		return catalog.Shop{}, fault("get shop", err)
	}
	shop.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return shop, nil
}

func (s *Store) ListShops(ctx context.Context) ([]catalog.Shop, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, owner, created_at FROM shops ORDER BY created_at ASC`)
	if err != nil {
		return nil, fault("list shops", err)
	}
	defer rows.Close()

	var out []catalog.Shop
	for rows.Next() {
		var (
			shop      catalog.Shop
			createdAt string
		)
		if err := rows.Scan(&shop.ID, &shop.Name, &shop.Owner, &createdAt); err != nil {
			return nil, fault("scan shop", err)
		}
		shop.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, shop)
	}
	return out, rows.Err()
}

func (s *Store) UpdateShop(ctx context.Context, shop catalog.Shop) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE shops SET name = ? WHERE id = ?`, shop.Name, shop.ID)
	if err != nil {
		return fault("update shop", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fault("update shop", err)
	}
	if n == 0 {
		return catalog.ErrShopNotFound
	}
	return nil
}

func (s *Store) DeleteShop(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fault("begin shop delete", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM shops WHERE id = ?`, id)
	if err != nil {
		return fault("delete shop", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fault("delete shop", err)
	}
	if n == 0 {
		return catalog.ErrShopNotFound
	}

	// Items belong to the shop; they go with it.
	if _, err := tx.ExecContext(ctx, `DELETE FROM shop_items WHERE shop_id = ?`, id); err != nil {
		return fault("delete shop items", err)
	}
	if err := tx.Commit(); err != nil {
		return fault("commit shop delete", err)
	}
	return nil
}

func (s *Store) CreateItem(ctx context.Context, item catalog.ShopItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM shops WHERE id = ?`, item.ShopID).Scan(&exists)
	if err != nil {
		return fault("check shop", err)
	}
	if exists == 0 {
		return catalog.ErrShopNotFound
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO shop_items (id, shop_id, name, description, price, category, stock, available, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.ShopID, item.Name, item.Description, item.Price.String(),
		item.Category, item.Stock, item.Available, item.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fault("insert item", err)
	}
	return nil
}

func (s *Store) GetItem(ctx context.Context, id string) (catalog.ShopItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, shop_id, name, description, price, category, stock, available, created_at
		 FROM shop_items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.ShopItem{}, catalog.ErrItemNotFound
	}
	return item, err
}

func (s *Store) ListShopItems(ctx context.Context, shopID string) ([]catalog.ShopItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, shop_id, name, description, price, category, stock, available, created_at
		 FROM shop_items WHERE shop_id = ? ORDER BY created_at ASC`, shopID)
	if err != nil {
		return nil, fault("list items", err)
	}
	defer rows.Close()

	var out []catalog.ShopItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (s *Store) UpdateItem(ctx context.Context, item catalog.ShopItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE shop_items
		 SET name = ?, description = ?, price = ?, category = ?, stock = ?, available = ?
		 WHERE id = ?`,
		item.Name, item.Description, item.Price.String(), item.Category,
		item.Stock, item.Available, item.ID)
	if err != nil {
		return fault("update item", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fault("update item", err)
	}
	if n == 0 {
		return catalog.ErrItemNotFound
	}
	return nil
}

func (s *Store) DeleteItem(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM shop_items WHERE id = ?`, id)
	if err != nil {
		return fault("delete item", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fault("delete item", err)
	}
	if n == 0 {
		return catalog.ErrItemNotFound
	}
	return nil
}

func scanItem(row rowScanner) (catalog.ShopItem, error) {
	var (
		item      catalog.ShopItem
		desc      sql.NullString
		price     string
		category  sql.NullString
		createdAt string
	)
	err := row.Scan(&item.ID, &item.ShopID, &item.Name, &desc, &price,
		&category, &item.Stock, &item.Available, &createdAt)
	if err != nil {
		return catalog.ShopItem{}, err
	}
	item.Description = desc.String
	item.Price = mustDecimal(price)
	item.Category = category.String
	item.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return item, nil
}
