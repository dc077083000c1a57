package catalog

import (
	"context"
	"sort"
	"sync"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu    sync.RWMutex
	shops map[string]Shop
	items map[string]ShopItem
}

func NewMemory() *Memory {
	return &Memory{
		shops: make(map[string]Shop),
		items: make(map[string]ShopItem),
	}
}

var _ Store = (*Memory)(nil)

func (m *Memory) CreateShop(_ context.Context, s Shop) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shops[s.ID] = s
	return nil
}

func (m *Memory) GetShop(_ context.Context, id string) (Shop, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.shops[id]
	if !ok {
		return Shop{}, ErrShopNotFound
	}
	return s, nil
}

func (m *Memory) ListShops(_ context.Context) ([]Shop, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Shop, 0, len(m.shops))
	for _, s := range m.shops {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) UpdateShop(_ context.Context, s Shop) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.shops[s.ID]; !ok {
		return ErrShopNotFound
	}
	m.shops[s.ID] = s
	return nil
}

func (m *Memory) DeleteShop(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.shops[id]; !ok {
		return ErrShopNotFound
	}
	delete(m.shops, id)
	for itemID, item := range m.items {
		if item.ShopID == id {
			delete(m.items, itemID)
		}
	}
	return nil
}

func (m *Memory) CreateItem(_ context.Context, item ShopItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.shops[item.ShopID]; !ok {
		return ErrShopNotFound
	}
	m.items[item.ID] = item
	return nil
}

func (m *Memory) GetItem(_ context.Context, id string) (ShopItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, ok := m.items[id]
	if !ok {
		return ShopItem{}, ErrItemNotFound
	}
	return item, nil
}

func (m *Memory) ListShopItems(_ context.Context, shopID string) ([]ShopItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ShopItem
	for _, item := range m.items {
		if item.ShopID == shopID {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) UpdateItem(_ context.Context, item ShopItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.items[item.ID]; !ok {
		return ErrItemNotFound
	}
	m.items[item.ID] = item
	return nil
}

func (m *Memory) DeleteItem(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.items[id]; !ok {
		return ErrItemNotFound
	}
	delete(m.items, id)
	return nil
}
