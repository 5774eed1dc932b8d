package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"catalogpanel/pkg/domain"
)

// MemoryStore keeps products in-process. Used for local runs and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	products map[string]domain.Product
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{products: make(map[string]domain.Product)}
}

func (m *MemoryStore) InsertProduct(ctx context.Context, p domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.Images = append([]string{}, p.Images...)
	m.products[p.ID] = p
	return nil
}

func (m *MemoryStore) ListProducts(ctx context.Context) ([]domain.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Product, 0, len(m.products))
	for _, p := range m.products {
		p.Images = append([]string{}, p.Images...)
		res = append(res, p)
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].CreatedAt.After(res[j].CreatedAt)
		}
		return res[i].ID < res[j].ID
	})
	return res, nil
}

func (m *MemoryStore) GetProduct(ctx context.Context, id string) (domain.Product, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.products[id]
	if !ok {
		return domain.Product{}, false, nil
	}
	p.Images = append([]string{}, p.Images...)
	return p, true, nil
}

func (m *MemoryStore) UpdateProduct(ctx context.Context, id string, patch domain.ProductPatch, updatedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return false, nil
	}
	p = patch.Apply(p)
	p.UpdatedAt = updatedAt.UTC()
	m.products[id] = p
	return true, nil
}

func (m *MemoryStore) DeleteProduct(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.products, id)
	return nil
}
