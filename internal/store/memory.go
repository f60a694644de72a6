package store

import (
	"context"
	"sync"

	"badewanne/internal/model"
)

// MemoryStore keeps items in a map keyed by id.
type MemoryStore struct {
	mu     sync.RWMutex
	items  map[int64]model.Item
	nextID int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[int64]model.Item), nextID: 1}
}

func (m *MemoryStore) Find(_ context.Context, f Filter) ([]model.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	match := f.matcher()
	var out []model.Item
	for _, it := range m.items {
		if match(it) {
			out = append(out, it)
		}
	}
	sortByID(out)
	return out, nil
}

func (m *MemoryStore) Get(_ context.Context, id int64) (model.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	it, ok := m.items[id]
	if !ok {
		return model.Item{}, ErrNotFound
	}
	return it, nil
}

func (m *MemoryStore) UpdateStage(_ context.Context, u StageUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range u.IDs {
		it, ok := m.items[id]
		if !ok {
			continue
		}
		it.Stage = u.Stage
		if !u.StageStartAt.IsZero() {
			it.LastStageStartAt = u.StageStartAt
		}
		if !u.BlockEndAt.IsZero() {
			it.LastBlockEndAt = u.BlockEndAt
		}
		m.items[id] = it
	}
	return nil
}

func (m *MemoryStore) ApplyPricing(_ context.Context, u PricingUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, src := range u.Items {
		it, ok := m.items[src.ID]
		if !ok {
			continue
		}
		it.Stage = u.Stage
		it.CurrentSalePrice = src.CurrentSalePrice
		it.LastHumanSetPrice = src.LastHumanSetPrice
		it.NewPrice = src.NewPrice
		if !u.BlockEndAt.IsZero() {
			it.LastBlockEndAt = u.BlockEndAt
		}
		m.items[src.ID] = it
	}
	return nil
}

func (m *MemoryStore) KeyIndex(_ context.Context) (map[model.Key][]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	idx := make(map[model.Key][]int64, len(m.items))
	for id, it := range m.items {
		idx[it.Key()] = append(idx[it.Key()], id)
	}
	return idx, nil
}

// Insert stores items, assigning ids to items whose ID is zero. The assigned
// ids are written back into the slice.
func (m *MemoryStore) Insert(_ context.Context, items []model.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range items {
		if items[i].ID == 0 {
			items[i].ID = m.nextID
		}
		if items[i].ID >= m.nextID {
			m.nextID = items[i].ID + 1
		}
		prepareNew(&items[i])
		m.items[items[i].ID] = items[i]
	}
	return nil
}

func (m *MemoryStore) UpdateMetrics(_ context.Context, items []model.Item, withRank bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, src := range items {
		it, ok := m.items[src.ID]
		if !ok {
			continue
		}
		copyMetrics(&it, src, withRank)
		m.items[src.ID] = it
	}
	return nil
}

func (m *MemoryStore) CountByStage(_ context.Context) (map[model.Stage]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[model.Stage]int)
	for _, it := range m.items {
		counts[it.Stage]++
	}
	return counts, nil
}

func (m *MemoryStore) Close() error { return nil }
