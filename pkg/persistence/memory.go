package persistence

import (
	"context"
	"sync"
)

// MemoryPersistor is an in-process Persistor backed by a map. It is used in
// tests and for callers that want caching semantics without durability.
type MemoryPersistor[D, M any] struct {
	mu    sync.RWMutex
	items map[string]Item[D, M]
}

// NewMemoryPersistor creates an empty in-memory persistor.
func NewMemoryPersistor[D, M any]() *MemoryPersistor[D, M] {
	return &MemoryPersistor[D, M]{
		items: make(map[string]Item[D, M]),
	}
}

func (p *MemoryPersistor[D, M]) Insert(ctx context.Context, id string, meta M, data D) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items[id] = Item[D, M]{Meta: meta, Data: data}
	return nil
}

func (p *MemoryPersistor[D, M]) Find(ctx context.Context, id string) (Item[D, M], bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	item, ok := p.items[id]
	return item, ok, nil
}

// Update has insert semantics for unknown ids, per the contract.
func (p *MemoryPersistor[D, M]) Update(ctx context.Context, id string, meta M, data D) error {
	return p.Insert(ctx, id, meta, data)
}

func (p *MemoryPersistor[D, M]) Remove(ctx context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.items, id)
	return nil
}

func (p *MemoryPersistor[D, M]) List(ctx context.Context) ([]Entry[M], error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	entries := make([]Entry[M], 0, len(p.items))
	for id, item := range p.items {
		entries = append(entries, Entry[M]{ID: id, Meta: item.Meta})
	}
	return entries, nil
}

func (p *MemoryPersistor[D, M]) Close() error {
	return nil
}

var _ Persistor[struct{}, struct{}] = (*MemoryPersistor[struct{}, struct{}])(nil)
