package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// MemoryBackend keeps collections in process. Contents do not survive a
// restart.
type MemoryBackend struct {
	mu          sync.Mutex
	collections map[string]*Memory
}

// NewMemoryBackend creates an empty backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{collections: make(map[string]*Memory)}
}

// Collection returns the named collection, creating it on first use.
func (b *MemoryBackend) Collection(_ context.Context, name string, _ int) (Index, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.collections[name]
	if !ok {
		m = NewMemory()
		b.collections[name] = m
	}
	return m, nil
}

// Close is a no-op.
func (b *MemoryBackend) Close() error { return nil }

type memPoint struct {
	vector   []float32
	document string
	metadata Metadata
}

// Memory is an in-process Index using brute-force cosine search.
// Enumeration order is insertion order and is stable across calls.
type Memory struct {
	mu     sync.RWMutex
	order  []string
	points map[string]*memPoint
}

// NewMemory creates an empty collection.
func NewMemory() *Memory {
	return &Memory{points: make(map[string]*memPoint)}
}

func (m *Memory) Insert(_ context.Context, id string, vector []float32, document string, md Metadata) error {
	if len(vector) == 0 {
		return fmt.Errorf("insert %s: empty vector", id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.points[id]; !ok {
		m.order = append(m.order, id)
	}
	m.points[id] = &memPoint{
		vector:   append([]float32(nil), vector...),
		document: document,
		metadata: md.clone(),
	}
	return nil
}

func (m *Memory) Get(_ context.Context, filter *Filter) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Record
	for _, id := range m.order {
		p := m.points[id]
		if !filter.matches(p.metadata) {
			continue
		}
		out = append(out, Record{ID: id, Document: p.document, Metadata: p.metadata.clone()})
	}
	return out, nil
}

func (m *Memory) Query(_ context.Context, vector []float32, k int) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record, 0, len(m.order))
	for _, id := range m.order {
		p := m.points[id]
		out = append(out, Record{
			ID:       id,
			Document: p.document,
			Metadata: p.metadata.clone(),
			Distance: 1 - CosineSimilarity(vector, p.vector),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// Update merges md into the stored metadata.
func (m *Memory) Update(_ context.Context, id string, md Metadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.points[id]
	if !ok {
		return fmt.Errorf("update %s: %w", id, ErrNotFound)
	}
	for k, v := range md {
		p.metadata[k] = v
	}
	return nil
}

func (m *Memory) Delete(_ context.Context, ids ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := m.points[id]; ok {
			drop[id] = true
			delete(m.points, id)
		}
	}
	if len(drop) == 0 {
		return nil
	}
	kept := m.order[:0]
	for _, id := range m.order {
		if !drop[id] {
			kept = append(kept, id)
		}
	}
	m.order = kept
	return nil
}

func (m *Memory) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.order), nil
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0
// when the lengths differ or either vector is zero.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
