package vectorindex

import (
	"context"
	"math"
	"sort"
	"strconv"
	"sync"
)

// MemoryIndex is an exact cosine index kept in process memory.
type MemoryIndex struct {
	mu     sync.RWMutex
	dims   int
	points map[int64]Point
	owners map[int64]int64

	upserts int
}

func NewMemoryIndex(dims int) *MemoryIndex {
	return &MemoryIndex{
		dims:   dims,
		points: make(map[int64]Point),
		owners: make(map[int64]int64),
	}
}

func (m *MemoryIndex) Dimensions() int { return m.dims }

func (m *MemoryIndex) Upsert(_ context.Context, p Point) (string, error) {
	if err := ValidatePoint(p, m.dims); err != nil {
		return "", err
	}
	owner, err := ownerFromPayload(p.Payload)
	if err != nil {
		return "", err
	}

	cp := Point{ID: p.ID, Vector: append([]float32(nil), p.Vector...), Payload: make(map[string]any, len(p.Payload))}
	for k, v := range p.Payload {
		cp.Payload[k] = v
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.points[p.ID] = cp
	m.owners[p.ID] = owner
	m.upserts++
	return strconv.FormatInt(p.ID, 10), nil
}

func (m *MemoryIndex) Search(_ context.Context, q Query) ([]Hit, error) {
	if err := validateVector(q.Vector, m.dims); err != nil {
		return nil, err
	}

	m.mu.RLock()
	hits := make([]Hit, 0, len(m.points))
	for id, p := range m.points {
		if q.OwnerID != 0 && m.owners[id] != q.OwnerID {
			continue
		}
		score := cosine(q.Vector, p.Vector)
		if q.ScoreThreshold != nil && score < *q.ScoreThreshold {
			continue
		}
		hits = append(hits, Hit{ID: id, Score: score, Payload: p.Payload})
	}
	m.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score == hits[j].Score {
			return hits[i].ID < hits[j].ID
		}
		return hits[i].Score > hits[j].Score
	})
	if q.Limit > 0 && len(hits) > q.Limit {
		hits = hits[:q.Limit]
	}
	return hits, nil
}

// Len 已存向量数
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.points)
}

// Upserts counts Upsert calls that passed validation.
func (m *MemoryIndex) Upserts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.upserts
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
