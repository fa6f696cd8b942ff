package vectorindex

import (
	"context"
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ezmail/internal/apperr"
	"ezmail/pkg/config"
)

func TestPointIDFrom(t *testing.T) {
	valid := []any{int(3), int32(3), int64(3), uint32(3), uint64(3), float64(3), json.Number("3")}
	for _, v := range valid {
		id, err := PointIDFrom(v)
		require.NoError(t, err, "%T", v)
		assert.Equal(t, int64(3), id)
	}

	invalid := []any{0, -1, int64(-9), 1.5, math.NaN(), "3", json.Number("3.2"), nil, uint64(math.MaxUint64)}
	for _, v := range invalid {
		_, err := PointIDFrom(v)
		assert.ErrorIs(t, err, apperr.ErrValidation, "%v", v)
	}
}

func TestValidatePoint(t *testing.T) {
	ok := Point{ID: 1, Vector: []float32{1, 0}, Payload: map[string]any{"ownerId": int64(7), "subject": "x", "flag": true}}
	assert.NoError(t, ValidatePoint(ok, 2))

	cases := map[string]Point{
		"zero id":      {ID: 0, Vector: []float32{1, 0}},
		"negative id":  {ID: -4, Vector: []float32{1, 0}},
		"dims":         {ID: 1, Vector: []float32{1, 0, 0}},
		"empty vector": {ID: 1},
		"nan":          {ID: 1, Vector: []float32{float32(math.NaN()), 0}},
		"nested":       {ID: 1, Vector: []float32{1, 0}, Payload: map[string]any{"meta": map[string]any{"a": 1}}},
		"list":         {ID: 1, Vector: []float32{1, 0}, Payload: map[string]any{"tags": []string{"a"}}},
	}
	for name, p := range cases {
		assert.ErrorIs(t, ValidatePoint(p, 2), apperr.ErrValidation, name)
	}
}

func TestPGIndexRejectsInvalidPointBeforeIO(t *testing.T) {
	// pool 为 nil：若请求到达数据库会直接 panic
	idx, err := NewPGIndex(nil, "", 2)
	require.NoError(t, err)

	for _, p := range []Point{
		{ID: 0, Vector: []float32{1, 0}, Payload: map[string]any{"ownerId": 7}},
		{ID: -1, Vector: []float32{1, 0}, Payload: map[string]any{"ownerId": 7}},
		{ID: 5, Vector: []float32{1, 0}, Payload: map[string]any{"ownerId": 1.5}},
		{ID: 5, Vector: []float32{1, 0}},
	} {
		_, err := idx.Upsert(context.Background(), p)
		assert.ErrorIs(t, err, apperr.ErrValidation)
	}

	_, err = idx.Search(context.Background(), Query{Vector: []float32{1, 0, 0}, OwnerID: 7})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestNewPGIndexValidatesTable(t *testing.T) {
	_, err := NewPGIndex(nil, "emails; DROP TABLE x", 4)
	assert.Error(t, err)
	_, err = NewPGIndex(nil, "email_vectors", 0)
	assert.Error(t, err)
}

func TestMemoryIndexOwnerFilterAndOrder(t *testing.T) {
	idx := NewMemoryIndex(2)
	ctx := context.Background()
	put := func(id, owner int64, vec ...float32) {
		_, err := idx.Upsert(ctx, Point{ID: id, Vector: vec, Payload: map[string]any{"ownerId": owner}})
		require.NoError(t, err)
	}
	put(1, 7, 1, 0)
	put(2, 7, 0.6, 0.8)
	put(3, 8, 1, 0)
	put(4, 7, 0, 1)

	threshold := 0.5
	hits, err := idx.Search(ctx, Query{Vector: []float32{1, 0}, Limit: 10, OwnerID: 7, ScoreThreshold: &threshold})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, int64(1), hits[0].ID)
	assert.Equal(t, int64(2), hits[1].ID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-9)
	assert.InDelta(t, 0.6, hits[1].Score, 1e-6)

	key, err := idx.Upsert(ctx, Point{ID: 1, Vector: []float32{0, 1}, Payload: map[string]any{"ownerId": int64(7)}})
	require.NoError(t, err)
	assert.Equal(t, "1", key)
	assert.Equal(t, 4, idx.Len())
}

func TestOpen(t *testing.T) {
	idx, err := Open(context.Background(), config.VectorConfig{Backend: "memory"}, nil, 16)
	require.NoError(t, err)
	assert.Equal(t, 16, idx.Dimensions())

	_, err = Open(context.Background(), config.VectorConfig{Backend: "qdrant"}, nil, 16)
	assert.Error(t, err)

	_, err = Open(context.Background(), config.VectorConfig{Backend: "pgvector", Table: "bad-name"}, nil, 16)
	assert.Error(t, err)
}
