package llm

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func TestHashEmbedderDeterministicAndNormalised(t *testing.T) {
	h := NewHashEmbedder(64)
	a, err := h.Embed(context.Background(), "Quarterly invoice from ACME")
	require.NoError(t, err)
	b, err := h.Embed(context.Background(), "quarterly INVOICE, from acme!")
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.Equal(t, a, b)
	assert.InDelta(t, 1.0, norm(a), 1e-5)

	empty, err := h.Embed(context.Background(), "   ")
	require.NoError(t, err)
	assert.Equal(t, 0.0, norm(empty))
}

type stubEmbedder struct {
	vec []float32
	err error
}

func (s stubEmbedder) Embed(context.Context, string) ([]float32, error) { return s.vec, s.err }
func (s stubEmbedder) Dimensions() int                                 { return len(s.vec) }

func TestFallbackEmbedder(t *testing.T) {
	hash := NewHashEmbedder(8)
	want, _ := hash.Embed(context.Background(), "hello world")

	f := NewFallbackEmbedder(stubEmbedder{err: errors.New("down")}, hash, zap.NewNop())
	got, err := f.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	f = NewFallbackEmbedder(stubEmbedder{vec: []float32{1, 2, 3}}, hash, zap.NewNop())
	got, err = f.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Equal(t, want, got, "dimension mismatch falls back")

	primary := []float32{1, 0, 0, 0, 0, 0, 0, 0}
	f = NewFallbackEmbedder(stubEmbedder{vec: primary}, hash, zap.NewNop())
	got, err = f.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Equal(t, primary, got)
}

func TestFallbackEmbedderReportsDegraded(t *testing.T) {
	hash := NewHashEmbedder(8)
	var d DegradableEmbedder = NewFallbackEmbedder(stubEmbedder{err: errors.New("down")}, hash, zap.NewNop())
	vec, degraded, err := d.EmbedDetailed(context.Background(), "hello")
	require.NoError(t, err)
	assert.True(t, degraded)
	assert.Len(t, vec, 8)

	primary := []float32{0, 1, 0, 0, 0, 0, 0, 0}
	d = NewFallbackEmbedder(stubEmbedder{vec: primary}, hash, zap.NewNop())
	vec, degraded, err = d.EmbedDetailed(context.Background(), "hello")
	require.NoError(t, err)
	assert.False(t, degraded)
	assert.Equal(t, primary, vec)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d = NewFallbackEmbedder(stubEmbedder{err: context.Canceled}, hash, zap.NewNop())
	_, degraded, err = d.EmbedDetailed(ctx, "hello")
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, degraded)
}

func TestHTTPEmbedder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		var req embeddingRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 3, req.Dimensions)
		_, _ = w.Write([]byte(`{"data":[{"embedding":[0.1,0.2,0.3]}]}`))
	}))
	defer srv.Close()

	e := NewHTTPEmbedder(srv.URL+"/v1/", "key", "text-embedding-3-small", 3, time.Second, zap.NewNop())
	vec, err := e.Embed(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}
