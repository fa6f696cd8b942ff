package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"net/http"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"ezmail/pkg/circuitbreaker"
	"ezmail/pkg/config"
	"ezmail/pkg/metrics"
)

// Embedder turns text into a fixed-size vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// NewEmbedder builds the configured embedder. Remote providers are wrapped in a
// FallbackEmbedder that degrades to HashEmbedder.
func NewEmbedder(ctx context.Context, cfg config.EmbeddingConfig, logger *zap.Logger) (Embedder, error) {
	hash := NewHashEmbedder(cfg.Dimensions)
	switch cfg.Provider {
	case "hash":
		return hash, nil
	case "openai":
		primary := NewHTTPEmbedder(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.Dimensions, cfg.Timeout, logger)
		return NewFallbackEmbedder(primary, hash, logger), nil
	case "gemini":
		g, err := NewGeminiClient(ctx, cfg.APIKey, "", cfg.BaseURL, logger)
		if err != nil {
			return nil, err
		}
		return NewFallbackEmbedder(g.WithEmbedding(cfg.Model, cfg.Dimensions), hash, logger), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

// HashEmbedder is a deterministic bag-of-words embedding (signed feature hashing, L2 normalised).
type HashEmbedder struct {
	dims int
}

func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = 256
	}
	return &HashEmbedder{dims: dims}
}

func (h *HashEmbedder) Dimensions() int { return h.dims }

func (h *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, h.dims)
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, tok := range tokens {
		f := fnv.New64a()
		_, _ = f.Write([]byte(tok))
		sum := f.Sum64()
		idx := int(sum % uint64(h.dims))
		if sum>>63 == 1 {
			vec[idx] -= 1
		} else {
			vec[idx] += 1
		}
	}
	normalize(vec)
	return vec, nil
}

func normalize(vec []float32) {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= inv
	}
}

// HTTPEmbedder calls an OpenAI-compatible /embeddings endpoint.
type HTTPEmbedder struct {
	baseURL    string
	apiKey     string
	model      string
	dims       int
	httpClient *http.Client
	cb         *circuitbreaker.CircuitBreaker
}

func NewHTTPEmbedder(baseURL, apiKey, model string, dims int, timeout time.Duration, logger *zap.Logger) *HTTPEmbedder {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPEmbedder{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		dims:       dims,
		httpClient: &http.Client{Timeout: timeout},
		cb:         newBreaker("llm.embeddings", logger),
	}
}

func (e *HTTPEmbedder) Dimensions() int { return e.dims }

type embeddingRequest struct {
	Model      string `json:"model"`
	Input      string `json:"input"`
	Dimensions int    `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	err := e.cb.ExecuteContext(ctx, func(ctx context.Context) error {
		body, err := json.Marshal(embeddingRequest{Model: e.model, Input: text, Dimensions: e.dims})
		if err != nil {
			return err
		}
		data, err := postJSON(ctx, e.httpClient, e.baseURL+"/embeddings", e.apiKey, body, "/embeddings")
		if err != nil {
			return err
		}
		var resp embeddingResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			return fmt.Errorf("%w: decode embeddings: %v", ErrProvider, err)
		}
		if len(resp.Data) == 0 {
			return fmt.Errorf("%w: no embedding returned", ErrProvider)
		}
		vec = resp.Data[0].Embedding
		return nil
	})
	return vec, err
}

// DegradableEmbedder reports when a vector came from the fallback model rather than the
// configured one. Such vectors live in a different space and should be re-embedded later.
type DegradableEmbedder interface {
	EmbedDetailed(ctx context.Context, text string) (vec []float32, degraded bool, err error)
}

// FallbackEmbedder uses primary and falls back on error or dimension mismatch.
type FallbackEmbedder struct {
	primary  Embedder
	fallback Embedder
	logger   *zap.Logger
}

func NewFallbackEmbedder(primary, fallback Embedder, logger *zap.Logger) *FallbackEmbedder {
	return &FallbackEmbedder{primary: primary, fallback: fallback, logger: logger}
}

func (f *FallbackEmbedder) Dimensions() int { return f.fallback.Dimensions() }

func (f *FallbackEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, _, err := f.EmbedDetailed(ctx, text)
	return vec, err
}

func (f *FallbackEmbedder) EmbedDetailed(ctx context.Context, text string) ([]float32, bool, error) {
	vec, err := f.primary.Embed(ctx, text)
	if err == nil && len(vec) == f.fallback.Dimensions() {
		return vec, false, nil
	}
	if err == nil {
		err = fmt.Errorf("dimension mismatch: got %d, want %d", len(vec), f.fallback.Dimensions())
	}
	if ctx.Err() != nil {
		return nil, false, ctx.Err()
	}
	metrics.IncrementEmbeddingFallback()
	f.logger.Warn("embedding provider failed, using hash embedding", zap.Error(err))
	vec, err = f.fallback.Embed(ctx, text)
	return vec, err == nil, err
}
