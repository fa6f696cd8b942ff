package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"ezmail/pkg/circuitbreaker"
	"ezmail/pkg/metrics"
)

// GeminiClient implements Completer and Embedder over the Gemini API.
type GeminiClient struct {
	client     *genai.Client
	model      string
	embedModel string
	dims       int
	cb         *circuitbreaker.CircuitBreaker
}

// NewGeminiClient creates a client. baseURL is optional and only used by tests and proxies.
func NewGeminiClient(ctx context.Context, apiKey, model, baseURL string, logger *zap.Logger) (*GeminiClient, error) {
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiClient{
		client: client,
		model:  model,
		cb:     newBreaker("llm.gemini", logger),
	}, nil
}

// WithEmbedding 配置向量模型和维度
func (g *GeminiClient) WithEmbedding(model string, dims int) *GeminiClient {
	g.embedModel = model
	g.dims = dims
	return g
}

func (g *GeminiClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	var out string
	err := g.cb.ExecuteContext(ctx, func(ctx context.Context) error {
		start := time.Now()
		temperature := float32(0.2)
		resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: system}}},
			Temperature:       &temperature,
		})
		if err != nil {
			metrics.RecordLLMCallLatency("gemini.generate", "error", time.Since(start))
			return fmt.Errorf("gemini generate: %w", err)
		}
		metrics.RecordLLMCallLatency("gemini.generate", "success", time.Since(start))

		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			return fmt.Errorf("%w: gemini returned no candidates", ErrProvider)
		}
		var b strings.Builder
		for _, part := range resp.Candidates[0].Content.Parts {
			if part != nil && part.Text != "" {
				b.WriteString(part.Text)
			}
		}
		out = b.String()
		return nil
	})
	return out, err
}

func (g *GeminiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	err := g.cb.ExecuteContext(ctx, func(ctx context.Context) error {
		start := time.Now()
		var cfg *genai.EmbedContentConfig
		if g.dims > 0 {
			d := int32(g.dims)
			cfg = &genai.EmbedContentConfig{OutputDimensionality: &d}
		}
		resp, err := g.client.Models.EmbedContent(ctx, g.embedModel, genai.Text(text), cfg)
		if err != nil {
			metrics.RecordLLMCallLatency("gemini.embed", "error", time.Since(start))
			return fmt.Errorf("gemini embed: %w", err)
		}
		metrics.RecordLLMCallLatency("gemini.embed", "success", time.Since(start))
		if len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
			return fmt.Errorf("%w: gemini returned no embeddings", ErrProvider)
		}
		vec = resp.Embeddings[0].Values
		return nil
	})
	return vec, err
}

func (g *GeminiClient) Dimensions() int { return g.dims }
