// Package llm wraps the summarization, metadata and embedding providers.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"ezmail/pkg/circuitbreaker"
	"ezmail/pkg/config"
)

// ErrProvider wraps non-retryable provider responses (4xx, empty choices).
var ErrProvider = errors.New("llm provider error")

// Completer turns a system + user prompt into free-form model output.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// NewCompleter builds the completer selected by cfg.Provider.
func NewCompleter(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (Completer, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIClient(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.Timeout, logger), nil
	case "gemini":
		return NewGeminiClient(ctx, cfg.APIKey, cfg.Model, cfg.BaseURL, logger)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// newBreaker 连续 3 次失败后熔断 30 秒
func newBreaker(name string, logger *zap.Logger) *circuitbreaker.CircuitBreaker {
	return circuitbreaker.NewCircuitBreaker(circuitbreaker.Config{
		Name:                name,
		FailureThreshold:    3,
		SuccessThreshold:    2,
		Timeout:             30 * time.Second,
		HalfOpenMaxRequests: 2,
		OnStateChange: func(breaker string, from, to circuitbreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", breaker),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
}
