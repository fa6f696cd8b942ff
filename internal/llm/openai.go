package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"ezmail/internal/apperr"
	"ezmail/pkg/circuitbreaker"
	"ezmail/pkg/metrics"
	"ezmail/pkg/trace"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// OpenAIClient calls an OpenAI-compatible /chat/completions endpoint.
type OpenAIClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	cb         *circuitbreaker.CircuitBreaker
}

func NewOpenAIClient(baseURL, apiKey, model string, timeout time.Duration, logger *zap.Logger) *OpenAIClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OpenAIClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		cb:         newBreaker("llm.chat", logger),
	}
}

func (c *OpenAIClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	var content string
	err := c.cb.ExecuteContext(ctx, func(ctx context.Context) error {
		body, err := json.Marshal(chatRequest{
			Model: c.model,
			Messages: []chatMessage{
				{Role: "system", Content: system},
				{Role: "user", Content: prompt},
			},
			Temperature: 0.2,
		})
		if err != nil {
			return err
		}
		data, err := postJSON(ctx, c.httpClient, c.baseURL+"/chat/completions", c.apiKey, body, "/chat/completions")
		if err != nil {
			return err
		}

		var resp chatResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			return fmt.Errorf("%w: decode chat response: %v", ErrProvider, err)
		}
		if resp.Error != nil {
			return fmt.Errorf("%w: %s", ErrProvider, resp.Error.Message)
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("%w: no choices", ErrProvider)
		}
		content = resp.Choices[0].Message.Content
		return nil
	})
	return content, err
}

// postJSON 发送请求并记录延迟；5xx / 429 / 网络错误归为 transport
func postJSON(ctx context.Context, client *http.Client, url, apiKey string, body []byte, endpoint string) ([]byte, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	if traceID := trace.FromContext(ctx); traceID != "" {
		req.Header.Set(trace.HeaderName(), traceID)
	}

	resp, err := client.Do(req)
	if err != nil {
		metrics.RecordLLMCallLatency(endpoint, "error", time.Since(start))
		return nil, fmt.Errorf("%s: %w: %v", endpoint, apperr.ErrTransport, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.RecordLLMCallLatency(endpoint, "error", time.Since(start))
		return nil, fmt.Errorf("%s: read body: %w: %v", endpoint, apperr.ErrTransport, err)
	}

	status := "success"
	defer func() { metrics.RecordLLMCallLatency(endpoint, status, time.Since(start)) }()
	switch {
	case resp.StatusCode >= 500, resp.StatusCode == http.StatusTooManyRequests:
		status = fmt.Sprintf("%d", resp.StatusCode)
		return nil, fmt.Errorf("%s: status %d: %w", endpoint, resp.StatusCode, apperr.ErrTransport)
	case resp.StatusCode != http.StatusOK:
		status = fmt.Sprintf("%d", resp.StatusCode)
		return nil, fmt.Errorf("%w: %s status %d: %s", ErrProvider, endpoint, resp.StatusCode, truncate(string(data), 200))
	}
	return data, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
