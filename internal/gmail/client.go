// Package gmail is a minimal Gmail REST client plus the message parser used by the fetcher.
package gmail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"ezmail/internal/apperr"
	"ezmail/pkg/config"
	"ezmail/pkg/metrics"
)

const (
	DefaultBaseURL = "https://gmail.googleapis.com/gmail/v1"
	maxPageSize    = 500
	maxBackoff     = 10 * time.Second
)

// Client talks to the Gmail API on behalf of whichever owner's token is passed in.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	limiter     *rate.Limiter
	maxRetries  int
	backoffBase time.Duration
	logger      *zap.Logger
}

type Option func(*Client)

// WithBackoffBase 测试里用来缩短重试等待
func WithBackoffBase(d time.Duration) Option {
	return func(c *Client) { c.backoffBase = d }
}

func NewClient(cfg config.GmailConfig, httpClient *http.Client, logger *zap.Logger, opts ...Option) *Client {
	if httpClient == nil {
		timeout := cfg.RequestTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	qps := cfg.QPS
	if qps <= 0 {
		qps = 5
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 10
	}
	c := &Client{
		httpClient:  httpClient,
		baseURL:     cfg.BaseURL,
		limiter:     rate.NewLimiter(rate.Limit(qps), burst),
		maxRetries:  cfg.MaxRetries,
		backoffBase: 500 * time.Millisecond,
		logger:      logger,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.maxRetries <= 0 {
		c.maxRetries = 3
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListMessageIDs returns up to max message refs, newest first, following nextPageToken.
func (c *Client) ListMessageIDs(ctx context.Context, token string, max int) ([]MessageRef, error) {
	var refs []MessageRef
	pageToken := ""
	for max <= 0 || len(refs) < max {
		params := url.Values{}
		size := maxPageSize
		if max > 0 && max-len(refs) < size {
			size = max - len(refs)
		}
		params.Set("maxResults", strconv.Itoa(size))
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}

		data, err := c.request(ctx, "messages.list", token, "/users/me/messages?"+params.Encode())
		if err != nil {
			return nil, err
		}
		var page listMessagesResponse
		if err := json.Unmarshal(data, &page); err != nil {
			return nil, fmt.Errorf("parse message list: %w: %v", apperr.ErrValidation, err)
		}
		refs = append(refs, page.Messages...)
		if page.NextPageToken == "" || len(page.Messages) == 0 {
			break
		}
		pageToken = page.NextPageToken
	}
	if max > 0 && len(refs) > max {
		refs = refs[:max]
	}
	return refs, nil
}

// GetMessage fetches one message in format=full. The raw response body is kept on Message.Raw.
func (c *Client) GetMessage(ctx context.Context, token, id string) (*Message, error) {
	data, err := c.request(ctx, "messages.get", token, "/users/me/messages/"+url.PathEscape(id)+"?format=full")
	if err != nil {
		return nil, err
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("parse message %s: %w: %v", id, apperr.ErrValidation, err)
	}
	msg.Raw = json.RawMessage(data)
	return &msg, nil
}

// request 带限流和重试；429 / 5xx / 配额 403 / 网络错误会重试
func (c *Client) request(ctx context.Context, op, token, path string) ([]byte, error) {
	start := time.Now()
	data, err := c.doWithRetry(ctx, op, token, path)
	status := "success"
	if err != nil {
		status = apperr.Kind(err)
	}
	metrics.RecordSourceCallLatency(op, status, time.Since(start))
	return data, err
}

func (c *Client) doWithRetry(ctx context.Context, op, token, path string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w: %v", apperr.ErrTransport, err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.backoff(attempt)
			c.logger.Debug("retrying gmail request",
				zap.String("op", op),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
			)
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%s: %w: %v", op, apperr.ErrTransport, ctx.Err())
			case <-time.After(backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("%s: %w: %v", op, apperr.ErrTransport, err)
			if ctx.Err() != nil {
				return nil, lastErr
			}
			continue
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("%s: read body: %w: %v", op, apperr.ErrTransport, err)
			continue
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return body, nil
		case resp.StatusCode == http.StatusUnauthorized:
			return nil, fmt.Errorf("%s: unauthorized (401): %w", op, apperr.ErrAuth)
		case resp.StatusCode == http.StatusForbidden:
			if isRateLimitError(body) {
				lastErr = fmt.Errorf("%s: quota exceeded (403): %w", op, apperr.ErrTransport)
				continue
			}
			return nil, fmt.Errorf("%s: forbidden (403): %w", op, apperr.ErrPermission)
		case resp.StatusCode == http.StatusNotFound:
			return nil, fmt.Errorf("%s: %w", op, apperr.ErrNotFound)
		case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
			lastErr = fmt.Errorf("%s: status %d: %w", op, resp.StatusCode, apperr.ErrTransport)
			continue
		default:
			return nil, fmt.Errorf("%s: status %d: %w", op, resp.StatusCode, apperr.ErrValidation)
		}
	}
	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// backoff 指数退避 + full jitter
func (c *Client) backoff(attempt int) time.Duration {
	d := c.backoffBase << uint(attempt-1)
	if d <= 0 || d > maxBackoff {
		d = maxBackoff
	}
	return time.Duration(rand.Int63n(int64(d)) + 1)
}

func isRateLimitError(body []byte) bool {
	return bytes.Contains(body, []byte("rateLimitExceeded")) ||
		bytes.Contains(body, []byte("RATE_LIMIT_EXCEEDED")) ||
		bytes.Contains(body, []byte("userRateLimitExceeded")) ||
		bytes.Contains(body, []byte("Quota exceeded"))
}
