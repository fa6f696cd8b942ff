package gmail

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ezmail/internal/apperr"
	"ezmail/pkg/config"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(config.GmailConfig{BaseURL: srv.URL, QPS: 1000, Burst: 100, MaxRetries: 2},
		srv.Client(), zap.NewNop(), WithBackoffBase(time.Millisecond))
}

func TestListMessageIDsFollowsPages(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "/users/me/messages", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("pageToken") == "" {
			_, _ = w.Write([]byte(`{"messages":[{"id":"m1"},{"id":"m2"}],"nextPageToken":"p2"}`))
			return
		}
		_, _ = w.Write([]byte(`{"messages":[{"id":"m3"},{"id":"m4"}]}`))
	})

	refs, err := c.ListMessageIDs(context.Background(), "tok", 3)
	require.NoError(t, err)
	require.Len(t, refs, 3)
	assert.Equal(t, "m3", refs[2].ID)
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, `{}`, apperr.ErrAuth},
		{"forbidden", http.StatusForbidden, `{"error":{"message":"insufficient scope"}}`, apperr.ErrPermission},
		{"quota", http.StatusForbidden, `{"error":{"errors":[{"reason":"rateLimitExceeded"}]}}`, apperr.ErrTransport},
		{"not found", http.StatusNotFound, `{}`, apperr.ErrNotFound},
		{"server", http.StatusServiceUnavailable, `{}`, apperr.ErrTransport},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			_, err := c.ListMessageIDs(context.Background(), "tok", 10)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"id":"m1","threadId":"t1","labelIds":["INBOX"],"payload":{"mimeType":"text/plain"}}`))
	})

	msg, err := c.GetMessage(context.Background(), "tok", "m1")
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, "t1", msg.ThreadID)
	assert.NotEmpty(t, msg.Raw)
}

func TestNetworkErrorIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(config.GmailConfig{BaseURL: url, MaxRetries: 1}, nil, zap.NewNop(), WithBackoffBase(time.Millisecond))
	_, err := c.ListMessageIDs(context.Background(), "tok", 1)
	assert.ErrorIs(t, err, apperr.ErrTransport)
}
