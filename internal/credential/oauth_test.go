package credential

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ezmail/internal/apperr"
	"ezmail/pkg/config"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *OAuthProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOAuthProvider(config.OAuthConfig{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost/oauth/callback",
		AuthURL:      srv.URL + "/auth",
		TokenURL:     srv.URL + "/token",
		Scopes:       []string{"https://www.googleapis.com/auth/gmail.readonly"},
	}, srv.Client())
}

func TestRenewParsesToken(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "rt", r.PostForm.Get("refresh_token"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"fresh","token_type":"Bearer","expires_in":3600}`))
	})

	tok, err := p.Renew(context.Background(), "rt")
	require.NoError(t, err)
	assert.Equal(t, "fresh", tok.AccessToken)
	assert.False(t, tok.Expiry.IsZero())
}

func TestRenewInvalidGrantIsAuthError(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	})

	_, err := p.Renew(context.Background(), "rt")
	assert.ErrorIs(t, err, apperr.ErrAuth)
}

func TestRenewServerErrorIsTransport(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := p.Renew(context.Background(), "rt")
	assert.ErrorIs(t, err, apperr.ErrTransport)
}

func TestAuthCodeURLRequestsOfflineAccess(t *testing.T) {
	p := newTestProvider(t, func(http.ResponseWriter, *http.Request) {})
	u := p.AuthCodeURL("state-123")
	assert.True(t, strings.Contains(u, "access_type=offline"))
	assert.True(t, strings.Contains(u, "state=state-123"))
	assert.True(t, strings.Contains(u, "prompt=consent"))
}
