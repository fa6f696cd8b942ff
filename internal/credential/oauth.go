package credential

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"ezmail/internal/apperr"
	"ezmail/pkg/config"
)

// OAuthProvider wraps the OAuth2 client used for consent, code exchange and renewal.
type OAuthProvider struct {
	config     *oauth2.Config
	httpClient *http.Client
}

func NewOAuthProvider(cfg config.OAuthConfig, httpClient *http.Client) *OAuthProvider {
	endpoint := google.Endpoint
	if cfg.AuthURL != "" || cfg.TokenURL != "" {
		endpoint = oauth2.Endpoint{
			AuthURL:   cfg.AuthURL,
			TokenURL:  cfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		}
	}
	return &OAuthProvider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint:     endpoint,
		},
		httpClient: httpClient,
	}
}

// AuthCodeURL 生成授权链接，强制 offline + consent 以拿到 refresh token
func (p *OAuthProvider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for tokens.
func (p *OAuthProvider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := p.config.Exchange(p.withClient(ctx), code)
	if err != nil {
		return nil, mapOAuthError("exchange code", err)
	}
	return token, nil
}

// Renew refreshes an access token from a refresh token.
func (p *OAuthProvider) Renew(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("empty refresh token: %w", apperr.ErrAuth)
	}
	src := p.config.TokenSource(p.withClient(ctx), &oauth2.Token{RefreshToken: refreshToken})
	token, err := src.Token()
	if err != nil {
		return nil, mapOAuthError("refresh token", err)
	}
	return token, nil
}

func (p *OAuthProvider) withClient(ctx context.Context) context.Context {
	if p.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

func mapOAuthError(op string, err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		if re.Response != nil && re.Response.StatusCode >= 500 {
			return fmt.Errorf("%s: %w: %v", op, apperr.ErrTransport, err)
		}
		return fmt.Errorf("%s: %w: %v", op, apperr.ErrAuth, err)
	}
	return fmt.Errorf("%s: %w: %v", op, apperr.ErrTransport, err)
}
