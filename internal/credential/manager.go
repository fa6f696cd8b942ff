// Package credential keeps a usable Gmail access token per owner.
package credential

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"ezmail/contracts/db"
	"ezmail/internal/apperr"
	"ezmail/pkg/logger"
	"ezmail/pkg/metrics"
)

const (
	DefaultRefreshMargin = 5 * time.Minute
	DefaultRenewTimeout  = 15 * time.Second
)

// Store 持久化凭证。GetCredential 不存在时返回 apperr.ErrNotFound
type Store interface {
	GetCredential(ctx context.Context, ownerID int64) (*db.Credential, error)
	UpsertCredential(ctx context.Context, cred *db.Credential) error
	DeleteCredential(ctx context.Context, ownerID int64) error
}

// Renewer exchanges a refresh token for a fresh access token.
type Renewer interface {
	Renew(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

type Options struct {
	RefreshMargin time.Duration
	RenewTimeout  time.Duration
	Now           func() time.Time
}

// Manager hands out access tokens and renews them at most once per owner at a time.
type Manager struct {
	store   Store
	renewer Renewer
	logger  *zap.Logger

	margin       time.Duration
	renewTimeout time.Duration
	now          func() time.Time

	// key = ownerID，同一 owner 的并发续期共享一次调用
	flights singleflight.Group
}

func NewManager(store Store, renewer Renewer, logger *zap.Logger, opts Options) *Manager {
	m := &Manager{
		store:        store,
		renewer:      renewer,
		logger:       logger,
		margin:       opts.RefreshMargin,
		renewTimeout: opts.RenewTimeout,
		now:          opts.Now,
	}
	if m.margin <= 0 {
		m.margin = DefaultRefreshMargin
	}
	if m.renewTimeout <= 0 {
		m.renewTimeout = DefaultRenewTimeout
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// GetValidAccessToken returns the cached token when it outlives the refresh margin,
// otherwise renews it. Any renewal failure removes the credential and yields ErrReAuthRequired.
func (m *Manager) GetValidAccessToken(ctx context.Context, ownerID int64) (string, error) {
	cred, err := m.load(ctx, ownerID)
	if err != nil {
		return "", err
	}
	if m.fresh(cred) {
		return cred.AccessToken, nil
	}

	key := strconv.FormatInt(ownerID, 10)
	// 续期与首个调用方的取消解耦，避免一个断开的请求让所有等待者失败
	renewCtx := context.WithoutCancel(ctx)
	ch := m.flights.DoChan(key, func() (interface{}, error) {
		return m.renew(renewCtx, ownerID)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// Save stores a credential. An empty refresh token keeps the stored one.
func (m *Manager) Save(ctx context.Context, ownerID int64, refreshToken, accessToken string, expiry time.Time) error {
	if ownerID <= 0 {
		return fmt.Errorf("owner id %d: %w", ownerID, apperr.ErrValidation)
	}
	if refreshToken == "" {
		existing, err := m.store.GetCredential(ctx, ownerID)
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			return fmt.Errorf("first credential for owner %d has no refresh token: %w", ownerID, apperr.ErrValidation)
		case err != nil:
			return fmt.Errorf("load credential: %w", err)
		}
		refreshToken = existing.RefreshToken
	}

	return m.store.UpsertCredential(ctx, &db.Credential{
		OwnerID:      ownerID,
		RefreshToken: refreshToken,
		AccessToken:  accessToken,
		Expiry:       expiry,
	})
}

// Delete 断开授权
func (m *Manager) Delete(ctx context.Context, ownerID int64) error {
	return m.store.DeleteCredential(ctx, ownerID)
}

func (m *Manager) load(ctx context.Context, ownerID int64) (*db.Credential, error) {
	cred, err := m.store.GetCredential(ctx, ownerID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("owner %d has no credential: %w (%w)", ownerID, apperr.ErrReAuthRequired, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}
	return cred, nil
}

func (m *Manager) fresh(cred *db.Credential) bool {
	return cred.AccessToken != "" && cred.Expiry.Sub(m.now()) > m.margin
}

func (m *Manager) renew(parent context.Context, ownerID int64) (string, error) {
	ctx, cancel := context.WithTimeout(parent, m.renewTimeout)
	defer cancel()
	log := logger.WithTrace(ctx, m.logger).With(zap.Int64("owner_id", ownerID))

	// 重新读取：前一轮 flight 可能刚刚写入了新 token
	cred, err := m.load(ctx, ownerID)
	if err != nil {
		return "", err
	}
	if m.fresh(cred) {
		return cred.AccessToken, nil
	}

	token, err := m.renewer.Renew(ctx, cred.RefreshToken)
	if err != nil {
		metrics.IncrementCredentialRenewal("failed")
		log.Warn("credential renewal failed, removing credential",
			zap.String("error_type", apperr.Kind(err)),
			zap.Error(err),
		)
		if delErr := m.store.DeleteCredential(ctx, ownerID); delErr != nil {
			log.Error("failed to delete credential after renewal failure", zap.Error(delErr))
		}
		return "", fmt.Errorf("renew credential for owner %d: %w", ownerID, apperr.ErrReAuthRequired)
	}
	metrics.IncrementCredentialRenewal("success")

	refresh := cred.RefreshToken
	if token.RefreshToken != "" {
		refresh = token.RefreshToken
	}
	if err := m.store.UpsertCredential(ctx, &db.Credential{
		OwnerID:      ownerID,
		RefreshToken: refresh,
		AccessToken:  token.AccessToken,
		Expiry:       token.Expiry,
	}); err != nil {
		// token 仍然可用，下次调用会再续期
		log.Error("failed to persist renewed credential", zap.Error(err))
	}

	log.Info("credential renewed", zap.Time("expiry", token.Expiry))
	return token.AccessToken, nil
}
