package credential

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"ezmail/contracts/db"
	"ezmail/internal/apperr"
	"ezmail/internal/testutil/memstore"
)

type fakeRenewer struct {
	calls atomic.Int32
	delay time.Duration
	err   error
	now   time.Time
}

func (f *fakeRenewer) Renew(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &oauth2.Token{AccessToken: "renewed-" + refreshToken, Expiry: f.now.Add(time.Hour)}, nil
}

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newManager(t *testing.T, store Store, r Renewer) *Manager {
	t.Helper()
	return NewManager(store, r, zap.NewNop(), Options{Now: func() time.Time { return testNow }})
}

func seed(t *testing.T, store *memstore.Store, expiry time.Time) {
	t.Helper()
	require.NoError(t, store.UpsertCredential(context.Background(), &db.Credential{
		OwnerID: 7, RefreshToken: "rt", AccessToken: "cached", Expiry: expiry,
	}))
}

func TestReturnsCachedTokenOutsideMargin(t *testing.T) {
	store := memstore.New()
	seed(t, store, testNow.Add(10*time.Minute))
	r := &fakeRenewer{now: testNow}

	tok, err := newManager(t, store, r).GetValidAccessToken(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "cached", tok)
	assert.Zero(t, r.calls.Load())
}

func TestRenewsInsideMargin(t *testing.T) {
	store := memstore.New()
	seed(t, store, testNow.Add(4*time.Minute))
	r := &fakeRenewer{now: testNow}

	tok, err := newManager(t, store, r).GetValidAccessToken(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "renewed-rt", tok)

	cred, err := store.GetCredential(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "renewed-rt", cred.AccessToken)
	assert.Equal(t, "rt", cred.RefreshToken)
}

func TestConcurrentCallersShareOneRenewal(t *testing.T) {
	store := memstore.New()
	seed(t, store, testNow.Add(-time.Minute))
	r := &fakeRenewer{now: testNow, delay: 50 * time.Millisecond}
	m := newManager(t, store, r)

	const n = 20
	var wg sync.WaitGroup
	tokens := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = m.GetValidAccessToken(context.Background(), 7)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), r.calls.Load())
	for i := 0; i < n; i++ {
		assert.NoError(t, errs[i])
		assert.Equal(t, "renewed-rt", tokens[i])
	}
}

func TestRenewalFailureDeletesCredential(t *testing.T) {
	store := memstore.New()
	seed(t, store, testNow.Add(-time.Minute))
	r := &fakeRenewer{now: testNow, err: errors.New("invalid_grant")}
	m := newManager(t, store, r)

	_, err := m.GetValidAccessToken(context.Background(), 7)
	assert.ErrorIs(t, err, apperr.ErrReAuthRequired)
	assert.ErrorIs(t, err, apperr.ErrAuth)

	_, err = store.GetCredential(context.Background(), 7)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	// 第二次调用直接要求重新授权，不再续期
	_, err = m.GetValidAccessToken(context.Background(), 7)
	assert.ErrorIs(t, err, apperr.ErrReAuthRequired)
	assert.Equal(t, int32(1), r.calls.Load())
}

func TestMissingCredential(t *testing.T) {
	_, err := newManager(t, memstore.New(), &fakeRenewer{}).GetValidAccessToken(context.Background(), 9)
	assert.ErrorIs(t, err, apperr.ErrReAuthRequired)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, "reauth_required", apperr.Kind(err))
}

func TestWaiterCancellationDoesNotAbortRenewal(t *testing.T) {
	store := memstore.New()
	seed(t, store, testNow.Add(-time.Minute))
	r := &fakeRenewer{now: testNow, delay: 50 * time.Millisecond}
	m := newManager(t, store, r)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	_, err := m.GetValidAccessToken(ctx, 7)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	tok, err := m.GetValidAccessToken(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "renewed-rt", tok)
	assert.Equal(t, int32(1), r.calls.Load())
}

func TestSaveKeepsRefreshToken(t *testing.T) {
	store := memstore.New()
	m := newManager(t, store, &fakeRenewer{})
	ctx := context.Background()

	err := m.Save(ctx, 7, "", "at", testNow.Add(time.Hour))
	assert.ErrorIs(t, err, apperr.ErrValidation)

	require.NoError(t, m.Save(ctx, 7, "rt-1", "at-1", testNow.Add(time.Hour)))
	require.NoError(t, m.Save(ctx, 7, "", "at-2", testNow.Add(2*time.Hour)))

	cred, err := store.GetCredential(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "rt-1", cred.RefreshToken)
	assert.Equal(t, "at-2", cred.AccessToken)

	require.NoError(t, m.Delete(ctx, 7))
	_, err = store.GetCredential(ctx, 7)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
