package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ezmail/internal/apperr"
	"ezmail/pkg/rbac"
	"ezmail/pkg/trace"
	"ezmail/pkg/util"
)

const secret = "middleware-test-secret"

func newEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Trace(), Metrics())
	auth := r.Group("/")
	auth.Use(AuthMiddleware(secret))
	auth.GET("/me", func(c *gin.Context) {
		id, _ := OwnerID(c)
		c.JSON(http.StatusOK, gin.H{"owner_id": id, "trace": trace.FromContext(c.Request.Context())})
	})
	auth.POST("/admin", RequirePermission(rbac.PermissionReplayOutbox), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return r
}

func bearer(t *testing.T, owner int64, role, purpose string) string {
	t.Helper()
	tok, err := util.GenerateJWTWithRole(owner, role, purpose, secret, time.Hour)
	require.NoError(t, err)
	return "Bearer " + tok
}

func TestAuthMiddleware(t *testing.T) {
	r := newEngine()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", bearer(t, 7, "", util.PurposeOAuthState))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "state tokens are not access tokens")

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", bearer(t, 7, "", util.PurposeAccess))
	req.Header.Set(trace.HeaderName(), "trace-abc")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"owner_id":7,"trace":"trace-abc"}`, w.Body.String())
	assert.Equal(t, "trace-abc", w.Header().Get(trace.HeaderName()))
}

func TestRequirePermission(t *testing.T) {
	r := newEngine()

	req := httptest.NewRequest(http.MethodPost, "/admin", nil)
	req.Header.Set("Authorization", bearer(t, 7, rbac.RoleUser, util.PurposeAccess))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/admin", nil)
	req.Header.Set("Authorization", bearer(t, 1, rbac.RoleAdmin, util.PurposeAccess))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestTraceGeneratesID(t *testing.T) {
	w := httptest.NewRecorder()
	newEngine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	assert.Len(t, w.Header().Get(trace.HeaderName()), 32)
}

func TestRespondError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		err    error
		status int
		reauth bool
	}{
		{fmt.Errorf("owner 1: %w", apperr.ErrReAuthRequired), http.StatusUnauthorized, true},
		{fmt.Errorf("q: %w", apperr.ErrValidation), http.StatusBadRequest, false},
		{fmt.Errorf("id: %w", apperr.ErrNotFound), http.StatusNotFound, false},
		{errors.New("boom"), http.StatusInternalServerError, false},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		RespondError(c, zap.NewNop(), tc.err)
		assert.Equal(t, tc.status, w.Code)
		assert.Contains(t, w.Body.String(), fmt.Sprintf(`"reauth_required":%t`, tc.reauth))
	}
}
