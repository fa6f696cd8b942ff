package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"ezmail/pkg/logger"
	"ezmail/pkg/middleware"
	"ezmail/pkg/util"
)

const stateTTL = 10 * time.Minute

// Provider is satisfied by *credential.OAuthProvider.
type Provider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
}

// Credentials is satisfied by *credential.Manager.
type Credentials interface {
	Save(ctx context.Context, ownerID int64, refreshToken, accessToken string, expiry time.Time) error
	Delete(ctx context.Context, ownerID int64) error
}

type OAuthHandler struct {
	provider    Provider
	credentials Credentials
	jwtSecret   string
	logger      *zap.Logger
}

func NewOAuthHandler(provider Provider, credentials Credentials, jwtSecret string, logger *zap.Logger) *OAuthHandler {
	return &OAuthHandler{provider: provider, credentials: credentials, jwtSecret: jwtSecret, logger: logger}
}

// Connect handles GET /oauth/connect and returns the consent URL.
// state 是短期 JWT，回调时用来找回 owner
func (h *OAuthHandler) Connect(c *gin.Context) {
	ownerID, ok := middleware.OwnerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}
	state, err := util.GenerateJWT(ownerID, util.PurposeOAuthState, h.jwtSecret, stateTTL)
	if err != nil {
		middleware.RespondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": h.provider.AuthCodeURL(state)})
}

// Callback handles GET /oauth/callback?code=&state=
func (h *OAuthHandler) Callback(c *gin.Context) {
	if reason := c.Query("error"); reason != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "authorization denied: " + reason})
		return
	}
	code, state := c.Query("code"), c.Query("state")
	if code == "" || state == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing code or state"})
		return
	}

	ownerID, err := util.ParseJWT(state, util.PurposeOAuthState, h.jwtSecret)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid state"})
		return
	}

	ctx := c.Request.Context()
	tok, err := h.provider.Exchange(ctx, code)
	if err != nil {
		middleware.RespondError(c, h.logger, err)
		return
	}
	if err := h.credentials.Save(ctx, ownerID, tok.RefreshToken, tok.AccessToken, tok.Expiry); err != nil {
		middleware.RespondError(c, h.logger, err)
		return
	}

	logger.WithTrace(ctx, h.logger).Info("mailbox connected", zap.Int64("owner_id", ownerID))
	c.JSON(http.StatusOK, gin.H{"status": "connected", "owner_id": ownerID})
}

// Disconnect handles DELETE /credentials
func (h *OAuthHandler) Disconnect(c *gin.Context) {
	ownerID, ok := middleware.OwnerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}
	if err := h.credentials.Delete(c.Request.Context(), ownerID); err != nil {
		middleware.RespondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
