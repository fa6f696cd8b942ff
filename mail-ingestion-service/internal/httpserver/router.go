package httpserver

import (
	"go.uber.org/zap"

	"ezmail/internal/httpserver"
	"ezmail/mail-ingestion-service/internal/handler"
	"ezmail/pkg/middleware"
	"ezmail/pkg/rbac"
)

func NewRouter(
	ingestHandler *handler.IngestHandler,
	oauthHandler *handler.OAuthHandler,
	jwtSecret string,
	logger *zap.Logger,
) *httpserver.Router {
	router := httpserver.NewRouter(logger)
	r := router.Engine

	// Public：OAuth 回调由 provider 重定向过来，没有 bearer token
	r.GET("/oauth/callback", oauthHandler.Callback)

	// Protected
	auth := r.Group("/")
	auth.Use(middleware.AuthMiddleware(jwtSecret))
	{
		auth.POST("/fetch", middleware.RequirePermission(rbac.PermissionFetchMail), ingestHandler.Fetch)
		auth.GET("/oauth/connect", middleware.RequirePermission(rbac.PermissionConnectMail), oauthHandler.Connect)
		auth.DELETE("/credentials", middleware.RequirePermission(rbac.PermissionConnectMail), oauthHandler.Disconnect)
	}

	return router
}
