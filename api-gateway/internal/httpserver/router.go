package httpserver

import (
	"go.uber.org/zap"

	"ezmail/api-gateway/internal/handler"
	"ezmail/internal/httpserver"
	"ezmail/pkg/middleware"
	"ezmail/pkg/rbac"
)

// NewRouter 的 adminHandler 可为 nil（broker 不可用时不暴露重放接口）
func NewRouter(
	searchHandler *handler.SearchHandler,
	snoozeHandler *handler.SnoozeHandler,
	adminHandler *handler.AdminHandler,
	jwtSecret string,
	logger *zap.Logger,
) *httpserver.Router {
	router := httpserver.NewRouter(logger)
	r := router.Engine

	// Protected
	auth := r.Group("/")
	auth.Use(middleware.AuthMiddleware(jwtSecret))
	{
		auth.GET("/search", middleware.RequirePermission(rbac.PermissionSearch), searchHandler.Search)
		auth.POST("/items/:id/snooze", middleware.RequirePermission(rbac.PermissionSnooze), snoozeHandler.Snooze)
		auth.DELETE("/items/:id/snooze", middleware.RequirePermission(rbac.PermissionSnooze), snoozeHandler.Unsnooze)
	}

	if adminHandler != nil {
		admin := auth.Group("/admin", middleware.RequirePermission(rbac.PermissionReplayOutbox))
		admin.POST("/outbox/replay", adminHandler.ReplayOutboxEvent)
		admin.POST("/outbox/replay-failed", adminHandler.ReplayFailedEvents)
	}

	return router
}
