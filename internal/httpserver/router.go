// Package httpserver builds the gin engine every service exposes: health
// checks, prometheus metrics and the shared middleware chain.
package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"ezmail/pkg/middleware"
)

// ReadinessCheck returns nil when a dependency is usable.
type ReadinessCheck func(ctx context.Context) error

type Router struct {
	Engine *gin.Engine
	checks map[string]ReadinessCheck
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.Trace(), middleware.Metrics(), middleware.AccessLog(logger))

	router := &Router{Engine: r, checks: map[string]ReadinessCheck{}, logger: logger}

	// Health endpoints (放在最前面)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/readyz", router.ready)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}

// AddCheck registers a dependency checked by /readyz.
func (r *Router) AddCheck(name string, check ReadinessCheck) {
	r.checks[name] = check
}

func (r *Router) ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
	defer cancel()

	for name, check := range r.checks {
		if err := check(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": name + "_not_ready", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (r *Router) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           r.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		r.logger.Info("http server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
