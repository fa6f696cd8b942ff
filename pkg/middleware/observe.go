package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ezmail/internal/apperr"
	"ezmail/pkg/logger"
	"ezmail/pkg/metrics"
	"ezmail/pkg/trace"
)

// Trace 复用上游的 X-Trace-ID，没有就生成一个，并回写到响应头
func Trace() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if id := c.GetHeader(trace.HeaderName()); id != "" {
			ctx = trace.WithContext(ctx, id)
		} else {
			ctx = trace.Ensure(ctx)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Header(trace.HeaderName(), trace.FromContext(ctx))
		c.Next()
	}
}

// Metrics records latency by route template so ids don't explode label cardinality.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RecordHTTPRequestDuration(c.Request.Method, path, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

// AccessLog 记录每个请求，带 trace_id
func AccessLog(l *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.WithTrace(c.Request.Context(), l).Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

// RespondError 按错误分类返回 {"error", "reauth_required"}
func RespondError(c *gin.Context, l *zap.Logger, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logger.WithTrace(c.Request.Context(), l).Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("error_type", apperr.Kind(err)),
			zap.Error(err),
		)
	}
	c.JSON(status, gin.H{
		"error":           err.Error(),
		"reauth_required": apperr.NeedsReAuth(err),
	})
}
