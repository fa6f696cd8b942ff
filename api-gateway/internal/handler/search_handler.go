package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ezmail/internal/search"
	"ezmail/pkg/middleware"
)

// Searcher is satisfied by *search.Service.
type Searcher interface {
	Search(ctx context.Context, ownerID int64, query string, limit int) ([]search.Result, error)
}

type SearchHandler struct {
	searcher Searcher
	logger   *zap.Logger
}

func NewSearchHandler(searcher Searcher, logger *zap.Logger) *SearchHandler {
	return &SearchHandler{searcher: searcher, logger: logger}
}

type searchQuery struct {
	Q     string `form:"q" binding:"required"`
	Limit int    `form:"limit" binding:"omitempty,min=1"`
}

// Search handles GET /search?q=&limit=
func (h *SearchHandler) Search(c *gin.Context) {
	ownerID, ok := middleware.OwnerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	var q searchQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid query"})
		return
	}

	results, err := h.searcher.Search(c.Request.Context(), ownerID, q.Q, q.Limit)
	if err != nil {
		middleware.RespondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"query":   q.Q,
		"count":   len(results),
		"results": results,
	})
}
