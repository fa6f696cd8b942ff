package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ezmail/internal/fetch"
	"ezmail/pkg/middleware"
)

// Fetcher is satisfied by *fetch.Service.
type Fetcher interface {
	FetchAndStore(ctx context.Context, ownerID int64, maxItems int) (*fetch.Result, error)
}

type IngestHandler struct {
	fetcher Fetcher
	logger  *zap.Logger
}

func NewIngestHandler(fetcher Fetcher, logger *zap.Logger) *IngestHandler {
	return &IngestHandler{fetcher: fetcher, logger: logger}
}

type fetchRequest struct {
	MaxItems int `json:"max_items" binding:"omitempty,min=1,max=500"`
}

// Fetch handles POST /fetch
func (h *IngestHandler) Fetch(c *gin.Context) {
	ownerID, ok := middleware.OwnerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	var req fetchRequest
	// body 可以为空，使用默认 max_items
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	res, err := h.fetcher.FetchAndStore(c.Request.Context(), ownerID, req.MaxItems)
	if err != nil {
		middleware.RespondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
