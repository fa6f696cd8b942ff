package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ezmail/pkg/middleware"
)

// Snoozer is satisfied by *snooze.Service.
type Snoozer interface {
	Snooze(ctx context.Context, ownerID, itemID int64, until time.Time) error
	Unsnooze(ctx context.Context, ownerID, itemID int64) error
}

type SnoozeHandler struct {
	snoozer Snoozer
	logger  *zap.Logger
}

func NewSnoozeHandler(snoozer Snoozer, logger *zap.Logger) *SnoozeHandler {
	return &SnoozeHandler{snoozer: snoozer, logger: logger}
}

type snoozeRequest struct {
	Until time.Time `json:"until" binding:"required"`
}

func itemParams(c *gin.Context) (ownerID, itemID int64, ok bool) {
	ownerID, ok = middleware.OwnerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return 0, 0, false
	}
	itemID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || itemID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid item id"})
		return 0, 0, false
	}
	return ownerID, itemID, true
}

// Snooze handles POST /items/:id/snooze
func (h *SnoozeHandler) Snooze(c *gin.Context) {
	ownerID, itemID, ok := itemParams(c)
	if !ok {
		return
	}

	var req snoozeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "until must be an RFC3339 timestamp"})
		return
	}

	if err := h.snoozer.Snooze(c.Request.Context(), ownerID, itemID, req.Until); err != nil {
		middleware.RespondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":       "deferred",
		"item_id":      itemID,
		"snooze_until": req.Until.UTC(),
	})
}

// Unsnooze handles DELETE /items/:id/snooze
func (h *SnoozeHandler) Unsnooze(c *gin.Context) {
	ownerID, itemID, ok := itemParams(c)
	if !ok {
		return
	}
	if err := h.snoozer.Unsnooze(c.Request.Context(), ownerID, itemID); err != nil {
		middleware.RespondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
