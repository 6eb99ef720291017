package notification

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"challengehub-realtime-svc/src/internal/config"
	"challengehub-realtime-svc/src/internal/middleware"
	"challengehub-realtime-svc/src/internal/models"
	"challengehub-realtime-svc/src/internal/response"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type Handler interface {
	List(c *gin.Context)
	UnreadCount(c *gin.Context)
	MarkRead(c *gin.Context)
	MarkAllRead(c *gin.Context)
}

type handler struct {
	config  *config.Configuration
	service Service
}

func NewHandler(cfg *config.Configuration, service Service) Handler {
	return &handler{
		config:  cfg,
		service: service,
	}
}

func (h *handler) timeout(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), time.Duration(h.config.App.Timeout)*time.Second)
}

func (h *handler) List(c *gin.Context) {
	ctx, cancel := h.timeout(c)
	defer cancel()

	userID := middleware.UserIDFrom(c)
	page := parseIntParam(c, "page", 1)
	pageSize := parseIntParam(c, "pageSize", h.config.Notifications.DefaultPageSize)

	result, err := h.service.List(ctx, userID, page, pageSize)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *handler) UnreadCount(c *gin.Context) {
	ctx, cancel := h.timeout(c)
	defer cancel()

	count, err := h.service.UnreadCount(ctx, middleware.UserIDFrom(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"count": count})
}

func (h *handler) MarkRead(c *gin.Context) {
	ctx, cancel := h.timeout(c)
	defer cancel()

	var req MarkReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, fmt.Errorf("%w: %w", models.ErrInvalidParams, err))
		return
	}

	userID := middleware.UserIDFrom(c)
	result, err := h.service.MarkRead(ctx, userID, req.IDs)
	if err != nil {
		response.Error(c, err)
		return
	}

	logrus.WithFields(logrus.Fields{
		"user_id":      userID,
		"requested":    len(req.IDs),
		"updated":      result.Updated,
		"unread_count": result.UnreadCount,
	}).Info("MarkRead completed successfully")

	c.JSON(http.StatusOK, result)
}

func (h *handler) MarkAllRead(c *gin.Context) {
	ctx, cancel := h.timeout(c)
	defer cancel()

	result, err := h.service.MarkAllRead(ctx, middleware.UserIDFrom(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func parseIntParam(c *gin.Context, param string, defaultValue int) int {
	value := c.Query(param)
	if value == "" {
		return defaultValue
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"param": param,
			"value": value,
			"error": err,
		}).Warn("Invalid integer parameter, using default")

		return defaultValue
	}
	return parsed
}
