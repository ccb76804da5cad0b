package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"Gin_postgres_redis_loan_approval/app"
	"Gin_postgres_redis_loan_approval/apperr"
	"Gin_postgres_redis_loan_approval/models"

	"github.com/gin-gonic/gin"
)

type NotificationController struct{ *Srv }

func NewNotificationController(s *Srv) *NotificationController {
	return &NotificationController{Srv: s}
}

// GET /api/notifications?unread=1&limit=50
func (nc *NotificationController) List(c *gin.Context) {
	unread := c.Query("unread") == "1" || c.Query("unread") == "true"
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	ns, err := nc.Repo.ListNotifications(c.Request.Context(), actor(c).UserID, unread, limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"notifications": ns})
}

// POST /api/notifications/:id/read
func (nc *NotificationController) MarkRead(c *gin.Context) {
	err := nc.Repo.MarkNotificationRead(c.Request.Context(), actor(c).UserID, c.Param("id"))
	if errors.Is(err, models.ErrNotFound) {
		fail(c, apperr.NotFound("notification"))
		return
	}
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true})
}
