package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"restodash/server/internal/services"
)

type AlertsController struct {
	alerts *services.AlertService
}

func NewAlertsController(alerts *services.AlertService) *AlertsController {
	return &AlertsController{alerts: alerts}
}

// GET /api/v1/alerts
func (ac *AlertsController) GetAlerts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"alerts": ac.alerts.Alerts(),
		"unread": ac.alerts.UnreadCount(),
		"muted":  ac.alerts.Muted(),
	})
}

// POST /api/v1/alerts/:id/read
func (ac *AlertsController) MarkRead(c *gin.Context) {
	if err := ac.alerts.MarkRead(c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": ac.alerts.UnreadCount()})
}

// POST /api/v1/alerts/read-all
func (ac *AlertsController) MarkAllRead(c *gin.Context) {
	ac.alerts.MarkAllRead()
	c.JSON(http.StatusOK, gin.H{"unread": 0})
}

// DELETE /api/v1/alerts
func (ac *AlertsController) Clear(c *gin.Context) {
	ac.alerts.Clear()
	c.Status(http.StatusNoContent)
}

// SetMuted включает/выключает звук алертов
// PUT /api/v1/alerts/mute
func (ac *AlertsController) SetMuted(c *gin.Context) {
	var req struct {
		Muted *bool `json:"muted" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Неверные данные", "details": err.Error()})
		return
	}
	ac.alerts.SetMuted(*req.Muted)
	c.JSON(http.StatusOK, gin.H{"muted": *req.Muted})
}
