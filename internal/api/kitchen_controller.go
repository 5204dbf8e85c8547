package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"restodash/server/internal/models"
	"restodash/server/internal/services"
)

type KitchenController struct {
	kitchen *services.KitchenService
}

func NewKitchenController(kitchen *services.KitchenService) *KitchenController {
	return &KitchenController{kitchen: kitchen}
}

// GetTickets - тикеты кухни; ?active=true оставляет только pending/preparing
// GET /api/v1/kitchen/tickets
func (kc *KitchenController) GetTickets(c *gin.Context) {
	var tickets []models.KitchenOrder
	if c.Query("active") == "true" {
		tickets = kc.kitchen.ActiveTickets()
	} else {
		tickets = kc.kitchen.Tickets()
	}
	c.JSON(http.StatusOK, gin.H{"tickets": tickets, "count": len(tickets)})
}

// UpdateItemStatus - повар отмечает позицию
// PUT /api/v1/kitchen/tickets/:id/items/:item_id/status
func (kc *KitchenController) UpdateItemStatus(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	itemID, err := strconv.Atoi(c.Param("item_id"))
	if err != nil || itemID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid item_id"})
		return
	}
	var req struct {
		Status string `json:"status" binding:"required"`
		Chef   string `json:"chef"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Неверные данные", "details": err.Error()})
		return
	}
	status, ok := models.ParseKitchenStatus(req.Status)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status", "details": req.Status})
		return
	}
	ticket, err := kc.kitchen.UpdateItemStatus(c.Request.Context(), id, itemID, status, req.Chef)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ticket)
}

// PUT /api/v1/kitchen/tickets/:id/priority
func (kc *KitchenController) UpdatePriority(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Priority string `json:"priority" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Неверные данные", "details": err.Error()})
		return
	}
	priority, ok := models.ParsePriority(req.Priority)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid priority", "details": req.Priority})
		return
	}
	ticket, err := kc.kitchen.UpdatePriority(c.Request.Context(), id, priority)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ticket)
}

// POST /api/v1/kitchen/tickets/:id/deliver
func (kc *KitchenController) DeliverTicket(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	ticket, err := kc.kitchen.DeliverTicket(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ticket)
}

// POST /api/v1/kitchen/tickets/:id/cancel
func (kc *KitchenController) CancelTicket(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	ticket, err := kc.kitchen.CancelTicket(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ticket)
}
