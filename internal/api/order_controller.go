package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"restodash/server/internal/models"
	"restodash/server/internal/services"
)

type OrderController struct {
	orders  *services.OrderService
	kitchen *services.KitchenService
}

func NewOrderController(orders *services.OrderService, kitchen *services.KitchenService) *OrderController {
	return &OrderController{orders: orders, kitchen: kitchen}
}

// CreateOrder создает заказ из позиций меню
// POST /api/v1/orders
func (oc *OrderController) CreateOrder(c *gin.Context) {
	var req services.CreateOrderInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Неверные данные", "details": err.Error()})
		return
	}
	order, err := oc.orders.CreateOrder(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

// GetOrders - все заказы, опционально фильтр по статусу
// GET /api/v1/orders?status=pending
func (oc *OrderController) GetOrders(c *gin.Context) {
	orders := oc.orders.Orders()
	if raw := c.Query("status"); raw != "" {
		status, ok := models.ParseOrderStatus(raw)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status", "details": raw})
			return
		}
		filtered := make([]models.Order, 0, len(orders))
		for _, o := range orders {
			if o.Status == status {
				filtered = append(filtered, o)
			}
		}
		orders = filtered
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders, "count": len(orders)})
}

// GET /api/v1/orders/:id
func (oc *OrderController) GetOrder(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	order, err := oc.orders.GetOrder(id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// UpdateStatus меняет статус заказа (только вперед на шаг или отмена)
// PUT /api/v1/orders/:id/status
func (oc *OrderController) UpdateStatus(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Неверные данные", "details": err.Error()})
		return
	}
	status, ok := models.ParseOrderStatus(req.Status)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status", "details": req.Status})
		return
	}
	order, err := oc.orders.UpdateStatus(c.Request.Context(), id, status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// UpdateItems заменяет позиции заказа, пока он не ушел на кухню
// PUT /api/v1/orders/:id/items
func (oc *OrderController) UpdateItems(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Items []services.OrderLineInput `json:"items"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Неверные данные", "details": err.Error()})
		return
	}
	order, err := oc.orders.UpdateItems(c.Request.Context(), id, req.Items)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// RecordPayment фиксирует оплату и чаевые
// POST /api/v1/orders/:id/payment
func (oc *OrderController) RecordPayment(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Method string  `json:"method" binding:"required"`
		Tip    float64 `json:"tip"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Неверные данные", "details": err.Error()})
		return
	}
	order, err := oc.orders.RecordPayment(c.Request.Context(), id, req.Method, req.Tip)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// SendToKitchen создает кухонный тикет по заказу
// POST /api/v1/orders/:id/kitchen
func (oc *OrderController) SendToKitchen(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	ticket, err := oc.kitchen.SubmitOrder(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ticket)
}
