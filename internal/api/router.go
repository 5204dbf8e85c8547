package api

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"
)

// Controllers - все обработчики API, собранные в main
type Controllers struct {
	Orders    *OrderController
	Kitchen   *KitchenController
	Alerts    *AlertsController
	Analytics *AnalyticsController
	Hub       *Hub
}

// SetupRouter регистрирует маршруты /api/v1
func SetupRouter(ctrl Controllers) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger())
	r.Use(corsMiddleware())

	r.GET("/api/v1/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": "restodash",
			"version": "1.0.0",
		})
	})

	apiGroup := r.Group("/api/v1")
	{
		orders := apiGroup.Group("/orders")
		orders.POST("", ctrl.Orders.CreateOrder)
		orders.GET("", ctrl.Orders.GetOrders)
		orders.GET("/:id", ctrl.Orders.GetOrder)
		orders.PUT("/:id/status", ctrl.Orders.UpdateStatus)
		orders.PUT("/:id/items", ctrl.Orders.UpdateItems)
		orders.POST("/:id/payment", ctrl.Orders.RecordPayment)
		orders.POST("/:id/kitchen", ctrl.Orders.SendToKitchen)

		kitchen := apiGroup.Group("/kitchen/tickets")
		kitchen.GET("", ctrl.Kitchen.GetTickets)
		kitchen.PUT("/:id/items/:item_id/status", ctrl.Kitchen.UpdateItemStatus)
		kitchen.PUT("/:id/priority", ctrl.Kitchen.UpdatePriority)
		kitchen.POST("/:id/deliver", ctrl.Kitchen.DeliverTicket)
		kitchen.POST("/:id/cancel", ctrl.Kitchen.CancelTicket)

		alerts := apiGroup.Group("/alerts")
		alerts.GET("", ctrl.Alerts.GetAlerts)
		alerts.POST("/read-all", ctrl.Alerts.MarkAllRead)
		alerts.POST("/:id/read", ctrl.Alerts.MarkRead)
		alerts.DELETE("", ctrl.Alerts.Clear)
		alerts.PUT("/mute", ctrl.Alerts.SetMuted)

		analytics := apiGroup.Group("/analytics")
		analytics.GET("/station-load", ctrl.Analytics.StationLoad)
		analytics.GET("/prep-time", ctrl.Analytics.PrepTime)
		analytics.GET("/revenue", ctrl.Analytics.Revenue)
		analytics.GET("/top-items", ctrl.Analytics.TopItems)

		apiGroup.POST("/reports/daily", ctrl.Analytics.GenerateDailyReport)
		apiGroup.GET("/reports", ctrl.Analytics.ListReports)

		if ctrl.Hub != nil {
			apiGroup.GET("/ws", ServeWS(ctrl.Hub))
		}
	}
	return r
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Printf("🌐 %s %s - Status: %d - Latency: %v",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
