package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"restodash/server/internal/services"
)

type AnalyticsController struct {
	kitchen *services.KitchenService
	reports *services.ReportService
}

func NewAnalyticsController(kitchen *services.KitchenService, reports *services.ReportService) *AnalyticsController {
	return &AnalyticsController{kitchen: kitchen, reports: reports}
}

// StationLoad - позиции активных тикетов по станциям
// GET /api/v1/analytics/station-load
func (ac *AnalyticsController) StationLoad(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"stations": services.ComputeStationLoad(ac.kitchen.ActiveTickets())})
}

// PrepTime - среднее время приготовления позиции в минутах
// GET /api/v1/analytics/prep-time
func (ac *AnalyticsController) PrepTime(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"averagePrepMinutes": services.ComputeAveragePrepTime(ac.kitchen.Tickets())})
}

// GET /api/v1/analytics/revenue?from=2024-01-01&to=2024-01-31
func (ac *AnalyticsController) Revenue(c *gin.Context) {
	sales, err := ac.reports.SalesData(c.Request.Context(), c.Query("from"), c.Query("to"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"metrics": services.ComputeRevenueMetrics(sales),
		"sales":   sales,
	})
}

// GET /api/v1/analytics/top-items?from=&to=&limit=5
func (ac *AnalyticsController) TopItems(c *gin.Context) {
	limit := services.DefaultTopSellers
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}
	reports, err := ac.reports.ListReports(c.Request.Context(), c.Query("from"), c.Query("to"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": services.ComputeTopSellingItems(reports, limit)})
}

// GenerateDailyReport строит отчет за дату (по умолчанию сегодня, UTC)
// POST /api/v1/reports/daily
func (ac *AnalyticsController) GenerateDailyReport(c *gin.Context) {
	var req struct {
		Date           string  `json:"date"`
		LaborCosts     float64 `json:"laborCosts"`
		InventoryCosts float64 `json:"inventoryCosts"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Неверные данные", "details": err.Error()})
		return
	}
	date := time.Now().UTC()
	if req.Date != "" {
		parsed, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date", "details": err.Error()})
			return
		}
		date = parsed
	}
	report, err := ac.reports.GenerateDailyReport(c.Request.Context(), date, req.LaborCosts, req.InventoryCosts)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, report)
}

// GET /api/v1/reports?from=&to=
func (ac *AnalyticsController) ListReports(c *gin.Context) {
	reports, err := ac.reports.ListReports(c.Request.Context(), c.Query("from"), c.Query("to"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reports": reports, "count": len(reports)})
}
