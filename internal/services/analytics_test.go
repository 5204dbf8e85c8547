package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restodash/server/internal/models"
)

func timed(start time.Time, minutes int) (*time.Time, *time.Time) {
	end := start.Add(time.Duration(minutes) * time.Minute)
	return &start, &end
}

func TestComputeStationLoad(t *testing.T) {
	tickets := []models.KitchenOrder{
		{Items: []models.KitchenOrderItem{{CookingStation: "grill"}, {CookingStation: "fryer"}}},
		{Items: []models.KitchenOrderItem{{CookingStation: "grill"}, {}}},
	}
	load := ComputeStationLoad(tickets)
	assert.Equal(t, map[string]int{"grill": 2, "fryer": 1, OtherStation: 1}, load)
	assert.Empty(t, ComputeStationLoad(nil))
}

func TestComputeAveragePrepTime(t *testing.T) {
	s1, e1 := timed(baseTime, 10)
	s2, e2 := timed(baseTime, 20)
	s3, e3 := timed(baseTime, 90)
	tickets := []models.KitchenOrder{
		{Status: models.KitchenStatusReady, Items: []models.KitchenOrderItem{
			{StartTime: s1, CompletionTime: e1},
			{StartTime: s1},
		}},
		{Status: models.KitchenStatusDelivered, Items: []models.KitchenOrderItem{{StartTime: s2, CompletionTime: e2}}},
		{Status: models.KitchenStatusPreparing, Items: []models.KitchenOrderItem{{StartTime: s3, CompletionTime: e3}}},
	}
	assert.InDelta(t, 15.0, ComputeAveragePrepTime(tickets), 1e-9)
	assert.Equal(t, 0.0, ComputeAveragePrepTime(tickets[2:]))
	assert.Equal(t, 0.0, ComputeAveragePrepTime(nil))
}

func TestComputeRevenueMetrics(t *testing.T) {
	m := ComputeRevenueMetrics([]models.SalesData{
		{Date: "2024-05-01", Revenue: 1000, Profit: 250},
		{Date: "2024-05-02", Revenue: 500, Profit: 50},
	})
	assert.Equal(t, 1500.0, m.TotalRevenue)
	assert.Equal(t, 300.0, m.TotalProfit)
	assert.Equal(t, 750.0, m.AverageRevenue)
	assert.Equal(t, 20.0, m.ProfitMargin)

	zero := ComputeRevenueMetrics([]models.SalesData{{Date: "2024-05-03", Revenue: 0, Profit: -40}})
	assert.Equal(t, 0.0, zero.ProfitMargin)
	assert.Equal(t, -40.0, zero.TotalProfit)

	assert.Equal(t, models.RevenueMetrics{}, ComputeRevenueMetrics(nil))
}

func TestComputeTopSellingItemsMergesByName(t *testing.T) {
	reports := []models.DailyReport{
		{Date: "2024-05-01", TopSellingItems: []models.TopSellingItem{
			{Name: "Burger", OrderCount: 3, Price: 10},
			{Name: "Salad", OrderCount: 4, Price: 8},
		}},
		{Date: "2024-05-02", TopSellingItems: []models.TopSellingItem{
			{Name: "Burger", OrderCount: 5, Price: 10},
			{Name: "Soup", OrderCount: 1, Price: 6},
		}},
	}
	top := ComputeTopSellingItems(reports, 2)
	require.Len(t, top, 2)
	assert.Equal(t, models.ItemSales{Name: "Burger", Count: 8, Revenue: 80}, top[0])
	assert.Equal(t, models.ItemSales{Name: "Salad", Count: 4, Revenue: 32}, top[1])

	assert.Len(t, ComputeTopSellingItems(reports, 0), 3)
	assert.Empty(t, ComputeTopSellingItems(nil, 5))
}

func TestComputeTopSellingItemsKeepsFirstSeenOrderOnTies(t *testing.T) {
	reports := []models.DailyReport{{TopSellingItems: []models.TopSellingItem{
		{Name: "Tea", OrderCount: 2, Price: 3},
		{Name: "Coffee", OrderCount: 3, Price: 2},
	}}}
	top := ComputeTopSellingItems(reports, 5)
	require.Len(t, top, 2)
	assert.Equal(t, "Tea", top[0].Name)
	assert.Equal(t, "Coffee", top[1].Name)
}

func TestBuildDailyReport(t *testing.T) {
	order := func(id int64, status models.OrderStatus, at time.Time, items ...models.OrderItem) models.Order {
		return models.Order{ID: id, Status: status, Timestamp: at, Items: items, Total: models.ComputeTotal(items)}
	}
	burger := models.OrderItem{ID: 1, Name: "Classic Burger", Price: 12.5, Quantity: 2}
	fries := models.OrderItem{ID: 4, Name: "French Fries", Price: 4, Quantity: 1}
	soup := models.OrderItem{ID: 5, Name: "Tomato Soup", Price: 6, Quantity: 3}

	orders := []models.Order{
		order(1, models.OrderStatusDelivered, baseTime, burger, fries),
		order(2, models.OrderStatusPending, baseTime.Add(time.Hour), soup),
		order(3, models.OrderStatusCancelled, baseTime, burger),
		order(4, models.OrderStatusDelivered, baseTime.Add(-24*time.Hour), burger),
	}

	r := BuildDailyReport(baseTime, orders, 10, 5.5)
	assert.Equal(t, "2024-05-10", r.Date)
	assert.Equal(t, 2, r.TotalOrders)
	assert.Equal(t, 47.0, r.TotalRevenue)
	assert.Equal(t, 31.5, r.NetProfit)
	assert.Equal(t, 23.5, r.AverageOrderValue)
	require.Len(t, r.TopSellingItems, 3)
	assert.Equal(t, "Classic Burger", r.TopSellingItems[0].Name)
	assert.Equal(t, 2, r.TopSellingItems[0].OrderCount)
	assert.Equal(t, "Tomato Soup", r.TopSellingItems[1].Name)

	empty := BuildDailyReport(baseTime.Add(48*time.Hour), orders, 0, 0)
	assert.Equal(t, 0, empty.TotalOrders)
	assert.Equal(t, 0.0, empty.AverageOrderValue)
	assert.NotNil(t, empty.TopSellingItems)
}
