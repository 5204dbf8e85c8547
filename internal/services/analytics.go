package services

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"restodash/server/internal/models"
)

// Производные метрики: чистые функции над снимками, входные данные не меняются.

// OtherStation - корзина для позиций без станции
const OtherStation = "other"

// DefaultTopSellers - размер топа продаж по умолчанию
const DefaultTopSellers = 5

// ComputeStationLoad считает позиции тикетов по станциям
func ComputeStationLoad(tickets []models.KitchenOrder) map[string]int {
	load := make(map[string]int)
	for _, t := range tickets {
		for _, it := range t.Items {
			station := it.CookingStation
			if station == "" {
				station = OtherStation
			}
			load[station]++
		}
	}
	return load
}

// ComputeAveragePrepTime - среднее (completion - start) в минутах по позициям
// готовых и отданных тикетов; 0, если замеров нет
func ComputeAveragePrepTime(tickets []models.KitchenOrder) float64 {
	var total time.Duration
	samples := 0
	for _, t := range tickets {
		if t.Status != models.KitchenStatusReady && t.Status != models.KitchenStatusDelivered {
			continue
		}
		for _, it := range t.Items {
			if it.StartTime == nil || it.CompletionTime == nil {
				continue
			}
			total += it.CompletionTime.Sub(*it.StartTime)
			samples++
		}
	}
	if samples == 0 {
		return 0
	}
	return total.Minutes() / float64(samples)
}

// ComputeRevenueMetrics - суммы и маржа; при нулевой выручке маржа 0
func ComputeRevenueMetrics(sales []models.SalesData) models.RevenueMetrics {
	revenue, profit := decimal.Zero, decimal.Zero
	for _, s := range sales {
		revenue = revenue.Add(decimal.NewFromFloat(s.Revenue))
		profit = profit.Add(decimal.NewFromFloat(s.Profit))
	}
	m := models.RevenueMetrics{
		TotalRevenue: revenue.Round(2).InexactFloat64(),
		TotalProfit:  profit.Round(2).InexactFloat64(),
	}
	if len(sales) > 0 {
		m.AverageRevenue = revenue.Div(decimal.NewFromInt(int64(len(sales)))).Round(2).InexactFloat64()
	}
	if !revenue.IsZero() {
		m.ProfitMargin = profit.Div(revenue).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
	}
	return m
}

// ComputeTopSellingItems сливает топы отчетов по имени, сортирует по выручке
// (при равенстве - порядок первого появления) и обрезает до topN
func ComputeTopSellingItems(reports []models.DailyReport, topN int) []models.ItemSales {
	if topN <= 0 {
		topN = DefaultTopSellers
	}
	type acc struct {
		count   int
		revenue decimal.Decimal
	}
	var order []string
	merged := make(map[string]*acc)
	for _, r := range reports {
		for _, it := range r.TopSellingItems {
			a, ok := merged[it.Name]
			if !ok {
				a = &acc{}
				merged[it.Name] = a
				order = append(order, it.Name)
			}
			a.count += it.OrderCount
			a.revenue = a.revenue.Add(decimal.NewFromFloat(it.Price).Mul(decimal.NewFromInt(int64(it.OrderCount))))
		}
	}

	out := make([]models.ItemSales, 0, len(order))
	for _, name := range order {
		a := merged[name]
		out = append(out, models.ItemSales{Name: name, Count: a.count, Revenue: a.revenue.Round(2).InexactFloat64()})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Revenue > out[j].Revenue })
	if len(out) > topN {
		out = out[:topN]
	}
	return out
}

// BuildDailyReport собирает дневной отчет по заказам дня (отмененные не считаются)
func BuildDailyReport(date time.Time, orders []models.Order, laborCosts, inventoryCosts float64) models.DailyReport {
	day := date.UTC().Format("2006-01-02")
	revenue := decimal.Zero
	count := 0
	type line struct {
		count int
		price float64
	}
	var names []string
	lines := make(map[string]*line)
	for _, o := range orders {
		if o.Status == models.OrderStatusCancelled || o.Timestamp.UTC().Format("2006-01-02") != day {
			continue
		}
		count++
		revenue = revenue.Add(decimal.NewFromFloat(o.Total))
		for _, it := range o.Items {
			l, ok := lines[it.Name]
			if !ok {
				l = &line{price: it.Price}
				lines[it.Name] = l
				names = append(names, it.Name)
			}
			l.count += it.Quantity
		}
	}

	top := make([]models.TopSellingItem, 0, len(names))
	for _, n := range names {
		top = append(top, models.TopSellingItem{Name: n, OrderCount: lines[n].count, Price: lines[n].price})
	}
	sort.SliceStable(top, func(i, j int) bool {
		return float64(top[i].OrderCount)*top[i].Price > float64(top[j].OrderCount)*top[j].Price
	})
	if len(top) > DefaultTopSellers {
		top = top[:DefaultTopSellers]
	}
	return models.NewDailyReport(day, revenue.InexactFloat64(), count, laborCosts, inventoryCosts, top)
}
