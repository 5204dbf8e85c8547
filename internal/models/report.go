package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// TopSellingItem - строка топа продаж внутри дневного отчета
type TopSellingItem struct {
	Name       string  `json:"name"`
	OrderCount int     `json:"orderCount"`
	Price      float64 `json:"price"`
}

// DailyReport - дневной агрегат по выручке и затратам
type DailyReport struct {
	Date              string           `json:"date"` // YYYY-MM-DD
	TotalRevenue      float64          `json:"totalRevenue"`
	TotalOrders       int              `json:"totalOrders"`
	LaborCosts        float64          `json:"laborCosts"`
	InventoryCosts    float64          `json:"inventoryCosts"`
	NetProfit         float64          `json:"netProfit"`
	AverageOrderValue float64          `json:"averageOrderValue"`
	TopSellingItems   []TopSellingItem `json:"topSellingItems"`
}

// NewDailyReport считает производные поля: netProfit и averageOrderValue (0 при нуле заказов)
func NewDailyReport(date string, revenue float64, orders int, labor, inventory float64, top []TopSellingItem) DailyReport {
	rev := decimal.NewFromFloat(revenue)
	profit := rev.Sub(decimal.NewFromFloat(labor).Add(decimal.NewFromFloat(inventory)))
	aov := decimal.Zero
	if orders > 0 {
		aov = rev.Div(decimal.NewFromInt(int64(orders)))
	}
	if top == nil {
		top = []TopSellingItem{}
	}
	return DailyReport{
		Date:              date,
		TotalRevenue:      rev.Round(2).InexactFloat64(),
		TotalOrders:       orders,
		LaborCosts:        labor,
		InventoryCosts:    inventory,
		NetProfit:         profit.Round(2).InexactFloat64(),
		AverageOrderValue: aov.Round(2).InexactFloat64(),
		TopSellingItems:   top,
	}
}

// SalesData - точка ряда продаж для графиков и метрик
type SalesData struct {
	Date    string  `json:"date"`
	Revenue float64 `json:"revenue"`
	Profit  float64 `json:"profit"`
	Orders  int     `json:"orders"`
}

// ToSalesData сворачивает отчет в точку ряда
func (r DailyReport) ToSalesData() SalesData {
	return SalesData{Date: r.Date, Revenue: r.TotalRevenue, Profit: r.NetProfit, Orders: r.TotalOrders}
}

// RevenueMetrics - сводка по ряду продаж
type RevenueMetrics struct {
	TotalRevenue   float64 `json:"totalRevenue"`
	TotalProfit    float64 `json:"totalProfit"`
	AverageRevenue float64 `json:"averageRevenue"`
	ProfitMargin   float64 `json:"profitMargin"` // проценты
}

// ItemSales - позиция в топе продаж за период
type ItemSales struct {
	Name    string  `json:"name"`
	Count   int     `json:"count"`
	Revenue float64 `json:"revenue"`
}

// TopSellingList - JSON колонка с топом продаж
type TopSellingList []TopSellingItem

func (l TopSellingList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]TopSellingItem(l))
	return string(b), err
}

func (l *TopSellingList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errors.New("failed to unmarshal TopSellingList value")
	}
	return json.Unmarshal(raw, (*[]TopSellingItem)(l))
}

// DailyReportRecord - строка таблицы daily_reports
type DailyReportRecord struct {
	ID                uint           `gorm:"primaryKey"`
	Date              string         `gorm:"type:varchar(10);uniqueIndex;not null"`
	TotalRevenue      float64        `gorm:"type:numeric(12,2)"`
	TotalOrders       int            `gorm:"not null;default:0"`
	LaborCosts        float64        `gorm:"type:numeric(12,2)"`
	InventoryCosts    float64        `gorm:"type:numeric(12,2)"`
	NetProfit         float64        `gorm:"type:numeric(12,2)"`
	AverageOrderValue float64        `gorm:"type:numeric(12,2)"`
	TopSellingItems   TopSellingList `gorm:"type:text"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (DailyReportRecord) TableName() string {
	return "daily_reports"
}

func NewDailyReportRecord(r DailyReport) DailyReportRecord {
	return DailyReportRecord{
		Date:              r.Date,
		TotalRevenue:      r.TotalRevenue,
		TotalOrders:       r.TotalOrders,
		LaborCosts:        r.LaborCosts,
		InventoryCosts:    r.InventoryCosts,
		NetProfit:         r.NetProfit,
		AverageOrderValue: r.AverageOrderValue,
		TopSellingItems:   TopSellingList(r.TopSellingItems),
	}
}

func (rec DailyReportRecord) Report() DailyReport {
	top := []TopSellingItem(rec.TopSellingItems)
	if top == nil {
		top = []TopSellingItem{}
	}
	return DailyReport{
		Date:              rec.Date,
		TotalRevenue:      rec.TotalRevenue,
		TotalOrders:       rec.TotalOrders,
		LaborCosts:        rec.LaborCosts,
		InventoryCosts:    rec.InventoryCosts,
		NetProfit:         rec.NetProfit,
		AverageOrderValue: rec.AverageOrderValue,
		TopSellingItems:   top,
	}
}
