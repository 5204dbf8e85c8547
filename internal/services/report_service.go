package services

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"restodash/server/internal/models"
)

// ReportRepository хранит дневные отчеты (ключ - дата YYYY-MM-DD)
type ReportRepository interface {
	Save(ctx context.Context, report models.DailyReport) error
	List(ctx context.Context, from, to string) ([]models.DailyReport, error)
}

// GormReportRepository - таблица daily_reports, upsert по дате
type GormReportRepository struct {
	db *gorm.DB
}

func NewGormReportRepository(db *gorm.DB) *GormReportRepository {
	return &GormReportRepository{db: db}
}

func (r *GormReportRepository) Save(ctx context.Context, report models.DailyReport) error {
	rec := models.NewDailyReportRecord(report)
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"total_revenue", "total_orders", "labor_costs", "inventory_costs",
			"net_profit", "average_order_value", "top_selling_items", "updated_at",
		}),
	}).Create(&rec).Error
}

func (r *GormReportRepository) List(ctx context.Context, from, to string) ([]models.DailyReport, error) {
	q := r.db.WithContext(ctx).Model(&models.DailyReportRecord{})
	if from != "" {
		q = q.Where("date >= ?", from)
	}
	if to != "" {
		q = q.Where("date <= ?", to)
	}
	var recs []models.DailyReportRecord
	if err := q.Order("date").Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]models.DailyReport, len(recs))
	for i, rec := range recs {
		out[i] = rec.Report()
	}
	return out, nil
}

// MemoryReportRepository - отчеты в памяти (memory режим, тесты)
type MemoryReportRepository struct {
	mu      sync.RWMutex
	reports map[string]models.DailyReport
}

func NewMemoryReportRepository() *MemoryReportRepository {
	return &MemoryReportRepository{reports: make(map[string]models.DailyReport)}
}

func (r *MemoryReportRepository) Save(_ context.Context, report models.DailyReport) error {
	r.mu.Lock()
	r.reports[report.Date] = report
	r.mu.Unlock()
	return nil
}

func (r *MemoryReportRepository) List(_ context.Context, from, to string) ([]models.DailyReport, error) {
	r.mu.RLock()
	out := make([]models.DailyReport, 0, len(r.reports))
	for date, rep := range r.reports {
		if (from == "" || date >= from) && (to == "" || date <= to) {
			out = append(out, rep)
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

// OrderSnapshot - источник заказов для отчета
type OrderSnapshot interface {
	Orders() []models.Order
}

// ReportService строит дневные отчеты из заказов и отдает ряды для аналитики
type ReportService struct {
	repo   ReportRepository
	orders OrderSnapshot
}

func NewReportService(repo ReportRepository, orders OrderSnapshot) *ReportService {
	return &ReportService{repo: repo, orders: orders}
}

// GenerateDailyReport считает отчет за день и сохраняет его (повтор перезаписывает)
func (rs *ReportService) GenerateDailyReport(ctx context.Context, date time.Time, laborCosts, inventoryCosts float64) (models.DailyReport, error) {
	if laborCosts < 0 || inventoryCosts < 0 {
		return models.DailyReport{}, validationError("costs", "must not be negative")
	}
	report := BuildDailyReport(date, rs.orders.Orders(), laborCosts, inventoryCosts)
	err := writeWithRetry(ctx, "upsert", "daily_reports", func() error {
		return rs.repo.Save(ctx, report)
	})
	if err != nil {
		return models.DailyReport{}, err
	}
	log.Printf("📊 Отчет за %s: выручка %.2f, заказов %d, прибыль %.2f",
		report.Date, report.TotalRevenue, report.TotalOrders, report.NetProfit)
	return report, nil
}

func (rs *ReportService) ListReports(ctx context.Context, from, to string) ([]models.DailyReport, error) {
	for field, v := range map[string]string{"from": from, "to": to} {
		if v == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", v); err != nil {
			return nil, validationError(field, "expected YYYY-MM-DD, got %q", v)
		}
	}
	reports, err := rs.repo.List(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	return reports, nil
}

// SalesData - ряд продаж за период
func (rs *ReportService) SalesData(ctx context.Context, from, to string) ([]models.SalesData, error) {
	reports, err := rs.ListReports(ctx, from, to)
	if err != nil {
		return nil, err
	}
	out := make([]models.SalesData, len(reports))
	for i, r := range reports {
		out[i] = r.ToSalesData()
	}
	return out, nil
}
