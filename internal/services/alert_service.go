package services

import (
	"fmt"
	"log"
	"sync"
	"time"

	"restodash/server/internal/models"
)

// SoundPlayer - звуковой сигнал о новых алертах, best effort
type SoundPlayer interface {
	PlayAlertSound() error
}

type AlertConfig struct {
	HistorySize     int
	NearDelayWindow time.Duration
	Bucket          time.Duration
	Muted           bool
}

func DefaultAlertConfig() AlertConfig {
	return AlertConfig{HistorySize: 20, NearDelayWindow: 5 * time.Minute, Bucket: time.Minute}
}

type AlertObserver func([]models.Alert)

// AlertService выводит алерты из снимка тикетов, дедуплицирует их по id
// и держит ограниченную историю (новые в начале)
type AlertService struct {
	cfg   AlertConfig
	sound SoundPlayer
	now   func() time.Time

	mu        sync.Mutex
	history   []models.Alert
	muted     bool
	observers []AlertObserver
}

func NewAlertService(cfg AlertConfig, sound SoundPlayer) *AlertService {
	def := DefaultAlertConfig()
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = def.HistorySize
	}
	if cfg.NearDelayWindow <= 0 {
		cfg.NearDelayWindow = def.NearDelayWindow
	}
	if cfg.Bucket <= 0 {
		cfg.Bucket = def.Bucket
	}
	return &AlertService{
		cfg:   cfg,
		sound: sound,
		now:   func() time.Time { return time.Now().UTC() },
		muted: cfg.Muted,
	}
}

func (a *AlertService) AddObserver(fn AlertObserver) {
	a.mu.Lock()
	a.observers = append(a.observers, fn)
	a.mu.Unlock()
}

// DetectDelayed - готовятся и уже просрочены
func DetectDelayed(tickets []models.KitchenOrder, now time.Time) []models.KitchenOrder {
	var out []models.KitchenOrder
	for _, t := range tickets {
		if t.Status == models.KitchenStatusPreparing && now.After(t.EstimatedDeliveryTime) {
			out = append(out, t)
		}
	}
	return out
}

// DetectNearDelay - до срока осталось меньше window
func DetectNearDelay(tickets []models.KitchenOrder, now time.Time, window time.Duration) []models.KitchenOrder {
	var out []models.KitchenOrder
	for _, t := range tickets {
		left := t.EstimatedDeliveryTime.Sub(now)
		if left > 0 && left < window {
			out = append(out, t)
		}
	}
	return out
}

// DetectRush - срочные тикеты, к которым еще не приступили
func DetectRush(tickets []models.KitchenOrder) []models.KitchenOrder {
	var out []models.KitchenOrder
	for _, t := range tickets {
		if t.Priority == models.PriorityRush && t.Status == models.KitchenStatusPending {
			out = append(out, t)
		}
	}
	return out
}

// AlertID - kind + тикет + окно времени; повтор в том же окне отбрасывается
func AlertID(kind models.AlertKind, ticketID int64, bucket time.Time) string {
	return fmt.Sprintf("%s-%d-%d", kind, ticketID, bucket.Unix())
}

// Evaluate считает кандидатов по активным тикетам (pending/preparing)
// и добавляет в историю только новые. Возвращает добавленные алерты.
func (a *AlertService) Evaluate(tickets []models.KitchenOrder, now time.Time) []models.Alert {
	active := make([]models.KitchenOrder, 0, len(tickets))
	for _, t := range tickets {
		if t.Status == models.KitchenStatusPending || t.Status == models.KitchenStatusPreparing {
			active = append(active, t)
		}
	}
	bucket := now.Truncate(a.cfg.Bucket)

	var candidates []models.Alert
	for _, t := range DetectDelayed(active, now) {
		late := now.Sub(t.EstimatedDeliveryTime).Round(time.Minute)
		candidates = append(candidates, newAlert(models.AlertKindDelayed, models.AlertTypeError, t, bucket, now,
			"Order delayed", fmt.Sprintf("Table %d order #%d is %v past its delivery time", t.TableNumber, t.OrderID, late)))
	}
	for _, t := range DetectNearDelay(active, now, a.cfg.NearDelayWindow) {
		left := t.EstimatedDeliveryTime.Sub(now).Round(time.Minute)
		candidates = append(candidates, newAlert(models.AlertKindNearDelay, models.AlertTypeWarning, t, bucket, now,
			"Order due soon", fmt.Sprintf("Table %d order #%d is due in %v", t.TableNumber, t.OrderID, left)))
	}
	for _, t := range DetectRush(active) {
		candidates = append(candidates, newAlert(models.AlertKindRush, models.AlertTypeInfo, t, bucket, now,
			"Rush order waiting", fmt.Sprintf("Rush order #%d for table %d has not been started", t.OrderID, t.TableNumber)))
	}

	a.mu.Lock()
	seen := make(map[string]bool, len(a.history)+len(candidates))
	for _, al := range a.history {
		seen[al.ID] = true
	}
	var fresh []models.Alert
	for _, c := range candidates {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		fresh = append(fresh, c)
	}
	if len(fresh) == 0 {
		a.mu.Unlock()
		return nil
	}
	history := make([]models.Alert, 0, len(fresh)+len(a.history))
	history = append(history, fresh...)
	history = append(history, a.history...)
	if len(history) > a.cfg.HistorySize {
		history = history[:a.cfg.HistorySize]
	}
	a.history = history
	muted := a.muted
	observers := append([]AlertObserver(nil), a.observers...)
	a.mu.Unlock()

	log.Printf("🔔 Новые алерты кухни: %d", len(fresh))
	if !muted {
		a.playSound()
	}
	out := append([]models.Alert(nil), fresh...)
	for _, fn := range observers {
		fn(out)
	}
	return out
}

// HandleTickets - подписчик на изменения тикетов
func (a *AlertService) HandleTickets(ev TicketEvent) {
	a.Evaluate(ev.Snapshot, a.now())
}

// playSound не блокирует и не паникует: ошибка звука не влияет на доставку алертов
func (a *AlertService) playSound() {
	if a.sound == nil {
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("⚠️ Звук алерта: panic: %v", r)
			}
		}()
		if err := a.sound.PlayAlertSound(); err != nil {
			log.Printf("⚠️ Звук алерта не воспроизведен: %v", err)
		}
	}()
}

func newAlert(kind models.AlertKind, typ models.AlertType, t models.KitchenOrder, bucket, now time.Time, title, msg string) models.Alert {
	return models.Alert{
		ID:          AlertID(kind, t.ID, bucket),
		Kind:        kind,
		Type:        typ,
		Title:       title,
		Message:     msg,
		TicketID:    t.ID,
		OrderID:     t.OrderID,
		TableNumber: t.TableNumber,
		CreatedAt:   now,
	}
}

// Alerts - копия истории, новые в начале
func (a *AlertService) Alerts() []models.Alert {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]models.Alert(nil), a.history...)
}

func (a *AlertService) UnreadCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, al := range a.history {
		if !al.Read {
			n++
		}
	}
	return n
}

func (a *AlertService) MarkRead(id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.history {
		if a.history[i].ID == id {
			a.history[i].Read = true
			return nil
		}
	}
	return fmt.Errorf("alert %s: %w", id, ErrNotFound)
}

func (a *AlertService) MarkAllRead() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.history {
		a.history[i].Read = true
	}
}

func (a *AlertService) Clear() {
	a.mu.Lock()
	a.history = nil
	a.mu.Unlock()
}

func (a *AlertService) SetMuted(muted bool) {
	a.mu.Lock()
	a.muted = muted
	a.mu.Unlock()
}

func (a *AlertService) Muted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.muted
}
