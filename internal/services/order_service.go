package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"restodash/server/internal/models"
	"restodash/server/internal/store"
)

// StatusChange - событие смены статуса заказа для внешних подписчиков (WebSocket, AMQP)
type StatusChange struct {
	OrderID int64              `json:"orderId"`
	From    models.OrderStatus `json:"from"`
	To      models.OrderStatus `json:"to"`
	At      time.Time          `json:"at"`
}

type StatusObserver func(StatusChange)

// OrderLineInput - позиция в запросе на создание заказа
type OrderLineInput struct {
	MenuItemID int64 `json:"id" binding:"required"`
	Quantity   int   `json:"quantity"`
}

type CreateOrderInput struct {
	Items               []OrderLineInput `json:"items"`
	TableNumber         int              `json:"tableNumber"`
	ServerName          string           `json:"serverName"`
	GuestCount          int              `json:"guestCount"`
	SpecialInstructions string           `json:"specialInstructions"`
}

// OrderService владеет жизненным циклом заказов зала.
// Коллекция в памяти меняется только через методы сервиса, наружу отдаются копии.
type OrderService struct {
	store   store.Gateway
	catalog MenuCatalog
	now     func() time.Time

	mu         sync.RWMutex
	orders     map[int64]*models.Order
	inFlight   map[int64]int
	writes     rowLocks
	lastID     int64
	generation atomic.Uint64

	obsMu     sync.RWMutex
	observers []StatusObserver
}

func NewOrderService(gw store.Gateway, catalog MenuCatalog) *OrderService {
	return &OrderService{
		store:    gw,
		catalog:  catalog,
		now:      func() time.Time { return time.Now().UTC() },
		orders:   make(map[int64]*models.Order),
		inFlight: make(map[int64]int),
	}
}

// AddObserver регистрирует подписчика на смену статуса
func (s *OrderService) AddObserver(fn StatusObserver) {
	s.obsMu.Lock()
	s.observers = append(s.observers, fn)
	s.obsMu.Unlock()
}

func (s *OrderService) emit(changes ...StatusChange) {
	s.obsMu.RLock()
	observers := append([]StatusObserver(nil), s.observers...)
	s.obsMu.RUnlock()
	for _, ch := range changes {
		for _, fn := range observers {
			fn(ch)
		}
	}
}

// CreateOrder считает total и estimatedPrepTime по меню и сохраняет заказ со статусом pending.
// ID = max(id) + 1 в пределах процесса.
func (s *OrderService) CreateOrder(ctx context.Context, in CreateOrderInput) (models.Order, error) {
	if len(in.Items) == 0 {
		return models.Order{}, validationError("items", "order must contain at least one item")
	}
	if in.TableNumber < 0 {
		return models.Order{}, validationError("tableNumber", "must not be negative")
	}
	if in.GuestCount < 0 {
		return models.Order{}, validationError("guestCount", "must not be negative")
	}

	items, prepTime, err := s.resolveLines(ctx, in.Items)
	if err != nil {
		return models.Order{}, err
	}

	guests := in.GuestCount
	if guests == 0 {
		guests = 1
	}
	now := s.now()
	order := models.Order{
		ID:                  s.reserveID(),
		TableNumber:         in.TableNumber,
		ServerName:          in.ServerName,
		GuestCount:          guests,
		Items:               items,
		Status:              models.OrderStatusPending,
		Total:               models.ComputeTotal(items),
		SpecialInstructions: in.SpecialInstructions,
		EstimatedPrepTime:   prepTime,
		PaymentStatus:       models.PaymentStatusUnpaid,
		Timestamp:           now,
		UpdatedAt:           now,
	}

	row, err := orderToRow(order)
	if err != nil {
		return models.Order{}, err
	}
	var saved store.Row
	err = writeWithRetry(ctx, "insert", models.TableOrders, func() error {
		var werr error
		saved, werr = s.store.Insert(ctx, models.TableOrders, row)
		return werr
	})
	if err != nil {
		return models.Order{}, err
	}
	if ts := rowTime(saved, "updated_at"); !ts.IsZero() {
		order.UpdatedAt = ts
	}

	s.mu.Lock()
	stored := order.Clone()
	s.orders[order.ID] = &stored
	s.mu.Unlock()

	log.Printf("✅ Заказ #%d создан: стол %d, %d позиций, total=%.2f", order.ID, order.TableNumber, len(items), order.Total)
	s.emit(StatusChange{OrderID: order.ID, From: "", To: order.Status, At: now})
	return order, nil
}

func (s *OrderService) reserveID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.lastID
	for id := range s.orders {
		if id > next {
			next = id
		}
	}
	s.lastID = next + 1
	return s.lastID
}

// resolveLines сверяет позиции с меню: количество, наличие, цена.
// Возвращает позиции заказа и оценку времени готовки (max по позициям).
func (s *OrderService) resolveLines(ctx context.Context, lines []OrderLineInput) ([]models.OrderItem, int, error) {
	items := make([]models.OrderItem, 0, len(lines))
	prepTime := 0
	for i, line := range lines {
		if line.Quantity < 1 {
			return nil, 0, validationError(fmt.Sprintf("items[%d].quantity", i), "must be at least 1")
		}
		menuItem, err := s.catalog.GetMenuItem(ctx, line.MenuItemID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, 0, validationError(fmt.Sprintf("items[%d].id", i), "unknown menu item %d", line.MenuItemID)
			}
			return nil, 0, err
		}
		if !menuItem.IsAvailable {
			return nil, 0, validationError(fmt.Sprintf("items[%d].id", i), "%s is not available", menuItem.Name)
		}
		if menuItem.Price < 0 {
			return nil, 0, validationError(fmt.Sprintf("items[%d].price", i), "must not be negative")
		}
		items = append(items, models.OrderItem{
			ID:       menuItem.ID,
			Name:     menuItem.Name,
			Price:    menuItem.Price,
			Quantity: line.Quantity,
		})
		if t := menuItem.PreparationTime * line.Quantity; t > prepTime {
			prepTime = t
		}
	}
	return items, prepTime, nil
}

// UpdateStatus двигает заказ строго на один шаг вперед или отменяет его
func (s *OrderService) UpdateStatus(ctx context.Context, orderID int64, next models.OrderStatus) (models.Order, error) {
	if _, ok := models.ParseOrderStatus(string(next)); !ok {
		return models.Order{}, validationError("status", "unknown status %q", next)
	}
	var from models.OrderStatus
	order, err := s.mutate(ctx, orderID, func(o *models.Order) (store.Row, error) {
		if !o.Status.CanTransition(next) {
			return nil, &InvalidTransitionError{Entity: "order", ID: o.ID, From: string(o.Status), To: string(next)}
		}
		from = o.Status
		o.Status = next
		return store.Row{"status": string(next)}, nil
	})
	if err != nil {
		return models.Order{}, err
	}
	log.Printf("🔄 Заказ #%d: %s -> %s", orderID, from, next)
	s.emit(StatusChange{OrderID: orderID, From: from, To: next, At: order.UpdatedAt})
	return order, nil
}

// UpdateItems заменяет позиции, пока заказ не ушел на кухню, и пересчитывает total
func (s *OrderService) UpdateItems(ctx context.Context, orderID int64, lines []OrderLineInput) (models.Order, error) {
	if len(lines) == 0 {
		return models.Order{}, validationError("items", "order must contain at least one item")
	}
	items, prepTime, err := s.resolveLines(ctx, lines)
	if err != nil {
		return models.Order{}, err
	}

	return s.mutate(ctx, orderID, func(o *models.Order) (store.Row, error) {
		if o.Status != models.OrderStatusPending {
			return nil, &InvalidTransitionError{Entity: "order", ID: o.ID, From: string(o.Status), To: "items changed"}
		}
		o.Items = items
		o.Total = models.ComputeTotal(items)
		o.EstimatedPrepTime = prepTime
		row, err := orderToRow(*o)
		if err != nil {
			return nil, err
		}
		return store.Row{"items": row["items"], "total": o.Total, "estimated_prep_time": prepTime}, nil
	})
}

// RecordPayment фиксирует оплату. Отмененный или уже оплаченный заказ оплатить нельзя.
func (s *OrderService) RecordPayment(ctx context.Context, orderID int64, method string, tip float64) (models.Order, error) {
	if method == "" {
		return models.Order{}, validationError("method", "payment method is required")
	}
	if tip < 0 {
		return models.Order{}, validationError("tip", "must not be negative")
	}
	return s.mutate(ctx, orderID, func(o *models.Order) (store.Row, error) {
		if o.Status == models.OrderStatusCancelled {
			return nil, &InvalidTransitionError{Entity: "order", ID: o.ID, From: string(o.Status), To: "paid"}
		}
		if o.PaymentStatus == models.PaymentStatusPaid {
			return nil, validationError("paymentStatus", "order %d is already paid", o.ID)
		}
		paidAt := s.now()
		o.PaymentStatus = models.PaymentStatusPaid
		o.PaymentMethod = method
		o.Tip = tip
		o.PaidAt = &paidAt
		return store.Row{
			"payment_status": string(o.PaymentStatus),
			"payment_method": method,
			"tip":            tip,
			"paid_at":        paidAt,
		}, nil
	})
}

// SyncFromTicket подтягивает статус заказа к статусу тикета кухни по одному шагу.
// Назад не двигает, терминальные заказы не трогает.
func (s *OrderService) SyncFromTicket(ctx context.Context, orderID int64, ticketStatus models.KitchenStatus) error {
	target := ticketStatus.OrderStatus()
	for {
		order, err := s.GetOrder(orderID)
		if err != nil {
			return err
		}
		if order.Status.IsTerminal() || order.Status == target {
			return nil
		}
		var step models.OrderStatus
		if target == models.OrderStatusCancelled {
			if !order.Status.CanTransition(models.OrderStatusCancelled) {
				return nil
			}
			step = models.OrderStatusCancelled
		} else {
			if target.Rank() <= order.Status.Rank() {
				return nil
			}
			step, _ = order.Status.Next()
		}
		if _, err := s.UpdateStatus(ctx, orderID, step); err != nil {
			var transitionErr *InvalidTransitionError
			if errors.As(err, &transitionErr) {
				// заказ успели изменить параллельно, перечитываем
				continue
			}
			return err
		}
	}
}

// mutate применяет изменение оптимистично, пишет патч в хранилище
// и откатывает локальное состояние, если запись не удалась.
// Правки одного заказа идут по очереди: откат не затирает чужую запись.
func (s *OrderService) mutate(ctx context.Context, orderID int64, apply func(o *models.Order) (store.Row, error)) (models.Order, error) {
	unlock := s.writes.lock(orderID)
	defer unlock()

	s.mu.Lock()
	current, ok := s.orders[orderID]
	if !ok {
		s.mu.Unlock()
		return models.Order{}, fmt.Errorf("order %d: %w", orderID, ErrNotFound)
	}
	previous := current
	optimistic := current.Clone()
	patch, err := apply(&optimistic)
	if err != nil {
		s.mu.Unlock()
		return models.Order{}, err
	}
	optimistic.UpdatedAt = s.now()
	s.orders[orderID] = &optimistic
	s.inFlight[orderID]++
	s.mu.Unlock()

	var saved store.Row
	err = writeWithRetry(ctx, "update", models.TableOrders, func() error {
		var werr error
		saved, werr = s.store.Update(ctx, models.TableOrders, orderID, patch)
		return werr
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight[orderID]--
	if s.inFlight[orderID] <= 0 {
		delete(s.inFlight, orderID)
	}
	if err != nil {
		if s.orders[orderID] == &optimistic {
			s.orders[orderID] = previous
		}
		log.Printf("❌ Заказ #%d: запись не удалась, изменения откатены: %v", orderID, err)
		return models.Order{}, err
	}
	if ts := rowTime(saved, "updated_at"); !ts.IsZero() {
		optimistic.UpdatedAt = ts
	}
	return optimistic.Clone(), nil
}

// GetOrder возвращает копию заказа
func (s *OrderService) GetOrder(orderID int64) (models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[orderID]
	if !ok {
		return models.Order{}, fmt.Errorf("order %d: %w", orderID, ErrNotFound)
	}
	return o.Clone(), nil
}

// Orders возвращает снимок всех заказов по возрастанию id
func (s *OrderService) Orders() []models.Order {
	s.mu.RLock()
	out := make([]models.Order, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, o.Clone())
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Refresh перечитывает таблицу orders и сверяет с локальным состоянием.
// Строка старше локальной или со статусом назад пропускается;
// результат устаревшего запроса (пришел более новый Refresh) отбрасывается.
func (s *OrderService) Refresh(ctx context.Context) error {
	gen := s.generation.Add(1)
	rows, err := s.store.Select(ctx, models.TableOrders, nil)
	if err != nil {
		return fmt.Errorf("refresh orders: %w", err)
	}
	if s.generation.Load() != gen {
		return nil
	}

	var changes []StatusChange
	s.mu.Lock()
	for _, row := range rows {
		remote, err := orderFromRow(row)
		if err != nil {
			var malformed *MalformedRecordError
			if !errors.As(err, &malformed) {
				log.Printf("⚠️ Пропущена строка orders: %v", err)
				continue
			}
			log.Printf("⚠️ %v", err)
		}
		local, exists := s.orders[remote.ID]
		if exists {
			// строка могла быть прочитана до нашей записи: старее или со статусом назад - не берем
			stale := remote.UpdatedAt.Before(local.UpdatedAt) || local.Status.Regresses(remote.Status)
			if s.inFlight[remote.ID] > 0 {
				log.Printf("⚠️ %v", &ReconciliationConflict{
					Table:      models.TableOrders,
					ID:         remote.ID,
					Local:      local.UpdatedAt,
					Remote:     remote.UpdatedAt,
					KeptRemote: !stale,
				})
			}
			if stale {
				continue
			}
		}
		if exists && local.Status != remote.Status {
			changes = append(changes, StatusChange{OrderID: remote.ID, From: local.Status, To: remote.Status, At: remote.UpdatedAt})
		}
		r := remote
		s.orders[remote.ID] = &r
		if remote.ID > s.lastID {
			s.lastID = remote.ID
		}
	}
	s.mu.Unlock()

	s.emit(changes...)
	return nil
}
