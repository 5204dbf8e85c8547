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

// OrderLink - то, что кухне нужно от сервиса заказов
type OrderLink interface {
	GetOrder(orderID int64) (models.Order, error)
	SyncFromTicket(ctx context.Context, orderID int64, status models.KitchenStatus) error
}

// TicketEvent - изменившиеся тикеты и полный снимок после изменения
type TicketEvent struct {
	Changed  []models.KitchenOrder
	Snapshot []models.KitchenOrder
}

type TicketObserver func(TicketEvent)

// KitchenService владеет тикетами кухни: статусы позиций, агрегированный статус тикета,
// приоритет, время готовки. Статус заказа зала подтягивается отдельной записью.
type KitchenService struct {
	store   store.Gateway
	catalog MenuCatalog
	orders  OrderLink
	now     func() time.Time

	mu         sync.RWMutex
	tickets    map[int64]*models.KitchenOrder
	byOrder    map[int64]int64
	inFlight   map[int64]int
	writes     rowLocks
	generation atomic.Uint64

	obsMu     sync.RWMutex
	observers []TicketObserver
}

func NewKitchenService(gw store.Gateway, catalog MenuCatalog, orders OrderLink) *KitchenService {
	return &KitchenService{
		store:    gw,
		catalog:  catalog,
		orders:   orders,
		now:      func() time.Time { return time.Now().UTC() },
		tickets:  make(map[int64]*models.KitchenOrder),
		byOrder:  make(map[int64]int64),
		inFlight: make(map[int64]int),
	}
}

func (k *KitchenService) AddObserver(fn TicketObserver) {
	k.obsMu.Lock()
	k.observers = append(k.observers, fn)
	k.obsMu.Unlock()
}

func (k *KitchenService) notify(changed ...models.KitchenOrder) {
	if len(changed) == 0 {
		return
	}
	k.obsMu.RLock()
	observers := append([]TicketObserver(nil), k.observers...)
	k.obsMu.RUnlock()
	if len(observers) == 0 {
		return
	}
	ev := TicketEvent{Changed: changed, Snapshot: k.Tickets()}
	for _, fn := range observers {
		fn(ev)
	}
}

// SubmitOrder создает тикет кухни для заказа. Повторная отправка запрещена.
func (k *KitchenService) SubmitOrder(ctx context.Context, orderID int64) (models.KitchenOrder, error) {
	order, err := k.orders.GetOrder(orderID)
	if err != nil {
		return models.KitchenOrder{}, err
	}
	if order.Status.IsTerminal() {
		return models.KitchenOrder{}, validationError("orderId", "order %d is %s", orderID, order.Status)
	}

	k.mu.RLock()
	_, exists := k.byOrder[orderID]
	k.mu.RUnlock()
	if exists {
		return models.KitchenOrder{}, validationError("orderId", "order %d already sent to kitchen", orderID)
	}

	items := make([]models.KitchenOrderItem, 0, len(order.Items))
	for i, it := range order.Items {
		item := models.KitchenOrderItem{
			ID:            i + 1,
			MenuItemID:    it.ID,
			Name:          it.Name,
			Quantity:      it.Quantity,
			Status:        models.KitchenStatusPending,
			Modifications: []string{},
		}
		if menuItem, err := k.catalog.GetMenuItem(ctx, it.ID); err == nil {
			item.CookingStation = menuItem.Station
			item.AllergenAlert = len(menuItem.Allergens) > 0
		} else {
			log.Printf("⚠️ Тикет заказа #%d: позиция %d не найдена в меню: %v", orderID, it.ID, err)
		}
		items = append(items, item)
	}

	now := k.now()
	ticket := models.KitchenOrder{
		OrderID:               orderID,
		TableNumber:           order.TableNumber,
		Items:                 items,
		Status:                models.AggregateStatus(items),
		Priority:              models.PriorityNormal,
		Notes:                 order.SpecialInstructions,
		EstimatedDeliveryTime: now.Add(time.Duration(order.EstimatedPrepTime) * time.Minute),
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	row, err := kitchenOrderToRow(ticket)
	if err != nil {
		return models.KitchenOrder{}, err
	}

	var saved store.Row
	err = writeWithRetry(ctx, "insert", models.TableKitchenOrders, func() error {
		var werr error
		saved, werr = k.store.Insert(ctx, models.TableKitchenOrders, row)
		return werr
	})
	if err != nil {
		return models.KitchenOrder{}, err
	}
	ticket.ID, _ = toInt64(saved["id"])
	if ts := rowTime(saved, "updated_at"); !ts.IsZero() {
		ticket.UpdatedAt = ts
	}

	k.mu.Lock()
	if existing, dup := k.byOrder[orderID]; dup && existing != ticket.ID {
		k.mu.Unlock()
		return models.KitchenOrder{}, validationError("orderId", "order %d already sent to kitchen", orderID)
	}
	stored := ticket.Clone()
	k.tickets[ticket.ID] = &stored
	k.byOrder[orderID] = ticket.ID
	k.mu.Unlock()

	log.Printf("✅ Тикет #%d создан для заказа #%d (%d позиций, готовность к %s)",
		ticket.ID, orderID, len(items), ticket.EstimatedDeliveryTime.Format(time.Kitchen))
	k.notify(ticket.Clone())
	return ticket, nil
}

// UpdateItemStatus меняет статус позиции тикета и пересчитывает статус тикета.
// startTime и completionTime ставятся один раз; повтор того же статуса не меняет время.
func (k *KitchenService) UpdateItemStatus(ctx context.Context, ticketID int64, itemID int, next models.KitchenStatus, chef string) (models.KitchenOrder, error) {
	if _, ok := models.ParseKitchenStatus(string(next)); !ok {
		return models.KitchenOrder{}, validationError("status", "unknown status %q", next)
	}
	return k.mutate(ctx, ticketID, func(t *models.KitchenOrder, now time.Time) (bool, error) {
		if t.Status.IsTerminal() {
			return false, &InvalidTransitionError{Entity: "ticket", ID: t.ID, From: string(t.Status), To: string(next)}
		}
		idx := -1
		for i := range t.Items {
			if t.Items[i].ID == itemID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return false, fmt.Errorf("item %d of ticket %d: %w", itemID, t.ID, ErrNotFound)
		}
		item := &t.Items[idx]

		changed := false
		if chef != "" && item.AssignedChef != chef {
			item.AssignedChef = chef
			changed = true
		}
		if item.Status != next {
			if !item.Status.CanTransition(next) {
				return false, &InvalidTransitionError{Entity: "ticket item", ID: int64(item.ID), From: string(item.Status), To: string(next)}
			}
			item.Status = next
			changed = true
		}
		if next == models.KitchenStatusPreparing && item.StartTime == nil {
			start := now
			item.StartTime = &start
			changed = true
		}
		if next == models.KitchenStatusReady && item.CompletionTime == nil {
			done := now
			item.CompletionTime = &done
			changed = true
		}
		t.Status = models.AggregateStatus(t.Items)
		return changed, nil
	})
}

// UpdatePriority - приоритет задается персоналом и не зависит от статуса
func (k *KitchenService) UpdatePriority(ctx context.Context, ticketID int64, priority models.Priority) (models.KitchenOrder, error) {
	if _, ok := models.ParsePriority(string(priority)); !ok {
		return models.KitchenOrder{}, validationError("priority", "unknown priority %q", priority)
	}
	return k.mutate(ctx, ticketID, func(t *models.KitchenOrder, _ time.Time) (bool, error) {
		if t.Priority == priority {
			return false, nil
		}
		t.Priority = priority
		return true, nil
	})
}

// DeliverTicket отдает готовый тикет: все готовые позиции становятся delivered
func (k *KitchenService) DeliverTicket(ctx context.Context, ticketID int64) (models.KitchenOrder, error) {
	return k.mutate(ctx, ticketID, func(t *models.KitchenOrder, _ time.Time) (bool, error) {
		if t.Status != models.KitchenStatusReady {
			return false, &InvalidTransitionError{Entity: "ticket", ID: t.ID, From: string(t.Status), To: string(models.KitchenStatusDelivered)}
		}
		for i := range t.Items {
			if t.Items[i].Status == models.KitchenStatusReady {
				t.Items[i].Status = models.KitchenStatusDelivered
			}
		}
		t.Status = models.KitchenStatusDelivered
		return true, nil
	})
}

// CancelTicket отменяет тикет, который еще не готов
func (k *KitchenService) CancelTicket(ctx context.Context, ticketID int64) (models.KitchenOrder, error) {
	return k.mutate(ctx, ticketID, func(t *models.KitchenOrder, _ time.Time) (bool, error) {
		if t.Status != models.KitchenStatusPending && t.Status != models.KitchenStatusPreparing {
			return false, &InvalidTransitionError{Entity: "ticket", ID: t.ID, From: string(t.Status), To: string(models.KitchenStatusCancelled)}
		}
		for i := range t.Items {
			if t.Items[i].Status.CanTransition(models.KitchenStatusCancelled) {
				t.Items[i].Status = models.KitchenStatusCancelled
			}
		}
		t.Status = models.KitchenStatusCancelled
		return true, nil
	})
}

// mutate: оптимистичное изменение → запись items/status/priority → откат при ошибке.
// После успешной записи уведомляет подписчиков и подтягивает статус заказа.
func (k *KitchenService) mutate(ctx context.Context, ticketID int64, apply func(t *models.KitchenOrder, now time.Time) (bool, error)) (models.KitchenOrder, error) {
	result, from, changed, err := k.write(ctx, ticketID, apply)
	if err != nil || !changed {
		return result, err
	}
	k.notify(result)
	if result.Status != from {
		log.Printf("🔄 Тикет #%d: %s -> %s", ticketID, from, result.Status)
		k.syncOrder(ctx, result)
	}
	return result, nil
}

// write держит блокировку тикета до конца записи или отката: следующая правка
// того же тикета строится уже от сохраненного (или восстановленного) состояния
func (k *KitchenService) write(ctx context.Context, ticketID int64, apply func(t *models.KitchenOrder, now time.Time) (bool, error)) (models.KitchenOrder, models.KitchenStatus, bool, error) {
	unlock := k.writes.lock(ticketID)
	defer unlock()

	k.mu.Lock()
	current, ok := k.tickets[ticketID]
	if !ok {
		k.mu.Unlock()
		return models.KitchenOrder{}, "", false, fmt.Errorf("ticket %d: %w", ticketID, ErrNotFound)
	}
	previous := current
	optimistic := current.Clone()
	now := k.now()
	changed, err := apply(&optimistic, now)
	if err != nil || !changed {
		k.mu.Unlock()
		if err != nil {
			return models.KitchenOrder{}, "", false, err
		}
		return optimistic, previous.Status, false, nil
	}
	optimistic.UpdatedAt = now
	items, err := encodeKitchenItems(optimistic.Items)
	if err != nil {
		k.mu.Unlock()
		return models.KitchenOrder{}, "", false, err
	}
	patch := store.Row{
		"items":    items,
		"status":   string(optimistic.Status),
		"priority": string(optimistic.Priority),
	}
	k.tickets[ticketID] = &optimistic
	k.inFlight[ticketID]++
	k.mu.Unlock()

	var saved store.Row
	err = writeWithRetry(ctx, "update", models.TableKitchenOrders, func() error {
		var werr error
		saved, werr = k.store.Update(ctx, models.TableKitchenOrders, ticketID, patch)
		return werr
	})

	k.mu.Lock()
	defer k.mu.Unlock()
	k.inFlight[ticketID]--
	if k.inFlight[ticketID] <= 0 {
		delete(k.inFlight, ticketID)
	}
	if err != nil {
		if k.tickets[ticketID] == &optimistic {
			k.tickets[ticketID] = previous
		}
		log.Printf("❌ Тикет #%d: запись не удалась, изменения откатены: %v", ticketID, err)
		return models.KitchenOrder{}, "", false, err
	}
	if ts := rowTime(saved, "updated_at"); !ts.IsZero() {
		optimistic.UpdatedAt = ts
	}
	return optimistic.Clone(), previous.Status, true, nil
}

// syncOrder - отдельная запись в orders; при сбое расхождение лечится в Reconcile
func (k *KitchenService) syncOrder(ctx context.Context, t models.KitchenOrder) {
	if k.orders == nil {
		return
	}
	if err := k.orders.SyncFromTicket(ctx, t.OrderID, t.Status); err != nil {
		log.Printf("⚠️ Заказ #%d не синхронизирован с тикетом #%d (%s): %v", t.OrderID, t.ID, t.Status, err)
	}
}

// HandleOrderStatus - обратная связь от зала: выданный заказ закрывает готовый тикет,
// отмененный заказ отменяет тикет, который еще готовится
func (k *KitchenService) HandleOrderStatus(ch StatusChange) {
	k.mu.RLock()
	ticketID, ok := k.byOrder[ch.OrderID]
	var status models.KitchenStatus
	if ok {
		status = k.tickets[ticketID].Status
	}
	k.mu.RUnlock()
	if !ok {
		return
	}

	ctx := context.Background()
	var err error
	switch {
	case ch.To == models.OrderStatusDelivered && status == models.KitchenStatusReady:
		_, err = k.DeliverTicket(ctx, ticketID)
	case ch.To == models.OrderStatusCancelled && (status == models.KitchenStatusPending || status == models.KitchenStatusPreparing):
		_, err = k.CancelTicket(ctx, ticketID)
	}
	if err != nil {
		log.Printf("⚠️ Тикет #%d не обновлен по статусу заказа #%d: %v", ticketID, ch.OrderID, err)
	}
}

func (k *KitchenService) GetTicket(ticketID int64) (models.KitchenOrder, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	t, ok := k.tickets[ticketID]
	if !ok {
		return models.KitchenOrder{}, fmt.Errorf("ticket %d: %w", ticketID, ErrNotFound)
	}
	return t.Clone(), nil
}

func (k *KitchenService) TicketForOrder(orderID int64) (models.KitchenOrder, error) {
	k.mu.RLock()
	ticketID, ok := k.byOrder[orderID]
	k.mu.RUnlock()
	if !ok {
		return models.KitchenOrder{}, fmt.Errorf("ticket for order %d: %w", orderID, ErrNotFound)
	}
	return k.GetTicket(ticketID)
}

// Tickets - снимок всех тикетов по возрастанию id
func (k *KitchenService) Tickets() []models.KitchenOrder {
	k.mu.RLock()
	out := make([]models.KitchenOrder, 0, len(k.tickets))
	for _, t := range k.tickets {
		out = append(out, t.Clone())
	}
	k.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ActiveTickets - тикеты, которые еще не отданы и не отменены
func (k *KitchenService) ActiveTickets() []models.KitchenOrder {
	all := k.Tickets()
	active := all[:0]
	for _, t := range all {
		if t.IsActive() {
			active = append(active, t)
		}
	}
	return active
}

// Refresh перечитывает kitchen_orders целиком и сверяет с локальным состоянием
// (last-write-wins по updated_at, статус назад не откатывается).
// Результат устаревшего запроса отбрасывается.
func (k *KitchenService) Refresh(ctx context.Context) error {
	gen := k.generation.Add(1)
	rows, err := k.store.Select(ctx, models.TableKitchenOrders, nil)
	if err != nil {
		return fmt.Errorf("refresh kitchen orders: %w", err)
	}
	if k.generation.Load() != gen {
		return nil
	}

	var changed []models.KitchenOrder
	k.mu.Lock()
	for _, row := range rows {
		remote, err := kitchenOrderFromRow(row)
		if err != nil {
			var malformed *MalformedRecordError
			if !errors.As(err, &malformed) {
				log.Printf("⚠️ Пропущена строка kitchen_orders: %v", err)
				continue
			}
			log.Printf("⚠️ %v", err)
		}
		local, exists := k.tickets[remote.ID]
		if exists {
			// выборка могла завершиться раньше нашей записи: старую строку не применяем
			stale := remote.UpdatedAt.Before(local.UpdatedAt) || local.Status.Regresses(remote.Status)
			if k.inFlight[remote.ID] > 0 {
				log.Printf("⚠️ %v", &ReconciliationConflict{
					Table:      models.TableKitchenOrders,
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
		if exists && local.UpdatedAt.Equal(remote.UpdatedAt) && local.Status == remote.Status {
			continue
		}
		r := remote
		k.tickets[remote.ID] = &r
		k.byOrder[remote.OrderID] = remote.ID
		changed = append(changed, remote.Clone())
	}
	k.mu.Unlock()

	k.notify(changed...)
	return nil
}

// Reconcile перечитывает заказы и тикеты и подтягивает статусы заказов к тикетам.
// Лечит расхождение, если процесс упал между записью тикета и записью заказа.
func (k *KitchenService) Reconcile(ctx context.Context, orders *OrderService) error {
	if orders != nil {
		if err := orders.Refresh(ctx); err != nil {
			return err
		}
	}
	if err := k.Refresh(ctx); err != nil {
		return err
	}
	for _, t := range k.Tickets() {
		k.syncOrder(ctx, t)
	}
	return nil
}

// Start загружает состояние и подписывается на изменения обеих таблиц.
// Каждое уведомление - полный refetch, а не патч.
func (k *KitchenService) Start(ctx context.Context, orders *OrderService) error {
	if err := k.Reconcile(ctx, orders); err != nil {
		return err
	}

	unsubTickets := k.store.Subscribe(models.TableKitchenOrders, func(ev store.ChangeEvent) {
		if err := k.Refresh(ctx); err != nil {
			log.Printf("⚠️ Refetch kitchen_orders после %s #%d: %v", ev.Op, ev.RowID, err)
			return
		}
		if t, err := k.GetTicket(ev.RowID); err == nil {
			k.syncOrder(ctx, t)
		}
	})
	unsubOrders := func() {}
	if orders != nil {
		unsubOrders = k.store.Subscribe(models.TableOrders, func(ev store.ChangeEvent) {
			if err := orders.Refresh(ctx); err != nil {
				log.Printf("⚠️ Refetch orders после %s #%d: %v", ev.Op, ev.RowID, err)
			}
		})
	}

	go func() {
		<-ctx.Done()
		unsubTickets()
		unsubOrders()
	}()
	log.Println("📡 Кухня подписана на изменения orders и kitchen_orders")
	return nil
}
