package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restodash/server/internal/models"
	"restodash/server/internal/store"
)

func (s *testStack) submit(t *testing.T) models.KitchenOrder {
	t.Helper()
	s.burgerOrder(t)
	ticket, err := s.kitchen.SubmitOrder(context.Background(), 1)
	require.NoError(t, err)
	return ticket
}

func (s *testStack) orderStatus(t *testing.T, id int64) models.OrderStatus {
	t.Helper()
	o, err := s.orders.GetOrder(id)
	require.NoError(t, err)
	return o.Status
}

func TestSubmitOrderBuildsTicket(t *testing.T) {
	s := newTestStack(t)
	ticket := s.submit(t)

	assert.Equal(t, int64(1), ticket.ID)
	assert.Equal(t, int64(1), ticket.OrderID)
	assert.Equal(t, 7, ticket.TableNumber)
	assert.Equal(t, models.KitchenStatusPending, ticket.Status)
	assert.Equal(t, models.PriorityNormal, ticket.Priority)
	assert.Equal(t, "no onions", ticket.Notes)
	assert.Equal(t, baseTime.Add(24*time.Minute), ticket.EstimatedDeliveryTime)

	require.Len(t, ticket.Items, 2)
	burger, fries := ticket.Items[0], ticket.Items[1]
	assert.Equal(t, 1, burger.ID)
	assert.Equal(t, int64(1), burger.MenuItemID)
	assert.Equal(t, "grill", burger.CookingStation)
	assert.True(t, burger.AllergenAlert)
	assert.Equal(t, 2, burger.Quantity)
	assert.Equal(t, 2, fries.ID)
	assert.Equal(t, "fryer", fries.CookingStation)
	assert.False(t, fries.AllergenAlert)

	byOrder, err := s.kitchen.TicketForOrder(1)
	require.NoError(t, err)
	assert.Equal(t, ticket.ID, byOrder.ID)
}

func TestSubmitOrderRejectsDuplicatesAndClosedOrders(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()
	s.submit(t)

	_, err := s.kitchen.SubmitOrder(ctx, 1)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	s.burgerOrder(t)
	_, err = s.orders.UpdateStatus(ctx, 2, models.OrderStatusCancelled)
	require.NoError(t, err)
	_, err = s.kitchen.SubmitOrder(ctx, 2)
	assert.ErrorAs(t, err, &verr)

	_, err = s.kitchen.SubmitOrder(ctx, 77)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Len(t, s.kitchen.Tickets(), 1)
}

func TestItemTimestampsAreSetOnce(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()
	ticket := s.submit(t)

	s.clock.Advance(2 * time.Minute)
	got, err := s.kitchen.UpdateItemStatus(ctx, ticket.ID, 1, models.KitchenStatusPreparing, "Luca")
	require.NoError(t, err)
	require.NotNil(t, got.Items[0].StartTime)
	started := *got.Items[0].StartTime
	assert.Equal(t, baseTime.Add(2*time.Minute), started)
	assert.Equal(t, "Luca", got.Items[0].AssignedChef)
	assert.Equal(t, models.KitchenStatusPreparing, got.Status)

	s.clock.Advance(time.Minute)
	got, err = s.kitchen.UpdateItemStatus(ctx, ticket.ID, 1, models.KitchenStatusPreparing, "")
	require.NoError(t, err)
	assert.Equal(t, started, *got.Items[0].StartTime)

	s.clock.Advance(10 * time.Minute)
	got, err = s.kitchen.UpdateItemStatus(ctx, ticket.ID, 1, models.KitchenStatusReady, "")
	require.NoError(t, err)
	require.NotNil(t, got.Items[0].CompletionTime)
	completed := *got.Items[0].CompletionTime
	assert.Equal(t, baseTime.Add(13*time.Minute), completed)

	s.clock.Advance(time.Minute)
	got, err = s.kitchen.UpdateItemStatus(ctx, ticket.ID, 1, models.KitchenStatusReady, "")
	require.NoError(t, err)
	assert.Equal(t, completed, *got.Items[0].CompletionTime)
	assert.Equal(t, started, *got.Items[0].StartTime)
	assert.Nil(t, got.Items[1].StartTime)
}

func TestItemStatusRejectsSkips(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()
	ticket := s.submit(t)

	_, err := s.kitchen.UpdateItemStatus(ctx, ticket.ID, 1, models.KitchenStatusReady, "")
	var terr *InvalidTransitionError
	assert.ErrorAs(t, err, &terr)

	_, err = s.kitchen.UpdateItemStatus(ctx, ticket.ID, 9, models.KitchenStatusPreparing, "")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.kitchen.UpdateItemStatus(ctx, ticket.ID, 1, "burnt", "")
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestTicketLifecycleDrivesOrder(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()
	ticket := s.submit(t)
	rec := &changeRecorder{}
	s.orders.AddObserver(rec.observe)

	_, err := s.kitchen.DeliverTicket(ctx, ticket.ID)
	var terr *InvalidTransitionError
	require.ErrorAs(t, err, &terr)

	_, err = s.kitchen.UpdateItemStatus(ctx, ticket.ID, 1, models.KitchenStatusPreparing, "")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPreparing, s.orderStatus(t, 1))

	for _, step := range []models.KitchenStatus{models.KitchenStatusPreparing, models.KitchenStatusReady} {
		_, err = s.kitchen.UpdateItemStatus(ctx, ticket.ID, 2, step, "")
		require.NoError(t, err)
	}
	got, err := s.kitchen.GetTicket(ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, models.KitchenStatusPreparing, got.Status)

	got, err = s.kitchen.UpdateItemStatus(ctx, ticket.ID, 1, models.KitchenStatusReady, "")
	require.NoError(t, err)
	assert.Equal(t, models.KitchenStatusReady, got.Status)
	assert.Equal(t, models.OrderStatusReady, s.orderStatus(t, 1))

	got, err = s.kitchen.DeliverTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, models.KitchenStatusDelivered, got.Status)
	for _, it := range got.Items {
		assert.Equal(t, models.KitchenStatusDelivered, it.Status)
	}
	assert.Equal(t, models.OrderStatusDelivered, s.orderStatus(t, 1))
	assert.Equal(t, []string{"pending->preparing", "preparing->ready", "ready->delivered"}, rec.transitions())

	_, err = s.kitchen.UpdateItemStatus(ctx, ticket.ID, 1, models.KitchenStatusPreparing, "")
	assert.ErrorAs(t, err, &terr)
	assert.Empty(t, s.kitchen.ActiveTickets())
}

func TestOrderDeliveredClosesReadyTicket(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()
	ticket := s.submit(t)
	for _, item := range []int{1, 2} {
		_, err := s.kitchen.UpdateItemStatus(ctx, ticket.ID, item, models.KitchenStatusPreparing, "")
		require.NoError(t, err)
		_, err = s.kitchen.UpdateItemStatus(ctx, ticket.ID, item, models.KitchenStatusReady, "")
		require.NoError(t, err)
	}
	require.Equal(t, models.OrderStatusReady, s.orderStatus(t, 1))

	_, err := s.orders.UpdateStatus(ctx, 1, models.OrderStatusDelivered)
	require.NoError(t, err)

	got, err := s.kitchen.GetTicket(ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, models.KitchenStatusDelivered, got.Status)
}

func TestOrderCancelCancelsTicket(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()
	ticket := s.submit(t)
	_, err := s.kitchen.UpdateItemStatus(ctx, ticket.ID, 1, models.KitchenStatusPreparing, "")
	require.NoError(t, err)

	_, err = s.orders.UpdateStatus(ctx, 1, models.OrderStatusCancelled)
	require.NoError(t, err)

	got, err := s.kitchen.GetTicket(ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, models.KitchenStatusCancelled, got.Status)
	for _, it := range got.Items {
		assert.Equal(t, models.KitchenStatusCancelled, it.Status)
	}
}

func TestCancelTicketCancelsOrder(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()
	ticket := s.submit(t)

	got, err := s.kitchen.CancelTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, models.KitchenStatusCancelled, got.Status)
	assert.Equal(t, models.OrderStatusCancelled, s.orderStatus(t, 1))

	_, err = s.kitchen.CancelTicket(ctx, ticket.ID)
	var terr *InvalidTransitionError
	assert.ErrorAs(t, err, &terr)
}

func TestUpdatePriorityNotifiesObservers(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()
	ticket := s.submit(t)

	var mu sync.Mutex
	var events []TicketEvent
	s.kitchen.AddObserver(func(ev TicketEvent) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})

	got, err := s.kitchen.UpdatePriority(ctx, ticket.ID, models.PriorityRush)
	require.NoError(t, err)
	assert.Equal(t, models.PriorityRush, got.Priority)

	// повтор того же приоритета ничего не пишет
	_, err = s.kitchen.UpdatePriority(ctx, ticket.ID, models.PriorityRush)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 1)
	require.Len(t, events[0].Changed, 1)
	assert.Equal(t, models.PriorityRush, events[0].Changed[0].Priority)
	assert.Len(t, events[0].Snapshot, 1)

	_, err = s.kitchen.UpdatePriority(ctx, ticket.ID, "asap")
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestTicketWriteFailureRollsBack(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()
	ticket := s.submit(t)

	s.gw.failNextUpdates(errors.New("connection refused"))
	_, err := s.kitchen.UpdateItemStatus(ctx, ticket.ID, 1, models.KitchenStatusPreparing, "Luca")
	var werr *StoreWriteError
	require.ErrorAs(t, err, &werr)

	got, err := s.kitchen.GetTicket(ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, models.KitchenStatusPending, got.Items[0].Status)
	assert.Nil(t, got.Items[0].StartTime)
	assert.Empty(t, got.Items[0].AssignedChef)
	assert.Equal(t, models.OrderStatusPending, s.orderStatus(t, 1))
}

func TestReconcileHealsOrderBehindTicket(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()
	ticket := s.submit(t)

	// тикет записан другим экземпляром, запись заказа потерялась
	items := ticket.Items
	for i := range items {
		items[i].Status = models.KitchenStatusReady
	}
	encoded, err := encodeKitchenItems(items)
	require.NoError(t, err)
	s.clock.Advance(time.Minute)
	_, err = s.mem.Update(ctx, models.TableKitchenOrders, ticket.ID, store.Row{"items": encoded, "status": "ready"})
	require.NoError(t, err)

	require.NoError(t, s.kitchen.Reconcile(ctx, s.orders))

	got, err := s.kitchen.GetTicket(ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, models.KitchenStatusReady, got.Status)
	assert.Equal(t, models.OrderStatusReady, s.orderStatus(t, 1))
}

func TestStartRefetchesOnStoreChanges(t *testing.T) {
	s := newTestStack(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ticket := s.submit(t)
	require.NoError(t, s.kitchen.Start(ctx, s.orders))

	s.clock.Advance(time.Minute)
	_, err := s.mem.Update(ctx, models.TableKitchenOrders, ticket.ID, store.Row{"priority": "high"})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		got, err := s.kitchen.GetTicket(ticket.ID)
		return err == nil && got.Priority == models.PriorityHigh
	}, time.Second, 10*time.Millisecond)
}

func TestRefreshKeepsNewerLocalState(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()
	ticket := s.submit(t)

	// локальное состояние новее строки в хранилище - оставляем локальное
	s.kitchen.mu.Lock()
	local := s.kitchen.tickets[ticket.ID].Clone()
	local.Priority = models.PriorityRush
	local.UpdatedAt = baseTime.Add(time.Hour)
	s.kitchen.tickets[ticket.ID] = &local
	s.kitchen.inFlight[ticket.ID] = 1
	s.kitchen.mu.Unlock()

	require.NoError(t, s.kitchen.Refresh(ctx))
	got, err := s.kitchen.GetTicket(ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PriorityRush, got.Priority)

	// и без записи в полете
	s.kitchen.mu.Lock()
	delete(s.kitchen.inFlight, ticket.ID)
	s.kitchen.mu.Unlock()

	require.NoError(t, s.kitchen.Refresh(ctx))
	got, err = s.kitchen.GetTicket(ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PriorityRush, got.Priority)

	// более поздняя запись другого экземпляра побеждает
	s.clock.Advance(2 * time.Hour)
	_, err = s.mem.Update(ctx, models.TableKitchenOrders, ticket.ID, store.Row{"priority": "high"})
	require.NoError(t, err)
	require.NoError(t, s.kitchen.Refresh(ctx))
	got, err = s.kitchen.GetTicket(ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PriorityHigh, got.Priority)
}

func TestRefreshIgnoresTicketRowsReadBeforeLocalWrite(t *testing.T) {
	for _, advance := range []time.Duration{0, time.Minute} {
		s := newTestStack(t)
		ctx := context.Background()
		ticket := s.submit(t)

		gt := s.gw.holdNextSelect()
		refreshed := make(chan error, 1)
		go func() { refreshed <- s.kitchen.Refresh(ctx) }()
		<-gt.reached

		s.clock.Advance(advance)
		_, err := s.kitchen.UpdateItemStatus(ctx, ticket.ID, 1, models.KitchenStatusPreparing, "Luca")
		require.NoError(t, err)

		close(gt.release)
		require.NoError(t, <-refreshed)

		got, err := s.kitchen.GetTicket(ticket.ID)
		require.NoError(t, err)
		assert.Equal(t, models.KitchenStatusPreparing, got.Status, "advance %v", advance)
		assert.Equal(t, models.KitchenStatusPreparing, got.Items[0].Status, "advance %v", advance)
		assert.NotNil(t, got.Items[0].StartTime, "advance %v", advance)
		assert.Equal(t, models.OrderStatusPreparing, s.orderStatus(t, ticket.OrderID))
	}
}

func TestTicketWritesAreSerializedPerTicket(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()
	ticket := s.submit(t)

	gt := s.gw.holdNextUpdate(errors.New("connection refused"))
	itemErr := make(chan error, 1)
	go func() {
		_, err := s.kitchen.UpdateItemStatus(ctx, ticket.ID, 1, models.KitchenStatusPreparing, "Luca")
		itemErr <- err
	}()
	<-gt.reached

	rushed := make(chan error, 1)
	go func() {
		_, err := s.kitchen.UpdatePriority(ctx, ticket.ID, models.PriorityRush)
		rushed <- err
	}()
	select {
	case err := <-rushed:
		t.Fatalf("priority write finished before the item write: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(gt.release)
	var werr *StoreWriteError
	require.ErrorAs(t, <-itemErr, &werr)
	require.NoError(t, <-rushed)

	got, err := s.kitchen.GetTicket(ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, models.KitchenStatusPending, got.Items[0].Status)
	assert.Nil(t, got.Items[0].StartTime)
	assert.Equal(t, models.PriorityRush, got.Priority)

	rows, err := s.mem.Select(ctx, models.TableKitchenOrders, store.Filter{"id": ticket.ID})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	stored, err := kitchenOrderFromRow(rows[0])
	require.NoError(t, err)
	assert.Equal(t, models.KitchenStatusPending, stored.Items[0].Status)
	assert.Equal(t, models.PriorityRush, stored.Priority)
	assert.Zero(t, s.kitchen.writes.size())
}
