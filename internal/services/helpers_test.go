package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"restodash/server/internal/models"
	"restodash/server/internal/store"
)

var baseTime = time.Date(2024, 5, 10, 18, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock { return &testClock{now: baseTime} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// gate останавливает вызов хранилища, пока тест его не отпустит
type gate struct {
	reached chan struct{}
	release chan struct{}
	err     error
}

func newGate(err error) *gate {
	return &gate{reached: make(chan struct{}), release: make(chan struct{}), err: err}
}

func (g *gate) wait() error {
	close(g.reached)
	<-g.release
	return g.err
}

// flakyGateway отдает заданные ошибки на первые N вызовов Update
// и умеет придержать следующий Select или Update
type flakyGateway struct {
	store.Gateway
	mu          sync.Mutex
	updateErrs  []error
	updateCalls int
	selectGate  *gate
	updateGate  *gate
}

// holdNextSelect: следующий Select читает строки и ждет release
func (g *flakyGateway) holdNextSelect() *gate {
	gt := newGate(nil)
	g.mu.Lock()
	g.selectGate = gt
	g.mu.Unlock()
	return gt
}

// holdNextUpdate: следующий Update ждет release и завершается с err, ничего не записав
func (g *flakyGateway) holdNextUpdate(err error) *gate {
	gt := newGate(err)
	g.mu.Lock()
	g.updateGate = gt
	g.mu.Unlock()
	return gt
}

func (g *flakyGateway) Select(ctx context.Context, table string, filter store.Filter) ([]store.Row, error) {
	rows, err := g.Gateway.Select(ctx, table, filter)
	g.mu.Lock()
	gt := g.selectGate
	g.selectGate = nil
	g.mu.Unlock()
	if gt != nil {
		_ = gt.wait()
	}
	return rows, err
}

func (g *flakyGateway) failNextUpdates(errs ...error) {
	g.mu.Lock()
	g.updateErrs = append(g.updateErrs, errs...)
	g.mu.Unlock()
}

func (g *flakyGateway) Update(ctx context.Context, table string, id int64, patch store.Row) (store.Row, error) {
	g.mu.Lock()
	g.updateCalls++
	if gt := g.updateGate; gt != nil {
		g.updateGate = nil
		g.mu.Unlock()
		if err := gt.wait(); err != nil {
			return nil, err
		}
		return g.Gateway.Update(ctx, table, id, patch)
	}
	if len(g.updateErrs) > 0 {
		err := g.updateErrs[0]
		g.updateErrs = g.updateErrs[1:]
		g.mu.Unlock()
		return nil, err
	}
	g.mu.Unlock()
	return g.Gateway.Update(ctx, table, id, patch)
}

type testStack struct {
	clock   *testClock
	mem     *store.MemoryGateway
	gw      *flakyGateway
	catalog *StaticCatalog
	orders  *OrderService
	kitchen *KitchenService
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()
	clock := newTestClock()
	mem := store.NewMemoryGateway(nil, models.TableOrders, models.TableKitchenOrders)
	mem.SetClock(clock.Now)
	gw := &flakyGateway{Gateway: mem}
	catalog := NewStaticCatalog(DefaultMenu()...)

	orders := NewOrderService(gw, catalog)
	orders.now = clock.Now
	kitchen := NewKitchenService(gw, catalog, orders)
	kitchen.now = clock.Now
	orders.AddObserver(kitchen.HandleOrderStatus)

	return &testStack{clock: clock, mem: mem, gw: gw, catalog: catalog, orders: orders, kitchen: kitchen}
}

func line(id int64, qty int) OrderLineInput {
	return OrderLineInput{MenuItemID: id, Quantity: qty}
}

// burgerOrder: 2 x Classic Burger (12.5, grill, 12 мин) + 1 x French Fries (4, fryer, 5 мин)
func (s *testStack) burgerOrder(t *testing.T) models.Order {
	t.Helper()
	o, err := s.orders.CreateOrder(context.Background(), CreateOrderInput{
		Items:               []OrderLineInput{line(1, 2), line(4, 1)},
		TableNumber:         7,
		ServerName:          "Maria",
		SpecialInstructions: "no onions",
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return o
}

type changeRecorder struct {
	mu      sync.Mutex
	changes []StatusChange
}

func (r *changeRecorder) observe(ch StatusChange) {
	r.mu.Lock()
	r.changes = append(r.changes, ch)
	r.mu.Unlock()
}

func (r *changeRecorder) transitions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.changes))
	for i, ch := range r.changes {
		out[i] = string(ch.From) + "->" + string(ch.To)
	}
	return out
}
