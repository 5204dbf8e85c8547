package store

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryGateway хранит таблицы в памяти процесса (STORE_BACKEND=memory, тесты)
type MemoryGateway struct {
	mu     sync.RWMutex
	tables map[string]map[int64]Row
	seq    map[string]int64
	feed   ChangeFeed
	now    func() time.Time
}

// NewMemoryGateway создает хранилище с заданным набором таблиц.
// feed == nil - используется LocalFeed.
func NewMemoryGateway(feed ChangeFeed, tables ...string) *MemoryGateway {
	if feed == nil {
		feed = NewLocalFeed()
	}
	g := &MemoryGateway{
		tables: make(map[string]map[int64]Row, len(tables)),
		seq:    make(map[string]int64, len(tables)),
		feed:   feed,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, t := range tables {
		g.tables[t] = make(map[int64]Row)
	}
	return g
}

// SetClock подменяет источник времени updated_at
func (g *MemoryGateway) SetClock(now func() time.Time) {
	g.mu.Lock()
	g.now = now
	g.mu.Unlock()
}

func (g *MemoryGateway) Select(ctx context.Context, table string, filter Filter) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()

	rows, ok := g.tables[table]
	if !ok {
		return nil, unknownTable(table)
	}
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		if matches(r, filter) {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, _ := rowID(out[i]["id"])
		b, _ := rowID(out[j]["id"])
		return a < b
	})
	return out, nil
}

func (g *MemoryGateway) Insert(ctx context.Context, table string, row Row) (Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	rows, ok := g.tables[table]
	if !ok {
		g.mu.Unlock()
		return nil, unknownTable(table)
	}

	stored := row.Clone()
	id, hasID := rowID(stored["id"])
	if !hasID || id == 0 {
		g.seq[table]++
		id = g.seq[table]
	} else if id > g.seq[table] {
		g.seq[table] = id
	}
	if _, exists := rows[id]; exists {
		g.mu.Unlock()
		return nil, fmt.Errorf("%w: %s/%d", ErrDuplicateID, table, id)
	}
	now := g.now()
	stored["id"] = id
	stored["updated_at"] = now
	rows[id] = stored
	out := stored.Clone()
	g.mu.Unlock()

	g.publish(ctx, ChangeEvent{Table: table, Op: OpInsert, RowID: id, UpdatedAt: now})
	return out, nil
}

func (g *MemoryGateway) Update(ctx context.Context, table string, id int64, patch Row) (Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	rows, ok := g.tables[table]
	if !ok {
		g.mu.Unlock()
		return nil, unknownTable(table)
	}
	current, ok := rows[id]
	if !ok {
		g.mu.Unlock()
		return nil, fmt.Errorf("%w: %s/%d", ErrRowNotFound, table, id)
	}
	next := current.Clone()
	for k, v := range patch {
		if k == "id" {
			continue
		}
		next[k] = v
	}
	now := g.now()
	next["updated_at"] = now
	rows[id] = next
	out := next.Clone()
	g.mu.Unlock()

	g.publish(ctx, ChangeEvent{Table: table, Op: OpUpdate, RowID: id, UpdatedAt: now})
	return out, nil
}

func (g *MemoryGateway) Subscribe(table string, fn func(ChangeEvent)) func() {
	return g.feed.Subscribe(table, fn)
}

func (g *MemoryGateway) publish(ctx context.Context, ev ChangeEvent) {
	ev.ID = uuid.NewString()
	if err := g.feed.Publish(ctx, ev); err != nil {
		log.Printf("⚠️ store: не удалось опубликовать изменение %s/%d: %v", ev.Table, ev.RowID, err)
	}
}

func matches(r Row, filter Filter) bool {
	for k, want := range filter {
		got, ok := r[k]
		if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}
