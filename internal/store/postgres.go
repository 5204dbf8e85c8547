package store

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PostgresGateway - Gateway поверх gorm. Работает только с таблицами,
// чьи модели переданы при создании; колонки берутся из схемы gorm.
type PostgresGateway struct {
	db      *gorm.DB
	feed    ChangeFeed
	columns map[string]map[string]bool
	now     func() time.Time
}

// NewPostgresGateway разбирает схемы моделей (TableName + колонки)
func NewPostgresGateway(db *gorm.DB, feed ChangeFeed, models ...interface{}) (*PostgresGateway, error) {
	if feed == nil {
		feed = NewLocalFeed()
	}
	g := &PostgresGateway{
		db:      db,
		feed:    feed,
		columns: make(map[string]map[string]bool, len(models)),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, m := range models {
		stmt := &gorm.Statement{DB: db}
		if err := stmt.Parse(m); err != nil {
			return nil, fmt.Errorf("parse schema %T: %w", m, err)
		}
		cols := make(map[string]bool, len(stmt.Schema.DBNames))
		for _, name := range stmt.Schema.DBNames {
			cols[name] = true
		}
		g.columns[stmt.Schema.Table] = cols
	}
	return g, nil
}

func (g *PostgresGateway) Select(ctx context.Context, table string, filter Filter) ([]Row, error) {
	cols, err := g.tableColumns(table)
	if err != nil {
		return nil, err
	}
	q := g.db.WithContext(ctx).Table(table)
	for k, v := range filter {
		if !cols[k] {
			return nil, fmt.Errorf("store: unknown column %s.%s", table, k)
		}
		q = q.Where(clause.Eq{Column: clause.Column{Name: k}, Value: v})
	}

	var found []map[string]interface{}
	if err := q.Order("id").Find(&found).Error; err != nil {
		return nil, err
	}
	rows := make([]Row, len(found))
	for i, r := range found {
		rows[i] = Row(r)
	}
	return rows, nil
}

func (g *PostgresGateway) Insert(ctx context.Context, table string, row Row) (Row, error) {
	cols, err := g.tableColumns(table)
	if err != nil {
		return nil, err
	}
	values := row.Clone()
	if id, ok := rowID(values["id"]); ok && id == 0 {
		delete(values, "id")
	}
	now := g.now()
	values["updated_at"] = now

	names, args, err := orderedColumns(table, cols, values)
	if err != nil {
		return nil, err
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")
	sql := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) RETURNING *`,
		quote(table), quoteAll(names), placeholders)

	var out []map[string]interface{}
	if err := g.db.WithContext(ctx).Raw(sql, args...).Scan(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("store: insert into %s returned no rows", table)
	}
	inserted := Row(out[0])
	id, _ := rowID(inserted["id"])
	g.publish(ctx, ChangeEvent{Table: table, Op: OpInsert, RowID: id, UpdatedAt: now})
	return inserted, nil
}

func (g *PostgresGateway) Update(ctx context.Context, table string, id int64, patch Row) (Row, error) {
	cols, err := g.tableColumns(table)
	if err != nil {
		return nil, err
	}
	values := patch.Clone()
	delete(values, "id")
	now := g.now()
	values["updated_at"] = now

	names, args, err := orderedColumns(table, cols, values)
	if err != nil {
		return nil, err
	}
	sets := make([]string, len(names))
	for i, n := range names {
		sets[i] = quote(n) + " = ?"
	}
	sql := fmt.Sprintf(`UPDATE %s SET %s WHERE "id" = ? RETURNING *`, quote(table), strings.Join(sets, ", "))
	args = append(args, id)

	var out []map[string]interface{}
	if err := g.db.WithContext(ctx).Raw(sql, args...).Scan(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s/%d", ErrRowNotFound, table, id)
	}
	g.publish(ctx, ChangeEvent{Table: table, Op: OpUpdate, RowID: id, UpdatedAt: now})
	return Row(out[0]), nil
}

func (g *PostgresGateway) Subscribe(table string, fn func(ChangeEvent)) func() {
	return g.feed.Subscribe(table, fn)
}

func (g *PostgresGateway) tableColumns(table string) (map[string]bool, error) {
	cols, ok := g.columns[table]
	if !ok {
		return nil, unknownTable(table)
	}
	return cols, nil
}

func (g *PostgresGateway) publish(ctx context.Context, ev ChangeEvent) {
	ev.ID = uuid.NewString()
	if err := g.feed.Publish(ctx, ev); err != nil {
		log.Printf("⚠️ store: не удалось опубликовать изменение %s/%d: %v", ev.Table, ev.RowID, err)
	}
}

// orderedColumns проверяет колонки по схеме и фиксирует порядок аргументов
func orderedColumns(table string, cols map[string]bool, values Row) ([]string, []interface{}, error) {
	names := make([]string, 0, len(values))
	for k := range values {
		if !cols[k] {
			return nil, nil, fmt.Errorf("store: unknown column %s.%s", table, k)
		}
		names = append(names, k)
	}
	sort.Strings(names)
	args := make([]interface{}, len(names))
	for i, n := range names {
		args[i] = values[n]
	}
	return names, args, nil
}

func quote(ident string) string {
	return `"` + ident + `"`
}

func quoteAll(idents []string) string {
	q := make([]string, len(idents))
	for i, id := range idents {
		q[i] = quote(id)
	}
	return strings.Join(q, ", ")
}
