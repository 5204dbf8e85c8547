// Package store - шлюз к хранилищу заказов и тикетов кухни:
// select/insert/update по таблицам и подписка на изменения.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrUnknownTable = errors.New("store: unknown table")
	ErrRowNotFound  = errors.New("store: row not found")
	ErrDuplicateID  = errors.New("store: duplicate id")
)

// Row - запись таблицы в виде колонка → значение (snake_case)
type Row map[string]any

// Filter - условия равенства по колонкам
type Filter map[string]any

// Clone делает поверхностную копию записи
func (r Row) Clone() Row {
	c := make(Row, len(r))
	for k, v := range r {
		c[k] = v
	}
	return c
}

type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
)

// ChangeEvent - уведомление об изменении строки.
// Подписчик не применяет его как патч, а перечитывает таблицу.
type ChangeEvent struct {
	ID        string    `json:"id"`
	Table     string    `json:"table"`
	Op        Op        `json:"op"`
	RowID     int64     `json:"row_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Gateway - контракт хранилища, которым пользуются сервисы заказов и кухни
type Gateway interface {
	Select(ctx context.Context, table string, filter Filter) ([]Row, error)
	Insert(ctx context.Context, table string, row Row) (Row, error)
	Update(ctx context.Context, table string, id int64, patch Row) (Row, error)
	Subscribe(table string, fn func(ChangeEvent)) (unsubscribe func())
}

// ChangeFeed доставляет ChangeEvent всем экземплярам сервиса
type ChangeFeed interface {
	Publish(ctx context.Context, ev ChangeEvent) error
	Subscribe(table string, fn func(ChangeEvent)) (unsubscribe func())
	Close() error
}

func unknownTable(table string) error {
	return fmt.Errorf("%w: %q", ErrUnknownTable, table)
}

func rowID(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), n == float64(int64(n))
	}
	return 0, false
}
