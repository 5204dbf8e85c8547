package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// ErrNotFound - заказ, тикет, позиция или алерт не найдены
var ErrNotFound = errors.New("not found")

// ValidationError - некорректный ввод, до записи в хранилище не доходит
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func validationError(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// InvalidTransitionError - переход статуса запрещен машиной состояний
type InvalidTransitionError struct {
	Entity string
	ID     int64
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid %s %d transition: %s -> %s", e.Entity, e.ID, e.From, e.To)
}

// StoreWriteError - запись в хранилище не удалась, локальное состояние откатено.
// Вызывающий сам решает, повторять ли операцию.
type StoreWriteError struct {
	Op    string
	Table string
	Err   error
}

func (e *StoreWriteError) Error() string {
	return fmt.Sprintf("store %s on %s failed: %v", e.Op, e.Table, e.Err)
}

func (e *StoreWriteError) Unwrap() error {
	return e.Err
}

// Retryable - стоит ли повторить операцию (конфликт сериализации, deadlock, таймаут)
func (e *StoreWriteError) Retryable() bool {
	return IsRetryable(e.Err)
}

// ReconciliationConflict - пуш пришел, пока локальная запись еще в полете.
// Побеждает запись с более поздним updated_at из хранилища.
type ReconciliationConflict struct {
	Table      string
	ID         int64
	Local      time.Time
	Remote     time.Time
	KeptRemote bool
}

func (e *ReconciliationConflict) Error() string {
	winner := "local"
	if e.KeptRemote {
		winner = "remote"
	}
	return fmt.Sprintf("reconciliation conflict on %s %d: local=%s remote=%s, kept %s",
		e.Table, e.ID, e.Local.Format(time.RFC3339Nano), e.Remote.Format(time.RFC3339Nano), winner)
}

// MalformedRecordError - поле items в строке не парсится, подставлен пустой список
type MalformedRecordError struct {
	Table string
	ID    int64
	Err   error
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed %s record %d: %v", e.Table, e.ID, e.Err)
}

func (e *MalformedRecordError) Unwrap() error {
	return e.Err
}

// IsRetryable проверяет, является ли ошибка временной.
// PostgreSQL: 40001 - serialization_failure, 40P01 - deadlock_detected
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}

	errMsg := strings.ToLower(err.Error())
	return strings.Contains(errMsg, "could not serialize") ||
		strings.Contains(errMsg, "deadlock") ||
		strings.Contains(errMsg, "connection reset")
}

const (
	maxWriteAttempts = 3
	baseWriteDelay   = 10 * time.Millisecond
)

// writeWithRetry повторяет запись при конфликте сериализации (exponential backoff + jitter)
func writeWithRetry(ctx context.Context, op, table string, fn func() error) error {
	var err error
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !IsRetryable(err) || attempt == maxWriteAttempts-1 {
			break
		}
		delay := baseWriteDelay*time.Duration(1<<uint(attempt)) + time.Duration(rand.Intn(10))*time.Millisecond
		log.Printf("⚠️ %s %s: временная ошибка (попытка %d/%d), retry через %v: %v",
			op, table, attempt+1, maxWriteAttempts, delay, err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return &StoreWriteError{Op: op, Table: table, Err: ctx.Err()}
		}
	}
	return &StoreWriteError{Op: op, Table: table, Err: err}
}
