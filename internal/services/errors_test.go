package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"pgx serialization", &pgconn.PgError{Code: "40001"}, true},
		{"pgx deadlock wrapped", fmt.Errorf("update: %w", &pgconn.PgError{Code: "40P01"}), true},
		{"pgx unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"pq deadlock", &pq.Error{Code: "40P01"}, true},
		{"deadline", context.DeadlineExceeded, true},
		{"message", errors.New("pq: could not serialize access due to concurrent update"), true},
		{"other", errors.New("syntax error"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsRetryable(tc.err))
		})
	}
}

func TestWriteWithRetry(t *testing.T) {
	calls := 0
	err := writeWithRetry(context.Background(), "update", "orders", func() error {
		calls++
		return &pgconn.PgError{Code: "40001"}
	})
	var werr *StoreWriteError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, 3, calls)
	assert.True(t, werr.Retryable())
	assert.Equal(t, "update", werr.Op)

	calls = 0
	err = writeWithRetry(context.Background(), "insert", "orders", func() error {
		calls++
		if calls < 2 {
			return errors.New("deadlock detected")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestWriteWithRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := writeWithRetry(ctx, "update", "kitchen_orders", func() error {
		calls++
		cancel()
		return errors.New("deadlock detected")
	})
	var werr *StoreWriteError
	require.ErrorAs(t, err, &werr)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
