package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	connErr := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		conn, err := pgconn.Connect(ctx, "postgres://nobody@127.0.0.1:1/none?sslmode=disable&connect_timeout=1")
		if conn != nil {
			_ = conn.Close(ctx)
		}
		var ce *pgconn.ConnectError
		require.ErrorAs(t, err, &ce)
		return err
	}()

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"active registration exists", &pgconn.PgError{Code: "23505", ConstraintName: "attendees_one_active_per_user"}, ErrDuplicate},
		{"event id taken", &pgconn.PgError{Code: "23505", ConstraintName: "events_pkey"}, ErrDuplicate},
		{"ticket taken", &pgconn.PgError{Code: "23505", ConstraintName: constraintTicketNumber}, errTicketCollision},
		{"lock not available", &pgconn.PgError{Code: "55P03"}, ErrStorageUnavailable},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, ErrStorageUnavailable},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, ErrStorageUnavailable},
		{"statement timeout", &pgconn.PgError{Code: "57014"}, ErrStorageUnavailable},
		{"too many connections", &pgconn.PgError{Code: "53300"}, ErrStorageUnavailable},
		{"admin shutdown", &pgconn.PgError{Code: "57P01"}, ErrStorageUnavailable},
		{"pool acquire timeout", fmt.Errorf("begin transaction: %w", context.DeadlineExceeded), ErrStorageUnavailable},
		{"connection refused", connErr, ErrStorageUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(fmt.Errorf("write changeset: %w", tt.err))
			require.ErrorIs(t, got, tt.want)
		})
	}
}

func TestClassify_PassesThroughOtherErrors(t *testing.T) {
	require.NoError(t, classify(nil))

	fk := &pgconn.PgError{Code: "23503"}
	got := classify(fk)
	require.Same(t, fk, got)

	boom := errors.New("boom")
	got = classify(boom)
	require.Equal(t, boom, got)
	require.NotErrorIs(t, got, ErrStorageUnavailable)
	require.NotErrorIs(t, got, ErrDuplicate)
}

func TestClassify_TicketCollisionIsNotDuplicate(t *testing.T) {
	got := classify(&pgconn.PgError{Code: "23505", ConstraintName: constraintTicketNumber})
	require.NotErrorIs(t, got, ErrDuplicate)
}

func TestTxTimeouts(t *testing.T) {
	tests := []struct {
		lock          time.Duration
		wantLock      int64
		wantStatement int64
	}{
		{500 * time.Microsecond, 1, 2},
		{time.Nanosecond, 1, 2},
		{2 * time.Second, 2000, 4000},
		{1500 * time.Microsecond, 1, 2},
	}
	for _, tt := range tests {
		t.Run(tt.lock.String(), func(t *testing.T) {
			lockMS, statementMS := txTimeouts(tt.lock)
			require.Equal(t, tt.wantLock, lockMS)
			require.Equal(t, tt.wantStatement, statementMS)
		})
	}
}
