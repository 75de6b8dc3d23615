package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsOverlapViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "exclusion violation on overlap constraint",
			err:  &pgconn.PgError{Code: "23P01", ConstraintName: "bookings_no_overlap"},
			want: true,
		},
		{
			name: "wrapped",
			err:  fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23P01", ConstraintName: "bookings_no_overlap"}),
			want: true,
		},
		{
			name: "other constraint",
			err:  &pgconn.PgError{Code: "23P01", ConstraintName: "something_else"},
			want: false,
		},
		{
			name: "check violation",
			err:  &pgconn.PgError{Code: "23514", ConstraintName: "bookings_time_order"},
			want: false,
		},
		{
			name: "plain error",
			err:  errors.New("boom"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isOverlapViolation(tt.err); got != tt.want {
				t.Fatalf("isOverlapViolation = %v, want %v", got, tt.want)
			}
		})
	}
}

type fakePinger struct {
	failures int
	calls    int
}

func (f *fakePinger) PingContext(ctx context.Context) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("connection refused")
	}
	return nil
}

func TestPingWithRetry(t *testing.T) {
	t.Run("succeeds after transient failures", func(t *testing.T) {
		p := &fakePinger{failures: 2}
		err := pingWithRetry(context.Background(), p, RetryPolicy{MaxAttempts: 5, Delay: time.Millisecond})
		if err != nil {
			t.Fatalf("pingWithRetry error: %v", err)
		}
		if p.calls != 3 {
			t.Fatalf("calls = %d, want 3", p.calls)
		}
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		p := &fakePinger{failures: 10}
		err := pingWithRetry(context.Background(), p, RetryPolicy{MaxAttempts: 3, Delay: time.Millisecond})
		if err == nil {
			t.Fatalf("expected error")
		}
		if p.calls != 3 {
			t.Fatalf("calls = %d, want 3", p.calls)
		}
	})

	t.Run("zero attempts still pings once", func(t *testing.T) {
		p := &fakePinger{}
		if err := pingWithRetry(context.Background(), p, RetryPolicy{}); err != nil {
			t.Fatalf("pingWithRetry error: %v", err)
		}
		if p.calls != 1 {
			t.Fatalf("calls = %d, want 1", p.calls)
		}
	})

	t.Run("stops waiting when context is cancelled", func(t *testing.T) {
		p := &fakePinger{failures: 10}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := pingWithRetry(ctx, p, RetryPolicy{MaxAttempts: 3, Delay: time.Hour})
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want %v", err, context.Canceled)
		}
	})
}
