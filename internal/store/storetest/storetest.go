// Package storetest holds behaviour checks every BookingRepository must pass.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"roombook/backend/internal/domain"
	"roombook/backend/internal/store"
)

func Booking(date domain.Date, start, end string) domain.Booking {
	return domain.Booking{
		Department: "eng",
		Name:       "alice",
		Date:       date,
		StartTime:  domain.MustTimeOfDay(start),
		EndTime:    domain.MustTimeOfDay(end),
		Reason:     "planning",
	}
}

// Run exercises repo factories built by newRepo. Each subtest gets a fresh repo.
func Run(t *testing.T, newRepo func(t *testing.T) store.BookingRepository) {
	t.Run("create assigns ids and round trips fields", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		day := domain.Date{Year: 2026, Month: time.January, Day: 5}

		got, err := repo.Create(ctx, Booking(day, "09:00", "10:00"))
		if err != nil {
			t.Fatalf("Create error: %v", err)
		}
		if got.ID <= 0 {
			t.Fatalf("id = %d, want > 0", got.ID)
		}
		if got.Department != "eng" || got.Name != "alice" || got.Reason != "planning" {
			t.Fatalf("fields = %+v", got)
		}
		if got.Date != day || got.StartTime.String() != "09:00:00" || got.EndTime.String() != "10:00:00" {
			t.Fatalf("date/time = %s %s", got.Date, got.Interval())
		}
		if got.CreatedAt.IsZero() {
			t.Fatalf("created_at not set")
		}
	})

	t.Run("empty ledger lists nothing", func(t *testing.T) {
		rows, err := newRepo(t).List(context.Background())
		if err != nil {
			t.Fatalf("List error: %v", err)
		}
		if rows == nil || len(rows) != 0 {
			t.Fatalf("rows = %#v, want empty non-nil", rows)
		}
	})

	t.Run("overlap rejected and back to back accepted", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		day := domain.Date{Year: 2026, Month: time.January, Day: 5}

		first, err := repo.Create(ctx, Booking(day, "09:00", "10:00"))
		if err != nil {
			t.Fatalf("Create error: %v", err)
		}

		for _, c := range [][2]string{
			{"09:30", "10:30"},
			{"08:30", "09:30"},
			{"08:00", "11:00"},
			{"09:15", "09:45"},
			{"09:00", "10:00"},
		} {
			_, err := repo.Create(ctx, Booking(day, c[0], c[1]))
			var oErr *store.OverlapError
			if !errors.As(err, &oErr) {
				t.Fatalf("Create [%s,%s) err = %v, want *OverlapError", c[0], c[1], err)
			}
			if oErr.Existing.ID != first.ID {
				t.Fatalf("conflict id = %d, want %d", oErr.Existing.ID, first.ID)
			}
		}

		if _, err := repo.Create(ctx, Booking(day, "10:00", "11:00")); err != nil {
			t.Fatalf("after Create error: %v", err)
		}
		if _, err := repo.Create(ctx, Booking(day, "08:00", "09:00")); err != nil {
			t.Fatalf("before Create error: %v", err)
		}
		other := domain.Date{Year: 2026, Month: time.January, Day: 6}
		if _, err := repo.Create(ctx, Booking(other, "09:00", "10:00")); err != nil {
			t.Fatalf("other date Create error: %v", err)
		}

		rows, err := repo.List(ctx)
		if err != nil {
			t.Fatalf("List error: %v", err)
		}
		if len(rows) != 4 {
			t.Fatalf("len(rows) = %d, want 4", len(rows))
		}
		want := []string{"2026-01-05 08:00:00", "2026-01-05 09:00:00", "2026-01-05 10:00:00", "2026-01-06 09:00:00"}
		for i, r := range rows {
			if got := r.Date.String() + " " + r.StartTime.String(); got != want[i] {
				t.Fatalf("rows[%d] = %s, want %s", i, got, want[i])
			}
		}
	})

	t.Run("delete returns the removed booking and frees the slot", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		day := domain.Date{Year: 2026, Month: time.January, Day: 5}

		first, err := repo.Create(ctx, Booking(day, "09:00", "10:00"))
		if err != nil {
			t.Fatalf("Create error: %v", err)
		}
		removed, err := repo.Delete(ctx, first.ID)
		if err != nil {
			t.Fatalf("Delete error: %v", err)
		}
		if removed.ID != first.ID || removed.Reason != first.Reason || removed.Date != day {
			t.Fatalf("removed = %+v, want %+v", removed, first)
		}
		if _, err := repo.Delete(ctx, first.ID); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("second Delete err = %v, want %v", err, store.ErrNotFound)
		}
		if _, err := repo.Delete(ctx, 999999); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("unknown Delete err = %v, want %v", err, store.ErrNotFound)
		}

		again, err := repo.Create(ctx, Booking(day, "09:00", "10:00"))
		if err != nil {
			t.Fatalf("Create after delete error: %v", err)
		}
		if again.ID == first.ID {
			t.Fatalf("id %d reused after delete", first.ID)
		}
	})

	t.Run("concurrent overlapping inserts have one winner", func(t *testing.T) {
		repo := newRepo(t)
		day := domain.Date{Year: 2026, Month: time.February, Day: 2}
		const n = 10

		errs := make([]error, n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = repo.Create(context.Background(), Booking(day, fmt.Sprintf("09:%02d", i), "11:00"))
			}(i)
		}
		wg.Wait()

		wins := 0
		for _, err := range errs {
			switch {
			case err == nil:
				wins++
			case errors.Is(err, store.ErrConflict):
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if wins != 1 {
			t.Fatalf("winners = %d, want 1", wins)
		}
	})

	t.Run("concurrent disjoint inserts all succeed", func(t *testing.T) {
		repo := newRepo(t)
		day := domain.Date{Year: 2026, Month: time.February, Day: 3}
		const n = 10

		errs := make([]error, n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				start := fmt.Sprintf("%02d:00", 8+i)
				end := fmt.Sprintf("%02d:00", 9+i)
				_, errs[i] = repo.Create(context.Background(), Booking(day, start, end))
			}(i)
		}
		wg.Wait()

		for i, err := range errs {
			if err != nil {
				t.Fatalf("insert %d error: %v", i, err)
			}
		}
		rows, err := repo.List(context.Background())
		if err != nil {
			t.Fatalf("List error: %v", err)
		}
		if len(rows) != n {
			t.Fatalf("len(rows) = %d, want %d", len(rows), n)
		}
		seen := make(map[int64]bool, n)
		for i := range rows {
			if seen[rows[i].ID] {
				t.Fatalf("duplicate id %d", rows[i].ID)
			}
			seen[rows[i].ID] = true
			for j := i + 1; j < len(rows); j++ {
				if rows[i].ConflictsWith(rows[j]) {
					t.Fatalf("committed overlap: %s and %s", rows[i].Interval(), rows[j].Interval())
				}
			}
		}
	})
}
