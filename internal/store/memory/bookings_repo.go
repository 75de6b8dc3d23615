// Package memory keeps bookings in process memory. Data does not survive a restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"roombook/backend/internal/domain"
	"roombook/backend/internal/store"
)

type BookingRepo struct {
	locks *store.DateLocks

	mu     sync.RWMutex
	nextID int64
	rows   map[int64]domain.Booking
}

func NewBookingRepo() *BookingRepo {
	return &BookingRepo{
		locks: store.NewDateLocks(),
		rows:  make(map[int64]domain.Booking),
	}
}

type ledgerTx struct {
	r *BookingRepo
}

func (r *BookingRepo) Create(ctx context.Context, b domain.Booking) (domain.Booking, error) {
	unlock, err := r.locks.Lock(ctx, b.Date)
	if err != nil {
		return domain.Booking{}, err
	}
	defer unlock()

	return store.CreateChecked(ctx, ledgerTx{r: r}, b)
}

func (r *BookingRepo) List(ctx context.Context) ([]domain.Booking, error) {
	r.mu.RLock()
	out := make([]domain.Booking, 0, len(r.rows))
	for _, b := range r.rows {
		out = append(out, b)
	}
	r.mu.RUnlock()

	sortBookings(out)
	return out, nil
}

func (r *BookingRepo) Delete(ctx context.Context, id int64) (domain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.rows[id]
	if !ok {
		return domain.Booking{}, store.ErrNotFound
	}
	delete(r.rows, id)
	return b, nil
}

func (r *BookingRepo) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (t ledgerTx) ListBookingsOn(ctx context.Context, date domain.Date) ([]domain.Booking, error) {
	t.r.mu.RLock()
	defer t.r.mu.RUnlock()

	var out []domain.Booking
	for _, b := range t.r.rows {
		if b.Date == date {
			out = append(out, b)
		}
	}
	sortBookings(out)
	return out, nil
}

func (t ledgerTx) InsertBooking(ctx context.Context, b domain.Booking) (domain.Booking, error) {
	if err := ctx.Err(); err != nil {
		return domain.Booking{}, err
	}

	t.r.mu.Lock()
	defer t.r.mu.Unlock()

	t.r.nextID++
	b.ID = t.r.nextID
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	t.r.rows[b.ID] = b
	return b, nil
}

func sortBookings(rows []domain.Booking) {
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Date != b.Date {
			return a.Date.String() < b.Date.String()
		}
		if a.StartTime != b.StartTime {
			return a.StartTime < b.StartTime
		}
		return a.ID < b.ID
	})
}
