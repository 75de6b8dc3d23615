package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"

	"roombook/backend/internal/domain"
	"roombook/backend/internal/store"
)

const overlapTrigger = "bookings_no_overlap"

type BookingRepo struct {
	db    *bun.DB
	locks *store.DateLocks
}

func NewBookingRepo(db *bun.DB) *BookingRepo {
	return &BookingRepo{db: db, locks: store.NewDateLocks()}
}

type ledgerTx struct {
	tx bun.Tx
}

func (r *BookingRepo) Create(ctx context.Context, b domain.Booking) (domain.Booking, error) {
	unlock, err := r.locks.Lock(ctx, b.Date)
	if err != nil {
		return domain.Booking{}, err
	}
	defer unlock()

	var out domain.Booking
	err = r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		created, err := store.CreateChecked(ctx, ledgerTx{tx: tx}, b)
		if err != nil {
			return err
		}
		out = created
		return nil
	})
	if err != nil {
		return domain.Booking{}, err
	}
	return out, nil
}

func (r *BookingRepo) List(ctx context.Context) ([]domain.Booking, error) {
	rows := make([]domain.Booking, 0)
	err := r.db.NewSelect().
		Model(&rows).
		OrderExpr("date ASC, start_time ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *BookingRepo) Delete(ctx context.Context, id int64) (domain.Booking, error) {
	var removed domain.Booking
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := tx.NewSelect().Model(&removed).Where("id = ?", id).Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrNotFound
			}
			return err
		}
		_, err := tx.NewDelete().Model((*domain.Booking)(nil)).Where("id = ?", id).Exec(ctx)
		return err
	})
	if err != nil {
		return domain.Booking{}, err
	}
	return removed, nil
}

func (r *BookingRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (t ledgerTx) ListBookingsOn(ctx context.Context, date domain.Date) ([]domain.Booking, error) {
	var rows []domain.Booking
	err := t.tx.NewSelect().
		Model(&rows).
		Where("date = ?", date).
		OrderExpr("start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (t ledgerTx) InsertBooking(ctx context.Context, b domain.Booking) (domain.Booking, error) {
	m := domain.Booking{
		Department: b.Department,
		Name:       b.Name,
		Date:       b.Date,
		StartTime:  b.StartTime,
		EndTime:    b.EndTime,
		Reason:     b.Reason,
		CreatedAt:  b.CreatedAt,
	}
	if _, err := t.tx.NewInsert().Model(&m).Returning("*").Exec(ctx); err != nil {
		if isOverlapViolation(err) {
			return domain.Booking{}, store.ErrConflict
		}
		return domain.Booking{}, err
	}
	return m, nil
}

func isOverlapViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code == sqlite3.ErrConstraint && strings.Contains(sqliteErr.Error(), overlapTrigger)
}
