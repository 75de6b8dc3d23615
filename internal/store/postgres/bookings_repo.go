package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"roombook/backend/internal/domain"
	"roombook/backend/internal/store"
)

const (
	exclusionViolation  = "23P01"
	overlapConstraint   = "bookings_no_overlap"
	dateLockKeyPrefix   = "bookings:"
	listOrderExpression = "date ASC, start_time ASC, id ASC"
)

type BookingRepo struct {
	db *bun.DB
}

func NewBookingRepo(db *bun.DB) *BookingRepo {
	return &BookingRepo{db: db}
}

type ledgerTx struct {
	tx bun.Tx
}

func (r *BookingRepo) Create(ctx context.Context, b domain.Booking) (domain.Booking, error) {
	var out domain.Booking
	err := r.InDateTransaction(ctx, b.Date, func(ctx context.Context, tx store.LedgerTx) error {
		created, err := store.CreateChecked(ctx, tx, b)
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
		OrderExpr(listOrderExpression).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *BookingRepo) Delete(ctx context.Context, id int64) (domain.Booking, error) {
	var removed domain.Booking
	res, err := r.db.NewDelete().
		Model(&removed).
		Where("id = ?", id).
		Returning("*").
		Exec(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Booking{}, store.ErrNotFound
		}
		return domain.Booking{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Booking{}, err
	}
	if affected == 0 {
		return domain.Booking{}, store.ErrNotFound
	}
	return removed, nil
}

func (r *BookingRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// InDateTransaction serializes fn against every other writer of the same date.
func (r *BookingRepo) InDateTransaction(ctx context.Context, date domain.Date, fn func(ctx context.Context, tx store.LedgerTx) error) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockDate(ctx, tx, date); err != nil {
			return err
		}
		return fn(ctx, ledgerTx{tx: tx})
	})
}

func lockDate(ctx context.Context, tx bun.Tx, date domain.Date) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", dateLockKeyPrefix+date.String()).Exec(ctx)
	return err
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

	_, err := t.tx.NewInsert().Model(&m).Returning("*").Exec(ctx)
	if err != nil {
		if isOverlapViolation(err) {
			return domain.Booking{}, store.ErrConflict
		}
		return domain.Booking{}, err
	}
	return m, nil
}

func isOverlapViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == exclusionViolation && pgErr.ConstraintName == overlapConstraint
}
