package store

import (
	"context"
	"fmt"

	"roombook/backend/internal/domain"
)

type BookingRepository interface {
	Create(ctx context.Context, b domain.Booking) (domain.Booking, error)
	List(ctx context.Context) ([]domain.Booking, error)
	Delete(ctx context.Context, id int64) (domain.Booking, error)
	Ping(ctx context.Context) error
}

// LedgerTx is the view of the store available while a date is locked for writing.
type LedgerTx interface {
	ListBookingsOn(ctx context.Context, date domain.Date) ([]domain.Booking, error)
	InsertBooking(ctx context.Context, b domain.Booking) (domain.Booking, error)
}

// OverlapError names the committed booking a candidate collides with.
type OverlapError struct {
	Existing domain.Booking
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("conflict: overlaps booking %d on %s %s", e.Existing.ID, e.Existing.Date, e.Existing.Interval())
}

func (e *OverlapError) Unwrap() error {
	return ErrConflict
}

// EnsureNoOverlap must run while the candidate's date is locked.
func EnsureNoOverlap(ctx context.Context, tx LedgerTx, candidate domain.Booking) error {
	existing, err := tx.ListBookingsOn(ctx, candidate.Date)
	if err != nil {
		return err
	}
	for _, e := range existing {
		if candidate.ConflictsWith(e) {
			return &OverlapError{Existing: e}
		}
	}
	return nil
}

// CreateChecked runs the overlap guard and the insert in the same locked scope.
func CreateChecked(ctx context.Context, tx LedgerTx, candidate domain.Booking) (domain.Booking, error) {
	if err := EnsureNoOverlap(ctx, tx, candidate); err != nil {
		return domain.Booking{}, err
	}
	return tx.InsertBooking(ctx, candidate)
}
