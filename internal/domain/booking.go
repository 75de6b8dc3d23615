package domain

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

type Booking struct {
	bun.BaseModel `bun:"table:bookings"`

	ID         int64     `bun:"id,pk,autoincrement"`
	Department string    `bun:"department,notnull"`
	Name       string    `bun:"name,notnull"`
	Date       Date      `bun:"date,type:date,notnull"`
	StartTime  TimeOfDay `bun:"start_time,type:time,notnull"`
	EndTime    TimeOfDay `bun:"end_time,type:time,notnull"`
	Reason     string    `bun:"reason,notnull"`
	CreatedAt  time.Time `bun:"created_at,notnull"`
}

func (b *Booking) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); ok && b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	return nil
}

func (b Booking) Interval() Interval {
	return Interval{Start: b.StartTime, End: b.EndTime}
}

// ConflictsWith reports whether b and other share a date and their intervals intersect.
func (b Booking) ConflictsWith(other Booking) bool {
	return b.Date == other.Date && b.Interval().Overlaps(other.Interval())
}

// Interval is the half-open range [Start, End).
type Interval struct {
	Start TimeOfDay
	End   TimeOfDay
}

func (i Interval) Valid() bool {
	return i.Start < i.End
}

// Overlaps reports whether i and o intersect. Touching endpoints do not overlap.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start < o.End && i.End > o.Start
}

func (i Interval) String() string {
	return "[" + i.Start.String() + ", " + i.End.String() + ")"
}
