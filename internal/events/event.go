package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"roombook/backend/internal/domain"
)

const (
	TypeBookingCreated = "booking.created"
	TypeBookingDeleted = "booking.deleted"
)

type Event struct {
	ID         uuid.UUID
	Type       string
	OccurredAt time.Time
	Booking    domain.Booking
}

func New(eventType string, b domain.Booking, at time.Time) Event {
	return Event{
		ID:         uuid.New(),
		Type:       eventType,
		OccurredAt: at.UTC(),
		Booking:    b,
	}
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

type envelope struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	OccurredAt time.Time      `json:"occurred_at"`
	Booking    bookingPayload `json:"booking"`
}

type bookingPayload struct {
	ID         int64  `json:"id"`
	Department string `json:"department"`
	Name       string `json:"name"`
	Date       string `json:"date"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	Reason     string `json:"reason"`
}

// Encode renders e as the JSON body shared by every broker.
func Encode(e Event) ([]byte, error) {
	return json.Marshal(envelope{
		ID:         e.ID.String(),
		Type:       e.Type,
		OccurredAt: e.OccurredAt,
		Booking: bookingPayload{
			ID:         e.Booking.ID,
			Department: e.Booking.Department,
			Name:       e.Booking.Name,
			Date:       e.Booking.Date.String(),
			StartTime:  e.Booking.StartTime.String(),
			EndTime:    e.Booking.EndTime.String(),
			Reason:     e.Booking.Reason,
		},
	})
}

type Nop struct{}

func (Nop) Publish(ctx context.Context, e Event) error { return nil }
func (Nop) Close() error                               { return nil }
