package ledger

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"roombook/backend/internal/domain"
	"roombook/backend/internal/events"
	"roombook/backend/internal/store"
)

const (
	tracerName     = "roombook/backend/internal/service/ledger"
	publishTimeout = 5 * time.Second
)

type Authorizer interface {
	Authorize(ctx context.Context, credential string) error
}

type Publisher interface {
	Publish(ctx context.Context, e events.Event) error
}

type Service struct {
	repo         store.BookingRepository
	authz        Authorizer
	publisher    Publisher
	log          *slog.Logger
	tracer       trace.Tracer
	storeTimeout time.Duration
	validate     *validator.Validate
	now          func() time.Time
}

type Option func(*Service)

func WithPublisher(p Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) {
		if tp != nil {
			s.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithStoreTimeout bounds each store call; zero leaves only the caller's deadline.
func WithStoreTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.storeTimeout = d
	}
}

func NewService(repo store.BookingRepository, authz Authorizer, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		authz:     authz,
		publisher: events.Nop{},
		log:       slog.Default(),
		tracer:    otel.Tracer(tracerName),
		validate:  newValidator(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(slog.String("component", "ledger"))
	return s
}

type InsertInput struct {
	Department string `json:"department" validate:"required,max=100"`
	Name       string `json:"name" validate:"required,max=100"`
	Date       string `json:"date" validate:"required,civil_date"`
	StartTime  string `json:"start_time" validate:"required,time_of_day"`
	EndTime    string `json:"end_time" validate:"required,time_of_day"`
	Reason     string `json:"reason" validate:"required"`
}

func (in InsertInput) trimmed() InsertInput {
	return InsertInput{
		Department: strings.TrimSpace(in.Department),
		Name:       strings.TrimSpace(in.Name),
		Date:       strings.TrimSpace(in.Date),
		StartTime:  strings.TrimSpace(in.StartTime),
		EndTime:    strings.TrimSpace(in.EndTime),
		Reason:     strings.TrimSpace(in.Reason),
	}
}

// candidate validates in and returns the booking it describes, without touching the store.
func (s *Service) candidate(in InsertInput) (domain.Booking, error) {
	in = in.trimmed()
	if err := s.validate.Struct(in); err != nil {
		return domain.Booking{}, translateValidationErrors(err)
	}

	date, err := domain.ParseDate(in.Date)
	if err != nil {
		return domain.Booking{}, validationError("date", ReasonInvalidDate)
	}
	start, err := domain.ParseTimeOfDay(in.StartTime)
	if err != nil {
		return domain.Booking{}, validationError("start_time", ReasonInvalidTime)
	}
	end, err := domain.ParseTimeOfDay(in.EndTime)
	if err != nil {
		return domain.Booking{}, validationError("end_time", ReasonInvalidTime)
	}

	b := domain.Booking{
		Department: in.Department,
		Name:       in.Name,
		Date:       date,
		StartTime:  start,
		EndTime:    end,
		Reason:     in.Reason,
	}
	if !b.Interval().Valid() {
		return domain.Booking{}, validationError("end_time", ReasonInvalidTimeRange)
	}
	return b, nil
}

func (s *Service) Insert(ctx context.Context, in InsertInput) (_ domain.Booking, err error) {
	ctx, span := s.tracer.Start(ctx, "ledger.Insert")
	defer func() { endSpan(span, err) }()

	candidate, err := s.candidate(in)
	if err != nil {
		return domain.Booking{}, err
	}
	span.SetAttributes(
		attribute.String("booking.date", candidate.Date.String()),
		attribute.String("booking.interval", candidate.Interval().String()),
	)

	storeCtx, cancel := s.storeContext(ctx)
	created, err := s.repo.Create(storeCtx, candidate)
	cancel()
	if err != nil {
		var oErr *store.OverlapError
		switch {
		case errors.As(err, &oErr):
			return domain.Booking{}, &ConflictError{Date: candidate.Date, Existing: oErr.Existing}
		case errors.Is(err, store.ErrConflict):
			return domain.Booking{}, &ConflictError{Date: candidate.Date}
		}
		return domain.Booking{}, s.storeFailure(ctx, "create", err)
	}
	span.SetAttributes(attribute.Int64("booking.id", created.ID))

	s.log.Info("booking created",
		slog.Int64("id", created.ID),
		slog.String("date", created.Date.String()),
		slog.String("interval", created.Interval().String()),
	)
	s.publish(ctx, events.TypeBookingCreated, created)
	return created, nil
}

func (s *Service) List(ctx context.Context) (_ []domain.Booking, err error) {
	ctx, span := s.tracer.Start(ctx, "ledger.List")
	defer func() { endSpan(span, err) }()

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	rows, err := s.repo.List(storeCtx)
	if err != nil {
		return nil, s.storeFailure(ctx, "list", err)
	}
	span.SetAttributes(attribute.Int("booking.count", len(rows)))
	return rows, nil
}

// Delete checks credential before anything else, so a rejected caller learns nothing about id.
func (s *Service) Delete(ctx context.Context, id int64, credential string) (_ domain.Booking, err error) {
	ctx, span := s.tracer.Start(ctx, "ledger.Delete", trace.WithAttributes(attribute.Int64("booking.id", id)))
	defer func() { endSpan(span, err) }()

	if s.authz == nil {
		return domain.Booking{}, ErrUnauthorized
	}
	if err := s.authz.Authorize(ctx, credential); err != nil {
		s.log.Warn("delete rejected", slog.Int64("id", id), slog.Any("err", err))
		return domain.Booking{}, ErrUnauthorized
	}
	if id <= 0 {
		return domain.Booking{}, ErrNotFound
	}

	storeCtx, cancel := s.storeContext(ctx)
	removed, err := s.repo.Delete(storeCtx, id)
	cancel()
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Booking{}, ErrNotFound
		}
		return domain.Booking{}, s.storeFailure(ctx, "delete", err)
	}

	s.log.Info("booking deleted",
		slog.Int64("id", removed.ID),
		slog.String("date", removed.Date.String()),
	)
	s.publish(ctx, events.TypeBookingDeleted, removed)
	return removed, nil
}

func (s *Service) Ping(ctx context.Context) error {
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()
	if err := s.repo.Ping(storeCtx); err != nil {
		return s.storeFailure(ctx, "ping", err)
	}
	return nil
}

func (s *Service) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.storeTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.storeTimeout)
}

// storeFailure passes through the caller's own cancellation and reports everything
// else as ErrStoreUnavailable, keeping the cause for logs.
func (s *Service) storeFailure(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	s.log.Error("store call failed", slog.String("op", op), slog.Any("err", err))
	return errors.Join(ErrStoreUnavailable, err)
}

func (s *Service) publish(ctx context.Context, eventType string, b domain.Booking) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	e := events.New(eventType, b, s.now())
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.log.Warn("event publish failed",
			slog.String("type", eventType),
			slog.Int64("id", b.ID),
			slog.Any("err", err),
		)
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
