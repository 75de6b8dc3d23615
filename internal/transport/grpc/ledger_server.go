package grpc

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"roombook/backend/internal/auth"
	"roombook/backend/internal/domain"
	"roombook/backend/internal/service/ledger"
)

type LedgerServer struct {
	svc ledgerService
	log *slog.Logger
}

type ledgerService interface {
	List(ctx context.Context) ([]domain.Booking, error)
	Insert(ctx context.Context, in ledger.InsertInput) (domain.Booking, error)
	Delete(ctx context.Context, id int64, credential string) (domain.Booking, error)
}

func NewLedgerServer(svc ledgerService, log *slog.Logger) *LedgerServer {
	if log == nil {
		log = slog.Default()
	}
	return &LedgerServer{
		svc: svc,
		log: log.With(slog.String("component", "grpc.ledger")),
	}
}

func (s *LedgerServer) ListBookings(ctx context.Context, req *ListBookingsRequest) (*ListBookingsResponse, error) {
	log := s.log.With(slog.String("rpc", "ListBookings"))

	rows, err := s.svc.List(ctx)
	if err != nil {
		return nil, toStatus(log, err)
	}

	out := make([]Booking, 0, len(rows))
	for _, b := range rows {
		out = append(out, toWireBooking(b))
	}
	log.Debug("bookings listed", slog.Int("count", len(out)))

	return &ListBookingsResponse{Bookings: out}, nil
}

func (s *LedgerServer) CreateBooking(ctx context.Context, req *CreateBookingRequest) (*CreateBookingResponse, error) {
	log := s.log.With(slog.String("rpc", "CreateBooking"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	created, err := s.svc.Insert(ctx, ledger.InsertInput{
		Department: req.Department,
		Name:       req.Name,
		Date:       req.Date,
		StartTime:  req.StartTime,
		EndTime:    req.EndTime,
		Reason:     req.Reason,
	})
	if err != nil {
		return nil, toStatus(log.With(slog.String("date", req.Date)), err)
	}

	log.Info(
		"booking created",
		slog.Int64("booking_id", created.ID),
		slog.String("date", created.Date.String()),
		slog.String("interval", created.Interval().String()),
	)
	return &CreateBookingResponse{Booking: toWireBooking(created)}, nil
}

func (s *LedgerServer) DeleteBooking(ctx context.Context, req *DeleteBookingRequest) (*DeleteBookingResponse, error) {
	log := s.log.With(slog.String("rpc", "DeleteBooking"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	removed, err := s.svc.Delete(ctx, req.ID, credential(ctx))
	if err != nil {
		return nil, toStatus(log.With(slog.Int64("booking_id", req.ID)), err)
	}

	log.Info("booking deleted", slog.Int64("booking_id", removed.ID))
	return &DeleteBookingResponse{Booking: toWireBooking(removed)}, nil
}

// credential reads a bearer token from "authorization", falling back to "x-delete-password".
func credential(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if values := md.Get("authorization"); len(values) > 0 {
		if token, ok := auth.BearerToken(values[0]); ok {
			return token
		}
	}
	if values := md.Get("x-delete-password"); len(values) > 0 {
		return values[0]
	}
	return ""
}

func toStatus(log *slog.Logger, err error) error {
	var vErr *ledger.ValidationError
	var cErr *ledger.ConflictError

	switch {
	case errors.As(err, &vErr):
		log.Warn("invalid request", slog.Any("err", err))
		st := status.New(codes.InvalidArgument, vErr.Error())
		withDetails, dErr := st.WithDetails(&errdetails.BadRequest{
			FieldViolations: []*errdetails.BadRequest_FieldViolation{
				{Field: vErr.Field, Description: vErr.Reason},
			},
		})
		if dErr != nil {
			return st.Err()
		}
		return withDetails.Err()
	case errors.As(err, &cErr):
		log.Info("booking conflict", slog.String("conflict", cErr.Error()))
		st := status.New(codes.FailedPrecondition, "That time range overlaps an existing booking. Pick a different slot.")
		violation := &errdetails.PreconditionFailure_Violation{
			Type:        "time_range_overlap",
			Subject:     "date/" + cErr.Date.String(),
			Description: cErr.Error(),
		}
		if cErr.Existing.ID != 0 {
			violation.Subject = "booking/" + strconv.FormatInt(cErr.Existing.ID, 10)
		}
		withDetails, dErr := st.WithDetails(&errdetails.PreconditionFailure{
			Violations: []*errdetails.PreconditionFailure_Violation{violation},
		})
		if dErr != nil {
			return st.Err()
		}
		return withDetails.Err()
	case errors.Is(err, ledger.ErrNotFound):
		log.Info("booking not found")
		return status.Error(codes.NotFound, "booking not found")
	case errors.Is(err, ledger.ErrUnauthorized):
		log.Info("delete unauthorized")
		return status.Error(codes.Unauthenticated, "unauthorized")
	case errors.Is(err, ledger.ErrStoreUnavailable):
		log.Error("store unavailable", slog.Any("err", err))
		return status.Error(codes.Unavailable, "store unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "request timeout")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request canceled")
	default:
		log.Error("ledger call failed", slog.Any("err", err))
		return status.Error(codes.Internal, "internal error")
	}
}

func toWireBooking(b domain.Booking) Booking {
	return Booking{
		ID:         b.ID,
		Department: b.Department,
		Name:       b.Name,
		Date:       b.Date.String(),
		StartTime:  b.StartTime.String(),
		EndTime:    b.EndTime.String(),
		Reason:     b.Reason,
		CreatedAt:  b.CreatedAt.UTC(),
	}
}
