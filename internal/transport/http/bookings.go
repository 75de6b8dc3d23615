package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"

	"roombook/backend/internal/auth"
	"roombook/backend/internal/domain"
	"roombook/backend/internal/service/ledger"
)

type Ledger interface {
	List(ctx context.Context) ([]domain.Booking, error)
	Insert(ctx context.Context, in ledger.InsertInput) (domain.Booking, error)
	Delete(ctx context.Context, id int64, credential string) (domain.Booking, error)
	Ping(ctx context.Context) error
}

type BookingsHandler struct {
	svc Ledger
	log *slog.Logger
}

func NewBookingsHandler(svc Ledger, log *slog.Logger) *BookingsHandler {
	if log == nil {
		log = slog.Default()
	}
	return &BookingsHandler{svc: svc, log: log.With(slog.String("component", "http.bookings"))}
}

type bookingResponse struct {
	ID         int64     `json:"id"`
	Department string    `json:"department"`
	Name       string    `json:"name"`
	Date       string    `json:"date"`
	StartTime  string    `json:"startTime"`
	EndTime    string    `json:"endTime"`
	Reason     string    `json:"reason"`
	CreatedAt  time.Time `json:"createdAt"`
}

func toBookingResponse(b domain.Booking) bookingResponse {
	return bookingResponse{
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

type createBookingRequest struct {
	Department string `json:"department"`
	Name       string `json:"name"`
	Date       string `json:"date"`
	StartTime  string `json:"startTime"`
	EndTime    string `json:"endTime"`
	Reason     string `json:"reason"`
}

type deleteBookingRequest struct {
	Password string `json:"password"`
}

type deleteBookingResponse struct {
	Message string          `json:"message"`
	Booking bookingResponse `json:"booking"`
}

func (h *BookingsHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/api/bookings", h.List)
	router.POST("/api/bookings", h.Create)
	router.DELETE("/api/bookings/:id", h.Delete)
}

func (h *BookingsHandler) List(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	rows, err := h.svc.List(r.Context())
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}

	out := make([]bookingResponse, 0, len(rows))
	for _, b := range rows {
		out = append(out, toBookingResponse(b))
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *BookingsHandler) Create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDecodeError(w, err)
		return
	}

	created, err := h.svc.Insert(r.Context(), ledger.InsertInput{
		Department: req.Department,
		Name:       req.Name,
		Date:       req.Date,
		StartTime:  req.StartTime,
		EndTime:    req.EndTime,
		Reason:     req.Reason,
	})
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toBookingResponse(created))
}

func (h *BookingsHandler) Delete(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	credential, err := deleteCredential(r)
	if err != nil {
		writeDecodeError(w, err)
		return
	}

	// Unparseable ids reach the ledger as 0, which is checked against the credential
	// first and then reported as not found.
	id, err := strconv.ParseInt(ps.ByName("id"), 10, 64)
	if err != nil {
		id = 0
	}

	removed, err := h.svc.Delete(r.Context(), id, credential)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	h.writeJSON(w, http.StatusOK, deleteBookingResponse{
		Message: "booking deleted",
		Booking: toBookingResponse(removed),
	})
}

// deleteCredential reads, in order: a bearer token, the X-Delete-Password header,
// then an optional JSON body {"password": ...}.
func deleteCredential(r *http.Request) (string, error) {
	if token, ok := auth.BearerToken(r.Header.Get("Authorization")); ok {
		return token, nil
	}
	if pw := r.Header.Get("X-Delete-Password"); pw != "" {
		return pw, nil
	}
	if r.Body == nil || r.Body == http.NoBody {
		return "", nil
	}

	var req deleteBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return "", nil
		}
		return "", err
	}
	return req.Password, nil
}

func writeDecodeError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, codeRequestTooLarge, "request body too large", nil)
		return
	}
	writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body", nil)
}

func (h *BookingsHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("failed to write JSON response", slog.Int("status", status), slog.Any("err", err))
	}
}
