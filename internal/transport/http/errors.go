package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"roombook/backend/internal/service/ledger"
)

const (
	codeInvalidRequestBody = "invalid_request_body"
	codeRequestTooLarge    = "request_too_large"
	codeMissingField       = "missing_field"
	codeFieldTooLong       = "field_too_long"
	codeInvalidDate        = "invalid_date"
	codeInvalidTime        = "invalid_time"
	codeInvalidTimeRange   = "invalid_time_range"
	codeInvalidValue       = "invalid_value"
	codeTimeRangeOverlap   = "time_range_overlap"
	codeNotFound           = "not_found"
	codeMethodNotAllowed   = "method_not_allowed"
	codeUnauthorized       = "unauthorized"
	codeRequestTimeout     = "request_timeout"
	codeStoreUnavailable   = "store_unavailable"
	codeInternalError      = "internal_error"
)

var validationCodes = map[string]string{
	ledger.ReasonMissingField:     codeMissingField,
	ledger.ReasonTooLong:          codeFieldTooLong,
	ledger.ReasonInvalidDate:      codeInvalidDate,
	ledger.ReasonInvalidTime:      codeInvalidTime,
	ledger.ReasonInvalidTimeRange: codeInvalidTimeRange,
}

// wireFields maps ledger field names to the JSON keys clients send.
var wireFields = map[string]string{
	"start_time": "startTime",
	"end_time":   "endTime",
}

type errorResponse struct {
	Error   string         `json:"error"`
	Code    string         `json:"code"`
	Details map[string]any `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg string, details map[string]any) {
	payload, err := json.Marshal(errorResponse{
		Error:   msg,
		Code:    code,
		Details: details,
	})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	_, _ = w.Write(payload)
}

// writeServiceError renders ledger errors. Causes behind ErrStoreUnavailable and
// unknown errors are logged, never sent to the client.
func writeServiceError(w http.ResponseWriter, log *slog.Logger, err error) {
	var vErr *ledger.ValidationError
	var cErr *ledger.ConflictError

	switch {
	case errors.As(err, &vErr):
		field := wireField(vErr.Field)
		code, ok := validationCodes[vErr.Reason]
		if !ok {
			code = codeInvalidValue
		}
		msg := vErr.Reason
		if field != "" {
			msg += ": " + field
		}
		writeError(w, http.StatusBadRequest, code, msg, map[string]any{"field": field})
	case errors.As(err, &cErr):
		details := map[string]any{"date": cErr.Date.String()}
		if cErr.Existing.ID != 0 {
			details["bookingId"] = cErr.Existing.ID
			details["startTime"] = cErr.Existing.StartTime.String()
			details["endTime"] = cErr.Existing.EndTime.String()
		}
		writeError(w, http.StatusConflict, codeTimeRangeOverlap, "time range overlap", details)
	case errors.Is(err, ledger.ErrNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, "booking not found", nil)
	case errors.Is(err, ledger.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "unauthorized", nil)
	case errors.Is(err, ledger.ErrStoreUnavailable):
		writeError(w, http.StatusInternalServerError, codeStoreUnavailable, "store unavailable", nil)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		writeError(w, http.StatusServiceUnavailable, codeRequestTimeout, "request timeout", nil)
	default:
		log.Error("unhandled service error", slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error", nil)
	}
}

func wireField(field string) string {
	if f, ok := wireFields[field]; ok {
		return f
	}
	return field
}
