package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"roombook/backend/internal/auth"
	"roombook/backend/internal/domain"
	"roombook/backend/internal/service/ledger"
	"roombook/backend/internal/store/memory"
)

type stubLedger struct {
	listFn   func(ctx context.Context) ([]domain.Booking, error)
	insertFn func(ctx context.Context, in ledger.InsertInput) (domain.Booking, error)
	deleteFn func(ctx context.Context, id int64, credential string) (domain.Booking, error)
	pingFn   func(ctx context.Context) error
}

func (s *stubLedger) List(ctx context.Context) ([]domain.Booking, error) {
	if s.listFn == nil {
		panic("List not configured")
	}
	return s.listFn(ctx)
}

func (s *stubLedger) Insert(ctx context.Context, in ledger.InsertInput) (domain.Booking, error) {
	if s.insertFn == nil {
		panic("Insert not configured")
	}
	return s.insertFn(ctx, in)
}

func (s *stubLedger) Delete(ctx context.Context, id int64, credential string) (domain.Booking, error) {
	if s.deleteFn == nil {
		panic("Delete not configured")
	}
	return s.deleteFn(ctx, id, credential)
}

func (s *stubLedger) Ping(ctx context.Context) error {
	if s.pingFn == nil {
		return nil
	}
	return s.pingFn(ctx)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleBooking() domain.Booking {
	return domain.Booking{
		ID:         7,
		Department: "eng",
		Name:       "alice",
		Date:       domain.Date{Year: 2026, Month: time.January, Day: 5},
		StartTime:  domain.MustTimeOfDay("09:00"),
		EndTime:    domain.MustTimeOfDay("10:00"),
		Reason:     "planning",
		CreatedAt:  time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

func serve(t *testing.T, h http.Handler, method, target string, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var out errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestListBookings(t *testing.T) {
	t.Run("renders camelCase fields", func(t *testing.T) {
		h := NewRouter(&stubLedger{
			listFn: func(ctx context.Context) ([]domain.Booking, error) {
				return []domain.Booking{sampleBooking()}, nil
			},
		}, discardLogger(), Options{})

		rec := serve(t, h, http.MethodGet, "/api/bookings", "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		var got []map[string]any
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(got) != 1 {
			t.Fatalf("len = %d, want 1", len(got))
		}
		want := map[string]any{"id": float64(7), "date": "2026-01-05", "startTime": "09:00:00", "endTime": "10:00:00", "reason": "planning"}
		for k, v := range want {
			if got[0][k] != v {
				t.Fatalf("%s = %v, want %v", k, got[0][k], v)
			}
		}
	})

	t.Run("empty ledger is an empty array", func(t *testing.T) {
		h := NewRouter(&stubLedger{
			listFn: func(ctx context.Context) ([]domain.Booking, error) { return nil, nil },
		}, discardLogger(), Options{})

		rec := serve(t, h, http.MethodGet, "/api/bookings", "", nil)
		if strings.TrimSpace(rec.Body.String()) != "[]" {
			t.Fatalf("body = %q, want []", rec.Body.String())
		}
	})

	t.Run("store unavailable hides the cause", func(t *testing.T) {
		h := NewRouter(&stubLedger{
			listFn: func(ctx context.Context) ([]domain.Booking, error) {
				return nil, errors.Join(ledger.ErrStoreUnavailable, errors.New("dial tcp 10.0.0.5:5432: refused"))
			},
		}, discardLogger(), Options{})

		rec := serve(t, h, http.MethodGet, "/api/bookings", "", nil)
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d, want 500", rec.Code)
		}
		if strings.Contains(rec.Body.String(), "10.0.0.5") {
			t.Fatalf("cause leaked: %s", rec.Body.String())
		}
		if got := decodeError(t, rec); got.Code != codeStoreUnavailable {
			t.Fatalf("code = %q, want %q", got.Code, codeStoreUnavailable)
		}
	})
}

func TestCreateBooking(t *testing.T) {
	const body = `{"department":"eng","name":"alice","date":"2026-01-05","startTime":"09:00","endTime":"10:00","reason":"planning"}`

	t.Run("created", func(t *testing.T) {
		var got ledger.InsertInput
		h := NewRouter(&stubLedger{
			insertFn: func(ctx context.Context, in ledger.InsertInput) (domain.Booking, error) {
				got = in
				return sampleBooking(), nil
			},
		}, discardLogger(), Options{})

		rec := serve(t, h, http.MethodPost, "/api/bookings", body, nil)
		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
		}
		if got.StartTime != "09:00" || got.EndTime != "10:00" || got.Department != "eng" {
			t.Fatalf("ledger input = %+v", got)
		}
		if rec.Header().Get("Content-Type") != "application/json" {
			t.Fatalf("content type = %q", rec.Header().Get("Content-Type"))
		}
	})

	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
		wantCode   string
		wantField  string
	}{
		{name: "malformed json", body: `{"department":`, wantStatus: http.StatusBadRequest, wantCode: codeInvalidRequestBody},
		{
			name:       "missing field",
			body:       body,
			err:        &ledger.ValidationError{Field: "start_time", Reason: ledger.ReasonMissingField},
			wantStatus: http.StatusBadRequest,
			wantCode:   codeMissingField,
			wantField:  "startTime",
		},
		{
			name:       "too long",
			body:       body,
			err:        &ledger.ValidationError{Field: "name", Reason: ledger.ReasonTooLong},
			wantStatus: http.StatusBadRequest,
			wantCode:   codeFieldTooLong,
			wantField:  "name",
		},
		{
			name:       "invalid date",
			body:       body,
			err:        &ledger.ValidationError{Field: "date", Reason: ledger.ReasonInvalidDate},
			wantStatus: http.StatusBadRequest,
			wantCode:   codeInvalidDate,
			wantField:  "date",
		},
		{
			name:       "invalid time range",
			body:       body,
			err:        &ledger.ValidationError{Field: "end_time", Reason: ledger.ReasonInvalidTimeRange},
			wantStatus: http.StatusBadRequest,
			wantCode:   codeInvalidTimeRange,
			wantField:  "endTime",
		},
		{
			name:       "overlap",
			body:       body,
			err:        &ledger.ConflictError{Date: sampleBooking().Date, Existing: sampleBooking()},
			wantStatus: http.StatusConflict,
			wantCode:   codeTimeRangeOverlap,
		},
		{
			name:       "deadline",
			body:       body,
			err:        context.DeadlineExceeded,
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   codeRequestTimeout,
		},
		{
			name:       "unexpected",
			body:       body,
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   codeInternalError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewRouter(&stubLedger{
				insertFn: func(ctx context.Context, in ledger.InsertInput) (domain.Booking, error) {
					return domain.Booking{}, tt.err
				},
			}, discardLogger(), Options{})

			rec := serve(t, h, http.MethodPost, "/api/bookings", tt.body, nil)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			got := decodeError(t, rec)
			if got.Code != tt.wantCode {
				t.Fatalf("code = %q, want %q", got.Code, tt.wantCode)
			}
			if tt.wantField != "" && got.Details["field"] != tt.wantField {
				t.Fatalf("details.field = %v, want %q", got.Details["field"], tt.wantField)
			}
		})
	}

	t.Run("overlap details name the existing interval", func(t *testing.T) {
		h := NewRouter(&stubLedger{
			insertFn: func(ctx context.Context, in ledger.InsertInput) (domain.Booking, error) {
				return domain.Booking{}, &ledger.ConflictError{Date: sampleBooking().Date, Existing: sampleBooking()}
			},
		}, discardLogger(), Options{})

		got := decodeError(t, serve(t, h, http.MethodPost, "/api/bookings", body, nil))
		if got.Details["startTime"] != "09:00:00" || got.Details["endTime"] != "10:00:00" || got.Details["bookingId"] != float64(7) {
			t.Fatalf("details = %v", got.Details)
		}
	})

	t.Run("body too large", func(t *testing.T) {
		h := NewRouter(&stubLedger{
			insertFn: func(ctx context.Context, in ledger.InsertInput) (domain.Booking, error) {
				t.Fatalf("ledger reached with oversized body")
				return domain.Booking{}, nil
			},
		}, discardLogger(), Options{MaxBodyBytes: 16})

		rec := serve(t, h, http.MethodPost, "/api/bookings", body, nil)
		if rec.Code != http.StatusRequestEntityTooLarge {
			t.Fatalf("status = %d, want 413", rec.Code)
		}
	})
}

func TestDeleteBooking(t *testing.T) {
	tests := []struct {
		name     string
		target   string
		body     string
		headers  map[string]string
		wantID   int64
		wantCred string
	}{
		{name: "bearer token", target: "/api/bookings/7", headers: map[string]string{"Authorization": "Bearer tok"}, wantID: 7, wantCred: "tok"},
		{name: "lowercase bearer", target: "/api/bookings/7", headers: map[string]string{"Authorization": "bearer tok", "X-Delete-Password": "pw"}, wantID: 7, wantCred: "tok"},
		{name: "password header", target: "/api/bookings/7", headers: map[string]string{"X-Delete-Password": "pw"}, wantID: 7, wantCred: "pw"},
		{name: "password body", target: "/api/bookings/7", body: `{"password":"pw"}`, wantID: 7, wantCred: "pw"},
		{name: "no credential", target: "/api/bookings/7", wantID: 7, wantCred: ""},
		{name: "non numeric id", target: "/api/bookings/abc", headers: map[string]string{"X-Delete-Password": "pw"}, wantID: 0, wantCred: "pw"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotID int64
			var gotCred string
			h := NewRouter(&stubLedger{
				deleteFn: func(ctx context.Context, id int64, credential string) (domain.Booking, error) {
					gotID, gotCred = id, credential
					return sampleBooking(), nil
				},
			}, discardLogger(), Options{})

			rec := serve(t, h, http.MethodDelete, tt.target, tt.body, tt.headers)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
			}
			if gotID != tt.wantID || gotCred != tt.wantCred {
				t.Fatalf("ledger got id=%d cred=%q, want id=%d cred=%q", gotID, gotCred, tt.wantID, tt.wantCred)
			}

			var resp deleteBookingResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Message == "" || resp.Booking.ID != 7 {
				t.Fatalf("response = %+v", resp)
			}
		})
	}

	errCases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "unauthorized", err: ledger.ErrUnauthorized, wantStatus: http.StatusUnauthorized, wantCode: codeUnauthorized},
		{name: "not found", err: ledger.ErrNotFound, wantStatus: http.StatusNotFound, wantCode: codeNotFound},
	}
	for _, tt := range errCases {
		t.Run(tt.name, func(t *testing.T) {
			h := NewRouter(&stubLedger{
				deleteFn: func(ctx context.Context, id int64, credential string) (domain.Booking, error) {
					return domain.Booking{}, tt.err
				},
			}, discardLogger(), Options{})

			rec := serve(t, h, http.MethodDelete, "/api/bookings/7", "", nil)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := decodeError(t, rec); got.Code != tt.wantCode {
				t.Fatalf("code = %q, want %q", got.Code, tt.wantCode)
			}
		})
	}

	t.Run("malformed body", func(t *testing.T) {
		h := NewRouter(&stubLedger{}, discardLogger(), Options{})
		rec := serve(t, h, http.MethodDelete, "/api/bookings/7", `{"password":`, nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
	})
}

func TestHealthAndReady(t *testing.T) {
	up := NewRouter(&stubLedger{}, discardLogger(), Options{})
	if rec := serve(t, up, http.MethodGet, "/health", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("health status = %d", rec.Code)
	}
	if rec := serve(t, up, http.MethodGet, "/ready", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("ready status = %d", rec.Code)
	}

	down := NewRouter(&stubLedger{pingFn: func(ctx context.Context) error { return errors.New("down") }}, discardLogger(), Options{})
	if rec := serve(t, down, http.MethodGet, "/ready", "", nil); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("ready status = %d, want 503", rec.Code)
	}
}

func TestMiddleware(t *testing.T) {
	t.Run("panic becomes 500", func(t *testing.T) {
		h := NewRouter(&stubLedger{
			listFn: func(ctx context.Context) ([]domain.Booking, error) { panic("kaboom") },
		}, discardLogger(), Options{})

		rec := serve(t, h, http.MethodGet, "/api/bookings", "", nil)
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d, want 500", rec.Code)
		}
		if got := decodeError(t, rec); got.Code != codeInternalError {
			t.Fatalf("code = %q", got.Code)
		}
	})

	t.Run("request id issued and propagated", func(t *testing.T) {
		var seen string
		h := NewRouter(&stubLedger{
			listFn: func(ctx context.Context) ([]domain.Booking, error) {
				seen = RequestID(ctx)
				return nil, nil
			},
		}, discardLogger(), Options{})

		rec := serve(t, h, http.MethodGet, "/api/bookings", "", nil)
		if seen == "" || rec.Header().Get(requestIDHeader) != seen {
			t.Fatalf("request id header %q, context %q", rec.Header().Get(requestIDHeader), seen)
		}

		const inbound = "0b4f6c1e-8f0a-4b7e-9d59-3f1c2a6b7d80"
		serve(t, h, http.MethodGet, "/api/bookings", "", map[string]string{requestIDHeader: inbound})
		if seen != inbound {
			t.Fatalf("inbound request id not reused: %q", seen)
		}

		serve(t, h, http.MethodGet, "/api/bookings", "", map[string]string{requestIDHeader: "<script>"})
		if seen == "<script>" {
			t.Fatalf("malformed inbound request id accepted")
		}
	})

	t.Run("request timeout sets a deadline", func(t *testing.T) {
		h := NewRouter(&stubLedger{
			listFn: func(ctx context.Context) ([]domain.Booking, error) {
				if _, ok := ctx.Deadline(); !ok {
					t.Fatalf("no deadline on request context")
				}
				return nil, nil
			},
		}, discardLogger(), Options{RequestTimeout: time.Second})
		serve(t, h, http.MethodGet, "/api/bookings", "", nil)
	})

	t.Run("method not allowed", func(t *testing.T) {
		h := NewRouter(&stubLedger{}, discardLogger(), Options{})
		rec := serve(t, h, http.MethodPut, "/api/bookings", "{}", nil)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("status = %d, want 405", rec.Code)
		}
	})
}

func TestStaticAssets(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>rooms</h1>"), 0o644); err != nil {
		t.Fatalf("write index: %v", err)
	}

	h := NewRouter(&stubLedger{}, discardLogger(), Options{StaticDir: dir})
	rec := serve(t, h, http.MethodGet, "/", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "rooms") {
		t.Fatalf("status = %d body = %q", rec.Code, rec.Body.String())
	}

	plain := NewRouter(&stubLedger{}, discardLogger(), Options{})
	if rec := serve(t, plain, http.MethodGet, "/index.html", "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("status without static dir = %d, want 404", rec.Code)
	}
}

func TestEndToEnd_MemoryLedger(t *testing.T) {
	authz, err := auth.NewPasswordAuthorizerFromPlain("letmein")
	if err != nil {
		t.Fatalf("authorizer: %v", err)
	}
	svc := ledger.NewService(memory.NewBookingRepo(), authz, ledger.WithLogger(discardLogger()))
	h := NewRouter(svc, discardLogger(), Options{RequestTimeout: 5 * time.Second, MaxBodyBytes: 1 << 20})

	post := func(start, end string) *httptest.ResponseRecorder {
		payload, _ := json.Marshal(map[string]string{
			"department": "eng", "name": "alice", "date": "2026-03-02",
			"startTime": start, "endTime": end, "reason": "sync",
		})
		return serve(t, h, http.MethodPost, "/api/bookings", string(payload), nil)
	}

	first := post("09:00", "10:00")
	if first.Code != http.StatusCreated {
		t.Fatalf("first status = %d: %s", first.Code, first.Body.String())
	}
	var created bookingResponse
	if err := json.Unmarshal(first.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	for _, c := range [][2]string{{"09:30", "10:30"}, {"08:30", "09:30"}, {"08:00", "11:00"}} {
		if rec := post(c[0], c[1]); rec.Code != http.StatusConflict {
			t.Fatalf("[%s,%s) status = %d, want 409", c[0], c[1], rec.Code)
		}
	}
	if rec := post("10:00", "11:00"); rec.Code != http.StatusCreated {
		t.Fatalf("back-to-back status = %d, want 201", rec.Code)
	}
	if rec := post("11:00", "11:00"); rec.Code != http.StatusBadRequest {
		t.Fatalf("zero-length status = %d, want 400", rec.Code)
	}

	target := "/api/bookings/" + strconv.FormatInt(created.ID, 10)
	if rec := serve(t, h, http.MethodDelete, target, "", map[string]string{"X-Delete-Password": "wrong"}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password status = %d, want 401", rec.Code)
	}
	if rec := serve(t, h, http.MethodDelete, target, `{"password":"letmein"}`, nil); rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d, want 200", rec.Code)
	}
	if rec := serve(t, h, http.MethodDelete, target, "", map[string]string{"X-Delete-Password": "letmein"}); rec.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", rec.Code)
	}
	for _, bad := range []string{"abc", "0", "-5"} {
		rec := serve(t, h, http.MethodDelete, "/api/bookings/"+bad, "", map[string]string{"X-Delete-Password": "letmein"})
		if rec.Code != http.StatusNotFound {
			t.Fatalf("delete %q status = %d, want 404", bad, rec.Code)
		}
		if got := decodeError(t, rec); got.Code != codeNotFound {
			t.Fatalf("delete %q code = %q, want %q", bad, got.Code, codeNotFound)
		}
	}
	if rec := serve(t, h, http.MethodDelete, "/api/bookings/abc", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("unparseable id without credential status = %d, want 401", rec.Code)
	}

	rec := serve(t, h, http.MethodGet, "/api/bookings", "", nil)
	var rows []bookingResponse
	if err := json.NewDecoder(bytes.NewReader(rec.Body.Bytes())).Decode(&rows); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(rows) != 1 || rows[0].StartTime != "10:00:00" {
		t.Fatalf("rows = %+v", rows)
	}
}
