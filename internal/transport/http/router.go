package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
)

type Options struct {
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	// StaticDir, when set, is served for every path no API route claims.
	StaticDir string
}

func NewRouter(svc Ledger, log *slog.Logger, opts Options) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "http"))

	router := httprouter.New()
	NewBookingsHandler(svc, log).RegisterRoutes(router)
	NewHealthHandler(svc, log).RegisterRoutes(router)

	router.MethodNotAllowed = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed", nil)
	})
	if opts.StaticDir != "" {
		router.NotFound = http.FileServer(http.Dir(opts.StaticDir))
	} else {
		router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusNotFound, codeNotFound, "not found", nil)
		})
	}

	var h http.Handler = router
	h = MaxBodyBytes(opts.MaxBodyBytes)(h)
	h = RequestTimeout(opts.RequestTimeout)(h)
	h = Recovery(log)(h)
	h = RequestLogging(log)(h)
	return h
}
