package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	cache "github.com/hanpama/normcache/internal/cache"
)

// Admin serves the cache admin endpoint:
//
//	POST   normalizes the JSON result in the body
//	DELETE clears the cache
//	GET    returns the snapshot document
type Admin struct {
	cache *cache.Cache
	opt   Options
	log   *slog.Logger
}

// NewAdmin returns the admin handler for c.
func NewAdmin(c *cache.Cache, logger *slog.Logger, opts ...Option) *Admin {
	if logger == nil {
		logger = slog.Default()
	}
	return &Admin{cache: c, opt: buildOptions(opts), log: logger}
}

func (a *Admin) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	instrument(w, r, a.opt, func(ctx context.Context) int { return a.serve(ctx, w, r) })
}

func (a *Admin) serve(ctx context.Context, w http.ResponseWriter, r *http.Request) int {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, a.cache.Snapshot(), a.opt.Pretty)
		return http.StatusOK
	case http.MethodDelete:
		a.cache.Clear()
		a.log.Info("cache cleared")
		w.WriteHeader(http.StatusNoContent)
		return http.StatusNoContent
	case http.MethodPost:
		if !isJSON(r.Header.Get("Content-Type")) {
			return writeError(w, http.StatusBadRequest, "unsupported Content-Type", a.opt.Pretty)
		}
		body, msg := readBody(r, a.opt.MaxBodyBytes)
		if msg != "" {
			status := http.StatusBadRequest
			if msg == errBodyTooLargeMessage {
				status = http.StatusRequestEntityTooLarge
			}
			return writeError(w, status, msg, a.opt.Pretty)
		}
		if err := a.cache.NormalizeJSON(ctx, body); err != nil {
			a.log.Warn("rejected result", "kind", cache.ErrorKind(err), "error", err)
			return writeError(w, http.StatusBadRequest, err.Error(), a.opt.Pretty)
		}
		w.WriteHeader(http.StatusNoContent)
		return http.StatusNoContent
	}
	return writeError(w, http.StatusMethodNotAllowed, "method not allowed", a.opt.Pretty)
}

// NewMux routes /graphql to backend, /cache to the admin handler of c and
// /metrics to the Prometheus registry.
func NewMux(c *cache.Cache, backend Backend, logger *slog.Logger, opts ...Option) *http.ServeMux {
	if backend == nil {
		backend = c
	}
	mux := http.NewServeMux()
	mux.Handle("/graphql", New(backend, opts...))
	mux.Handle("/cache", NewAdmin(c, logger, opts...))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}
