// Package server exposes the cache over HTTP: a GraphQL endpoint answered
// from the cache (or through the network client), an admin endpoint for
// feeding, clearing and dumping the store, and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	cache "github.com/hanpama/normcache/internal/cache"
	eventbus "github.com/hanpama/normcache/internal/eventbus"
	events "github.com/hanpama/normcache/internal/events"
	reqid "github.com/hanpama/normcache/internal/reqid"
)

// Backend answers GraphQL requests. *cache.Cache and *client.Client
// implement it.
type Backend interface {
	QueryOperation(ctx context.Context, query, operationName string, variables map[string]any) cache.Response
}

// Handler is an http.Handler that serves the GraphQL endpoint.
// It parses requests, asks the backend, and writes the data or the error
// envelope.
type Handler struct {
	backend Backend
	opt     Options
}

type Options struct {
	// Timeout sets a default timeout if the incoming request context has none.
	// 0 means no default timeout.
	Timeout time.Duration

	// Pretty enables indented JSON responses (useful for dev).
	Pretty bool

	// MaxBodyBytes limits the size of the request body. 0 means unlimited.
	MaxBodyBytes int64

	// CORS configuration. If AllowedOrigins is empty, CORS is disabled.
	CORS CORSOptions
}

type Option func(*Options)

func WithTimeout(d time.Duration) Option { return func(o *Options) { o.Timeout = d } }
func WithPretty() Option                 { return func(o *Options) { o.Pretty = true } }
func WithMaxBodyBytes(n int64) Option    { return func(o *Options) { o.MaxBodyBytes = n } }
func WithCORS(origins ...string) Option {
	return func(o *Options) { o.CORS.AllowedOrigins = origins }
}

// CORSOptions holds simple CORS settings.
type CORSOptions struct {
	AllowedOrigins []string
}

func buildOptions(opts []Option) Options {
	op := Options{Timeout: 10 * time.Second}
	for _, f := range opts {
		f(&op)
	}
	return op
}

// New creates a GraphQL HTTP handler answering from backend.
func New(backend Backend, opts ...Option) *Handler {
	return &Handler{backend: backend, opt: buildOptions(opts)}
}

// instrument assigns the request id, applies the default timeout and emits
// the HTTP events around serve.
func instrument(w http.ResponseWriter, r *http.Request, opt Options, serve func(ctx context.Context) int) {
	ctx := r.Context()
	if _, ok := ctx.Deadline(); !ok && opt.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opt.Timeout)
		defer cancel()
	}
	ctx, rid := reqid.WithID(ctx, r.Header.Get(reqid.Header))
	w.Header().Set(reqid.Header, rid)

	start := time.Now()
	eventbus.Publish(ctx, events.HTTPStart{Request: r})
	status := serve(ctx)
	eventbus.Publish(ctx, events.HTTPFinish{Request: r, Status: status, Duration: time.Since(start)})
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	instrument(w, r, h.opt, func(ctx context.Context) int { return h.serve(ctx, w, r) })
}

func (h *Handler) serve(ctx context.Context, w http.ResponseWriter, r *http.Request) int {
	if r.Method == http.MethodOptions {
		if len(h.opt.CORS.AllowedOrigins) > 0 {
			setCORSHeaders(w, r, h.opt.CORS)
		}
		w.WriteHeader(http.StatusNoContent)
		return http.StatusNoContent
	}

	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		return writeError(w, http.StatusMethodNotAllowed, "method not allowed", h.opt.Pretty)
	}

	req, batch, msg := parseRequest(r, h.opt.MaxBodyBytes)
	if msg != "" {
		status := http.StatusBadRequest
		if msg == errBodyTooLargeMessage {
			status = http.StatusRequestEntityTooLarge
		}
		return writeError(w, status, msg, h.opt.Pretty)
	}

	if len(h.opt.CORS.AllowedOrigins) > 0 {
		setCORSHeaders(w, r, h.opt.CORS)
	}

	if batch != nil {
		out := make([]cache.Response, len(batch))
		for i := range batch {
			out[i] = h.executeOne(ctx, batch[i])
		}
		writeJSON(w, http.StatusOK, out, h.opt.Pretty)
		return http.StatusOK
	}

	writeJSON(w, http.StatusOK, h.executeOne(ctx, req), h.opt.Pretty)
	return http.StatusOK
}

func (h *Handler) executeOne(ctx context.Context, req GraphQLRequest) cache.Response {
	return h.backend.QueryOperation(ctx, req.Query, req.OperationName, req.Variables)
}

// ------------------ Request parsing ------------------

type GraphQLRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
	Extensions    map[string]any `json:"extensions,omitempty"`
}

// parseRequest returns a single request or a batch, or a non-empty message
// describing why the request is invalid.
func parseRequest(r *http.Request, maxBody int64) (GraphQLRequest, []GraphQLRequest, string) {
	if r.Method == http.MethodGet {
		q := r.URL.Query().Get("query")
		if q == "" {
			return GraphQLRequest{}, nil, "missing 'query'"
		}
		vars := map[string]any{}
		if v := r.URL.Query().Get("variables"); v != "" {
			if err := json.Unmarshal([]byte(v), &vars); err != nil {
				return GraphQLRequest{}, nil, "invalid 'variables' JSON"
			}
		}
		op := r.URL.Query().Get("operationName")
		return GraphQLRequest{Query: q, Variables: vars, OperationName: op}, nil, ""
	}

	// POST
	if !isJSON(r.Header.Get("Content-Type")) {
		return GraphQLRequest{}, nil, "unsupported Content-Type"
	}
	body, msg := readBody(r, maxBody)
	if msg != "" {
		return GraphQLRequest{}, nil, msg
	}

	// Try array (batch)
	if len(body) > 0 && body[0] == '[' {
		var arr []GraphQLRequest
		if err := json.Unmarshal(body, &arr); err != nil {
			return GraphQLRequest{}, nil, "invalid JSON"
		}
		if len(arr) == 0 {
			return GraphQLRequest{}, nil, "empty batch"
		}
		return GraphQLRequest{}, arr, ""
	}
	// Single
	var req GraphQLRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return GraphQLRequest{}, nil, "invalid JSON"
	}
	if req.Query == "" {
		return GraphQLRequest{}, nil, "missing 'query'"
	}
	if req.Variables == nil {
		req.Variables = map[string]any{}
	}
	return req, nil, ""
}

func readBody(r *http.Request, maxBody int64) ([]byte, string) {
	defer r.Body.Close()
	reader := io.Reader(r.Body)
	if maxBody > 0 {
		reader = io.LimitReader(r.Body, maxBody+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, "failed to read body"
	}
	if maxBody > 0 && int64(len(body)) > maxBody {
		return nil, errBodyTooLargeMessage
	}
	return body, ""
}

func isJSON(ct string) bool {
	return ct == "" || ct == "application/json" || startsWith(ct, "application/json;")
}

// ------------------ Response formatting ------------------

func writeError(w http.ResponseWriter, status int, msg string, pretty bool) int {
	writeJSON(w, status, cache.Response{Error: msg}, pretty)
	return status
}

func writeJSON(w http.ResponseWriter, status int, v any, pretty bool) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	_ = enc.Encode(v)
}

func startsWith(s, prefix string) bool { return len(s) >= len(prefix) && s[:len(prefix)] == prefix }

const errBodyTooLargeMessage = "body too large"

func setCORSHeaders(w http.ResponseWriter, r *http.Request, opts CORSOptions) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	allowed := false
	for _, o := range opts.AllowedOrigins {
		if o == "*" || o == origin {
			allowed = true
			break
		}
	}
	if !allowed {
		return
	}
	if contains(opts.AllowedOrigins, "*") {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	} else {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Add("Vary", "Origin")
	}
	if r.Method == http.MethodOptions {
		if hdr := r.Header.Get("Access-Control-Request-Headers"); hdr != "" {
			w.Header().Set("Access-Control-Allow-Headers", hdr)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
