package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	cache "github.com/hanpama/normcache/internal/cache"
	reqid "github.com/hanpama/normcache/internal/reqid"
	typemap "github.com/hanpama/normcache/internal/typemap"
)

type backendFunc func(ctx context.Context, query, operationName string, variables map[string]any) cache.Response

func (f backendFunc) QueryOperation(ctx context.Context, query, operationName string, variables map[string]any) cache.Response {
	return f(ctx, query, operationName, variables)
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newTestCache(t *testing.T) *cache.Cache {
	t.Helper()
	c := cache.New(typemap.New(map[string]string{"category": "Category"}, nil), cache.WithLogger(quiet()))
	err := c.Normalize(context.Background(), map[string]any{
		"category": map[string]any{"__typename": "Category", "nodeId": "c1", "name": "Sports"},
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	return c
}

func post(t *testing.T, h http.Handler, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", target, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) any {
	t.Helper()
	var v any
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func TestQueryFromCache(t *testing.T) {
	h := New(newTestCache(t))

	w := post(t, h, "/graphql", `{"query":"{ category { name } }"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	want := map[string]any{"data": map[string]any{"category": map[string]any{"name": "Sports"}}}
	if diff := cmp.Diff(want, decode(t, w)); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestQueryViaGet(t *testing.T) {
	h := New(newTestCache(t))

	q := url.Values{
		"query":         {`query Q($x: Boolean!) { category { name @include(if: $x) } }`},
		"variables":     {`{"x": true}`},
		"operationName": {"Q"},
	}
	req := httptest.NewRequest("GET", "/graphql?"+q.Encode(), nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	want := map[string]any{"data": map[string]any{"category": map[string]any{"name": "Sports"}}}
	if diff := cmp.Diff(want, decode(t, w)); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestErrorEnvelope(t *testing.T) {
	h := New(newTestCache(t))

	w := post(t, h, "/graphql", `{"query":"{ category { rating } }"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	got := decode(t, w).(map[string]any)
	if _, ok := got["data"]; ok {
		t.Fatalf("partial data returned: %v", got)
	}
	if msg, _ := got["error"].(string); !strings.Contains(msg, "field not cached") {
		t.Fatalf("unexpected envelope %v", got)
	}
}

func TestBatch(t *testing.T) {
	h := New(newTestCache(t))

	w := post(t, h, "/graphql", `[{"query":"{ category { name } }"},{"query":"{ nope }"}]`)
	got, ok := decode(t, w).([]any)
	if !ok || len(got) != 2 {
		t.Fatalf("unexpected batch response %s", w.Body.String())
	}
	if _, ok := got[0].(map[string]any)["data"]; !ok {
		t.Fatalf("first result should carry data: %v", got[0])
	}
	if _, ok := got[1].(map[string]any)["error"]; !ok {
		t.Fatalf("second result should carry an error: %v", got[1])
	}
}

func TestBadRequests(t *testing.T) {
	h := New(newTestCache(t))

	cases := []struct {
		method, ct, body string
		status           int
	}{
		{"POST", "application/json", `{"query": ""}`, http.StatusBadRequest},
		{"POST", "application/json", `{`, http.StatusBadRequest},
		{"POST", "application/json", `[]`, http.StatusBadRequest},
		{"POST", "text/plain", `{ category { name } }`, http.StatusBadRequest},
		{"PUT", "application/json", `{}`, http.StatusMethodNotAllowed},
		{"GET", "", ``, http.StatusBadRequest},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, "/graphql", bytes.NewBufferString(tc.body))
		if tc.ct != "" {
			req.Header.Set("Content-Type", tc.ct)
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if w.Code != tc.status {
			t.Fatalf("%s %q: expected %d got %d", tc.method, tc.body, tc.status, w.Code)
		}
		if _, ok := decode(t, w).(map[string]any)["error"]; !ok {
			t.Fatalf("%s %q: missing error envelope", tc.method, tc.body)
		}
	}
}

func TestCORSAndPreflight(t *testing.T) {
	h := New(newTestCache(t), WithCORS("*"))

	// simple request
	req := httptest.NewRequest("POST", "/", bytes.NewBufferString(`{"query":"{ category { name } }"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "http://example.com")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing CORS header")
	}

	// preflight
	pre := httptest.NewRequest("OPTIONS", "/", nil)
	pre.Header.Set("Origin", "http://example.com")
	pre.Header.Set("Access-Control-Request-Headers", "X-Test")
	pw := httptest.NewRecorder()
	h.ServeHTTP(pw, pre)
	if pw.Code != http.StatusNoContent {
		t.Fatalf("preflight status %d", pw.Code)
	}
	if pw.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("preflight missing CORS header")
	}
	if pw.Header().Get("Access-Control-Allow-Headers") != "X-Test" {
		t.Fatalf("preflight missing allow headers")
	}
}

func TestCORSSpecificOrigin(t *testing.T) {
	h := New(newTestCache(t), WithCORS("http://app.local"))

	for origin, want := range map[string]string{"http://app.local": "http://app.local", "http://evil.local": ""} {
		req := httptest.NewRequest("POST", "/", bytes.NewBufferString(`{"query":"{ category { name } }"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Origin", origin)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != want {
			t.Fatalf("origin %s: allow-origin %q", origin, got)
		}
	}
}

func TestMaxBodyBytes(t *testing.T) {
	h := New(newTestCache(t), WithMaxBodyBytes(10))

	w := post(t, h, "/", `{"query":"1234567890"}`)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 got %d", w.Code)
	}
}

func TestRequestID(t *testing.T) {
	var captured string
	h := New(backendFunc(func(ctx context.Context, _, _ string, _ map[string]any) cache.Response {
		captured, _ = reqid.FromContext(ctx)
		return cache.Response{Data: map[string]any{"ok": true}}
	}))

	w := post(t, h, "/", `{"query":"{ ok }"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	if captured == "" {
		t.Fatalf("missing request id in context")
	}
	if got := w.Header().Get(reqid.Header); got != captured {
		t.Fatalf("response header %q, context %q", got, captured)
	}

	incoming := uuid.NewString()
	req := httptest.NewRequest("POST", "/", bytes.NewBufferString(`{"query":"{ ok }"}`))
	req.Header.Set(reqid.Header, incoming)
	h.ServeHTTP(httptest.NewRecorder(), req)
	if captured != incoming {
		t.Fatalf("incoming id not kept: %q != %q", captured, incoming)
	}
}

func TestDefaultTimeout(t *testing.T) {
	var hasDeadline bool
	h := New(backendFunc(func(ctx context.Context, _, _ string, _ map[string]any) cache.Response {
		_, hasDeadline = ctx.Deadline()
		return cache.Response{}
	}))
	post(t, h, "/", `{"query":"{ ok }"}`)
	if !hasDeadline {
		t.Fatalf("default timeout not applied")
	}
}

func TestAdmin(t *testing.T) {
	c := newTestCache(t)
	a := NewAdmin(c, quiet())

	w := post(t, a, "/cache", `{"data": {"category": {"__typename": "Category", "nodeId": "c2", "name": "Music"}}}`)
	if w.Code != http.StatusNoContent {
		t.Fatalf("post status %d: %s", w.Code, w.Body.String())
	}
	if c.Store().Len() != 2 {
		t.Fatalf("expected 2 records, got %d", c.Store().Len())
	}

	w = post(t, a, "/cache", `{"category": {"__typename": "Category"}}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("malformed status %d", w.Code)
	}
	if msg, _ := decode(t, w).(map[string]any)["error"].(string); !strings.Contains(msg, "malformed node") {
		t.Fatalf("unexpected error %q", msg)
	}

	get := httptest.NewRecorder()
	a.ServeHTTP(get, httptest.NewRequest("GET", "/cache", nil))
	if get.Code != http.StatusOK {
		t.Fatalf("get status %d", get.Code)
	}
	snap := decode(t, get).(map[string]any)
	typesList := snap["types"].([]any)
	if len(typesList) != 1 || typesList[0].(map[string]any)["name"] != "Category" {
		t.Fatalf("unexpected snapshot %v", snap)
	}

	del := httptest.NewRecorder()
	a.ServeHTTP(del, httptest.NewRequest("DELETE", "/cache", nil))
	if del.Code != http.StatusNoContent {
		t.Fatalf("delete status %d", del.Code)
	}
	if c.Store().Len() != 0 {
		t.Fatalf("cache not cleared")
	}

	put := httptest.NewRecorder()
	a.ServeHTTP(put, httptest.NewRequest("PUT", "/cache", nil))
	if put.Code != http.StatusMethodNotAllowed {
		t.Fatalf("put status %d", put.Code)
	}
}

func TestMux(t *testing.T) {
	c := newTestCache(t)
	srv := httptest.NewServer(NewMux(c, nil, quiet()))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/graphql", "application/json", strings.NewReader(`{"query":"{ category { name } }"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("graphql status %d", resp.StatusCode)
	}

	for path, want := range map[string]string{"/metrics": "normcache_query_duration_seconds", "/healthz": ""} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("get %s: %v", path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), want) {
			t.Fatalf("%s: status %d body %.200s", path, resp.StatusCode, body)
		}
	}
}
