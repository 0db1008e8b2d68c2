// Package client fetches query results from an upstream GraphQL endpoint
// and feeds them into the cache. Every request gets __typename added to its
// selection sets so the result can be normalized; a fetch policy decides
// whether a query is answered from the cache, the network, or both.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"

	cache "github.com/hanpama/normcache/internal/cache"
	eventbus "github.com/hanpama/normcache/internal/eventbus"
	events "github.com/hanpama/normcache/internal/events"
	language "github.com/hanpama/normcache/internal/language"
)

// Policy selects where a query is answered from.
type Policy string

const (
	// CacheFirst answers from the cache and fetches on a miss.
	CacheFirst Policy = "cache-first"
	// CacheOnly never touches the network.
	CacheOnly Policy = "cache-only"
	// NetworkOnly always fetches and normalizes the result.
	NetworkOnly Policy = "network-only"
	// NetworkOnce fetches the first time a request is seen and answers
	// from the cache afterwards.
	NetworkOnce Policy = "network-once"
)

var (
	// ErrUpstream wraps failures reported by the upstream endpoint.
	ErrUpstream = errors.New("upstream error")
	// ErrUnknownPolicy is returned for an unsupported fetch policy.
	ErrUnknownPolicy = errors.New("unknown fetch policy")
)

var fetches = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "normcache",
	Subsystem: "client",
	Name:      "fetches_total",
	Help:      "Upstream fetches by policy and outcome",
}, []string{"policy", "outcome"})

// ParsePolicy validates a policy name. An empty name selects CacheFirst.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case "":
		return CacheFirst, nil
	case CacheFirst, CacheOnly, NetworkOnly, NetworkOnce:
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
}

// Request is a GraphQL request body.
type Request struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
}

type Options struct {
	HTTPClient *http.Client
	Header     http.Header
	Policy     Policy
	Logger     *slog.Logger
}

type Option func(*Options)

func WithHTTPClient(c *http.Client) Option { return func(o *Options) { o.HTTPClient = c } }
func WithPolicy(p Policy) Option           { return func(o *Options) { o.Policy = p } }
func WithLogger(l *slog.Logger) Option     { return func(o *Options) { o.Logger = l } }
func WithHeader(key, value string) Option {
	return func(o *Options) {
		if o.Header == nil {
			o.Header = http.Header{}
		}
		o.Header.Add(key, value)
	}
}

func buildOptions(opts []Option) Options {
	o := Options{
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Policy:     CacheFirst,
	}
	for _, f := range opts {
		f(&o)
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Client is safe for concurrent use. Identical concurrent fetches share one
// upstream request.
type Client struct {
	cache     *cache.Cache
	transport *transport
	opt       Options

	group   singleflight.Group
	mu      sync.Mutex
	fetched map[string]struct{}
}

// New returns a client for the upstream endpoint feeding c.
func New(endpoint string, c *cache.Cache, opts ...Option) *Client {
	o := buildOptions(opts)
	return &Client{
		cache:     c,
		transport: &transport{endpoint: endpoint, http: o.HTTPClient, header: o.Header},
		opt:       o,
		fetched:   make(map[string]struct{}),
	}
}

// QueryOperation answers a request with the client's default policy.
func (c *Client) QueryOperation(ctx context.Context, query, operationName string, variables map[string]any) cache.Response {
	return c.Do(ctx, Request{Query: query, OperationName: operationName, Variables: variables}, c.opt.Policy)
}

// Do answers req according to policy. Results fetched from the network are
// returned as the upstream sent them, after they were normalized.
func (c *Client) Do(ctx context.Context, req Request, policy Policy) cache.Response {
	switch policy {
	case CacheOnly:
		return c.fromCache(ctx, req)
	case CacheFirst:
		if res := c.fromCache(ctx, req); res.Err() == nil {
			return res
		}
		return c.fromNetwork(ctx, req, policy)
	case NetworkOnce:
		key, err := requestKey(req)
		if err != nil {
			return cache.ErrorResponse(err)
		}
		c.mu.Lock()
		_, seen := c.fetched[key]
		c.mu.Unlock()
		if seen {
			return c.fromCache(ctx, req)
		}
		return c.fromNetwork(ctx, req, policy)
	case NetworkOnly:
		return c.fromNetwork(ctx, req, policy)
	}
	return cache.ErrorResponse(fmt.Errorf("%w: %q", ErrUnknownPolicy, policy))
}

func (c *Client) fromCache(ctx context.Context, req Request) cache.Response {
	return c.cache.QueryOperation(ctx, req.Query, req.OperationName, req.Variables)
}

func (c *Client) fromNetwork(ctx context.Context, req Request, policy Policy) cache.Response {
	start := time.Now()
	data, err := c.fetch(ctx, req)
	eventbus.Publish(ctx, events.FetchFinish{
		Endpoint: c.transport.endpoint,
		Policy:   string(policy),
		Err:      err,
		Duration: time.Since(start),
	})
	if err != nil {
		fetches.WithLabelValues(string(policy), "error").Inc()
		c.opt.Logger.Warn("upstream fetch failed", "endpoint", c.transport.endpoint, "error", err)
		return cache.ErrorResponse(err)
	}
	fetches.WithLabelValues(string(policy), "ok").Inc()
	return cache.Response{Data: data}
}

// fetch sends req upstream with __typename selections added and normalizes
// the returned data.
func (c *Client) fetch(ctx context.Context, req Request) (map[string]any, error) {
	doc, err := language.ParseQuery(req.Query)
	if err != nil {
		return nil, err
	}
	language.AddTypename(doc)
	out := req
	out.Query = language.FormatQuery(doc)

	key, err := requestKey(out)
	if err != nil {
		return nil, err
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		res, err := c.transport.post(ctx, out)
		if err != nil {
			return nil, err
		}
		if len(res.Errors) > 0 {
			return nil, fmt.Errorf("%w: %s", ErrUpstream, res.Errors[0].Message)
		}
		if res.Data != nil {
			if err := c.cache.Normalize(ctx, res.Data); err != nil {
				return nil, err
			}
		}
		return res.Data, nil
	})
	if err != nil {
		return nil, err
	}
	if orig, err := requestKey(req); err == nil {
		c.mu.Lock()
		c.fetched[orig] = struct{}{}
		c.mu.Unlock()
	}
	data, _ := v.(map[string]any)
	return data, nil
}

func requestKey(req Request) (string, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}
	return string(b), nil
}
