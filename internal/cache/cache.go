// Package cache is the normalized cache facade. It owns one entity store and
// ties normalization, query resolution and snapshot persistence together:
// Normalize flattens a result into the store, Query answers a query document
// from it, and every pass that changed something schedules a background
// snapshot write to the configured sink.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	eventbus "github.com/hanpama/normcache/internal/eventbus"
	events "github.com/hanpama/normcache/internal/events"
	executor "github.com/hanpama/normcache/internal/executor"
	language "github.com/hanpama/normcache/internal/language"
	normalize "github.com/hanpama/normcache/internal/normalize"
	resolve "github.com/hanpama/normcache/internal/resolve"
	snapshot "github.com/hanpama/normcache/internal/snapshot"
	store "github.com/hanpama/normcache/internal/store"
)

// Notifier is told about every record a normalization pass changed.
type Notifier interface {
	ChangeType(ctx context.Context, typeName string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, typeName string)

func (f NotifierFunc) ChangeType(ctx context.Context, typeName string) { f(ctx, typeName) }

type Options struct {
	Logger   *slog.Logger
	Sink     snapshot.Sink
	Notifier Notifier
	// SnapshotTimeout bounds one snapshot write. 0 means no limit.
	SnapshotTimeout time.Duration

	NormalizeOptions []normalize.Option
	ResolveOptions   []resolve.Option
}

type Option func(*Options)

func WithLogger(l *slog.Logger) Option           { return func(o *Options) { o.Logger = l } }
func WithSink(s snapshot.Sink) Option            { return func(o *Options) { o.Sink = s } }
func WithNotifier(n Notifier) Option             { return func(o *Options) { o.Notifier = n } }
func WithSnapshotTimeout(d time.Duration) Option { return func(o *Options) { o.SnapshotTimeout = d } }
func WithNormalizeOptions(opts ...normalize.Option) Option {
	return func(o *Options) { o.NormalizeOptions = append(o.NormalizeOptions, opts...) }
}
func WithResolveOptions(opts ...resolve.Option) Option {
	return func(o *Options) { o.ResolveOptions = append(o.ResolveOptions, opts...) }
}

// Cache is safe for concurrent use. Normalize and Clear are serialized
// against each other; queries run in parallel and each observes the store
// either before or after any given pass.
type Cache struct {
	store *store.Store
	norm  *normalize.Normalizer
	types resolve.TypeMap
	opt   Options
	log   *slog.Logger

	snapMu  sync.Mutex // serializes snapshot writes
	gen     atomic.Uint64
	written uint64 // generation of the last write, guarded by snapMu
	pending sync.WaitGroup

	closeMu sync.Mutex // orders pending.Add against Close
	closed  bool
}

// New returns an empty cache resolving field types through types.
func New(types resolve.TypeMap, opts ...Option) *Cache {
	o := Options{SnapshotTimeout: 30 * time.Second}
	for _, f := range opts {
		f(&o)
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return &Cache{
		store: store.New(),
		norm:  normalize.New(o.NormalizeOptions...),
		types: types,
		opt:   o,
		log:   o.Logger,
	}
}

// Store exposes the underlying entity store.
func (c *Cache) Store() *store.Store { return c.store }

// Normalize flattens result, the data object of a query response, into the
// store. A malformed result leaves the store untouched.
func (c *Cache) Normalize(ctx context.Context, result map[string]any) error {
	fields := rootFields(result)
	start := time.Now()
	eventbus.Publish(ctx, events.NormalizeStart{Fields: fields})

	changes, err := c.store.Update(func(tx *store.Tx) error {
		return c.norm.Normalize(tx, result)
	})
	normalizePasses.WithLabelValues(outcome(err)).Inc()
	eventbus.Publish(ctx, events.NormalizeFinish{
		Fields:   fields,
		Changes:  len(changes),
		Err:      err,
		Duration: time.Since(start),
	})
	if err != nil {
		return err
	}

	for _, ch := range changes {
		recordsChanged.WithLabelValues(ch.Type).Inc()
		eventbus.Publish(ctx, events.TypeChanged{Type: ch.Type, ID: ch.ID})
		if c.opt.Notifier != nil {
			c.opt.Notifier.ChangeType(ctx, ch.Type)
		}
	}
	if len(changes) > 0 {
		c.scheduleSnapshot()
	}
	c.log.Debug("normalized result", "fields", fields, "changes", len(changes))
	return nil
}

// NormalizeJSON decodes data and normalizes it. A GraphQL response envelope
// ({"data": ..., "errors": ...}) is unwrapped to its data object.
func (c *Cache) NormalizeJSON(ctx context.Context, data []byte) error {
	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return c.Normalize(ctx, Unwrap(result))
}

// Unwrap returns the data object of a GraphQL response envelope, or result
// itself when it is not one.
func Unwrap(result map[string]any) map[string]any {
	data, ok := result["data"].(map[string]any)
	if !ok {
		return result
	}
	for k := range result {
		switch k {
		case "data", "errors", "extensions":
		default:
			return result
		}
	}
	return data
}

// Response is the outcome of Query: the data tree, or a single error
// message when any part of the query could not be answered.
type Response struct {
	Data  map[string]any `json:"data,omitempty"`
	Error string         `json:"error,omitempty"`
	err   error
}

// Err returns the error behind Response.Error.
func (r Response) Err() error { return r.err }

// ErrorResponse returns the envelope for err.
func ErrorResponse(err error) Response { return Response{Error: err.Error(), err: err} }

// Query answers query from the store.
func (c *Cache) Query(ctx context.Context, query string, variables map[string]any) Response {
	return c.QueryOperation(ctx, query, "", variables)
}

// QueryOperation answers the named operation of query from the store. Any
// fault aborts the whole query; no partial data is returned.
func (c *Cache) QueryOperation(ctx context.Context, query, operationName string, variables map[string]any) Response {
	start := time.Now()
	eventbus.Publish(ctx, events.QueryStart{Query: query, OperationName: operationName})

	data, err := c.execute(ctx, query, operationName, variables)

	kind := ErrorKind(err)
	elapsed := time.Since(start)
	queries.WithLabelValues(outcome(err)).Inc()
	queryDuration.Observe(elapsed.Seconds())
	eventbus.Publish(ctx, events.QueryFinish{
		Query:         query,
		OperationName: operationName,
		ErrorKind:     kind,
		Err:           err,
		Duration:      elapsed,
	})
	if err != nil {
		return ErrorResponse(err)
	}
	return Response{Data: data}
}

func (c *Cache) execute(ctx context.Context, query, operationName string, variables map[string]any) (map[string]any, error) {
	doc, err := language.ParseQuery(query)
	if err != nil {
		return nil, err
	}
	var data map[string]any
	err = c.store.View(func(v *store.View) error {
		r := resolve.New(v, c.types, c.opt.ResolveOptions...)
		res := executor.NewExecutor(r).ExecuteRequest(ctx, doc, operationName, variables, r.Root())
		if err := res.Err(); err != nil {
			return err
		}
		data, _ = res.Data.(map[string]any)
		return nil
	})
	return data, err
}

// Clear empties every bucket and the root pointer table.
func (c *Cache) Clear() {
	c.store.Reset()
	clears.Inc()
	eventbus.Publish(context.Background(), events.CacheCleared{})
	c.scheduleSnapshot()
}

// Snapshot returns a copy of the current store contents.
func (c *Cache) Snapshot() store.Snapshot { return c.store.Snapshot() }

// Restore replaces the store contents with the snapshot saved in the sink.
// A missing snapshot leaves the store as it is.
func (c *Cache) Restore(ctx context.Context) error {
	if c.opt.Sink == nil {
		return nil
	}
	snap, err := c.opt.Sink.Load(ctx)
	if errors.Is(err, snapshot.ErrNotFound) {
		c.log.Info("no snapshot to restore", "driver", c.opt.Sink.Driver())
		return nil
	}
	if err != nil {
		return fmt.Errorf("restore snapshot: %w", err)
	}
	c.store.Restore(snap)
	c.log.Info("restored snapshot", "driver", c.opt.Sink.Driver(), "types", len(snap.Types))
	return nil
}

// Close waits for scheduled snapshot writes and closes the sink.
func (c *Cache) Close() error {
	c.closeMu.Lock()
	if c.closed {
		c.closeMu.Unlock()
		return nil
	}
	c.closed = true
	c.closeMu.Unlock()

	c.pending.Wait()
	if c.opt.Sink == nil {
		return nil
	}
	return c.opt.Sink.Close()
}

func rootFields(result map[string]any) []string {
	fields := make([]string, 0, len(result))
	for k := range result {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fields
}
