package otel

import (
	"context"
	"sync"

	eventbus "github.com/hanpama/normcache/internal/eventbus"
	events "github.com/hanpama/normcache/internal/events"
	reqid "github.com/hanpama/normcache/internal/reqid"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Setup configures OpenTelemetry and attaches eventbus subscribers.
// If endpoint is empty, no telemetry is configured.
func Setup(endpoint, service string) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	exp, err := otlptracegrpc.New(context.Background(),
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(service),
		)),
	)
	otel.SetTracerProvider(tp)

	sub := newSubscriber(otel.Tracer("normcache"))
	unsubscribe := sub.register()

	return func(ctx context.Context) error {
		unsubscribe()
		return tp.Shutdown(ctx)
	}, nil
}

type subscriber struct {
	tracer         trace.Tracer
	httpSpans      sync.Map // rid -> trace.Span
	querySpans     sync.Map // rid -> trace.Span
	normalizeSpans sync.Map // rid -> trace.Span
}

func newSubscriber(tracer trace.Tracer) *subscriber {
	return &subscriber{tracer: tracer}
}

// parent returns ctx carrying the innermost open span of the request.
func (s *subscriber) parent(ctx context.Context, rid string) context.Context {
	for _, m := range []*sync.Map{&s.querySpans, &s.normalizeSpans, &s.httpSpans} {
		if v, ok := m.Load(rid); ok {
			return trace.ContextWithSpan(ctx, v.(trace.Span))
		}
	}
	return ctx
}

func end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (s *subscriber) register() (unsubscribe func()) {
	unsubs := []func(){
		eventbus.SubscribeGlobal(func(ctx context.Context, e events.HTTPStart) {
			rid, _ := reqid.FromContext(ctx)
			_, span := s.tracer.Start(ctx, "http.request")
			span.SetAttributes(
				semconv.HTTPMethodKey.String(e.Request.Method),
				attribute.String("http.target", e.Request.URL.Path),
			)
			s.httpSpans.Store(rid, span)
		}),

		eventbus.SubscribeGlobal(func(ctx context.Context, e events.HTTPFinish) {
			rid, _ := reqid.FromContext(ctx)
			v, ok := s.httpSpans.LoadAndDelete(rid)
			if !ok {
				return
			}
			span := v.(trace.Span)
			span.SetAttributes(semconv.HTTPStatusCodeKey.Int(e.Status))
			span.End()
		}),

		eventbus.SubscribeGlobal(func(ctx context.Context, e events.QueryStart) {
			rid, _ := reqid.FromContext(ctx)
			_, span := s.tracer.Start(s.parent(ctx, rid), "cache.query")
			span.SetAttributes(attribute.String("graphql.operation.name", e.OperationName))
			s.querySpans.Store(rid, span)
		}),

		eventbus.SubscribeGlobal(func(ctx context.Context, e events.QueryFinish) {
			rid, _ := reqid.FromContext(ctx)
			v, ok := s.querySpans.LoadAndDelete(rid)
			if !ok {
				return
			}
			span := v.(trace.Span)
			if e.ErrorKind != "" {
				span.SetAttributes(attribute.String("cache.error_kind", e.ErrorKind))
			}
			end(span, e.Err)
		}),

		eventbus.SubscribeGlobal(func(ctx context.Context, e events.NormalizeStart) {
			rid, _ := reqid.FromContext(ctx)
			_, span := s.tracer.Start(s.parent(ctx, rid), "cache.normalize")
			span.SetAttributes(attribute.StringSlice("cache.root_fields", e.Fields))
			s.normalizeSpans.Store(rid, span)
		}),

		eventbus.SubscribeGlobal(func(ctx context.Context, e events.NormalizeFinish) {
			rid, _ := reqid.FromContext(ctx)
			v, ok := s.normalizeSpans.LoadAndDelete(rid)
			if !ok {
				return
			}
			span := v.(trace.Span)
			span.SetAttributes(attribute.Int("cache.changes", e.Changes))
			end(span, e.Err)
		}),

		eventbus.SubscribeGlobal(func(ctx context.Context, e events.SnapshotFinish) {
			_, span := s.tracer.Start(ctx, "cache.snapshot")
			span.SetAttributes(
				attribute.String("cache.snapshot.driver", e.Driver),
				attribute.Int64("cache.snapshot.generation", int64(e.Generation)),
				attribute.Int64("cache.snapshot.duration_ms", e.Duration.Milliseconds()),
			)
			end(span, e.Err)
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
