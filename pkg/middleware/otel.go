package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/reactor/pkg/server"
)

const defaultTracerName = "reactor"

// OTelConfig configures the OpenTelemetry middleware.
type OTelConfig struct {
	// TracerName is the name of the tracer (default: "reactor").
	TracerName string

	// TracerProvider supplies the tracer. Defaults to the global provider.
	TracerProvider trace.TracerProvider

	// Filter determines which ops to trace. If nil, all ops are traced.
	Filter func(op *server.Op) bool

	// AttributeExtractor adds custom attributes to each span.
	AttributeExtractor func(op *server.Op) []attribute.KeyValue
}

// OTelOption configures the OpenTelemetry middleware.
type OTelOption func(*OTelConfig)

// WithTracerName sets the tracer name.
func WithTracerName(name string) OTelOption {
	return func(c *OTelConfig) {
		c.TracerName = name
	}
}

// WithTracerProvider sets the tracer provider.
func WithTracerProvider(tp trace.TracerProvider) OTelOption {
	return func(c *OTelConfig) {
		c.TracerProvider = tp
	}
}

// WithOpFilter sets a filter function for ops.
func WithOpFilter(filter func(op *server.Op) bool) OTelOption {
	return func(c *OTelConfig) {
		c.Filter = filter
	}
}

// WithAttributeExtractor sets a custom attribute extractor.
func WithAttributeExtractor(extractor func(op *server.Op) []attribute.KeyValue) OTelOption {
	return func(c *OTelConfig) {
		c.AttributeExtractor = extractor
	}
}

func defaultOTelConfig() OTelConfig {
	return OTelConfig{TracerName: defaultTracerName}
}

// OpenTelemetry returns middleware that traces every session op. The span
// is carried in the context passed down the chain, so component code sees
// it through ctx.Context().
//
// Configure the provider in main before starting the server:
//
//	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
//	otel.SetTracerProvider(tp)
func OpenTelemetry(opts ...OTelOption) server.Middleware {
	config := defaultOTelConfig()
	for _, opt := range opts {
		opt(&config)
	}
	tp := config.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	tracer := tp.Tracer(config.TracerName)

	return func(next server.HandlerFunc) server.HandlerFunc {
		return func(ctx context.Context, op *server.Op) error {
			if config.Filter != nil && !config.Filter(op) {
				return next(ctx, op)
			}

			attrs := []attribute.KeyValue{
				attribute.String("reactor.session_id", op.SessionID),
				attribute.String("reactor.op", op.Name),
			}
			if op.Target != "" {
				attrs = append(attrs, attribute.String("reactor.target", op.Target))
			}
			if op.ID != "" {
				attrs = append(attrs, attribute.String("reactor.component_id", op.ID))
			}
			if config.AttributeExtractor != nil {
				attrs = append(attrs, config.AttributeExtractor(op)...)
			}

			spanCtx, span := tracer.Start(ctx, SpanName(op),
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(attrs...),
				trace.WithTimestamp(time.Now()),
			)
			defer span.End()

			err := next(spanCtx, op)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			} else {
				span.SetStatus(codes.Ok, "")
			}
			span.SetAttributes(attribute.Int("reactor.events_sent", op.Sent))
			return err
		}
	}
}

// SpanName returns the span name for op, e.g. "reactor.user_event".
func SpanName(op *server.Op) string {
	return "reactor." + op.Name
}
