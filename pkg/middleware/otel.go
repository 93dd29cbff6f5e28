package middleware

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/smarthttp/pkg/server"
)

const defaultTracerName = "smarthttp"

// OTelConfig configures the OpenTelemetry middleware.
type OTelConfig struct {
	// TracerName is the name of the tracer (default: "smarthttp").
	TracerName string

	// Tracer overrides the tracer from the global provider.
	Tracer trace.Tracer

	// IncludeSessionID adds the session id to spans. Disabled by default
	// since the id is a bearer credential.
	IncludeSessionID bool

	// Filter determines which requests to trace. If nil, all are traced.
	Filter func(ex *server.Exchange) bool

	// AttributeExtractor adds custom attributes to each span.
	AttributeExtractor func(ex *server.Exchange) []attribute.KeyValue
}

// OTelOption configures the OpenTelemetry middleware.
type OTelOption func(*OTelConfig)

// WithTracerName sets the tracer name.
func WithTracerName(name string) OTelOption {
	return func(c *OTelConfig) {
		c.TracerName = name
	}
}

// WithTracer sets the tracer directly.
func WithTracer(t trace.Tracer) OTelOption {
	return func(c *OTelConfig) {
		c.Tracer = t
	}
}

// WithIncludeSessionID enables the smarthttp.session_id attribute.
func WithIncludeSessionID(include bool) OTelOption {
	return func(c *OTelConfig) {
		c.IncludeSessionID = include
	}
}

// WithRequestFilter sets a filter function for requests.
func WithRequestFilter(filter func(ex *server.Exchange) bool) OTelOption {
	return func(c *OTelConfig) {
		c.Filter = filter
	}
}

// WithAttributeExtractor sets a custom attribute extractor.
func WithAttributeExtractor(extractor func(ex *server.Exchange) []attribute.KeyValue) OTelOption {
	return func(c *OTelConfig) {
		c.AttributeExtractor = extractor
	}
}

// OpenTelemetry creates middleware that traces every request.
//
// The span carries the path, host, and whether a session was minted; after
// the request it gets the dispatch kind and status code. Errors are
// recorded on the span and set its status.
func OpenTelemetry(opts ...OTelOption) server.Middleware {
	config := OTelConfig{TracerName: defaultTracerName}
	for _, opt := range opts {
		opt(&config)
	}
	tracer := config.Tracer
	if tracer == nil {
		tracer = otel.Tracer(config.TracerName)
	}

	return func(next server.Handler) server.Handler {
		return func(ex *server.Exchange) error {
			if config.Filter != nil && !config.Filter(ex) {
				return next(ex)
			}

			attrs := []attribute.KeyValue{
				attribute.String("smarthttp.path", ex.Request.Path),
				attribute.String("smarthttp.host", ex.Request.Host),
				attribute.Bool("smarthttp.new_session", ex.NewSession),
			}
			if config.IncludeSessionID && ex.Session != nil {
				attrs = append(attrs, attribute.String("smarthttp.session_id", ex.Session.ID))
			}
			if config.AttributeExtractor != nil {
				attrs = append(attrs, config.AttributeExtractor(ex)...)
			}

			parent := ex.Ctx
			if parent == nil {
				parent = context.Background()
			}
			spanCtx, span := tracer.Start(parent,
				fmt.Sprintf("GET %s", ex.Request.Path),
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(attrs...),
			)
			defer span.End()

			ex.Ctx = spanCtx
			err := next(ex)

			span.SetAttributes(
				attribute.String("smarthttp.kind", ex.Kind),
				attribute.Int("http.status_code", ex.Status()),
			)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			} else {
				span.SetStatus(codes.Ok, "")
			}
			return err
		}
	}
}

// SpanFromExchange returns the request span, or a no-op span if the
// request is not traced.
func SpanFromExchange(ex *server.Exchange) trace.Span {
	if ex.Ctx == nil {
		return trace.SpanFromContext(context.Background())
	}
	return trace.SpanFromContext(ex.Ctx)
}
