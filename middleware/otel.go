package middleware

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/felixgeelhaar/rpcengine/engine"
	"github.com/felixgeelhaar/rpcengine/protocol"
)

const (
	instrumentationName = "github.com/felixgeelhaar/rpcengine"
)

// OTelOption configures the OpenTelemetry middleware.
type OTelOption func(*otelConfig)

type otelConfig struct {
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	serviceName    string
	skipMethods    map[string]bool
}

// WithTracerProvider sets a custom tracer provider.
func WithTracerProvider(tp trace.TracerProvider) OTelOption {
	return func(c *otelConfig) {
		c.tracerProvider = tp
	}
}

// WithMeterProvider sets a custom meter provider.
func WithMeterProvider(mp metric.MeterProvider) OTelOption {
	return func(c *otelConfig) {
		c.meterProvider = mp
	}
}

// WithOTelServiceName sets the service name for telemetry.
func WithOTelServiceName(name string) OTelOption {
	return func(c *otelConfig) {
		c.serviceName = name
	}
}

// WithOTelSkipMethods specifies methods to skip for tracing.
func WithOTelSkipMethods(methods ...string) OTelOption {
	return func(c *otelConfig) {
		for _, m := range methods {
			c.skipMethods[m] = true
		}
	}
}

// OTel returns middleware that adds OpenTelemetry tracing and metrics.
//
// A server span is opened when the request passes this step and closed when
// the ascend phase returns to it, so the span covers everything below it in
// the stack. Request counts, latency and errors are recorded at the same
// points.
func OTel(opts ...OTelOption) engine.Middleware {
	cfg := &otelConfig{
		tracerProvider: otel.GetTracerProvider(),
		meterProvider:  otel.GetMeterProvider(),
		serviceName:    "rpcengine",
		skipMethods:    make(map[string]bool),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	tracer := cfg.tracerProvider.Tracer(
		instrumentationName,
		trace.WithInstrumentationVersion("1.0.0"),
	)

	meter := cfg.meterProvider.Meter(
		instrumentationName,
		metric.WithInstrumentationVersion("1.0.0"),
	)

	requestCounter, _ := meter.Int64Counter(
		"rpc.server.requests",
		metric.WithDescription("Total number of JSON-RPC requests"),
		metric.WithUnit("{request}"),
	)

	requestDuration, _ := meter.Float64Histogram(
		"rpc.server.request.duration",
		metric.WithDescription("Duration of JSON-RPC requests"),
		metric.WithUnit("ms"),
	)

	errorCounter, _ := meter.Int64Counter(
		"rpc.server.errors",
		metric.WithDescription("Total number of JSON-RPC errors"),
		metric.WithUnit("{error}"),
	)

	return func(ctx context.Context, req *protocol.Request, res *engine.PendingResponse, next engine.Next, end engine.End) error {
		if cfg.skipMethods[req.Method] {
			next(nil)
			return nil
		}

		attrs := []attribute.KeyValue{
			attribute.String("rpc.system", "jsonrpc"),
			attribute.String("rpc.method", req.Method),
			attribute.String("service.name", cfg.serviceName),
		}

		spanCtx, span := tracer.Start(ctx, "jsonrpc."+req.Method,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attrs...),
		)
		if len(req.ID) > 0 {
			span.SetAttributes(attribute.String("rpc.jsonrpc.request_id", string(req.ID)))
		}

		startTime := time.Now()
		requestCounter.Add(spanCtx, 1, metric.WithAttributes(attrs...))

		next(func(context.Context) error {
			defer span.End()

			duration := float64(time.Since(startTime).Milliseconds())
			requestDuration.Record(spanCtx, duration, metric.WithAttributes(attrs...))

			err := res.Err()
			if err == nil {
				span.SetStatus(codes.Ok, "")
				return nil
			}

			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())

			var rpcErr *protocol.Error
			if errors.As(err, &rpcErr) && rpcErr != nil {
				span.SetAttributes(attribute.Int("rpc.jsonrpc.error_code", rpcErr.Code))
				errorCounter.Add(spanCtx, 1, metric.WithAttributes(
					append(attrs, attribute.Int("rpc.jsonrpc.error_code", rpcErr.Code))...,
				))
			} else {
				errorCounter.Add(spanCtx, 1, metric.WithAttributes(attrs...))
			}
			return nil
		})
		return nil
	}
}
