// Package rpcengine provides a JSON-RPC 2.0 middleware engine.
//
// A request travels down a stack of middleware until one of them ends it,
// then back up through the return handlers the middleware registered on the
// way down, in reverse order:
//
//	e := rpcengine.New(rpcengine.WithStack(
//	    rpcengine.DefaultStack(logger)...,
//	))
//	e.Push(rpcengine.Scaffold(map[string]rpcengine.Middleware{
//	    "ping": rpcengine.Static("pong"),
//	}))
//
//	rpcengine.ServeStdio(ctx, e)
//
// The engine, middleware, protocol and transport packages hold the full API;
// this package re-exports the parts most programs need.
package rpcengine

import (
	"context"
	"time"

	"github.com/felixgeelhaar/rpcengine/engine"
	"github.com/felixgeelhaar/rpcengine/middleware"
	"github.com/felixgeelhaar/rpcengine/protocol"
	"github.com/felixgeelhaar/rpcengine/transport"
)

// Re-export core types for convenience

// Engine runs requests through a middleware stack.
type Engine = engine.Engine

// Option configures an Engine.
type Option = engine.Option

// Middleware is one step of an engine's stack.
type Middleware = engine.Middleware

// PendingResponse is the response under construction.
type PendingResponse = engine.PendingResponse

// Next, End and ReturnHandler are the continuations a middleware receives.
type (
	Next          = engine.Next
	End           = engine.End
	ReturnHandler = engine.ReturnHandler
)

// Protocol types
type (
	Request  = protocol.Request
	Response = protocol.Response
	Error    = protocol.Error
)

// Logging types
type (
	Logger   = engine.Logger
	LogField = engine.Field
)

// Engine options re-exported for convenience.
var (
	WithStack               = engine.WithMiddleware
	WithEngineLogger        = engine.WithLogger
	WithNotificationHandler = engine.WithNotificationHandler
	WithPanicHandler        = engine.WithPanicHandler
	WithBatchLimit          = engine.WithBatchLimit
)

// Errors reported when a stack breaks its contract.
var (
	ErrNothingEnded = engine.ErrNothingEnded
	ErrNoResult     = engine.ErrNoResult
	ErrDestroyed    = engine.ErrDestroyed
)

// RateLimit re-exports for convenience.
type RateLimitOption = middleware.RateLimitOption

var (
	RateLimit            = middleware.RateLimit
	RateLimitByMethod    = middleware.RateLimitByMethod
	RateLimitByClient    = middleware.RateLimitByClient
	WithRateLimitKeyFunc = middleware.WithRateLimitKeyFunc
	WithRateLimitLogger  = middleware.WithRateLimitLogger
)

// SizeLimit re-exports for convenience.
type SizeLimitOption = middleware.SizeLimitOption

var (
	SizeLimit           = middleware.SizeLimit
	WithSizeLimitLogger = middleware.WithSizeLimitLogger
)

// Size limit presets.
const (
	KB = middleware.KB
	MB = middleware.MB
)

// ServeOption configures how an engine is served.
type ServeOption func(*serveOptions)

type serveOptions struct {
	middleware []Middleware
	logger     Logger
	stdio      []transport.StdioOption
}

// WithMiddleware runs the given middleware in front of the served engine.
func WithMiddleware(m ...Middleware) ServeOption {
	return func(o *serveOptions) {
		o.middleware = append(o.middleware, m...)
	}
}

// WithLogger sets the logger for the transport and the front middleware.
func WithLogger(l Logger) ServeOption {
	return func(o *serveOptions) {
		o.logger = l
	}
}

// WithStdioOptions passes options through to the stdio transport.
func WithStdioOptions(opts ...transport.StdioOption) ServeOption {
	return func(o *serveOptions) {
		o.stdio = append(o.stdio, opts...)
	}
}

// New creates an engine.
func New(opts ...Option) *Engine {
	return engine.New(opts...)
}

// ServeStdio serves the engine over stdin and stdout.
// This blocks until the input ends or the context is canceled.
func ServeStdio(ctx context.Context, e *Engine, opts ...ServeOption) error {
	options := &serveOptions{logger: engine.NopLogger{}}
	for _, opt := range opts {
		opt(options)
	}

	t := transport.NewStdio(append(
		[]transport.StdioOption{transport.WithStdioLogger(options.logger)},
		options.stdio...,
	)...)
	return t.Serve(ctx, handlerFor(e, options))
}

// handlerFor puts the front middleware, if any, in an outer engine that
// embeds e as its last step.
func handlerFor(e *Engine, options *serveOptions) transport.Handler {
	if len(options.middleware) == 0 {
		return e
	}
	stack := append(append([]Middleware{}, options.middleware...), e.AsMiddleware())
	return engine.New(
		engine.WithMiddleware(stack...),
		engine.WithLogger(options.logger),
	)
}

// Middleware re-exports

// Scaffold dispatches requests to per-method handlers.
func Scaffold(handlers map[string]Middleware) Middleware {
	return middleware.Scaffold(handlers)
}

// Static ends every request with v as the result.
func Static(v any) Middleware {
	return middleware.Static(v)
}

// Merge joins several middleware into one step.
func Merge(m ...Middleware) Middleware {
	return middleware.Merge(m...)
}

// IDRemap gives each request a unique id for the rest of the stack.
func IDRemap() Middleware {
	return middleware.IDRemap()
}

// Timeout bounds how long m may take to end or pass a request.
func Timeout(d time.Duration, m Middleware) Middleware {
	return middleware.Timeout(d, m)
}

// Logging returns middleware that logs request details.
func Logging(logger Logger) Middleware {
	return middleware.Logging(logger)
}

// DefaultStack returns the recommended production middleware stack.
func DefaultStack(logger Logger) []Middleware {
	return middleware.DefaultStack(logger)
}

// LogF creates a new log field with the given key and value.
func LogF(key string, value any) LogField {
	return engine.F(key, value)
}
