package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/felixgeelhaar/rpcengine/protocol"
)

// ErrDestroyed is returned by every operation on an engine after Destroy.
var ErrDestroyed = errors.New("engine: engine is destroyed")

// NotificationHandler receives notifications instead of the middleware stack
// when configured with WithNotificationHandler.
type NotificationHandler func(ctx context.Context, n *protocol.Request) error

// Option configures an Engine.
type Option func(*Engine)

// WithMiddleware seeds the stack with the given middleware, in order.
func WithMiddleware(m ...Middleware) Option {
	return func(e *Engine) {
		e.middleware = append(e.middleware, m...)
	}
}

// WithLogger sets the logger used for framework-level events.
func WithLogger(l Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithNotificationHandler routes notifications to h rather than through the
// middleware stack.
func WithNotificationHandler(h NotificationHandler) Option {
	return func(e *Engine) {
		e.notificationHandler = h
	}
}

// WithPanicHandler sets the function that converts recovered panics into
// request errors.
func WithPanicHandler(h PanicHandler) Option {
	return func(e *Engine) {
		e.panicHandler = h
	}
}

// WithBatchLimit bounds how many batch elements are processed concurrently.
// Zero or a negative value means no limit.
func WithBatchLimit(n int) Option {
	return func(e *Engine) {
		e.batchLimit = n
	}
}

// Engine is a JSON-RPC request and response processor. Give it a stack of
// middleware, pass it requests, and get back responses.
//
// The stack is append-only and must not be extended while requests are in
// flight.
type Engine struct {
	mu         sync.RWMutex
	middleware []Middleware
	cleanups   []func()
	destroyed  bool

	logger              Logger
	notificationHandler NotificationHandler
	panicHandler        PanicHandler
	batchLimit          int

	// batchElement processes one element of a batch. An error returned from
	// it is a framework failure and fails the whole batch.
	batchElement func(ctx context.Context, el element) (*protocol.Response, error)
}

// New creates an engine with the given options.
func New(opts ...Option) *Engine {
	e := &Engine{
		logger:       NopLogger{},
		panicHandler: defaultPanicHandler,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.batchElement = e.handleElement
	return e
}

// Push appends middleware to the stack.
func (e *Engine) Push(m ...Middleware) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.middleware = append(e.middleware, m...)
}

// Len returns the number of middleware in the stack.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.middleware)
}

// OnDestroy registers fn to run when the engine is destroyed. Middleware that
// hold resources register their cleanup here.
func (e *Engine) OnDestroy(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cleanups = append(e.cleanups, fn)
}

// Destroy runs registered cleanups, empties the stack and makes the engine
// unusable. Calling Destroy more than once has no further effect.
func (e *Engine) Destroy() {
	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return
	}
	e.destroyed = true
	cleanups := e.cleanups
	e.cleanups = nil
	e.middleware = nil
	e.mu.Unlock()

	for _, fn := range cleanups {
		fn()
	}
}

// stack returns a snapshot of the middleware stack.
func (e *Engine) stack() ([]Middleware, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.destroyed {
		return nil, ErrDestroyed
	}
	return e.middleware, nil
}
