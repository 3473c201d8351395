// Package duplex pairs two engines for a peer that both serves and issues
// JSON-RPC requests over one connection.
//
// Requests arriving from the remote side go through the receiver engine.
// Requests this side originates go through the sender engine before they
// are written out. The two stacks are independent.
package duplex

import (
	"context"

	"github.com/felixgeelhaar/rpcengine/engine"
	"github.com/felixgeelhaar/rpcengine/protocol"
)

// Options configures an Engine.
type Options struct {
	// ReceiverNotificationHandler receives inbound notifications. If nil,
	// they go through the receiver stack.
	ReceiverNotificationHandler engine.NotificationHandler

	// SenderNotificationHandler receives outbound notifications. If nil,
	// they go through the sender stack.
	SenderNotificationHandler engine.NotificationHandler

	// Logger is shared by both engines.
	Logger engine.Logger
}

// Engine is a pair of independent engines, one per direction.
type Engine struct {
	receiver *engine.Engine
	sender   *engine.Engine
}

// New creates a duplex engine.
func New(opts Options) *Engine {
	return &Engine{
		receiver: engine.New(directionOptions(opts.ReceiverNotificationHandler, opts.Logger)...),
		sender:   engine.New(directionOptions(opts.SenderNotificationHandler, opts.Logger)...),
	}
}

func directionOptions(h engine.NotificationHandler, l engine.Logger) []engine.Option {
	var opts []engine.Option
	if h != nil {
		opts = append(opts, engine.WithNotificationHandler(h))
	}
	if l != nil {
		opts = append(opts, engine.WithLogger(l))
	}
	return opts
}

// Receiver returns the engine for inbound requests.
func (d *Engine) Receiver() *engine.Engine { return d.receiver }

// Sender returns the engine for outbound requests.
func (d *Engine) Sender() *engine.Engine { return d.sender }

// AddReceiverMiddleware appends middleware to the receiver stack.
func (d *Engine) AddReceiverMiddleware(m ...engine.Middleware) {
	d.receiver.Push(m...)
}

// AddSenderMiddleware appends middleware to the sender stack.
func (d *Engine) AddSenderMiddleware(m ...engine.Middleware) {
	d.sender.Push(m...)
}

// ReceiverAsMiddleware returns the receiver stack as a single middleware.
func (d *Engine) ReceiverAsMiddleware() engine.Middleware {
	return d.receiver.AsMiddleware()
}

// SenderAsMiddleware returns the sender stack as a single middleware.
func (d *Engine) SenderAsMiddleware() engine.Middleware {
	return d.sender.AsMiddleware()
}

// Receive handles an inbound request or notification.
func (d *Engine) Receive(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	return d.receiver.Handle(ctx, req)
}

// ReceiveBatch handles an inbound batch.
func (d *Engine) ReceiveBatch(ctx context.Context, reqs []*protocol.Request) ([]*protocol.Response, error) {
	return d.receiver.HandleBatch(ctx, reqs)
}

// Send handles an outbound request or notification.
func (d *Engine) Send(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	return d.sender.Handle(ctx, req)
}

// SendBatch handles an outbound batch.
func (d *Engine) SendBatch(ctx context.Context, reqs []*protocol.Request) ([]*protocol.Response, error) {
	return d.sender.HandleBatch(ctx, reqs)
}

// Destroy destroys both engines.
func (d *Engine) Destroy() {
	d.receiver.Destroy()
	d.sender.Destroy()
}
