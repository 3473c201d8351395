// Package client provides a JSON-RPC client for talking to a peer over a
// stream.
//
// Outbound calls run through a middleware stack before they are written, and
// requests the peer sends back go through a second, independent stack. Both
// stacks belong to a duplex engine:
//
//	tr, _ := client.NewStdioTransport("rpcpipe")
//	c := client.New(tr, client.WithMiddleware(middleware.IDRemap()))
//	defer c.Close()
//
//	var out string
//	err := c.CallResult(ctx, "ping", nil, &out)
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/felixgeelhaar/rpcengine/duplex"
	"github.com/felixgeelhaar/rpcengine/engine"
	"github.com/felixgeelhaar/rpcengine/protocol"
	"github.com/felixgeelhaar/rpcengine/transport"
)

// Transport defines the interface for client-side transport.
type Transport interface {
	// Send writes a request and waits for its response. For a notification
	// it returns once the message is written, with a nil response.
	Send(ctx context.Context, req *protocol.Request) (*protocol.Response, error)
	// Close closes the transport connection.
	Close() error
}

// InboundTransport is a Transport that also carries requests initiated by
// the peer. The client hands those to its receiver stack.
type InboundTransport interface {
	Transport
	SetInbound(h transport.Handler)
}

// Client is a JSON-RPC client.
type Client struct {
	transport Transport
	opts      clientOptions
	d         *duplex.Engine
	requestID atomic.Int64
}

// Option configures a Client.
type Option func(*clientOptions)

type clientOptions struct {
	timeout             time.Duration
	logger              engine.Logger
	middleware          []engine.Middleware
	receiverMiddleware  []engine.Middleware
	notificationHandler engine.NotificationHandler
}

// WithTimeout bounds every call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(o *clientOptions) {
		o.timeout = d
	}
}

// WithLogger sets the logger for both stacks.
func WithLogger(l engine.Logger) Option {
	return func(o *clientOptions) {
		o.logger = l
	}
}

// WithMiddleware adds middleware that outbound calls pass through before
// they are written.
func WithMiddleware(m ...engine.Middleware) Option {
	return func(o *clientOptions) {
		o.middleware = append(o.middleware, m...)
	}
}

// WithReceiverMiddleware adds middleware that serves requests sent by the
// peer.
func WithReceiverMiddleware(m ...engine.Middleware) Option {
	return func(o *clientOptions) {
		o.receiverMiddleware = append(o.receiverMiddleware, m...)
	}
}

// WithNotificationHandler sets the handler for notifications sent by the
// peer.
func WithNotificationHandler(h engine.NotificationHandler) Option {
	return func(o *clientOptions) {
		o.notificationHandler = h
	}
}

// New creates a new client with the given transport.
func New(t Transport, opts ...Option) *Client {
	options := clientOptions{
		timeout: 30 * time.Second,
		logger:  engine.NopLogger{},
	}
	for _, opt := range opts {
		opt(&options)
	}

	c := &Client{
		transport: t,
		opts:      options,
		d: duplex.New(duplex.Options{
			ReceiverNotificationHandler: options.notificationHandler,
			Logger:                      options.logger,
		}),
	}
	c.d.AddSenderMiddleware(options.middleware...)
	c.d.AddSenderMiddleware(c.forward)
	c.d.AddReceiverMiddleware(options.receiverMiddleware...)

	if it, ok := t.(InboundTransport); ok {
		it.SetInbound(c.d.Receiver())
	}
	return c
}

// Call sends a request and waits for its response. A response error is
// returned as a *protocol.Error alongside the response.
func (c *Client) Call(ctx context.Context, method string, params any) (*protocol.Response, error) {
	req, err := c.newRequest(method, params)
	if err != nil {
		return nil, err
	}
	req.ID = json.RawMessage(strconv.FormatInt(c.requestID.Add(1), 10))

	if c.opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.timeout)
		defer cancel()
	}

	return c.d.Send(ctx, req)
}

// CallResult sends a request and decodes its result into out.
func (c *Client) CallResult(ctx context.Context, method string, params any, out any) error {
	resp, err := c.Call(ctx, method, params)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	raw, ok := resp.Result.(json.RawMessage)
	if !ok {
		if raw, err = json.Marshal(resp.Result); err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}

// Notify sends a notification. It is written directly, without passing
// through the outbound middleware, so that write errors reach the caller.
func (c *Client) Notify(ctx context.Context, method string, params any) error {
	req, err := c.newRequest(method, params)
	if err != nil {
		return err
	}
	_, err = c.transport.Send(ctx, req)
	return err
}

// Ping sends a ping to the peer.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.Call(ctx, "ping", nil); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close closes the transport and destroys both stacks.
func (c *Client) Close() error {
	c.d.Destroy()
	return c.transport.Close()
}

func (c *Client) newRequest(method string, params any) (*protocol.Request, error) {
	req := &protocol.Request{
		JSONRPC: protocol.JSONRPCVersion,
		Method:  method,
	}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		req.Params = raw
	}
	return req, nil
}

// forward is the last step of the outbound stack. It writes the request as
// the stack above has shaped it and ends with the peer's answer.
func (c *Client) forward(ctx context.Context, req *protocol.Request, res *engine.PendingResponse, next engine.Next, end engine.End) error {
	resp, err := c.transport.Send(ctx, req)
	if err != nil {
		return err
	}
	if resp == nil {
		res.SetResult(nil)
		end(nil)
		return nil
	}
	if resp.Error != nil {
		return resp.Error
	}
	res.SetResult(resp.Result)
	end(nil)
	return nil
}

// ErrClosed is returned by a transport after Close or once the peer has gone.
var ErrClosed = errors.New("client: transport closed")
