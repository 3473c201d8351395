package transport

import (
	"context"
	"encoding/json"

	"github.com/felixgeelhaar/rpcengine/protocol"
)

// Handler processes one encoded message, single or batch, and returns the
// encoded reply. A nil reply means there is nothing to write back.
// *engine.Engine satisfies Handler.
type Handler interface {
	HandleMessage(ctx context.Context, data []byte) ([]byte, error)
}

// HandlerFunc is an adapter to allow ordinary functions as handlers.
type HandlerFunc func(ctx context.Context, data []byte) ([]byte, error)

// HandleMessage calls f(ctx, data).
func (f HandlerFunc) HandleMessage(ctx context.Context, data []byte) ([]byte, error) {
	return f(ctx, data)
}

// Transport defines the communication layer interface.
type Transport interface {
	// Serve starts the transport, blocking until the input ends, ctx is
	// canceled or an error occurs.
	Serve(ctx context.Context, handler Handler) error

	// Addr returns the transport's address description.
	Addr() string
}

// NotificationSender can send JSON-RPC notifications to the peer.
type NotificationSender interface {
	SendNotification(method string, params any) error
}

// notificationSenderKey is the context key for the notification sender.
type notificationSenderKey struct{}

// ContextWithNotificationSender returns a context with the notification sender attached.
func ContextWithNotificationSender(ctx context.Context, sender NotificationSender) context.Context {
	return context.WithValue(ctx, notificationSenderKey{}, sender)
}

// NotificationSenderFromContext returns the notification sender from context, or nil if none.
// Middleware served by a transport use it to push notifications to the peer.
func NotificationSenderFromContext(ctx context.Context) NotificationSender {
	sender, _ := ctx.Value(notificationSenderKey{}).(NotificationSender)
	return sender
}

// newNotification encodes an outbound notification.
func newNotification(method string, params any) ([]byte, error) {
	n := protocol.Request{
		JSONRPC: protocol.JSONRPCVersion,
		Method:  method,
	}
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, err
		}
		n.Params = data
	}
	return json.Marshal(n)
}
