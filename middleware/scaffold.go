package middleware

import (
	"context"

	"github.com/felixgeelhaar/rpcengine/engine"
	"github.com/felixgeelhaar/rpcengine/protocol"
)

// Scaffold returns middleware that dispatches on the request method.
//
// A request whose method has a handler is passed to that handler with the
// same next and end. Any other request is deferred to the rest of the stack.
func Scaffold(handlers map[string]engine.Middleware) engine.Middleware {
	return func(ctx context.Context, req *protocol.Request, res *engine.PendingResponse, next engine.Next, end engine.End) error {
		h, ok := handlers[req.Method]
		if !ok || h == nil {
			next(nil)
			return nil
		}
		return h(ctx, req, res, next, end)
	}
}

// Static returns middleware that ends every request with v as the result.
func Static(v any) engine.Middleware {
	return func(ctx context.Context, req *protocol.Request, res *engine.PendingResponse, next engine.Next, end engine.End) error {
		res.SetResult(v)
		end(nil)
		return nil
	}
}
