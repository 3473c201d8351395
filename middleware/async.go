package middleware

import (
	"context"

	"github.com/felixgeelhaar/rpcengine/engine"
	"github.com/felixgeelhaar/rpcengine/protocol"
)

// AsyncFunc is a middleware written in straight-line style. It has no end:
// returning without calling next ends the request, with the returned error
// if any.
//
// Calling next hands the request to the rest of the stack and blocks until
// the ascend phase reaches this step, so code after next runs on the way
// back up. An error returned after next fails the request from there.
type AsyncFunc func(ctx context.Context, req *protocol.Request, res *engine.PendingResponse, next func() error) error

// Async adapts fn to engine.Middleware.
func Async(fn AsyncFunc) engine.Middleware {
	return func(ctx context.Context, req *protocol.Request, res *engine.PendingResponse, next engine.Next, end engine.End) error {
		resume := make(chan struct{})
		finished := make(chan error, 1)
		deferred := false

		asyncNext := func() error {
			// The engine ends rather than continues when the response already
			// failed; there would be no ascent to wait for.
			if err := res.Err(); err != nil {
				return err
			}
			deferred = true
			next(func(ctx context.Context) error {
				close(resume)
				return <-finished
			})
			select {
			case <-resume:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := runAsync(ctx, req, res, fn, asyncNext)
		if !deferred {
			end(err)
			return nil
		}
		finished <- err
		return nil
	}
}

func runAsync(ctx context.Context, req *protocol.Request, res *engine.PendingResponse, fn AsyncFunc, next func() error) (err error) {
	defer func() {
		if v := recover(); v != nil {
			if e, ok := v.(error); ok {
				err = e
				return
			}
			err = protocol.NormalizeError(v)
		}
	}()
	return fn(ctx, req, res, next)
}
