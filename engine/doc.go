// Package engine implements a JSON-RPC 2.0 middleware engine.
//
// An Engine holds an ordered stack of middleware. Each request is passed down
// the stack (the descend phase) until a middleware ends it. Return handlers
// registered on the way down then run in reverse order (the ascend phase),
// and the response is checked for exactly one of a result or an error.
//
// # Basic Usage
//
//	e := engine.New()
//	e.Push(func(ctx context.Context, req *protocol.Request, res *engine.PendingResponse, next engine.Next, end engine.End) error {
//	    start := time.Now()
//	    next(func(ctx context.Context) error {
//	        log.Printf("%s took %s", req.Method, time.Since(start))
//	        return nil
//	    })
//	    return nil
//	})
//	e.Push(func(ctx context.Context, req *protocol.Request, res *engine.PendingResponse, next engine.Next, end engine.End) error {
//	    res.SetResult(42)
//	    end(nil)
//	    return nil
//	})
//
//	resp, err := e.Handle(ctx, req)
//
// # Errors
//
// A middleware fails a request by calling end with an error, by returning an
// error, by panicking, or by setting an error on the response. Whatever the
// route, the error is normalized into a protocol.Error on the wire while the
// original value remains reachable through errors.Is and errors.As.
//
// # Batches
//
// HandleBatch processes elements concurrently and returns responses in input
// order. Element failures are captured in their responses; only a failure of
// the engine itself fails the whole batch.
//
// # Composition
//
// AsMiddleware turns an engine into a single middleware of another engine.
// The child's return handlers run inside the parent's ascent, at the
// position of the child.
package engine
