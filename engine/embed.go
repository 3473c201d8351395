package engine

import (
	"context"

	"github.com/felixgeelhaar/rpcengine/protocol"
)

// AsMiddleware returns the engine as a single middleware step that can be
// pushed onto another engine.
//
// The step runs this engine's whole stack against the parent's request and
// response. If the stack terminates the request, this engine's return
// handlers run immediately and the parent is told to end. Otherwise the
// parent continues, and this engine's return handlers run as one return
// handler during the parent's ascent, at the position of the step.
func (e *Engine) AsMiddleware() Middleware {
	return func(ctx context.Context, req *protocol.Request, res *PendingResponse, next Next, end End) error {
		stack, err := e.stack()
		if err != nil {
			return err
		}

		d := e.runAllMiddleware(ctx, req, res, stack)
		if d.complete {
			err := d.err
			if herr := e.runReturnHandlers(ctx, req, d.handlers); herr != nil {
				err = herr
			}
			end(err)
			return nil
		}

		next(func(ctx context.Context) error {
			return e.runReturnHandlers(ctx, req, d.handlers)
		})
		return nil
	}
}
