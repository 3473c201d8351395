package middleware

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/rpcengine/engine"
	"github.com/felixgeelhaar/rpcengine/protocol"
)

// Timeout returns middleware that runs m under a deadline.
//
// m receives a context that expires after d. If m has neither deferred nor
// ended the request by then, the request ends with an internal error that
// unwraps to context.DeadlineExceeded. The context is cancelled as soon as m
// returns.
func Timeout(d time.Duration, m engine.Middleware) engine.Middleware {
	return func(ctx context.Context, req *protocol.Request, res *engine.PendingResponse, next engine.Next, end engine.End) error {
		tctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()

		stop := context.AfterFunc(tctx, func() {
			if errors.Is(tctx.Err(), context.DeadlineExceeded) {
				end(protocol.WrapError(
					protocol.CodeInternalError,
					fmt.Sprintf("request timed out after %s", d),
					context.DeadlineExceeded,
				))
			}
		})
		defer stop()

		return m(tctx, req, res, next, end)
	}
}
