package engine

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/rpcengine/protocol"
)

// PanicHandler converts a value recovered from a panicking middleware or
// return handler into the error that terminates the request.
type PanicHandler func(ctx context.Context, req *protocol.Request, panicVal any) error

// defaultPanicHandler keeps errors as they are so callers can still match
// them, and turns anything else into an internal error carrying the value.
func defaultPanicHandler(_ context.Context, _ *protocol.Request, panicVal any) error {
	if err, ok := panicVal.(error); ok {
		return err
	}
	return protocol.NormalizeError(panicVal)
}

// recovered invokes the engine's panic handler, falling back to the default
// if the handler itself returns nil.
func (e *Engine) recovered(ctx context.Context, req *protocol.Request, panicVal any) error {
	e.logger.Error("middleware panicked",
		F("method", req.Method),
		F("panic", fmt.Sprint(panicVal)),
	)
	if err := e.panicHandler(ctx, req, panicVal); err != nil {
		return err
	}
	return defaultPanicHandler(ctx, req, panicVal)
}
