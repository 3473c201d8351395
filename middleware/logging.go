package middleware

import (
	"context"
	"time"

	"github.com/felixgeelhaar/rpcengine/engine"
	"github.com/felixgeelhaar/rpcengine/protocol"
)

// Logging returns middleware that logs request details once the request has
// been handled by the rest of the stack.
// Successful requests are logged at info level, errors at error level.
func Logging(logger engine.Logger) engine.Middleware {
	return func(ctx context.Context, req *protocol.Request, res *engine.PendingResponse, next engine.Next, end engine.End) error {
		start := time.Now()

		next(func(ctx context.Context) error {
			fields := []engine.Field{
				engine.F("method", req.Method),
				engine.F("duration", time.Since(start)),
			}

			if len(req.ID) > 0 {
				fields = append(fields, engine.F("id", string(req.ID)))
			} else {
				fields = append(fields, engine.F("notification", true))
			}

			if err := res.Err(); err != nil {
				fields = append(fields, engine.F("error", err.Error()))
				logger.Error("request failed", fields...)
			} else {
				logger.Info("request completed", fields...)
			}
			return nil
		})
		return nil
	}
}
