// Package middleware provides ready-made middleware for the engine package.
//
// Every value here is an engine.Middleware and can be pushed onto an engine
// directly or combined with Merge.
//
// # Basic Usage
//
//	e := engine.New(engine.WithMiddleware(middleware.DefaultStack(logger)...))
//	e.Push(middleware.Scaffold(map[string]engine.Middleware{
//	    "ping":    middleware.Static("pong"),
//	    "version": middleware.Static("1.0.0"),
//	}))
//
// # Available Middleware
//
//   - Scaffold: Dispatches requests to per-method handlers
//   - Static: Ends every request with a fixed result
//   - IDRemap: Gives each request a unique id for the rest of the stack
//   - Merge: Joins several middleware into one step
//   - Async: Adapts straight-line middleware that wait on next
//   - Logging: Logs request details and timing
//   - Timeout: Bounds how long a middleware may take to decide
//   - SizeLimit: Rejects requests with oversized params
//   - RateLimit: Token bucket rate limiting
//   - OTel: OpenTelemetry spans and metrics
//
// # Async Middleware
//
// Async lets a middleware do its post-processing inline instead of through a
// return handler:
//
//	middleware.Async(func(ctx context.Context, req *protocol.Request, res *engine.PendingResponse, next func() error) error {
//	    start := time.Now()
//	    if err := next(); err != nil {
//	        return err
//	    }
//	    log.Printf("%s took %s", req.Method, time.Since(start))
//	    return nil
//	})
package middleware
