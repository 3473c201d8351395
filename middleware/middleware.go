package middleware

import "github.com/felixgeelhaar/rpcengine/engine"

// DefaultStack returns the recommended production middleware stack.
// This includes id remapping and logging.
func DefaultStack(logger engine.Logger) []engine.Middleware {
	return []engine.Middleware{
		IDRemap(),
		Logging(logger),
	}
}

// DefaultStackWithRateLimit returns the default stack behind a global rate
// limit. Rejected requests are not logged as completed.
func DefaultStackWithRateLimit(logger engine.Logger, rate, burst int) []engine.Middleware {
	return []engine.Middleware{
		RateLimit(rate, burst, WithRateLimitLogger(logger)),
		IDRemap(),
		Logging(logger),
	}
}
