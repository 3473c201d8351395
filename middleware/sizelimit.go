package middleware

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/rpcengine/engine"
	"github.com/felixgeelhaar/rpcengine/protocol"
)

// SizeLimitOption configures the size limit middleware.
type SizeLimitOption func(*sizeLimitConfig)

type sizeLimitConfig struct {
	logger engine.Logger
}

// WithSizeLimitLogger sets the logger for size limit events.
func WithSizeLimitLogger(l engine.Logger) SizeLimitOption {
	return func(o *sizeLimitConfig) {
		o.logger = l
	}
}

// SizeLimit returns middleware that rejects requests exceeding the specified size.
// The maxBytes parameter is the maximum allowed size of the request params in bytes.
func SizeLimit(maxBytes int64, opts ...SizeLimitOption) engine.Middleware {
	cfg := &sizeLimitConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(ctx context.Context, req *protocol.Request, res *engine.PendingResponse, next engine.Next, end engine.End) error {
		if size := int64(len(req.Params)); size > maxBytes {
			if cfg.logger != nil {
				cfg.logger.Warn("request size limit exceeded",
					engine.F("method", req.Method),
					engine.F("size", size),
					engine.F("max", maxBytes),
				)
			}
			return protocol.NewInvalidRequest(
				fmt.Sprintf("request size %d exceeds limit of %d bytes", size, maxBytes),
			)
		}

		next(nil)
		return nil
	}
}

// Common size limit presets.
const (
	// KB is 1024 bytes.
	KB = 1024
	// MB is 1024 * 1024 bytes.
	MB = 1024 * 1024
)
