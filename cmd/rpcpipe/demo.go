package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/felixgeelhaar/rpcengine/engine"
	"github.com/felixgeelhaar/rpcengine/middleware"
	"github.com/felixgeelhaar/rpcengine/protocol"
	"github.com/felixgeelhaar/rpcengine/transport"
)

// newDemoEngine builds the engine rpcpipe serves. Limits come first so
// rejected requests are never logged as completed.
func newDemoEngine(f *rootFlags, logger engine.Logger) *engine.Engine {
	var stack []engine.Middleware
	if f.rate > 0 {
		burst := f.burst
		if burst <= 0 {
			burst = f.rate
		}
		stack = append(stack, middleware.RateLimit(f.rate, burst, middleware.WithRateLimitLogger(logger)))
	}
	if f.maxSize > 0 {
		stack = append(stack, middleware.SizeLimit(f.maxSize, middleware.WithSizeLimitLogger(logger)))
	}
	stack = append(stack, middleware.DefaultStack(logger)...)

	methods := middleware.Scaffold(map[string]engine.Middleware{
		"ping":   middleware.Static("pong"),
		"echo":   echo,
		"sleep":  sleep,
		"notify": notify,
	})
	if f.timeout > 0 {
		methods = middleware.Timeout(f.timeout, methods)
	}
	stack = append(stack, methods)

	return engine.New(
		engine.WithMiddleware(stack...),
		engine.WithLogger(logger),
		engine.WithBatchLimit(f.batchLimit),
	)
}

func echo(ctx context.Context, req *protocol.Request, res *engine.PendingResponse, next engine.Next, end engine.End) error {
	if len(req.Params) == 0 {
		res.SetResult(nil)
	} else {
		res.SetResult(req.Params)
	}
	end(nil)
	return nil
}

func sleep(ctx context.Context, req *protocol.Request, res *engine.PendingResponse, next engine.Next, end engine.End) error {
	var p struct {
		MS int `json:"ms"`
	}
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return protocol.NewInvalidParams(err.Error())
		}
	}

	t := time.NewTimer(time.Duration(p.MS) * time.Millisecond)
	defer t.Stop()
	select {
	case <-t.C:
		res.SetResult(p.MS)
		end(nil)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func notify(ctx context.Context, req *protocol.Request, res *engine.PendingResponse, next engine.Next, end engine.End) error {
	sender := transport.NotificationSenderFromContext(ctx)
	if sender == nil {
		return protocol.NewInternalError("no peer to notify")
	}

	var params any
	if len(req.Params) > 0 {
		params = req.Params
	}
	if err := sender.SendNotification("notify", params); err != nil {
		return err
	}
	res.SetResult(true)
	end(nil)
	return nil
}
