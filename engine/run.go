package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/felixgeelhaar/rpcengine/protocol"
)

// Framework invariant violations. They surface as internal errors that
// unwrap to these values.
var (
	ErrNothingEnded = errors.New("nothing ended request")
	ErrNoResult     = errors.New("response has no error or result")
)

// decision is what a single middleware made of a request.
type decision struct {
	err      error
	complete bool
	handler  ReturnHandler
}

// descent is the outcome of walking down a stack.
type descent struct {
	err      error
	complete bool
	// handlers are in ascend order (last registered first).
	handlers []ReturnHandler
}

// runAllMiddleware walks down the stack, collecting return handlers, until a
// middleware terminates the request or the stack is exhausted.
func (e *Engine) runAllMiddleware(ctx context.Context, req *protocol.Request, res *PendingResponse, stack []Middleware) descent {
	var d descent
	for _, m := range stack {
		dec := e.runMiddleware(ctx, req, res, m)
		if dec.handler != nil {
			d.handlers = append(d.handlers, dec.handler)
		}
		if dec.complete {
			d.err = dec.err
			d.complete = true
			break
		}
	}
	slices.Reverse(d.handlers)
	return d
}

// runMiddleware invokes m and waits for its decision.
func (e *Engine) runMiddleware(ctx context.Context, req *protocol.Request, res *PendingResponse, m Middleware) decision {
	decided := make(chan decision, 1)
	var once sync.Once
	decide := func(d decision) {
		once.Do(func() { decided <- d })
	}

	end := func(err error) {
		if err == nil {
			err = res.Err()
		}
		decide(decision{err: err, complete: true})
	}
	next := func(h ReturnHandler) {
		// A response-level error always wins over the intent to continue.
		if res.Err() != nil {
			end(nil)
			return
		}
		decide(decision{handler: h})
	}

	go func() {
		defer func() {
			if v := recover(); v != nil {
				end(e.recovered(ctx, req, v))
			}
		}()
		if err := m(ctx, req, res, next, end); err != nil {
			end(err)
			return
		}
		next(nil)
	}()

	var d decision
	select {
	case d = <-decided:
	case <-ctx.Done():
		decide(decision{err: ctx.Err(), complete: true})
		d = <-decided
	}

	if d.complete && d.err != nil {
		res.SetError(d.err)
		res.ClearResult()
	}
	return d
}

// runReturnHandlers runs handlers in the given order. Every handler runs even
// if an earlier one failed; the last failure is returned. Handlers are not
// subject to the request's cancellation.
func (e *Engine) runReturnHandlers(ctx context.Context, req *protocol.Request, handlers []ReturnHandler) error {
	ctx = context.WithoutCancel(ctx)
	var last error
	for _, h := range handlers {
		if err := e.runReturnHandler(ctx, req, h); err != nil {
			last = err
		}
	}
	return last
}

func (e *Engine) runReturnHandler(ctx context.Context, req *protocol.Request, h ReturnHandler) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = e.recovered(ctx, req, v)
		}
	}()
	return h(ctx)
}

// process runs the full descend/ascend cycle for one request and returns the
// error that should be reported for it, if any.
//
// An error left on the response after the ascent wins over the descent's
// outcome, so return handlers may fail a request that was ended with a
// result.
func (e *Engine) process(ctx context.Context, req *protocol.Request, res *PendingResponse, stack []Middleware) error {
	d := e.runAllMiddleware(ctx, req, res, stack)

	// Return handlers run even if the descent failed or never completed.
	herr := e.runReturnHandlers(ctx, req, d.handlers)

	if !d.complete {
		err := invariantError(ErrNothingEnded, req)
		e.logger.Error("request not completed",
			F("method", req.Method),
			F("error", err.Error()),
		)
		if herr != nil {
			return herr
		}
		return err
	}
	if herr != nil {
		return herr
	}

	if err := res.Err(); err != nil {
		return err
	}
	if d.err != nil {
		return d.err
	}
	if !res.HasResult() {
		err := invariantError(ErrNoResult, req)
		e.logger.Error("request not completed",
			F("method", req.Method),
			F("error", err.Error()),
		)
		return err
	}
	return nil
}

func invariantError(cause error, req *protocol.Request) *protocol.Error {
	body, _ := json.MarshalIndent(req, "", "  ")
	msg := fmt.Sprintf("engine: %s:\n%s", cause, body)
	return protocol.WrapError(protocol.CodeInternalError, msg, cause).
		WithData(map[string]any{"request": req})
}
