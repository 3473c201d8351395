package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/felixgeelhaar/rpcengine/protocol"
)

// Handle processes a single request or notification.
//
// For a call, the returned response is always non-nil and carries exactly
// one of a result or an error. The returned error is the original cause of
// Response.Error (before normalization) and is nil on success.
//
// For a notification, Handle returns (nil, nil); failures are logged.
//
// A nil response with a non-nil error only happens when the engine itself
// cannot process requests, for example after Destroy.
func (e *Engine) Handle(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	if req == nil {
		err := protocol.NewInvalidRequest("requests must be objects, received: nil")
		return protocol.NewErrorResponse(nil, err), err
	}
	stack, err := e.stack()
	if err != nil {
		return nil, err
	}

	if req.IsNotification() {
		e.handleNotification(ctx, req, stack)
		return nil, nil
	}

	r := req.Clone()
	res := newPendingResponse(r)
	cause := e.process(ctx, r, res, stack)
	return res.finalize(cause), cause
}

// HandleRaw checks the shape of a raw message and processes it like Handle.
// A malformed message yields an invalid request response without running any
// middleware.
func (e *Engine) HandleRaw(ctx context.Context, raw json.RawMessage) (*protocol.Response, error) {
	req, perr := protocol.ParseRequest(raw)
	if perr != nil {
		return protocol.NewErrorResponse(protocol.IDOf(raw), perr), perr
	}
	return e.Handle(ctx, req)
}

func (e *Engine) handleNotification(ctx context.Context, n *protocol.Request, stack []Middleware) {
	if e.notificationHandler != nil {
		if err := e.notify(ctx, n); err != nil {
			e.logger.Warn("notification handler failed",
				F("method", n.Method),
				F("error", err.Error()),
			)
		}
		return
	}

	r := n.Clone()
	res := newPendingResponse(r)
	if err := e.process(ctx, r, res, stack); err != nil {
		e.logger.Warn("notification failed",
			F("method", n.Method),
			F("error", err.Error()),
		)
	}
}

func (e *Engine) notify(ctx context.Context, n *protocol.Request) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = e.recovered(ctx, n, v)
		}
	}()
	return e.notificationHandler(ctx, n.Clone())
}

// element is one entry of a batch, either decoded or raw.
type element struct {
	req *protocol.Request
	raw json.RawMessage
}

// HandleBatch processes the requests concurrently and returns their
// responses in input order. Notifications contribute no response. A nil
// element yields an invalid request response at its position.
//
// Middleware errors never fail the batch; they are captured in the affected
// element's response. A non-nil error means the batch as a whole could not
// be processed, and no responses are returned.
func (e *Engine) HandleBatch(ctx context.Context, reqs []*protocol.Request) ([]*protocol.Response, error) {
	els := make([]element, len(reqs))
	for i, r := range reqs {
		els[i] = element{req: r}
	}
	return e.runBatch(ctx, els)
}

// HandleRawBatch is HandleBatch for raw messages. Malformed elements yield an
// invalid request response at their position.
func (e *Engine) HandleRawBatch(ctx context.Context, raws []json.RawMessage) ([]*protocol.Response, error) {
	els := make([]element, len(raws))
	for i, r := range raws {
		els[i] = element{raw: r}
	}
	return e.runBatch(ctx, els)
}

func (e *Engine) runBatch(ctx context.Context, els []element) ([]*protocol.Response, error) {
	if _, err := e.stack(); err != nil {
		return nil, err
	}

	results := make([]*protocol.Response, len(els))
	g, gctx := errgroup.WithContext(ctx)
	if e.batchLimit > 0 {
		g.SetLimit(e.batchLimit)
	}
	for i, el := range els {
		g.Go(func() error {
			resp, err := e.batchElement(gctx, el)
			if err != nil {
				return fmt.Errorf("engine: batch element %d: %w", i, err)
			}
			results[i] = resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		e.logger.Error("batch failed",
			F("size", len(els)),
			F("error", err.Error()),
		)
		return nil, err
	}

	responses := make([]*protocol.Response, 0, len(results))
	for _, r := range results {
		if r != nil {
			responses = append(responses, r)
		}
	}
	return responses, nil
}

// handleElement is the default batch element dispatcher.
func (e *Engine) handleElement(ctx context.Context, el element) (resp *protocol.Response, err error) {
	defer func() {
		if v := recover(); v != nil {
			resp, err = nil, fmt.Errorf("dispatch panicked: %v", v)
		}
	}()

	var cause error
	if el.raw != nil {
		resp, cause = e.HandleRaw(ctx, el.raw)
	} else {
		resp, cause = e.Handle(ctx, el.req)
	}
	if resp == nil && cause != nil {
		return nil, cause
	}
	return resp, nil
}

// HandleMessage decodes a single message or a batch, processes it and
// encodes the reply. It returns nil bytes when there is nothing to send back,
// which is the case for notifications.
func (e *Engine) HandleMessage(ctx context.Context, data []byte) ([]byte, error) {
	msgs, batch, err := protocol.SplitBatch(data)
	if err != nil {
		return json.Marshal(protocol.NewErrorResponse(nil, protocol.NormalizeError(err)))
	}

	if !batch {
		resp, cause := e.HandleRaw(ctx, msgs[0])
		if resp == nil {
			return nil, cause
		}
		return json.Marshal(resp)
	}

	if len(msgs) == 0 {
		return json.Marshal(protocol.NewErrorResponse(nil, protocol.NewInvalidRequest("empty batch")))
	}
	resps, err := e.HandleRawBatch(ctx, msgs)
	if err != nil {
		return nil, err
	}
	if len(resps) == 0 {
		return nil, nil
	}
	return json.Marshal(resps)
}

// HandleAsync runs Handle on a new goroutine and passes its outcome to cb.
func (e *Engine) HandleAsync(ctx context.Context, req *protocol.Request, cb func(*protocol.Response, error)) {
	go func() {
		cb(e.Handle(ctx, req))
	}()
}

// HandleBatchAsync runs HandleBatch on a new goroutine and passes its outcome
// to cb.
func (e *Engine) HandleBatchAsync(ctx context.Context, reqs []*protocol.Request, cb func([]*protocol.Response, error)) {
	go func() {
		cb(e.HandleBatch(ctx, reqs))
	}()
}
