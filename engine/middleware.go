package engine

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/felixgeelhaar/rpcengine/protocol"
)

// ReturnHandler runs during the ascend phase, after the request has been
// terminated. Handlers run in reverse order of registration.
type ReturnHandler func(ctx context.Context) error

// Next declares that a middleware does not terminate the request. A non-nil
// handler is registered to run on the way back up the stack. If the response
// already holds an error, Next terminates the request instead.
type Next func(handler ReturnHandler)

// End declares that the request is terminated. A non-nil error, or an error
// already set on the response, becomes the response error. Without an error
// the response must already carry a result.
type End func(err error)

// Middleware is a single step in an engine's stack.
//
// A middleware decides the fate of a request by calling next or end. Only the
// first decision counts. Returning a non-nil error is equivalent to calling
// end with it, and so is panicking. Returning nil without deciding leaves the
// request to later middleware.
//
// Each middleware runs on its own goroutine and the engine proceeds as soon
// as a decision is made, so a middleware may keep working after calling next
// (see middleware.Async). The request and response are owned by the call and
// must not be retained past it.
type Middleware func(ctx context.Context, req *protocol.Request, res *PendingResponse, next Next, end End) error

// PendingResponse is the mutable response shell threaded through a stack.
// One is created per request and it is never shared across requests.
//
// Its result and error are safe for concurrent use, since a middleware that
// was cut short by a timeout or cancellation may still write to it.
type PendingResponse struct {
	ID      json.RawMessage
	JSONRPC string

	mu        sync.Mutex
	result    any
	hasResult bool
	err       error
}

func newPendingResponse(req *protocol.Request) *PendingResponse {
	return &PendingResponse{
		ID:      req.ID,
		JSONRPC: req.JSONRPC,
	}
}

// SetResult sets the result. A nil result is a valid result.
func (r *PendingResponse) SetResult(v any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.result = v
	r.hasResult = true
}

// Result returns the result and whether one has been set.
func (r *PendingResponse) Result() (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result, r.hasResult
}

// HasResult reports whether a result has been set.
func (r *PendingResponse) HasResult() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hasResult
}

// ClearResult removes any result.
func (r *PendingResponse) ClearResult() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.result = nil
	r.hasResult = false
}

// SetError sets the response error. The error is normalized when the
// response is finalized.
func (r *PendingResponse) SetError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// Err returns the response error, if any.
func (r *PendingResponse) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// finalize converts the shell into a wire response. An error always wins
// over a result.
func (r *PendingResponse) finalize(err error) *protocol.Response {
	version := r.JSONRPC
	if version == "" {
		version = protocol.JSONRPCVersion
	}
	resp := &protocol.Response{
		JSONRPC: version,
		ID:      r.ID,
	}
	if err != nil {
		resp.Error = protocol.NormalizeError(err)
		return resp
	}
	resp.Result, _ = r.Result()
	return resp
}
