// Package testutil provides testing utilities for JSON-RPC engines.
//
// This package helps developers test their middleware stacks by providing a
// test client, a request recorder and assertion helpers.
//
// Example usage:
//
//	func TestMyStack(t *testing.T) {
//	    e := engine.New(engine.WithMiddleware(
//	        middleware.Scaffold(map[string]engine.Middleware{
//	            "greet": middleware.Static("Hello, World"),
//	        }),
//	    ))
//
//	    tc := testutil.NewTestClient(t, e)
//	    defer tc.Close()
//
//	    tc.AssertResult("greet", nil, "Hello, World")
//	}
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"sync"
	"testing"

	"github.com/felixgeelhaar/rpcengine/engine"
	"github.com/felixgeelhaar/rpcengine/protocol"
)

// TestClient is a test client for engines.
type TestClient struct {
	t     testing.TB
	e     *engine.Engine
	reqID int64
	mu    sync.Mutex
}

// NewTestClient creates a new test client for the given engine.
func NewTestClient(t testing.TB, e *engine.Engine) *TestClient {
	t.Helper()
	return &TestClient{
		t: t,
		e: e,
	}
}

// Close destroys the engine under test.
func (tc *TestClient) Close() {
	tc.e.Destroy()
}

// nextID returns the next request ID.
func (tc *TestClient) nextID() json.RawMessage {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.reqID++
	return json.RawMessage(strconv.FormatInt(tc.reqID, 10))
}

// NewRequest builds a call with the next request ID. A nil params is
// omitted from the request.
func (tc *TestClient) NewRequest(method string, params any) (*protocol.Request, error) {
	req := &protocol.Request{
		JSONRPC: protocol.JSONRPCVersion,
		ID:      tc.nextID(),
		Method:  method,
	}
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal params: %w", err)
		}
		req.Params = data
	}
	return req, nil
}

// Call sends a request and returns the response. The error is the cause of
// the response error, if any.
func (tc *TestClient) Call(method string, params any) (*protocol.Response, error) {
	tc.t.Helper()

	req, err := tc.NewRequest(method, params)
	if err != nil {
		return nil, err
	}
	return tc.e.Handle(context.Background(), req)
}

// CallResult sends a request and decodes its result into out, which must be
// a pointer. A response error is returned as is.
func (tc *TestClient) CallResult(method string, params any, out any) error {
	tc.t.Helper()

	resp, err := tc.Call(method, params)
	if err != nil {
		return err
	}
	data, err := json.Marshal(resp.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode result: %w", err)
	}
	return nil
}

// Notify sends a notification.
func (tc *TestClient) Notify(method string, params any) error {
	tc.t.Helper()

	req, err := tc.NewRequest(method, params)
	if err != nil {
		return err
	}
	req.ID = nil
	_, err = tc.e.Handle(context.Background(), req)
	return err
}

// Batch sends the requests as one batch. Build them with NewRequest; clear
// the ID for a notification.
func (tc *TestClient) Batch(reqs ...*protocol.Request) ([]*protocol.Response, error) {
	tc.t.Helper()
	return tc.e.HandleBatch(context.Background(), reqs)
}

// Send passes an encoded message through the engine as a transport would.
func (tc *TestClient) Send(data string) ([]byte, error) {
	tc.t.Helper()
	return tc.e.HandleMessage(context.Background(), []byte(data))
}

// AssertResult fails the test unless the call succeeds with a result equal
// to want after a JSON round trip.
func (tc *TestClient) AssertResult(method string, params any, want any) {
	tc.t.Helper()

	resp, err := tc.Call(method, params)
	if err != nil {
		tc.t.Errorf("%s: unexpected error: %v", method, err)
		return
	}
	got, wantNorm := normalize(tc.t, resp.Result), normalize(tc.t, want)
	if !reflect.DeepEqual(got, wantNorm) {
		tc.t.Errorf("%s: result = %v, want %v", method, got, wantNorm)
	}
}

// AssertErrorCode fails the test unless the call fails with the given code.
func (tc *TestClient) AssertErrorCode(method string, params any, code int) {
	tc.t.Helper()

	resp, _ := tc.Call(method, params)
	if resp == nil || resp.Error == nil {
		tc.t.Errorf("%s: expected error with code %d, got %+v", method, code, resp)
		return
	}
	if resp.Error.Code != code {
		tc.t.Errorf("%s: error code = %d, want %d", method, resp.Error.Code, code)
	}
}

func normalize(t testing.TB, v any) any {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal %v: %v", v, err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("failed to decode %s: %v", data, err)
	}
	return out
}

// Recorder is middleware that records every request passing through it.
type Recorder struct {
	requests []*protocol.Request
	mu       sync.Mutex
}

// NewRecorder creates a new request recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Middleware returns the recording step. It never ends a request.
func (r *Recorder) Middleware() engine.Middleware {
	return func(ctx context.Context, req *protocol.Request, res *engine.PendingResponse, next engine.Next, end engine.End) error {
		r.mu.Lock()
		r.requests = append(r.requests, req.Clone())
		r.mu.Unlock()
		next(nil)
		return nil
	}
}

// Requests returns copies of the recorded requests in arrival order.
func (r *Recorder) Requests() []*protocol.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*protocol.Request, len(r.requests))
	for i, req := range r.requests {
		out[i] = req.Clone()
	}
	return out
}

// Methods returns the methods of the recorded requests.
func (r *Recorder) Methods() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.requests))
	for i, req := range r.requests {
		out[i] = req.Method
	}
	return out
}

// Reset clears the recorded requests.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = nil
}
