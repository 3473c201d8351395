package rpcengine

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/felixgeelhaar/rpcengine/protocol"
	"github.com/felixgeelhaar/rpcengine/transport"
)

func serve(t *testing.T, e *Engine, input string, opts ...ServeOption) []map[string]any {
	t.Helper()

	out := &bytes.Buffer{}
	opts = append(opts, WithStdioOptions(
		transport.WithStdin(strings.NewReader(input)),
		transport.WithStdout(out),
	))
	if err := ServeStdio(context.Background(), e, opts...); err != nil {
		t.Fatalf("ServeStdio() error = %v", err)
	}

	var msgs []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("decode %q: %v", line, err)
		}
		msgs = append(msgs, m)
	}
	return msgs
}

func TestNew(t *testing.T) {
	e := New(WithStack(Static("ok")))
	if e == nil {
		t.Fatal("expected engine to be created")
	}
	if e.Len() != 1 {
		t.Errorf("Len() = %d, want 1", e.Len())
	}
}

func TestServeStdio(t *testing.T) {
	e := New(WithStack(Scaffold(map[string]Middleware{
		"ping": Static("pong"),
	})))

	msgs := serve(t, e, `{"jsonrpc":"2.0","id":1,"method":"ping"}`+"\n")
	if len(msgs) != 1 {
		t.Fatalf("got %d responses, want 1", len(msgs))
	}
	if msgs[0]["result"] != "pong" {
		t.Errorf("result = %v, want pong", msgs[0]["result"])
	}
	if msgs[0]["id"] != float64(1) {
		t.Errorf("id = %v, want 1", msgs[0]["id"])
	}
}

func TestServeStdio_Unhandled(t *testing.T) {
	e := New(WithStack(Scaffold(map[string]Middleware{
		"ping": Static("pong"),
	})))

	msgs := serve(t, e, `{"jsonrpc":"2.0","id":"a","method":"nope"}`+"\n")
	if len(msgs) != 1 {
		t.Fatalf("got %d responses, want 1", len(msgs))
	}
	errObj, ok := msgs[0]["error"].(map[string]any)
	if !ok {
		t.Fatalf("expected error, got %v", msgs[0])
	}
	if errObj["code"] != float64(protocol.CodeInternalError) {
		t.Errorf("code = %v, want %d", errObj["code"], protocol.CodeInternalError)
	}
}

func TestServeStdio_WithMiddleware(t *testing.T) {
	var seen []string
	front := func(ctx context.Context, req *Request, res *PendingResponse, next Next, end End) error {
		seen = append(seen, req.Method)
		next(nil)
		return nil
	}

	e := New(WithStack(Static("ok")))
	msgs := serve(t, e, `{"jsonrpc":"2.0","id":1,"method":"a"}`+"\n", WithMiddleware(front, IDRemap()))

	if len(seen) != 1 || seen[0] != "a" {
		t.Errorf("front middleware saw %v, want [a]", seen)
	}
	if len(msgs) != 1 || msgs[0]["result"] != "ok" {
		t.Fatalf("responses = %v, want one ok result", msgs)
	}
	if msgs[0]["id"] != float64(1) {
		t.Errorf("id = %v, want 1", msgs[0]["id"])
	}
}

func TestHandlerFor(t *testing.T) {
	e := New()
	if h := handlerFor(e, &serveOptions{}); h != transport.Handler(e) {
		t.Error("handlerFor without middleware should serve the engine itself")
	}
	if h := handlerFor(e, &serveOptions{middleware: []Middleware{Static(1)}}); h == transport.Handler(e) {
		t.Error("handlerFor with middleware should wrap the engine")
	}
}

func TestLogF(t *testing.T) {
	f := LogF("key", 1)
	if f.Key != "key" || f.Value != 1 {
		t.Errorf("LogF() = %+v, want {key 1}", f)
	}
}
