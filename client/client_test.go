package client_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/felixgeelhaar/rpcengine/client"
	"github.com/felixgeelhaar/rpcengine/engine"
	"github.com/felixgeelhaar/rpcengine/middleware"
	"github.com/felixgeelhaar/rpcengine/protocol"
	"github.com/felixgeelhaar/rpcengine/transport"
)

// connect serves srv over in-process pipes and returns a client for it.
func connect(t *testing.T, srv *engine.Engine, opts ...client.Option) *client.Client {
	t.Helper()

	clientR, serverW := io.Pipe()
	serverR, clientW := io.Pipe()

	tr := transport.NewStdio(transport.WithStdin(serverR), transport.WithStdout(serverW))
	served := make(chan error, 1)
	go func() {
		served <- tr.Serve(context.Background(), srv)
		serverW.Close()
	}()

	c := client.New(client.NewStreamTransport(clientR, clientW), opts...)
	t.Cleanup(func() {
		c.Close()
		if err := <-served; err != nil {
			t.Errorf("Serve() error = %v", err)
		}
	})
	return c
}

func newServer(opts ...engine.Option) *engine.Engine {
	methods := middleware.Scaffold(map[string]engine.Middleware{
		"ping": middleware.Static("pong"),
		"whoami": func(ctx context.Context, req *protocol.Request, res *engine.PendingResponse, next engine.Next, end engine.End) error {
			res.SetResult(string(req.ID))
			end(nil)
			return nil
		},
		"fail": func(ctx context.Context, req *protocol.Request, res *engine.PendingResponse, next engine.Next, end engine.End) error {
			return protocol.NewInvalidParams("bad params").WithData("detail")
		},
		"subscribe": func(ctx context.Context, req *protocol.Request, res *engine.PendingResponse, next engine.Next, end engine.End) error {
			if err := transport.NotificationSenderFromContext(ctx).SendNotification("event", map[string]int{"n": 1}); err != nil {
				return err
			}
			res.SetResult(true)
			end(nil)
			return nil
		},
	})
	return engine.New(append([]engine.Option{engine.WithMiddleware(methods)}, opts...)...)
}

func TestClient_Call(t *testing.T) {
	c := connect(t, newServer())
	ctx := context.Background()

	t.Run("result", func(t *testing.T) {
		var out string
		if err := c.CallResult(ctx, "ping", nil, &out); err != nil {
			t.Fatalf("CallResult() error = %v", err)
		}
		if out != "pong" {
			t.Errorf("result = %q, want %q", out, "pong")
		}
	})

	t.Run("ping", func(t *testing.T) {
		if err := c.Ping(ctx); err != nil {
			t.Errorf("Ping() error = %v", err)
		}
	})

	t.Run("error response", func(t *testing.T) {
		resp, err := c.Call(ctx, "fail", map[string]int{"a": 1})
		if !errors.Is(err, protocol.NewInvalidParams("")) {
			t.Fatalf("Call() error = %v, want invalid params", err)
		}
		if resp.Error == nil || resp.Error.Message != "bad params" || resp.Error.Data != "detail" {
			t.Errorf("resp.Error = %+v, want bad params with detail", resp.Error)
		}
	})

	t.Run("unhandled method", func(t *testing.T) {
		_, err := c.Call(ctx, "missing", nil)
		if !errors.Is(err, protocol.NewInternalError("")) {
			t.Errorf("Call() error = %v, want internal error", err)
		}
	})

	t.Run("ids increase", func(t *testing.T) {
		var first, second string
		if err := c.CallResult(ctx, "whoami", nil, &first); err != nil {
			t.Fatal(err)
		}
		if err := c.CallResult(ctx, "whoami", nil, &second); err != nil {
			t.Fatal(err)
		}
		if first == second {
			t.Errorf("ids = %s, %s, want distinct", first, second)
		}
	})
}

func TestClient_Concurrent(t *testing.T) {
	c := connect(t, newServer())

	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		go func() {
			var out string
			err := c.CallResult(context.Background(), "ping", nil, &out)
			if err == nil && out != "pong" {
				err = errors.New("wrong result " + out)
			}
			errs <- err
		}()
	}
	for i := 0; i < 20; i++ {
		if err := <-errs; err != nil {
			t.Errorf("call %d: %v", i, err)
		}
	}
}

func TestClient_OutboundMiddleware(t *testing.T) {
	var seen []string
	record := func(ctx context.Context, req *protocol.Request, res *engine.PendingResponse, next engine.Next, end engine.End) error {
		seen = append(seen, req.Method)
		next(nil)
		return nil
	}
	c := connect(t, newServer(), client.WithMiddleware(record, middleware.IDRemap()))

	resp, err := c.Call(context.Background(), "whoami", nil)
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}

	// The peer sees the remapped id, the caller gets its own back.
	wire := string(resp.Result.(json.RawMessage))
	if !strings.HasPrefix(wire, `"\"`) {
		t.Errorf("peer saw id %s, want a remapped string id", wire)
	}
	if string(resp.ID) != "1" {
		t.Errorf("resp.ID = %s, want 1", resp.ID)
	}
	if len(seen) != 1 || seen[0] != "whoami" {
		t.Errorf("outbound middleware saw %v, want [whoami]", seen)
	}
}

func TestClient_Notifications(t *testing.T) {
	t.Run("from peer", func(t *testing.T) {
		got := make(chan *protocol.Request, 1)
		c := connect(t, newServer(), client.WithNotificationHandler(func(ctx context.Context, n *protocol.Request) error {
			got <- n
			return nil
		}))

		if _, err := c.Call(context.Background(), "subscribe", nil); err != nil {
			t.Fatalf("Call() error = %v", err)
		}
		select {
		case n := <-got:
			if n.Method != "event" || string(n.Params) != `{"n":1}` {
				t.Errorf("notification = %s %s, want event {\"n\":1}", n.Method, n.Params)
			}
		case <-time.After(time.Second):
			t.Fatal("notification not received")
		}
	})

	t.Run("to peer", func(t *testing.T) {
		got := make(chan *protocol.Request, 1)
		c := connect(t, newServer(engine.WithNotificationHandler(func(ctx context.Context, n *protocol.Request) error {
			got <- n
			return nil
		})))

		if err := c.Notify(context.Background(), "tick", []int{1}); err != nil {
			t.Fatalf("Notify() error = %v", err)
		}
		select {
		case n := <-got:
			if n.Method != "tick" || string(n.Params) != "[1]" {
				t.Errorf("notification = %s %s, want tick [1]", n.Method, n.Params)
			}
		case <-time.After(time.Second):
			t.Fatal("notification not received")
		}
	})
}

// rawPeer wires a client to pipes the test drives by hand.
type rawPeer struct {
	in  *io.PipeWriter
	out *bufio.Scanner
}

func newRawPeer(t *testing.T, opts ...client.Option) (*client.Client, *rawPeer) {
	t.Helper()

	clientR, peerW := io.Pipe()
	peerR, clientW := io.Pipe()
	c := client.New(client.NewStreamTransport(clientR, clientW), opts...)
	t.Cleanup(func() {
		c.Close()
		peerW.Close()
	})
	return c, &rawPeer{in: peerW, out: bufio.NewScanner(peerR)}
}

func TestClient_ServesPeerRequests(t *testing.T) {
	_, peer := newRawPeer(t, client.WithReceiverMiddleware(middleware.Static("hi")))

	go peer.in.Write([]byte(`{"jsonrpc":"2.0","id":9,"method":"hello"}` + "\n"))

	if !peer.out.Scan() {
		t.Fatal("no reply from client")
	}
	if got, want := peer.out.Text(), `{"jsonrpc":"2.0","id":9,"result":"hi"}`; got != want {
		t.Errorf("reply = %s, want %s", got, want)
	}
}

func TestClient_Timeout(t *testing.T) {
	c, peer := newRawPeer(t, client.WithTimeout(20*time.Millisecond))

	// Read requests but never answer.
	go func() {
		for peer.out.Scan() {
		}
	}()

	_, err := c.Call(context.Background(), "slow", nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Call() error = %v, want deadline exceeded", err)
	}
}

func TestClient_PeerGone(t *testing.T) {
	c, peer := newRawPeer(t)

	go func() {
		// Take the request, then hang up.
		peer.out.Scan()
		peer.in.Close()
	}()

	_, err := c.Call(context.Background(), "x", nil)
	if !errors.Is(err, client.ErrClosed) {
		t.Errorf("Call() error = %v, want ErrClosed", err)
	}
}

func TestClient_Close(t *testing.T) {
	c := connect(t, newServer())
	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := c.Call(context.Background(), "ping", nil); err == nil {
		t.Error("Call() after Close should fail")
	}
}
