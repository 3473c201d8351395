package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/felixgeelhaar/rpcengine/engine"
	"github.com/felixgeelhaar/rpcengine/protocol"
	"github.com/felixgeelhaar/rpcengine/transport"
)

// StreamTransport speaks newline-delimited JSON-RPC over a reader and a
// writer. Responses are matched to waiting calls by id. Requests and
// notifications from the peer go to the inbound handler, and any reply is
// written back.
type StreamTransport struct {
	r      io.Reader
	w      io.WriteCloser
	logger engine.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan *protocol.Response
	inbound transport.Handler
	closed  bool

	done     chan struct{}
	doneOnce sync.Once
	readDone chan struct{}
}

// StreamTransportOption configures a StreamTransport.
type StreamTransportOption func(*StreamTransport)

// WithStreamLogger sets the logger for dropped and failed messages.
func WithStreamLogger(l engine.Logger) StreamTransportOption {
	return func(t *StreamTransport) {
		t.logger = l
	}
}

// NewStreamTransport creates a transport reading responses from r and
// writing requests to w. It starts reading immediately.
func NewStreamTransport(r io.Reader, w io.WriteCloser, opts ...StreamTransportOption) *StreamTransport {
	t := &StreamTransport{
		r:       r,
		w:       w,
		logger:  engine.NopLogger{},
		pending: make(map[string]chan *protocol.Response),
		done:    make(chan struct{}),

		readDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}

	go t.readLoop()
	return t
}

// SetInbound sets the handler for messages initiated by the peer.
func (t *StreamTransport) SetInbound(h transport.Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inbound = h
}

// Send writes a request and waits for the response with the same id.
func (t *StreamTransport) Send(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	if req.IsNotification() {
		return nil, t.write(data)
	}

	key := string(req.ID)
	respCh := make(chan *protocol.Response, 1)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrClosed
	}
	if _, dup := t.pending[key]; dup {
		t.mu.Unlock()
		return nil, fmt.Errorf("request id %s already in flight", key)
	}
	t.pending[key] = respCh
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		delete(t.pending, key)
		t.mu.Unlock()
	}()

	if err := t.write(data); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case resp := <-respCh:
		return resp, nil
	case <-t.done:
		return nil, ErrClosed
	}
}

// Close closes the writer. Calls still waiting fail with ErrClosed.
func (t *StreamTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	t.finish()
	return t.w.Close()
}

// Done is closed once the peer stops sending.
func (t *StreamTransport) Done() <-chan struct{} {
	return t.readDone
}

func (t *StreamTransport) write(data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if _, err := t.w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write request: %w", err)
	}
	return nil
}

// finish fails waiting calls.
func (t *StreamTransport) finish() {
	t.doneOnce.Do(func() { close(t.done) })
}

// wireMessage holds the fields needed to tell a response from a request.
type wireMessage struct {
	ID     json.RawMessage `json:"id"`
	Method *string         `json:"method"`
	Result json.RawMessage `json:"result"`
	Error  *protocol.Error `json:"error"`
}

func (t *StreamTransport) readLoop() {
	defer close(t.readDone)
	defer t.finish()

	scanner := bufio.NewScanner(t.r)
	scanner.Buffer(make([]byte, 0, 64*1024), transport.DefaultMaxLineSize)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var msg wireMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			t.logger.Warn("dropped malformed message", engine.F("error", err.Error()))
			continue
		}

		if msg.Method != nil {
			t.handleInbound(bytes.Clone(line))
			continue
		}
		t.dispatch(&msg)
	}
	if err := scanner.Err(); err != nil {
		t.logger.Error("read failed", engine.F("error", err.Error()))
	}
}

func (t *StreamTransport) dispatch(msg *wireMessage) {
	resp := &protocol.Response{
		JSONRPC: protocol.JSONRPCVersion,
		ID:      msg.ID,
		Error:   msg.Error,
	}
	if msg.Error == nil {
		resp.Result = msg.Result
	}

	t.mu.Lock()
	ch, ok := t.pending[string(msg.ID)]
	t.mu.Unlock()
	if !ok {
		t.logger.Debug("dropped unmatched response", engine.F("id", string(msg.ID)))
		return
	}
	select {
	case ch <- resp:
	default:
		t.logger.Debug("dropped duplicate response", engine.F("id", string(msg.ID)))
	}
}

func (t *StreamTransport) handleInbound(line []byte) {
	t.mu.Lock()
	h := t.inbound
	t.mu.Unlock()
	if h == nil {
		t.logger.Debug("dropped inbound message")
		return
	}

	go func() {
		out, err := h.HandleMessage(context.Background(), line)
		if err != nil {
			t.logger.Error("inbound message failed", engine.F("error", err.Error()))
			return
		}
		if out == nil {
			return
		}
		if err := t.write(out); err != nil {
			t.logger.Error("write failed", engine.F("error", err.Error()))
		}
	}()
}
