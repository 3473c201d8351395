package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/felixgeelhaar/rpcengine/engine"
	"github.com/felixgeelhaar/rpcengine/protocol"
)

// DefaultMaxLineSize is the longest message Stdio accepts by default.
const DefaultMaxLineSize = 4 * 1024 * 1024

// Stdio serves newline-delimited JSON-RPC over a reader and a writer,
// stdin and stdout by default.
//
// Each line is handled on its own goroutine, so replies may be written in a
// different order than requests were read. Writes never interleave.
type Stdio struct {
	in          io.Reader
	out         io.Writer
	logger      engine.Logger
	shutdown    ShutdownConfig
	maxLineSize int

	mu sync.Mutex
}

// StdioOption configures a Stdio transport.
type StdioOption func(*Stdio)

// WithStdin sets a custom stdin reader.
func WithStdin(r io.Reader) StdioOption {
	return func(s *Stdio) {
		s.in = r
	}
}

// WithStdout sets a custom stdout writer.
func WithStdout(w io.Writer) StdioOption {
	return func(s *Stdio) {
		s.out = w
	}
}

// WithStdioLogger sets the logger for transport errors.
func WithStdioLogger(l engine.Logger) StdioOption {
	return func(s *Stdio) {
		s.logger = l
	}
}

// WithShutdownConfig sets how in-flight messages are drained when Serve
// stops reading.
func WithShutdownConfig(cfg ShutdownConfig) StdioOption {
	return func(s *Stdio) {
		s.shutdown = cfg
	}
}

// WithMaxLineSize sets the longest line accepted.
func WithMaxLineSize(n int) StdioOption {
	return func(s *Stdio) {
		s.maxLineSize = n
	}
}

// NewStdio creates a new stdio transport.
func NewStdio(opts ...StdioOption) *Stdio {
	s := &Stdio{
		in:          os.Stdin,
		out:         os.Stdout,
		logger:      engine.NopLogger{},
		shutdown:    DefaultShutdownConfig(),
		maxLineSize: DefaultMaxLineSize,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Addr returns the transport address.
func (s *Stdio) Addr() string {
	return "stdio"
}

// Serve reads messages until the input ends or ctx is canceled, then waits
// for in-flight messages to be answered.
//
// It returns nil at end of input, ctx.Err() on cancellation, and the read
// error if reading failed. If draining times out, that error is returned
// instead of nil.
func (s *Stdio) Serve(ctx context.Context, handler Handler) error {
	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 0, 64*1024), s.maxLineSize)

	lines := make(chan []byte)
	scanErr := make(chan error, 1)

	go func() {
		defer close(lines)
		for scanner.Scan() {
			select {
			case lines <- bytes.Clone(scanner.Bytes()):
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			scanErr <- err
		}
	}()

	sm := NewShutdownManager(s.shutdown)
	// In-flight messages are drained, not abandoned, when ctx ends.
	handleCtx := ContextWithNotificationSender(context.WithoutCancel(ctx), s)

	var serveErr error
loop:
	for {
		select {
		case <-ctx.Done():
			serveErr = ctx.Err()
			break loop
		case line, ok := <-lines:
			if !ok {
				select {
				case serveErr = <-scanErr:
				default:
					serveErr = ctx.Err()
				}
				break loop
			}
			if len(bytes.TrimSpace(line)) == 0 || !sm.Track() {
				continue
			}
			go func() {
				defer sm.Complete()
				s.handleLine(handleCtx, handler, line)
			}()
		}
	}

	if err := sm.Shutdown(context.Background()); err != nil {
		s.logger.Error("drain timed out",
			engine.F("in_flight", sm.InFlight()),
			engine.F("error", err.Error()),
		)
		if serveErr == nil {
			serveErr = err
		}
	}
	return serveErr
}

// SendNotification sends a JSON-RPC notification to the peer.
func (s *Stdio) SendNotification(method string, params any) error {
	data, err := newNotification(method, params)
	if err != nil {
		return err
	}
	return s.write(data)
}

func (s *Stdio) handleLine(ctx context.Context, handler Handler, line []byte) {
	out, err := handler.HandleMessage(ctx, line)
	if err != nil {
		s.logger.Error("message failed",
			engine.F("error", err.Error()),
		)
		out, err = json.Marshal(protocol.NewErrorResponse(protocol.IDOf(line), protocol.NormalizeError(err)))
		if err != nil {
			return
		}
	}
	if out == nil {
		return
	}
	if err := s.write(out); err != nil {
		s.logger.Error("write failed",
			engine.F("error", err.Error()),
		)
	}
}

func (s *Stdio) write(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.out.Write(data); err != nil {
		return err
	}
	_, err := s.out.Write([]byte("\n"))
	return err
}
