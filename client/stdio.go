package client

import (
	"context"
	"fmt"
	"io"
	"os/exec"

	"github.com/felixgeelhaar/rpcengine/protocol"
	"github.com/felixgeelhaar/rpcengine/transport"
)

// StdioTransport connects to a JSON-RPC peer via subprocess stdio.
type StdioTransport struct {
	cmd    *exec.Cmd
	stream *StreamTransport
	stderr io.ReadCloser
}

// NewStdioTransport creates a transport that spawns a subprocess.
func NewStdioTransport(command string, args ...string) (*StdioTransport, error) {
	cmd := exec.Command(command, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start command: %w", err)
	}

	return &StdioTransport{
		cmd:    cmd,
		stream: NewStreamTransport(stdout, stdin),
		stderr: stderr,
	}, nil
}

// Send sends a request and waits for a response.
func (t *StdioTransport) Send(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	return t.stream.Send(ctx, req)
}

// SetInbound sets the handler for requests the subprocess sends.
func (t *StdioTransport) SetInbound(h transport.Handler) {
	t.stream.SetInbound(h)
}

// Close closes the transport and terminates the subprocess.
func (t *StdioTransport) Close() error {
	// Closing stdin signals EOF; the peer drains and exits.
	_ = t.stream.Close()

	// Wait for the peer to stop writing
	<-t.stream.Done()

	// Kill process if still running (ignoring error as process may have exited)
	if t.cmd.Process != nil {
		_ = t.cmd.Process.Kill() //nolint:errcheck // Process may have already exited
	}

	return t.cmd.Wait()
}

// Stderr returns the stderr reader for the subprocess.
func (t *StdioTransport) Stderr() io.Reader {
	return t.stderr
}
