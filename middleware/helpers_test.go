package middleware

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/felixgeelhaar/rpcengine/engine"
	"github.com/felixgeelhaar/rpcengine/protocol"
)

// mockLogger captures log calls for testing.
type mockLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

type logEntry struct {
	level   string
	message string
	fields  []engine.Field
}

func (l *mockLogger) add(level, msg string, fields []engine.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, message: msg, fields: fields})
}

func (l *mockLogger) Info(msg string, fields ...engine.Field)  { l.add("info", msg, fields) }
func (l *mockLogger) Error(msg string, fields ...engine.Field) { l.add("error", msg, fields) }
func (l *mockLogger) Debug(msg string, fields ...engine.Field) { l.add("debug", msg, fields) }
func (l *mockLogger) Warn(msg string, fields ...engine.Field)  { l.add("warn", msg, fields) }

func (l *mockLogger) field(i int, key string) (any, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, f := range l.entries[i].fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

func call(id, method string) *protocol.Request {
	return &protocol.Request{
		JSONRPC: protocol.JSONRPCVersion,
		ID:      json.RawMessage(id),
		Method:  method,
	}
}

// fail ends every request with err.
func fail(err error) engine.Middleware {
	return func(ctx context.Context, req *protocol.Request, res *engine.PendingResponse, next engine.Next, end engine.End) error {
		return err
	}
}

// handle runs req through a fresh engine built from m.
func handle(req *protocol.Request, m ...engine.Middleware) (*protocol.Response, error) {
	return engine.New(engine.WithMiddleware(m...)).Handle(context.Background(), req)
}
