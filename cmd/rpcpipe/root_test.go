package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/felixgeelhaar/rpcengine/engine"
	"github.com/felixgeelhaar/rpcengine/protocol"
	"github.com/felixgeelhaar/rpcengine/transport"
)

func execute(t *testing.T, input string, args ...string) []map[string]any {
	t.Helper()

	cmd := newRootCmd()
	out := &bytes.Buffer{}
	cmd.SetIn(strings.NewReader(input))
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--log-level", "error"}, args...))

	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
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

func TestRootCmd(t *testing.T) {
	t.Run("ping", func(t *testing.T) {
		msgs := execute(t, `{"jsonrpc":"2.0","id":1,"method":"ping"}`+"\n")
		if len(msgs) != 1 || msgs[0]["result"] != "pong" {
			t.Errorf("responses = %v, want one pong", msgs)
		}
	})

	t.Run("echo", func(t *testing.T) {
		msgs := execute(t, `{"jsonrpc":"2.0","id":1,"method":"echo","params":{"a":1}}`+"\n")
		if len(msgs) != 1 {
			t.Fatalf("got %d responses, want 1", len(msgs))
		}
		result, _ := msgs[0]["result"].(map[string]any)
		if result["a"] != float64(1) {
			t.Errorf("result = %v, want {a:1}", msgs[0]["result"])
		}
	})

	t.Run("notify pushes a notification", func(t *testing.T) {
		msgs := execute(t, `{"jsonrpc":"2.0","id":1,"method":"notify","params":[1]}`+"\n")
		if len(msgs) != 2 {
			t.Fatalf("got %d messages, want 2", len(msgs))
		}
		// The notification is written before the response.
		if msgs[0]["method"] != "notify" {
			t.Errorf("first message = %v, want notify notification", msgs[0])
		}
		if msgs[1]["result"] != true {
			t.Errorf("second message = %v, want result true", msgs[1])
		}
	})

	t.Run("sleep times out", func(t *testing.T) {
		msgs := execute(t, `{"jsonrpc":"2.0","id":1,"method":"sleep","params":{"ms":5000}}`+"\n", "--timeout", "20ms")
		if len(msgs) != 1 {
			t.Fatalf("got %d responses, want 1", len(msgs))
		}
		errObj, ok := msgs[0]["error"].(map[string]any)
		if !ok {
			t.Fatalf("expected error, got %v", msgs[0])
		}
		if !strings.Contains(errObj["message"].(string), "timed out") {
			t.Errorf("message = %v, want timeout", errObj["message"])
		}
	})

	t.Run("size limit", func(t *testing.T) {
		msgs := execute(t, `{"jsonrpc":"2.0","id":1,"method":"echo","params":"0123456789"}`+"\n", "--max-size", "4")
		errObj, ok := msgs[0]["error"].(map[string]any)
		if !ok || errObj["code"] != float64(protocol.CodeInvalidRequest) {
			t.Errorf("response = %v, want invalid request", msgs[0])
		}
	})

	t.Run("rate limit", func(t *testing.T) {
		input := `{"jsonrpc":"2.0","id":1,"method":"ping"}` + "\n" +
			`{"jsonrpc":"2.0","id":2,"method":"ping"}` + "\n"
		msgs := execute(t, input, "--rate", "1", "--burst", "1")
		if len(msgs) != 2 {
			t.Fatalf("got %d responses, want 2", len(msgs))
		}
		limited := 0
		for _, m := range msgs {
			if errObj, ok := m["error"].(map[string]any); ok && errObj["code"] == float64(protocol.CodeRateLimited) {
				limited++
			}
		}
		if limited != 1 {
			t.Errorf("rate limited %d requests, want 1", limited)
		}
	})

	t.Run("invalid log level", func(t *testing.T) {
		cmd := newRootCmd()
		cmd.SetIn(strings.NewReader(""))
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{"--log-level", "loud"})
		if err := cmd.Execute(); err == nil {
			t.Error("expected error for invalid log level")
		}
	})
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"RPCPIPE_LOG_LEVEL":   "debug",
		"RPCPIPE_BATCH_LIMIT": "4",
		"RPCPIPE_RATE":        "10",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cmd := newRootCmd()
	if err := cmd.Flags().Parse([]string{"--rate", "3"}); err != nil {
		t.Fatal(err)
	}
	if err := applyEnv(cmd.Flags(), lookup); err != nil {
		t.Fatalf("applyEnv() error = %v", err)
	}

	tests := []struct {
		flag string
		want string
	}{
		{"log-level", "debug"},
		{"batch-limit", "4"},
		{"rate", "3"},
		{"log-format", "text"},
	}
	for _, tt := range tests {
		t.Run(tt.flag, func(t *testing.T) {
			if got := cmd.Flags().Lookup(tt.flag).Value.String(); got != tt.want {
				t.Errorf("%s = %q, want %q", tt.flag, got, tt.want)
			}
		})
	}

	t.Run("invalid value", func(t *testing.T) {
		cmd := newRootCmd()
		err := applyEnv(cmd.Flags(), func(k string) (string, bool) {
			if k == "RPCPIPE_RATE" {
				return "many", true
			}
			return "", false
		})
		if err == nil || !strings.Contains(err.Error(), "RPCPIPE_RATE") {
			t.Errorf("applyEnv() error = %v, want RPCPIPE_RATE error", err)
		}
	})
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("RPCPIPE_TEST_LOAD=yes\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("RPCPIPE_TEST_LOAD") })

	if err := loadEnvFile(path); err != nil {
		t.Fatalf("loadEnvFile() error = %v", err)
	}
	if got := os.Getenv("RPCPIPE_TEST_LOAD"); got != "yes" {
		t.Errorf("RPCPIPE_TEST_LOAD = %q, want %q", got, "yes")
	}

	if err := loadEnvFile(filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Error("expected error for missing env file")
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		level, format string
		wantErr       bool
	}{
		{"debug", "text", false},
		{"warn", "json", false},
		{"ERROR", "json", false},
		{"loud", "text", true},
		{"info", "xml", true},
	}
	for _, tt := range tests {
		t.Run(tt.level+"/"+tt.format, func(t *testing.T) {
			_, err := newLogger(&bytes.Buffer{}, tt.level, tt.format)
			if (err != nil) != tt.wantErr {
				t.Errorf("newLogger() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

type recordingSender struct {
	method string
	params any
}

func (s *recordingSender) SendNotification(method string, params any) error {
	s.method, s.params = method, params
	return nil
}

func TestDemoEngine(t *testing.T) {
	e := newDemoEngine(&rootFlags{timeout: time.Second}, engine.NopLogger{})
	defer e.Destroy()

	t.Run("echo without params", func(t *testing.T) {
		out, err := e.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"echo"}`))
		if err != nil {
			t.Fatal(err)
		}
		if want := `{"jsonrpc":"2.0","id":1,"result":null}`; string(out) != want {
			t.Errorf("out = %s, want %s", out, want)
		}
	})

	t.Run("sleep", func(t *testing.T) {
		out, err := e.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"sleep","params":{"ms":1}}`))
		if err != nil {
			t.Fatal(err)
		}
		if want := `{"jsonrpc":"2.0","id":1,"result":1}`; string(out) != want {
			t.Errorf("out = %s, want %s", out, want)
		}
	})

	t.Run("sleep bad params", func(t *testing.T) {
		out, _ := e.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"sleep","params":"x"}`))
		if !strings.Contains(string(out), `"code":-32602`) {
			t.Errorf("out = %s, want invalid params", out)
		}
	})

	t.Run("notify without peer", func(t *testing.T) {
		out, _ := e.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"notify"}`))
		if !strings.Contains(string(out), "no peer to notify") {
			t.Errorf("out = %s, want no peer error", out)
		}
	})

	t.Run("notify with peer", func(t *testing.T) {
		s := &recordingSender{}
		ctx := transport.ContextWithNotificationSender(context.Background(), s)
		if _, err := e.HandleMessage(ctx, []byte(`{"jsonrpc":"2.0","id":1,"method":"notify","params":{"k":"v"}}`)); err != nil {
			t.Fatal(err)
		}
		if s.method != "notify" {
			t.Errorf("method = %q, want notify", s.method)
		}
		if got := string(s.params.(json.RawMessage)); got != `{"k":"v"}` {
			t.Errorf("params = %s, want {\"k\":\"v\"}", got)
		}
	})

	t.Run("unknown method", func(t *testing.T) {
		out, _ := e.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"nope"}`))
		if !strings.Contains(string(out), `"code":-32603`) {
			t.Errorf("out = %s, want internal error", out)
		}
	})
}
