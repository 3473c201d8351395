package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ParseRequest decodes a single message and checks its shape.
//
// Only the shape is validated: the message must be a JSON object with a
// string "method". The returned error is an invalid request error whose data
// holds the raw message. Use IDOf to recover the id for the error response.
func ParseRequest(raw json.RawMessage) (*Request, *Error) {
	var fields map[string]json.RawMessage
	if kind := jsonKind(raw); kind != "object" {
		return nil, NewInvalidRequest(fmt.Sprintf("requests must be objects, received: %s", kind)).
			WithData(map[string]any{"request": raw})
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, NewInvalidRequest("requests must be objects, received: invalid JSON").
			WithData(map[string]any{"request": raw})
	}

	method, ok := fields["method"]
	if kind := jsonKind(method); !ok || kind != "string" {
		if !ok {
			kind = "undefined"
		}
		return nil, NewInvalidRequest(fmt.Sprintf("must specify a string method, received: %s", kind)).
			WithData(map[string]any{"request": raw})
	}

	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, NewInvalidRequest(err.Error()).WithData(map[string]any{"request": raw})
	}
	return &req, nil
}

// IDOf extracts the id of a raw message if it is an object carrying a string
// or number id. It returns nil otherwise.
func IDOf(raw json.RawMessage) json.RawMessage {
	var probe struct {
		ID json.RawMessage `json:"id"`
	}
	if jsonKind(raw) != "object" || json.Unmarshal(raw, &probe) != nil {
		return nil
	}
	switch jsonKind(probe.ID) {
	case "string", "number":
		return probe.ID
	}
	return nil
}

// SplitBatch splits a payload into its messages. The boolean reports whether
// the payload was a batch (a JSON array).
func SplitBatch(data []byte) ([]json.RawMessage, bool, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, false, NewParseError("empty message")
	}
	if trimmed[0] != '[' {
		if !json.Valid(trimmed) {
			return nil, false, NewParseError("invalid JSON")
		}
		return []json.RawMessage{json.RawMessage(trimmed)}, false, nil
	}

	var msgs []json.RawMessage
	if err := json.Unmarshal(trimmed, &msgs); err != nil {
		return nil, true, NewParseError(err.Error())
	}
	return msgs, true, nil
}

// jsonKind reports the JSON type of a raw value by its first byte.
func jsonKind(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return "undefined"
	}
	switch c := trimmed[0]; {
	case c == '{':
		return "object"
	case c == '[':
		return "array"
	case c == '"':
		return "string"
	case c == 't' || c == 'f':
		return "boolean"
	case c == 'n':
		return "null"
	case c == '-' || (c >= '0' && c <= '9'):
		return "number"
	}
	return "invalid"
}
