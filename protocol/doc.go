// Package protocol defines the JSON-RPC 2.0 message types and error codes.
//
// This package provides the low-level structures shared by the engine,
// middleware and transports. Most users interact with it only through
// Request, Response and Error.
//
// # Request and Response Types
//
//	type Request struct {
//	    JSONRPC string          `json:"jsonrpc"`
//	    ID      json.RawMessage `json:"id,omitempty"`
//	    Method  string          `json:"method"`
//	    Params  json.RawMessage `json:"params,omitempty"`
//	}
//
// A Request without an ID is a notification. Response always encodes its id
// (null when unknown) and exactly one of result or error.
//
// # Error Codes
//
// Standard JSON-RPC 2.0 error codes are defined as constants:
//
//	CodeParseError     = -32700  // Invalid JSON
//	CodeInvalidRequest = -32600  // Invalid Request object
//	CodeMethodNotFound = -32601  // Method not found
//	CodeInvalidParams  = -32602  // Invalid method parameters
//	CodeInternalError  = -32603  // Internal error
//
// # Error Normalization
//
// NormalizeError turns any failure into an *Error. Errors that already are
// (or wrap) an *Error pass through unchanged; everything else becomes an
// internal error that keeps the original for diagnostics:
//
//	rpcErr := protocol.NormalizeError(errors.New("disk full"))
//	// rpcErr.Code == protocol.CodeInternalError
//	// errors.Unwrap(rpcErr) is the original error
//
// # Shape Validation
//
// ParseRequest checks that a raw message is an object with a string method
// and SplitBatch separates batch payloads into their elements. Neither
// validates anything beyond message shape.
package protocol
