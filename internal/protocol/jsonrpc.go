package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// Request is an inbound JSON-RPC 2.0 message.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the message expects no response.
func (r Request) IsNotification() bool { return len(r.ID) == 0 }

// Response is an outbound JSON-RPC 2.0 message.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string { return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message) }

var nullID = json.RawMessage("null")

// Decode parses a request body. The returned *Error is a parse error or an
// invalid request error and should be answered with ErrorResponse(nil, err).
func Decode(body []byte) (Request, *Error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return Request{}, &Error{Code: mcp.INVALID_REQUEST, Message: "batch requests are not supported"}
	}
	var req Request
	if err := json.Unmarshal(trimmed, &req); err != nil {
		return Request{}, &Error{Code: mcp.PARSE_ERROR, Message: "parse error: " + err.Error()}
	}
	if req.JSONRPC != mcp.JSONRPC_VERSION {
		return req, &Error{Code: mcp.INVALID_REQUEST, Message: fmt.Sprintf("jsonrpc must be %q", mcp.JSONRPC_VERSION)}
	}
	if req.Method == "" {
		return req, &Error{Code: mcp.INVALID_REQUEST, Message: "method is required"}
	}
	if bytes.Equal(bytes.TrimSpace(req.ID), nullID) {
		return req, &Error{Code: mcp.INVALID_REQUEST, Message: "id must not be null"}
	}
	return req, nil
}

// ResultResponse builds a success response.
func ResultResponse(id json.RawMessage, result any) *Response {
	return &Response{JSONRPC: mcp.JSONRPC_VERSION, ID: id, Result: result}
}

// ErrorResponse builds an error response. A nil id is rendered as null.
func ErrorResponse(id json.RawMessage, err *Error) *Response {
	if len(id) == 0 {
		id = nullID
	}
	return &Response{JSONRPC: mcp.JSONRPC_VERSION, ID: id, Error: err}
}
