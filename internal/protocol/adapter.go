// Package protocol maps MCP JSON-RPC messages onto the tool registry and
// dispatcher. It keeps no state between calls.
package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"slices"

	"github.com/mark3labs/mcp-go/mcp"

	"edgar-mcp/internal/dispatch"
	"edgar-mcp/internal/tool"
)

// ErrCanceled is returned by Handle when the caller went away before the
// call completed. No response should be written.
var ErrCanceled = errors.New("request canceled")

var supportedVersions = []string{mcp.LATEST_PROTOCOL_VERSION, "2025-03-26", "2024-11-05"}

// Adapter implements the MCP server methods on top of a Dispatcher.
type Adapter struct {
	dispatcher   *dispatch.Dispatcher
	info         mcp.Implementation
	instructions string
}

// NewAdapter creates an Adapter. info identifies the server in the
// initialize handshake.
func NewAdapter(d *dispatch.Dispatcher, info mcp.Implementation, instructions string) *Adapter {
	return &Adapter{dispatcher: d, info: info, instructions: instructions}
}

// Registry returns the registry behind the adapter.
func (a *Adapter) Registry() *tool.Registry { return a.dispatcher.Registry() }

// ListTools describes every registered tool in registration order.
func (a *Adapter) ListTools() []mcp.Tool {
	reg := a.dispatcher.Registry()
	out := make([]mcp.Tool, 0, reg.Len())
	for d := range reg.All() {
		out = append(out, describe(d))
	}
	return out
}

// CallTool dispatches a call and wraps the outcome in a single text block.
// Errors are flagged with IsError rather than a JSON-RPC error.
func (a *Adapter) CallTool(ctx context.Context, name string, args json.RawMessage) (*mcp.CallToolResult, dispatch.Result) {
	res := a.dispatcher.DispatchJSON(ctx, name, args)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(res.Text)},
		IsError: res.IsError(),
	}, res
}

// Handle answers one request. Notifications yield a nil response. The error
// is ErrCanceled when ctx ended while a tool was running.
func (a *Adapter) Handle(ctx context.Context, req Request) (*Response, error) {
	if req.IsNotification() {
		return nil, nil
	}
	switch mcp.MCPMethod(req.Method) {
	case mcp.MethodInitialize:
		return a.initialize(req), nil
	case mcp.MethodPing:
		return ResultResponse(req.ID, struct{}{}), nil
	case mcp.MethodToolsList:
		return ResultResponse(req.ID, mcp.ListToolsResult{Tools: a.ListTools()}), nil
	case mcp.MethodToolsCall:
		return a.callTool(ctx, req)
	default:
		return ErrorResponse(req.ID, &Error{Code: mcp.METHOD_NOT_FOUND, Message: "method not found: " + req.Method}), nil
	}
}

type callParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

func (a *Adapter) callTool(ctx context.Context, req Request) (*Response, error) {
	var p callParams
	if len(req.Params) == 0 {
		return ErrorResponse(req.ID, &Error{Code: mcp.INVALID_PARAMS, Message: "params are required"}), nil
	}
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return ErrorResponse(req.ID, &Error{Code: mcp.INVALID_PARAMS, Message: "invalid params: " + err.Error()}), nil
	}
	result, res := a.CallTool(ctx, p.Name, p.Arguments)
	if res.Kind == dispatch.KindCanceled {
		return nil, ErrCanceled
	}
	return ResultResponse(req.ID, result), nil
}

type initializeParams struct {
	ProtocolVersion string `json:"protocolVersion"`
}

type initializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    map[string]any     `json:"capabilities"`
	ServerInfo      mcp.Implementation `json:"serverInfo"`
	Instructions    string             `json:"instructions,omitempty"`
}

func (a *Adapter) initialize(req Request) *Response {
	var p initializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return ErrorResponse(req.ID, &Error{Code: mcp.INVALID_PARAMS, Message: "invalid params: " + err.Error()})
		}
	}
	return ResultResponse(req.ID, initializeResult{
		ProtocolVersion: negotiate(p.ProtocolVersion),
		Capabilities: map[string]any{
			"tools": map[string]any{"listChanged": false},
		},
		ServerInfo:   a.info,
		Instructions: a.instructions,
	})
}

// negotiate echoes a supported client version and otherwise offers the latest.
func negotiate(requested string) string {
	if slices.Contains(supportedVersions, requested) {
		return requested
	}
	return mcp.LATEST_PROTOCOL_VERSION
}

func describe(d tool.Descriptor) mcp.Tool {
	return mcp.Tool{
		Name:        d.Name,
		Description: d.Description,
		InputSchema: mcp.ToolInputSchema{
			Type:       string(tool.KindObject),
			Properties: d.InputSchema.PropertiesJSON(),
			Required:   d.InputSchema.RequiredNames(),
		},
	}
}
