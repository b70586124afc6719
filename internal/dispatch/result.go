package dispatch

import (
	"encoding/json"

	"edgar-mcp/internal/tool"
)

// Kind classifies the outcome of a dispatch.
type Kind string

const (
	KindOK                 Kind = "OK"
	KindUnknownTool        Kind = "UnknownTool"
	KindInvalidArguments   Kind = "InvalidArguments"
	KindHandlerError       Kind = "HandlerError"
	KindSerializationError Kind = "SerializationError"
	KindCanceled           Kind = "Canceled"
)

// Result is the canonical envelope of a tool call. On success Text holds the
// serialized payload; on failure Kind names the error and Text holds a JSON
// error document built from Message and Violations.
type Result struct {
	Tool       string
	Kind       Kind
	Text       string
	Message    string
	Violations []tool.Violation
}

// IsError reports whether the call failed.
func (r Result) IsError() bool { return r.Kind != KindOK }

type errorDoc struct {
	Error      string           `json:"error"`
	Tool       string           `json:"tool,omitempty"`
	Message    string           `json:"message"`
	Violations []tool.Violation `json:"violations,omitempty"`
}

func success(name, text string) Result {
	return Result{Tool: name, Kind: KindOK, Text: text}
}

func failure(name string, kind Kind, msg string, vs []tool.Violation) Result {
	doc := errorDoc{Error: string(kind), Tool: name, Message: msg, Violations: vs}
	// errorDoc holds only strings and cannot fail to encode.
	b, _ := json.Marshal(doc)
	return Result{Tool: name, Kind: kind, Text: string(b), Message: msg, Violations: vs}
}
