// Package dispatch resolves, validates and invokes tools and turns every
// outcome into a canonical Result.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"edgar-mcp/internal/tool"
)

const tracerName = "edgar-mcp/dispatch"

// Dispatcher invokes tools from a frozen registry. It holds no per-call
// state and is safe for concurrent use.
type Dispatcher struct {
	registry *tool.Registry
	logger   *zap.Logger
	metrics  *Metrics
	tracer   trace.Tracer
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger. The default discards output.
func WithLogger(l *zap.Logger) Option { return func(d *Dispatcher) { d.logger = l } }

// WithMetrics records call metrics.
func WithMetrics(m *Metrics) Option { return func(d *Dispatcher) { d.metrics = m } }

// WithTracer sets the tracer. The default comes from the global provider.
func WithTracer(t trace.Tracer) Option { return func(d *Dispatcher) { d.tracer = t } }

// New creates a Dispatcher over reg.
func New(reg *tool.Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry: reg,
		logger:   zap.NewNop(),
		tracer:   otel.Tracer(tracerName),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Registry returns the registry the dispatcher reads from.
func (d *Dispatcher) Registry() *tool.Registry { return d.registry }

// Dispatch resolves name, validates args against the tool's input schema,
// invokes the handler with ctx and normalizes the outcome. It never panics
// and never returns a Go error; failures are reported through Result.Kind.
// A nil args mapping is treated as empty.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args map[string]any) Result {
	return d.run(ctx, name, args, nil)
}

// DispatchJSON is Dispatch for arguments still in wire form. Absent or null
// arguments are an empty mapping; anything other than a JSON object is
// reported as InvalidArguments once the tool name has been resolved.
func (d *Dispatcher) DispatchJSON(ctx context.Context, name string, raw json.RawMessage) Result {
	args, err := DecodeArguments(raw)
	return d.run(ctx, name, args, err)
}

// DecodeArguments parses a wire argument object, keeping numbers as
// json.Number so integers survive without float rounding.
func DecodeArguments(raw json.RawMessage) (map[string]any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var args map[string]any
	if err := dec.Decode(&args); err != nil {
		return nil, errors.New("arguments must be a JSON object")
	}
	return args, nil
}

func (d *Dispatcher) run(ctx context.Context, name string, args map[string]any, argErr error) Result {
	start := time.Now()
	ctx, span := d.tracer.Start(ctx, "tool.call", trace.WithAttributes(attribute.String("tool.name", name)))
	defer span.End()
	d.metrics.begin()

	res := d.dispatch(ctx, name, args, argErr)

	elapsed := time.Since(start)
	d.metrics.end(name, res.Kind, elapsed)
	span.SetAttributes(attribute.String("tool.outcome", string(res.Kind)))
	fields := []zap.Field{
		zap.String("tool", name),
		zap.String("outcome", string(res.Kind)),
		zap.Duration("elapsed", elapsed),
	}
	if res.IsError() {
		span.SetStatus(codes.Error, res.Message)
		d.logger.Warn("tool call failed", append(fields, zap.String("message", res.Message))...)
	} else {
		d.logger.Info("tool call", fields...)
	}
	return res
}

func (d *Dispatcher) dispatch(ctx context.Context, name string, raw map[string]any, argErr error) Result {
	desc, h, err := d.registry.Get(name)
	if err != nil {
		return failure(name, KindUnknownTool, err.Error(), nil)
	}
	if argErr != nil {
		vs := []tool.Violation{{Field: "arguments", Message: argErr.Error()}}
		return failure(name, KindInvalidArguments, invalidMessage(vs), vs)
	}

	args, vs := desc.InputSchema.Validate(raw)
	if len(vs) > 0 {
		return failure(name, KindInvalidArguments, invalidMessage(vs), vs)
	}

	out, err := invoke(ctx, h, args)
	if ctx.Err() != nil {
		return failure(name, KindCanceled, ctx.Err().Error(), nil)
	}
	if err != nil {
		return failure(name, KindHandlerError, err.Error(), nil)
	}

	text, err := encode(out)
	if err != nil {
		d.logger.Error("serialize tool result", zap.String("tool", name), zap.Error(err))
		return failure(name, KindSerializationError, "tool result could not be serialized", nil)
	}
	return success(name, text)
}

func invoke(ctx context.Context, h tool.Handler, args tool.Args) (out any, err error) {
	defer func() {
		if p := recover(); p != nil {
			out, err = nil, fmt.Errorf("handler panic: %v", p)
		}
	}()
	return h.Call(ctx, args)
}

// encode produces the textual payload. Strings are used verbatim; anything
// else is JSON encoded.
func encode(v any) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func invalidMessage(vs []tool.Violation) string {
	msg := "invalid arguments: "
	for i, v := range vs {
		if i > 0 {
			msg += "; "
		}
		msg += v.String()
	}
	return msg
}
