package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"edgar-mcp/internal/tool"
)

func newRegistry(t *testing.T, tools ...tool.Tool) *tool.Registry {
	t.Helper()
	r := tool.NewRegistry()
	if err := r.RegisterAll(tools...); err != nil {
		t.Fatalf("register: %v", err)
	}
	r.Freeze()
	return r
}

func countTool(called *bool) tool.Tool {
	return tool.Tool{
		Descriptor: tool.Descriptor{
			Name:        "count",
			Description: "echoes x",
			InputSchema: tool.Object(tool.Required("x", tool.Integer("a number"))),
		},
		Handler: tool.HandlerFunc(func(_ context.Context, args tool.Args) (any, error) {
			*called = true
			return map[string]int64{"x": args.Int("x", 0)}, nil
		}),
	}
}

func TestUnknownTool(t *testing.T) {
	d := New(newRegistry(t))
	for _, args := range []map[string]any{nil, {}, {"x": 1}, {"": []any{nil}}} {
		res := d.Dispatch(context.Background(), "missing", args)
		if res.Kind != KindUnknownTool || !res.IsError() {
			t.Fatalf("args %v: expected UnknownTool, got %s", args, res.Kind)
		}
		var doc map[string]any
		if err := json.Unmarshal([]byte(res.Text), &doc); err != nil {
			t.Fatalf("error text not json: %v", err)
		}
		if doc["error"] != "UnknownTool" {
			t.Fatalf("unexpected error doc %v", doc)
		}
	}
}

func TestInvalidArguments(t *testing.T) {
	var called bool
	d := New(newRegistry(t, countTool(&called)))

	res := d.Dispatch(context.Background(), "count", map[string]any{})
	if res.Kind != KindInvalidArguments || len(res.Violations) != 1 || res.Violations[0].Field != "x" {
		t.Fatalf("expected InvalidArguments naming x, got %+v", res)
	}
	if !strings.Contains(res.Text, `"field":"x"`) {
		t.Fatalf("violation missing from text: %s", res.Text)
	}

	res = d.Dispatch(context.Background(), "count", map[string]any{"x": "not-a-number"})
	if res.Kind != KindInvalidArguments {
		t.Fatalf("expected InvalidArguments, got %s", res.Kind)
	}
	if called {
		t.Fatal("handler reached with invalid arguments")
	}

	res = d.Dispatch(context.Background(), "count", map[string]any{"x": 5})
	if res.Kind != KindOK || !called {
		t.Fatalf("expected handler call, got %+v", res)
	}
	if res.Text != `{"x":5}` {
		t.Fatalf("unexpected payload %s", res.Text)
	}
}

func TestHandlerFailures(t *testing.T) {
	schema := tool.Object()
	reg := newRegistry(t,
		tool.Tool{
			Descriptor: tool.Descriptor{Name: "fails", Description: "always fails", InputSchema: schema},
			Handler: tool.HandlerFunc(func(context.Context, tool.Args) (any, error) {
				return nil, errors.New("upstream said no")
			}),
		},
		tool.Tool{
			Descriptor: tool.Descriptor{Name: "panics", Description: "always panics", InputSchema: schema},
			Handler: tool.HandlerFunc(func(context.Context, tool.Args) (any, error) {
				panic("boom")
			}),
		},
		tool.Tool{
			Descriptor: tool.Descriptor{Name: "unencodable", Description: "returns a channel", InputSchema: schema},
			Handler: tool.HandlerFunc(func(context.Context, tool.Args) (any, error) {
				return make(chan int), nil
			}),
		},
		tool.Tool{
			Descriptor: tool.Descriptor{Name: "text", Description: "returns a string", InputSchema: schema},
			Handler: tool.HandlerFunc(func(context.Context, tool.Args) (any, error) {
				return "plain text", nil
			}),
		},
	)
	d := New(reg)

	tests := []struct {
		name string
		kind Kind
		text string
	}{
		{name: "fails", kind: KindHandlerError, text: "upstream said no"},
		{name: "panics", kind: KindHandlerError, text: "handler panic: boom"},
		{name: "unencodable", kind: KindSerializationError, text: "could not be serialized"},
		{name: "text", kind: KindOK, text: "plain text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := d.Dispatch(context.Background(), tt.name, nil)
			if res.Kind != tt.kind {
				t.Fatalf("expected %s, got %s", tt.kind, res.Kind)
			}
			if !strings.Contains(res.Text, tt.text) {
				t.Fatalf("expected %q in %q", tt.text, res.Text)
			}
		})
	}
}

func TestConcurrentCallsDoNotCrossTalk(t *testing.T) {
	const n = 16
	tools := make([]tool.Tool, n)
	for i := range tools {
		tools[i] = tool.Tool{
			Descriptor: tool.Descriptor{
				Name:        fmt.Sprintf("echo%d", i),
				Description: "echoes its input after a delay",
				InputSchema: tool.Object(tool.Required("v", tool.String(""))),
			},
			Handler: tool.HandlerFunc(func(ctx context.Context, args tool.Args) (any, error) {
				select {
				case <-time.After(20 * time.Millisecond):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
				return map[string]string{"v": args.String("v", "")}, nil
			}),
		}
	}
	d := New(newRegistry(t, tools...))

	var wg sync.WaitGroup
	results := make([]Result, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = d.Dispatch(context.Background(), fmt.Sprintf("echo%d", i), map[string]any{"v": fmt.Sprint(i)})
		}(i)
	}
	wg.Wait()
	for i, res := range results {
		want := fmt.Sprintf(`{"v":"%d"}`, i)
		if res.Kind != KindOK || res.Text != want {
			t.Fatalf("call %d: expected %s, got %+v", i, want, res)
		}
	}
}

func TestCancellationReachesHandler(t *testing.T) {
	started := make(chan struct{})
	observed := make(chan error, 1)
	reg := newRegistry(t, tool.Tool{
		Descriptor: tool.Descriptor{Name: "slow", Description: "waits", InputSchema: tool.Object()},
		Handler: tool.HandlerFunc(func(ctx context.Context, _ tool.Args) (any, error) {
			close(started)
			<-ctx.Done()
			observed <- ctx.Err()
			return nil, ctx.Err()
		}),
	})
	d := New(reg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan Result, 1)
	go func() { done <- d.Dispatch(ctx, "slow", nil) }()
	<-started
	cancel()

	select {
	case res := <-done:
		if res.Kind != KindCanceled {
			t.Fatalf("expected Canceled, got %s", res.Kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch did not return after cancellation")
	}
	if err := <-observed; !errors.Is(err, context.Canceled) {
		t.Fatalf("handler saw %v", err)
	}
}

func TestMetricsAndSpans(t *testing.T) {
	var called bool
	reg := newRegistry(t, countTool(&called))

	promReg := prometheus.NewRegistry()
	m, err := NewMetrics(promReg)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	d := New(reg, WithMetrics(m), WithTracer(tp.Tracer("test")))

	d.Dispatch(context.Background(), "count", map[string]any{"x": 1})
	d.Dispatch(context.Background(), "count", map[string]any{})
	d.Dispatch(context.Background(), "nope", nil)

	if got := testutil.ToFloat64(m.calls.WithLabelValues("count", string(KindOK))); got != 1 {
		t.Fatalf("expected 1 ok call, got %v", got)
	}
	if got := testutil.ToFloat64(m.calls.WithLabelValues("count", string(KindInvalidArguments))); got != 1 {
		t.Fatalf("expected 1 invalid call, got %v", got)
	}
	if got := testutil.ToFloat64(m.calls.WithLabelValues("unknown", string(KindUnknownTool))); got != 1 {
		t.Fatalf("expected 1 unknown call, got %v", got)
	}
	if got := testutil.ToFloat64(m.inFlight); got != 0 {
		t.Fatalf("in-flight gauge not released: %v", got)
	}

	spans := recorder.Ended()
	if len(spans) != 3 {
		t.Fatalf("expected 3 spans, got %d", len(spans))
	}
	outcome := ""
	for _, kv := range spans[0].Attributes() {
		if kv.Key == "tool.outcome" {
			outcome = kv.Value.AsString()
		}
	}
	if outcome != string(KindOK) {
		t.Fatalf("unexpected outcome attribute %q", outcome)
	}
}

func TestDispatchJSON(t *testing.T) {
	var called bool
	d := New(newRegistry(t, countTool(&called)))

	tests := []struct {
		name string
		tool string
		raw  string
		kind Kind
	}{
		{name: "unknown with garbage args", tool: "missing", raw: `[1,2]`, kind: KindUnknownTool},
		{name: "unknown without args", tool: "missing", raw: ``, kind: KindUnknownTool},
		{name: "non-object args", tool: "count", raw: `"x"`, kind: KindInvalidArguments},
		{name: "null args", tool: "count", raw: `null`, kind: KindInvalidArguments},
		{name: "big integer", tool: "count", raw: `{"x": 9007199254740993}`, kind: KindOK},
		{name: "integral float", tool: "count", raw: `{"x": 5.0}`, kind: KindOK},
		{name: "exponent", tool: "count", raw: `{"x": 1e2}`, kind: KindOK},
		{name: "fraction", tool: "count", raw: `{"x": 5.5}`, kind: KindInvalidArguments},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := d.DispatchJSON(context.Background(), tt.tool, json.RawMessage(tt.raw))
			if res.Kind != tt.kind {
				t.Fatalf("expected %s, got %s (%s)", tt.kind, res.Kind, res.Text)
			}
		})
	}

	res := d.DispatchJSON(context.Background(), "count", json.RawMessage(`{"x": 9007199254740993}`))
	if res.Text != `{"x":9007199254740993}` {
		t.Fatalf("integer precision lost: %s", res.Text)
	}

	res = d.DispatchJSON(context.Background(), "count", json.RawMessage(`{"x": 1e2}`))
	if res.Text != `{"x":100}` {
		t.Fatalf("exponent not normalized: %s", res.Text)
	}
}
