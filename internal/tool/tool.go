// Package tool holds the tool model: descriptors, input schemas, handlers
// and the registry that maps stable names to them.
package tool

import (
	"context"
	"fmt"
	"strings"
)

// Descriptor is the static metadata of a tool. It is copied into the
// registry on registration and never mutated afterwards.
type Descriptor struct {
	Name        string
	Description string
	InputSchema Schema
}

// Validate checks that the descriptor can be registered.
func (d Descriptor) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidDescriptor)
	}
	if strings.TrimSpace(d.Description) == "" {
		return fmt.Errorf("%w: tool %q has no description", ErrInvalidDescriptor, d.Name)
	}
	if d.InputSchema.Kind != KindObject {
		return fmt.Errorf("%w: tool %q input schema must be an object", ErrInvalidDescriptor, d.Name)
	}
	if err := d.InputSchema.Check(); err != nil {
		return fmt.Errorf("%w: tool %q: %v", ErrInvalidDescriptor, d.Name, err)
	}
	return nil
}

// Handler executes a tool. Implementations must honor ctx cancellation for
// any I/O they start and must be safe for concurrent use. The returned value
// is serialized to the tool's textual payload.
type Handler interface {
	Call(ctx context.Context, args Args) (any, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, args Args) (any, error)

// Call implements Handler.
func (f HandlerFunc) Call(ctx context.Context, args Args) (any, error) { return f(ctx, args) }

// Tool pairs a descriptor with its handler.
type Tool struct {
	Descriptor Descriptor
	Handler    Handler
}
