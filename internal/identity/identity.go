// Package identity carries the external service identity from bootstrap to
// tool handlers. The value is set once at startup and attached to every
// request context; handlers read it with FromContext.
package identity

import "context"

// Identity is the credential string presented to the external domain
// service, e.g. "Jane Doe jane@example.com".
type Identity string

// Empty reports whether no identity was configured.
func (id Identity) Empty() bool { return id == "" }

type ctxKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity attached to ctx, or "" when none is.
func FromContext(ctx context.Context) Identity {
	id, _ := ctx.Value(ctxKey{}).(Identity)
	return id
}
