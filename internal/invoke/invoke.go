// Package invoke abstracts the synchronous model invocation round trip.
// The rest of the system treats the transport as an opaque collaborator:
// a request payload goes in, the vendor's raw response body comes out.
package invoke

import "context"

// Invoker performs one blocking model invocation.
type Invoker interface {
	Invoke(ctx context.Context, modelID string, payload []byte) ([]byte, error)
}

// Func adapts a plain function to the Invoker interface.
type Func func(ctx context.Context, modelID string, payload []byte) ([]byte, error)

// Invoke implements Invoker.
func (f Func) Invoke(ctx context.Context, modelID string, payload []byte) ([]byte, error) {
	return f(ctx, modelID, payload)
}
