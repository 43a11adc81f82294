// Package kit holds the transport-agnostic endpoint shape shared by the
// HTTP and MCP surfaces.
package kit

import "context"

// Endpoint is a single operation: typed request in, JSON-marshalable response out.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware wraps an Endpoint.
type Middleware func(Endpoint) Endpoint

// Chain composes middlewares so the first one is the outermost.
func Chain(mws ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}
