// Package middleware wraps VAB request handlers. The same onion serves the
// TCP and HTTP bindings on the server side and the round trip of the client.
package middleware

import (
	"context"

	"vab-bridge/protocol"
)

// HandlerFunc answers one VAB request. It never returns nil.
type HandlerFunc func(ctx context.Context, req *protocol.Request) *protocol.Response

type Middleware func(next HandlerFunc) HandlerFunc

// Chain combines middlewares so that the first one is outermost:
// Chain(A, B)(h) runs A.before, B.before, h, B.after, A.after.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
