package middleware

import (
	"context"
	"time"

	"vab-bridge/protocol"
)

// TimeOutMiddleware answers with an error when next takes longer than
// timeout. The handler keeps running in the background; its late response is
// discarded.
func TimeOutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *protocol.Request) *protocol.Response {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan *protocol.Response, 1)
			go func() {
				done <- next(ctx, req)
			}()

			select {
			case resp := <-done:
				return resp
			case <-ctx.Done():
				return protocol.Failure(protocol.ResultError, "request timed out")
			}
		}
	}
}
