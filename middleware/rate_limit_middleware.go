package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"vab-bridge/protocol"
)

// RateLimitMiddleware rejects requests beyond a token bucket of r requests per
// second with the given burst.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *protocol.Request) *protocol.Response {
			if !limiter.Allow() {
				return protocol.Failure(protocol.ResultError, "rate limit exceeded")
			}
			return next(ctx, req)
		}
	}
}
