package middleware

import (
	"context"
	"time"

	"vab-bridge/metrics"
	"vab-bridge/protocol"
)

// MetricsMiddleware records count and duration of every request.
func MetricsMiddleware() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *protocol.Request) *protocol.Response {
			start := time.Now()
			resp := next(ctx, req)
			metrics.RecordVABRequest(req.Op.String(), resp.Code.String(), time.Since(start))
			return resp
		}
	}
}
