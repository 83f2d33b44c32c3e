package middleware

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"vab-bridge/protocol"
)

// RetryMiddleware repeats requests that failed for transient reasons
// (timeouts, refused or reset connections) with exponential backoff. It is
// meant for the client side, where a bridge may still be starting.
func RetryMiddleware(maxRetries int, baseDelay time.Duration, logger *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *protocol.Request) *protocol.Response {
			resp := next(ctx, req)
			for i := 0; i < maxRetries; i++ {
				if !retryable(resp) {
					return resp
				}
				logger.Debug("retrying vab request",
					zap.Int("attempt", i+1),
					zap.String("path", req.Path),
					zap.ByteString("reason", resp.JSON),
				)
				select {
				case <-time.After(baseDelay * time.Duration(1<<i)):
				case <-ctx.Done():
					return resp
				}
				resp = next(ctx, req)
			}
			return resp
		}
	}
}

func retryable(resp *protocol.Response) bool {
	if resp.Code != protocol.ResultError {
		return false
	}
	msg := string(resp.JSON)
	return strings.Contains(msg, "timed out") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset")
}
