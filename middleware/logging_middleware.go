package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"vab-bridge/protocol"
)

// LoggingMiddleware logs every request at debug level and every non-OK
// response at warn level.
func LoggingMiddleware(logger *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *protocol.Request) *protocol.Response {
			start := time.Now()
			resp := next(ctx, req)
			fields := []zap.Field{
				zap.Stringer("opcode", req.Op),
				zap.String("path", req.Path),
				zap.Stringer("result", resp.Code),
				zap.Duration("duration", time.Since(start)),
			}
			if resp.Code != protocol.ResultOK {
				logger.Warn("vab request failed", append(fields, zap.ByteString("message", resp.JSON))...)
				return resp
			}
			logger.Debug("vab request", fields...)
			return resp
		}
	}
}
