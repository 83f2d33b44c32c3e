package middleware

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"vab-bridge/protocol"
)

// RecoveryMiddleware turns a panic in a handler into an ERROR response, so a
// faulty getter, setter or operation fails only its own request.
func RecoveryMiddleware(logger *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *protocol.Request) (resp *protocol.Response) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("vab handler panicked",
						zap.Stringer("opcode", req.Op),
						zap.String("path", req.Path),
						zap.Any("panic", r),
						zap.Stack("stack"),
					)
					resp = protocol.Failure(protocol.ResultError, fmt.Sprint(r))
				}
			}()
			return next(ctx, req)
		}
	}
}
