package server

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"vab-bridge/protocol"
)

// businessHandler resolves the request path in the operation registry and
// calls the bound accessor or operation. It has the HandlerFunc signature so
// the middleware chain can wrap it.
func (svr *Server) businessHandler(ctx context.Context, req *protocol.Request) *protocol.Response {
	ops := svr.ctx.Operations

	switch req.Op {
	case protocol.OpGet:
		get := ops.Getter(req.Path)
		if get == nil {
			return notFound(req.Path)
		}
		value, err := get()
		if err != nil {
			return svr.failed(req, err)
		}
		return svr.result(req, value)

	case protocol.OpSet:
		set := ops.Setter(req.Path)
		if set == nil {
			return notFound(req.Path)
		}
		value, err := decodeJSON(req.Value)
		if err != nil {
			return protocol.Failure(protocol.ResultBadRequest, err.Error())
		}
		if err := set(value); err != nil {
			return svr.failed(req, err)
		}
		return protocol.OK(nil)

	case protocol.OpInvoke:
		op := ops.Operation(req.Path)
		if op == nil {
			return notFound(req.Path)
		}
		args, err := decodeArgs(req.Args)
		if err != nil {
			return protocol.Failure(protocol.ResultBadRequest, err.Error())
		}
		value, err := op(args)
		if err != nil {
			return svr.failed(req, err)
		}
		return svr.result(req, value)

	case protocol.OpCreate, protocol.OpDelete:
		return protocol.Failure(protocol.ResultUnsupported, req.Op.String()+" is not supported")
	}
	return protocol.Failure(protocol.ResultBadRequest, req.Op.String())
}

func (svr *Server) result(req *protocol.Request, value any) *protocol.Response {
	if value == nil {
		return protocol.OK(nil)
	}
	body, err := json.Marshal(value)
	if err != nil {
		return svr.failed(req, fmt.Errorf("encode result: %w", err))
	}
	return protocol.OK(body)
}

func (svr *Server) failed(req *protocol.Request, err error) *protocol.Response {
	svr.logger.Error("vab handler failed",
		zap.Stringer("opcode", req.Op),
		zap.String("path", req.Path),
		zap.Error(err),
	)
	return protocol.Failure(protocol.ResultError, err.Error())
}

func notFound(path string) *protocol.Response {
	return protocol.Failure(protocol.ResultNotFound, "no element at "+path)
}

func decodeJSON(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("value: %w", err)
	}
	return v, nil
}

// decodeArgs reads the invocation arguments. A JSON value that is not an
// array is passed as the single argument.
func decodeArgs(data []byte) ([]any, error) {
	v, err := decodeJSON(data)
	if err != nil {
		return nil, err
	}
	switch args := v.(type) {
	case nil:
		return []any{}, nil
	case []any:
		return args, nil
	default:
		return []any{args}, nil
	}
}
