package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"vab-bridge/metrics"
	"vab-bridge/middleware"
	"vab-bridge/protocol"
)

// maxHTTPBody bounds request bodies on the HTTP binding.
const maxHTTPBody = 16 << 20

// HTTPServer binds the VAB handler chain to HTTP:
//
//	GET  /<path>  read a property
//	PUT  /<path>  write a property
//	POST /<path>  invoke an operation with a JSON argument array
type HTTPServer struct {
	svr    *Server
	router *mux.Router
	server *http.Server
}

// NewHTTPServer builds the router on top of svr's middleware chain. The chain
// is captured here, so register middlewares on svr first. withMetrics also
// serves GET /metrics.
func NewHTTPServer(svr *Server, withMetrics bool) *HTTPServer {
	h := &HTTPServer{svr: svr, router: mux.NewRouter()}
	h.server = &http.Server{
		Handler:           h.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	handler := svr.Handler()

	if withMetrics {
		h.router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	}
	h.router.PathPrefix("/").Handler(h.route(handler, protocol.OpGet)).Methods(http.MethodGet)
	h.router.PathPrefix("/").Handler(h.route(handler, protocol.OpSet)).Methods(http.MethodPut)
	h.router.PathPrefix("/").Handler(h.route(handler, protocol.OpInvoke)).Methods(http.MethodPost)
	return h
}

// Router returns the underlying router, e.g. for httptest.
func (h *HTTPServer) Router() *mux.Router {
	return h.router
}

// Serve serves on listener until Shutdown.
func (h *HTTPServer) Serve(listener net.Listener) error {
	h.svr.logger.Info("vab http binding listening", zap.Stringer("addr", listener.Addr()))
	err := h.server.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests and waits for the ones in flight.
func (h *HTTPServer) Shutdown(ctx context.Context) error {
	return h.server.Shutdown(ctx)
}

func (h *HTTPServer) route(handler middleware.HandlerFunc, op protocol.Opcode) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := &protocol.Request{Op: op, Path: r.URL.Path}
		if op != protocol.OpGet {
			body, err := io.ReadAll(io.LimitReader(r.Body, maxHTTPBody))
			if err != nil {
				writeResponse(w, protocol.Failure(protocol.ResultBadRequest, err.Error()))
				return
			}
			if op == protocol.OpInvoke {
				req.Args = body
			} else {
				req.Value = body
			}
		}
		writeResponse(w, handler(r.Context(), req))
	})
}

var statusCodes = map[protocol.ResultCode]int{
	protocol.ResultOK:          http.StatusOK,
	protocol.ResultError:       http.StatusInternalServerError,
	protocol.ResultNotFound:    http.StatusNotFound,
	protocol.ResultBadRequest:  http.StatusBadRequest,
	protocol.ResultUnsupported: http.StatusMethodNotAllowed,
}

type errorBody struct {
	Code  string          `json:"code"`
	Error json.RawMessage `json:"error"`
}

func writeResponse(w http.ResponseWriter, resp *protocol.Response) {
	status, ok := statusCodes[resp.Code]
	if !ok {
		status = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	if resp.Code == protocol.ResultOK {
		w.WriteHeader(status)
		if len(resp.JSON) > 0 {
			w.Write(resp.JSON)
		}
		return
	}

	msg := json.RawMessage(resp.JSON)
	if len(msg) == 0 {
		msg = json.RawMessage(`""`)
	}
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorBody{Code: resp.Code.String(), Error: msg})
}
