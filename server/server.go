// Package server exposes the operation registry over VAB: a length-prefixed
// binary protocol on TCP and a JSON binding on HTTP.
//
// Request processing pipeline (TCP):
//
//	Accept conn → handleConn (served before the next Accept)
//	  → ReadMessage → DecodeRequest → Recovery → Middleware Chain → businessHandler
//	    → EncodeResponse → WriteMessage → close
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"vab-bridge/logging"
	"vab-bridge/middleware"
	"vab-bridge/protocol"
	"vab-bridge/registry"
)

// DefaultAnnounceTTL is the etcd lease TTL in seconds; KeepAlive renews it.
const DefaultAnnounceTTL = 10

// Server answers VAB requests against the operations of a registry.Context.
type Server struct {
	ctx           *registry.Context
	logger        *zap.Logger
	listener      net.Listener
	wg            sync.WaitGroup          // in-flight connections
	shutdown      atomic.Bool             // suppresses the Accept error caused by Shutdown
	middlewares   []middleware.Middleware // applied in the order added
	handler       middleware.HandlerFunc  // middleware(...(businessHandler))
	announcer     registry.Announcer      // nil without discovery
	advertiseAddr string                  // routable address announced in etcd
	announced     []string                // service ids registered with the announcer
	mu            sync.Mutex

	// MaxMessageSize bounds the size of a single request.
	MaxMessageSize int
	// AnnounceTTL is the lease TTL used when announcing.
	AnnounceTTL int64
}

// NewServer creates a server on the operations of ctx.
func NewServer(ctx *registry.Context, logger *zap.Logger) *Server {
	return &Server{
		ctx:            ctx,
		logger:         logging.OrNop(logger),
		MaxMessageSize: protocol.DefaultMaxMessageSize,
		AnnounceTTL:    DefaultAnnounceTTL,
	}
}

// Use registers a middleware. Middlewares are applied in the order they are added.
func (svr *Server) Use(mw middleware.Middleware) {
	svr.middlewares = append(svr.middlewares, mw)
}

// Handler returns the request handler with all middlewares applied. The HTTP
// binding serves through the same chain. Panic recovery is always outermost.
func (svr *Server) Handler() middleware.HandlerFunc {
	chain := append([]middleware.Middleware{middleware.RecoveryMiddleware(svr.logger)}, svr.middlewares...)
	return middleware.Chain(chain...)(svr.businessHandler)
}

// Serve listens on address and serves until Shutdown.
//
// advertiseAddr is the address published through announcer, which may be nil
// to skip discovery. It differs from the listen address because ":9000" is not
// routable from the control plane.
func (svr *Server) Serve(network, address, advertiseAddr string, announcer registry.Announcer) error {
	listener, err := net.Listen(network, address)
	if err != nil {
		return err
	}
	return svr.ServeListener(listener, advertiseAddr, announcer)
}

// ServeListener serves on an existing listener until Shutdown.
func (svr *Server) ServeListener(listener net.Listener, advertiseAddr string, announcer registry.Announcer) error {
	svr.mu.Lock()
	svr.listener = listener
	svr.handler = svr.Handler()
	svr.mu.Unlock()
	if svr.shutdown.Load() {
		return listener.Close()
	}

	if announcer != nil {
		svr.announce(advertiseAddr, announcer)
	}
	svr.logger.Info("vab server listening", zap.Stringer("addr", listener.Addr()))

	for {
		conn, err := listener.Accept()
		if err != nil {
			if svr.shutdown.Load() {
				return nil
			}
			return err
		}
		svr.handleConn(conn)
	}
}

// Addr returns the listen address, or nil before serving.
func (svr *Server) Addr() net.Addr {
	svr.mu.Lock()
	defer svr.mu.Unlock()
	if svr.listener == nil {
		return nil
	}
	return svr.listener.Addr()
}

func (svr *Server) announce(advertiseAddr string, announcer registry.Announcer) {
	svr.mu.Lock()
	defer svr.mu.Unlock()
	svr.announcer = announcer
	svr.advertiseAddr = advertiseAddr
	for _, svc := range svr.ctx.Services() {
		ep := registry.Endpoint{Addr: advertiseAddr, Protocol: "vab-tcp", Version: svc.Version().String()}
		if err := announcer.Register(svc.ID(), ep, svr.AnnounceTTL); err != nil {
			svr.logger.Warn("announce failed", zap.String("service", svc.ID()), zap.Error(err))
			continue
		}
		svr.announced = append(svr.announced, svc.ID())
	}
}

// handleConn serves one request on conn and closes it. A framing error ends
// only this connection; the server answers BAD_REQUEST first when it can.
func (svr *Server) handleConn(conn net.Conn) {
	svr.wg.Add(1)
	defer svr.wg.Done()
	defer conn.Close()

	body, err := protocol.ReadMessage(conn, svr.MaxMessageSize)
	if err != nil {
		if !errors.Is(err, io.EOF) {
			svr.logger.Warn("read vab request", zap.Stringer("remote", conn.RemoteAddr()), zap.Error(err))
		}
		return
	}

	resp := svr.Handle(context.Background(), body)
	if err := protocol.WriteMessage(conn, protocol.EncodeResponse(resp)); err != nil {
		svr.logger.Warn("write vab response", zap.Stringer("remote", conn.RemoteAddr()), zap.Error(err))
	}
}

// Handle decodes one request body and runs it through the handler chain.
func (svr *Server) Handle(ctx context.Context, body []byte) *protocol.Response {
	req, err := protocol.DecodeRequest(body)
	if err != nil {
		svr.logger.Warn("decode vab request", zap.Error(err))
		return protocol.Failure(protocol.ResultBadRequest, err.Error())
	}
	handler := svr.handler
	if handler == nil {
		handler = svr.Handler()
	}
	return handler(ctx, req)
}

// Shutdown stops the server:
//  1. Deregister from etcd so the control plane stops routing here
//  2. Set the shutdown flag, then close the listener
//  3. Wait for the connection in flight, up to timeout
func (svr *Server) Shutdown(timeout time.Duration) error {
	svr.mu.Lock()
	for _, id := range svr.announced {
		if err := svr.announcer.Deregister(id, svr.advertiseAddr); err != nil {
			svr.logger.Warn("deregister failed", zap.String("service", id), zap.Error(err))
		}
	}
	svr.announced = nil
	listener := svr.listener
	svr.mu.Unlock()

	svr.shutdown.Store(true)
	if listener != nil {
		listener.Close()
	}

	done := make(chan struct{})
	go func() {
		svr.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("timeout waiting for ongoing requests to finish")
	}
}
