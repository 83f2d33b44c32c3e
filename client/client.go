// Package client calls the VAB interface of a bridge over TCP. It is what the
// control plane side uses, and what the tests use to drive a server.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"vab-bridge/loadbalance"
	"vab-bridge/logging"
	"vab-bridge/middleware"
	"vab-bridge/protocol"
	"vab-bridge/registry"
)

// ResponseError is a non-OK VAB response.
type ResponseError struct {
	Code    protocol.ResultCode
	Message string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("vab %s: %s", e.Code, e.Message)
}

// Is lets errors.Is match NOT_FOUND responses against registry.ErrNotFound.
func (e *ResponseError) Is(target error) bool {
	return e.Code == protocol.ResultNotFound && target == registry.ErrNotFound
}

// Client sends one request per connection, the way the server serves them.
type Client struct {
	addr      string
	announcer registry.Announcer
	serviceID string
	balancer  loadbalance.Balancer
	logger    *zap.Logger

	middlewares []middleware.Middleware

	mu       sync.Mutex
	cached   []registry.Endpoint // latest list from the watch
	watching bool
	closed   bool
	cancel   context.CancelFunc

	// DialTimeout bounds connection setup. Zero means no limit.
	DialTimeout time.Duration
	// MaxMessageSize bounds the size of a single response.
	MaxMessageSize int
}

// NewClient creates a client for a fixed address.
func NewClient(addr string, logger *zap.Logger) *Client {
	return &Client{
		addr:           addr,
		logger:         logging.OrNop(logger),
		DialTimeout:    5 * time.Second,
		MaxMessageSize: protocol.DefaultMaxMessageSize,
	}
}

// NewDiscoveryClient creates a client that resolves the endpoints of
// serviceID through announcer and lets bal choose one per request. The list
// is read once and then kept current by watching the announcer; announcers
// that cannot watch are asked before every request. Close stops the watch.
func NewDiscoveryClient(announcer registry.Announcer, serviceID string, bal loadbalance.Balancer, logger *zap.Logger) *Client {
	c := NewClient("", logger)
	c.announcer = announcer
	c.serviceID = serviceID
	c.balancer = bal
	if c.balancer == nil {
		c.balancer = &loadbalance.RoundRobinBalancer{}
	}
	return c
}

// Close stops watching the announcer. The client still works afterwards,
// asking the announcer before every request.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.watching = false
	c.cached = nil
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	return nil
}

// Use registers a middleware around the round trip.
func (c *Client) Use(mw middleware.Middleware) {
	c.middlewares = append(c.middlewares, mw)
}

// Do sends req and returns the raw response. Transport failures are reported
// as ERROR responses so that middlewares see them uniformly.
func (c *Client) Do(ctx context.Context, req *protocol.Request) *protocol.Response {
	return middleware.Chain(c.middlewares...)(c.roundTrip)(ctx, req)
}

// Get reads the property at path into out. out may be nil.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.call(ctx, &protocol.Request{Op: protocol.OpGet, Path: path}, out)
}

// Set writes value to the property at path.
func (c *Client) Set(ctx context.Context, path string, value any) error {
	body, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode value: %w", err)
	}
	return c.call(ctx, &protocol.Request{Op: protocol.OpSet, Path: path, Value: body}, nil)
}

// Invoke calls the operation at path with args and decodes its result into
// out, which may be nil.
func (c *Client) Invoke(ctx context.Context, path string, out any, args ...any) error {
	if args == nil {
		args = []any{}
	}
	body, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode args: %w", err)
	}
	return c.call(ctx, &protocol.Request{Op: protocol.OpInvoke, Path: path, Args: body}, out)
}

func (c *Client) call(ctx context.Context, req *protocol.Request, out any) error {
	resp := c.Do(ctx, req)
	if resp.Code != protocol.ResultOK {
		var msg string
		if err := json.Unmarshal(resp.JSON, &msg); err != nil {
			msg = string(resp.JSON)
		}
		return &ResponseError{Code: resp.Code, Message: msg}
	}
	if out == nil || len(resp.JSON) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.JSON, out); err != nil {
		return fmt.Errorf("decode result of %s: %w", req.Path, err)
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, req *protocol.Request) *protocol.Response {
	addr, err := c.target()
	if err != nil {
		return protocol.Failure(protocol.ResultError, err.Error())
	}

	dialer := net.Dialer{Timeout: c.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return protocol.Failure(protocol.ResultError, err.Error())
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	if err := protocol.WriteMessage(conn, protocol.EncodeRequest(req)); err != nil {
		return protocol.Failure(protocol.ResultError, err.Error())
	}
	body, err := protocol.ReadMessage(conn, c.MaxMessageSize)
	if err != nil {
		return protocol.Failure(protocol.ResultError, "read response: "+err.Error())
	}
	resp, err := protocol.DecodeResponse(body)
	if err != nil {
		return protocol.Failure(protocol.ResultError, err.Error())
	}
	return resp
}

func (c *Client) target() (string, error) {
	if c.announcer == nil {
		if c.addr == "" {
			return "", errors.New("client: no address")
		}
		return c.addr, nil
	}

	endpoints, err := c.endpoints()
	if err != nil {
		return "", fmt.Errorf("discover %s: %w", c.serviceID, err)
	}
	tcp := endpoints[:0:0]
	for _, ep := range endpoints {
		if ep.Protocol == "" || ep.Protocol == "vab-tcp" {
			tcp = append(tcp, ep)
		}
	}
	ep, err := c.balancer.Pick(tcp)
	if err != nil {
		return "", fmt.Errorf("service %s: %w", c.serviceID, err)
	}
	c.logger.Debug("picked endpoint",
		zap.String("service", c.serviceID),
		zap.String("addr", ep.Addr),
		zap.String("balancer", c.balancer.Name()),
	)
	return ep.Addr, nil
}

// endpoints returns the watched list, starting the watch on first use.
func (c *Client) endpoints() ([]registry.Endpoint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.watching {
		return c.cached, nil
	}

	var updates <-chan []registry.Endpoint
	var cancel context.CancelFunc
	if !c.closed {
		// watch before reading so no change falls in between
		var ctx context.Context
		ctx, cancel = context.WithCancel(context.Background())
		updates = c.announcer.Watch(ctx, c.serviceID)
		if updates == nil {
			cancel()
		}
	}

	endpoints, err := c.announcer.Discover(c.serviceID)
	if err != nil {
		if updates != nil {
			cancel()
		}
		return nil, err
	}
	if updates != nil {
		c.cached = endpoints
		c.watching = true
		c.cancel = cancel
		go c.watch(updates)
	}
	return endpoints, nil
}

func (c *Client) watch(updates <-chan []registry.Endpoint) {
	for eps := range updates {
		c.mu.Lock()
		if c.watching {
			c.cached = eps
		}
		c.mu.Unlock()
		c.logger.Debug("endpoints changed", zap.String("service", c.serviceID), zap.Int("count", len(eps)))
	}
	c.mu.Lock()
	c.watching = false
	c.cached = nil
	c.mu.Unlock()
}
