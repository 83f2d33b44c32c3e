package client

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vab-bridge/loadbalance"
	"vab-bridge/middleware"
	"vab-bridge/protocol"
	"vab-bridge/registry"
	"vab-bridge/server"
	"vab-bridge/service"
)

func startServer(t *testing.T) string {
	t.Helper()
	ctx := registry.NewContext()
	svc := service.NewBase(service.Record{
		ID:      "42",
		Name:    "Echo",
		Version: service.MustParseVersion("0.2.0"),
		Kind:    service.SinkService,
	})
	require.NoError(t, ctx.RegisterService(svc))
	require.NoError(t, registry.MapService(ctx.Operations, svc))

	var mu sync.Mutex
	label := "initial"
	require.NoError(t, ctx.Operations.DefineProperty("label",
		func() (any, error) {
			mu.Lock()
			defer mu.Unlock()
			return label, nil
		},
		func(v any) error {
			mu.Lock()
			defer mu.Unlock()
			label, _ = v.(string)
			return nil
		}))
	require.NoError(t, ctx.Operations.DefineOperation("concat", func(args []any) (any, error) {
		parts := make([]string, 0, len(args))
		for _, a := range args {
			s, _ := a.(string)
			parts = append(parts, s)
		}
		return strings.Join(parts, ""), nil
	}))

	svr := server.NewServer(ctx, zap.NewNop())
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go svr.ServeListener(listener, "", nil)
	t.Cleanup(func() {
		svr.Shutdown(time.Second)
		listener.Close()
	})
	return listener.Addr().String()
}

func TestClientGetSet(t *testing.T) {
	c := NewClient(startServer(t), zap.NewNop())
	ctx := context.Background()

	var label string
	require.NoError(t, c.Get(ctx, "status/label", &label))
	assert.Equal(t, "initial", label)

	require.NoError(t, c.Set(ctx, "status/label", "changed"))
	require.NoError(t, c.Get(ctx, "status/label", &label))
	assert.Equal(t, "changed", label)

	var name string
	require.NoError(t, c.Get(ctx, "status/service_42_name", &name))
	assert.Equal(t, "Echo", name)
}

func TestClientInvoke(t *testing.T) {
	c := NewClient(startServer(t), zap.NewNop())
	ctx := context.Background()

	var out string
	require.NoError(t, c.Invoke(ctx, "operations/service/concat", &out, "a", "b", "c"))
	assert.Equal(t, "abc", out)

	require.NoError(t, c.Invoke(ctx, "operations/service/service_42_setState", nil, "RUNNING"))
	require.NoError(t, c.Invoke(ctx, "operations/service/service_42_passivate", nil))

	var state string
	require.NoError(t, c.Get(ctx, "status/service_42_state", &state))
	assert.Equal(t, "PASSIVATED", state)
}

func TestClientNotFound(t *testing.T) {
	c := NewClient(startServer(t), zap.NewNop())

	err := c.Get(context.Background(), "status/nothing", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, registry.ErrNotFound))

	var respErr *ResponseError
	require.True(t, errors.As(err, &respErr))
	assert.Contains(t, respErr.Message, "status/nothing")
}

func TestClientRetryGivesUp(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	listener.Close()

	calls := 0
	c := NewClient(addr, zap.NewNop())
	c.Use(middleware.RetryMiddleware(2, time.Millisecond, zap.NewNop()))
	c.Use(func(next middleware.HandlerFunc) middleware.HandlerFunc {
		return func(ctx context.Context, req *protocol.Request) *protocol.Response {
			calls++
			return next(ctx, req)
		}
	})

	err = c.Get(context.Background(), "status/label", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, 3, calls)
}

type staticAnnouncer struct {
	endpoints []registry.Endpoint
}

func (s *staticAnnouncer) Register(string, registry.Endpoint, int64) error { return nil }
func (s *staticAnnouncer) Deregister(string, string) error                 { return nil }
func (s *staticAnnouncer) Discover(string) ([]registry.Endpoint, error) {
	return s.endpoints, nil
}
func (s *staticAnnouncer) Watch(context.Context, string) <-chan []registry.Endpoint {
	return nil
}

func TestDiscoveryClient(t *testing.T) {
	addr := startServer(t)
	ann := &staticAnnouncer{endpoints: []registry.Endpoint{
		{Addr: "127.0.0.1:1", Protocol: "vab-http"},
		{Addr: addr, Protocol: "vab-tcp", Version: "0.2.0"},
	}}
	c := NewDiscoveryClient(ann, "42", loadbalance.FirstBalancer{}, zap.NewNop())

	var version string
	require.NoError(t, c.Get(context.Background(), "status/service_42_version", &version))
	assert.Equal(t, "0.2.0", version)
}

func TestDiscoveryClientNoEndpoints(t *testing.T) {
	c := NewDiscoveryClient(&staticAnnouncer{}, "42", nil, zap.NewNop())

	err := c.Get(context.Background(), "status/service_42_version", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no endpoints")
}

type watchingAnnouncer struct {
	staticAnnouncer

	mu        sync.Mutex
	discovers int
	updates   chan []registry.Endpoint
	ctx       context.Context
}

func (w *watchingAnnouncer) Discover(serviceID string) ([]registry.Endpoint, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.discovers++
	return w.endpoints, nil
}

func (w *watchingAnnouncer) Watch(ctx context.Context, serviceID string) <-chan []registry.Endpoint {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ctx = ctx
	w.updates = make(chan []registry.Endpoint, 1)
	out := make(chan []registry.Endpoint)
	go func() {
		defer close(out)
		for {
			select {
			case eps := <-w.updates:
				out <- eps
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func TestDiscoveryClientWatch(t *testing.T) {
	addr := startServer(t)
	ann := &watchingAnnouncer{staticAnnouncer: staticAnnouncer{endpoints: []registry.Endpoint{
		{Addr: addr, Protocol: "vab-tcp"},
	}}}
	c := NewDiscoveryClient(ann, "42", nil, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, c.Get(ctx, "status/service_42_name", nil))
	require.NoError(t, c.Get(ctx, "status/service_42_name", nil))
	ann.mu.Lock()
	assert.Equal(t, 1, ann.discovers)
	ann.mu.Unlock()

	// the endpoint goes away
	registry.SendLatest(ann.updates, []registry.Endpoint{})
	require.Eventually(t, func() bool {
		err := c.Get(ctx, "status/service_42_name", nil)
		return err != nil && strings.Contains(err.Error(), "no endpoints")
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, c.Close())
	assert.Error(t, ann.ctx.Err())
}
