package loadbalance

import (
	"sync/atomic"

	"vab-bridge/registry"
)

// RoundRobinBalancer distributes requests evenly across all endpoints in order.
// Uses an atomic counter for lock-free, goroutine-safe operation.
type RoundRobinBalancer struct {
	counter atomic.Uint64
}

// Pick selects the next endpoint in round-robin order.
func (b *RoundRobinBalancer) Pick(endpoints []registry.Endpoint) (*registry.Endpoint, error) {
	if len(endpoints) == 0 {
		return nil, ErrNoEndpoints
	}
	index := (b.counter.Add(1) - 1) % uint64(len(endpoints))
	return &endpoints[index], nil
}

func (b *RoundRobinBalancer) Name() string {
	return "RoundRobin"
}

// FirstBalancer always picks the first endpoint. Useful when a single bridge
// is expected and a stable choice matters more than spreading load.
type FirstBalancer struct{}

func (FirstBalancer) Pick(endpoints []registry.Endpoint) (*registry.Endpoint, error) {
	if len(endpoints) == 0 {
		return nil, ErrNoEndpoints
	}
	return &endpoints[0], nil
}

func (FirstBalancer) Name() string {
	return "First"
}
