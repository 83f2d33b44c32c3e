// Package loadbalance picks one VAB endpoint among those announced for a
// service id, e.g. when several bridges serve the same service.
package loadbalance

import (
	"errors"

	"vab-bridge/registry"
)

// ErrNoEndpoints is returned by Pick for an empty endpoint list.
var ErrNoEndpoints = errors.New("loadbalance: no endpoints available")

// Balancer is the interface for load balancing strategies.
// The client calls Pick() before each request to select a target endpoint.
type Balancer interface {
	// Pick selects one endpoint from the available list.
	// Called on every request, must be goroutine-safe.
	Pick(endpoints []registry.Endpoint) (*registry.Endpoint, error)

	// Name returns the strategy name (for logging/debugging).
	Name() string
}
