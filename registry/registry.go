// Package registry holds the directories the transports resolve against:
// VAB paths to properties and operations, type tags to serializers, service
// ids to services and transformers. It also announces VAB endpoints in etcd
// so the control plane can find them.
package registry

import (
	"context"
	"errors"
)

var (
	ErrNotFound       = errors.New("registry: resource not found")
	ErrUnknownService = errors.New("registry: unknown service")
	ErrUnknownType    = errors.New("registry: unknown type")
	ErrDuplicate      = errors.New("registry: already registered")
	ErrInvalidName    = errors.New("registry: invalid name")
)

// Endpoint is where the VAB interface of a service can be reached.
type Endpoint struct {
	Addr     string // host:port, routable from the control plane
	Protocol string // "vab-tcp" or "vab-http"
	Version  string // service version, informational
}

// Announcer publishes endpoints per service id.
type Announcer interface {
	Register(serviceID string, endpoint Endpoint, ttl int64) error
	Deregister(serviceID string, addr string) error
	Discover(serviceID string) ([]Endpoint, error)
	// Watch sends the full endpoint list after every change until ctx is
	// done, then closes the channel. Only the latest list is kept for a slow
	// reader. A nil channel means the announcer cannot watch.
	Watch(ctx context.Context, serviceID string) <-chan []Endpoint
}

// SendLatest puts eps on ch, a channel with buffer 1 and a single sender,
// replacing a list the reader has not taken yet. It never blocks.
func SendLatest(ch chan []Endpoint, eps []Endpoint) {
	select {
	case ch <- eps:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	ch <- eps
}
