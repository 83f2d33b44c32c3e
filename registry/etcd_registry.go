package registry

// etcd is used as the phonebook through which the control plane locates the
// VAB interface of a bridged service:
//
//	Key:   /vab-bridge/{serviceID}/{Addr}
//	Value: JSON-encoded Endpoint
//
// Entries carry a TTL lease, so a crashed bridge disappears on its own.

import (
	"context"
	"encoding/json"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// KeyPrefix is the root of all bridge entries in etcd.
const KeyPrefix = "/vab-bridge/"

// EtcdAnnouncer implements Announcer on etcd v3.
type EtcdAnnouncer struct {
	client *clientv3.Client // thread-safe, shared across goroutines
}

// NewEtcdAnnouncer connects to the given etcd endpoints.
func NewEtcdAnnouncer(endpoints []string, dialTimeout time.Duration) (*EtcdAnnouncer, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
	})
	if err != nil {
		return nil, err
	}
	return &EtcdAnnouncer{client: c}, nil
}

// Close releases the etcd client.
func (r *EtcdAnnouncer) Close() error {
	return r.client.Close()
}

func endpointKey(serviceID, addr string) string {
	return KeyPrefix + serviceID + "/" + addr
}

// Register publishes endpoint under serviceID with a TTL lease that is kept
// alive in the background.
// leaseID stays local so one announcer can serve several servers.
func (r *EtcdAnnouncer) Register(serviceID string, endpoint Endpoint, ttl int64) error {
	ctx := context.TODO()

	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return err
	}

	val, err := json.Marshal(endpoint)
	if err != nil {
		return err
	}

	_, err = r.client.Put(ctx, endpointKey(serviceID, endpoint.Addr), string(val), clientv3.WithLease(lease.ID))
	if err != nil {
		return err
	}

	ch, err := r.client.KeepAlive(ctx, lease.ID)
	if err != nil {
		return err
	}

	// drain keepalive responses so the channel never fills up
	go func() {
		for range ch {
		}
	}()
	return nil
}

// Deregister removes one endpoint. Called during shutdown before the listener closes.
func (r *EtcdAnnouncer) Deregister(serviceID string, addr string) error {
	_, err := r.client.Delete(context.TODO(), endpointKey(serviceID, addr))
	return err
}

// Watch re-reads the endpoint list of serviceID after every change under its
// prefix. The goroutine ends when ctx is done.
func (r *EtcdAnnouncer) Watch(ctx context.Context, serviceID string) <-chan []Endpoint {
	ch := make(chan []Endpoint, 1)
	prefix := KeyPrefix + serviceID + "/"

	go func() {
		defer close(ch)
		watchChan := r.client.Watch(ctx, prefix, clientv3.WithPrefix())
		for range watchChan {
			// re-fetching is simpler than applying individual events
			endpoints, err := r.Discover(serviceID)
			if err != nil {
				continue
			}
			SendLatest(ch, endpoints)
		}
	}()

	return ch
}

// Discover returns the endpoints currently published for serviceID.
func (r *EtcdAnnouncer) Discover(serviceID string) ([]Endpoint, error) {
	resp, err := r.client.Get(context.TODO(), KeyPrefix+serviceID+"/", clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	endpoints := make([]Endpoint, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var ep Endpoint
		if err := json.Unmarshal(kv.Value, &ep); err != nil {
			continue // skip malformed entries
		}
		endpoints = append(endpoints, ep)
	}
	return endpoints, nil
}
