package registry

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"
)

// etcdEndpoints skips the test unless ETCD_ENDPOINTS names a reachable cluster.
func etcdEndpoints(t *testing.T) []string {
	t.Helper()
	env := os.Getenv("ETCD_ENDPOINTS")
	if env == "" {
		t.Skip("ETCD_ENDPOINTS not set")
	}
	return strings.Split(env, ",")
}

func TestRegisterAndDiscover(t *testing.T) {
	reg, err := NewEtcdAnnouncer(etcdEndpoints(t), 2*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer reg.Close()

	ep1 := Endpoint{Addr: "127.0.0.1:9001", Protocol: "vab-tcp", Version: "1.0"}
	ep2 := Endpoint{Addr: "127.0.0.1:9002", Protocol: "vab-http", Version: "1.0"}

	if err := reg.Register("svc-test", ep1, 10); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register("svc-test", ep2, 10); err != nil {
		t.Fatal(err)
	}

	endpoints, err := reg.Discover("svc-test")
	if err != nil {
		t.Fatal(err)
	}
	if len(endpoints) != 2 {
		t.Fatalf("expect 2 endpoints, got %d", len(endpoints))
	}

	if err := reg.Deregister("svc-test", ep1.Addr); err != nil {
		t.Fatal(err)
	}

	time.Sleep(100 * time.Millisecond)

	endpoints, err = reg.Discover("svc-test")
	if err != nil {
		t.Fatal(err)
	}
	if len(endpoints) != 1 || endpoints[0] != ep2 {
		t.Fatalf("expect only %v after deregister, got %v", ep2, endpoints)
	}

	reg.Deregister("svc-test", ep2.Addr)
}

func TestWatch(t *testing.T) {
	reg, err := NewEtcdAnnouncer(etcdEndpoints(t), 2*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer reg.Close()

	ctx, cancel := context.WithCancel(context.Background())
	updates := reg.Watch(ctx, "svc-watch")
	time.Sleep(100 * time.Millisecond)

	ep := Endpoint{Addr: "127.0.0.1:9003", Protocol: "vab-tcp", Version: "1.0"}
	if err := reg.Register("svc-watch", ep, 10); err != nil {
		t.Fatal(err)
	}
	defer reg.Deregister("svc-watch", ep.Addr)

	select {
	case eps := <-updates:
		if len(eps) != 1 || eps[0] != ep {
			t.Fatalf("expect [%v], got %v", ep, eps)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no update after register")
	}

	cancel()
	for range updates {
	}
}
