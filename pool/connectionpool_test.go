package pool

import (
	"errors"
	"testing"
	"time"
)

func newTestConnectionPool(max int) (*ConnectionPool, *fakeFactory) {
	f := &fakeFactory{}
	return New(testConfig(max), f.asFactory()), f
}

func TestConnectionPool_CheckoutCreatesEndpointLazily(t *testing.T) {
	p, f := newTestConnectionPool(1)

	conn, err := p.Checkout("host-a", Port{Number: 10}, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if f.callCount() != 1 {
		t.Fatalf("factory called %d times, want 1", f.callCount())
	}
	if conn.RemoteHost() != "host-a" {
		t.Fatalf("RemoteHost = %q, want host-a", conn.RemoteHost())
	}
}

func TestConnectionPool_RoutesCheckinByRemoteIdentity(t *testing.T) {
	p, _ := newTestConnectionPool(1)

	conn, err := p.Checkout("host-a", Port{Number: 10}, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if err := p.Checkin(conn); err != nil {
		t.Fatalf("Checkin: %v", err)
	}

	conn2, err := p.Checkout("host-a", Port{Number: 10}, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("second Checkout: %v", err)
	}
	if conn2 != conn {
		t.Fatal("expected the same pooled connection back through the registry")
	}
}

// S7 — routing a Connection whose identity has no registered
// EndpointPool raises InvalidArgument without creating one.
func TestConnectionPool_CheckinUnknownHostIsInvalidArgument(t *testing.T) {
	p, f := newTestConnectionPool(1)

	ghost := &fakeConn{host: "ghost", port: Port{Number: 1}}
	err := p.Checkin(ghost)
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
	if f.callCount() != 0 {
		t.Fatalf("factory called %d times, want 0", f.callCount())
	}
	if len(p.endpoints) != 0 {
		t.Fatalf("%d EndpointPools registered, want 0 (no EndpointPool should have been created)", len(p.endpoints))
	}
}

func TestConnectionPool_DestroyUnknownHostIsInvalidArgument(t *testing.T) {
	p, _ := newTestConnectionPool(1)

	ghost := &fakeConn{host: "ghost", port: Port{Number: 1}}
	err := p.Destroy(ghost)
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestConnectionPool_DistinctPortsDoNotAlias(t *testing.T) {
	p, f := newTestConnectionPool(1)

	// "a1" port 2 and "a" port 12 must resolve to distinct endpoints —
	// the key-aliasing risk spec.md flags as a latent bug in the
	// original string-concatenation approach.
	if _, err := p.Checkout("a1", Port{Number: 2}, 50*time.Millisecond); err != nil {
		t.Fatalf("checkout a1:2: %v", err)
	}
	if _, err := p.Checkout("a", Port{Number: 12}, 50*time.Millisecond); err != nil {
		t.Fatalf("checkout a:12: %v", err)
	}

	if f.callCount() != 2 {
		t.Fatalf("factory called %d times, want 2 distinct endpoints", f.callCount())
	}
}

func TestConnectionPool_ShutdownCleansUpAllEndpoints(t *testing.T) {
	p, _ := newTestConnectionPool(2)

	c1, err := p.Checkout("host-a", Port{Number: 1}, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("checkout host-a: %v", err)
	}
	c2, err := p.Checkout("host-b", Port{Number: 1}, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("checkout host-b: %v", err)
	}

	p.Shutdown()

	if !c1.(*fakeConn).disconnected {
		t.Fatal("host-a connection was not disconnected on shutdown")
	}
	if !c2.(*fakeConn).disconnected {
		t.Fatal("host-b connection was not disconnected on shutdown")
	}
}
