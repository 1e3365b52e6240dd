// Package client implements the RPC client: service discovery, load
// balancing, and a borrow/return connection pool for one request at a
// time per connection.
//
// Call flow:
//
//	Call("Blob.Copy", args, reply)
//	  → Registry.Discover("Blob")      → get instance list from etcd
//	  → Balancer.Pick(instances)       → select one address
//	  → pool.Checkout(host, port)      → borrow an exclusive connection
//	  → conn.Send / conn.Receive       → round-trip the request
//	  → pool.Checkin or pool.Destroy   → return or replace the connection
package client

import (
	"blobpool/codec"
	"blobpool/loadbalance"
	"blobpool/pool"
	"blobpool/registry"
	"blobpool/transport"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Client manages the full RPC call lifecycle: service discovery →
// load balancing → pooled transport → call.
type Client struct {
	registry registry.Registry
	balancer loadbalance.Balancer
	pool     *pool.ConnectionPool
	timeout  time.Duration
}

// NewClient creates a client with the given registry, load balancer,
// codec type, and per-endpoint connection cap. timeout bounds every
// pool checkout; it does not bound the RPC round-trip itself (that is
// governed by the connection's ReadTimeoutMs).
func NewClient(reg registry.Registry, bal loadbalance.Balancer, codecType byte, maxConnsPerHost int, timeout time.Duration) *Client {
	cfg := pool.DefaultConfig()
	cfg.MaxConnectionsPerHost = maxConnsPerHost

	return &Client{
		registry: reg,
		balancer: bal,
		pool:     pool.New(cfg, transport.NewFactory(codec.CodecType(codecType))),
		timeout:  timeout,
	}
}

// Call performs a synchronous RPC call, picking the target instance via
// the client's load balancer.
//
// Steps:
//  1. Parse serviceMethod ("Blob.Copy" → service="Blob")
//  2. Discover instances from the registry
//  3. Pick an instance using the load balancer
//  4. Dispatch via CallTo
func (c *Client) Call(serviceMethod string, args any, reply any) error {
	serviceName, err := serviceNameOf(serviceMethod)
	if err != nil {
		return err
	}

	instances, err := c.registry.Discover(serviceName)
	if err != nil {
		return err
	}

	instance, err := c.balancer.Pick(instances)
	if err != nil {
		return err
	}

	return c.CallTo(instance.Addr, serviceMethod, args, reply)
}

// CallTo performs a synchronous RPC call against a caller-chosen
// address, bypassing discovery and the load balancer entirely. This is
// the hook a caller uses to route by something the standard
// loadbalance.Balancer interface can't express — e.g. picking the
// target with a loadbalance.ConsistentHashBalancer keyed on a blob ID
// instead of letting the client's own balancer choose.
//
// Steps:
//  1. Checkout a pooled connection to addr
//  2. Send the request and receive the response
//  3. Checkin the connection on success, or Destroy it on transport
//     error so a broken connection is never returned to the pool
func (c *Client) CallTo(addr string, serviceMethod string, args any, reply any) error {
	host, port, err := splitHostPort(addr)
	if err != nil {
		return err
	}

	conn, err := c.pool.Checkout(host, port, c.timeout)
	if err != nil {
		return fmt.Errorf("checkout %s: %w", addr, err)
	}

	pc := conn.(*transport.PooledConn)
	if err := pc.Send(serviceMethod, args); err != nil {
		c.pool.Destroy(conn)
		return fmt.Errorf("send: %w", err)
	}
	if err := pc.Receive(reply); err != nil {
		c.pool.Destroy(conn)
		return fmt.Errorf("receive: %w", err)
	}

	return c.pool.Checkin(conn)
}

func serviceNameOf(serviceMethod string) (string, error) {
	split := strings.Split(serviceMethod, ".")
	if len(split) != 2 {
		return "", fmt.Errorf("invalid serviceMethod format: %v", serviceMethod)
	}
	return split[0], nil
}

// Shutdown tears down every pooled connection this client holds.
func (c *Client) Shutdown() {
	c.pool.Shutdown()
}

func splitHostPort(addr string) (string, pool.Port, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", pool.Port{}, fmt.Errorf("invalid address %q: %w", addr, err)
	}
	portNum, err := strconv.Atoi(portStr)
	if err != nil {
		return "", pool.Port{}, fmt.Errorf("invalid port in %q: %w", addr, err)
	}
	return host, pool.Port{Number: uint16(portNum)}, nil
}
