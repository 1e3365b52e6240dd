package pool

import (
	"fmt"
	"sync"
	"time"
)

// endpointKey identifies one (host, port) endpoint. Using a comparable
// struct instead of a delimiter-free string concatenation (the latent
// bug the original source carried — host "a1" port 2 would otherwise
// alias host "a" port 12) means Go's map equality does the right thing
// for free.
type endpointKey struct {
	host string
	port Port
}

// ConnectionPool is the top-level registry: one EndpointPool per
// (host, port), created lazily on first use. It delegates
// checkout/checkin/destroy to the right EndpointPool by the
// Connection's own remote identity, and tears every EndpointPool down
// on Shutdown.
type ConnectionPool struct {
	cfg     Config
	factory ConnectionFactory

	mu        sync.Mutex
	endpoints map[endpointKey]*EndpointPool
}

// New creates a ConnectionPool. factory is called by every EndpointPool
// this registry lazily creates to construct new Connections.
func New(cfg Config, factory ConnectionFactory) *ConnectionPool {
	return &ConnectionPool{
		cfg:       cfg,
		factory:   factory,
		endpoints: make(map[endpointKey]*EndpointPool),
	}
}

// Start is an idempotent lifecycle hook. It never opens a connection —
// EndpointPools are created lazily on first Checkout.
func (p *ConnectionPool) Start() {}

// Checkout resolves the EndpointPool for (host, port), creating it on
// first use, and delegates to its Checkout.
func (p *ConnectionPool) Checkout(host string, port Port, timeout time.Duration) (Connection, error) {
	ep := p.resolve(host, port)
	return ep.Checkout(timeout)
}

// resolve returns the EndpointPool for (host, port), creating it under
// the single top-level mutex if this is the first request for that
// endpoint. The lookup and the creation share one critical section:
// every call takes the mutex once, and there is no lock-free first
// check for an endpoint that is already registered.
func (p *ConnectionPool) resolve(host string, port Port) *EndpointPool {
	key := endpointKey{host: host, port: port}

	p.mu.Lock()
	defer p.mu.Unlock()

	ep, ok := p.endpoints[key]
	if !ok {
		ep = newEndpointPool(host, port, p.cfg, p.factory)
		p.endpoints[key] = ep
	}
	return ep
}

// Checkin routes conn to the EndpointPool matching its remote identity
// and checks it in there. If no EndpointPool has ever been created for
// that (host, port), it raises ErrInvalidArgument — nothing is created
// as a side effect of Checkin.
func (p *ConnectionPool) Checkin(conn Connection) error {
	ep, err := p.route(conn)
	if err != nil {
		return err
	}
	return ep.Checkin(conn)
}

// Destroy routes conn to the EndpointPool matching its remote identity
// and destroys it there.
func (p *ConnectionPool) Destroy(conn Connection) error {
	ep, err := p.route(conn)
	if err != nil {
		return err
	}
	return ep.Destroy(conn)
}

func (p *ConnectionPool) route(conn Connection) (*EndpointPool, error) {
	key := endpointKey{host: conn.RemoteHost(), port: conn.RemotePort()}

	p.mu.Lock()
	ep, ok := p.endpoints[key]
	p.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: no pool registered for %s:%d", ErrInvalidArgument, key.host, key.port.Number)
	}
	return ep, nil
}

// Shutdown invokes cleanup on every registered EndpointPool. Checkouts
// after Shutdown are not guaranteed to succeed: each cleaned-up
// EndpointPool's closed flag makes further Checkout calls to its
// endpoint fail fast with ErrAcquisitionTimeout. An endpoint first
// requested after Shutdown gets a fresh EndpointPool, which works
// normally.
func (p *ConnectionPool) Shutdown() {
	p.mu.Lock()
	endpoints := make([]*EndpointPool, 0, len(p.endpoints))
	for _, ep := range p.endpoints {
		endpoints = append(endpoints, ep)
	}
	p.mu.Unlock()

	for _, ep := range endpoints {
		ep.cleanup()
	}
}
