package pool

// Connection is the abstract capability an EndpointPool hands out. The
// pool never inspects what travels over it — only that it can be
// connected, disconnected, and identified by remote host/port so
// Checkin/Destroy can be routed back to the owning EndpointPool.
type Connection interface {
	// Connect establishes the transport. Called once, by the pool,
	// before the Connection is ever handed to a caller.
	Connect() error

	// Disconnect releases the transport. The pool will not call this
	// twice on the same instance.
	Disconnect() error

	// RemoteHost returns the stable host identity of the endpoint
	// this Connection is attached to.
	RemoteHost() string

	// RemotePort returns the stable port identity of the endpoint
	// this Connection is attached to.
	RemotePort() Port
}

// ConnectionFactory constructs a new, not-yet-connected Connection for
// the given endpoint. EndpointPool calls Connect on the result before
// handing it to a caller or enqueuing it as available.
type ConnectionFactory func(host string, port Port, cfg Config) Connection
