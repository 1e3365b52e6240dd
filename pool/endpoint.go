package pool

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// EndpointPool owns every live Connection to one (host, port) endpoint
// and enforces a hard cap on how many may exist simultaneously.
//
// Two queues track Connection state: available (ready to hand out) is
// a FIFO buffered channel of capacity cfg.MaxConnectionsPerHost, and
// active (currently checked out) is a slice guarded by activeMu with
// no fixed capacity of its own — it only ever holds Connections taken
// from available, so it stays within count.
//
// Concurrency: lifecycle is a sync.RWMutex. checkout/checkin/destroy
// take the read side, so many can run at once; cleanup takes the write
// side and waits for all of them to drain before tearing anything
// down. constructMu nests inside the read side and guards count plus
// Connection creation — it serializes only creation, never the
// blocking wait in checkout.
type EndpointPool struct {
	host    string
	port    Port
	cfg     Config
	factory ConnectionFactory

	lifecycle sync.RWMutex
	closed    atomic.Bool

	available chan Connection

	activeMu sync.Mutex
	active   []Connection

	constructMu sync.Mutex
	count       int
}

func newEndpointPool(host string, port Port, cfg Config, factory ConnectionFactory) *EndpointPool {
	return &EndpointPool{
		host:      host,
		port:      port,
		cfg:       cfg,
		factory:   factory,
		available: make(chan Connection, cfg.MaxConnectionsPerHost),
	}
}

// Count reports the number of live Connections this pool currently
// owns (available + active + any in-flight construction).
func (e *EndpointPool) Count() int {
	e.constructMu.Lock()
	defer e.constructMu.Unlock()
	return e.count
}

// Checkout returns a connected Connection, blocking up to timeout if
// none is immediately available and the endpoint is at capacity.
//
// The algorithm runs in three stages so that no coarse lock is held
// while blocked — a concurrent Checkin can always unblock a waiter:
//
//  1. Fast path: if the endpoint is at capacity, or a Connection is
//     already sitting in the available queue, wait on that queue for
//     up to the full timeout.
//  2. Slow path: otherwise, under constructMu, re-check the cap (it
//     may have been reached by a racing caller) and, if still below,
//     construct and connect a new Connection and enqueue it.
//  3. Drain: wait on the available queue again — this is what
//     actually hands back the Connection the slow path just created
//     (or, if a racer grabbed it first, whatever arrives next).
func (e *EndpointPool) Checkout(timeout time.Duration) (Connection, error) {
	e.lifecycle.RLock()
	defer e.lifecycle.RUnlock()

	if e.closed.Load() {
		return nil, ErrAcquisitionTimeout
	}

	deadline := time.Now().Add(timeout)

	if e.atCapacity() || len(e.available) > 0 {
		return e.waitAvailable(deadline)
	}

	if err := e.createAndEnqueue(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAcquisitionTimeout, err)
	}

	return e.waitAvailable(deadline)
}

func (e *EndpointPool) atCapacity() bool {
	e.constructMu.Lock()
	defer e.constructMu.Unlock()
	return e.count >= e.cfg.MaxConnectionsPerHost
}

// createAndEnqueue is the slow path: constructs one new Connection and
// places it in the available queue. It is a deliberate no-op (not an
// error) if another goroutine pushed count to the cap first — the
// caller falls through to waitAvailable either way.
func (e *EndpointPool) createAndEnqueue() error {
	e.constructMu.Lock()
	defer e.constructMu.Unlock()

	if e.count >= e.cfg.MaxConnectionsPerHost {
		return nil
	}

	conn := e.factory(e.host, e.port, e.cfg)
	if err := conn.Connect(); err != nil {
		return err
	}

	e.count++
	select {
	case e.available <- conn:
	default:
		// Capacity accounting guarantees room in a channel sized to
		// MaxConnectionsPerHost; this branch would mean that
		// guarantee broke.
		e.count--
		conn.Disconnect()
		return fmt.Errorf("available queue unexpectedly full")
	}
	return nil
}

func (e *EndpointPool) waitAvailable(deadline time.Time) (Connection, error) {
	remaining := time.Until(deadline)
	if remaining < 0 {
		remaining = 0
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()

	select {
	case conn, ok := <-e.available:
		if !ok {
			return nil, ErrAcquisitionTimeout
		}
		e.activeMu.Lock()
		e.active = append(e.active, conn)
		e.activeMu.Unlock()
		return conn, nil
	case <-timer.C:
		return nil, ErrAcquisitionTimeout
	}
}

// Checkin moves conn from active back to available, unblocking any
// waiter in Checkout. conn must have been previously returned by
// Checkout from this EndpointPool and not yet checked in or destroyed;
// misuse of that contract is not detected at this layer (ConnectionPool
// validates routing before dispatching here).
func (e *EndpointPool) Checkin(conn Connection) error {
	e.lifecycle.RLock()
	defer e.lifecycle.RUnlock()

	e.removeActive(conn)
	e.available <- conn
	return nil
}

// Destroy removes conn from the active queue, disconnects it, and
// attempts to construct a replacement so count is preserved. If
// replacement construction fails, count is decremented instead and the
// failure is swallowed — Destroy itself still succeeds, since the bad
// Connection was removed and disconnected.
func (e *EndpointPool) Destroy(conn Connection) error {
	e.lifecycle.RLock()
	defer e.lifecycle.RUnlock()

	if !e.removeActive(conn) {
		return fmt.Errorf("%w: connection not active in this pool", ErrInvalidArgument)
	}
	conn.Disconnect()

	e.constructMu.Lock()
	defer e.constructMu.Unlock()

	replacement := e.factory(e.host, e.port, e.cfg)
	if err := replacement.Connect(); err != nil {
		e.count--
		return nil
	}

	select {
	case e.available <- replacement:
	default:
		e.count--
		replacement.Disconnect()
	}
	return nil
}

func (e *EndpointPool) removeActive(conn Connection) bool {
	e.activeMu.Lock()
	defer e.activeMu.Unlock()
	for i, c := range e.active {
		if c == conn {
			e.active = append(e.active[:i], e.active[i+1:]...)
			return true
		}
	}
	return false
}

// cleanup disconnects every Connection this pool owns, empties both
// queues, and resets count to zero. It serializes against every other
// operation on this EndpointPool via the write side of lifecycle: it
// waits for in-flight checkout/checkin/destroy calls to release their
// read lock, and no new one may start until cleanup returns.
func (e *EndpointPool) cleanup() {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	e.closed.Store(true)

drain:
	for {
		select {
		case conn := <-e.available:
			conn.Disconnect()
		default:
			break drain
		}
	}

	e.activeMu.Lock()
	for _, conn := range e.active {
		conn.Disconnect()
	}
	e.active = nil
	e.activeMu.Unlock()

	e.constructMu.Lock()
	e.count = 0
	e.constructMu.Unlock()
}
