package pool

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/mssqlext/mssql-extension/pkg/errx"
)

// Config mirrors the per-catalog options from the configuration table:
// connection_limit, idle_timeout, min_connections, acquire_timeout.
type Config struct {
	MaxConnections int
	MinIdle        int
	IdleTTL        time.Duration // 0 disables eviction
	AcquireTimeout time.Duration // 0 fails immediately if not available
}

// DefaultConfig returns the documented option defaults.
func DefaultConfig() Config {
	return Config{
		MaxConnections: 10,
		MinIdle:        0,
		IdleTTL:        0,
		AcquireTimeout: 10 * time.Second,
	}
}

// Pool is a per-catalog connection pool: a LIFO idle stack, an in-use
// counter, and a factory invoked outside the pool mutex. Grounded on the
// teacher's map+mutex+counter bookkeeping for per-tenant resources,
// generalized to idle/in-use connection accounting.
type Pool struct {
	cfg     Config
	factory Factory

	mu      sync.Mutex
	cond    *sync.Cond
	idle    *list.List // of *Conn, back = most-recently-released
	inUse   int
	closed  bool
	pinned  map[uint64]*Conn // txn descriptor -> pinned connection
}

// New creates a pool bound to factory, which dials and authenticates a
// fresh connection on demand.
func New(cfg Config, factory Factory) *Pool {
	p := &Pool{
		cfg:     cfg,
		factory: factory,
		idle:    list.New(),
		pinned:  make(map[uint64]*Conn),
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Handle wraps an acquired connection; Release returns it to the pool (or
// destroys it) depending on its state at release time.
type Handle struct {
	pool *Pool
	conn *Conn
	txn  uint64 // nonzero if this handle is pinned to a transaction
}

// Conn exposes the underlying connection for issuing operations.
func (h *Handle) Conn() *Conn { return h.conn }

// Pin associates this handle's connection with an open host-engine
// transaction, preventing the pool from handing it to any other acquirer
// until Release after commit/rollback.
func (h *Handle) Pin(txnDescriptor uint64) {
	h.txn = txnDescriptor
	h.conn.Pin(txnDescriptor)
	h.pool.mu.Lock()
	h.pool.pinned[txnDescriptor] = h.conn
	h.pool.mu.Unlock()
}

// Release returns the connection to the pool if it is Idle, otherwise
// destroys it. A pinned connection is only actually released once its
// transaction has ended (Unpin having been called, typically via Conn's
// Commit/Rollback).
func (h *Handle) Release() {
	if txn, pinned := h.conn.Pinned(); pinned {
		_ = txn
		return
	}
	h.pool.release(h.conn)
}

// Acquire returns a handle to an Idle connection, reusing the most
// recently released one (LIFO, for cache warmth) or dialing a new one if
// under capacity.
func (p *Pool) Acquire(ctx context.Context) (*Handle, error) {
	deadline := time.Time{}
	if p.cfg.AcquireTimeout > 0 {
		deadline = time.Now().Add(p.cfg.AcquireTimeout)
	}

	p.mu.Lock()
	for {
		if p.closed {
			p.mu.Unlock()
			return nil, errx.New(errx.KindUsage, "tds: pool is closed")
		}

		if c := p.popFreshIdle(); c != nil {
			p.inUse++
			p.mu.Unlock()
			return &Handle{pool: p, conn: c}, nil
		}

		if p.inUse < p.cfg.MaxConnections {
			p.inUse++
			p.mu.Unlock()
			conn, err := p.dial(ctx)
			if err != nil {
				p.mu.Lock()
				p.inUse--
				p.cond.Broadcast()
				p.mu.Unlock()
				return nil, err
			}
			return &Handle{pool: p, conn: conn}, nil
		}

		if deadline.IsZero() || time.Now().After(deadline) {
			p.mu.Unlock()
			return nil, errx.New(errx.KindUsage, "tds: AcquireTimeout")
		}
		if waitWithDeadline(p.cond, deadline) {
			p.mu.Unlock()
			return nil, errx.New(errx.KindUsage, "tds: AcquireTimeout")
		}
	}
}

// popFreshIdle pops the most-recently-released idle connection, discarding
// (and not counting toward the pop) any that have exceeded idle_ttl — as
// long as doing so would not breach min_idle.
func (p *Pool) popFreshIdle() *Conn {
	for p.idle.Len() > 0 {
		e := p.idle.Back()
		c := e.Value.(*Conn)
		p.idle.Remove(e)

		if p.cfg.IdleTTL > 0 && c.IdleSince() >= p.cfg.IdleTTL {
			if p.inUse+p.idle.Len() >= p.cfg.MinIdle {
				c.Fail()
				continue
			}
		}
		return c
	}
	return nil
}

// dial runs the factory outside the pool mutex so a slow TCP/TLS connect
// does not block other acquirers.
func (p *Pool) dial(ctx context.Context) (*Conn, error) {
	conn, err := p.factory(ctx)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// release is the non-pinned release path: recycle if Idle, else destroy.
func (p *Pool) release(c *Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inUse--
	if c.IsIdle() {
		p.idle.PushBack(c)
	} else {
		c.Fail()
	}
	p.cond.Broadcast()
}

// ReleasePinned is called once a pinned transaction has committed or rolled
// back (Conn.Commit/Rollback already unpinned the connection) to actually
// return it to the idle set.
func (p *Pool) ReleasePinned(txnDescriptor uint64, c *Conn) {
	p.mu.Lock()
	delete(p.pinned, txnDescriptor)
	p.mu.Unlock()
	p.release(c)
}

// PinnedConnection returns the connection already pinned to txnDescriptor,
// if any — used so operations inside an open transaction (including schema
// lookups) reuse that connection instead of acquiring a fresh one.
func (p *Pool) PinnedConnection(txnDescriptor uint64) (*Conn, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.pinned[txnDescriptor]
	return c, ok
}

// Sweep destroys idle connections beyond min_idle whose age exceeds
// idle_ttl, and pings the remainder; a failed ping destroys the connection.
// Intended to run periodically from a caller-owned ticker.
func (p *Pool) Sweep(ctx context.Context, pingTimeout time.Duration) {
	if p.cfg.IdleTTL <= 0 {
		return
	}

	p.mu.Lock()
	var survivors []*Conn
	for p.idle.Len() > 0 {
		e := p.idle.Front()
		c := e.Value.(*Conn)
		p.idle.Remove(e)
		if c.IdleSince() >= p.cfg.IdleTTL && p.idle.Len()+len(survivors) >= p.cfg.MinIdle {
			c.Fail()
			continue
		}
		survivors = append(survivors, c)
	}
	p.mu.Unlock()

	var alive []*Conn
	for _, c := range survivors {
		if err := c.Ping(ctx, pingTimeout); err != nil {
			continue
		}
		alive = append(alive, c)
	}

	p.mu.Lock()
	for _, c := range alive {
		p.idle.PushBack(c)
	}
	p.cond.Broadcast()
	p.mu.Unlock()
}

// Close marks the pool closed and destroys every idle connection; in-use
// connections are destroyed as they are released.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	for p.idle.Len() > 0 {
		e := p.idle.Front()
		p.idle.Remove(e)
		e.Value.(*Conn).Fail()
	}
	p.cond.Broadcast()
}

// Stats reports current idle/in-use counts for observability.
type Stats struct {
	Idle  int
	InUse int
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{Idle: p.idle.Len(), InUse: p.inUse}
}

// waitWithDeadline blocks on cond until broadcast or deadline, returning
// true if the deadline elapsed. sync.Cond has no native deadline support,
// so a timer goroutine broadcasts once the deadline passes.
func waitWithDeadline(cond *sync.Cond, deadline time.Time) bool {
	if deadline.IsZero() {
		cond.Wait()
		return false
	}

	timedOut := make(chan struct{})
	timer := time.AfterFunc(time.Until(deadline), func() {
		close(timedOut)
		cond.L.Lock()
		cond.Broadcast()
		cond.L.Unlock()
	})
	cond.Wait()
	timer.Stop()

	select {
	case <-timedOut:
		return true
	default:
		return !time.Now().Before(deadline)
	}
}
