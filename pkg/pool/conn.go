// Package pool manages pooled TDS connections: per-connection lifecycle state
// and a per-catalog pool with LIFO reuse and transaction pinning.
package pool

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/golang-sql/sqlexp"

	"github.com/mssqlext/mssql-extension/pkg/errx"
	"github.com/mssqlext/mssql-extension/pkg/tds"
)

var _ sqlexp.Xact = (*Conn)(nil)

// connState is a connection's lifecycle position. Transitions happen only
// through the Conn methods below, each a single atomic CAS, mirroring the
// compile-state machine in the JIT pipeline this pattern is generalized from.
type connState int32

const (
	stateDisconnected connState = iota
	stateAuthenticating
	stateIdle
	stateExecuting
	stateCancelling
)

func (s connState) String() string {
	switch s {
	case stateDisconnected:
		return "disconnected"
	case stateAuthenticating:
		return "authenticating"
	case stateIdle:
		return "idle"
	case stateExecuting:
		return "executing"
	case stateCancelling:
		return "cancelling"
	default:
		return "unknown"
	}
}

// Factory dials and authenticates a new connection for a catalog.
type Factory func(ctx context.Context) (*Conn, error)

// Conn is a single pooled TDS connection plus its state and bookkeeping.
type Conn struct {
	Framer *tds.Framer

	state        int32 // connState, accessed via atomic
	lastActivity int64 // unix nanos, accessed via atomic
	pinnedTxn    uint64

	reader *tds.TokenReader
}

// NewConn wraps a dialed framer as a connection in the Authenticating
// state; MarkAuthenticated moves it to Idle.
func NewConn(f *tds.Framer) *Conn {
	c := &Conn{Framer: f, reader: tds.NewTokenReader()}
	atomic.StoreInt32(&c.state, int32(stateAuthenticating))
	return c
}

func (c *Conn) load() connState { return connState(atomic.LoadInt32(&c.state)) }

// transition performs the CAS described by the connection operation table,
// moving to failTo on any disallowed source state.
func (c *Conn) transition(from, to, failTo connState) error {
	if atomic.CompareAndSwapInt32(&c.state, int32(from), int32(to)) {
		atomic.StoreInt64(&c.lastActivity, time.Now().UnixNano())
		return nil
	}
	atomic.StoreInt32(&c.state, int32(failTo))
	return errx.Newf(errx.KindProtocol, "tds: connection not in %s state (was %s)", from, c.load())
}

// MarkAuthenticated finishes the handshake: Authenticating -> Idle.
func (c *Conn) MarkAuthenticated() error {
	return c.transition(stateAuthenticating, stateIdle, stateDisconnected)
}

// BeginExecute enters Executing from Idle, resetting per-message state: the
// outbound packet id restarts at 1 and any leftover receive-buffer bytes from
// a prior message are discarded.
func (c *Conn) BeginExecute() error {
	if err := c.transition(stateIdle, stateExecuting, stateDisconnected); err != nil {
		return err
	}
	c.Framer.ResetOutbound()
	c.reader = tds.NewTokenReader()
	return nil
}

// BeginCancel enters Cancelling from Executing, after an ATTENTION has been
// sent.
func (c *Conn) BeginCancel() error {
	return c.transition(stateExecuting, stateCancelling, stateDisconnected)
}

// FinishCancel returns to Idle once the ATTN-ack DONE has been observed.
func (c *Conn) FinishCancel() error {
	return c.transition(stateCancelling, stateIdle, stateDisconnected)
}

// FinishExecute returns directly to Idle when a result stream completes
// without cancellation.
func (c *Conn) FinishExecute() error {
	return c.transition(stateExecuting, stateIdle, stateDisconnected)
}

// Fail forces the connection to Disconnected regardless of current state;
// used on transport/protocol errors that make the session unrecoverable.
func (c *Conn) Fail() {
	atomic.StoreInt32(&c.state, int32(stateDisconnected))
}

// IsIdle reports whether the connection is currently recyclable.
func (c *Conn) IsIdle() bool { return c.load() == stateIdle }

// IsDisconnected reports whether the connection is terminal.
func (c *Conn) IsDisconnected() bool { return c.load() == stateDisconnected }

// IdleSince returns how long the connection has sat idle; meaningless when
// not Idle.
func (c *Conn) IdleSince() time.Duration {
	last := atomic.LoadInt64(&c.lastActivity)
	return time.Since(time.Unix(0, last))
}

// TokenReader returns the connection's token parser, reset at the start of
// each BeginExecute.
func (c *Conn) TokenReader() *tds.TokenReader { return c.reader }

// Ping issues a trivial round trip to verify the connection is alive without
// leaving the Idle state observable to a concurrent acquirer.
func (c *Conn) Ping(ctx context.Context, timeout time.Duration) error {
	if c.load() != stateIdle {
		return errx.New(errx.KindProtocol, "tds: ping requires an idle connection")
	}
	c.Framer.ResetOutbound()
	payload := tds.BuildSQLBatch("SELECT 1", 0, 0)
	if err := c.Framer.SendMessage(tds.PacketSQLBatch, payload); err != nil {
		c.Fail()
		return errx.Wrap(err, errx.KindTransport, "tds: ping send failed")
	}
	deadline := time.Now().Add(timeout)
	for {
		_, done, err := c.drainUntilDone(deadline)
		if err != nil {
			c.Fail()
			return err
		}
		if done {
			atomic.StoreInt64(&c.lastActivity, time.Now().UnixNano())
			return nil
		}
	}
}

// drainUntilDone pulls packets until a DONE token (any family) is observed,
// returning the decoded Done and true once found.
func (c *Conn) drainUntilDone(deadline time.Time) (tds.Done, bool, error) {
	for {
		tok, err := c.reader.Next()
		if err == nil {
			if d, ok := tok.(tds.Done); ok {
				return d, true, nil
			}
			continue
		}
		if err != tds.ErrNeedMoreData {
			return tds.Done{}, false, errx.Wrap(err, errx.KindProtocol, "tds: ping response parse failed")
		}
		_, payload, err := c.Framer.ReceivePacket(deadline)
		if err != nil {
			return tds.Done{}, false, errx.Wrap(err, errx.KindTransport, "tds: ping receive failed")
		}
		c.reader.Feed(payload)
	}
}

// Pin records that this connection is carrying an open host-engine
// transaction identified by txnDescriptor, so the pool will not hand it to
// any other caller until Unpin is called.
func (c *Conn) Pin(txnDescriptor uint64) { atomic.StoreUint64(&c.pinnedTxn, txnDescriptor) }

// Unpin releases the transaction association.
func (c *Conn) Unpin() { atomic.StoreUint64(&c.pinnedTxn, 0) }

// Pinned reports whether the connection is currently pinned, and to which
// transaction descriptor.
func (c *Conn) Pinned() (uint64, bool) {
	txn := atomic.LoadUint64(&c.pinnedTxn)
	return txn, txn != 0
}

// Commit satisfies sqlexp.Xact: a pinned handle commits the open
// transaction and releases the pin.
func (c *Conn) Commit() error {
	return c.endTxn(tds.EnvCommitTran)
}

// Rollback satisfies sqlexp.Xact, the reverse of Commit.
func (c *Conn) Rollback() error {
	return c.endTxn(tds.EnvRollbackTran)
}

func (c *Conn) endTxn(sub uint8) error {
	txn, pinned := c.Pinned()
	if !pinned {
		return errx.New(errx.KindUsage, "tds: connection is not pinned to a transaction")
	}
	var stmt string
	if sub == tds.EnvCommitTran {
		stmt = "COMMIT TRANSACTION"
	} else {
		stmt = "ROLLBACK TRANSACTION"
	}
	if err := c.BeginExecute(); err != nil {
		return err
	}
	payload := tds.BuildSQLBatch(stmt, txn, 0)
	if err := c.Framer.SendMessage(tds.PacketSQLBatch, payload); err != nil {
		c.Fail()
		return errx.Wrap(err, errx.KindTransport, "tds: transaction end send failed")
	}
	if _, _, err := c.drainUntilDone(time.Now().Add(30 * time.Second)); err != nil {
		c.Fail()
		return err
	}
	c.Unpin()
	return c.FinishExecute()
}
