package pool

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mssqlext/mssql-extension/pkg/tds"
)

// startStubServer listens on loopback and answers every received message
// with a single DONE(final) token, enough to exercise Ping/Commit/Rollback
// without a real SQL Server instance, following the same net.Listen-based
// integration test convention used elsewhere in this module.
func startStubServer(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serveStubConn(conn)
		}
	}()
	return ln.Addr().String()
}

func serveStubConn(conn net.Conn) {
	defer conn.Close()
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		_ = n

		tw := tds.NewTokenWriter()
		tw.WriteDoneInProc(tds.DoneFinal, 0, 0)
		body := tw.Bytes()

		h := tds.Header{Type: tds.PacketTabularResult, Status: tds.StatusEOM, Length: uint16(8 + len(body))}
		out := append(h.Marshal(), body...)
		if _, err := conn.Write(out); err != nil {
			return
		}
	}
}

func dialStubConn(t *testing.T, addr string) *Conn {
	t.Helper()
	f, err := tds.Dial(context.Background(), addr, 2*time.Second)
	require.NoError(t, err)
	c := NewConn(f)
	require.NoError(t, c.MarkAuthenticated())
	return c
}

func TestPoolAcquireDialsUnderCapacity(t *testing.T) {
	addr := startStubServer(t)
	cfg := DefaultConfig()
	cfg.MaxConnections = 2

	p := New(cfg, func(ctx context.Context) (*Conn, error) {
		return dialStubConn(t, addr), nil
	})

	h1, err := p.Acquire(context.Background())
	require.NoError(t, err)
	h2, err := p.Acquire(context.Background())
	require.NoError(t, err)

	stats := p.Stats()
	assert.Equal(t, 2, stats.InUse)
	assert.Equal(t, 0, stats.Idle)

	h1.Release()
	h2.Release()
}

func TestPoolAcquireTimesOutAtCapacity(t *testing.T) {
	addr := startStubServer(t)
	cfg := DefaultConfig()
	cfg.MaxConnections = 1
	cfg.AcquireTimeout = 100 * time.Millisecond

	p := New(cfg, func(ctx context.Context) (*Conn, error) {
		return dialStubConn(t, addr), nil
	})

	h1, err := p.Acquire(context.Background())
	require.NoError(t, err)

	_, err = p.Acquire(context.Background())
	assert.Error(t, err)

	h1.Release()
}

func TestPoolReleaseRecyclesIdleConnection(t *testing.T) {
	addr := startStubServer(t)
	cfg := DefaultConfig()
	cfg.MaxConnections = 1

	p := New(cfg, func(ctx context.Context) (*Conn, error) {
		return dialStubConn(t, addr), nil
	})

	h1, err := p.Acquire(context.Background())
	require.NoError(t, err)
	first := h1.Conn()
	h1.Release()

	require.Equal(t, 1, p.Stats().Idle)

	h2, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, h2.Conn())
}

func TestPoolReleaseDestroysNonIdleConnection(t *testing.T) {
	addr := startStubServer(t)
	cfg := DefaultConfig()
	cfg.MaxConnections = 1

	p := New(cfg, func(ctx context.Context) (*Conn, error) {
		return dialStubConn(t, addr), nil
	})

	h1, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, h1.Conn().BeginExecute()) // leaves state Executing, not Idle
	h1.Release()

	assert.Equal(t, 0, p.Stats().Idle)
}

func TestConnStateMachineTransitions(t *testing.T) {
	addr := startStubServer(t)
	c := dialStubConn(t, addr)

	assert.True(t, c.IsIdle())
	require.NoError(t, c.BeginExecute())
	assert.False(t, c.IsIdle())
	require.NoError(t, c.BeginCancel())
	require.NoError(t, c.FinishCancel())
	assert.True(t, c.IsIdle())

	require.Error(t, c.BeginCancel()) // not Executing
	assert.True(t, c.IsDisconnected())
}

func TestConnPingSucceedsAgainstStub(t *testing.T) {
	addr := startStubServer(t)
	c := dialStubConn(t, addr)
	require.NoError(t, c.Ping(context.Background(), 2*time.Second))
	assert.True(t, c.IsIdle())
}

func TestPinUnpinRoundTrip(t *testing.T) {
	addr := startStubServer(t)
	c := dialStubConn(t, addr)

	_, pinned := c.Pinned()
	assert.False(t, pinned)

	c.Pin(0xABCD)
	txn, pinned := c.Pinned()
	assert.True(t, pinned)
	assert.EqualValues(t, 0xABCD, txn)

	c.Unpin()
	_, pinned = c.Pinned()
	assert.False(t, pinned)
}

func TestHandlePinBlocksRelease(t *testing.T) {
	addr := startStubServer(t)
	cfg := DefaultConfig()
	cfg.MaxConnections = 1

	p := New(cfg, func(ctx context.Context) (*Conn, error) {
		return dialStubConn(t, addr), nil
	})

	h, err := p.Acquire(context.Background())
	require.NoError(t, err)
	h.Pin(42)
	h.Release()

	assert.Equal(t, 0, p.Stats().Idle)
	assert.Equal(t, 1, p.Stats().InUse)

	conn, ok := p.PinnedConnection(42)
	require.True(t, ok)
	p.ReleasePinned(42, conn)
	assert.Equal(t, 1, p.Stats().Idle)
}

func TestInspectEnvChangePinningActions(t *testing.T) {
	assert.Equal(t, PinActionPin, InspectEnvChange(tds.EnvChange{SubType: tds.EnvBeginTran}))
	assert.Equal(t, PinActionUnpin, InspectEnvChange(tds.EnvChange{SubType: tds.EnvCommitTran}))
	assert.Equal(t, PinActionUnpin, InspectEnvChange(tds.EnvChange{SubType: tds.EnvRollbackTran}))
	assert.Equal(t, PinActionNone, InspectEnvChange(tds.EnvChange{SubType: tds.EnvDatabase}))
}

func TestLooksLikeTransactionControl(t *testing.T) {
	assert.True(t, LooksLikeTransactionControl("BEGIN TRAN"))
	assert.True(t, LooksLikeTransactionControl("  commit"))
	assert.False(t, LooksLikeTransactionControl("SELECT 1"))
}
