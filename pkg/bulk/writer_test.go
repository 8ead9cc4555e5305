package bulk

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mssqlext/mssql-extension/pkg/pool"
	"github.com/mssqlext/mssql-extension/pkg/tds"
)

// stubServer accepts one connection and, for each client read, replies with
// a DONE(DoneFinal) TDS message — enough to satisfy both the INSERT BULK
// acknowledgement and the BULK_LOAD completion response. Mirrors the
// teacher's own net.Listen-based integration test convention.
func stubServer(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 4096)
		for {
			if _, err := conn.Read(buf); err != nil {
				return
			}
			tw := tds.NewTokenWriter()
			tw.WriteDoneInProc(tds.DoneFinal, 0, 0)
			body := tw.Bytes()
			h := tds.Header{Type: tds.PacketTabularResult, Status: tds.StatusEOM, Length: uint16(8 + len(body))}
			msg := append(h.Marshal(), body...)
			if _, err := conn.Write(msg); err != nil {
				return
			}
		}
	}()
	return ln.Addr().String()
}

func dialBulkConn(t *testing.T, addr string) *pool.Conn {
	t.Helper()
	f, err := tds.Dial(context.Background(), addr, 2*time.Second)
	require.NoError(t, err)
	c := pool.NewConn(f)
	require.NoError(t, c.MarkAuthenticated())
	return c
}

func newBulkHandle(t *testing.T, addr string) *pool.Handle {
	t.Helper()
	p := pool.New(pool.DefaultConfig(), func(ctx context.Context) (*pool.Conn, error) {
		return dialBulkConn(t, addr), nil
	})
	h, err := p.Acquire(context.Background())
	require.NoError(t, err)
	return h
}

func testColumns() []tds.Column {
	return []tds.Column{
		{Name: "id", Type: tds.TypeIntN, Length: 4},
		{Name: "name", Type: tds.TypeNVarChar, Length: 100},
	}
}

func TestWriterAutoTABLOCKHeuristic(t *testing.T) {
	newTable := Options{TableName: "[dbo].[T]", Columns: testColumns(), NewlyCreatedTable: true}
	existing := Options{TableName: "[dbo].[T]", Columns: testColumns(), NewlyCreatedTable: false}
	explicitOff := false
	overridden := Options{TableName: "[dbo].[T]", Columns: testColumns(), NewlyCreatedTable: true, TABLOCKExplicit: &explicitOff}
	explicitOn := true
	forcedOn := Options{TableName: "[dbo].[T]", Columns: testColumns(), NewlyCreatedTable: false, TABLOCKExplicit: &explicitOn}

	assert.Contains(t, newTable.withOptions(), "TABLOCK")
	assert.Empty(t, existing.withOptions())
	assert.Empty(t, overridden.withOptions())
	assert.Contains(t, forcedOn.withOptions(), "TABLOCK")
}

func TestWriterFullRoundTrip(t *testing.T) {
	addr := stubServer(t)
	h := newBulkHandle(t, addr)
	w := New(h, Options{TableName: "[dbo].[T]", Columns: testColumns(), NewlyCreatedTable: true, ResponseTimeout: 2 * time.Second})

	require.NoError(t, w.IssueInsertBulk(0))

	w.WriteColMetadata()
	require.NoError(t, w.WriteRows([][]interface{}{
		{int32(1), "alice"},
		{int32(2), "bob"},
	}))

	rowCount, err := w.FlushBatch()
	require.NoError(t, err)
	assert.EqualValues(t, 2, rowCount)

	w.Release()
}

func TestWriterConcurrentWriteRows(t *testing.T) {
	addr := stubServer(t)
	h := newBulkHandle(t, addr)
	w := New(h, Options{TableName: "[dbo].[T]", Columns: testColumns(), ResponseTimeout: 2 * time.Second})
	require.NoError(t, w.IssueInsertBulk(0))
	w.WriteColMetadata()

	done := make(chan error, 4)
	for i := 0; i < 4; i++ {
		go func(n int) {
			done <- w.WriteRows([][]interface{}{{int32(n), "x"}})
		}(i)
	}
	for i := 0; i < 4; i++ {
		require.NoError(t, <-done)
	}

	rowCount, err := w.FlushBatch()
	require.NoError(t, err)
	assert.EqualValues(t, 4, rowCount)
	w.Release()
}
