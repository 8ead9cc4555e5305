package stream

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

// scriptedServer accepts one connection and writes exactly the bytes in
// frames, one per read, ignoring whatever the client sends (mirroring the
// teacher's own net.Listen-based integration test convention).
func scriptedServer(t *testing.T, frames [][]byte) string {
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
		for _, frame := range frames {
			if _, err := conn.Read(buf); err != nil {
				return
			}
			if _, err := conn.Write(frame); err != nil {
				return
			}
		}
		// keep draining client writes (e.g. ATTENTION) without replying
		for {
			if _, err := conn.Read(buf); err != nil {
				return
			}
		}
	}()
	return ln.Addr().String()
}

func framePacket(typ tds.PacketType, body []byte) []byte {
	h := tds.Header{Type: typ, Status: tds.StatusEOM, Length: uint16(8 + len(body))}
	return append(h.Marshal(), body...)
}

func buildResultStreamBody(t *testing.T, values []int32, doneStatus uint16) []byte {
	t.Helper()
	cols := []tds.Column{{Name: "id", Type: tds.TypeIntN, Length: 4}}
	tw := tds.NewTokenWriter()
	rsw := tds.NewResultSetWriter(tw, cols)
	rsw.WriteColMetadata()
	for _, v := range values {
		require.NoError(t, rsw.WriteRow([]interface{}{v}))
	}
	tw.WriteDoneInProc(doneStatus, 0, uint64(len(values)))
	return tw.Bytes()
}

func dialStreamConn(t *testing.T, addr string) *pool.Conn {
	t.Helper()
	f, err := tds.Dial(context.Background(), addr, 2*time.Second)
	require.NoError(t, err)
	c := pool.NewConn(f)
	require.NoError(t, c.MarkAuthenticated())
	return c
}

func newTestHandle(t *testing.T, addr string) *pool.Handle {
	t.Helper()
	p := pool.New(pool.DefaultConfig(), func(ctx context.Context) (*pool.Conn, error) {
		return dialStreamConn(t, addr), nil
	})
	h, err := p.Acquire(context.Background())
	require.NoError(t, err)
	return h
}

func TestIteratorStreamsRowsToCompletion(t *testing.T) {
	body := buildResultStreamBody(t, []int32{1, 2}, tds.DoneFinal|tds.DoneCount)
	addr := scriptedServer(t, [][]byte{framePacket(tds.PacketTabularResult, body)})

	h := newTestHandle(t, addr)
	it, err := Execute(h, "SELECT id FROM t", 0, time.Now().Add(2*time.Second))
	require.NoError(t, err)

	out := make([]Row, 10)
	n, err := it.FillChunk(context.Background(), out)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	assert.EqualValues(t, 1, out[0].Values[0])
	assert.EqualValues(t, 2, out[1].Values[0])

	n, err = it.FillChunk(context.Background(), out)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestIteratorSurfacesRowsAffectedFromDone(t *testing.T) {
	body := buildResultStreamBody(t, []int32{1, 2, 3}, tds.DoneFinal|tds.DoneCount)
	addr := scriptedServer(t, [][]byte{framePacket(tds.PacketTabularResult, body)})

	h := newTestHandle(t, addr)
	it, err := Execute(h, "UPDATE t SET x = 1", 0, time.Now().Add(2*time.Second))
	require.NoError(t, err)

	out := make([]Row, 10)
	_, err = it.FillChunk(context.Background(), out)
	require.NoError(t, err)
	_, err = it.FillChunk(context.Background(), out)
	require.NoError(t, err)

	assert.EqualValues(t, 3, it.RowsAffected())
}

func TestIteratorSurfacesFatalServerError(t *testing.T) {
	// This client never writes ERROR tokens (see DESIGN.md for why no
	// rpc.go/server-side writer exists), so the test constructs the wire
	// bytes directly instead of reusing a writer helper.
	inner := errorTokenBody(50000, 16, "boom")
	var body []byte
	body = append(body, byte(tds.TokenError))
	body = append(body, uint16le(len(inner))...)
	body = append(body, inner...)

	addr := scriptedServer(t, [][]byte{framePacket(tds.PacketTabularResult, body)})
	h := newTestHandle(t, addr)
	it, err := Execute(h, "SELECT 1/0", 0, time.Now().Add(2*time.Second))
	require.NoError(t, err)

	out := make([]Row, 10)
	_, err = it.FillChunk(context.Background(), out)
	assert.Error(t, err)
}

func uint16le(n int) []byte {
	return []byte{byte(n), byte(n >> 8)}
}

// errorTokenBody builds the ERROR token payload (sans the type byte and
// its own 2-byte length prefix, added by the caller): number(4), state(1),
// class(1), msg(US_VARCHAR, 2-byte length), server(B_VARCHAR, 1-byte
// length), proc(B_VARCHAR), line(4) — matching parseServerError's field
// widths exactly (msg is the one field with a 2-byte length).
func errorTokenBody(number int32, severity byte, msg string) []byte {
	var b []byte
	b = append(b, le32(uint32(number))...)
	b = append(b, 0)        // state
	b = append(b, severity) // class
	b = append(b, usVarChar(msg)...)
	b = append(b, bVarChar("srv")...)
	b = append(b, bVarChar("")...)
	b = append(b, le32(0)...) // line
	return b
}

func le32(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

func bVarChar(s string) []byte {
	out := []byte{byte(len(s))}
	for _, r := range s {
		out = append(out, byte(r), 0)
	}
	return out
}

func usVarChar(s string) []byte {
	out := append([]byte{}, uint16le(len(s))...)
	for _, r := range s {
		out = append(out, byte(r), 0)
	}
	return out
}
