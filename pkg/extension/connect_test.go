package extension

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mssqlext/mssql-extension/pkg/config"
	"github.com/mssqlext/mssql-extension/pkg/tds"
)

// handshakeServer accepts one connection, replies to PRELOGIN with a
// no-encryption response, then replies to LOGIN7 with either a
// LOGINACK+DONE success or an ERROR+DONE failure, following the same
// net.Listen-based integration test convention used in pkg/bulk and
// pkg/stream.
func handshakeServer(t *testing.T, succeed bool) string {
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

		if _, err := conn.Read(buf); err != nil { // PRELOGIN
			return
		}
		preloginResp := tds.PreloginRequest{
			Version:    tds.ServerVersion{Major: 15},
			Encryption: tds.EncryptOff,
		}.Marshal()
		conn.Write(frame(tds.PacketTabularResult, preloginResp))

		if _, err := conn.Read(buf); err != nil { // LOGIN7
			return
		}
		conn.Write(frame(tds.PacketTabularResult, loginResponseBody(succeed)))
	}()
	return ln.Addr().String()
}

func frame(typ tds.PacketType, body []byte) []byte {
	h := tds.Header{Type: typ, Status: tds.StatusEOM, Length: uint16(8 + len(body))}
	return append(h.Marshal(), body...)
}

func loginResponseBody(succeed bool) []byte {
	var b []byte
	if succeed {
		b = append(b, byte(tds.TokenLoginAck))
		b = append(b, uint16le(loginAckLength())...)
		b = append(b, byte(tds.LoginAckSQL2012))
		b = append(b, beUint32(tds.VerTDS74)...)
		b = append(b, bVarChar("mssql-extension")...)
		b = append(b, beUint32(0x0F000000)...)
	} else {
		inner := errorTokenBody(18456, 14, "login failed")
		b = append(b, byte(tds.TokenError))
		b = append(b, uint16le(len(inner))...)
		b = append(b, inner...)
	}
	tw := tds.NewTokenWriter()
	tw.WriteDoneInProc(tds.DoneFinal, 0, 0)
	return append(b, tw.Bytes()...)
}

func loginAckLength() int {
	return 1 + 4 + 1 + len("mssql-extension")*2 + 4
}

func uint16le(n int) []byte { return []byte{byte(n), byte(n >> 8)} }

func beUint32(v uint32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
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

// errorTokenBody builds an ERROR token payload, matching the field
// widths parseServerError expects.
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

func testOptions(addr string) config.Options {
	host, port := splitHostPort(addr)
	return config.Options{
		Host:              host,
		Port:              port,
		Database:          "master",
		User:              "sa",
		Password:          "pw",
		ConnectionTimeout: 2 * time.Second,
	}
}

func splitHostPort(addr string) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, 1433
	}
	var port int
	for _, r := range portStr {
		port = port*10 + int(r-'0')
	}
	return host, port
}

func TestFactoryAuthenticatesOnLoginAck(t *testing.T) {
	addr := handshakeServer(t, true)
	factory := newFactory(testOptions(addr), nil, nil)

	c, err := factory(context.Background())
	require.NoError(t, err)
	require.NotNil(t, c)
}

func TestFactoryFailsOnLoginError(t *testing.T) {
	addr := handshakeServer(t, false)
	factory := newFactory(testOptions(addr), nil, nil)

	_, err := factory(context.Background())
	assert.Error(t, err)
}
