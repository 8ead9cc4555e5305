package tds

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newPipeFramer wires a Framer around one end of an in-memory net.Pipe,
// bypassing Dial's real TCP socket so SendMessage/ReceiveMessage can be
// exercised without a network.
func newPipeFramer(conn net.Conn) *Framer {
	return &Framer{
		conn:       conn,
		reader:     bufio.NewReaderSize(conn, MaxPacketSize),
		writer:     bufio.NewWriterSize(conn, MaxPacketSize),
		packetSize: DefaultPacketSize,
	}
}

func TestFramerSendReceiveMessageSinglePacket(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	cf := newPipeFramer(client)
	sf := newPipeFramer(server)

	done := make(chan error, 1)
	go func() {
		done <- cf.SendMessage(PacketSQLBatch, []byte("SELECT 1"))
	}()

	typ, payload, err := sf.ReceiveMessage(time.Now().Add(2 * time.Second))
	require.NoError(t, err)
	require.NoError(t, <-done)
	assert.Equal(t, PacketSQLBatch, typ)
	assert.Equal(t, []byte("SELECT 1"), payload)
}

func TestFramerSendReceiveMessageMultiPacket(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	cf := newPipeFramer(client)
	cf.SetPacketSize(MinPacketSize)
	sf := newPipeFramer(server)

	payload := make([]byte, MinPacketSize*3)
	for i := range payload {
		payload[i] = byte(i)
	}

	done := make(chan error, 1)
	go func() {
		done <- cf.SendMessage(PacketSQLBatch, payload)
	}()

	typ, got, err := sf.ReceiveMessage(time.Now().Add(2 * time.Second))
	require.NoError(t, err)
	require.NoError(t, <-done)
	assert.Equal(t, PacketSQLBatch, typ)
	assert.Equal(t, payload, got)
}

func TestFramerPacketIDResetsPerMessage(t *testing.T) {
	client, _ := net.Pipe()
	defer client.Close()
	f := newPipeFramer(client)

	f.ResetOutbound()
	first := f.nextID()
	second := f.nextID()
	f.ResetOutbound()
	third := f.nextID()

	assert.EqualValues(t, 1, first)
	assert.EqualValues(t, 2, second)
	assert.EqualValues(t, 1, third)
}
