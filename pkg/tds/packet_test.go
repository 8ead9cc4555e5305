package tds

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderMarshalParseRoundTrip(t *testing.T) {
	h := Header{Type: PacketSQLBatch, Status: StatusEOM, Length: 4096, SPID: 7, PacketID: 3}
	parsed, err := ParseHeader(h.Marshal())
	require.NoError(t, err)
	assert.Equal(t, h, parsed)
	assert.True(t, parsed.IsEOM())
	assert.Equal(t, 4088, parsed.PayloadLength())
}

func TestParseHeaderRejectsOversizeLength(t *testing.T) {
	h := Header{Type: PacketSQLBatch, Status: StatusEOM, Length: MaxPacketSize + 1}
	_, err := ParseHeader(h.Marshal())
	assert.Error(t, err)
}

func TestParseHeaderRejectsUndersizeLength(t *testing.T) {
	buf := Header{Type: PacketSQLBatch, Length: 3}.Marshal()
	_, err := ParseHeader(buf)
	assert.Error(t, err)
}
