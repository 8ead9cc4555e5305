package tds

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildAllHeadersRoundTrip(t *testing.T) {
	h := BuildAllHeaders(0x1122334455667788, 1)
	require.Len(t, h, 22)
	assert.EqualValues(t, 22, binary.LittleEndian.Uint32(h[0:4]))
	assert.EqualValues(t, 18, binary.LittleEndian.Uint32(h[4:8]))
	assert.EqualValues(t, headerTypeTransactionDescriptor, binary.LittleEndian.Uint16(h[8:10]))
	assert.EqualValues(t, 0x1122334455667788, binary.LittleEndian.Uint64(h[10:18]))
	assert.EqualValues(t, 1, binary.LittleEndian.Uint32(h[18:22]))
}

func TestBuildSQLBatchAppendsUCS2Text(t *testing.T) {
	payload := BuildSQLBatch("SELECT 1", 0, 0)
	headers := BuildAllHeaders(0, 0)
	require.Greater(t, len(payload), len(headers))
	text := payload[len(headers):]
	assert.Equal(t, "SELECT 1", ucs2ToString(text))
}

func TestBuildAttentionIsEmpty(t *testing.T) {
	assert.Nil(t, BuildAttention())
}
