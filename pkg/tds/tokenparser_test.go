package tds

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildColMetadata hand-assembles a two-column COLMETADATA token: an INTN
// column and a BIGVARCHAR column, matching the wire layout readTypeInfo
// expects.
func buildColMetadata(t *testing.T) []byte {
	t.Helper()
	var buf []byte
	buf = append(buf, byte(TokenColMetadata))
	buf = append(buf, u16(2)...)

	// col1: INTN(4), nullable, name "n"
	buf = append(buf, u32(0)...)
	buf = append(buf, u16(ColFlagNullable)...)
	buf = append(buf, byte(TypeIntN))
	buf = append(buf, 4) // max length
	buf = append(buf, bVarCharBytes("n")...)

	// col2: BIGVARCHAR(20), nullable, name "s"
	buf = append(buf, u32(0)...)
	buf = append(buf, u16(ColFlagNullable)...)
	buf = append(buf, byte(TypeBigVarChar))
	buf = append(buf, u16(20)...)
	buf = append(buf, DefaultCollation...)
	buf = append(buf, bVarCharBytes("s")...)

	return buf
}

func u16(v uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return b
}

func u32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func bVarCharBytes(s string) []byte {
	enc := stringToUCS2(s)
	return append([]byte{byte(len([]rune(s)))}, enc...)
}

func usVarCharBytes(s string) []byte {
	enc := stringToUCS2(s)
	return append(u16(uint16(len([]rune(s)))), enc...)
}

func TestTokenReaderColMetadataThenRow(t *testing.T) {
	r := NewTokenReader()
	r.Feed(buildColMetadata(t))

	meta, err := r.Next()
	require.NoError(t, err)
	cm, ok := meta.(ColMetadata)
	require.True(t, ok)
	require.Len(t, cm.Columns, 2)
	assert.Equal(t, "n", cm.Columns[0].Name)
	assert.Equal(t, "s", cm.Columns[1].Name)

	var row []byte
	row = append(row, byte(TokenRow))
	row = append(row, 4)           // col1 length prefix
	row = append(row, u32(42)...)  // col1 value
	row = append(row, append(u16(2), "hi"...)...)
	r.Feed(row)

	val, err := r.Next()
	require.NoError(t, err)
	rr, ok := val.(Row)
	require.True(t, ok)
	assert.EqualValues(t, 42, rr.Values[0])
	assert.Equal(t, "hi", rr.Values[1])
}

// TestTokenReaderRowAndNBCRowAgree is the regression case for sharing one
// per-column decoder (bindColumnDecoder) between ROW and NBCROW: decoding the same
// non-NULL cell through either token type must produce the same value.
func TestTokenReaderRowAndNBCRowAgree(t *testing.T) {
	r := NewTokenReader()
	r.Feed(buildColMetadata(t))
	_, err := r.Next()
	require.NoError(t, err)

	var row []byte
	row = append(row, byte(TokenRow))
	row = append(row, 4)
	row = append(row, u32(7)...)
	row = append(row, append(u16(1), "x"...)...)
	r.Feed(row)
	rowVal, err := r.Next()
	require.NoError(t, err)

	var nbc []byte
	nbc = append(nbc, byte(TokenNBCRow))
	nbc = append(nbc, 0x00) // bitmap: no nulls
	nbc = append(nbc, 4)
	nbc = append(nbc, u32(7)...)
	nbc = append(nbc, append(u16(1), "x"...)...)
	r.Feed(nbc)
	nbcVal, err := r.Next()
	require.NoError(t, err)

	assert.Equal(t, rowVal.(Row).Values, nbcVal.(Row).Values)
}

func TestTokenReaderNBCRowNull(t *testing.T) {
	r := NewTokenReader()
	r.Feed(buildColMetadata(t))
	_, err := r.Next()
	require.NoError(t, err)

	var nbc []byte
	nbc = append(nbc, byte(TokenNBCRow))
	nbc = append(nbc, 0x01) // bit0 set: col1 is NULL
	nbc = append(nbc, append(u16(2), "ok"...)...)
	r.Feed(nbc)

	val, err := r.Next()
	require.NoError(t, err)
	row := val.(Row)
	assert.Nil(t, row.Values[0])
	assert.Equal(t, "ok", row.Values[1])
}

func TestTokenReaderNeedsMoreData(t *testing.T) {
	r := NewTokenReader()
	full := buildColMetadata(t)
	r.Feed(full[:len(full)-3])
	_, err := r.Next()
	assert.ErrorIs(t, err, ErrNeedMoreData)

	r.Feed(full[len(full)-3:])
	_, err = r.Next()
	assert.NoError(t, err)
}

func TestTokenReaderDone(t *testing.T) {
	r := NewTokenReader()
	var b []byte
	b = append(b, byte(TokenDone))
	b = append(b, u16(DoneCount|DoneMore)...)
	b = append(b, u16(0)...)
	rc := make([]byte, 8)
	binary.LittleEndian.PutUint64(rc, 5)
	b = append(b, rc...)
	r.Feed(b)

	val, err := r.Next()
	require.NoError(t, err)
	done := val.(Done)
	assert.True(t, done.More())
	assert.True(t, done.HasCount())
	assert.False(t, done.HasError())
	assert.EqualValues(t, 5, done.RowCount)
}

func TestTokenReaderEnvChangeBeginTran(t *testing.T) {
	r := NewTokenReader()
	descriptor := make([]byte, 8)
	binary.LittleEndian.PutUint64(descriptor, 0xDEADBEEF)

	var body []byte
	body = append(body, EnvBeginTran)
	body = append(body, 8)
	body = append(body, descriptor...)
	body = append(body, 0) // old value: empty

	var b []byte
	b = append(b, byte(TokenEnvChange))
	b = append(b, u16(uint16(len(body)))...)
	b = append(b, body...)
	r.Feed(b)

	val, err := r.Next()
	require.NoError(t, err)
	ec := val.(EnvChange)
	assert.Equal(t, EnvBeginTran, ec.SubType)
	assert.Equal(t, descriptor, ec.NewRaw)
}

func TestTokenReaderServerError(t *testing.T) {
	r := NewTokenReader()
	var body []byte
	body = append(body, u32(547)...)    // number
	body = append(body, 1, 16)          // state, severity
	body = append(body, usVarCharBytes("FK violation")...)
	body = append(body, bVarCharBytes("srv")...)
	body = append(body, bVarCharBytes("proc")...)
	body = append(body, u32(12)...) // line number

	var b []byte
	b = append(b, byte(TokenError))
	b = append(b, u16(uint16(len(body)))...)
	b = append(b, body...)
	r.Feed(b)

	val, err := r.Next()
	require.NoError(t, err)
	se := val.(ServerError)
	assert.False(t, se.IsInfo)
	assert.EqualValues(t, 547, se.Number)
	assert.Equal(t, "FK violation", se.Message)
	assert.Equal(t, "proc", se.ProcName)
}
