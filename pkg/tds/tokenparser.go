package tds

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/mssqlext/mssql-extension/pkg/errx"
	"github.com/shopspring/decimal"
)

// ErrNeedMoreData is returned by TokenReader.Next when the buffered bytes
// don't yet hold a complete token. The reader's internal position is left
// unchanged, so the caller only needs to Feed the next packet and call
// Next again — no token is ever partially consumed.
var ErrNeedMoreData = errors.New("tds: need more data")

// TokenReader incrementally decodes the TDS response token stream. It
// never blocks on I/O itself: the caller pumps packets in via Feed (from
// Framer.ReceivePacket) and calls Next in a loop, handling
// ErrNeedMoreData by fetching another packet. This lets the streaming
// result iterator (pkg/stream) keep memory bounded to whatever has
// arrived so far, rather than buffering an entire message before parsing
// anything.
type TokenReader struct {
	buf     []byte
	columns []Column // bound by the most recent COLMETADATA, shared by ROW and NBCROW
}

// NewTokenReader creates an empty reader.
func NewTokenReader() *TokenReader {
	return &TokenReader{}
}

// Feed appends newly received bytes to the reader's buffer.
func (r *TokenReader) Feed(b []byte) {
	r.buf = append(r.buf, b...)
}

// Pending reports how many unconsumed bytes are buffered.
func (r *TokenReader) Pending() int { return len(r.buf) }

// Columns returns the column set from the most recent COLMETADATA token.
func (r *TokenReader) Columns() []Column { return r.columns }

// cur is a non-mutating read cursor over the reader's buffer. Every
// parse* function builds one, reads through it, and only if every read
// succeeds does Next commit cur.pos back into r.buf by slicing it off.
// A short buffer leaves r.buf untouched, which is what makes
// ErrNeedMoreData safe to retry.
type cur struct {
	buf []byte
	pos int
}

func (c *cur) byte() (byte, bool) {
	if c.pos >= len(c.buf) {
		return 0, false
	}
	b := c.buf[c.pos]
	c.pos++
	return b, true
}

func (c *cur) bytes(n int) ([]byte, bool) {
	if n < 0 || c.pos+n > len(c.buf) {
		return nil, false
	}
	b := c.buf[c.pos : c.pos+n]
	c.pos += n
	return b, true
}

func (c *cur) uint16() (uint16, bool) {
	b, ok := c.bytes(2)
	if !ok {
		return 0, false
	}
	return binary.LittleEndian.Uint16(b), true
}

func (c *cur) uint32() (uint32, bool) {
	b, ok := c.bytes(4)
	if !ok {
		return 0, false
	}
	return binary.LittleEndian.Uint32(b), true
}

func (c *cur) int32() (int32, bool) {
	v, ok := c.uint32()
	return int32(v), ok
}

func (c *cur) uint64() (uint64, bool) {
	b, ok := c.bytes(8)
	if !ok {
		return 0, false
	}
	return binary.LittleEndian.Uint64(b), true
}

// bVarChar reads a B_VARCHAR: 1-byte character count, then that many
// UCS-2 characters.
func (c *cur) bVarChar() (string, bool) {
	n, ok := c.byte()
	if !ok {
		return "", false
	}
	b, ok := c.bytes(int(n) * 2)
	if !ok {
		return "", false
	}
	return ucs2ToString(b), true
}

// usVarChar reads a US_VARCHAR: 2-byte character count, then that many
// UCS-2 characters.
func (c *cur) usVarChar() (string, bool) {
	n, ok := c.uint16()
	if !ok {
		return "", false
	}
	b, ok := c.bytes(int(n) * 2)
	if !ok {
		return "", false
	}
	return ucs2ToString(b), true
}

// Next parses and returns exactly one token. The return value's dynamic
// type tells the caller what arrived: ColMetadata, Row, Done, ServerError,
// EnvChange, LoginAck, FedAuthInfo, or nil for tokens this client only
// needs to skip past (ORDER, COLINFO, RETURNVALUE, FEATUREEXTACK, SSPI).
func (r *TokenReader) Next() (any, error) {
	if len(r.buf) == 0 {
		return nil, ErrNeedMoreData
	}
	tt := TokenType(r.buf[0])
	c := &cur{buf: r.buf, pos: 1}

	var (
		val any
		ok  bool
	)
	switch tt {
	case TokenColMetadata:
		val, ok = r.parseColMetadata(c)
	case TokenRow:
		val, ok = r.parseRow(c)
	case TokenNBCRow:
		val, ok = r.parseNBCRow(c)
	case TokenDone, TokenDoneProc, TokenDoneInProc:
		val, ok = parseDone(c, tt)
	case TokenError:
		val, ok = parseServerError(c, false)
	case TokenInfo:
		val, ok = parseServerError(c, true)
	case TokenEnvChange:
		val, ok = parseEnvChange(c)
	case TokenLoginAck:
		val, ok = parseLoginAck(c)
	case TokenFedAuthInfo:
		val, ok = parseFedAuthInfo(c)
	case TokenOrder, TokenColInfo, TokenReturnValue, TokenFeatureExtAck, TokenSSPI, TokenReturnStatus:
		ok = skipLengthPrefixedToken(c, tt)
		val = nil
	default:
		return nil, errx.Newf(errx.KindProtocol, "tds: unknown token type 0x%02X", byte(tt))
	}

	if !ok {
		return nil, ErrNeedMoreData
	}
	r.buf = r.buf[c.pos:]
	return val, nil
}

// skipLengthPrefixedToken consumes a token this client doesn't interpret
// but whose payload is a simple 2-byte length prefix (ORDER, COLINFO,
// RETURNVALUE, FEATUREEXTACK, SSPI). TokenReturnStatus is fixed-length
// (a LONG) and has no prefix; handled as a special case.
func skipLengthPrefixedToken(c *cur, tt TokenType) bool {
	if tt == TokenReturnStatus {
		_, ok := c.int32()
		return ok
	}
	n, ok := c.uint16()
	if !ok {
		return false
	}
	_, ok = c.bytes(int(n))
	return ok
}

// ColMetadata is the decoded COLMETADATA token.
type ColMetadata struct {
	Columns []Column
}

func (r *TokenReader) parseColMetadata(c *cur) (any, bool) {
	count, ok := c.uint16()
	if !ok {
		return nil, false
	}
	if count == 0xFFFF { // no metadata (e.g. NOMETADATA RPC option)
		r.columns = nil
		return ColMetadata{}, true
	}

	columns := make([]Column, count)
	for i := range columns {
		userType, ok := c.uint32()
		if !ok {
			return nil, false
		}
		flags, ok := c.uint16()
		if !ok {
			return nil, false
		}
		typeByte, ok := c.byte()
		if !ok {
			return nil, false
		}
		col := Column{
			Type:     SQLType(typeByte),
			UserType: userType,
			Flags:    flags,
			Nullable: IsNullable(flags),
		}

		if !readTypeInfo(c, &col) {
			return nil, false
		}

		if col.Type == TypeText || col.Type == TypeNText || col.Type == TypeImage {
			numParts, ok := c.byte()
			if !ok {
				return nil, false
			}
			for p := byte(0); p < numParts; p++ {
				if _, ok := c.usVarChar(); !ok {
					return nil, false
				}
			}
		}

		name, ok := c.bVarChar()
		if !ok {
			return nil, false
		}
		col.Name = name
		col.Decode = bindColumnDecoder(col)
		columns[i] = col
	}

	r.columns = columns
	return ColMetadata{Columns: columns}, true
}

// readTypeInfo reads the TYPE_INFO portion following a column's type id,
// populating Length/Scale/Precision/Collation on col.
func readTypeInfo(c *cur, col *Column) bool {
	switch {
	case IsFixedLength(col.Type):
		col.Length = uint32(FixedLength(col.Type))

	case col.Type == TypeGUID, col.Type == TypeDateN:
		if col.Type == TypeGUID {
			n, ok := c.byte()
			if !ok {
				return false
			}
			col.Length = uint32(n)
		} else {
			col.Length = 3
		}

	case col.Type == TypeTimeN, col.Type == TypeDateTime2N, col.Type == TypeDateTimeOffsetN:
		scale, ok := c.byte()
		if !ok {
			return false
		}
		col.Scale = scale
		col.Length = uint32(TimeByteLen(scale))
		if col.Type == TypeDateTime2N {
			col.Length += 3
		} else if col.Type == TypeDateTimeOffsetN {
			col.Length += 3 + 2
		}

	case col.Type == TypeDecimal, col.Type == TypeDecimalN, col.Type == TypeNumeric, col.Type == TypeNumericN:
		n, ok := c.byte()
		if !ok {
			return false
		}
		col.Length = uint32(n)
		prec, ok := c.byte()
		if !ok {
			return false
		}
		col.Precision = prec
		scale, ok := c.byte()
		if !ok {
			return false
		}
		col.Scale = scale

	case col.Type == TypeIntN, col.Type == TypeBitN, col.Type == TypeFloatN,
		col.Type == TypeMoneyN, col.Type == TypeDateTimeN,
		col.Type == TypeChar, col.Type == TypeVarChar, col.Type == TypeBinary, col.Type == TypeVarBinary:
		n, ok := c.byte()
		if !ok {
			return false
		}
		col.Length = uint32(n)
		if HasCollation(col.Type) {
			coll, ok := c.bytes(5)
			if !ok {
				return false
			}
			col.Collation = append([]byte(nil), coll...)
		}

	case col.Type == TypeBigChar, col.Type == TypeBigVarChar, col.Type == TypeBigBinary, col.Type == TypeBigVarBin,
		col.Type == TypeNChar, col.Type == TypeNVarChar:
		n, ok := c.uint16()
		if !ok {
			return false
		}
		col.Length = uint32(n)
		if HasCollation(col.Type) {
			coll, ok := c.bytes(5)
			if !ok {
				return false
			}
			col.Collation = append([]byte(nil), coll...)
		}

	case col.Type == TypeText, col.Type == TypeNText, col.Type == TypeImage:
		n, ok := c.uint32()
		if !ok {
			return false
		}
		col.Length = n
		if col.Type != TypeImage {
			coll, ok := c.bytes(5)
			if !ok {
				return false
			}
			col.Collation = append([]byte(nil), coll...)
		}

	case col.Type == TypeSSVariant:
		n, ok := c.uint32()
		if !ok {
			return false
		}
		col.Length = n

	case col.Type == TypeXML, col.Type == TypeUDT:
		// XML: 1 byte schema-presence flag (ignored, no schema support).
		// UDT: PLP length handled at row-decode time via length 0xFFFF.
		_, ok := c.byte()
		if !ok {
			return false
		}

	case col.Type == TypeNull:
		// no TYPE_INFO

	default:
		return false
	}
	return true
}

// Row is a decoded ROW or NBCROW token: one value per column, in column
// order, nil for SQL NULL.
type Row struct {
	Values []interface{}
}

func (r *TokenReader) parseRow(c *cur) (any, bool) {
	values := make([]interface{}, len(r.columns))
	for i, col := range r.columns {
		v, ok := col.Decode(c)
		if !ok {
			return nil, false
		}
		values[i] = v
	}
	return Row{Values: values}, true
}

// parseNBCRow decodes a null-bitmap-compressed row. It shares column.Decode
// with parseRow — the bitmap only decides whether to call Decode at all,
// never how to interpret a value once called — which is what prevents the
// two paths from diverging on a column's scale or width.
func (r *TokenReader) parseNBCRow(c *cur) (any, bool) {
	n := len(r.columns)
	bitmapLen := (n + 7) / 8
	bitmap, ok := c.bytes(bitmapLen)
	if !ok {
		return nil, false
	}
	values := make([]interface{}, n)
	for i, col := range r.columns {
		if IsNullInBitmap(bitmap, i) {
			values[i] = nil
			continue
		}
		v, ok := col.Decode(c)
		if !ok {
			return nil, false
		}
		values[i] = v
	}
	return Row{Values: values}, true
}

func parseDone(c *cur, tt TokenType) (any, bool) {
	status, ok := c.uint16()
	if !ok {
		return nil, false
	}
	curCmd, ok := c.uint16()
	if !ok {
		return nil, false
	}
	rowCount, ok := c.uint64()
	if !ok {
		return nil, false
	}
	return Done{Type: tt, Status: status, CurCmd: curCmd, RowCount: rowCount}, true
}

func parseServerError(c *cur, isInfo bool) (any, bool) {
	length, ok := c.uint16()
	if !ok {
		return nil, false
	}
	bodyStart := c.pos
	number, ok := c.int32()
	if !ok {
		return nil, false
	}
	state, ok := c.byte()
	if !ok {
		return nil, false
	}
	severity, ok := c.byte()
	if !ok {
		return nil, false
	}
	msg, ok := c.usVarChar()
	if !ok {
		return nil, false
	}
	server, ok := c.bVarChar()
	if !ok {
		return nil, false
	}
	proc, ok := c.bVarChar()
	if !ok {
		return nil, false
	}
	line, ok := c.int32()
	if !ok {
		return nil, false
	}
	// Defend against a length field that disagrees with the fields we
	// actually parsed by trusting our own cursor position, but verify we
	// didn't overrun it.
	if c.pos-bodyStart > int(length) {
		return nil, false
	}
	return ServerError{
		IsInfo: isInfo, Number: number, State: state, Severity: severity,
		Message: msg, ServerName: server, ProcName: proc, LineNumber: line,
	}, true
}

func parseEnvChange(c *cur) (any, bool) {
	length, ok := c.uint16()
	if !ok {
		return nil, false
	}
	start := c.pos
	subType, ok := c.byte()
	if !ok {
		return nil, false
	}

	end := start + int(length)
	if end > len(c.buf) {
		return nil, false
	}

	switch subType {
	case EnvRouting:
		// ROUTING is the one sub-type whose value/old-value fields carry a
		// 2-byte length instead of the 1-byte length every other sub-type
		// uses.
		nraw, ok := c.uint16()
		if !ok {
			return nil, false
		}
		newRaw, ok := c.bytes(int(nraw))
		if !ok {
			return nil, false
		}
		oraw, ok := c.uint16()
		if !ok {
			return nil, false
		}
		oldRaw, ok := c.bytes(int(oraw))
		if !ok {
			return nil, false
		}
		return EnvChange{SubType: subType, NewRaw: newRaw, OldRaw: oldRaw}, true

	case EnvSQLCollation, EnvBeginTran, EnvCommitTran, EnvRollbackTran, EnvEnlistDTC, EnvDefectTran, EnvTranMgrAddr:
		// These carry raw bytes (collation info, transaction descriptors),
		// not a UCS-2 string — the length prefix counts bytes, not chars.
		newLen, ok := c.byte()
		if !ok {
			return nil, false
		}
		newRaw, ok := c.bytes(int(newLen))
		if !ok {
			return nil, false
		}
		oldLen, ok := c.byte()
		if !ok {
			return nil, false
		}
		oldRaw, ok := c.bytes(int(oldLen))
		if !ok {
			return nil, false
		}
		return EnvChange{SubType: subType, NewRaw: newRaw, OldRaw: oldRaw}, true

	default:
		newVal, ok := c.bVarChar()
		if !ok {
			return nil, false
		}
		oldVal, ok := c.bVarChar()
		if !ok {
			return nil, false
		}
		// consume any trailer within the announced length (some sub-types,
		// e.g. transaction descriptors, pad with extra bytes).
		if c.pos < end {
			if _, ok := c.bytes(end - c.pos); !ok {
				return nil, false
			}
		}
		return EnvChange{SubType: subType, NewValue: newVal, OldValue: oldVal}, true
	}
}

func parseLoginAck(c *cur) (any, bool) {
	_, ok := c.uint16() // length
	if !ok {
		return nil, false
	}
	iface, ok := c.byte()
	if !ok {
		return nil, false
	}
	tdsVersion, ok := c.uint32()
	if !ok {
		return nil, false
	}
	// TDS version on the wire here is big-endian, unlike every other
	// 32-bit field in the protocol.
	tdsVersion = byteSwap32(tdsVersion)
	progName, ok := c.bVarChar()
	if !ok {
		return nil, false
	}
	progVersionRaw, ok := c.bytes(4)
	if !ok {
		return nil, false
	}
	progVersion := binary.BigEndian.Uint32(progVersionRaw)
	return LoginAck{
		Interface: LoginAckInterface(iface), TDSVersion: tdsVersion,
		ProgName: progName, ProgVersion: progVersion,
	}, true
}

// bindColumnDecoder returns the Decode closure for col, chosen once from
// its COLMETADATA-announced type/length/scale/precision. Every later ROW
// and NBCROW cell for this column calls the exact same closure, which is
// what keeps the two row formats from diverging on how a given column's
// bytes are interpreted.
func bindColumnDecoder(col Column) func(c *cur) (interface{}, bool) {
	switch {
	case IsFixedLength(col.Type):
		n := FixedLength(col.Type)
		return func(c *cur) (interface{}, bool) {
			b, ok := c.bytes(n)
			if !ok {
				return nil, false
			}
			return decodeFixed(col.Type, b), true
		}

	case col.Type == TypeGUID:
		return func(c *cur) (interface{}, bool) {
			n, ok := c.byte()
			if !ok {
				return nil, false
			}
			if n == 0 {
				return nil, true
			}
			b, ok := c.bytes(int(n))
			if !ok {
				return nil, false
			}
			return FormatGUID(decodeGUID(b)), true
		}

	case col.Type == TypeDateN:
		return func(c *cur) (interface{}, bool) {
			n, ok := c.byte()
			if !ok {
				return nil, false
			}
			if n == 0 {
				return nil, true
			}
			b, ok := c.bytes(int(n))
			if !ok {
				return nil, false
			}
			return decodeDate(b), true
		}

	case col.Type == TypeTimeN:
		scale := col.Scale
		return func(c *cur) (interface{}, bool) {
			n, ok := c.byte()
			if !ok {
				return nil, false
			}
			if n == 0 {
				return nil, true
			}
			b, ok := c.bytes(int(n))
			if !ok {
				return nil, false
			}
			return decodeTime(b, scale), true
		}

	case col.Type == TypeDateTime2N:
		scale := col.Scale
		return func(c *cur) (interface{}, bool) {
			n, ok := c.byte()
			if !ok {
				return nil, false
			}
			if n == 0 {
				return nil, true
			}
			b, ok := c.bytes(int(n))
			if !ok {
				return nil, false
			}
			return decodeDateTime2(b, scale), true
		}

	case col.Type == TypeDateTimeOffsetN:
		scale := col.Scale
		return func(c *cur) (interface{}, bool) {
			n, ok := c.byte()
			if !ok {
				return nil, false
			}
			if n == 0 {
				return nil, true
			}
			b, ok := c.bytes(int(n))
			if !ok {
				return nil, false
			}
			return decodeDateTimeOffset(b, scale), true
		}

	case col.Type == TypeDecimal, col.Type == TypeDecimalN, col.Type == TypeNumeric, col.Type == TypeNumericN:
		scale := col.Scale
		return func(c *cur) (interface{}, bool) {
			n, ok := c.byte()
			if !ok {
				return nil, false
			}
			if n == 0 {
				return nil, true
			}
			b, ok := c.bytes(int(n))
			if !ok {
				return nil, false
			}
			return decodeDecimal(b, scale), true
		}

	case col.Type == TypeIntN, col.Type == TypeBitN, col.Type == TypeFloatN, col.Type == TypeMoneyN, col.Type == TypeDateTimeN:
		typ := col.Type
		return func(c *cur) (interface{}, bool) {
			n, ok := c.byte()
			if !ok {
				return nil, false
			}
			if n == 0 {
				return nil, true
			}
			b, ok := c.bytes(int(n))
			if !ok {
				return nil, false
			}
			return decodeSized(typ, b), true
		}

	case col.Type == TypeChar, col.Type == TypeVarChar, col.Type == TypeBinary, col.Type == TypeVarBinary:
		isText := col.Type == TypeChar || col.Type == TypeVarChar
		return func(c *cur) (interface{}, bool) {
			n, ok := c.byte()
			if !ok {
				return nil, false
			}
			if n == 0xFF {
				return nil, true
			}
			b, ok := c.bytes(int(n))
			if !ok {
				return nil, false
			}
			if isText {
				return legacyTextToString(b), true
			}
			return append([]byte(nil), b...), true
		}

	case col.Type == TypeBigChar, col.Type == TypeBigVarChar, col.Type == TypeBigBinary, col.Type == TypeBigVarBin,
		col.Type == TypeNChar, col.Type == TypeNVarChar:
		isUCS2 := col.Type == TypeNChar || col.Type == TypeNVarChar
		isText := isUCS2 || col.Type == TypeBigChar || col.Type == TypeBigVarChar
		plp := col.Length == 0xFFFF
		return func(c *cur) (interface{}, bool) {
			if plp {
				data, isNull, ok := decodePLP(c)
				if !ok {
					return nil, false
				}
				if isNull {
					return nil, true
				}
				if isUCS2 {
					return ucs2ToString(data), true
				}
				return data, true
			}
			n, ok := c.uint16()
			if !ok {
				return nil, false
			}
			if n == 0xFFFF {
				return nil, true
			}
			b, ok := c.bytes(int(n))
			if !ok {
				return nil, false
			}
			if isUCS2 {
				return ucs2ToString(b), true
			}
			if isText {
				return legacyTextToString(b), true
			}
			return append([]byte(nil), b...), true
		}

	case col.Type == TypeText, col.Type == TypeNText, col.Type == TypeImage:
		isUCS2 := col.Type == TypeNText
		isText := isUCS2 || col.Type == TypeText
		return func(c *cur) (interface{}, bool) {
			tpLen, ok := c.byte()
			if !ok {
				return nil, false
			}
			if tpLen == 0 {
				return nil, true
			}
			if _, ok := c.bytes(int(tpLen)); !ok { // text pointer
				return nil, false
			}
			if _, ok := c.bytes(8); !ok { // timestamp
				return nil, false
			}
			n, ok := c.uint32()
			if !ok {
				return nil, false
			}
			b, ok := c.bytes(int(n))
			if !ok {
				return nil, false
			}
			if isUCS2 {
				return ucs2ToString(b), true
			}
			if isText {
				return legacyTextToString(b), true
			}
			return append([]byte(nil), b...), true
		}

	case col.Type == TypeXML, col.Type == TypeUDT:
		return func(c *cur) (interface{}, bool) {
			data, isNull, ok := decodePLP(c)
			if !ok {
				return nil, false
			}
			if isNull {
				return nil, true
			}
			return data, true
		}

	case col.Type == TypeSSVariant:
		return decodeSSVariant

	default:
		return func(c *cur) (interface{}, bool) {
			return nil, true
		}
	}
}

// decodeFixed decodes a fixed-length (no length prefix) value.
func decodeFixed(typ SQLType, b []byte) interface{} {
	switch typ {
	case TypeNull:
		return nil
	case TypeInt1:
		return b[0]
	case TypeBit:
		return b[0] != 0
	case TypeInt2:
		return int16(binary.LittleEndian.Uint16(b))
	case TypeInt4:
		return int32(binary.LittleEndian.Uint32(b))
	case TypeInt8:
		return int64(binary.LittleEndian.Uint64(b))
	case TypeFloat4:
		return float32FromBits(binary.LittleEndian.Uint32(b))
	case TypeFloat8:
		return float64FromBits(binary.LittleEndian.Uint64(b))
	case TypeMoney4:
		return decimalFromMoney4(int32(binary.LittleEndian.Uint32(b)))
	case TypeMoney:
		return decimalFromMoney(b)
	case TypeDateTime:
		return decodeDateTime(b)
	case TypeDateTime4:
		return decodeDateTime4(b)
	default:
		return append([]byte(nil), b...)
	}
}

// decodeSized decodes an *N type's length-prefixed value, given the
// length byte already consumed and the payload bytes read.
func decodeSized(typ SQLType, b []byte) interface{} {
	switch typ {
	case TypeIntN:
		switch len(b) {
		case 1:
			return b[0]
		case 2:
			return int16(binary.LittleEndian.Uint16(b))
		case 4:
			return int32(binary.LittleEndian.Uint32(b))
		case 8:
			return int64(binary.LittleEndian.Uint64(b))
		}
	case TypeBitN:
		return b[0] != 0
	case TypeFloatN:
		switch len(b) {
		case 4:
			return float32FromBits(binary.LittleEndian.Uint32(b))
		case 8:
			return float64FromBits(binary.LittleEndian.Uint64(b))
		}
	case TypeMoneyN:
		switch len(b) {
		case 4:
			return decimalFromMoney4(int32(binary.LittleEndian.Uint32(b)))
		case 8:
			return decimalFromMoney(b)
		}
	case TypeDateTimeN:
		switch len(b) {
		case 4:
			return decodeDateTime4(b)
		case 8:
			return decodeDateTime(b)
		}
	}
	return nil
}

func byteSwap32(v uint32) uint32 {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return binary.BigEndian.Uint32(b)
}

func float32FromBits(v uint32) float32 { return math.Float32frombits(v) }
func float64FromBits(v uint64) float64 { return math.Float64frombits(v) }

// decimalFromMoney4 decodes SMALLMONEY: a signed 32-bit integer scaled by
// 10000.
func decimalFromMoney4(v int32) decimal.Decimal {
	return decimal.New(int64(v), -4)
}

// decimalFromMoney decodes MONEY: two little-endian int32 halves (high,
// then low) forming a signed 64-bit integer scaled by 10000.
func decimalFromMoney(b []byte) decimal.Decimal {
	high := int32(binary.LittleEndian.Uint32(b[0:4]))
	low := uint32(binary.LittleEndian.Uint32(b[4:8]))
	v := int64(high)<<32 | int64(low)
	return decimal.New(v, -4)
}

// decodePLP reads a partially-length-prefixed value: an 8-byte length
// sentinel followed by zero or more (4-byte length, bytes) chunks
// terminated by a zero-length chunk. The sentinel's own value is never
// trusted as the total size — only the chunk terminator is, since a
// streaming server is free to send PLP_UNKNOWN_LEN (0xFFFFFFFFFFFFFFFE)
// instead of a real total.
func decodePLP(c *cur) (data []byte, isNull bool, ok bool) {
	total, ok := c.uint64()
	if !ok {
		return nil, false, false
	}
	if total == 0xFFFFFFFFFFFFFFFF {
		return nil, true, true
	}
	var out []byte
	for {
		chunkLen, ok := c.uint32()
		if !ok {
			return nil, false, false
		}
		if chunkLen == 0 {
			break
		}
		b, ok := c.bytes(int(chunkLen))
		if !ok {
			return nil, false, false
		}
		out = append(out, b...)
	}
	return out, false, true
}

// decodeSSVariant decodes a SQL_VARIANT value: a 4-byte total length (0
// means NULL), a 1-byte base type, a 1-byte property-bytes count, the
// property bytes themselves (scale/precision/length/collation, depending
// on the base type), and the value payload sized by whatever remains of
// the announced length.
func decodeSSVariant(c *cur) (interface{}, bool) {
	totalLen, ok := c.uint32()
	if !ok {
		return nil, false
	}
	if totalLen == 0 {
		return nil, true
	}
	baseType, ok := c.byte()
	if !ok {
		return nil, false
	}
	propLen, ok := c.byte()
	if !ok {
		return nil, false
	}
	props, ok := c.bytes(int(propLen))
	if !ok {
		return nil, false
	}
	valueLen := int(totalLen) - 2 - int(propLen)
	if valueLen < 0 {
		return nil, false
	}
	val, ok := c.bytes(valueLen)
	if !ok {
		return nil, false
	}

	switch SQLType(baseType) {
	case TypeInt1, TypeBit, TypeInt2, TypeInt4, TypeInt8, TypeFloat4, TypeFloat8, TypeDateTime, TypeDateTime4, TypeMoney, TypeMoney4:
		return decodeFixed(SQLType(baseType), val), true
	case TypeGUID:
		var b [16]byte
		copy(b[:], val)
		return FormatGUID(decodeGUID(b[:])), true
	case TypeDecimal, TypeNumeric:
		scale := byte(0)
		if len(props) >= 2 {
			scale = props[1]
		}
		return decodeDecimal(val, scale), true
	case TypeBigVarChar, TypeBigChar:
		return string(val), true
	case TypeNVarChar, TypeNChar:
		return ucs2ToString(val), true
	default:
		return append([]byte(nil), val...), true
	}
}

func parseFedAuthInfo(c *cur) (any, bool) {
	length, ok := c.uint32()
	if !ok {
		return nil, false
	}
	start := c.pos
	count, ok := c.uint32()
	if !ok {
		return nil, false
	}
	type optHdr struct {
		id            byte
		dataLen       uint32
		dataOffset    uint32
	}
	opts := make([]optHdr, count)
	for i := range opts {
		id, ok := c.byte()
		if !ok {
			return nil, false
		}
		dataLen, ok := c.uint32()
		if !ok {
			return nil, false
		}
		dataOffset, ok := c.uint32()
		if !ok {
			return nil, false
		}
		opts[i] = optHdr{id: id, dataLen: dataLen, dataOffset: dataOffset}
	}

	info := FedAuthInfo{}
	for _, o := range opts {
		absOffset := start + 4 + int(o.dataOffset)
		if absOffset+int(o.dataLen) > len(c.buf) {
			return nil, false
		}
		val := c.buf[absOffset : absOffset+int(o.dataLen)]
		switch o.id {
		case 0x01: // FEDAUTHINFOID_STSURL
			info.STSURL = ucs2ToString(val)
		case 0x02: // FEDAUTHINFOID_SPN
			info.SPN = ucs2ToString(val)
		}
	}

	end := start + int(length)
	if end > len(c.buf) || end < c.pos {
		return nil, false
	}
	c.pos = end
	return info, true
}
