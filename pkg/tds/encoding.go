package tds

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/golang-sql/civil"
	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/charmap"
)

// sqlBaseDate is day zero for the legacy DATETIME/DATETIME4/DATE encodings
// (1900-01-01), matching encodeDatetime's baseDate used on the write side.
var sqlBaseDate = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)

// decodeDateTime decodes the legacy 8-byte DATETIME: a 4-byte signed day
// count since 1900-01-01 followed by a 4-byte count of 1/300th-second
// ticks since midnight.
func decodeDateTime(buf []byte) time.Time {
	days := int32(binary.LittleEndian.Uint32(buf[0:4]))
	ticks := int32(binary.LittleEndian.Uint32(buf[4:8]))
	t := sqlBaseDate.AddDate(0, 0, int(days))
	ms := (time.Duration(ticks) * time.Second) / 300
	return t.Add(ms)
}

// decodeDateTime4 decodes SMALLDATETIME: a 2-byte day count since
// 1900-01-01 and a 2-byte minute-of-day count (no seconds).
func decodeDateTime4(buf []byte) time.Time {
	days := binary.LittleEndian.Uint16(buf[0:2])
	minutes := binary.LittleEndian.Uint16(buf[2:4])
	t := sqlBaseDate.AddDate(0, 0, int(days))
	return t.Add(time.Duration(minutes) * time.Minute)
}

// civilEpoch is day zero for the 3-byte DATE encoding (0001-01-01), shared
// by decodeDate/encodeDate.
var civilEpoch = time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC)

// decodeDate decodes the 3-byte DATE type: an unsigned day count since
// 0001-01-01.
func decodeDate(buf []byte) civil.Date {
	days := int(buf[0]) | int(buf[1])<<8 | int(buf[2])<<16
	t := civilEpoch.AddDate(0, 0, days)
	return civil.DateOf(t)
}

// encodeDate is decodeDate's inverse.
func encodeDate(d civil.Date) [3]byte {
	days := int((d.In(time.UTC).Unix() - civilEpoch.Unix()) / 86400)
	return [3]byte{byte(days), byte(days >> 8), byte(days >> 16)}
}

// scaleDivisor returns 10^scale: dividing 1e9 (nanoseconds per second) by
// this gives the wire unit width in nanoseconds for a TIME/DATETIME2
// fractional-second field at that scale. A scale-0 raw value is a whole
// count of seconds (unit width 1e9ns); a scale-7 raw value is a count of
// 100ns ticks (unit width 100ns) — each point of scale narrows the unit
// by a factor of 10.
func scaleDivisor(scale byte) int64 {
	switch scale {
	case 0:
		return 1
	case 1:
		return 10
	case 2:
		return 100
	case 3:
		return 1000
	case 4:
		return 10000
	case 5:
		return 100000
	case 6:
		return 1000000
	default:
		return 10000000
	}
}

// TimeByteLen returns the wire width of the TIME(scale)/DATETIME2(scale)
// fractional-second field for a given scale.
func TimeByteLen(scale byte) int {
	switch {
	case scale <= 2:
		return 3
	case scale <= 4:
		return 4
	default:
		return 5
	}
}

// decodeTimeFraction reads a little-endian unsigned integer of the width
// TimeByteLen(scale) implies and returns nanoseconds since midnight. This
// single function is shared by every caller that needs a TIME fraction —
// the ROW decoder, the NBCROW decoder, and DATETIME2's time-of-day half —
// so the scale used is always the one COLMETADATA announced for that
// column, never a value re-derived ad hoc at decode time.
func decodeTimeFraction(buf []byte, scale byte) time.Duration {
	var raw uint64
	for i := len(buf) - 1; i >= 0; i-- {
		raw = raw<<8 | uint64(buf[i])
	}
	ns := int64(raw) * (1000000000 / scaleDivisor(scale))
	return time.Duration(ns)
}

// decodeTime decodes a TIME(scale) value into a civil.Time.
func decodeTime(buf []byte, scale byte) civil.Time {
	d := decodeTimeFraction(buf, scale)
	t := time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC).Add(d)
	return civil.TimeOf(t)
}

// encodeTimeFraction is decodeTimeFraction's inverse: it packs nanoseconds
// since midnight into TimeByteLen(scale) little-endian bytes.
func encodeTimeFraction(d time.Duration, scale byte) []byte {
	raw := uint64(d.Nanoseconds()) / uint64(1000000000/scaleDivisor(scale))
	n := TimeByteLen(scale)
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[i] = byte(raw)
		raw >>= 8
	}
	return out
}

// encodeTime is decodeTime's inverse.
func encodeTime(t civil.Time, scale byte) []byte {
	d := time.Duration(t.Hour)*time.Hour +
		time.Duration(t.Minute)*time.Minute +
		time.Duration(t.Second)*time.Second +
		time.Duration(t.Nanosecond)
	return encodeTimeFraction(d, scale)
}

// decodeDateTime2 decodes a DATETIME2(scale) value: the time fraction
// (TimeByteLen(scale) bytes) followed by a 3-byte date, sharing the same
// decodeTimeFraction used for TIME.
func decodeDateTime2(buf []byte, scale byte) civil.DateTime {
	timeLen := TimeByteLen(scale)
	d := decodeTimeFraction(buf[:timeLen], scale)
	date := decodeDate(buf[timeLen : timeLen+3])
	t := time.Date(date.Year, date.Month, date.Day, 0, 0, 0, 0, time.UTC).Add(d)
	return civil.DateTimeOf(t)
}

// encodeDateTime2 is decodeDateTime2's inverse: the time fraction followed
// by the 3-byte date.
func encodeDateTime2(dt civil.DateTime, scale byte) []byte {
	wire := encodeTime(dt.Time, scale)
	date := encodeDate(dt.Date)
	return append(wire, date[:]...)
}

// DateTimeOffset is the decoded value of a DATETIMEOFFSET(scale) column:
// the local wall-clock datetime plus its UTC offset in minutes. We keep
// the offset separate from a resolved time.Time/zone because the wire
// value carries only a raw minute offset, not a named zone.
type DateTimeOffset struct {
	Local         civil.DateTime
	OffsetMinutes int16
}

// UTC resolves the offset into an absolute time.Time in UTC.
func (o DateTimeOffset) UTC() time.Time {
	loc := time.FixedZone("", int(o.OffsetMinutes)*60)
	local := time.Date(o.Local.Date.Year, o.Local.Date.Month, o.Local.Date.Day,
		o.Local.Time.Hour, o.Local.Time.Minute, o.Local.Time.Second, o.Local.Time.Nanosecond, loc)
	return local.UTC()
}

// decodeDateTimeOffset decodes a DATETIMEOFFSET(scale) value: the
// datetime2 portion (time fraction + date) followed by a 2-byte signed
// offset in minutes. Offsets at scale > 6 lose no information on the wire
// (DATETIMEOFFSET never exceeds scale 7); see SPEC_FULL.md §9 for the
// Open Question this resolves.
func decodeDateTimeOffset(buf []byte, scale byte) DateTimeOffset {
	timeLen := TimeByteLen(scale)
	dt := decodeDateTime2(buf[:timeLen+3], scale)
	offset := int16(binary.LittleEndian.Uint16(buf[timeLen+3 : timeLen+5]))
	return DateTimeOffset{Local: dt, OffsetMinutes: offset}
}

// encodeDateTimeOffset is decodeDateTimeOffset's inverse: the datetime2
// portion followed by a 2-byte signed minute offset.
func encodeDateTimeOffset(o DateTimeOffset, scale byte) []byte {
	wire := encodeDateTime2(o.Local, scale)
	offset := make([]byte, 2)
	binary.LittleEndian.PutUint16(offset, uint16(o.OffsetMinutes))
	return append(wire, offset...)
}

// decodeGUID reorders a 16-byte TDS GUID into standard big-endian
// string-form byte order. TDS stores the first three fields
// (data1 uint32, data2 uint16, data3 uint16) little-endian and the last
// two (an 8-byte clock-seq/node array) as-is.
func decodeGUID(buf []byte) [16]byte {
	var out [16]byte
	out[0], out[1], out[2], out[3] = buf[3], buf[2], buf[1], buf[0]
	out[4], out[5] = buf[5], buf[4]
	out[6], out[7] = buf[7], buf[6]
	copy(out[8:16], buf[8:16])
	return out
}

// FormatGUID renders the reordered bytes as a standard hyphenated GUID.
func FormatGUID(b [16]byte) string {
	return fmt.Sprintf("%08X-%04X-%04X-%04X-%012X",
		binary.BigEndian.Uint32(b[0:4]), binary.BigEndian.Uint16(b[4:6]), binary.BigEndian.Uint16(b[6:8]),
		binary.BigEndian.Uint16(b[8:10]), b[10:16])
}

// encodeGUID reorders standard big-endian string-form bytes back into TDS
// wire order. The swap decodeGUID performs is its own inverse (each
// reordered field is a fixed-width swap of the original), so this is the
// same permutation.
func encodeGUID(b [16]byte) [16]byte {
	return decodeGUID(b)
}

// parseGUIDString parses a hyphenated GUID string into the big-endian
// string-form byte order FormatGUID/decodeGUID produce, ready for
// encodeGUID to reorder onto the wire.
func parseGUIDString(s string) ([16]byte, bool) {
	var out [16]byte
	s = strings.ReplaceAll(s, "-", "")
	if len(s) != 32 {
		return out, false
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, false
	}
	copy(out[:], b)
	return out, true
}

// legacyTextToString decodes the single-byte CHAR/VARCHAR/TEXT wire form.
// These carry no collation negotiation in this client (COLMETADATA's 5
// collation bytes are round-tripped opaquely, never inspected), so bytes
// are decoded assuming the common Windows-1252 codepage rather than cast
// straight into a Go string: plain byte-to-string casting would produce
// invalid UTF-8 or the wrong glyph for any column value outside the ASCII
// range (e.g. 0x93/0x94 curly quotes, or accented Latin-1 letters).
func legacyTextToString(b []byte) string {
	out, err := charmap.Windows1252.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(out)
}

// stringToLegacyText is legacyTextToString's inverse, used when bulk
// loading into a single-byte CHAR/VARCHAR target column. Runes outside
// Windows-1252 are replaced with '?' rather than failing the whole batch
// over one unmappable character.
func stringToLegacyText(s string) []byte {
	enc := charmap.Windows1252.NewEncoder()
	out, err := enc.Bytes([]byte(s))
	if err == nil {
		return out
	}

	buf := make([]byte, 0, len(s))
	for _, r := range s {
		rb, err := enc.Bytes([]byte(string(r)))
		if err != nil {
			buf = append(buf, '?')
			continue
		}
		buf = append(buf, rb...)
	}
	return buf
}

// decodeDecimal decodes the DECIMAL/NUMERIC wire form: a 1-byte sign (0
// negative, 1 positive) followed by a little-endian magnitude spread
// across 4, 8, 12, or 16 bytes depending on precision, scaled by the
// column's Scale.
func decodeDecimal(buf []byte, scale byte) decimal.Decimal {
	sign := buf[0]
	mag := buf[1:]

	coeff := new(big.Int)
	word := new(big.Int)
	shift := new(big.Int)
	for i := len(mag) - 4; i >= 0; i -= 4 {
		word.SetUint64(uint64(binary.LittleEndian.Uint32(mag[i : i+4])))
		shift.Lsh(coeff, 32)
		coeff.Or(shift, word)
	}
	if sign == 0 {
		coeff.Neg(coeff)
	}
	return decimal.NewFromBigInt(coeff, -int32(scale))
}

// encodeDecimal is decodeDecimal's inverse: it rescales d to scale and
// packs its coefficient as magBytes little-endian bytes (the same layout
// decodeDecimal's 32-bit-word loop consumes), preceded by the sign byte.
// magBytes must be a multiple of 4 and wide enough for the column's
// declared precision, matching what writeTypeInfo advertised for col.
func encodeDecimal(d decimal.Decimal, scale byte, magBytes int) []byte {
	scaled := d.Rescale(-int32(scale))
	coeff := new(big.Int).Abs(scaled.Coefficient())

	out := make([]byte, magBytes+1)
	out[0] = 1
	if scaled.Sign() < 0 {
		out[0] = 0
	}
	be := coeff.Bytes()
	for i := 0; i < len(be) && i < magBytes; i++ {
		out[1+i] = be[len(be)-1-i]
	}
	return out
}

// encodeMoneyTicks rescales d to MONEY/SMALLMONEY's fixed 4-decimal-place
// representation and returns the resulting 1/10000ths-of-a-unit integer.
func encodeMoneyTicks(d decimal.Decimal) int64 {
	return d.Rescale(-4).Coefficient().Int64()
}
