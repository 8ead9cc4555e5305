package tds

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestDecodeTimeFractionScaleZeroIsWholeSeconds is the regression case for
// scaleDivisor's scale->tick-width table: a scale-0 raw value is a plain
// count of seconds, not a sub-second fraction. raw=3600 at scale 0 must
// decode to exactly one hour, never 360 microseconds.
func TestDecodeTimeFractionScaleZeroIsWholeSeconds(t *testing.T) {
	raw := []byte{0x10, 0x0E, 0x00} // 3600 little-endian, TimeByteLen(0) == 3
	assert.Equal(t, time.Hour, decodeTimeFraction(raw, 0))
}

func TestDecodeTimeScaleZeroDecodesWholeSecondFraction(t *testing.T) {
	raw := []byte{0x10, 0x0E, 0x00}
	tm := decodeTime(raw, 0)
	assert.Equal(t, 1, tm.Hour)
	assert.Equal(t, 0, tm.Minute)
	assert.Equal(t, 0, tm.Second)
	assert.Equal(t, 0, tm.Nanosecond)
}

func TestEncodeTimeFractionRoundTripsDecodeTimeFraction(t *testing.T) {
	for _, scale := range []byte{0, 1, 2, 3, 4, 5, 6, 7} {
		d := 3*time.Hour + 4*time.Minute + 5*time.Second
		wire := encodeTimeFraction(d, scale)
		assert.Equal(t, d, decodeTimeFraction(wire, scale), "scale %d", scale)
	}
}

// TestLegacyTextRoundTripsWindows1252Bytes is the regression case for
// non-ASCII values in CHAR/VARCHAR/TEXT columns: naive byte-to-string
// casting mangles anything outside the ASCII range, where Windows-1252
// (the common default collation codepage) disagrees with UTF-8's encoding
// of the same code point.
func TestLegacyTextRoundTripsWindows1252Bytes(t *testing.T) {
	s := "café “quoted”"
	wire := stringToLegacyText(s)
	assert.Equal(t, s, legacyTextToString(wire))
}

func TestLegacyTextDecodesHighBitLatin1Letter(t *testing.T) {
	// 0xE9 is 'é' under both Latin-1 and Windows-1252.
	assert.Equal(t, "café", legacyTextToString([]byte{'c', 'a', 'f', 0xE9}))
}

func TestLegacyTextDecodesWindows1252CurlyQuote(t *testing.T) {
	// 0x93 is a C1 control code in Latin-1 but a left curly quote under
	// Windows-1252 — the byte a naive cast would mis-decode.
	assert.Equal(t, "“x”", legacyTextToString([]byte{0x93, 'x', 0x94}))
}

func TestLegacyTextEncodeReplacesUnsupportedRunes(t *testing.T) {
	out := stringToLegacyText("a中c")
	assert.Contains(t, string(out), "a")
	assert.Contains(t, string(out), "c")
}
