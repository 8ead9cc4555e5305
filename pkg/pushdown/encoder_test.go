package pushdown

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeIdentifierAndStringQuoting(t *testing.T) {
	sql, ok := Encode(Compare(OpEQ, Col("na]me"), StringLit("o'brien")), Context{})
	require.True(t, ok)
	assert.Equal(t, "[na]]me] = N'o''brien'", sql)
}

func TestEncodeTypedLiterals(t *testing.T) {
	cases := []struct {
		name string
		lit  Expr
		want string
	}{
		{"bool true", BoolLit(true), "1"},
		{"bool false", BoolLit(false), "0"},
		{"int", IntLit(42), "42"},
		{"decimal", DecimalLit(decimal.RequireFromString("19.95")), "19.95"},
		{"date", DateLit("2024-01-15"), "'2024-01-15'"},
		{"timestamp", TimestampLit("2024-01-15 10:30:00.000000"), "'2024-01-15 10:30:00.000000'"},
		{"blob", BlobLit([]byte{0xDE, 0xAD, 0xBE, 0xEF}), "0xDEADBEEF"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			sql, ok := Encode(c.lit, Context{})
			require.True(t, ok)
			assert.Equal(t, c.want, sql)
		})
	}
}

func TestEncodeAndPartialPushdown(t *testing.T) {
	unpushable := Expr{Kind: ExprKind(999)}
	sql, full := EncodeAnd([]Expr{
		Compare(OpEQ, Col("a"), IntLit(1)),
		unpushable,
		Compare(OpGT, Col("b"), IntLit(2)),
	}, Context{})
	assert.False(t, full)
	assert.Equal(t, "([a] = 1) AND ([b] > 2)", sql)
}

func TestEncodeOrIsAllOrNothing(t *testing.T) {
	unpushable := Expr{Kind: ExprKind(999)}
	_, ok := Encode(Or(Compare(OpEQ, Col("a"), IntLit(1)), unpushable), Context{})
	assert.False(t, ok)

	sql, ok := Encode(Or(Compare(OpEQ, Col("a"), IntLit(1)), Compare(OpEQ, Col("b"), IntLit(2))), Context{})
	require.True(t, ok)
	assert.Equal(t, "([a] = 1) OR ([b] = 2)", sql)
}

func TestEncodeIsNull(t *testing.T) {
	sql, ok := Encode(IsNull(Col("x"), false), Context{})
	require.True(t, ok)
	assert.Equal(t, "[x] IS NULL", sql)

	sql, ok = Encode(IsNull(Col("x"), true), Context{})
	require.True(t, ok)
	assert.Equal(t, "[x] IS NOT NULL", sql)
}

func TestEncodeIn(t *testing.T) {
	sql, ok := Encode(In(Col("x"), IntLit(1), IntLit(2), IntLit(3)), Context{})
	require.True(t, ok)
	assert.Equal(t, "[x] IN (1, 2, 3)", sql)
}

func TestEncodeInEmptyListNeverMatches(t *testing.T) {
	sql, ok := Encode(In(Col("x")), Context{})
	require.True(t, ok)
	assert.Equal(t, "1 = 0", sql)
}

func TestEncodeWhitelistedFunction(t *testing.T) {
	sql, ok := Encode(Compare(OpEQ, Fn("year", Col("created_at")), IntLit(2024)), Context{})
	require.True(t, ok)
	assert.Equal(t, "YEAR([created_at]) = 2024", sql)
}

func TestEncodeUnknownFunctionNotPushable(t *testing.T) {
	_, ok := Encode(Fn("reverse", Col("name")), Context{})
	assert.False(t, ok)
}

func TestEncodeLikePrefixSuffixContains(t *testing.T) {
	cases := []struct {
		kind string
		want string
	}{
		{"prefix", "[name] LIKE N'abc%' ESCAPE '\\'"},
		{"suffix", "[name] LIKE N'%abc' ESCAPE '\\'"},
		{"contains", "[name] LIKE N'%abc%' ESCAPE '\\'"},
	}
	for _, c := range cases {
		t.Run(c.kind, func(t *testing.T) {
			sql, ok := Encode(Like(c.kind, Col("name"), StringLit("abc")), Context{})
			require.True(t, ok)
			assert.Equal(t, c.want, sql)
		})
	}
}

func TestEncodeLikeEscapesMetacharacters(t *testing.T) {
	sql, ok := Encode(Like("contains", Col("name"), StringLit("50%_off[sale]")), Context{})
	require.True(t, ok)
	assert.Equal(t, `[name] LIKE N'%50\%\_off\[sale]%' ESCAPE '\'`, sql)
}

func TestEncodeLikeCaseInsensitiveLowercasesBothSides(t *testing.T) {
	sql, ok := Encode(Like("contains_ci", Col("name"), StringLit("ABC")), Context{})
	require.True(t, ok)
	assert.Equal(t, "LOWER([name]) LIKE N'%abc%' ESCAPE '\\'", sql)
}
