package tds

import (
	"testing"
	"time"

	"github.com/golang-sql/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulkLoadWriterRoundTrip(t *testing.T) {
	columns := []Column{
		{Name: "id", Type: TypeIntN, Length: 4, Nullable: false},
		{Name: "label", Type: TypeNVarChar, Length: 100, Nullable: true, Collation: DefaultCollation},
	}

	w := NewBulkLoadWriter(columns, false)
	w.WriteHeader()
	require.NoError(t, w.WriteRow([]interface{}{int64(1), "first"}))
	require.NoError(t, w.WriteRow([]interface{}{int64(2), nil}))
	body := w.Finish()

	r := NewTokenReader()
	r.Feed(body)

	meta, err := r.Next()
	require.NoError(t, err)
	cm := meta.(ColMetadata)
	require.Len(t, cm.Columns, 2)
	assert.Equal(t, "id", cm.Columns[0].Name)
	assert.Equal(t, "label", cm.Columns[1].Name)

	row1, err := r.Next()
	require.NoError(t, err)
	assert.EqualValues(t, 1, row1.(Row).Values[0])
	assert.Equal(t, "first", row1.(Row).Values[1])

	row2, err := r.Next()
	require.NoError(t, err)
	assert.EqualValues(t, 2, row2.(Row).Values[0])
	assert.Nil(t, row2.(Row).Values[1])

	done, err := r.Next()
	require.NoError(t, err)
	assert.EqualValues(t, 2, done.(Done).RowCount)
}

// TestBulkLoadWriterRoundTripsDecimalAndDateTime2 closes the gap left by
// TestBulkLoadWriterRoundTrip, which only exercised TypeIntN/TypeNVarChar:
// writeValue previously had no cases at all for DECIMAL/NUMERIC or
// DATE/TIME/DATETIME2/DATETIMEOFFSET, so any bulk load into a column of
// one of those types failed outright.
func TestBulkLoadWriterRoundTripsDecimalAndDateTime2(t *testing.T) {
	columns := []Column{
		{Name: "amount", Type: TypeDecimalN, Length: 9, Precision: 18, Scale: 2, Nullable: true},
		{Name: "ts", Type: TypeDateTime2N, Length: 8, Scale: 7, Nullable: true},
	}

	w := NewBulkLoadWriter(columns, false)
	w.WriteHeader()

	amount := decimal.RequireFromString("1234.56")
	ts := civil.DateTime{
		Date: civil.Date{Year: 2024, Month: time.March, Day: 15},
		Time: civil.Time{Hour: 13, Minute: 45, Second: 30, Nanosecond: 100000000},
	}
	require.NoError(t, w.WriteRow([]interface{}{amount, ts}))
	require.NoError(t, w.WriteRow([]interface{}{nil, nil}))
	body := w.Finish()

	r := NewTokenReader()
	r.Feed(body)

	meta, err := r.Next()
	require.NoError(t, err)
	cm := meta.(ColMetadata)
	require.Len(t, cm.Columns, 2)

	row1, err := r.Next()
	require.NoError(t, err)
	gotAmount, ok := row1.(Row).Values[0].(decimal.Decimal)
	require.True(t, ok)
	assert.True(t, amount.Equal(gotAmount), "got %s", gotAmount)
	assert.Equal(t, ts, row1.(Row).Values[1])

	row2, err := r.Next()
	require.NoError(t, err)
	assert.Nil(t, row2.(Row).Values[0])
	assert.Nil(t, row2.(Row).Values[1])

	done, err := r.Next()
	require.NoError(t, err)
	assert.EqualValues(t, 2, done.(Done).RowCount)
}

func TestBuildInsertBulkStatement(t *testing.T) {
	columns := []Column{
		{Name: "id", Type: TypeInt4},
		{Name: "name", Type: TypeNVarChar, Length: 100},
	}
	stmt := BuildInsertBulkStatement("[dbo].[Widgets]", columns, []string{"TABLOCK"})
	assert.Equal(t, "INSERT BULK [dbo].[Widgets] ([id] INT, [name] NVARCHAR(50)) WITH (TABLOCK)", stmt)
}

func TestBulkColumnTypeClauseRendersNullableWireVariantsAsBaseKeywords(t *testing.T) {
	assert.Equal(t, "INT", bulkColumnTypeClause(Column{Type: TypeIntN, Length: 4}))
	assert.Equal(t, "BIGINT", bulkColumnTypeClause(Column{Type: TypeIntN, Length: 8}))
	assert.Equal(t, "SMALLINT", bulkColumnTypeClause(Column{Type: TypeIntN, Length: 2}))
	assert.Equal(t, "TINYINT", bulkColumnTypeClause(Column{Type: TypeIntN, Length: 1}))
	assert.Equal(t, "BIT", bulkColumnTypeClause(Column{Type: TypeBitN}))
	assert.Equal(t, "REAL", bulkColumnTypeClause(Column{Type: TypeFloatN, Length: 4}))
	assert.Equal(t, "FLOAT", bulkColumnTypeClause(Column{Type: TypeFloatN, Length: 8}))
	assert.Equal(t, "SMALLMONEY", bulkColumnTypeClause(Column{Type: TypeMoneyN, Length: 4}))
	assert.Equal(t, "MONEY", bulkColumnTypeClause(Column{Type: TypeMoneyN, Length: 8}))
	assert.Equal(t, "SMALLDATETIME", bulkColumnTypeClause(Column{Type: TypeDateTimeN, Length: 4}))
	assert.Equal(t, "DATETIME", bulkColumnTypeClause(Column{Type: TypeDateTimeN, Length: 8}))
}
