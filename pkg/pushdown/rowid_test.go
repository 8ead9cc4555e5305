package pushdown

import (
	"testing"

	"github.com/mssqlext/mssql-extension/pkg/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scalarPKTable() *catalog.Table {
	return &catalog.Table{Schema: "dbo", Name: "orders", PrimaryKey: []string{"id"}}
}

func compositePKTable() *catalog.Table {
	return &catalog.Table{Schema: "dbo", Name: "order_items", PrimaryKey: []string{"order_id", "line_no"}}
}

func TestRowidScalarEquality(t *testing.T) {
	ctx := Context{Table: scalarPKTable()}
	sql, ok := Encode(Compare(OpEQ, Rowid(), IntLit(7)), ctx)
	require.True(t, ok)
	assert.Equal(t, "[id] = 7", sql)
}

func TestRowidScalarInequalityOnEitherSide(t *testing.T) {
	ctx := Context{Table: scalarPKTable()}
	sql, ok := Encode(Compare(OpGT, Rowid(), IntLit(7)), ctx)
	require.True(t, ok)
	assert.Equal(t, "[id] > 7", sql)

	// value OP rowid must invert the operator
	sql, ok = Encode(Compare(OpGT, IntLit(7), Rowid()), ctx)
	require.True(t, ok)
	assert.Equal(t, "[id] < 7", sql)
}

func TestRowidCompositeEquality(t *testing.T) {
	ctx := Context{Table: compositePKTable()}
	value := StructLit(map[string]Literal{
		"order_id": {Kind: LitInt, Int: 100},
		"line_no":  {Kind: LitInt, Int: 3},
	})
	sql, ok := Encode(Compare(OpEQ, Rowid(), value), ctx)
	require.True(t, ok)
	assert.Equal(t, "[order_id] = 100 AND [line_no] = 3", sql)
}

func TestRowidCompositeInequalityNotPushable(t *testing.T) {
	ctx := Context{Table: compositePKTable()}
	value := StructLit(map[string]Literal{
		"order_id": {Kind: LitInt, Int: 100},
		"line_no":  {Kind: LitInt, Int: 3},
	})
	_, ok := Encode(Compare(OpGT, Rowid(), value), ctx)
	assert.False(t, ok)
}

func TestRowidWithoutTableNotPushable(t *testing.T) {
	_, ok := Encode(Compare(OpEQ, Rowid(), IntLit(1)), Context{})
	assert.False(t, ok)
}

func TestRowidWithoutPrimaryKeyNotPushable(t *testing.T) {
	tbl := &catalog.Table{Schema: "dbo", Name: "heap"}
	_, ok := Encode(Compare(OpEQ, Rowid(), IntLit(1)), Context{Table: tbl})
	assert.False(t, ok)
}
