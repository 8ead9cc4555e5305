package extension

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mssqlext/mssql-extension/pkg/catalog"
	"github.com/mssqlext/mssql-extension/pkg/tds"
)

func TestToWireColumnMapsKnownTypes(t *testing.T) {
	wc, err := toWireColumn(catalog.Column{Name: "id", SQLTypeName: "int", Nullable: false})
	require.NoError(t, err)
	assert.Equal(t, tds.TypeIntN, wc.Type)
	assert.Equal(t, "id", wc.Name)
}

func TestToWireColumnMapsMaxLengthSentinel(t *testing.T) {
	wc, err := toWireColumn(catalog.Column{Name: "body", SQLTypeName: "nvarchar", MaxLength: -1})
	require.NoError(t, err)
	assert.EqualValues(t, 0xFFFF, wc.Length)
}

func TestToWireColumnRejectsUnknownType(t *testing.T) {
	_, err := toWireColumn(catalog.Column{Name: "x", SQLTypeName: "geography"})
	assert.Error(t, err)
}

func TestDDLTypeClauseMatchesBulkRendering(t *testing.T) {
	clause, err := ddlTypeClause(catalog.Column{Name: "amount", SQLTypeName: "decimal", Precision: 18, Scale: 4})
	require.NoError(t, err)
	assert.Equal(t, "DECIMAL(18,4)", clause)
}
