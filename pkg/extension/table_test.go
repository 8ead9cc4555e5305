package extension

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mssqlext/mssql-extension/pkg/catalog"
	"github.com/mssqlext/mssql-extension/pkg/pushdown"
)

func testTable() *catalog.Table {
	return &catalog.Table{
		Schema:     "dbo",
		Name:       "Orders",
		PrimaryKey: []string{"id"},
		Columns: []catalog.Column{
			{Name: "id", SQLTypeName: "int"},
			{Name: "status", SQLTypeName: "nvarchar", MaxLength: 100},
		},
	}
}

func TestBuildSelectDefaultsToStarProjection(t *testing.T) {
	sql, cols := buildSelect(testTable(), nil, nil, nil, pushdown.Context{Table: testTable()})
	assert.Equal(t, []string{"id", "status"}, cols)
	assert.Equal(t, "SELECT [id], [status] FROM [dbo].[Orders]", sql)
}

func TestBuildSelectPushesFilterAndOrder(t *testing.T) {
	table := testTable()
	filter := pushdown.Compare(pushdown.OpEQ, pushdown.Col("status"), pushdown.StringLit("open"))
	order := &pushdown.PlanNode{Kind: pushdown.KindOrder, Order: []pushdown.OrderColumn{{Expr: pushdown.Col("id"), NullsFirst: true}}}

	sql, _ := buildSelect(table, Projection{"id"}, filter, order, pushdown.Context{Table: table})
	assert.Equal(t, "SELECT [id] FROM [dbo].[Orders] WHERE [status] = N'open' ORDER BY [id] ASC", sql)
}

func TestBuildSelectPushesTopNOnFullCoverage(t *testing.T) {
	table := testTable()
	n := 5
	order := &pushdown.PlanNode{Kind: pushdown.KindTopN, Limit: &n, Order: []pushdown.OrderColumn{{Expr: pushdown.Col("id"), NullsFirst: true}}}

	sql, _ := buildSelect(table, nil, nil, order, pushdown.Context{Table: table})
	assert.Contains(t, sql, "SELECT TOP (5) ")
}

func TestQualifiedNameBracketsAndEscapes(t *testing.T) {
	assert.Equal(t, "[dbo].[Weird]]Name]", qualifiedName("dbo", "Weird]Name"))
}

func TestTranslateDDLRendersIfNotExistsGuard(t *testing.T) {
	e := &Extension{}
	ddl, err := e.TranslateDDL(CreateTableInfo{
		Schema: "dbo",
		Table:  "Staging",
		Columns: []catalog.Column{
			{Name: "id", SQLTypeName: "int", Nullable: false},
			{Name: "name", SQLTypeName: "nvarchar", MaxLength: 100, Nullable: true},
		},
	})
	require.NoError(t, err)
	assert.Contains(t, ddl, "IF NOT EXISTS")
	assert.Contains(t, ddl, "CREATE TABLE [dbo].[Staging]")
	assert.Contains(t, ddl, "[id] INT NOT NULL")
	assert.Contains(t, ddl, "[name] NVARCHAR(50) NULL")
}

func TestTranslateDDLRejectsUnsupportedColumnType(t *testing.T) {
	e := &Extension{}
	_, err := e.TranslateDDL(CreateTableInfo{
		Schema:  "dbo",
		Table:   "T",
		Columns: []catalog.Column{{Name: "x", SQLTypeName: "xml"}},
	})
	assert.Error(t, err)
}
