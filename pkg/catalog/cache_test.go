package catalog

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeQuerier answers discovery queries from a canned table keyed by the
// substring each discover* query uses to identify its target view, mirroring
// how the production caller routes to distinct sys.* DMVs.
type fakeQuerier struct {
	calls int
	rows  map[string][][]interface{}
}

func (f *fakeQuerier) Query(ctx context.Context, sql string) ([][]interface{}, error) {
	f.calls++
	for key, rows := range f.rows {
		if strings.Contains(sql, key) {
			return rows, nil
		}
	}
	return nil, nil
}

func newFakeQuerier() *fakeQuerier {
	return &fakeQuerier{
		rows: map[string][][]interface{}{
			"sys.schemas": {{"dbo"}, {"sales"}, {"sys"}},
			"sys.objects": {{"orders", "U "}, {"order_totals", "V "}},
			"type_name": {
				{"id", int32(1), "int", int32(4), uint8(10), uint8(0), false, true},
				{"customer", int32(2), "nvarchar", int32(200), uint8(0), uint8(0), true, false},
			},
			"kc.type = 'PK'": {{"id"}},
		},
	}
}

func TestCacheDiscoversSchemaAndTable(t *testing.T) {
	q := newFakeQuerier()
	c := New(Config{}, q)

	s, err := c.Schema(context.Background(), "dbo")
	require.NoError(t, err)
	assert.Equal(t, "dbo", s.Name)

	_, err = c.Schema(context.Background(), "sys")
	assert.Error(t, err, "sys is a fixed system schema and must not be exposed")

	tbl, err := c.Table(context.Background(), "dbo", "orders")
	require.NoError(t, err)
	require.Len(t, tbl.Columns, 2)
	assert.Equal(t, "id", tbl.Columns[0].Name)
	assert.Equal(t, []string{"id"}, tbl.PrimaryKey)
	assert.False(t, tbl.IsView)

	view, err := c.Table(context.Background(), "dbo", "order_totals")
	require.NoError(t, err)
	assert.True(t, view.IsView)
}

func TestCacheTableNotFoundWhenUnknown(t *testing.T) {
	c := New(Config{}, newFakeQuerier())
	_, err := c.Table(context.Background(), "dbo", "nonexistent")
	assert.Error(t, err)
}

func TestCacheSchemaVisibilityFilter(t *testing.T) {
	cfg, err := NewConfig(0, "^dbo$", "")
	require.NoError(t, err)
	c := New(cfg, newFakeQuerier())

	_, err = c.Schema(context.Background(), "dbo")
	assert.NoError(t, err)
	_, err = c.Schema(context.Background(), "sales")
	assert.Error(t, err)
}

func TestCacheInvalidRegexFailsFast(t *testing.T) {
	_, err := NewConfig(0, "(unterminated", "")
	assert.Error(t, err)
}

func TestCacheTTLExpiryReloadsSchemas(t *testing.T) {
	q := newFakeQuerier()
	c := New(Config{TTL: 10 * time.Millisecond}, q)

	_, err := c.Schemas(context.Background())
	require.NoError(t, err)
	callsAfterFirst := q.calls

	time.Sleep(20 * time.Millisecond)
	_, err = c.Schemas(context.Background())
	require.NoError(t, err)
	assert.Greater(t, q.calls, callsAfterFirst)
}

func TestCacheInvalidateTableCreatedAddsWithoutFullReload(t *testing.T) {
	q := newFakeQuerier()
	c := New(Config{}, q)

	_, err := c.Table(context.Background(), "dbo", "orders")
	require.NoError(t, err)

	c.InvalidateTableCreated("dbo", "new_table")
	s, err := c.Schema(context.Background(), "dbo")
	require.NoError(t, err)
	assert.True(t, s.HasTable("new_table"))
}

func TestSchemaTableNamesPreservesCreatedCasing(t *testing.T) {
	q := newFakeQuerier()
	c := New(Config{}, q)

	s, err := c.Schema(context.Background(), "dbo")
	require.NoError(t, err)

	c.InvalidateTableCreated("dbo", "NewTable")
	assert.Contains(t, s.TableNames(), "NewTable")
}

func TestCacheInvalidateTableDroppedRemovesIt(t *testing.T) {
	q := newFakeQuerier()
	c := New(Config{}, q)

	_, err := c.Table(context.Background(), "dbo", "orders")
	require.NoError(t, err)

	c.InvalidateTableDropped("dbo", "orders")
	s, err := c.Schema(context.Background(), "dbo")
	require.NoError(t, err)
	assert.False(t, s.HasTable("orders"))
}

func TestCacheRefreshForcesFullReload(t *testing.T) {
	q := newFakeQuerier()
	c := New(Config{}, q)

	_, err := c.Schemas(context.Background())
	require.NoError(t, err)
	before := q.calls

	c.Refresh()
	_, err = c.Schemas(context.Background())
	require.NoError(t, err)
	assert.Greater(t, q.calls, before)
}

func TestTableColumnLookupIsCaseInsensitive(t *testing.T) {
	q := newFakeQuerier()
	c := New(Config{}, q)
	tbl, err := c.Table(context.Background(), "dbo", "orders")
	require.NoError(t, err)

	col, ok := tbl.Column("CUSTOMER")
	require.True(t, ok)
	assert.Equal(t, "customer", col.Name)
}
