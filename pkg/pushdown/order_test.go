package pushdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectOrderDirectlyAboveScan(t *testing.T) {
	node, ok := DetectOrder([]PlanNode{{Kind: KindOrder}})
	require.True(t, ok)
	assert.Equal(t, KindOrder, node.Kind)
}

func TestDetectOrderSkipsOneProjection(t *testing.T) {
	node, ok := DetectOrder([]PlanNode{{Kind: KindProjection}, {Kind: KindTopN}})
	require.True(t, ok)
	assert.Equal(t, KindTopN, node.Kind)
}

func TestDetectOrderGivesUpPastTwoLevels(t *testing.T) {
	_, ok := DetectOrder([]PlanNode{{Kind: KindProjection}, {Kind: KindProjection}, {Kind: KindOrder}})
	assert.False(t, ok)
}

func TestDetectOrderNoneFound(t *testing.T) {
	_, ok := DetectOrder([]PlanNode{{Kind: KindOther}})
	assert.False(t, ok)
}

func TestEncodeOrderFullCoverage(t *testing.T) {
	limit := 10
	node := PlanNode{
		Kind: KindTopN,
		Order: []OrderColumn{
			{Expr: Col("d"), Desc: false, NullsFirst: true},
		},
		Limit: &limit,
	}
	res := EncodeOrder(node, Context{})
	assert.True(t, res.Full)
	assert.Equal(t, "ORDER BY [d] ASC", res.SQL)
	require.NotNil(t, res.TopN)
	assert.Equal(t, 10, *res.TopN)
}

func TestEncodeOrderStopsAtIncompatibleNullOrdering(t *testing.T) {
	node := PlanNode{
		Order: []OrderColumn{
			{Expr: Col("a"), Desc: false, NullsFirst: true},
			// DESC but host wants NULLS FIRST: SQL Server sorts NULLs last
			// on DESC, so this column can't be pushed.
			{Expr: Col("b"), Desc: true, NullsFirst: true},
			{Expr: Col("c"), Desc: false, NullsFirst: true},
		},
	}
	res := EncodeOrder(node, Context{})
	assert.False(t, res.Full)
	assert.Equal(t, 1, res.Pushed)
	assert.Equal(t, "ORDER BY [a] ASC", res.SQL)
	assert.Nil(t, res.TopN)
}

func TestEncodeOrderWithWhitelistedFunction(t *testing.T) {
	node := PlanNode{
		Order: []OrderColumn{
			{Expr: Fn("year", Col("created_at")), Desc: true, NullsFirst: false},
		},
	}
	res := EncodeOrder(node, Context{})
	assert.True(t, res.Full)
	assert.Equal(t, "ORDER BY YEAR([created_at]) DESC", res.SQL)
}

func TestEncodeOrderNothingPushableReturnsEmpty(t *testing.T) {
	node := PlanNode{Order: []OrderColumn{{Expr: Col("a"), Desc: false, NullsFirst: false}}}
	res := EncodeOrder(node, Context{})
	assert.False(t, res.Full)
	assert.Equal(t, 0, res.Pushed)
	assert.Equal(t, "", res.SQL)
}
