package pushdown

// NodeKind discriminates the minimal plan-node shapes the encoder needs to
// recognize while walking upward from a catalog scan.
type NodeKind int

const (
	KindScan NodeKind = iota
	KindProjection
	KindOrder
	KindTopN
	KindOther
)

// OrderColumn is one ORDER BY term as the host engine's optimizer reports
// it: either a direct column reference or a single-argument whitelisted
// function over one, plus the requested direction and NULL placement.
type OrderColumn struct {
	Expr       Expr // KindColumn or KindFunc
	Desc       bool
	NullsFirst bool
}

// PlanNode is the minimal ancestor shape DetectOrder walks through. Only
// Kind, Order, and Limit are consulted.
type PlanNode struct {
	Kind  NodeKind
	Order []OrderColumn
	Limit *int // set on KindTopN
}

// DetectOrder looks for a LogicalOrder/LogicalTopN node among ancestors,
// the plan nodes directly above the scan ordered nearest-first. It walks
// up to two levels, skipping a single intervening projection, per the
// "ORDER BY / TOP N pushdown" detection rule.
func DetectOrder(ancestors []PlanNode) (PlanNode, bool) {
	if len(ancestors) == 0 {
		return PlanNode{}, false
	}
	n := ancestors[0]
	if n.Kind == KindProjection {
		if len(ancestors) < 2 {
			return PlanNode{}, false
		}
		n = ancestors[1]
	}
	if n.Kind == KindOrder || n.Kind == KindTopN {
		return n, true
	}
	return PlanNode{}, false
}

// OrderResult is the outcome of attempting to push an ORDER BY/TOP N node.
type OrderResult struct {
	SQL    string // "ORDER BY ..." fragment, or "" if nothing was pushable
	Pushed int    // count of leading OrderColumns that were pushed
	Full   bool   // true if every OrderColumn in the node was pushed
	TopN   *int   // non-nil, full-coverage push of a KindTopN node's limit
}

// sqlServerNullsFirst reports where SQL Server places NULLs for direction
// desc, with no explicit NULLS FIRST/LAST clause available in T-SQL:
// first for ASC, last for DESC.
func sqlServerNullsFirst(desc bool) bool { return !desc }

// EncodeOrder pushes as long a prefix of node.Order as is pushable: each
// column must resolve to SQL (a plain column reference or a whitelisted
// single-argument function) and must have NULL-ordering compatible with
// SQL Server's fixed behavior, since T-SQL has no NULLS FIRST/LAST syntax
// to override it. The first incompatible or unencodable column stops the
// pushed prefix rather than being skipped over.
func EncodeOrder(node PlanNode, ctx Context) OrderResult {
	var terms []string
	for _, oc := range node.Order {
		if oc.NullsFirst != sqlServerNullsFirst(oc.Desc) {
			break
		}
		sql, ok := encodeOrderExpr(oc.Expr, ctx)
		if !ok {
			break
		}
		if oc.Desc {
			sql += " DESC"
		} else {
			sql += " ASC"
		}
		terms = append(terms, sql)
	}
	res := OrderResult{Pushed: len(terms), Full: len(terms) == len(node.Order)}
	if len(terms) == 0 {
		return res
	}
	res.SQL = "ORDER BY " + joinComma(terms)
	if res.Full && node.Kind == KindTopN && node.Limit != nil {
		n := *node.Limit
		res.TopN = &n
	}
	return res
}

// encodeOrderExpr resolves one ORDER BY term: a direct column reference or
// a single-argument whitelisted function call, per the pushdown subset —
// anything else (e.g. a multi-argument expression) is not pushable.
func encodeOrderExpr(e Expr, ctx Context) (string, bool) {
	switch e.Kind {
	case KindColumn:
		return bracketQuote(e.Column), true
	case KindFunc:
		if len(e.Args) != 1 {
			return "", false
		}
		return encodeFunc(e, ctx)
	default:
		return "", false
	}
}

func joinComma(parts []string) string {
	out := parts[0]
	for _, p := range parts[1:] {
		out += ", " + p
	}
	return out
}
