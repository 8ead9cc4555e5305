package pushdown

// encodeRowidCompare rewrites a comparison between the virtual rowid
// column and value back into the underlying PK column(s), per the rowid
// rewrite rule: equality with a composite PK expands to an AND of
// per-column equalities; any non-equality comparison against a composite
// PK is not pushable, since there is no single total order over the
// struct value that matches SQL Server's row order.
func encodeRowidCompare(op CompareOp, value Expr, ctx Context) (string, bool) {
	if ctx.Table == nil || len(ctx.Table.PrimaryKey) == 0 {
		return "", false
	}
	pk := ctx.Table.PrimaryKey

	if len(pk) == 1 {
		rhs, ok := Encode(value, ctx)
		if !ok {
			return "", false
		}
		return bracketQuote(pk[0]) + " " + op.sql() + " " + rhs, true
	}

	// Composite PK: only equality against a struct literal is pushable.
	if op != OpEQ {
		return "", false
	}
	if value.Kind != KindConst || value.Const.Kind != LitStruct {
		return "", false
	}
	fields := value.Const.Struct

	parts, ok := rowidStructParts(pk, fields)
	if !ok {
		return "", false
	}
	sql := ""
	for i, p := range parts {
		if i > 0 {
			sql += " AND "
		}
		sql += p
	}
	return sql, true
}

func rowidStructParts(pk []string, fields map[string]Literal) ([]string, bool) {
	parts := make([]string, 0, len(pk))
	for _, col := range pk {
		lit, ok := fields[col]
		if !ok {
			return nil, false
		}
		s, ok := encodeLiteral(lit)
		if !ok {
			return nil, false
		}
		parts = append(parts, bracketQuote(col)+" = "+s)
	}
	return parts, true
}
