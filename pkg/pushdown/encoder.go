package pushdown

import (
	"fmt"
	"strings"

	"github.com/mssqlext/mssql-extension/pkg/catalog"
)

// Context carries the per-table state the encoder needs to resolve a rowid
// reference and to decide whether a pushed expression's NULL behavior
// matches the host engine's filter semantics.
type Context struct {
	// Table is consulted for the rowid rewrite; nil disables rowid support
	// (any expression touching rowid then reports unsupported).
	Table *catalog.Table
}

// funcTemplates maps a whitelisted scalar function name to its T-SQL
// spelling. Every entry here takes exactly one SQL-expression argument,
// per the expression subset this encoder supports.
var funcTemplates = map[string]string{
	"lower":     "LOWER(%s)",
	"upper":     "UPPER(%s)",
	"len":       "LEN(%s)",
	"ltrim":     "LTRIM(%s)",
	"rtrim":     "RTRIM(%s)",
	"year":      "YEAR(%s)",
	"month":     "MONTH(%s)",
	"day":       "DAY(%s)",
	"hour":      "DATEPART(HOUR, %s)",
	"minute":    "DATEPART(MINUTE, %s)",
	"second":    "DATEPART(SECOND, %s)",
	"date_part": "DATEPART(%s)",
	"date_add":  "DATEADD(%s)",
	"date_diff": "DATEDIFF(%s)",
}

// Encode translates expr into a T-SQL boolean expression. ok is false when
// expr (or, for AND, every one of its children) cannot be pushed; sql is
// only meaningful when ok is true. Partial AND pushdown is reflected by
// Encode itself dropping unpushable children and still returning ok=true
// for the pushable remainder — callers that need to know pushdown was
// partial should use EncodeAnd directly.
func Encode(expr Expr, ctx Context) (sql string, ok bool) {
	switch expr.Kind {
	case KindColumn:
		return bracketQuote(expr.Column), true

	case KindRowid:
		return "", false // a bare rowid reference outside a comparison is not a boolean expression

	case KindConst:
		s, ok := encodeLiteral(expr.Const)
		return s, ok

	case KindNot:
		inner, ok := Encode(expr.Args[0], ctx)
		if !ok {
			return "", false
		}
		return "NOT (" + inner + ")", true

	case KindAnd:
		sql, _ = EncodeAnd(expr.Args, ctx)
		return sql, sql != ""

	case KindOr:
		return encodeOr(expr.Args, ctx)

	case KindCompare:
		return encodeCompare(expr, ctx)

	case KindIsNull:
		return encodeIsNull(expr, ctx)

	case KindIn:
		return encodeIn(expr, ctx)

	case KindFunc:
		return encodeFunc(expr, ctx)

	case KindLike:
		return encodeLike(expr, ctx)

	default:
		return "", false
	}
}

// EncodeAnd encodes a conjunction's children independently and joins the
// pushable ones with AND, per the partial-pushdown rule. full reports
// whether every child was pushable — the host engine must re-apply all
// filters if full is false, per the "AND allows partial pushdown" rule.
func EncodeAnd(children []Expr, ctx Context) (sql string, full bool) {
	var parts []string
	full = true
	for _, c := range children {
		s, ok := Encode(c, ctx)
		if !ok {
			full = false
			continue
		}
		parts = append(parts, "("+s+")")
	}
	if len(parts) == 0 {
		return "", full
	}
	return strings.Join(parts, " AND "), full
}

// encodeOr is all-or-nothing: any unpushable child fails the whole OR.
func encodeOr(children []Expr, ctx Context) (string, bool) {
	parts := make([]string, 0, len(children))
	for _, c := range children {
		s, ok := Encode(c, ctx)
		if !ok {
			return "", false
		}
		parts = append(parts, "("+s+")")
	}
	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, " OR "), true
}

func encodeCompare(expr Expr, ctx Context) (string, bool) {
	left, right := expr.Args[0], expr.Args[1]
	if left.Kind == KindRowid {
		return encodeRowidCompare(expr.Op, right, ctx)
	}
	if right.Kind == KindRowid {
		return encodeRowidCompare(invertOp(expr.Op), left, ctx)
	}
	l, ok := Encode(left, ctx)
	if !ok {
		return "", false
	}
	r, ok := Encode(right, ctx)
	if !ok {
		return "", false
	}
	return l + " " + expr.Op.sql() + " " + r, true
}

func invertOp(op CompareOp) CompareOp {
	switch op {
	case OpLT:
		return OpGT
	case OpGT:
		return OpLT
	case OpLE:
		return OpGE
	case OpGE:
		return OpLE
	default:
		return op // EQ/NE are symmetric
	}
}

func encodeIsNull(expr Expr, ctx Context) (string, bool) {
	operand, ok := Encode(expr.Args[0], ctx)
	if !ok {
		return "", false
	}
	if expr.Negated {
		return operand + " IS NOT NULL", true
	}
	return operand + " IS NULL", true
}

func encodeIn(expr Expr, ctx Context) (string, bool) {
	operand, ok := Encode(expr.Args[0], ctx)
	if !ok {
		return "", false
	}
	values := make([]string, 0, len(expr.Args)-1)
	for _, v := range expr.Args[1:] {
		s, ok := Encode(v, ctx)
		if !ok {
			return "", false
		}
		values = append(values, s)
	}
	if len(values) == 0 {
		return "1 = 0", true // IN () never matches
	}
	return operand + " IN (" + strings.Join(values, ", ") + ")", true
}

func encodeFunc(expr Expr, ctx Context) (string, bool) {
	tmpl, ok := funcTemplates[expr.Func]
	if !ok || len(expr.Args) != 1 {
		return "", false
	}
	arg, ok := Encode(expr.Args[0], ctx)
	if !ok {
		return "", false
	}
	return fmt.Sprintf(tmpl, arg), true
}

func encodeLike(expr Expr, ctx Context) (string, bool) {
	operand, ok := Encode(expr.Args[0], ctx)
	if !ok {
		return "", false
	}
	if expr.Args[1].Kind != KindConst || expr.Args[1].Const.Kind != LitString {
		return "", false // pattern must be a literal to escape it correctly
	}
	pattern, caseInsensitive := likePattern(expr.Func, expr.Args[1].Const.Str)
	lhs := operand
	if caseInsensitive {
		lhs = fmt.Sprintf("LOWER(%s)", operand)
	}
	return fmt.Sprintf("%s LIKE %s ESCAPE '\\'", lhs, nString(pattern)), true
}

// likePattern builds the escaped LIKE pattern for the given match kind
// (prefix/suffix/contains, optionally suffixed "_ci" for case-insensitive)
// and reports whether the comparison must be done on lowercased operands.
func likePattern(kind, value string) (pattern string, caseInsensitive bool) {
	caseInsensitive = strings.HasSuffix(kind, "_ci")
	kind = strings.TrimSuffix(kind, "_ci")
	if caseInsensitive {
		value = strings.ToLower(value)
	}
	escaped := escapeLikePattern(value)
	switch kind {
	case "prefix":
		return escaped + "%", caseInsensitive
	case "suffix":
		return "%" + escaped, caseInsensitive
	case "contains":
		return "%" + escaped + "%", caseInsensitive
	default:
		return escaped, caseInsensitive
	}
}

// escapeLikePattern escapes T-SQL LIKE metacharacters (% _ [) by prefixing
// each with a backslash, the ESCAPE character the LIKE clause declares.
func escapeLikePattern(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '%', '_', '[':
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// bracketQuote quotes a T-SQL identifier, doubling any embedded `]`.
func bracketQuote(ident string) string {
	return "[" + strings.ReplaceAll(ident, "]", "]]") + "]"
}

// nString quotes s as a Unicode (N'...') string literal, doubling any
// embedded single quote.
func nString(s string) string {
	return "N'" + strings.ReplaceAll(s, "'", "''") + "'"
}
