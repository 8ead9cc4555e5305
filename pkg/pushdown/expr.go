// Package pushdown translates the host engine's filter and ordering trees
// into T-SQL, implementing the partial/full pushdown semantics and the
// rowid/primary-key rewrite described for the catalog scan operator.
package pushdown

import "github.com/shopspring/decimal"

// Expr is the tagged-variant filter/expression sum type the encoder
// consumes. Exactly one of the Kind-specific fields is populated,
// selected by Kind.
type Expr struct {
	Kind ExprKind

	// Column reference (KindColumn, KindRowid).
	Column string

	// Constant (KindConst).
	Const Literal

	// Unary/binary/variadic operand list (KindNot, KindAnd, KindOr,
	// KindCompare, KindIsNull, KindIn, KindFunc, KindLike).
	Args []Expr

	// Comparison operator, valid when Kind == KindCompare.
	Op CompareOp

	// IS NULL vs IS NOT NULL, valid when Kind == KindIsNull.
	Negated bool

	// Function name, valid when Kind == KindFunc or KindLike.
	Func string
}

// ExprKind discriminates the Expr variant.
type ExprKind int

const (
	KindColumn ExprKind = iota
	KindConst
	KindNot
	KindAnd
	KindOr
	KindCompare
	KindIsNull
	KindIn
	KindFunc
	KindLike
	KindRowid
)

// CompareOp is a supported scalar comparison operator.
type CompareOp int

const (
	OpEQ CompareOp = iota
	OpNE
	OpLT
	OpGT
	OpLE
	OpGE
)

func (op CompareOp) sql() string {
	switch op {
	case OpEQ:
		return "="
	case OpNE:
		return "<>"
	case OpLT:
		return "<"
	case OpGT:
		return ">"
	case OpLE:
		return "<="
	case OpGE:
		return ">="
	default:
		return "="
	}
}

// LiteralKind discriminates Literal's Go-side representation.
type LiteralKind int

const (
	LitBool LiteralKind = iota
	LitInt
	LitDecimal
	LitDate
	LitTimestamp
	LitBlob
	LitString
	LitStruct // composite PK value, used only by the rowid rewrite
)

// Literal is a typed constant value, carrying enough type information to
// choose the correct T-SQL literal syntax.
type Literal struct {
	Kind LiteralKind

	Bool    bool
	Int     int64
	Decimal decimal.Decimal
	Date    string // "YYYY-MM-DD"
	Ts      string // "YYYY-MM-DD HH:MM:SS.ffffff"
	Blob    []byte
	Str     string

	// Struct holds named field literals for a composite rowid value,
	// keyed by PK column name, used only when Kind == LitStruct.
	Struct map[string]Literal
}

// Col builds a column-reference expression.
func Col(name string) Expr { return Expr{Kind: KindColumn, Column: name} }

// Rowid builds a reference to the virtual rowid column.
func Rowid() Expr { return Expr{Kind: KindRowid} }

// Compare builds a scalar comparison expression.
func Compare(op CompareOp, left, right Expr) Expr {
	return Expr{Kind: KindCompare, Op: op, Args: []Expr{left, right}}
}

// IsNull builds an IS NULL / IS NOT NULL expression over operand.
func IsNull(operand Expr, negated bool) Expr {
	return Expr{Kind: KindIsNull, Negated: negated, Args: []Expr{operand}}
}

// In builds an IN (...) expression; values is the candidate list.
func In(operand Expr, values ...Expr) Expr {
	return Expr{Kind: KindIn, Args: append([]Expr{operand}, values...)}
}

// And builds a conjunction; individual children may be dropped by the
// encoder during partial pushdown.
func And(children ...Expr) Expr { return Expr{Kind: KindAnd, Args: children} }

// Or builds a disjunction; pushdown is all-or-nothing.
func Or(children ...Expr) Expr { return Expr{Kind: KindOr, Args: children} }

// Not negates operand.
func Not(operand Expr) Expr { return Expr{Kind: KindNot, Args: []Expr{operand}} }

// Fn builds a whitelisted function-call expression.
func Fn(name string, args ...Expr) Expr { return Expr{Kind: KindFunc, Func: name, Args: args} }

// Like builds a LIKE-mapped pattern-match expression: name is one of
// "prefix", "suffix", "contains" (optionally "_ci" for the case-insensitive
// variant); operand is the column/expression matched against value.
func Like(name string, operand Expr, value Expr) Expr {
	return Expr{Kind: KindLike, Func: name, Args: []Expr{operand, value}}
}

// BoolLit builds a boolean constant expression.
func BoolLit(b bool) Expr { return Expr{Kind: KindConst, Const: Literal{Kind: LitBool, Bool: b}} }

// IntLit builds an integer constant expression.
func IntLit(v int64) Expr { return Expr{Kind: KindConst, Const: Literal{Kind: LitInt, Int: v}} }

// DecimalLit builds a decimal constant expression.
func DecimalLit(v decimal.Decimal) Expr {
	return Expr{Kind: KindConst, Const: Literal{Kind: LitDecimal, Decimal: v}}
}

// StringLit builds a string constant expression.
func StringLit(v string) Expr { return Expr{Kind: KindConst, Const: Literal{Kind: LitString, Str: v}} }

// DateLit builds a date constant expression; v must already be formatted
// "YYYY-MM-DD".
func DateLit(v string) Expr { return Expr{Kind: KindConst, Const: Literal{Kind: LitDate, Date: v}} }

// TimestampLit builds a timestamp constant expression; v must already be
// formatted "YYYY-MM-DD HH:MM:SS.ffffff".
func TimestampLit(v string) Expr { return Expr{Kind: KindConst, Const: Literal{Kind: LitTimestamp, Ts: v}} }

// BlobLit builds a binary constant expression.
func BlobLit(v []byte) Expr { return Expr{Kind: KindConst, Const: Literal{Kind: LitBlob, Blob: v}} }

// StructLit builds a composite rowid value, one literal per PK column name.
func StructLit(fields map[string]Literal) Expr {
	return Expr{Kind: KindConst, Const: Literal{Kind: LitStruct, Struct: fields}}
}
