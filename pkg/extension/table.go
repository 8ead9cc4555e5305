package extension

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mssqlext/mssql-extension/pkg/bulk"
	"github.com/mssqlext/mssql-extension/pkg/catalog"
	"github.com/mssqlext/mssql-extension/pkg/errx"
	"github.com/mssqlext/mssql-extension/pkg/pushdown"
	"github.com/mssqlext/mssql-extension/pkg/stream"
	"github.com/mssqlext/mssql-extension/pkg/tds"
)

// Projection names the columns a Scan should return, in order. A nil or
// empty Projection means SELECT *.
type Projection []string

// RowIterator is what Scan hands back: pull rows until it returns
// (0, nil), then discard it. Errors destroy the underlying connection;
// there is nothing to clean up on the caller's side either way.
type RowIterator interface {
	Next(ctx context.Context, out [][]interface{}) (int, error)
	Columns() []string
}

type scanIterator struct {
	it   *stream.Iterator
	cols []string
}

func (s *scanIterator) Columns() []string { return s.cols }

func (s *scanIterator) Next(ctx context.Context, out [][]interface{}) (int, error) {
	rows := make([]stream.Row, len(out))
	n, err := s.it.FillChunk(ctx, rows)
	for i := 0; i < n; i++ {
		out[i] = rows[i].Values
	}
	return n, err
}

// Scan issues a SELECT against the named table, pushing down as much of
// filter and order as the encoder can express (§4.I/§4.K): a fully
// unencodable filter or order is simply dropped, never an error — the
// host engine re-applies whatever wasn't pushed.
func (e *Extension) Scan(ctx context.Context, schemaName, tableName string, proj Projection, filter pushdown.Expr, order *pushdown.PlanNode) (RowIterator, error) {
	table, err := e.catalog.Table(ctx, schemaName, tableName)
	if err != nil {
		return nil, err
	}
	pctx := pushdown.Context{Table: table}

	sql, cols := buildSelect(table, proj, filter, order, pctx)

	h, err := e.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	deadline := deadlineFrom(ctx)
	it, err := stream.Execute(h, sql, 0, deadline)
	if err != nil {
		h.Release()
		return nil, err
	}
	return &scanIterator{it: it, cols: cols}, nil
}

func buildSelect(table *catalog.Table, proj Projection, filter pushdown.Expr, order *pushdown.PlanNode, pctx pushdown.Context) (string, []string) {
	cols := projectionColumns(table, proj)

	var orderRes pushdown.OrderResult
	if order != nil {
		orderRes = pushdown.EncodeOrder(*order, pctx)
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	if orderRes.TopN != nil {
		fmt.Fprintf(&b, "TOP (%d) ", *orderRes.TopN)
	}
	b.WriteString(selectList(cols))
	b.WriteString(" FROM ")
	b.WriteString(qualifiedName(table.Schema, table.Name))

	if filter != nil {
		if where, ok := pushdown.Encode(filter, pctx); ok {
			b.WriteString(" WHERE ")
			b.WriteString(where)
		}
	}
	if order != nil && orderRes.Pushed > 0 {
		b.WriteString(" ")
		b.WriteString(orderRes.SQL)
	}
	return b.String(), cols
}

func projectionColumns(table *catalog.Table, proj Projection) []string {
	if len(proj) > 0 {
		return proj
	}
	cols := make([]string, len(table.Columns))
	for i, c := range table.Columns {
		cols[i] = c.Name
	}
	return cols
}

func selectList(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = "[" + strings.ReplaceAll(c, "]", "]]") + "]"
	}
	return strings.Join(quoted, ", ")
}

func qualifiedName(schema, table string) string {
	return fmt.Sprintf("[%s].[%s]", strings.ReplaceAll(schema, "]", "]]"), strings.ReplaceAll(table, "]", "]]"))
}

// Insert bulk-loads rows into the named table via INSERT BULK, per §4.H.
// tableJustCreated drives the auto-TABLOCK heuristic: set it when this
// Insert follows a CreateAs/TranslateDDL against the same table within
// the same logical operation.
func (e *Extension) Insert(ctx context.Context, schemaName, tableName string, rows [][]interface{}, tableJustCreated bool) (uint64, error) {
	table, err := e.catalog.Table(ctx, schemaName, tableName)
	if err != nil {
		return 0, err
	}
	wireCols := make([]tds.Column, 0, len(table.Columns))
	for _, c := range table.Columns {
		wc, err := toWireColumn(c)
		if err != nil {
			return 0, err
		}
		wireCols = append(wireCols, wc)
	}

	h, err := e.pool.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer h.Release()

	w := bulk.New(h, bulk.Options{
		TableName:         qualifiedName(table.Schema, table.Name),
		Columns:           wireCols,
		NewlyCreatedTable: tableJustCreated,
		ResponseTimeout:   30 * time.Second,
	})
	if err := w.IssueInsertBulk(0); err != nil {
		return 0, err
	}
	w.WriteColMetadata()
	if err := w.WriteRows(rows); err != nil {
		return 0, err
	}
	return w.FlushBatch()
}

// Update issues an UPDATE statement, pushing filter down exactly as Scan
// does. It is always a single round-trip SQL_BATCH, never a row-by-row
// operation.
func (e *Extension) Update(ctx context.Context, schemaName, tableName string, assignments map[string]pushdown.Literal, filter pushdown.Expr) (uint64, error) {
	table, err := e.catalog.Table(ctx, schemaName, tableName)
	if err != nil {
		return 0, err
	}
	pctx := pushdown.Context{Table: table}

	var b strings.Builder
	b.WriteString("UPDATE ")
	b.WriteString(qualifiedName(table.Schema, table.Name))
	b.WriteString(" SET ")
	first := true
	for col, lit := range assignments {
		if !first {
			b.WriteString(", ")
		}
		first = false
		assignment, ok := pushdown.Encode(pushdown.Compare(pushdown.OpEQ, pushdown.Col(col), pushdown.Expr{Kind: pushdown.KindConst, Const: lit}), pctx)
		if !ok {
			return 0, errx.Newf(errx.KindUsage, "extension: unencodable assignment for column %q", col)
		}
		b.WriteString(assignment)
	}
	if filter != nil {
		if where, ok := pushdown.Encode(filter, pctx); ok {
			b.WriteString(" WHERE ")
			b.WriteString(where)
		}
	}
	return e.execForRowCount(ctx, b.String())
}

// Delete issues a DELETE statement with the filter pushed down exactly
// as Scan/Update do.
func (e *Extension) Delete(ctx context.Context, schemaName, tableName string, filter pushdown.Expr) (uint64, error) {
	table, err := e.catalog.Table(ctx, schemaName, tableName)
	if err != nil {
		return 0, err
	}
	pctx := pushdown.Context{Table: table}

	sql := "DELETE FROM " + qualifiedName(table.Schema, table.Name)
	if filter != nil {
		where, ok := pushdown.Encode(filter, pctx)
		if !ok {
			return 0, errx.New(errx.KindUsage, "extension: delete filter is not pushable")
		}
		sql += " WHERE " + where
	}
	return e.execForRowCount(ctx, sql)
}

func (e *Extension) execForRowCount(ctx context.Context, sql string) (uint64, error) {
	h, err := e.pool.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer h.Release()

	it, err := stream.Execute(h, sql, 0, deadlineFrom(ctx))
	if err != nil {
		return 0, err
	}
	chunk := make([]stream.Row, stream.DefaultChunkSize)
	for {
		n, err := it.FillChunk(ctx, chunk)
		if err != nil {
			return 0, err
		}
		if n == 0 {
			break
		}
	}
	return it.RowsAffected(), nil
}

// CreateAs translates and issues a CREATE TABLE ... AS SELECT-style
// physical create: one DDL statement for the shape, per §4.J/§4.K, with
// IF NOT EXISTS idempotency (a pre-existing target is treated as success
// with zero rows affected, not an error).
func (e *Extension) CreateAs(ctx context.Context, info CreateTableInfo) error {
	ddl, err := e.TranslateDDL(info)
	if err != nil {
		return err
	}
	_, err = e.execForRowCount(ctx, ddl)
	if err != nil {
		return err
	}
	e.InvalidateTableCreated(info.Schema, info.Table)
	return nil
}

// CreateTableInfo is the host engine's table-shape description, the
// input to TranslateDDL.
type CreateTableInfo struct {
	Schema  string
	Table   string
	Columns []catalog.Column
}

// TranslateDDL renders info as a CREATE TABLE statement, guarded with an
// IF NOT EXISTS check so a repeated CreateAs against an existing target
// never fails — the caller gets back (T, error) either way, never a
// panic or a server exception surfacing across this boundary.
func (e *Extension) TranslateDDL(info CreateTableInfo) (string, error) {
	qualified := qualifiedName(info.Schema, info.Table)
	var cols []string
	for _, c := range info.Columns {
		clause, err := ddlTypeClause(c)
		if err != nil {
			return "", err
		}
		null := "NOT NULL"
		if c.Nullable {
			null = "NULL"
		}
		cols = append(cols, fmt.Sprintf("[%s] %s %s", c.Name, clause, null))
	}
	return fmt.Sprintf(
		"IF NOT EXISTS (SELECT 1 FROM sys.objects WHERE object_id = OBJECT_ID(N'%s') AND type IN (N'U')) CREATE TABLE %s (%s)",
		strings.ReplaceAll(qualified, "'", "''"), qualified, strings.Join(cols, ", "),
	), nil
}
