package tds

import (
	"fmt"
	"strings"
)

// BulkLoadWriter assembles the BULK_LOAD token stream (INSERT BULK's wire
// body): a COLMETADATA token describing the target columns, followed by
// one ROW or NBCROW token per inserted record, terminated by a
// DONEINPROC. It reuses ResultSetWriter's encode path verbatim — the
// COLMETADATA/ROW wire format a result-set writer emits is byte-identical
// to what BULK_LOAD expects, since both are just "some columns, then some
// rows" in the TDS token grammar.
type BulkLoadWriter struct {
	tw      *TokenWriter
	rsw     *ResultSetWriter
	columns []Column
	rows    uint64
}

// NewBulkLoadWriter creates a writer for the given target columns.
// useNBCRow lets the caller opt into null-bitmap-compressed rows for
// wide, sparsely-populated tables.
func NewBulkLoadWriter(columns []Column, useNBCRow bool) *BulkLoadWriter {
	tw := NewTokenWriter()
	rsw := NewResultSetWriter(tw, columns)
	rsw.EnableNBCRow(useNBCRow)
	return &BulkLoadWriter{tw: tw, rsw: rsw, columns: columns}
}

// WriteHeader emits the COLMETADATA token. Must be called before any row.
func (w *BulkLoadWriter) WriteHeader() {
	w.rsw.WriteColMetadata()
}

// WriteRow emits one row, choosing ROW or NBCROW automatically based on
// how many of values are NULL.
func (w *BulkLoadWriter) WriteRow(values []interface{}) error {
	if err := w.rsw.WriteRowAuto(values, VerTDS74); err != nil {
		return err
	}
	w.rows++
	return nil
}

// Finish appends the terminating DONEINPROC and returns the accumulated
// BULK_LOAD message body, ready for Framer.SendMessage(PacketBulkLoad, ...).
func (w *BulkLoadWriter) Finish() []byte {
	w.tw.WriteDoneInProc(DoneFinal|DoneCount, 0, w.rows)
	return w.tw.Bytes()
}

// RowCount reports how many rows have been written so far.
func (w *BulkLoadWriter) RowCount() uint64 { return w.rows }

// Reset clears the writer's buffer and row counter for reuse across
// successive bulk-load batches against the same column set.
func (w *BulkLoadWriter) Reset() {
	w.tw.Reset()
	w.rows = 0
}

// BuildInsertBulkStatement renders the T-SQL "INSERT BULK" statement that
// must precede the BULK_LOAD token stream, sent as an ordinary SQL_BATCH.
// tableName is expected pre-quoted (e.g. "[dbo].[Orders]"); withOptions are
// rendered verbatim inside the WITH (...) clause (e.g. "TABLOCK",
// "CHECK_CONSTRAINTS").
func BuildInsertBulkStatement(tableName string, columns []Column, withOptions []string) string {
	var cols []string
	for _, c := range columns {
		cols = append(cols, fmt.Sprintf("[%s] %s", c.Name, bulkColumnTypeClause(c)))
	}
	stmt := fmt.Sprintf("INSERT BULK %s (%s)", tableName, strings.Join(cols, ", "))
	if len(withOptions) > 0 {
		stmt += " WITH (" + strings.Join(withOptions, ", ") + ")"
	}
	return stmt
}

// BulkColumnTypeClause renders the DDL-style type fragment INSERT BULK
// expects for one column, e.g. "NVARCHAR(50)" or "DECIMAL(18,4)". Exported
// so CREATE TABLE statement generation can share it with INSERT BULK's
// own column clause.
func BulkColumnTypeClause(c Column) string {
	return bulkColumnTypeClause(c)
}

func bulkColumnTypeClause(c Column) string {
	switch c.Type {
	case TypeNVarChar:
		if c.Length == 0xFFFF {
			return "NVARCHAR(MAX)"
		}
		return fmt.Sprintf("NVARCHAR(%d)", c.Length/2)
	case TypeNChar:
		return fmt.Sprintf("NCHAR(%d)", c.Length/2)
	case TypeBigVarChar:
		if c.Length == 0xFFFF {
			return "VARCHAR(MAX)"
		}
		return fmt.Sprintf("VARCHAR(%d)", c.Length)
	case TypeBigChar:
		return fmt.Sprintf("CHAR(%d)", c.Length)
	case TypeBigVarBin:
		if c.Length == 0xFFFF {
			return "VARBINARY(MAX)"
		}
		return fmt.Sprintf("VARBINARY(%d)", c.Length)
	case TypeBigBinary:
		return fmt.Sprintf("BINARY(%d)", c.Length)
	case TypeDecimalN, TypeNumericN, TypeDecimal, TypeNumeric:
		return fmt.Sprintf("DECIMAL(%d,%d)", c.Precision, c.Scale)
	case TypeTimeN:
		return fmt.Sprintf("TIME(%d)", c.Scale)
	case TypeDateTime2N:
		return fmt.Sprintf("DATETIME2(%d)", c.Scale)
	case TypeDateTimeOffsetN:
		return fmt.Sprintf("DATETIMEOFFSET(%d)", c.Scale)
	case TypeIntN:
		switch c.Length {
		case 1:
			return "TINYINT"
		case 2:
			return "SMALLINT"
		case 8:
			return "BIGINT"
		default:
			return "INT"
		}
	case TypeBitN:
		return "BIT"
	case TypeFloatN:
		if c.Length == 4 {
			return "REAL"
		}
		return "FLOAT"
	case TypeMoneyN:
		if c.Length == 4 {
			return "SMALLMONEY"
		}
		return "MONEY"
	case TypeDateTimeN:
		if c.Length == 4 {
			return "SMALLDATETIME"
		}
		return "DATETIME"
	case TypeDateN:
		return "DATE"
	case TypeGUID:
		return "UNIQUEIDENTIFIER"
	default:
		return c.Type.String()
	}
}
