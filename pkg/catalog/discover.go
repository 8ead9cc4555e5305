package catalog

import (
	"context"
	"fmt"
)

// Querier executes one query against the attached server and returns its
// rows. Catalog discovery only needs a narrow row-returning seam, not
// a concrete dependency on the pool/stream packages, so callers wire in
// whatever executes a SQL_BATCH and drains it to completion (typically a
// pkg/stream.Iterator wrapped to collect all rows, since discovery
// queries are always small).
type Querier interface {
	Query(ctx context.Context, sql string) ([][]interface{}, error)
}

// systemSchemas are never exposed as catalog schemas.
var systemSchemas = map[string]bool{
	"sys":                true,
	"information_schema": true,
	"guest":              true,
	"db_owner":           true,
	"db_accessadmin":     true,
	"db_securityadmin":   true,
	"db_ddladmin":        true,
	"db_backupoperator":  true,
	"db_datareader":      true,
	"db_datawriter":      true,
	"db_denydatareader":  true,
	"db_denydatawriter":  true,
}

const schemasQuery = `SELECT name FROM sys.schemas`

// discoverSchemas lists user schemas, excluding the fixed system schemas.
func discoverSchemas(ctx context.Context, q Querier) ([]string, error) {
	rows, err := q.Query(ctx, schemasQuery)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, row := range rows {
		name, _ := row[0].(string)
		if name == "" || systemSchemas[lowerASCII(name)] {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

const tablesQuery = `
SELECT o.name, o.type
FROM sys.objects o
WHERE o.schema_id = SCHEMA_ID('%s')
  AND o.type IN ('U', 'V')
  AND o.is_ms_shipped = 0`

// discoverTables lists the user tables and views in schema, per the
// sys.objects-filtered-to-user-tables convention used for column
// discovery elsewhere in the pack.
func discoverTables(ctx context.Context, q Querier, schema string) ([]tableRef, error) {
	rows, err := q.Query(ctx, fmt.Sprintf(tablesQuery, escapeLiteral(schema)))
	if err != nil {
		return nil, err
	}
	var refs []tableRef
	for _, row := range rows {
		name, _ := row[0].(string)
		kind, _ := row[1].(string)
		refs = append(refs, tableRef{name: name, isView: kind == "V " || kind == "V"})
	}
	return refs, nil
}

// columnsQuery mirrors sqldef's MSSQL adapter getColumns join shape:
// sys.columns joined to sys.types for the native type name, with an
// identity-columns left join for the identity flag.
const columnsQuery = `
SELECT
	c.name,
	c.column_id,
	tp.name AS type_name,
	c.max_length,
	c.precision,
	c.scale,
	c.is_nullable,
	CASE WHEN ic.column_id IS NULL THEN 0 ELSE 1 END AS is_identity
FROM sys.columns c
JOIN sys.types tp ON c.user_type_id = tp.user_type_id
LEFT JOIN sys.identity_columns ic
	ON c.object_id = ic.object_id AND c.column_id = ic.column_id
WHERE c.object_id = OBJECT_ID('%s.%s')
ORDER BY c.column_id`

func discoverColumns(ctx context.Context, q Querier, schema, table string) ([]Column, error) {
	sql := fmt.Sprintf(columnsQuery, bracketQuote(schema), bracketQuote(table))
	rows, err := q.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	cols := make([]Column, 0, len(rows))
	for _, row := range rows {
		col := Column{
			Name:        toString(row[0]),
			SQLTypeName: toString(row[2]),
			MaxLength:   toInt32(row[3]),
			Precision:   uint8(toInt32(row[4])),
			Scale:       uint8(toInt32(row[5])),
			Nullable:    toBool(row[6]),
			IsIdentity:  toBool(row[7]),
		}
		col.OrdinalPosition = int(toInt32(row[1]))
		cols = append(cols, col)
	}
	return cols, nil
}

// primaryKeyQuery resolves PK column names in key-ordinal order via
// sys.key_constraints (type 'PK') joined through sys.index_columns, the
// same join shape sqldef's adapter uses for its index/key discovery.
const primaryKeyQuery = `
SELECT c.name
FROM sys.key_constraints kc
JOIN sys.index_columns ic
	ON ic.object_id = kc.parent_object_id AND ic.index_id = kc.unique_index_id
JOIN sys.columns c
	ON c.object_id = ic.object_id AND c.column_id = ic.column_id
WHERE kc.parent_object_id = OBJECT_ID('%s.%s')
  AND kc.type = 'PK'
ORDER BY ic.key_ordinal`

func discoverPrimaryKey(ctx context.Context, q Querier, schema, table string) ([]string, error) {
	sql := fmt.Sprintf(primaryKeyQuery, bracketQuote(schema), bracketQuote(table))
	rows, err := q.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	pk := make([]string, 0, len(rows))
	for _, row := range rows {
		pk = append(pk, toString(row[0]))
	}
	return pk, nil
}

func bracketQuote(ident string) string {
	return "[" + ident + "]"
}

// escapeLiteral doubles single quotes for use inside a T-SQL string
// literal embedded in a discovery query.
func escapeLiteral(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' {
			out = append(out, '\'', '\'')
			continue
		}
		out = append(out, s[i])
	}
	return string(out)
}

func toString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func toBool(v interface{}) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return toInt32(v) != 0
}

func toInt32(v interface{}) int32 {
	switch n := v.(type) {
	case int32:
		return n
	case int64:
		return int32(n)
	case int:
		return int32(n)
	case int16:
		return int32(n)
	case int8:
		return int32(n)
	case uint64:
		return int32(n)
	case uint32:
		return int32(n)
	case uint16:
		return int32(n)
	case uint8:
		return int32(n)
	case uint:
		return int32(n)
	}
	return 0
}
