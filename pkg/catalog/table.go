package catalog

import "time"

// Column is one column of a discovered table, as reported by sys.columns
// joined to sys.types.
type Column struct {
	Name            string
	OrdinalPosition int
	SQLTypeName     string // e.g. "nvarchar", "int", "decimal"
	MaxLength       int32  // bytes; -1 means MAX
	Precision       uint8
	Scale           uint8
	Nullable        bool
	IsIdentity      bool
}

// Table is a discovered table or view and its columns, loaded lazily and
// independently expirable from its parent schema's table-name list.
type Table struct {
	Schema string
	Name   string
	IsView bool

	Columns []Column

	// PrimaryKey holds the PK column names in key-ordinal order, nil if the
	// table has no primary key. Used by the pushdown encoder's rowid
	// rewrite.
	PrimaryKey []string

	loadedAt time.Time
}

// Column looks up a column by name, case-insensitively matching SQL
// Server's default collation behavior for identifiers.
func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if equalFoldASCII(c.Name, name) {
			return c, true
		}
	}
	return Column{}, false
}

// HasCompositePrimaryKey reports whether the table's PK spans more than one
// column.
func (t *Table) HasCompositePrimaryKey() bool { return len(t.PrimaryKey) > 1 }

func equalFoldASCII(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
