package extension

import (
	"strings"

	"github.com/mssqlext/mssql-extension/pkg/catalog"
	"github.com/mssqlext/mssql-extension/pkg/errx"
	"github.com/mssqlext/mssql-extension/pkg/tds"
)

// toWireColumn translates a discovered catalog.Column into the tds.Column
// shape BuildInsertBulkStatement and the BULK_LOAD COLMETADATA encoder
// need. Length is already byte-denominated in sys.columns terms
// (catalog.Column.MaxLength), matching what tds.Column.Length expects for
// the (N)VARCHAR/(N)CHAR/VARBINARY/BINARY families; -1 (sys.columns' MAX
// marker) becomes the wire's 0xFFFF sentinel.
func toWireColumn(c catalog.Column) (tds.Column, error) {
	typ, ok := sqlTypeNames[strings.ToLower(c.SQLTypeName)]
	if !ok {
		return tds.Column{}, errx.Newf(errx.KindTypeMapping, "extension: unsupported column type %q", c.SQLTypeName)
	}
	length := uint32(c.MaxLength)
	if c.MaxLength < 0 {
		length = 0xFFFF
	}
	return tds.Column{
		Name:      c.Name,
		Type:      typ,
		Length:    length,
		Precision: c.Precision,
		Scale:     c.Scale,
		Nullable:  c.Nullable,
	}, nil
}

// sqlTypeNames maps sys.types names (as reported by sys.columns joined to
// sys.types, lowercased) to the wire SQLType this client writes for them.
// Fixed-width numeric/date types are always sent in their nullable "N"
// wire encoding regardless of the column's actual nullability, matching
// what SQL Server itself accepts on INSERT BULK.
var sqlTypeNames = map[string]tds.SQLType{
	"bit":              tds.TypeBitN,
	"tinyint":          tds.TypeIntN,
	"smallint":         tds.TypeIntN,
	"int":              tds.TypeIntN,
	"bigint":           tds.TypeIntN,
	"real":             tds.TypeFloatN,
	"float":            tds.TypeFloatN,
	"smallmoney":       tds.TypeMoneyN,
	"money":            tds.TypeMoneyN,
	"decimal":          tds.TypeDecimalN,
	"numeric":          tds.TypeNumericN,
	"smalldatetime":    tds.TypeDateTimeN,
	"datetime":         tds.TypeDateTimeN,
	"date":             tds.TypeDateN,
	"time":             tds.TypeTimeN,
	"datetime2":        tds.TypeDateTime2N,
	"datetimeoffset":   tds.TypeDateTimeOffsetN,
	"uniqueidentifier": tds.TypeGUID,
	"char":             tds.TypeBigChar,
	"varchar":          tds.TypeBigVarChar,
	"nchar":            tds.TypeNChar,
	"nvarchar":         tds.TypeNVarChar,
	"binary":           tds.TypeBigBinary,
	"varbinary":        tds.TypeBigVarBin,
}

// ddlTypeClause renders the CREATE TABLE column-type fragment for c,
// reusing the same rendering INSERT BULK's statement builder uses so a
// table this extension creates and one it bulk-loads into agree on type
// syntax.
func ddlTypeClause(c catalog.Column) (string, error) {
	wc, err := toWireColumn(c)
	if err != nil {
		return "", err
	}
	return tds.BulkColumnTypeClause(wc), nil
}
