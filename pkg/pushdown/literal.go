package pushdown

import "fmt"

// encodeLiteral formats a typed constant per the literal-encoding rules:
// booleans as 1/0, integers as decimal, decimals via their canonical
// string form, dates/timestamps as quoted ISO-ish strings, blobs as
// 0xHH..., and strings as N'...'.
func encodeLiteral(lit Literal) (string, bool) {
	switch lit.Kind {
	case LitBool:
		if lit.Bool {
			return "1", true
		}
		return "0", true
	case LitInt:
		return fmt.Sprintf("%d", lit.Int), true
	case LitDecimal:
		return lit.Decimal.String(), true
	case LitDate:
		return "'" + lit.Date + "'", true
	case LitTimestamp:
		return "'" + lit.Ts + "'", true
	case LitBlob:
		return hexLiteral(lit.Blob), true
	case LitString:
		return nString(lit.Str), true
	case LitStruct:
		return "", false // only meaningful inside the rowid rewrite
	default:
		return "", false
	}
}

func hexLiteral(b []byte) string {
	const hexDigits = "0123456789ABCDEF"
	out := make([]byte, 2+2*len(b))
	out[0], out[1] = '0', 'x'
	for i, c := range b {
		out[2+2*i] = hexDigits[c>>4]
		out[2+2*i+1] = hexDigits[c&0x0f]
	}
	return string(out)
}
