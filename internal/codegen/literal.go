package codegen

import "strings"

// quoteStringLiteral implements §6's literal-escaping rule: E'...' only
// for strings containing line breaks or backslashes, otherwise '...' with
// '' doubling of embedded quotes.
func quoteStringLiteral(s string) string {
	if strings.ContainsAny(s, "\n\\") {
		var b strings.Builder
		b.WriteString("E'")
		for _, r := range s {
			switch r {
			case '\'':
				b.WriteString(`\'`)
			case '\\':
				b.WriteString(`\\`)
			case '\n':
				b.WriteString(`\n`)
			default:
				b.WriteRune(r)
			}
		}
		b.WriteString("'")
		return b.String()
	}
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// quoteBytea renders a byte string using PostgreSQL's hex bytea format.
func quoteBytea(b []byte) string {
	const hex = "0123456789abcdef"
	var sb strings.Builder
	sb.WriteString(`E'\\x`)
	for _, c := range b {
		sb.WriteByte(hex[c>>4])
		sb.WriteByte(hex[c&0xf])
	}
	sb.WriteString("'")
	return sb.String()
}
