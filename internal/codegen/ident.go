package codegen

import "strings"

// reservedKeywords is the subset of the PostgreSQL reserved-word table
// that forces identifier quoting. Grounded on the teacher's sanitizeIdentifier
// (internal/sqlgen/compile.go) and Ident (sqldsl), generalized into an
// explicit static set per design note "SQL keyword table: embed a static
// set; identifier quoting must accept a force-flag argument."
var reservedKeywords = map[string]bool{
	"all": true, "analyse": true, "analyze": true, "and": true, "any": true,
	"array": true, "as": true, "asc": true, "asymmetric": true, "both": true,
	"case": true, "cast": true, "check": true, "collate": true, "column": true,
	"constraint": true, "create": true, "current_catalog": true, "current_date": true,
	"current_role": true, "current_time": true, "current_timestamp": true,
	"current_user": true, "default": true, "deferrable": true, "desc": true,
	"distinct": true, "do": true, "else": true, "end": true, "except": true,
	"false": true, "fetch": true, "for": true, "foreign": true, "from": true,
	"grant": true, "group": true, "having": true, "in": true, "initially": true,
	"intersect": true, "into": true, "lateral": true, "leading": true,
	"limit": true, "localtime": true, "localtimestamp": true, "not": true,
	"null": true, "offset": true, "on": true, "only": true, "or": true,
	"order": true, "placing": true, "primary": true, "references": true,
	"returning": true, "select": true, "session_user": true, "some": true,
	"symmetric": true, "table": true, "then": true, "to": true, "trailing": true,
	"true": true, "union": true, "unique": true, "user": true, "using": true,
	"variadic": true, "when": true, "where": true, "window": true, "with": true,
}

func isPlainIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9' && i > 0:
		case r == '_':
		default:
			return false
		}
	}
	return true
}

// QuoteIdent renders a SQL identifier, double-quoting (and doubling
// internal quotes) unless it is lowercase alphanumeric/underscore, not a
// reserved keyword, and force is false.
func QuoteIdent(name string, force bool) string {
	if !force && isPlainIdent(name) && !reservedKeywords[name] {
		return name
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteQualified renders a dotted identifier chain, quoting each part
// independently (e.g. schema.table -> schema."Table" when Table needs it).
func QuoteQualified(parts []string) string {
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = QuoteIdent(p, false)
	}
	return strings.Join(out, ".")
}

// upcaseOperator upcases an operator name unless it contains a dot
// (schema-qualified custom operators print as written), per §4.2.
func upcaseOperator(name string) string {
	if strings.Contains(name, ".") {
		return name
	}
	return strings.ToUpper(name)
}
