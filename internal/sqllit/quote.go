// Package sqllit renders in-memory cell values as type-cast PostgreSQL
// literals for hand-built statements. All quoting of values and identifiers
// for generated SQL lives here; callers never escape ad hoc.
package sqllit

import (
	"strings"
)

// Casts appended to typed literals.
const (
	CastDouble      = "::double precision"
	CastBoolean     = "::boolean"
	CastTimestamptz = "::timestamptz"
	CastJSONB       = "::jsonb"
)

// Null literals per category. Typed NULLs let a multi-row VALUES list infer
// one consistent column type.
const (
	Null            = "NULL"
	NullDouble      = Null + CastDouble
	NullBoolean     = Null + CastBoolean
	NullTimestamptz = Null + CastTimestamptz
	NullJSONB       = Null + CastJSONB
)

// Quote renders s as a single-quoted string literal, doubling embedded quotes.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Unquote reverses Quote. It returns false if lit is not a quoted literal.
func Unquote(lit string) (string, bool) {
	if len(lit) < 2 || lit[0] != '\'' || lit[len(lit)-1] != '\'' {
		return "", false
	}
	return strings.ReplaceAll(lit[1:len(lit)-1], "''", "'"), true
}

// QuoteIdent renders name as a double-quoted identifier.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteQualified quotes every dot separated part of a schema-qualified name.
// Parts that are already double-quoted are kept as they are.
func QuoteQualified(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		if len(p) >= 2 && p[0] == '"' && p[len(p)-1] == '"' {
			continue
		}
		parts[i] = QuoteIdent(p)
	}
	return strings.Join(parts, ".")
}
