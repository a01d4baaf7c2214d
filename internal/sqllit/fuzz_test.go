package sqllit

import (
	"strings"
	"testing"
)

// FuzzQuote checks that every quoted literal round-trips and never leaves a
// lone quote that could end the literal early.
// Run with: go test ./internal/sqllit -fuzz=FuzzQuote -fuzztime=30s
func FuzzQuote(f *testing.F) {
	seeds := []string{
		"",
		"plain",
		"O'Brien",
		"'; DROP TABLE t; --",
		"''",
		"\x00\n\t",
		strings.Repeat("'", 100),
	}
	for _, seed := range seeds {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, input string) {
		lit := Quote(input)
		body := lit[1 : len(lit)-1]
		if strings.Count(body, "'")%2 != 0 {
			t.Fatalf("odd number of quotes in %q", lit)
		}
		got, ok := Unquote(lit)
		if !ok || got != input {
			t.Fatalf("Unquote(Quote(%q)) = %q, %v", input, got, ok)
		}
	})
}

// FuzzQuoteIdent checks that identifiers stay inside their double quotes.
// Run with: go test ./internal/sqllit -fuzz=FuzzQuoteIdent -fuzztime=30s
func FuzzQuoteIdent(f *testing.F) {
	for _, seed := range []string{"", "col", `a"b`, `"; drop --`} {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, input string) {
		ident := QuoteIdent(input)
		if !strings.HasPrefix(ident, `"`) || !strings.HasSuffix(ident, `"`) {
			t.Fatalf("unterminated identifier %q", ident)
		}
		body := ident[1 : len(ident)-1]
		if strings.Count(body, `"`)%2 != 0 {
			t.Fatalf("odd number of double quotes in %q", ident)
		}
	})
}

// FuzzFormatNumber checks that finite numbers always render as something
// PostgreSQL parses as a number.
// Run with: go test ./internal/sqllit -fuzz=FuzzFormatNumber -fuzztime=30s
func FuzzFormatNumber(f *testing.F) {
	for _, seed := range []float64{0, 36, -1.5, 1e21, 1e-7, 123456789.125} {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, n float64) {
		s, err := FormatNumber(n)
		if err != nil {
			return
		}
		if strings.ContainsAny(s, "'\" ") {
			t.Fatalf("FormatNumber(%v) = %q", n, s)
		}
	})
}
