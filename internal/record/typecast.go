package record

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/manav03panchal/tabula/internal/errors"
	"github.com/manav03panchal/tabula/internal/field"
	"github.com/manav03panchal/tabula/internal/parser"
	"github.com/manav03panchal/tabula/internal/sqllit"
)

// Normalize resolves the keys of values under keyType and checks every value
// against its field. The result is keyed by field id. With typecast, text
// input to number, checkbox and date fields is converted.
func Normalize(table *field.Table, keyType field.KeyType, values map[string]any, typecast bool) (map[string]any, error) {
	out := make(map[string]any, len(values))
	for key, v := range values {
		f, err := table.Resolve(keyType, key)
		if err != nil {
			return nil, err
		}
		if !writable(f) {
			return nil, errors.ValidationField(f.Name, "field "+string(f.ID)+" is computed and cannot be written", nil)
		}
		if _, dup := out[string(f.ID)]; dup {
			return nil, errors.ValidationField(f.Name, "field "+string(f.ID)+" is addressed twice", nil)
		}
		cv, err := Coerce(f, v, typecast)
		if err != nil {
			return nil, err
		}
		out[string(f.ID)] = cv
	}
	return out, nil
}

func writable(f *field.Field) bool {
	if f.IsComputed() {
		return false
	}
	return f.Kind != field.KindLastModifiedTime && f.Kind != field.KindLastModifiedBy
}

// Coerce checks v against the value domain of f. Nil always clears the cell.
func Coerce(f *field.Field, v any, typecast bool) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch f.Kind.CellValueType() {
	case field.CellNumber:
		return coerceNumber(f, v, typecast)
	case field.CellBoolean:
		return coerceBoolean(f, v, typecast)
	case field.CellDateTime:
		return coerceDate(f, v, typecast)
	case field.CellJSON:
		return v, nil
	}
	return coerceText(f, v, typecast)
}

func coerceNumber(f *field.Field, v any, typecast bool) (any, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		if typecast {
			s := strings.TrimSpace(n)
			if s == "" {
				return nil, nil
			}
			if x, err := strconv.ParseFloat(s, 64); err == nil {
				return x, nil
			}
		}
	}
	return nil, mismatch(f, v)
}

func coerceBoolean(f *field.Field, v any, typecast bool) (any, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		if typecast {
			s := strings.TrimSpace(b)
			if s == "" {
				return nil, nil
			}
			if x, err := strconv.ParseBool(s); err == nil {
				return x, nil
			}
		}
	}
	return nil, mismatch(f, v)
}

func coerceDate(f *field.Field, v any, typecast bool) (any, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format(sqllit.TimestampLayout), nil
	case string:
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return parsed.UTC().Format(sqllit.TimestampLayout), nil
		}
		if typecast {
			parsed, err := parser.ParseCellDate(t)
			if err != nil {
				var tpe *parser.TimeParseError
				if errors.As(err, &tpe) {
					return nil, tpe.ToDomainError(f.Name)
				}
				return nil, err
			}
			return parsed.Format(sqllit.TimestampLayout), nil
		}
	}
	return nil, mismatch(f, v)
}

func coerceText(f *field.Field, v any, typecast bool) (any, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case float64, bool, int, int64, json.Number:
		if typecast {
			return fmt.Sprint(s), nil
		}
	}
	return nil, mismatch(f, v)
}

func mismatch(f *field.Field, v any) error {
	return errors.ValidationField(f.Name,
		fmt.Sprintf("cannot write %T to %s field %s", v, f.Kind, f.ID), nil)
}
