package sqllit

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/manav03panchal/tabula/internal/errors"
	"github.com/manav03panchal/tabula/internal/field"
)

// TimestampLayout is the ISO 8601 layout used for timestamptz literals.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Render converts an already type-checked cell value of field f into a
// PostgreSQL literal with an explicit cast.
func Render(f *field.Field, value any) (string, error) {
	if f.Generated {
		return Null, nil
	}
	return field.Accept[string](f, literalVisitor{value: value})
}

// literalVisitor renders one value; the field kind picks the rule.
type literalVisitor struct {
	value any
}

func (v literalVisitor) text(f *field.Field) (string, error) {
	if v.value == nil {
		return Null, nil
	}
	switch t := v.value.(type) {
	case string:
		return Quote(t), nil
	case json.Number:
		return Quote(t.String()), nil
	case fmt.Stringer:
		return Quote(t.String()), nil
	}
	return "", typeError(f, "text", v.value)
}

func (v literalVisitor) number(f *field.Field) (string, error) {
	if v.value == nil {
		return NullDouble, nil
	}
	n, err := FormatNumber(v.value)
	if err != nil {
		return "", errors.ValidationField(f.DBFieldName, err.Error(), nil)
	}
	return n + CastDouble, nil
}

func (v literalVisitor) boolean(f *field.Field) (string, error) {
	if v.value == nil {
		return NullBoolean, nil
	}
	b, ok := v.value.(bool)
	if !ok {
		return "", typeError(f, "boolean", v.value)
	}
	return strconv.FormatBool(b) + CastBoolean, nil
}

func (v literalVisitor) timestamp(f *field.Field) (string, error) {
	switch t := v.value.(type) {
	case nil:
		return NullTimestamptz, nil
	case string:
		return Quote(t) + CastTimestamptz, nil
	case time.Time:
		return Quote(t.UTC().Format(TimestampLayout)) + CastTimestamptz, nil
	case *time.Time:
		if t == nil {
			return NullTimestamptz, nil
		}
		return Quote(t.UTC().Format(TimestampLayout)) + CastTimestamptz, nil
	}
	return "", typeError(f, "timestamp", v.value)
}

func (v literalVisitor) jsonb(f *field.Field) (string, error) {
	if v.value == nil {
		return NullJSONB, nil
	}
	data, err := json.Marshal(v.value)
	if err != nil {
		return "", errors.ValidationField(f.DBFieldName, "value is not JSON encodable", err)
	}
	return Quote(string(data)) + CastJSONB, nil
}

func (literalVisitor) computed(*field.Field) (string, error) {
	return Null, nil
}

func (v literalVisitor) VisitSingleLineText(f *field.Field) (string, error) { return v.text(f) }
func (v literalVisitor) VisitLongText(f *field.Field) (string, error)       { return v.text(f) }
func (v literalVisitor) VisitSingleSelect(f *field.Field) (string, error)   { return v.text(f) }

func (v literalVisitor) VisitNumber(f *field.Field) (string, error) { return v.number(f) }
func (v literalVisitor) VisitRating(f *field.Field) (string, error) { return v.number(f) }

func (v literalVisitor) VisitCheckbox(f *field.Field) (string, error) { return v.boolean(f) }

func (v literalVisitor) VisitDate(f *field.Field) (string, error)             { return v.timestamp(f) }
func (v literalVisitor) VisitLastModifiedTime(f *field.Field) (string, error) { return v.timestamp(f) }

func (v literalVisitor) VisitMultipleSelect(f *field.Field) (string, error) { return v.jsonb(f) }
func (v literalVisitor) VisitAttachment(f *field.Field) (string, error)     { return v.jsonb(f) }
func (v literalVisitor) VisitUser(f *field.Field) (string, error)           { return v.jsonb(f) }
func (v literalVisitor) VisitLink(f *field.Field) (string, error)           { return v.jsonb(f) }
func (v literalVisitor) VisitLastModifiedBy(f *field.Field) (string, error) { return v.jsonb(f) }

func (v literalVisitor) VisitFormula(f *field.Field) (string, error)     { return v.computed(f) }
func (v literalVisitor) VisitRollup(f *field.Field) (string, error)      { return v.computed(f) }
func (v literalVisitor) VisitLookup(f *field.Field) (string, error)      { return v.computed(f) }
func (v literalVisitor) VisitCreatedTime(f *field.Field) (string, error) { return v.computed(f) }
func (v literalVisitor) VisitCreatedBy(f *field.Field) (string, error)   { return v.computed(f) }
func (v literalVisitor) VisitAutoNumber(f *field.Field) (string, error)  { return v.computed(f) }
func (v literalVisitor) VisitButton(f *field.Field) (string, error)      { return v.computed(f) }
func (v literalVisitor) VisitConditionalRollup(f *field.Field) (string, error) {
	return v.computed(f)
}
func (v literalVisitor) VisitConditionalLookup(f *field.Field) (string, error) {
	return v.computed(f)
}

// FormatNumber renders a Go numeric value as a SQL numeric token. Integral
// and ordinary magnitudes use plain decimal notation, extreme magnitudes use
// exponent notation. NaN and infinities are rejected.
func FormatNumber(value any) (string, error) {
	switch n := value.(type) {
	case int:
		return strconv.FormatInt(int64(n), 10), nil
	case int8:
		return strconv.FormatInt(int64(n), 10), nil
	case int16:
		return strconv.FormatInt(int64(n), 10), nil
	case int32:
		return strconv.FormatInt(int64(n), 10), nil
	case int64:
		return strconv.FormatInt(n, 10), nil
	case uint:
		return strconv.FormatUint(uint64(n), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(n), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(n), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(n), 10), nil
	case uint64:
		return strconv.FormatUint(n, 10), nil
	case float32:
		return formatFloat(float64(n))
	case float64:
		return formatFloat(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return "", fmt.Errorf("invalid number %q", n.String())
		}
		return formatFloat(f)
	}
	return "", fmt.Errorf("expected a number, got %T", value)
}

func formatFloat(f float64) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", fmt.Errorf("number %v is not finite", f)
	}
	abs := math.Abs(f)
	if f == 0 || (abs >= 1e-6 && abs < 1e21) {
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	}
	return strconv.FormatFloat(f, 'g', -1, 64), nil
}

// Fallback renders any value as a plain text literal. It is used when a typed
// rendering fails so that a statement still carries a correctly escaped value.
func Fallback(value any) string {
	switch t := value.(type) {
	case nil:
		return Null
	case string:
		return Quote(t)
	}
	if data, err := json.Marshal(value); err == nil {
		return Quote(string(data))
	}
	return Quote(fmt.Sprint(value))
}

func typeError(f *field.Field, want string, got any) error {
	return errors.ValidationField(f.DBFieldName,
		fmt.Sprintf("expected %s value for %s field, got %T", want, f.Kind, got), nil)
}
