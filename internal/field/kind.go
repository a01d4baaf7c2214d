// Package field models the closed set of field kinds a table column can have
// and dispatches over them with a visitor.
package field

import (
	"encoding/json"

	"github.com/manav03panchal/tabula/internal/errors"
)

// Kind is the type of a field.
type Kind int

// Field kinds. The zero value is invalid.
const (
	KindInvalid Kind = iota
	KindSingleLineText
	KindLongText
	KindSingleSelect
	KindNumber
	KindRating
	KindCheckbox
	KindDate
	KindLastModifiedTime
	KindMultipleSelect
	KindAttachment
	KindUser
	KindLink
	KindLastModifiedBy
	KindFormula
	KindRollup
	KindLookup
	KindCreatedTime
	KindCreatedBy
	KindAutoNumber
	KindButton
	KindConditionalRollup
	KindConditionalLookup
)

var kindNames = map[Kind]string{
	KindSingleLineText:    "singleLineText",
	KindLongText:          "longText",
	KindSingleSelect:      "singleSelect",
	KindNumber:            "number",
	KindRating:            "rating",
	KindCheckbox:          "checkbox",
	KindDate:              "date",
	KindLastModifiedTime:  "lastModifiedTime",
	KindMultipleSelect:    "multipleSelect",
	KindAttachment:        "attachment",
	KindUser:              "user",
	KindLink:              "link",
	KindLastModifiedBy:    "lastModifiedBy",
	KindFormula:           "formula",
	KindRollup:            "rollup",
	KindLookup:            "lookup",
	KindCreatedTime:       "createdTime",
	KindCreatedBy:         "createdBy",
	KindAutoNumber:        "autoNumber",
	KindButton:            "button",
	KindConditionalRollup: "conditionalRollup",
	KindConditionalLookup: "conditionalLookup",
}

// Kinds returns every valid kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, 0, len(kindNames))
	for k := KindSingleLineText; k <= KindConditionalLookup; k++ {
		out = append(out, k)
	}
	return out
}

// String returns the wire name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "invalid"
}

// ParseKind converts a wire name to a Kind.
func ParseKind(name string) (Kind, error) {
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	return KindInvalid, errors.ValidationField("type", "unknown field type '"+name+"'", nil)
}

// MarshalJSON encodes the kind by name.
func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON decodes a kind name.
func (k *Kind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// IsComputed reports whether values of this kind are derived by the
// platform rather than written by users.
func (k Kind) IsComputed() bool {
	switch k {
	case KindFormula, KindRollup, KindLookup, KindCreatedTime, KindCreatedBy,
		KindAutoNumber, KindButton, KindConditionalRollup, KindConditionalLookup:
		return true
	}
	return false
}

// CellValueType is the semantic value domain of a kind.
type CellValueType string

const (
	CellString   CellValueType = "string"
	CellNumber   CellValueType = "number"
	CellBoolean  CellValueType = "boolean"
	CellDateTime CellValueType = "dateTime"
	CellJSON     CellValueType = "json"
)

// CellValueType returns the value domain accepted by the kind.
func (k Kind) CellValueType() CellValueType {
	switch k {
	case KindNumber, KindRating, KindAutoNumber:
		return CellNumber
	case KindCheckbox:
		return CellBoolean
	case KindDate, KindLastModifiedTime, KindCreatedTime:
		return CellDateTime
	case KindMultipleSelect, KindAttachment, KindUser, KindLink, KindLastModifiedBy,
		KindCreatedBy, KindLookup, KindConditionalLookup, KindButton:
		return CellJSON
	}
	return CellString
}
