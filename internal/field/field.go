package field

import (
	"github.com/manav03panchal/tabula/internal/errors"
	"github.com/manav03panchal/tabula/internal/ids"
)

// Field is one column of a table.
type Field struct {
	ID          ids.FieldID `json:"id"`
	Name        string      `json:"name"`
	DBFieldName string      `json:"dbFieldName"`
	Kind        Kind        `json:"type"`
	// Generated marks a field backed by a database generated column. Such a
	// column can never be written.
	Generated bool `json:"generated,omitempty"`
	// HasError marks a field whose upstream dependency is broken, such as a
	// lookup whose link field was deleted.
	HasError bool `json:"hasError,omitempty"`
}

// New creates a field.
func New(id ids.FieldID, name, dbFieldName string, kind Kind) *Field {
	return &Field{ID: id, Name: name, DBFieldName: dbFieldName, Kind: kind}
}

// IsComputed reports whether the field cannot be written directly.
func (f *Field) IsComputed() bool {
	return f.Generated || f.Kind.IsComputed()
}

// Validate checks the field definition.
func (f *Field) Validate() error {
	if _, err := ids.ParseFieldID(string(f.ID)); err != nil {
		return err
	}
	if f.Name == "" {
		return errors.ValidationField("name", "field name cannot be empty", nil)
	}
	if f.DBFieldName == "" {
		return errors.ValidationField("dbFieldName", "field "+string(f.ID)+" has no column name", nil)
	}
	if _, ok := kindNames[f.Kind]; !ok {
		return errors.ValidationField("type", "field "+string(f.ID)+" has an invalid type", nil)
	}
	return nil
}
