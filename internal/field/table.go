package field

import (
	"github.com/manav03panchal/tabula/internal/errors"
	"github.com/manav03panchal/tabula/internal/ids"
)

// KeyType selects how the keys of a field-value map are interpreted.
type KeyType string

const (
	KeyByID          KeyType = "id"
	KeyByName        KeyType = "name"
	KeyByDBFieldName KeyType = "dbFieldName"
)

// ParseKeyType validates a key type; the empty string defaults to name.
func ParseKeyType(s string) (KeyType, error) {
	switch KeyType(s) {
	case "":
		return KeyByName, nil
	case KeyByID, KeyByName, KeyByDBFieldName:
		return KeyType(s), nil
	}
	return "", errors.ValidationField("fieldKeyType", "unknown field key type '"+s+"'", nil)
}

// Table is the schema of one table: its physical name and its fields.
type Table struct {
	ID ids.TableID `json:"id"`
	// DBTableName is the schema-qualified physical table, e.g. bseX.tblY.
	DBTableName string   `json:"dbTableName"`
	Name        string   `json:"name"`
	FieldList   []*Field `json:"fields"`

	byID     map[ids.FieldID]*Field
	byName   map[string]*Field
	byDBName map[string]*Field
}

// NewTable validates the fields and indexes them by id, name and column.
func NewTable(id ids.TableID, name, dbTableName string, fields ...*Field) (*Table, error) {
	t := &Table{ID: id, Name: name, DBTableName: dbTableName, FieldList: fields}
	if err := t.index(); err != nil {
		return nil, err
	}
	return t, nil
}

// Reindex rebuilds the lookup maps, e.g. after JSON decoding.
func (t *Table) Reindex() error {
	return t.index()
}

func (t *Table) index() error {
	if _, err := ids.ParseTableID(string(t.ID)); err != nil {
		return err
	}
	if t.DBTableName == "" {
		return errors.ValidationField("dbTableName", "table "+string(t.ID)+" has no physical name", nil)
	}
	t.byID = make(map[ids.FieldID]*Field, len(t.FieldList))
	t.byName = make(map[string]*Field, len(t.FieldList))
	t.byDBName = make(map[string]*Field, len(t.FieldList))
	for _, f := range t.FieldList {
		if err := f.Validate(); err != nil {
			return err
		}
		if _, dup := t.byID[f.ID]; dup {
			return errors.ValidationField("fields", "duplicate field id "+string(f.ID), nil)
		}
		if _, dup := t.byName[f.Name]; dup {
			return errors.ValidationField("fields", "duplicate field name "+f.Name, nil)
		}
		if _, dup := t.byDBName[f.DBFieldName]; dup {
			return errors.ValidationField("fields", "duplicate column "+f.DBFieldName, nil)
		}
		t.byID[f.ID] = f
		t.byName[f.Name] = f
		t.byDBName[f.DBFieldName] = f
	}
	return nil
}

// Fields returns the fields in declaration order.
func (t *Table) Fields() []*Field {
	return t.FieldList
}

// FieldByID looks a field up by id.
func (t *Table) FieldByID(id ids.FieldID) (*Field, bool) {
	f, ok := t.byID[id]
	return f, ok
}

// FieldByName looks a field up by display name.
func (t *Table) FieldByName(name string) (*Field, bool) {
	f, ok := t.byName[name]
	return f, ok
}

// FieldByDBName looks a field up by its column name.
func (t *Table) FieldByDBName(column string) (*Field, bool) {
	f, ok := t.byDBName[column]
	return f, ok
}

// Resolve finds the field addressed by key under the given key type.
func (t *Table) Resolve(keyType KeyType, key string) (*Field, error) {
	var (
		f  *Field
		ok bool
	)
	switch keyType {
	case KeyByID:
		f, ok = t.FieldByID(ids.FieldID(key))
	case KeyByDBFieldName:
		f, ok = t.FieldByDBName(key)
	default:
		f, ok = t.FieldByName(key)
	}
	if !ok {
		return nil, errors.NotFound("field '"+key+"' not found in table "+string(t.ID), errors.ErrFieldNotFound)
	}
	return f, nil
}
