// Package ids defines the validated opaque identifiers used by commands and
// undo scopes. An id is a fixed three letter prefix followed by exactly
// BodyLength characters from [0-9A-Za-z].
package ids

import (
	"crypto/rand"
	"encoding/json"
	"regexp"

	"github.com/manav03panchal/tabula/internal/errors"
)

// BodyLength is the number of characters after the prefix.
const BodyLength = 16

// Prefixes of every identifier kind.
const (
	PrefixActor  = "usr"
	PrefixTable  = "tbl"
	PrefixRecord = "rec"
	PrefixField  = "fld"
	PrefixWindow = "win"
)

const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

var bodyPattern = regexp.MustCompile(`^[0-9A-Za-z]{16}$`)

// Valid reports whether s is a well-formed id with the given prefix.
func Valid(prefix, s string) bool {
	if len(s) != len(prefix)+BodyLength || s[:len(prefix)] != prefix {
		return false
	}
	return bodyPattern.MatchString(s[len(prefix):])
}

func parse(field, prefix, s string) error {
	if s == "" {
		return errors.ValidationField(field, "identifier cannot be empty", errors.ErrInvalidID)
	}
	if !Valid(prefix, s) {
		return errors.ValidationField(field, "malformed identifier '"+s+"', want "+prefix+" followed by 16 letters or digits", errors.ErrInvalidID)
	}
	return nil
}

// maxUnbiased is the largest multiple of len(alphabet) that fits in a byte.
// Random bytes at or above it are discarded so every character is equally
// likely.
const maxUnbiased = 256 - 256%len(alphabet)

// generate returns prefix plus a body drawn from crypto/rand.
func generate(prefix string) string {
	body := make([]byte, 0, BodyLength)
	buf := make([]byte, BodyLength*2)
	for len(body) < BodyLength {
		if _, err := rand.Read(buf); err != nil {
			panic("ids: crypto/rand unavailable: " + err.Error())
		}
		for _, b := range buf {
			if int(b) >= maxUnbiased {
				continue
			}
			body = append(body, alphabet[int(b)%len(alphabet)])
			if len(body) == BodyLength {
				break
			}
		}
	}
	return prefix + string(body)
}

// ActorID identifies the user issuing a mutation.
type ActorID string

// TableID identifies a table.
type TableID string

// RecordID identifies a record (row).
type RecordID string

// FieldID identifies a field (column).
type FieldID string

// WindowID identifies a client window; each window owns its undo history.
type WindowID string

// ParseActorID validates s as an ActorID.
func ParseActorID(s string) (ActorID, error) {
	if err := parse("actorId", PrefixActor, s); err != nil {
		return "", err
	}
	return ActorID(s), nil
}

// ParseTableID validates s as a TableID.
func ParseTableID(s string) (TableID, error) {
	if err := parse("tableId", PrefixTable, s); err != nil {
		return "", err
	}
	return TableID(s), nil
}

// ParseRecordID validates s as a RecordID.
func ParseRecordID(s string) (RecordID, error) {
	if err := parse("recordId", PrefixRecord, s); err != nil {
		return "", err
	}
	return RecordID(s), nil
}

// ParseFieldID validates s as a FieldID.
func ParseFieldID(s string) (FieldID, error) {
	if err := parse("fieldId", PrefixField, s); err != nil {
		return "", err
	}
	return FieldID(s), nil
}

// ParseWindowID validates s as a WindowID.
func ParseWindowID(s string) (WindowID, error) {
	if err := parse("windowId", PrefixWindow, s); err != nil {
		return "", err
	}
	return WindowID(s), nil
}

// NewActorID generates a fresh ActorID.
func NewActorID() ActorID { return ActorID(generate(PrefixActor)) }

// NewTableID generates a fresh TableID.
func NewTableID() TableID { return TableID(generate(PrefixTable)) }

// NewRecordID generates a fresh RecordID.
func NewRecordID() RecordID { return RecordID(generate(PrefixRecord)) }

// NewFieldID generates a fresh FieldID.
func NewFieldID() FieldID { return FieldID(generate(PrefixField)) }

// NewWindowID generates a fresh WindowID.
func NewWindowID() WindowID { return WindowID(generate(PrefixWindow)) }

func (id ActorID) String() string  { return string(id) }
func (id TableID) String() string  { return string(id) }
func (id RecordID) String() string { return string(id) }
func (id FieldID) String() string  { return string(id) }
func (id WindowID) String() string { return string(id) }

// UnmarshalJSON rejects malformed ids while decoding.
func (id *ActorID) UnmarshalJSON(data []byte) error {
	return unmarshal(data, func(s string) error { v, err := ParseActorID(s); *id = v; return err })
}

// UnmarshalJSON rejects malformed ids while decoding.
func (id *TableID) UnmarshalJSON(data []byte) error {
	return unmarshal(data, func(s string) error { v, err := ParseTableID(s); *id = v; return err })
}

// UnmarshalJSON rejects malformed ids while decoding.
func (id *RecordID) UnmarshalJSON(data []byte) error {
	return unmarshal(data, func(s string) error { v, err := ParseRecordID(s); *id = v; return err })
}

// UnmarshalJSON rejects malformed ids while decoding.
func (id *FieldID) UnmarshalJSON(data []byte) error {
	return unmarshal(data, func(s string) error { v, err := ParseFieldID(s); *id = v; return err })
}

// UnmarshalJSON rejects malformed ids while decoding.
func (id *WindowID) UnmarshalJSON(data []byte) error {
	return unmarshal(data, func(s string) error { v, err := ParseWindowID(s); *id = v; return err })
}

func unmarshal(data []byte, set func(string) error) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.ValidationField("id", "identifier must be a string", err)
	}
	return set(s)
}

// ParseRecordIDs validates a list of record ids, rejecting duplicates.
func ParseRecordIDs(raw []string) ([]RecordID, error) {
	out := make([]RecordID, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, s := range raw {
		id, err := ParseRecordID(s)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[s]; dup {
			return nil, errors.ValidationField("recordIds", "duplicate record id '"+s+"'", nil)
		}
		seen[s] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}
