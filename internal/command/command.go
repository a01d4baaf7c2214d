// Package command defines the closed set of validated mutation commands.
// A command is built from a raw payload by one of the New functions and is
// immutable afterwards: accessors hand out copies of its maps and slices.
package command

import (
	"encoding/json"

	"github.com/manav03panchal/tabula/internal/errors"
	"github.com/manav03panchal/tabula/internal/ids"
)

// Type names a command variant.
type Type string

const (
	TypeCreateRecord   Type = "CreateRecord"
	TypeUpdateRecord   Type = "UpdateRecord"
	TypeDeleteRecords  Type = "DeleteRecords"
	TypeRestoreRecords Type = "RestoreRecords"
)

// Types returns every command type.
func Types() []Type {
	return []Type{TypeCreateRecord, TypeUpdateRecord, TypeDeleteRecords, TypeRestoreRecords}
}

// Command is a validated mutation request.
type Command interface {
	Type() Type
	TableID() ids.TableID
	// Payload returns a raw payload that rebuilds an equal command.
	Payload() any
}

// Decode builds a command of type t from its JSON payload.
func Decode(t Type, raw json.RawMessage) (Command, error) {
	switch t {
	case TypeCreateRecord:
		var p CreateRecordPayload
		if err := decode(raw, &p); err != nil {
			return nil, err
		}
		return NewCreateRecord(p)
	case TypeUpdateRecord:
		var p UpdateRecordPayload
		if err := decode(raw, &p); err != nil {
			return nil, err
		}
		return NewUpdateRecord(p)
	case TypeDeleteRecords:
		var p DeleteRecordsPayload
		if err := decode(raw, &p); err != nil {
			return nil, err
		}
		return NewDeleteRecords(p)
	case TypeRestoreRecords:
		var p RestoreRecordsPayload
		if err := decode(raw, &p); err != nil {
			return nil, err
		}
		return NewRestoreRecords(p)
	}
	return nil, errors.ValidationField("type", "unknown command type '"+string(t)+"'", nil)
}

// Encode returns the type tag and JSON payload of cmd.
func Encode(cmd Command) (Type, json.RawMessage, error) {
	data, err := json.Marshal(cmd.Payload())
	if err != nil {
		return "", nil, errors.Internal("encode "+string(cmd.Type())+" payload", err)
	}
	return cmd.Type(), data, nil
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return errors.ValidationField("payload", "payload is required", nil)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		if _, ok := errors.AsDomainError(err); ok {
			return err
		}
		return errors.ValidationField("payload", "malformed payload: "+err.Error(), err)
	}
	return nil
}
