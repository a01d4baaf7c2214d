package undo

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/manav03panchal/tabula/internal/command"
	"github.com/manav03panchal/tabula/internal/errors"
)

// CurrentVersion is the payload version written for every data type.
const CurrentVersion = 1

// DataType tags a CommandData.
type DataType string

const (
	DataUpdateRecord   DataType = "UpdateRecord"
	DataDeleteRecords  DataType = "DeleteRecords"
	DataRestoreRecords DataType = "RestoreRecords"
	DataBatch          DataType = "Batch"
)

// CommandData is the serialized form of a command kept in the history. A
// Batch payload is a JSON array of leaf CommandData.
type CommandData struct {
	Type    DataType        `json:"type"`
	Version int             `json:"version"`
	Payload json.RawMessage `json:"payload"`
}

// NewUpdateRecordData serializes an UpdateRecord payload.
func NewUpdateRecordData(p command.UpdateRecordPayload) (CommandData, error) {
	return newData(DataUpdateRecord, p)
}

// NewDeleteRecordsData serializes a DeleteRecords payload.
func NewDeleteRecordsData(p command.DeleteRecordsPayload) (CommandData, error) {
	return newData(DataDeleteRecords, p)
}

// NewRestoreRecordsData serializes a RestoreRecords payload.
func NewRestoreRecordsData(p command.RestoreRecordsPayload) (CommandData, error) {
	return newData(DataRestoreRecords, p)
}

// NewBatchData groups leaves into one step. Batches do not nest.
func NewBatchData(leaves ...CommandData) (CommandData, error) {
	for i, leaf := range leaves {
		if leaf.Type == DataBatch {
			return CommandData{}, errors.Validationf("batch leaf %d is itself a batch", i)
		}
	}
	if leaves == nil {
		leaves = []CommandData{}
	}
	return newData(DataBatch, leaves)
}

func newData(t DataType, payload any) (CommandData, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return CommandData{}, errors.Internal("encode "+string(t)+" undo data", err)
	}
	return CommandData{Type: t, Version: CurrentVersion, Payload: raw}, nil
}

// IsEmptyBatch reports whether d is a Batch without leaves. Such data is a
// no-op and is never recorded.
func (d CommandData) IsEmptyBatch() bool {
	if d.Type != DataBatch {
		return false
	}
	trimmed := bytes.TrimSpace(d.Payload)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("[]")) {
		return true
	}
	var leaves []json.RawMessage
	if err := json.Unmarshal(trimmed, &leaves); err != nil {
		return false
	}
	return len(leaves) == 0
}

// Leaves returns the nested data of a Batch, or d itself for a leaf.
func (d CommandData) Leaves() ([]CommandData, error) {
	if d.Type != DataBatch {
		return []CommandData{d}, nil
	}
	var leaves []CommandData
	if err := json.Unmarshal(d.Payload, &leaves); err != nil {
		return nil, errors.ValidationField("payload", "malformed batch payload", err)
	}
	return leaves, nil
}

// Commands rebuilds the live commands of d, validating every payload again.
// Nothing is returned unless every leaf is valid.
func (d CommandData) Commands() ([]command.Command, error) {
	if err := checkVersion(d); err != nil {
		return nil, err
	}
	if d.Type != DataBatch {
		cmd, err := d.command()
		if err != nil {
			return nil, err
		}
		return []command.Command{cmd}, nil
	}

	leaves, err := d.Leaves()
	if err != nil {
		return nil, err
	}
	cmds := make([]command.Command, 0, len(leaves))
	for i, leaf := range leaves {
		if leaf.Type == DataBatch {
			return nil, errors.Validationf("batch leaf %d is itself a batch", i)
		}
		if err := checkVersion(leaf); err != nil {
			return nil, err
		}
		cmd, err := leaf.command()
		if err != nil {
			return nil, errors.WithContextf(err, "batch leaf %d", i)
		}
		cmds = append(cmds, cmd)
	}
	return cmds, nil
}

func (d CommandData) command() (command.Command, error) {
	switch d.Type {
	case DataUpdateRecord:
		return command.Decode(command.TypeUpdateRecord, d.Payload)
	case DataDeleteRecords:
		return command.Decode(command.TypeDeleteRecords, d.Payload)
	case DataRestoreRecords:
		return command.Decode(command.TypeRestoreRecords, d.Payload)
	}
	return nil, errors.ValidationField("type", fmt.Sprintf("Unknown undo/redo command type: %s", d.Type), nil)
}

func checkVersion(d CommandData) error {
	if d.Version == CurrentVersion {
		return nil
	}
	return &errors.DomainError{
		Kind:    errors.KindValidation,
		Message: fmt.Sprintf("Unsupported undo/redo command version: %d", d.Version),
		Cause:   errors.ErrUnsupportedVersion,
	}
}

func (d CommandData) clone() CommandData {
	d.Payload = append(json.RawMessage(nil), d.Payload...)
	return d
}
