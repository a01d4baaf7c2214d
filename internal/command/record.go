package command

import (
	"time"

	"github.com/manav03panchal/tabula/internal/errors"
	"github.com/manav03panchal/tabula/internal/field"
	"github.com/manav03panchal/tabula/internal/ids"
)

// =============================================================================
// CreateRecord
// =============================================================================

// CreateRecordPayload is the raw input of CreateRecord. RecordID is optional;
// a fresh id is generated when it is empty.
type CreateRecordPayload struct {
	TableID      ids.TableID    `json:"tableId"`
	RecordID     ids.RecordID   `json:"recordId,omitempty"`
	Fields       map[string]any `json:"fields"`
	FieldKeyType string         `json:"fieldKeyType,omitempty"`
	Typecast     bool           `json:"typecast,omitempty"`
}

// CreateRecord inserts one record.
type CreateRecord struct {
	tableID  ids.TableID
	recordID ids.RecordID
	fields   map[string]any
	keyType  field.KeyType
	typecast bool
}

// NewCreateRecord validates p.
func NewCreateRecord(p CreateRecordPayload) (*CreateRecord, error) {
	table, err := ids.ParseTableID(string(p.TableID))
	if err != nil {
		return nil, err
	}
	record := p.RecordID
	if record == "" {
		record = ids.NewRecordID()
	} else if record, err = ids.ParseRecordID(string(p.RecordID)); err != nil {
		return nil, err
	}
	keyType, err := field.ParseKeyType(p.FieldKeyType)
	if err != nil {
		return nil, err
	}
	return &CreateRecord{
		tableID:  table,
		recordID: record,
		fields:   cloneValues(nonNil(p.Fields)),
		keyType:  keyType,
		typecast: p.Typecast,
	}, nil
}

func (c *CreateRecord) Type() Type                  { return TypeCreateRecord }
func (c *CreateRecord) TableID() ids.TableID        { return c.tableID }
func (c *CreateRecord) RecordID() ids.RecordID      { return c.recordID }
func (c *CreateRecord) Fields() map[string]any      { return cloneValues(c.fields) }
func (c *CreateRecord) FieldKeyType() field.KeyType { return c.keyType }
func (c *CreateRecord) Typecast() bool              { return c.typecast }

func (c *CreateRecord) Payload() any {
	return CreateRecordPayload{
		TableID:      c.tableID,
		RecordID:     c.recordID,
		Fields:       c.Fields(),
		FieldKeyType: string(c.keyType),
		Typecast:     c.typecast,
	}
}

// =============================================================================
// UpdateRecord
// =============================================================================

// UpdateRecordPayload is the raw input of UpdateRecord. ExpectedVersion, when
// set, makes the update fail with a conflict if the stored version differs.
type UpdateRecordPayload struct {
	TableID         ids.TableID    `json:"tableId"`
	RecordID        ids.RecordID   `json:"recordId"`
	Fields          map[string]any `json:"fields"`
	FieldKeyType    string         `json:"fieldKeyType,omitempty"`
	Typecast        bool           `json:"typecast"`
	ExpectedVersion *int64         `json:"expectedVersion,omitempty"`
}

// UpdateRecord writes a subset of one record's fields.
type UpdateRecord struct {
	tableID         ids.TableID
	recordID        ids.RecordID
	fields          map[string]any
	keyType         field.KeyType
	typecast        bool
	expectedVersion *int64
}

// NewUpdateRecord validates p. At least one field is required.
func NewUpdateRecord(p UpdateRecordPayload) (*UpdateRecord, error) {
	table, err := ids.ParseTableID(string(p.TableID))
	if err != nil {
		return nil, err
	}
	record, err := ids.ParseRecordID(string(p.RecordID))
	if err != nil {
		return nil, err
	}
	if len(p.Fields) == 0 {
		return nil, errors.ValidationField("fields", "at least one field is required", nil)
	}
	keyType, err := field.ParseKeyType(p.FieldKeyType)
	if err != nil {
		return nil, err
	}
	cmd := &UpdateRecord{
		tableID:  table,
		recordID: record,
		fields:   cloneValues(p.Fields),
		keyType:  keyType,
		typecast: p.Typecast,
	}
	if p.ExpectedVersion != nil {
		if *p.ExpectedVersion < 0 {
			return nil, errors.ValidationField("expectedVersion", "version cannot be negative", nil)
		}
		v := *p.ExpectedVersion
		cmd.expectedVersion = &v
	}
	return cmd, nil
}

func (c *UpdateRecord) Type() Type                  { return TypeUpdateRecord }
func (c *UpdateRecord) TableID() ids.TableID        { return c.tableID }
func (c *UpdateRecord) RecordID() ids.RecordID      { return c.recordID }
func (c *UpdateRecord) Fields() map[string]any      { return cloneValues(c.fields) }
func (c *UpdateRecord) FieldKeyType() field.KeyType { return c.keyType }
func (c *UpdateRecord) Typecast() bool              { return c.typecast }

// ExpectedVersion returns the version the caller based the edit on.
func (c *UpdateRecord) ExpectedVersion() (int64, bool) {
	if c.expectedVersion == nil {
		return 0, false
	}
	return *c.expectedVersion, true
}

func (c *UpdateRecord) Payload() any {
	p := UpdateRecordPayload{
		TableID:      c.tableID,
		RecordID:     c.recordID,
		Fields:       c.Fields(),
		FieldKeyType: string(c.keyType),
		Typecast:     c.typecast,
	}
	if v, ok := c.ExpectedVersion(); ok {
		p.ExpectedVersion = &v
	}
	return p
}

// =============================================================================
// DeleteRecords
// =============================================================================

// DeleteRecordsPayload is the raw input of DeleteRecords.
type DeleteRecordsPayload struct {
	TableID   ids.TableID `json:"tableId"`
	RecordIDs []string    `json:"recordIds"`
}

// DeleteRecords removes records.
type DeleteRecords struct {
	tableID   ids.TableID
	recordIDs []ids.RecordID
}

// NewDeleteRecords validates p. The id list must be non-empty and free of
// duplicates.
func NewDeleteRecords(p DeleteRecordsPayload) (*DeleteRecords, error) {
	table, err := ids.ParseTableID(string(p.TableID))
	if err != nil {
		return nil, err
	}
	if len(p.RecordIDs) == 0 {
		return nil, errors.ValidationField("recordIds", "at least one record id is required", nil)
	}
	records, err := ids.ParseRecordIDs(p.RecordIDs)
	if err != nil {
		return nil, err
	}
	return &DeleteRecords{tableID: table, recordIDs: records}, nil
}

func (c *DeleteRecords) Type() Type           { return TypeDeleteRecords }
func (c *DeleteRecords) TableID() ids.TableID { return c.tableID }

// RecordIDs returns the ids in request order.
func (c *DeleteRecords) RecordIDs() []ids.RecordID {
	return append([]ids.RecordID(nil), c.recordIDs...)
}

func (c *DeleteRecords) Payload() any {
	raw := make([]string, len(c.recordIDs))
	for i, id := range c.recordIDs {
		raw[i] = string(id)
	}
	return DeleteRecordsPayload{TableID: c.tableID, RecordIDs: raw}
}

// =============================================================================
// RestoreRecords
// =============================================================================

// Snapshot is the full state of a record at deletion time. Fields are keyed
// by field id.
type Snapshot struct {
	ID          ids.RecordID   `json:"id"`
	Fields      map[string]any `json:"fields"`
	Version     int64          `json:"version"`
	CreatedTime *time.Time     `json:"createdTime,omitempty"`
	CreatedBy   string         `json:"createdBy,omitempty"`
}

func (s Snapshot) clone() Snapshot {
	s.Fields = cloneValues(s.Fields)
	if s.CreatedTime != nil {
		t := *s.CreatedTime
		s.CreatedTime = &t
	}
	return s
}

// RestoreRecordsPayload is the raw input of RestoreRecords.
type RestoreRecordsPayload struct {
	TableID ids.TableID `json:"tableId"`
	Records []Snapshot  `json:"records"`
}

// RestoreRecords re-inserts previously deleted records from snapshots.
type RestoreRecords struct {
	tableID ids.TableID
	records []Snapshot
}

// NewRestoreRecords validates p. Snapshot field keys must be field ids.
func NewRestoreRecords(p RestoreRecordsPayload) (*RestoreRecords, error) {
	table, err := ids.ParseTableID(string(p.TableID))
	if err != nil {
		return nil, err
	}
	if len(p.Records) == 0 {
		return nil, errors.ValidationField("records", "at least one record is required", nil)
	}
	seen := make(map[ids.RecordID]struct{}, len(p.Records))
	records := make([]Snapshot, 0, len(p.Records))
	for _, s := range p.Records {
		if _, err := ids.ParseRecordID(string(s.ID)); err != nil {
			return nil, err
		}
		if _, dup := seen[s.ID]; dup {
			return nil, errors.ValidationField("records", "duplicate record id '"+string(s.ID)+"'", nil)
		}
		seen[s.ID] = struct{}{}
		for key := range s.Fields {
			if _, err := ids.ParseFieldID(key); err != nil {
				return nil, errors.WithContextf(err, "record %s", s.ID)
			}
		}
		if s.Version < 0 {
			return nil, errors.ValidationField("version", "version cannot be negative", nil)
		}
		s.Fields = nonNil(s.Fields)
		records = append(records, s.clone())
	}
	return &RestoreRecords{tableID: table, records: records}, nil
}

func (c *RestoreRecords) Type() Type           { return TypeRestoreRecords }
func (c *RestoreRecords) TableID() ids.TableID { return c.tableID }

// Records returns copies of the snapshots in request order.
func (c *RestoreRecords) Records() []Snapshot {
	out := make([]Snapshot, len(c.records))
	for i, s := range c.records {
		out[i] = s.clone()
	}
	return out
}

// RecordIDs returns the ids of the snapshots in request order.
func (c *RestoreRecords) RecordIDs() []ids.RecordID {
	out := make([]ids.RecordID, len(c.records))
	for i, s := range c.records {
		out[i] = s.ID
	}
	return out
}

func (c *RestoreRecords) Payload() any {
	return RestoreRecordsPayload{TableID: c.tableID, Records: c.Records()}
}

func nonNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
