package record

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/manav03panchal/tabula/internal/bus"
	"github.com/manav03panchal/tabula/internal/command"
	"github.com/manav03panchal/tabula/internal/errors"
	"github.com/manav03panchal/tabula/internal/execctx"
	"github.com/manav03panchal/tabula/internal/field"
	"github.com/manav03panchal/tabula/internal/ids"
	"github.com/manav03panchal/tabula/internal/logging"
	"github.com/manav03panchal/tabula/internal/undo"
)

// Result is what every record handler returns.
type Result struct {
	// Records holds the records after the command; for deletions, the
	// records as they were before.
	Records []Record `json:"records"`
	// Entry is the recorded undo step, nil when nothing was recorded.
	Entry *undo.Entry `json:"undoEntry,omitempty"`
}

// RecordIDs returns the ids of the affected records.
func (r *Result) RecordIDs() []ids.RecordID {
	out := make([]ids.RecordID, len(r.Records))
	for i, rec := range r.Records {
		out[i] = rec.ID
	}
	return out
}

// Handlers executes the record commands.
type Handlers struct {
	repo    Repository
	catalog Catalog
	history *undo.Service
	now     func() time.Time
}

// Option configures Handlers.
type Option func(*Handlers)

// WithClock sets the clock used for system columns.
func WithClock(now func() time.Time) Option {
	return func(h *Handlers) { h.now = now }
}

// NewHandlers creates handlers over repo. history may be nil, in which case
// no undo steps are recorded.
func NewHandlers(repo Repository, catalog Catalog, history *undo.Service, opts ...Option) *Handlers {
	h := &Handlers{repo: repo, catalog: catalog, history: history, now: time.Now}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register installs a handler for every record command on b.
func (h *Handlers) Register(b *bus.Bus) {
	bus.Register(b, command.TypeCreateRecord, h.CreateRecord)
	bus.Register(b, command.TypeUpdateRecord, h.UpdateRecord)
	bus.Register(b, command.TypeDeleteRecords, h.DeleteRecords)
	bus.Register(b, command.TypeRestoreRecords, h.RestoreRecords)
}

func (h *Handlers) meta(ec *execctx.Context) Meta {
	return Meta{Time: h.now().UTC(), Actor: ec.ActorID}
}

// checkScope fails before any write when the undo step of a mutation on
// table could not be recorded.
func (h *Handlers) checkScope(ec *execctx.Context, table *field.Table) error {
	if h.history == nil {
		return nil
	}
	return h.history.CheckScope(ec, table.ID)
}

// keepEntry returns entry, or nil when recording it failed. The mutation has
// committed by then, so the failure is logged and the result still returned.
func keepEntry(ctx context.Context, table *field.Table, entry *undo.Entry, err error) *undo.Entry {
	if err != nil {
		logging.WarnContext(ctx, "undo step not recorded",
			logging.KeyTable, table.ID,
			logging.KeyError, err)
		return nil
	}
	return entry
}

// CreateRecord inserts a record. Its undo step deletes the record again and
// its redo step restores the created snapshot.
func (h *Handlers) CreateRecord(ctx context.Context, ec *execctx.Context, cmd *command.CreateRecord) (*Result, error) {
	table, err := h.catalog.Table(ctx, cmd.TableID())
	if err != nil {
		return nil, err
	}
	if err := h.checkScope(ec, table); err != nil {
		return nil, err
	}
	values, err := Normalize(table, cmd.FieldKeyType(), cmd.Fields(), cmd.Typecast())
	if err != nil {
		return nil, err
	}

	meta := h.meta(ec)
	rec := Record{
		ID:          cmd.RecordID(),
		Fields:      values,
		Version:     1,
		CreatedTime: meta.Time,
		CreatedBy:   string(meta.Actor),
	}
	err = h.repo.InTx(ctx, ec, func(tc *execctx.Context) error {
		return h.repo.Insert(ctx, tc, table, []Record{rec})
	})
	if err != nil {
		return nil, err
	}

	after := rec.Version
	entry, err := h.recordDeleteRestore(ctx, ec, table, []Record{rec}, false, nil, &after)
	return &Result{Records: []Record{rec.Clone()}, Entry: keepEntry(ctx, table, entry, err)}, nil
}

// UpdateRecord writes the fields of one record. Fields whose value does not
// change are dropped; an update that changes nothing writes nothing.
func (h *Handlers) UpdateRecord(ctx context.Context, ec *execctx.Context, cmd *command.UpdateRecord) (*Result, error) {
	table, err := h.catalog.Table(ctx, cmd.TableID())
	if err != nil {
		return nil, err
	}
	if err := h.checkScope(ec, table); err != nil {
		return nil, err
	}
	values, err := Normalize(table, cmd.FieldKeyType(), cmd.Fields(), cmd.Typecast())
	if err != nil {
		return nil, err
	}

	var (
		before, after Record
		oldValues     = map[string]any{}
		newValues     = map[string]any{}
	)
	meta := h.meta(ec)
	err = h.repo.InTx(ctx, ec, func(tc *execctx.Context) error {
		recs, err := h.repo.Get(ctx, tc, table, []ids.RecordID{cmd.RecordID()})
		if err != nil {
			return err
		}
		before = recs[0]
		if expected, ok := cmd.ExpectedVersion(); ok && expected != before.Version {
			return errors.Conflict(fmt.Sprintf("record %s is at version %d, expected %d",
				before.ID, before.Version, expected), errors.ErrVersionConflict)
		}

		for id, v := range values {
			old := before.Fields[id]
			if reflect.DeepEqual(old, v) {
				continue
			}
			oldValues[id] = old
			newValues[id] = v
		}

		after = before.Clone()
		if len(newValues) == 0 {
			return nil
		}
		if err := h.repo.Update(ctx, tc, table, []Change{{RecordID: before.ID, Values: newValues}}, meta); err != nil {
			return err
		}
		for id, v := range newValues {
			after.Fields[id] = v
		}
		after.Version++
		at := meta.Time
		after.LastModifiedTime = &at
		after.LastModifiedBy = string(meta.Actor)
		return nil
	})
	if err != nil {
		return nil, err
	}

	res := &Result{Records: []Record{after}}
	if h.history == nil || len(oldValues) == 0 {
		return res, nil
	}
	vBefore, vAfter := before.Version, after.Version
	entry, err := h.history.RecordUpdateRecord(ctx, ec, undo.UpdateRecordChange{
		TableID:             table.ID,
		RecordID:            before.ID,
		OldValues:           oldValues,
		NewValues:           newValues,
		RecordVersionBefore: &vBefore,
		RecordVersionAfter:  &vAfter,
	})
	res.Entry = keepEntry(ctx, table, entry, err)
	return res, nil
}

// DeleteRecords removes records. Its undo step restores their snapshots and
// its redo step deletes them again.
func (h *Handlers) DeleteRecords(ctx context.Context, ec *execctx.Context, cmd *command.DeleteRecords) (*Result, error) {
	table, err := h.catalog.Table(ctx, cmd.TableID())
	if err != nil {
		return nil, err
	}
	if err := h.checkScope(ec, table); err != nil {
		return nil, err
	}

	var removed []Record
	err = h.repo.InTx(ctx, ec, func(tc *execctx.Context) error {
		recs, err := h.repo.Get(ctx, tc, table, cmd.RecordIDs())
		if err != nil {
			return err
		}
		removed = recs
		return h.repo.Delete(ctx, tc, table, cmd.RecordIDs())
	})
	if err != nil {
		return nil, err
	}

	var before *int64
	if len(removed) == 1 {
		v := removed[0].Version
		before = &v
	}
	entry, err := h.recordDeleteRestore(ctx, ec, table, removed, true, before, nil)
	return &Result{Records: removed, Entry: keepEntry(ctx, table, entry, err)}, nil
}

// RestoreRecords re-inserts records from snapshots. Its undo step deletes
// them and its redo step restores them again.
func (h *Handlers) RestoreRecords(ctx context.Context, ec *execctx.Context, cmd *command.RestoreRecords) (*Result, error) {
	table, err := h.catalog.Table(ctx, cmd.TableID())
	if err != nil {
		return nil, err
	}
	if err := h.checkScope(ec, table); err != nil {
		return nil, err
	}

	meta := h.meta(ec)
	snapshots := cmd.Records()
	records := make([]Record, 0, len(snapshots))
	for _, s := range snapshots {
		for id := range s.Fields {
			if _, ok := table.FieldByID(ids.FieldID(id)); !ok {
				return nil, errors.NotFound("field '"+id+"' not found in table "+string(table.ID), errors.ErrFieldNotFound)
			}
		}
		rec := Record{
			ID:          s.ID,
			Fields:      s.Fields,
			Version:     max(s.Version, 1),
			CreatedTime: meta.Time,
			CreatedBy:   s.CreatedBy,
		}
		if s.CreatedTime != nil {
			rec.CreatedTime = s.CreatedTime.UTC()
		}
		if rec.CreatedBy == "" {
			rec.CreatedBy = string(meta.Actor)
		}
		records = append(records, rec)
	}

	err = h.repo.InTx(ctx, ec, func(tc *execctx.Context) error {
		return h.repo.Insert(ctx, tc, table, records)
	})
	if err != nil {
		return nil, err
	}

	entry, err := h.recordDeleteRestore(ctx, ec, table, records, false, nil, nil)
	return &Result{Records: records, Entry: keepEntry(ctx, table, entry, err)}, nil
}

// recordDeleteRestore records the pair of steps shared by create, delete
// and restore: one direction deletes records, the other restores them.
// deleted selects whether the mutation that just ran was the deletion.
func (h *Handlers) recordDeleteRestore(ctx context.Context, ec *execctx.Context, table *field.Table, records []Record, deleted bool, versionBefore, versionAfter *int64) (*undo.Entry, error) {
	if h.history == nil || len(records) == 0 {
		return nil, nil
	}

	recordIDs := make([]string, len(records))
	snapshots := make([]command.Snapshot, len(records))
	for i, rec := range records {
		recordIDs[i] = string(rec.ID)
		snapshots[i] = rec.Snapshot()
	}
	del, err := undo.NewDeleteRecordsData(command.DeleteRecordsPayload{TableID: table.ID, RecordIDs: recordIDs})
	if err != nil {
		return nil, err
	}
	restore, err := undo.NewRestoreRecordsData(command.RestoreRecordsPayload{TableID: table.ID, Records: snapshots})
	if err != nil {
		return nil, err
	}

	in := undo.EntryInput{
		UndoCommand:         del,
		RedoCommand:         restore,
		RecordVersionBefore: versionBefore,
		RecordVersionAfter:  versionAfter,
	}
	if deleted {
		in.UndoCommand, in.RedoCommand = restore, del
	}
	return h.history.RecordEntry(ctx, ec, table.ID, in)
}
