package record

import (
	"context"
	"maps"
	"sync"

	"github.com/manav03panchal/tabula/internal/errors"
	"github.com/manav03panchal/tabula/internal/execctx"
	"github.com/manav03panchal/tabula/internal/field"
	"github.com/manav03panchal/tabula/internal/ids"
)

// MemoryRepository keeps records in process memory. InTx serializes whole
// transactions; a failing transaction rolls back every write it made.
type MemoryRepository struct {
	txMu sync.Mutex

	mu     sync.RWMutex
	tables map[ids.TableID]map[ids.RecordID]Record
}

var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{tables: make(map[ids.TableID]map[ids.RecordID]Record)}
}

func (r *MemoryRepository) rows(table ids.TableID) map[ids.RecordID]Record {
	rows, ok := r.tables[table]
	if !ok {
		rows = make(map[ids.RecordID]Record)
		r.tables[table] = rows
	}
	return rows
}

func notFound(id ids.RecordID) error {
	return errors.NotFound("record "+string(id)+" not found", errors.ErrRecordNotFound)
}

// Get implements Repository.
func (r *MemoryRepository) Get(_ context.Context, _ *execctx.Context, table *field.Table, recordIDs []ids.RecordID) ([]Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows := r.tables[table.ID]
	out := make([]Record, 0, len(recordIDs))
	for _, id := range recordIDs {
		rec, ok := rows[id]
		if !ok {
			return nil, notFound(id)
		}
		out = append(out, rec.Clone())
	}
	return out, nil
}

// Insert implements Repository.
func (r *MemoryRepository) Insert(_ context.Context, _ *execctx.Context, table *field.Table, records []Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows := r.rows(table.ID)
	for _, rec := range records {
		if _, exists := rows[rec.ID]; exists {
			return errors.Conflict("record "+string(rec.ID)+" already exists", nil)
		}
	}
	for _, rec := range records {
		rows[rec.ID] = rec.Clone()
	}
	return nil
}

// Update implements Repository.
func (r *MemoryRepository) Update(_ context.Context, _ *execctx.Context, table *field.Table, changes []Change, meta Meta) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows := r.rows(table.ID)
	for _, ch := range changes {
		if _, ok := rows[ch.RecordID]; !ok {
			return notFound(ch.RecordID)
		}
	}
	at := meta.Time
	for _, ch := range changes {
		rec := rows[ch.RecordID].Clone()
		maps.Copy(rec.Fields, ch.Values)
		rec.Version++
		rec.LastModifiedTime = &at
		rec.LastModifiedBy = string(meta.Actor)
		rows[ch.RecordID] = rec
	}
	return nil
}

// Delete implements Repository.
func (r *MemoryRepository) Delete(_ context.Context, _ *execctx.Context, table *field.Table, recordIDs []ids.RecordID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows := r.rows(table.ID)
	for _, id := range recordIDs {
		if _, ok := rows[id]; !ok {
			return notFound(id)
		}
	}
	for _, id := range recordIDs {
		delete(rows, id)
	}
	return nil
}

// InTx implements Repository. Calls must not nest.
func (r *MemoryRepository) InTx(_ context.Context, ec *execctx.Context, fn func(tc *execctx.Context) error) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()

	r.mu.RLock()
	saved := make(map[ids.TableID]map[ids.RecordID]Record, len(r.tables))
	for id, rows := range r.tables {
		saved[id] = maps.Clone(rows)
	}
	r.mu.RUnlock()

	if err := fn(ec); err != nil {
		r.mu.Lock()
		r.tables = saved
		r.mu.Unlock()
		return err
	}
	return nil
}

// Count returns the number of records stored for table.
func (r *MemoryRepository) Count(table ids.TableID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tables[table])
}
