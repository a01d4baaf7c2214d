// Package record executes the record commands against a repository and
// records the undo step of every mutation.
package record

import (
	"context"
	"maps"
	"time"

	"github.com/manav03panchal/tabula/internal/command"
	"github.com/manav03panchal/tabula/internal/errors"
	"github.com/manav03panchal/tabula/internal/execctx"
	"github.com/manav03panchal/tabula/internal/field"
	"github.com/manav03panchal/tabula/internal/ids"
)

// Record is one stored row. Fields are keyed by field id.
type Record struct {
	ID               ids.RecordID   `json:"id"`
	Fields           map[string]any `json:"fields"`
	Version          int64          `json:"version"`
	CreatedTime      time.Time      `json:"createdTime"`
	CreatedBy        string         `json:"createdBy,omitempty"`
	LastModifiedTime *time.Time     `json:"lastModifiedTime,omitempty"`
	LastModifiedBy   string         `json:"lastModifiedBy,omitempty"`
}

// RecordID returns the id of the record.
func (r Record) RecordID() ids.RecordID { return r.ID }

// Clone returns a copy of r whose field map can be modified freely.
func (r Record) Clone() Record {
	r.Fields = maps.Clone(r.Fields)
	if r.Fields == nil {
		r.Fields = map[string]any{}
	}
	if r.LastModifiedTime != nil {
		t := *r.LastModifiedTime
		r.LastModifiedTime = &t
	}
	return r
}

// Snapshot captures the state needed to restore r after a deletion.
func (r Record) Snapshot() command.Snapshot {
	created := r.CreatedTime
	return command.Snapshot{
		ID:          r.ID,
		Fields:      maps.Clone(r.Fields),
		Version:     r.Version,
		CreatedTime: &created,
		CreatedBy:   r.CreatedBy,
	}
}

// Change is a sparse update of one record. Values are keyed by field id.
type Change struct {
	RecordID ids.RecordID
	Values   map[string]any
}

// Meta carries the system column values written with a mutation.
type Meta struct {
	Time  time.Time
	Actor ids.ActorID
}

// Repository stores records. Every method runs on ec.Tx when the context
// carries a transaction.
type Repository interface {
	// Get returns the records in request order, or NotFound naming the first
	// missing id.
	Get(ctx context.Context, ec *execctx.Context, table *field.Table, recordIDs []ids.RecordID) ([]Record, error)
	// Insert adds records. An existing id is a Conflict.
	Insert(ctx context.Context, ec *execctx.Context, table *field.Table, records []Record) error
	// Update writes every change, bumps each record's version by one and
	// stamps the last-modified columns from meta.
	Update(ctx context.Context, ec *execctx.Context, table *field.Table, changes []Change, meta Meta) error
	// Delete removes records. A missing id is NotFound.
	Delete(ctx context.Context, ec *execctx.Context, table *field.Table, recordIDs []ids.RecordID) error
	// InTx runs fn atomically. Hooks queued with AfterCommit on the context
	// passed to fn fire only when it commits.
	InTx(ctx context.Context, ec *execctx.Context, fn func(tc *execctx.Context) error) error
}

// Catalog resolves table schemas.
type Catalog interface {
	Table(ctx context.Context, id ids.TableID) (*field.Table, error)
}

// StaticCatalog is a fixed set of tables.
type StaticCatalog struct {
	tables map[ids.TableID]*field.Table
}

// NewCatalog creates a catalog over tables.
func NewCatalog(tables ...*field.Table) *StaticCatalog {
	c := &StaticCatalog{tables: make(map[ids.TableID]*field.Table, len(tables))}
	for _, t := range tables {
		c.tables[t.ID] = t
	}
	return c
}

// Table implements Catalog.
func (c *StaticCatalog) Table(_ context.Context, id ids.TableID) (*field.Table, error) {
	t, ok := c.tables[id]
	if !ok {
		return nil, errors.NotFound("table "+string(id)+" not found", nil)
	}
	return t, nil
}

// Tables returns every table of the catalog.
func (c *StaticCatalog) Tables() []*field.Table {
	out := make([]*field.Table, 0, len(c.tables))
	for _, t := range c.tables {
		out = append(out, t)
	}
	return out
}
