// Package pgstore stores records in PostgreSQL through gorm. Updates are
// compiled by batchsql; every statement is fully rendered SQL text.
package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/manav03panchal/tabula/internal/batchsql"
	"github.com/manav03panchal/tabula/internal/errors"
	"github.com/manav03panchal/tabula/internal/execctx"
	"github.com/manav03panchal/tabula/internal/field"
	"github.com/manav03panchal/tabula/internal/ids"
	"github.com/manav03panchal/tabula/internal/logging"
	"github.com/manav03panchal/tabula/internal/record"
	"github.com/manav03panchal/tabula/internal/sqllit"
)

// Store implements record.Repository on PostgreSQL.
type Store struct {
	db *gorm.DB
}

var _ record.Repository = (*Store)(nil)

// Open connects to the database at dsn.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database %s: %w", logging.MaskDSN(dsn), err)
	}
	logging.DebugContext(ctx, "connected to postgres", "dsn", logging.MaskDSN(dsn))
	return New(db), nil
}

// OpenConn wraps an existing connection pool.
func OpenConn(conn *sql.DB) (*Store, error) {
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: conn}), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
		DisableAutomaticPing:   true,
	})
	if err != nil {
		return nil, err
	}
	return New(db), nil
}

// New creates a store over db.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying gorm handle.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Close closes the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// conn returns the transaction of ec when there is one.
func (s *Store) conn(ctx context.Context, ec *execctx.Context) *gorm.DB {
	if ec != nil && ec.Tx != nil {
		return ec.Tx.WithContext(ctx)
	}
	return s.db.WithContext(ctx)
}

// InTx implements record.Repository. A context that already carries a
// transaction joins it.
func (s *Store) InTx(ctx context.Context, ec *execctx.Context, fn func(tc *execctx.Context) error) error {
	if ec.Tx != nil {
		return fn(ec)
	}
	return ec.Transaction(ctx, s.db, fn)
}

func idList(recordIDs []ids.RecordID) string {
	quoted := make([]string, len(recordIDs))
	for i, id := range recordIDs {
		quoted[i] = sqllit.Quote(string(id))
	}
	return "ARRAY[" + strings.Join(quoted, ",") + "]"
}

// =============================================================================
// Reads
// =============================================================================

// SelectSQL returns the statement Get runs.
func SelectSQL(table *field.Table, recordIDs []ids.RecordID) string {
	return fmt.Sprintf("SELECT * FROM %s WHERE %s = ANY(%s)",
		sqllit.QuoteQualified(table.DBTableName), sqllit.QuoteIdent(batchsql.ColID), idList(recordIDs))
}

// Get implements record.Repository.
func (s *Store) Get(ctx context.Context, ec *execctx.Context, table *field.Table, recordIDs []ids.RecordID) ([]record.Record, error) {
	if len(recordIDs) == 0 {
		return nil, nil
	}
	rows, err := s.conn(ctx, ec).Raw(SelectSQL(table, recordIDs)).Rows()
	if err != nil {
		return nil, errors.WithContextf(err, "select from %s", table.DBTableName)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	found := make(map[ids.RecordID]record.Record, len(recordIDs))
	for rows.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		rec, err := decodeRow(table, cols, raw)
		if err != nil {
			return nil, err
		}
		found[rec.ID] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]record.Record, 0, len(recordIDs))
	for _, id := range recordIDs {
		rec, ok := found[id]
		if !ok {
			return nil, errors.NotFound("record "+string(id)+" not found", errors.ErrRecordNotFound)
		}
		out = append(out, rec)
	}
	return out, nil
}

func decodeRow(table *field.Table, cols []string, raw []any) (record.Record, error) {
	rec := record.Record{Fields: map[string]any{}}
	for i, col := range cols {
		v := raw[i]
		switch col {
		case batchsql.ColID:
			rec.ID = ids.RecordID(asString(v))
		case batchsql.ColVersion:
			n, err := asInt(v)
			if err != nil {
				return rec, err
			}
			rec.Version = n
		case batchsql.ColCreatedTime:
			if t, ok := v.(time.Time); ok {
				rec.CreatedTime = t.UTC()
			}
		case batchsql.ColCreatedBy:
			rec.CreatedBy = asString(v)
		case batchsql.ColLastModifiedTime:
			if t, ok := v.(time.Time); ok {
				t = t.UTC()
				rec.LastModifiedTime = &t
			}
		case batchsql.ColLastModifiedBy:
			rec.LastModifiedBy = asString(v)
		default:
			f, ok := table.FieldByDBName(col)
			if !ok {
				continue
			}
			cell, err := decodeCell(f, v)
			if err != nil {
				return rec, errors.WithContextf(err, "column %s", col)
			}
			rec.Fields[string(f.ID)] = cell
		}
	}
	return rec, nil
}

func decodeCell(f *field.Field, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch f.Kind.CellValueType() {
	case field.CellNumber:
		switch n := v.(type) {
		case float64:
			return n, nil
		case int64:
			return float64(n), nil
		case []byte:
			var x float64
			_, err := fmt.Sscan(string(n), &x)
			return x, err
		}
	case field.CellBoolean:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case field.CellDateTime:
		if t, ok := v.(time.Time); ok {
			return t.UTC().Format(sqllit.TimestampLayout), nil
		}
		return asString(v), nil
	case field.CellJSON:
		var out any
		data := []byte(asString(v))
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, err
		}
		return out, nil
	default:
		return asString(v), nil
	}
	return nil, fmt.Errorf("unexpected %T for %s field", v, f.Kind)
}

func asString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	}
	return fmt.Sprint(v)
}

func asInt(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case nil:
		return 0, nil
	}
	return 0, fmt.Errorf("unexpected %T for %s", v, batchsql.ColVersion)
}

// =============================================================================
// Writes
// =============================================================================

// InsertSQL renders one INSERT for records. Computed fields are skipped.
func InsertSQL(table *field.Table, records []record.Record) (string, error) {
	if len(records) == 0 {
		return "", errors.Wrap(errors.ErrNoRecords, "insert")
	}
	var fields []*field.Field
	seen := map[string]bool{}
	for _, rec := range records {
		for id := range rec.Fields {
			f, ok := table.FieldByID(ids.FieldID(id))
			if !ok {
				return "", errors.NotFound("field '"+id+"' not found in table "+string(table.ID), errors.ErrFieldNotFound)
			}
			if f.IsComputed() || seen[id] {
				continue
			}
			seen[id] = true
			fields = append(fields, f)
		}
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].DBFieldName < fields[j].DBFieldName })

	cols := []string{batchsql.ColID, batchsql.ColVersion, batchsql.ColCreatedTime, batchsql.ColCreatedBy}
	for _, f := range fields {
		cols = append(cols, f.DBFieldName)
	}
	quotedCols := make([]string, len(cols))
	for i, c := range cols {
		quotedCols[i] = sqllit.QuoteIdent(c)
	}

	rows := make([]string, 0, len(records))
	for _, rec := range records {
		vals := []string{
			sqllit.Quote(string(rec.ID)),
			fmt.Sprintf("%d", rec.Version),
			sqllit.Quote(rec.CreatedTime.UTC().Format(sqllit.TimestampLayout)) + sqllit.CastTimestamptz,
			sqllit.Quote(rec.CreatedBy),
		}
		for _, f := range fields {
			lit, err := sqllit.Render(f, rec.Fields[string(f.ID)])
			if err != nil {
				return "", err
			}
			vals = append(vals, lit)
		}
		rows = append(rows, "("+strings.Join(vals, ", ")+")")
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
		sqllit.QuoteQualified(table.DBTableName), strings.Join(quotedCols, ", "), strings.Join(rows, ", ")), nil
}

// Insert implements record.Repository.
func (s *Store) Insert(ctx context.Context, ec *execctx.Context, table *field.Table, records []record.Record) error {
	stmt, err := InsertSQL(table, records)
	if err != nil {
		return err
	}
	if err := s.conn(ctx, ec).Exec(stmt).Error; err != nil {
		if isUniqueViolation(err) {
			return errors.Conflict("record already exists in "+table.DBTableName, err)
		}
		return errors.WithContextf(err, "insert into %s", table.DBTableName)
	}
	return nil
}

// UpdateStatement compiles changes into one batch UPDATE. Values are keyed by
// field id.
func UpdateStatement(table *field.Table, changes []record.Change, meta record.Meta) (*batchsql.Statement, error) {
	updates := make([]batchsql.RecordUpdate, 0, len(changes))
	for _, ch := range changes {
		values := make(map[string]any, len(ch.Values))
		for id, v := range ch.Values {
			f, ok := table.FieldByID(ids.FieldID(id))
			if !ok {
				return nil, errors.NotFound("field '"+id+"' not found in table "+string(table.ID), errors.ErrFieldNotFound)
			}
			values[f.DBFieldName] = v
		}
		updates = append(updates, batchsql.RecordUpdate{RecordID: string(ch.RecordID), Values: values})
	}
	system := batchsql.SystemColumns{
		LastModifiedBy:   string(meta.Actor),
		VersionIncrement: true,
	}
	if !meta.Time.IsZero() {
		system.LastModifiedTime = meta.Time.UTC().Format(sqllit.TimestampLayout)
	}
	return batchsql.Build(batchsql.Input{
		Table:   table.DBTableName,
		Columns: batchsql.Pivot(updates),
		System:  system,
		Fields:  table.Fields(),
	})
}

// Update implements record.Repository. All changes go out as one statement.
func (s *Store) Update(ctx context.Context, ec *execctx.Context, table *field.Table, changes []record.Change, meta record.Meta) error {
	stmt, err := UpdateStatement(table, changes, meta)
	if err != nil {
		return err
	}
	res := s.conn(ctx, ec).Exec(stmt.SQL)
	if res.Error != nil {
		return errors.WithContextf(res.Error, "update %s", table.DBTableName)
	}
	if int(res.RowsAffected) != len(stmt.RecordIDs) {
		return errors.NotFound(fmt.Sprintf("updated %d of %d records in %s",
			res.RowsAffected, len(stmt.RecordIDs), table.DBTableName), errors.ErrRecordNotFound)
	}
	logging.DebugContext(ctx, "records updated",
		logging.KeyTable, table.ID,
		logging.KeyCount, len(stmt.RecordIDs))
	return nil
}

// DeleteSQL returns the statement Delete runs.
func DeleteSQL(table *field.Table, recordIDs []ids.RecordID) string {
	return fmt.Sprintf("DELETE FROM %s WHERE %s = ANY(%s)",
		sqllit.QuoteQualified(table.DBTableName), sqllit.QuoteIdent(batchsql.ColID), idList(recordIDs))
}

// Delete implements record.Repository.
func (s *Store) Delete(ctx context.Context, ec *execctx.Context, table *field.Table, recordIDs []ids.RecordID) error {
	if len(recordIDs) == 0 {
		return nil
	}
	res := s.conn(ctx, ec).Exec(DeleteSQL(table, recordIDs))
	if res.Error != nil {
		return errors.WithContextf(res.Error, "delete from %s", table.DBTableName)
	}
	if int(res.RowsAffected) != len(recordIDs) {
		return errors.NotFound(fmt.Sprintf("deleted %d of %d records in %s",
			res.RowsAffected, len(recordIDs), table.DBTableName), errors.ErrRecordNotFound)
	}
	return nil
}

// isUniqueViolation matches SQLSTATE 23505 without importing the driver's
// error type.
func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "23505") || strings.Contains(err.Error(), "duplicate key")
}
