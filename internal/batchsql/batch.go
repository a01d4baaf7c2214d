// Package batchsql compiles a sparse, column-oriented set of record updates
// into a single PostgreSQL UPDATE statement. Every value goes through
// sqllit, so the statement text is safe to execute as is.
package batchsql

import (
	"fmt"
	"sort"
	"strings"

	"github.com/manav03panchal/tabula/internal/errors"
	"github.com/manav03panchal/tabula/internal/field"
	"github.com/manav03panchal/tabula/internal/sqllit"
)

// System column names of every record table.
const (
	ColID               = "__id"
	ColVersion          = "__version"
	ColLastModifiedTime = "__last_modified_time"
	ColLastModifiedBy   = "__last_modified_by"
	ColCreatedTime      = "__created_time"
	ColCreatedBy        = "__created_by"

	// RowColumnPrefix marks internal ordering pseudo-columns that have no field.
	RowColumnPrefix = "__row_"

	targetAlias = "t"
	valuesAlias = "v"
)

// Cell is one value of one column for one record.
type Cell struct {
	RecordID string `json:"recordId"`
	Value    any    `json:"value"`
}

// SystemColumns are written on every updated record.
type SystemColumns struct {
	// LastModifiedTime is an ISO 8601 timestamp; empty renders NULL.
	LastModifiedTime string `json:"lastModifiedTime"`
	// LastModifiedBy is the actor id; empty renders NULL.
	LastModifiedBy   string `json:"lastModifiedBy"`
	VersionIncrement bool   `json:"versionIncrement"`
}

// Input describes one batch.
type Input struct {
	// Table is the schema-qualified physical table name.
	Table string `json:"table"`
	// Columns maps a column name to the cells written to it. Records may
	// touch disjoint column subsets.
	Columns map[string][]Cell `json:"columns"`
	System  SystemColumns     `json:"system"`
	// Fields resolves column names to field metadata.
	Fields []*field.Field `json:"fields"`
}

// Statement is a compiled batch.
type Statement struct {
	SQL       string
	RecordIDs []string
	// Varying lists columns that received at least one non-null value.
	Varying []string
	// Constant lists columns that are NULL for every targeted record.
	Constant []string
}

// column is one resolved input column.
type column struct {
	name   string
	field  *field.Field // nil for __row_* pseudo-columns
	values map[string]any
}

// Build compiles in into one UPDATE statement. It returns an error, and no
// statement at all, for an empty column map, an empty record set or a
// column with no matching field.
func Build(in Input) (*Statement, error) {
	if len(in.Columns) == 0 {
		return nil, &errors.DomainError{Kind: errors.KindValidation, Message: errors.ErrNoColumns.Error(), Cause: errors.ErrNoColumns}
	}

	byDBName := make(map[string]*field.Field, len(in.Fields))
	for _, f := range in.Fields {
		byDBName[f.DBFieldName] = f
	}

	names := make([]string, 0, len(in.Columns))
	for name := range in.Columns {
		names = append(names, name)
	}
	sort.Strings(names)

	var (
		recordIDs []string
		seen      = make(map[string]struct{})
		varying   []*column
		constant  []*column
	)
	for _, name := range names {
		f, ok := byDBName[name]
		if !ok && !strings.HasPrefix(name, RowColumnPrefix) {
			return nil, errors.NotFound(fmt.Sprintf("No field found for column %s", name), errors.ErrFieldNotFound)
		}
		col := &column{name: name, field: f, values: make(map[string]any, len(in.Columns[name]))}
		nonNull := false
		for _, cell := range in.Columns[name] {
			if cell.RecordID == "" {
				return nil, errors.ValidationField(name, "cell without record id", nil)
			}
			if _, dup := seen[cell.RecordID]; !dup {
				seen[cell.RecordID] = struct{}{}
				recordIDs = append(recordIDs, cell.RecordID)
			}
			col.values[cell.RecordID] = cell.Value
			if cell.Value != nil {
				nonNull = true
			}
		}
		if nonNull {
			varying = append(varying, col)
		} else {
			constant = append(constant, col)
		}
	}
	if len(recordIDs) == 0 {
		return nil, &errors.DomainError{Kind: errors.KindValidation, Message: errors.ErrNoRecords.Error(), Cause: errors.ErrNoRecords}
	}

	stmt := &Statement{RecordIDs: recordIDs}
	for _, c := range varying {
		stmt.Varying = append(stmt.Varying, c.name)
	}
	for _, c := range constant {
		stmt.Constant = append(stmt.Constant, c.name)
	}

	table := sqllit.QuoteQualified(in.Table)
	if len(varying) == 0 {
		stmt.SQL = buildConstant(table, constant, in.System, recordIDs)
		return stmt, nil
	}
	stmt.SQL = buildValues(table, varying, constant, in.System, recordIDs)
	return stmt, nil
}

// buildConstant emits the flat form used when no column carries a value.
func buildConstant(table string, constant []*column, sys SystemColumns, recordIDs []string) string {
	sets := make([]string, 0, len(constant)+3)
	for _, c := range constant {
		sets = append(sets, sqllit.QuoteIdent(c.name)+" = NULL")
	}
	sets = append(sets,
		sqllit.QuoteIdent(ColLastModifiedTime)+" = "+timeLiteral(sys),
		sqllit.QuoteIdent(ColLastModifiedBy)+" = "+byLiteral(sys),
	)
	if sys.VersionIncrement {
		v := sqllit.QuoteIdent(ColVersion)
		sets = append(sets, v+" = "+v+" + 1")
	}

	quoted := make([]string, len(recordIDs))
	for i, id := range recordIDs {
		quoted[i] = sqllit.Quote(id)
	}

	var b strings.Builder
	b.WriteString("UPDATE ")
	b.WriteString(table)
	b.WriteString(" SET ")
	b.WriteString(strings.Join(sets, ", "))
	b.WriteString(" WHERE ")
	b.WriteString(sqllit.QuoteIdent(ColID))
	b.WriteString(" = ANY(ARRAY[")
	b.WriteString(strings.Join(quoted, ","))
	b.WriteString("])")
	return b.String()
}

// buildValues emits the UPDATE ... FROM (VALUES ...) join form.
func buildValues(table string, varying, constant []*column, sys SystemColumns, recordIDs []string) string {
	ref := func(alias, name string) string { return alias + "." + sqllit.QuoteIdent(name) }

	sets := make([]string, 0, len(varying)+len(constant)+3)
	for _, c := range varying {
		sets = append(sets, sqllit.QuoteIdent(c.name)+" = "+ref(valuesAlias, c.name))
	}
	sets = append(sets,
		sqllit.QuoteIdent(ColLastModifiedTime)+" = "+ref(valuesAlias, ColLastModifiedTime),
		sqllit.QuoteIdent(ColLastModifiedBy)+" = "+ref(valuesAlias, ColLastModifiedBy),
	)
	if sys.VersionIncrement {
		sets = append(sets, sqllit.QuoteIdent(ColVersion)+" = "+ref(targetAlias, ColVersion)+" + 1")
	}
	for _, c := range constant {
		sets = append(sets, sqllit.QuoteIdent(c.name)+" = NULL")
	}

	ts, by := timeLiteral(sys), byLiteral(sys)
	rows := make([]string, len(recordIDs))
	for i, id := range recordIDs {
		vals := make([]string, 0, len(varying)+3)
		vals = append(vals, sqllit.Quote(id))
		for _, c := range varying {
			vals = append(vals, cellLiteral(c, c.values[id]))
		}
		vals = append(vals, ts, by)
		rows[i] = "(" + strings.Join(vals, ",") + ")"
	}

	cols := make([]string, 0, len(varying)+3)
	cols = append(cols, sqllit.QuoteIdent(ColID))
	for _, c := range varying {
		cols = append(cols, sqllit.QuoteIdent(c.name))
	}
	cols = append(cols, sqllit.QuoteIdent(ColLastModifiedTime), sqllit.QuoteIdent(ColLastModifiedBy))

	var b strings.Builder
	b.WriteString("UPDATE ")
	b.WriteString(table)
	b.WriteString(" AS " + targetAlias + " SET ")
	b.WriteString(strings.Join(sets, ", "))
	b.WriteString(" FROM (VALUES ")
	b.WriteString(strings.Join(rows, ", "))
	b.WriteString(") AS " + valuesAlias + "(")
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString(") WHERE ")
	b.WriteString(ref(targetAlias, ColID))
	b.WriteString(" = ")
	b.WriteString(ref(valuesAlias, ColID))
	return b.String()
}

// cellLiteral renders one VALUES cell. Absent cells render as the column's
// typed NULL.
func cellLiteral(c *column, value any) string {
	if c.field == nil {
		if value == nil {
			return sqllit.NullDouble
		}
		n, err := sqllit.FormatNumber(value)
		if err != nil {
			return sqllit.Fallback(value)
		}
		return n + sqllit.CastDouble
	}
	lit, err := sqllit.Render(c.field, value)
	if err != nil {
		return sqllit.Fallback(value)
	}
	return lit
}

func timeLiteral(sys SystemColumns) string {
	if sys.LastModifiedTime == "" {
		return sqllit.NullTimestamptz
	}
	return sqllit.Quote(sys.LastModifiedTime) + sqllit.CastTimestamptz
}

func byLiteral(sys SystemColumns) string {
	if sys.LastModifiedBy == "" {
		return sqllit.Null
	}
	return sqllit.Quote(sys.LastModifiedBy)
}
