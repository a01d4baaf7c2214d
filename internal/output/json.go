package output

import (
	"time"

	"github.com/manav03panchal/tabula/internal/batchsql"
	"github.com/manav03panchal/tabula/internal/record"
	"github.com/manav03panchal/tabula/internal/storage"
	"github.com/manav03panchal/tabula/internal/undo"
)

// JSONFormatter provides JSON-specific formatting.
type JSONFormatter struct {
	*Formatter
}

// NewJSONFormatter creates a new JSON formatter.
func NewJSONFormatter(f *Formatter) *JSONFormatter {
	return &JSONFormatter{Formatter: f}
}

// EntryOutput represents a history entry in JSON output.
type EntryOutput struct {
	Index               int              `json:"index"`
	ID                  string           `json:"id"`
	UndoCommand         undo.CommandData `json:"undo_command"`
	RedoCommand         undo.CommandData `json:"redo_command"`
	RecordVersionBefore *int64           `json:"record_version_before,omitempty"`
	RecordVersionAfter  *int64           `json:"record_version_after,omitempty"`
	CreatedAt           string           `json:"created_at"`
	RequestID           string           `json:"request_id,omitempty"`
}

// NewEntryOutput creates an EntryOutput from an entry at 1-based index.
func NewEntryOutput(e undo.Entry, index int) *EntryOutput {
	return &EntryOutput{
		Index:               index,
		ID:                  e.ID,
		UndoCommand:         e.UndoCommand,
		RedoCommand:         e.RedoCommand,
		RecordVersionBefore: e.RecordVersionBefore,
		RecordVersionAfter:  e.RecordVersionAfter,
		CreatedAt:           e.CreatedAt.UTC().Format(time.RFC3339),
		RequestID:           e.RequestID,
	}
}

// ScopeOutput represents a history scope in JSON output.
type ScopeOutput struct {
	ActorID  string `json:"actor_id"`
	TableID  string `json:"table_id"`
	WindowID string `json:"window_id"`
}

// NewScopeOutput creates a ScopeOutput from a scope.
func NewScopeOutput(s undo.Scope) ScopeOutput {
	return ScopeOutput{ActorID: string(s.ActorID), TableID: string(s.TableID), WindowID: string(s.WindowID)}
}

// StatusResponse represents the position of a scope in JSON.
type StatusResponse struct {
	Scope   ScopeOutput `json:"scope"`
	Cursor  int         `json:"cursor"`
	Length  int         `json:"length"`
	CanUndo bool        `json:"can_undo"`
	CanRedo bool        `json:"can_redo"`
}

// NewStatusResponse creates a StatusResponse.
func NewStatusResponse(scope undo.Scope, pos undo.Position) *StatusResponse {
	return &StatusResponse{
		Scope:   NewScopeOutput(scope),
		Cursor:  pos.Cursor,
		Length:  pos.Length,
		CanUndo: pos.CanUndo(),
		CanRedo: pos.CanRedo(),
	}
}

// HistoryResponse represents a page of history in JSON.
type HistoryResponse struct {
	StatusResponse
	Entries    []*EntryOutput `json:"entries"`
	ShownCount int            `json:"shown_count"`
}

// NewHistoryResponse creates a HistoryResponse from a view whose first entry
// sits at offset.
func NewHistoryResponse(view undo.HistoryView, offset int) *HistoryResponse {
	entries := make([]*EntryOutput, len(view.Entries))
	for i, e := range view.Entries {
		entries[i] = NewEntryOutput(e, offset+i+1)
	}
	return &HistoryResponse{
		StatusResponse: *NewStatusResponse(view.Scope, view.Position),
		Entries:        entries,
		ShownCount:     len(entries),
	}
}

// OutcomeResponse represents an undo or redo result in JSON.
type OutcomeResponse struct {
	Operation string       `json:"operation"`
	Status    string       `json:"status"`
	Entry     *EntryOutput `json:"entry,omitempty"`
}

// StatementResponse represents a compiled batch in JSON.
type StatementResponse struct {
	SQL       string   `json:"sql"`
	RecordIDs []string `json:"record_ids"`
	Varying   []string `json:"varying"`
	Constant  []string `json:"constant"`
}

// NewStatementResponse creates a StatementResponse.
func NewStatementResponse(stmt *batchsql.Statement) *StatementResponse {
	return &StatementResponse{
		SQL:       stmt.SQL,
		RecordIDs: nonNil(stmt.RecordIDs),
		Varying:   nonNil(stmt.Varying),
		Constant:  nonNil(stmt.Constant),
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// RecordOutput represents a record in JSON output.
type RecordOutput struct {
	ID               string         `json:"id"`
	Version          int64          `json:"version"`
	Fields           map[string]any `json:"fields"`
	LastModifiedTime string         `json:"last_modified_time,omitempty"`
	LastModifiedBy   string         `json:"last_modified_by,omitempty"`
}

// NewRecordOutput creates a RecordOutput from a record.
func NewRecordOutput(r record.Record) *RecordOutput {
	out := &RecordOutput{
		ID:             string(r.ID),
		Version:        r.Version,
		Fields:         r.Fields,
		LastModifiedBy: r.LastModifiedBy,
	}
	if r.LastModifiedTime != nil {
		out.LastModifiedTime = r.LastModifiedTime.UTC().Format(time.RFC3339)
	}
	return out
}

// RecordsResponse represents the result of a record command in JSON.
type RecordsResponse struct {
	Records []*RecordOutput `json:"records"`
	EntryID string          `json:"entry_id,omitempty"`
}

// ErrorResponse represents an error in JSON.
type ErrorResponse struct {
	Status     string `json:"status"`
	Error      string `json:"error"`
	Kind       string `json:"kind,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// PrintStatus outputs the position of a scope in JSON format.
func (j *JSONFormatter) PrintStatus(scope undo.Scope, pos undo.Position) error {
	return j.JSON(NewStatusResponse(scope, pos))
}

// PrintHistory outputs a history page in JSON format.
func (j *JSONFormatter) PrintHistory(view undo.HistoryView, offset int) error {
	return j.JSON(NewHistoryResponse(view, offset))
}

// PrintOutcome outputs an undo or redo result in JSON format. The entry
// index is omitted since a replay does not report it.
func (j *JSONFormatter) PrintOutcome(op string, out undo.Outcome) error {
	resp := OutcomeResponse{Operation: op, Status: string(out.Status)}
	if out.Entry != nil {
		resp.Entry = NewEntryOutput(*out.Entry, 0)
	}
	return j.JSON(resp)
}

// PrintStatement outputs a compiled batch in JSON format.
func (j *JSONFormatter) PrintStatement(stmt *batchsql.Statement) error {
	return j.JSON(NewStatementResponse(stmt))
}

// PrintIntegrity outputs a history health check in JSON format.
func (j *JSONFormatter) PrintIntegrity(r *storage.IntegrityReport) error {
	return j.JSON(r)
}

// PrintRecords outputs records in JSON format.
func (j *JSONFormatter) PrintRecords(records []record.Record, entry *undo.Entry) error {
	resp := RecordsResponse{Records: make([]*RecordOutput, len(records))}
	for i, r := range records {
		resp.Records[i] = NewRecordOutput(r)
	}
	if entry != nil {
		resp.EntryID = entry.ID
	}
	return j.JSON(resp)
}

// PrintError outputs an error in JSON format.
func (j *JSONFormatter) PrintError(errMsg, kind, suggestion string) error {
	return j.JSON(ErrorResponse{
		Status:     "error",
		Error:      errMsg,
		Kind:       kind,
		Suggestion: suggestion,
	})
}
