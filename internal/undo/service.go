package undo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/manav03panchal/tabula/internal/command"
	"github.com/manav03panchal/tabula/internal/errors"
	"github.com/manav03panchal/tabula/internal/execctx"
	"github.com/manav03panchal/tabula/internal/field"
	"github.com/manav03panchal/tabula/internal/ids"
	"github.com/manav03panchal/tabula/internal/logging"
	"github.com/manav03panchal/tabula/internal/metrics"
)

// Executor runs a command. *bus.Bus satisfies it.
type Executor interface {
	Execute(ctx context.Context, ec *execctx.Context, cmd command.Command) (any, error)
}

// Reasons an entry is not recorded.
const (
	SkipReplay     = "replay"
	SkipNoWindow   = "no_window"
	SkipEmptyBatch = "empty_batch"
	SkipNoChange   = "no_change"
)

// Status of an undo or redo request.
type Status string

const (
	StatusApplied Status = "applied"
	StatusEmpty   Status = "empty"
)

// Outcome reports what an undo or redo did.
type Outcome struct {
	Status Status `json:"status"`
	Entry  *Entry `json:"entry,omitempty"`
	// Results holds the result of every replayed command.
	Results []any `json:"-"`
}

// Service records undo steps around mutations and replays them.
type Service struct {
	store   Store
	exec    Executor
	now     func() time.Time
	metrics *metrics.Metrics
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the clock used for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService creates a service over store that replays through exec.
func NewService(store Store, exec Executor, opts ...Option) *Service {
	s := &Service{store: store, exec: exec, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetExecutor replaces the executor. Handlers that record entries are
// usually registered on the bus after the service exists.
func (s *Service) SetExecutor(exec Executor) {
	s.exec = exec
}

// Store returns the underlying store.
func (s *Service) Store() Store {
	return s.store
}

// =============================================================================
// Recording
// =============================================================================

// UpdateRecordChange describes a finished record update. Value maps are
// keyed by field id.
type UpdateRecordChange struct {
	TableID             ids.TableID
	RecordID            ids.RecordID
	OldValues           map[string]any
	NewValues           map[string]any
	RecordVersionBefore *int64
	RecordVersionAfter  *int64
}

// RecordUpdateRecord records the undo step of a record update: undo writes
// OldValues back and redo writes NewValues again. An update without old
// values records nothing.
func (s *Service) RecordUpdateRecord(ctx context.Context, ec *execctx.Context, ch UpdateRecordChange) (*Entry, error) {
	if len(ch.OldValues) == 0 {
		s.metrics.EntrySkipped(SkipNoChange)
		return nil, nil
	}

	undoPayload := command.UpdateRecordPayload{
		TableID:      ch.TableID,
		RecordID:     ch.RecordID,
		Fields:       ch.OldValues,
		FieldKeyType: string(field.KeyByID),
		Typecast:     false,
	}
	redoPayload := undoPayload
	redoPayload.Fields = ch.NewValues

	// Both directions must rebuild into valid commands later.
	if _, err := command.NewUpdateRecord(undoPayload); err != nil {
		return nil, err
	}
	if _, err := command.NewUpdateRecord(redoPayload); err != nil {
		return nil, err
	}

	undoData, err := NewUpdateRecordData(undoPayload)
	if err != nil {
		return nil, err
	}
	redoData, err := NewUpdateRecordData(redoPayload)
	if err != nil {
		return nil, err
	}
	return s.RecordEntry(ctx, ec, ch.TableID, EntryInput{
		UndoCommand:         undoData,
		RedoCommand:         redoData,
		RecordVersionBefore: ch.RecordVersionBefore,
		RecordVersionAfter:  ch.RecordVersionAfter,
	})
}

// EntryInput is the caller supplied part of an Entry.
type EntryInput struct {
	UndoCommand         CommandData
	RedoCommand         CommandData
	RecordVersionBefore *int64
	RecordVersionAfter  *int64
}

// CheckScope validates the scope an entry for tableID would be recorded
// under. It returns nil when ec would record nothing.
func (s *Service) CheckScope(ec *execctx.Context, tableID ids.TableID) error {
	if ec.IsReplay() {
		return nil
	}
	window, ok := ec.ResolveWindow(nil)
	if !ok {
		return nil
	}
	return Scope{ActorID: ec.ActorID, TableID: tableID, WindowID: window}.Validate()
}

// RecordEntry appends an entry for a finished mutation on tableID. Nothing
// is recorded while replaying, without a window, or when the undo command
// is an empty batch; the returned entry is nil in those cases.
func (s *Service) RecordEntry(ctx context.Context, ec *execctx.Context, tableID ids.TableID, in EntryInput) (*Entry, error) {
	if ec.IsReplay() {
		s.metrics.EntrySkipped(SkipReplay)
		return nil, nil
	}
	window, ok := ec.ResolveWindow(nil)
	if !ok {
		s.metrics.EntrySkipped(SkipNoWindow)
		return nil, nil
	}
	if in.UndoCommand.IsEmptyBatch() {
		s.metrics.EntrySkipped(SkipEmptyBatch)
		return nil, nil
	}

	entry := Entry{
		ID:                  uuid.NewString(),
		Scope:               Scope{ActorID: ec.ActorID, TableID: tableID, WindowID: window},
		UndoCommand:         in.UndoCommand,
		RedoCommand:         in.RedoCommand,
		RecordVersionBefore: in.RecordVersionBefore,
		RecordVersionAfter:  in.RecordVersionAfter,
		CreatedAt:           s.now().UTC(),
		RequestID:           ec.RequestID,
	}
	if err := entry.Scope.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.Append(ctx, entry.Scope, entry); err != nil {
		return nil, errors.WithContext(err, "append undo entry")
	}
	s.metrics.EntryRecorded()
	logging.DebugContext(ctx, "undo entry recorded",
		logging.KeyActor, entry.Scope.ActorID,
		logging.KeyTable, entry.Scope.TableID,
		logging.KeyWindow, entry.Scope.WindowID,
		logging.KeyOperation, entry.RedoCommand.Type)
	return &entry, nil
}

// =============================================================================
// Replay
// =============================================================================

// Undo steps back one entry in the scope and replays its undo command.
// windowID, when set, overrides the window of ec.
func (s *Service) Undo(ctx context.Context, ec *execctx.Context, tableID ids.TableID, windowID *ids.WindowID) (Outcome, error) {
	return s.step(ctx, ec, tableID, windowID, execctx.ModeUndo)
}

// Redo re-applies the entry at the cursor of the scope.
func (s *Service) Redo(ctx context.Context, ec *execctx.Context, tableID ids.TableID, windowID *ids.WindowID) (Outcome, error) {
	return s.step(ctx, ec, tableID, windowID, execctx.ModeRedo)
}

func (s *Service) step(ctx context.Context, ec *execctx.Context, tableID ids.TableID, windowID *ids.WindowID, mode execctx.Mode) (out Outcome, err error) {
	op := string(mode)
	ctx, span := ec.StartSpan(ctx, "tabula.undo."+op,
		trace.WithAttributes(
			attribute.String("tabula.table_id", string(tableID)),
			attribute.String("tabula.actor_id", string(ec.ActorID)),
		))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.metrics.ObserveUndo(op, "error")
		} else {
			span.SetAttributes(attribute.String("tabula.outcome", string(out.Status)))
			s.metrics.ObserveUndo(op, string(out.Status))
		}
		span.End()
	}()

	scope, err := s.resolveScope(ec, tableID, windowID)
	if err != nil {
		return Outcome{}, err
	}

	var entry *Entry
	if mode == execctx.ModeUndo {
		entry, err = s.store.Undo(ctx, scope)
	} else {
		entry, err = s.store.Redo(ctx, scope)
	}
	if err != nil {
		return Outcome{}, err
	}
	if entry == nil {
		return Outcome{Status: StatusEmpty}, nil
	}

	data := entry.UndoCommand
	if mode == execctx.ModeRedo {
		data = entry.RedoCommand
	}
	replayCtx := ec.WithMode(mode).WithWindow(scope.WindowID)
	results, err := s.replay(ctx, replayCtx, data)
	if err != nil {
		s.rewind(ctx, scope, mode)
		return Outcome{}, err
	}

	logging.InfoContext(ctx, "history step applied",
		logging.KeyMode, mode,
		logging.KeyActor, scope.ActorID,
		logging.KeyTable, scope.TableID,
		logging.KeyWindow, scope.WindowID,
		logging.KeyOperation, data.Type)
	return Outcome{Status: StatusApplied, Entry: entry, Results: results}, nil
}

// replay rebuilds every command of data before running any of them, then
// runs them in order and stops at the first failure.
func (s *Service) replay(ctx context.Context, ec *execctx.Context, data CommandData) ([]any, error) {
	if s.exec == nil {
		return nil, errors.Internal("undo service has no executor", nil)
	}
	cmds, err := data.Commands()
	if err != nil {
		return nil, err
	}
	results := make([]any, 0, len(cmds))
	for _, cmd := range cmds {
		res, err := s.exec.Execute(ctx, ec, cmd)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}

// rewind moves the cursor back over a step whose replay failed, so the
// history keeps pointing at what the data actually looks like.
func (s *Service) rewind(ctx context.Context, scope Scope, mode execctx.Mode) {
	var err error
	if mode == execctx.ModeUndo {
		_, err = s.store.Redo(ctx, scope)
	} else {
		_, err = s.store.Undo(ctx, scope)
	}
	if err != nil {
		logging.WarnContext(ctx, "failed to rewind history cursor",
			logging.KeyMode, mode,
			logging.KeyTable, scope.TableID,
			logging.KeyError, err)
	}
}

// =============================================================================
// Inspection
// =============================================================================

// HistoryView is a page of a scope's log with its position.
type HistoryView struct {
	Scope    Scope    `json:"scope"`
	Position Position `json:"position"`
	Entries  []Entry  `json:"entries"`
}

// History pages through the log of a scope.
func (s *Service) History(ctx context.Context, ec *execctx.Context, tableID ids.TableID, windowID *ids.WindowID, page Page) (HistoryView, error) {
	scope, err := s.resolveScope(ec, tableID, windowID)
	if err != nil {
		return HistoryView{}, err
	}
	pos, err := s.store.Cursor(ctx, scope)
	if err != nil {
		return HistoryView{}, err
	}
	entries, err := s.store.List(ctx, scope, page)
	if err != nil {
		return HistoryView{}, err
	}
	return HistoryView{Scope: scope, Position: pos, Entries: entries}, nil
}

// Position returns the cursor of a scope.
func (s *Service) Position(ctx context.Context, ec *execctx.Context, tableID ids.TableID, windowID *ids.WindowID) (Position, error) {
	scope, err := s.resolveScope(ec, tableID, windowID)
	if err != nil {
		return Position{}, err
	}
	return s.store.Cursor(ctx, scope)
}

func (s *Service) resolveScope(ec *execctx.Context, tableID ids.TableID, windowID *ids.WindowID) (Scope, error) {
	window, ok := ec.ResolveWindow(windowID)
	if !ok {
		return Scope{}, errors.ValidationField("windowId", "windowId is required for undo/redo", errors.ErrMissingWindow)
	}
	scope := Scope{ActorID: ec.ActorID, TableID: tableID, WindowID: window}
	if err := scope.Validate(); err != nil {
		return Scope{}, err
	}
	return scope, nil
}
