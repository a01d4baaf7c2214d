// Package undo keeps a linear undo/redo history per (actor, table, window)
// scope and replays recorded steps through the command bus.
package undo

import (
	"time"

	"github.com/manav03panchal/tabula/internal/errors"
	"github.com/manav03panchal/tabula/internal/ids"
)

// Scope owns one history. Distinct windows of the same user get
// independent stacks.
type Scope struct {
	ActorID  ids.ActorID  `json:"actorId"`
	TableID  ids.TableID  `json:"tableId"`
	WindowID ids.WindowID `json:"windowId"`
}

// Key is the stable identity of the scope, usable as a map or storage key.
func (s Scope) Key() string {
	return string(s.ActorID) + ":" + string(s.TableID) + ":" + string(s.WindowID)
}

// Validate checks every id of the scope.
func (s Scope) Validate() error {
	if _, err := ids.ParseActorID(string(s.ActorID)); err != nil {
		return err
	}
	if _, err := ids.ParseTableID(string(s.TableID)); err != nil {
		return err
	}
	if _, err := ids.ParseWindowID(string(s.WindowID)); err != nil {
		return err
	}
	return nil
}

// Entry is one undoable step. It is immutable once appended.
type Entry struct {
	ID                  string      `json:"id"`
	Scope               Scope       `json:"scope"`
	UndoCommand         CommandData `json:"undoCommand"`
	RedoCommand         CommandData `json:"redoCommand"`
	RecordVersionBefore *int64      `json:"recordVersionBefore,omitempty"`
	RecordVersionAfter  *int64      `json:"recordVersionAfter,omitempty"`
	CreatedAt           time.Time   `json:"createdAt"`
	RequestID           string      `json:"requestId,omitempty"`
}

// Clone returns a deep copy of e.
func (e Entry) Clone() Entry {
	e.UndoCommand = e.UndoCommand.clone()
	e.RedoCommand = e.RedoCommand.clone()
	e.RecordVersionBefore = cloneVersion(e.RecordVersionBefore)
	e.RecordVersionAfter = cloneVersion(e.RecordVersionAfter)
	return e
}

func cloneVersion(v *int64) *int64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// Page selects a window of the full log. Limit 0 returns everything from
// Offset on.
type Page struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// Validate rejects negative bounds.
func (p Page) Validate() error {
	if p.Offset < 0 {
		return errors.ValidationField("offset", "offset cannot be negative", nil)
	}
	if p.Limit < 0 {
		return errors.ValidationField("limit", "limit cannot be negative", nil)
	}
	return nil
}

// Bounds returns the slice bounds of p over a log of length n.
func (p Page) Bounds(n int) (from, to int) {
	from = min(p.Offset, n)
	to = n
	if p.Limit > 0 {
		to = min(from+p.Limit, n)
	}
	return from, to
}

// Position is the cursor of a scope and the length of its log.
type Position struct {
	Cursor int `json:"cursor"`
	Length int `json:"length"`
}

// CanUndo reports whether an undo would apply an entry.
func (p Position) CanUndo() bool { return p.Cursor > 0 }

// CanRedo reports whether a redo would apply an entry.
func (p Position) CanRedo() bool { return p.Cursor < p.Length }
