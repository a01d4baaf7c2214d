package undo

import (
	"context"
	"sync"
)

// Store persists histories. Operations on one scope observe a single total
// order; different scopes never block each other.
type Store interface {
	// Append truncates the redo tail, pushes e and moves the cursor to the end.
	Append(ctx context.Context, scope Scope, e Entry) error
	// Undo steps the cursor back and returns the entry it passed, or nil at
	// the start of the log.
	Undo(ctx context.Context, scope Scope) (*Entry, error)
	// Redo returns the entry at the cursor and steps past it, or nil at the
	// end of the log.
	Redo(ctx context.Context, scope Scope) (*Entry, error)
	// List pages through the whole log regardless of the cursor.
	List(ctx context.Context, scope Scope, page Page) ([]Entry, error)
	// Cursor returns the position of the scope.
	Cursor(ctx context.Context, scope Scope) (Position, error)
}

// MemoryStore keeps histories in process memory. Histories are created on
// first use.
type MemoryStore struct {
	mu     sync.Mutex
	scopes map[string]*history
}

type history struct {
	mu      sync.Mutex
	entries []Entry
	cursor  int
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{scopes: make(map[string]*history)}
}

func (s *MemoryStore) history(scope Scope) *history {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.scopes[scope.Key()]
	if !ok {
		h = &history{}
		s.scopes[scope.Key()] = h
	}
	return h
}

// Append implements Store.
func (s *MemoryStore) Append(_ context.Context, scope Scope, e Entry) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	h := s.history(scope)
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cursor < len(h.entries) {
		clear(h.entries[h.cursor:])
		h.entries = h.entries[:h.cursor]
	}
	h.entries = append(h.entries, e.Clone())
	h.cursor = len(h.entries)
	return nil
}

// Undo implements Store.
func (s *MemoryStore) Undo(_ context.Context, scope Scope) (*Entry, error) {
	h := s.history(scope)
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cursor == 0 {
		return nil, nil
	}
	h.cursor--
	e := h.entries[h.cursor].Clone()
	return &e, nil
}

// Redo implements Store.
func (s *MemoryStore) Redo(_ context.Context, scope Scope) (*Entry, error) {
	h := s.history(scope)
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cursor == len(h.entries) {
		return nil, nil
	}
	e := h.entries[h.cursor].Clone()
	h.cursor++
	return &e, nil
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context, scope Scope, page Page) ([]Entry, error) {
	if err := page.Validate(); err != nil {
		return nil, err
	}
	h := s.history(scope)
	h.mu.Lock()
	defer h.mu.Unlock()

	from, to := page.Bounds(len(h.entries))
	out := make([]Entry, 0, to-from)
	for _, e := range h.entries[from:to] {
		out = append(out, e.Clone())
	}
	return out, nil
}

// Cursor implements Store.
func (s *MemoryStore) Cursor(_ context.Context, scope Scope) (Position, error) {
	h := s.history(scope)
	h.mu.Lock()
	defer h.mu.Unlock()
	return Position{Cursor: h.cursor, Length: len(h.entries)}, nil
}
