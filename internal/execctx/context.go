// Package execctx carries the per-request ambient data of a mutation: who
// is acting, which transaction and window it runs in, and whether it is a
// replay from the undo history.
package execctx

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"gorm.io/gorm"

	"github.com/manav03panchal/tabula/internal/errors"
	"github.com/manav03panchal/tabula/internal/ids"
)

// Mode tells handlers whether a command is a fresh user action or a replay.
type Mode string

const (
	ModeNormal Mode = "normal"
	ModeUndo   Mode = "undo"
	ModeRedo   Mode = "redo"
)

// String returns the string representation of the mode.
func (m Mode) String() string {
	if m == "" {
		return string(ModeNormal)
	}
	return string(m)
}

// UndoRedo holds the replay state of a request.
type UndoRedo struct {
	Mode Mode
}

// Context is the execution context threaded through the bus.
type Context struct {
	ActorID ids.ActorID
	// Tx is the open transaction, if any. Side effects that must only happen
	// once the data is durable are queued with AfterCommit.
	Tx        *gorm.DB
	Tracer    trace.Tracer
	RequestID string
	WindowID  *ids.WindowID
	UndoRedo  UndoRedo

	hooks *hookQueue
}

type hookQueue struct {
	mu  sync.Mutex
	fns []func(context.Context)
}

// New creates a context for actor in normal mode with a fresh request id.
func New(actor ids.ActorID) *Context {
	return &Context{
		ActorID:   actor,
		RequestID: NewRequestID(),
		UndoRedo:  UndoRedo{Mode: ModeNormal},
		hooks:     &hookQueue{},
	}
}

// NewRequestID returns a fresh request id.
func NewRequestID() string {
	return uuid.NewString()
}

// Validate checks that the context names a well formed actor and, when a
// window is set, a well formed window.
func (c *Context) Validate() error {
	if c == nil {
		return errors.Validation("execution context is required")
	}
	if _, err := ids.ParseActorID(string(c.ActorID)); err != nil {
		return err
	}
	if c.WindowID != nil && *c.WindowID != "" {
		if _, err := ids.ParseWindowID(string(*c.WindowID)); err != nil {
			return err
		}
	}
	return nil
}

// Mode returns the replay mode, defaulting to ModeNormal.
func (c *Context) Mode() Mode {
	if c.UndoRedo.Mode == "" {
		return ModeNormal
	}
	return c.UndoRedo.Mode
}

// IsReplay reports whether the request replays an undo or redo command.
func (c *Context) IsReplay() bool {
	m := c.Mode()
	return m == ModeUndo || m == ModeRedo
}

// WithMode returns a copy of c in mode m. The copy shares the after-commit
// queue with c.
func (c *Context) WithMode(m Mode) *Context {
	cp := *c
	cp.UndoRedo = UndoRedo{Mode: m}
	if cp.hooks == nil {
		c.hooks = &hookQueue{}
		cp.hooks = c.hooks
	}
	return &cp
}

// WithWindow returns a copy of c bound to window w.
func (c *Context) WithWindow(w ids.WindowID) *Context {
	cp := *c
	cp.WindowID = &w
	return &cp
}

// WithTx returns a copy of c bound to transaction tx.
func (c *Context) WithTx(tx *gorm.DB) *Context {
	cp := *c
	cp.Tx = tx
	return &cp
}

// ResolveWindow picks the window for an undo scope. An explicit window wins
// over the one on the context. It returns false when neither is set.
func (c *Context) ResolveWindow(explicit *ids.WindowID) (ids.WindowID, bool) {
	if explicit != nil && *explicit != "" {
		return *explicit, true
	}
	if c.WindowID != nil && *c.WindowID != "" {
		return *c.WindowID, true
	}
	return "", false
}

// StartSpan starts a span on the context tracer, or a no-op span when the
// request carries no tracer.
func (c *Context) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	tracer := c.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("tabula")
	}
	return tracer.Start(ctx, name, opts...)
}

// AfterCommit runs fn once the transaction commits. Without a transaction fn
// runs immediately.
func (c *Context) AfterCommit(ctx context.Context, fn func(context.Context)) {
	if c.Tx == nil {
		fn(ctx)
		return
	}
	if c.hooks == nil {
		c.hooks = &hookQueue{}
	}
	c.hooks.mu.Lock()
	c.hooks.fns = append(c.hooks.fns, fn)
	c.hooks.mu.Unlock()
}

// Pending returns the number of queued after-commit hooks.
func (c *Context) Pending() int {
	if c.hooks == nil {
		return 0
	}
	c.hooks.mu.Lock()
	defer c.hooks.mu.Unlock()
	return len(c.hooks.fns)
}

// RunAfterCommit drains the queue in registration order. Call it after the
// transaction commits.
func (c *Context) RunAfterCommit(ctx context.Context) {
	if c.hooks == nil {
		return
	}
	c.hooks.mu.Lock()
	fns := c.hooks.fns
	c.hooks.fns = nil
	c.hooks.mu.Unlock()
	for _, fn := range fns {
		fn(ctx)
	}
}

// DiscardAfterCommit drops queued hooks. Call it after a rollback.
func (c *Context) DiscardAfterCommit() {
	if c.hooks == nil {
		return
	}
	c.hooks.mu.Lock()
	c.hooks.fns = nil
	c.hooks.mu.Unlock()
}

// Transaction runs fn inside a gorm transaction bound to a copy of c and
// fires queued hooks only when it commits.
func (c *Context) Transaction(ctx context.Context, db *gorm.DB, fn func(tc *Context) error) error {
	tc := c.WithTx(nil)
	if tc.hooks == nil || tc.hooks == c.hooks {
		tc.hooks = &hookQueue{}
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tc.Tx = tx
		return fn(tc)
	})
	if err != nil {
		tc.DiscardAfterCommit()
		return err
	}
	tc.Tx = nil
	tc.RunAfterCommit(ctx)
	return nil
}
