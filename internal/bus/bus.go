// Package bus dispatches commands to their handlers through an ordered
// middleware chain. Every failure comes back as an error; a panicking
// handler or middleware is turned into an internal error.
package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/manav03panchal/tabula/internal/command"
	"github.com/manav03panchal/tabula/internal/errors"
	"github.com/manav03panchal/tabula/internal/execctx"
	"github.com/manav03panchal/tabula/internal/logging"
)

// Handler performs exactly one mutation.
type Handler func(ctx context.Context, ec *execctx.Context, cmd command.Command) (any, error)

// Middleware wraps the rest of the chain. It may return without calling
// next to short-circuit; it must not call next more than once.
type Middleware func(ctx context.Context, ec *execctx.Context, cmd command.Command, next Handler) (any, error)

// Bus routes commands by type.
type Bus struct {
	mu         sync.RWMutex
	handlers   map[command.Type]Handler
	middleware []Middleware
}

// New creates a bus with the given middleware, outermost first.
func New(mw ...Middleware) *Bus {
	return &Bus{
		handlers:   make(map[command.Type]Handler),
		middleware: mw,
	}
}

// Use appends middleware to the chain.
func (b *Bus) Use(mw ...Middleware) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.middleware = append(b.middleware, mw...)
}

// Handle registers h for t, replacing any previous handler.
func (b *Bus) Handle(t command.Type, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = h
}

// Has reports whether a handler is registered for t.
func (b *Bus) Has(t command.Type) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.handlers[t]
	return ok
}

// Execute runs cmd through the middleware chain and its handler.
func (b *Bus) Execute(ctx context.Context, ec *execctx.Context, cmd command.Command) (result any, err error) {
	if cmd == nil {
		return nil, errors.Validation("command is required")
	}
	if err := ec.Validate(); err != nil {
		return nil, err
	}

	b.mu.RLock()
	h, ok := b.handlers[cmd.Type()]
	chain := append([]Middleware(nil), b.middleware...)
	b.mu.RUnlock()

	if !ok {
		return nil, errors.NotImplemented(
			fmt.Sprintf("no handler registered for command %s", cmd.Type()), errors.ErrHandlerNotFound)
	}

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = errors.WithStack(errors.Internal(fmt.Sprintf("command %s panicked: %v", cmd.Type(), r), nil))
			logging.ErrorContext(ctx, "command panicked",
				logging.KeyCommand, cmd.Type(),
				"panic", r,
				"stack", errors.GetStack(err))
		}
	}()

	next := h
	for i := len(chain) - 1; i >= 0; i-- {
		next = wrap(chain[i], next)
	}
	return next(ctx, ec, cmd)
}

// wrap binds mw to the rest of the chain and guards against a second call
// of next.
func wrap(mw Middleware, rest Handler) Handler {
	return func(ctx context.Context, ec *execctx.Context, cmd command.Command) (any, error) {
		called := false
		once := func(ctx context.Context, ec *execctx.Context, cmd command.Command) (any, error) {
			if called {
				return nil, errors.Internal("middleware called next more than once", nil)
			}
			called = true
			return rest(ctx, ec, cmd)
		}
		return mw(ctx, ec, cmd, once)
	}
}

// Register installs a typed handler for t. A command of another Go type
// routed to t is an internal error.
func Register[C command.Command, R any](b *Bus, t command.Type, fn func(ctx context.Context, ec *execctx.Context, cmd C) (R, error)) {
	b.Handle(t, func(ctx context.Context, ec *execctx.Context, cmd command.Command) (any, error) {
		typed, ok := cmd.(C)
		if !ok {
			return nil, errors.Internal(fmt.Sprintf("handler for %s received %T", t, cmd), nil)
		}
		return fn(ctx, ec, typed)
	})
}

// ExecuteAs executes cmd and asserts the result type.
func ExecuteAs[R any](ctx context.Context, b *Bus, ec *execctx.Context, cmd command.Command) (R, error) {
	var zero R
	res, err := b.Execute(ctx, ec, cmd)
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	typed, ok := res.(R)
	if !ok {
		return zero, errors.Internal(fmt.Sprintf("command %s returned %T, want %T", cmd.Type(), res, zero), nil)
	}
	return typed, nil
}
