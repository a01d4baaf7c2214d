package bus

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/manav03panchal/tabula/internal/command"
	"github.com/manav03panchal/tabula/internal/errors"
	"github.com/manav03panchal/tabula/internal/execctx"
	"github.com/manav03panchal/tabula/internal/ids"
	"github.com/manav03panchal/tabula/internal/logging"
	"github.com/manav03panchal/tabula/internal/metrics"
	"github.com/manav03panchal/tabula/internal/notify"
)

// Logging logs every command at debug level and failures at warn level.
func Logging() Middleware {
	return func(ctx context.Context, ec *execctx.Context, cmd command.Command, next Handler) (any, error) {
		if ec.RequestID != "" && logging.RequestIDFromContext(ctx) == "" {
			ctx = logging.WithRequestID(ctx, ec.RequestID)
		}
		start := time.Now()
		res, err := next(ctx, ec, cmd)
		attrs := []any{
			logging.KeyCommand, cmd.Type(),
			logging.KeyTable, cmd.TableID(),
			logging.KeyActor, ec.ActorID,
			logging.KeyMode, ec.Mode(),
			logging.KeyDuration, time.Since(start).Milliseconds(),
		}
		if err != nil {
			logging.WarnContext(ctx, "command failed", append(attrs,
				logging.KeyKind, errors.KindOf(err).String(),
				logging.KeyError, err)...)
			return nil, err
		}
		logging.DebugContext(ctx, "command executed", attrs...)
		return res, nil
	}
}

// Tracing wraps each command in a span. The tracer on the execution context
// wins over tracer; with neither, spans are no-ops.
func Tracing(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, ec *execctx.Context, cmd command.Command, next Handler) (any, error) {
		spanCtx := ec
		if ec.Tracer == nil && tracer != nil {
			cp := *ec
			cp.Tracer = tracer
			spanCtx = &cp
		}
		ctx, span := spanCtx.StartSpan(ctx, "tabula.command."+string(cmd.Type()),
			trace.WithAttributes(
				attribute.String("tabula.command", string(cmd.Type())),
				attribute.String("tabula.table_id", string(cmd.TableID())),
				attribute.String("tabula.actor_id", string(ec.ActorID)),
				attribute.String("tabula.mode", ec.Mode().String()),
			),
		)
		defer span.End()

		res, err := next(ctx, ec, cmd)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.SetAttributes(attribute.String("tabula.error_kind", errors.KindOf(err).String()))
			return nil, err
		}
		span.SetStatus(codes.Ok, "")
		return res, nil
	}
}

// Metrics counts commands and observes their duration.
func Metrics(m *metrics.Metrics) Middleware {
	return func(ctx context.Context, ec *execctx.Context, cmd command.Command, next Handler) (any, error) {
		start := time.Now()
		res, err := next(ctx, ec, cmd)
		m.ObserveCommand(string(cmd.Type()), time.Since(start), err)
		return res, err
	}
}

// Notify publishes a change event for every successful command. With a
// transaction on the execution context the event waits for the commit.
// Delivery failures are logged and never fail the command.
func Notify(n notify.Notifier, m *metrics.Metrics) Middleware {
	return func(ctx context.Context, ec *execctx.Context, cmd command.Command, next Handler) (any, error) {
		res, err := next(ctx, ec, cmd)
		if err != nil || n == nil {
			return res, err
		}
		event := EventFor(ec, cmd, res)
		ec.AfterCommit(ctx, func(ctx context.Context) {
			nerr := n.Notify(ctx, event)
			m.ObserveNotification(nerr)
			if nerr != nil {
				logging.WarnContext(ctx, "change notification failed",
					logging.KeyCommand, cmd.Type(),
					logging.KeyTable, cmd.TableID(),
					logging.KeyError, nerr)
			}
		})
		return res, nil
	}
}

// RequireActor rejects commands whose execution context has no valid actor.
// It is the place where an authorization check would plug in.
func RequireActor() Middleware {
	return func(ctx context.Context, ec *execctx.Context, cmd command.Command, next Handler) (any, error) {
		if _, err := ids.ParseActorID(string(ec.ActorID)); err != nil {
			return nil, err
		}
		return next(ctx, ec, cmd)
	}
}

var eventTypes = map[command.Type]notify.EventType{
	command.TypeCreateRecord:   notify.EventRecordsCreated,
	command.TypeUpdateRecord:   notify.EventRecordsUpdated,
	command.TypeDeleteRecords:  notify.EventRecordsDeleted,
	command.TypeRestoreRecords: notify.EventRecordsRestored,
}

// EventFor describes a successful command as a change event.
func EventFor(ec *execctx.Context, cmd command.Command, result any) notify.Event {
	e := notify.Event{
		Type:      eventTypes[cmd.Type()],
		Command:   string(cmd.Type()),
		TableID:   cmd.TableID(),
		RecordIDs: targets(cmd, result),
		ActorID:   ec.ActorID,
		RequestID: ec.RequestID,
		Mode:      ec.Mode().String(),
		Timestamp: time.Now().UTC(),
	}
	if ec.WindowID != nil {
		e.WindowID = *ec.WindowID
	}
	return e
}

// targets prefers the ids reported by the handler, falling back to the ids
// named by the command.
func targets(cmd command.Command, result any) []ids.RecordID {
	type many interface{ RecordIDs() []ids.RecordID }
	type one interface{ RecordID() ids.RecordID }

	for _, v := range []any{result, cmd} {
		switch t := v.(type) {
		case many:
			return t.RecordIDs()
		case one:
			return []ids.RecordID{t.RecordID()}
		}
	}
	return nil
}
