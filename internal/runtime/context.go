// Package runtime provides application runtime context for Tabula.
package runtime

import (
	"context"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/manav03panchal/tabula/internal/bus"
	"github.com/manav03panchal/tabula/internal/command"
	"github.com/manav03panchal/tabula/internal/config"
	terrors "github.com/manav03panchal/tabula/internal/errors"
	"github.com/manav03panchal/tabula/internal/execctx"
	"github.com/manav03panchal/tabula/internal/field"
	"github.com/manav03panchal/tabula/internal/ids"
	"github.com/manav03panchal/tabula/internal/logging"
	"github.com/manav03panchal/tabula/internal/metrics"
	"github.com/manav03panchal/tabula/internal/notify"
	"github.com/manav03panchal/tabula/internal/output"
	"github.com/manav03panchal/tabula/internal/record"
	"github.com/manav03panchal/tabula/internal/record/pgstore"
	"github.com/manav03panchal/tabula/internal/storage"
	"github.com/manav03panchal/tabula/internal/undo"
)

// TracerName names the tracer taken from the global otel provider.
const TracerName = "github.com/manav03panchal/tabula"

// MemoryPath selects an in-memory history database in place of a path.
const MemoryPath = ":memory:"

// Context holds the application runtime context.
type Context struct {
	Config    *config.RuntimeConfig
	DB        *storage.DB
	Formatter *output.Formatter
	Metrics   *metrics.Metrics
	Tracer    trace.Tracer

	// Mutation pipeline
	History  *storage.UndoStore
	Undo     *undo.Service
	Bus      *bus.Bus
	Catalog  *record.StaticCatalog
	Records  record.Repository
	Handlers *record.Handlers

	// Debug mode
	Debug bool

	pg *pgstore.Store
}

// Options configures the runtime context.
type Options struct {
	ConfigPath string
	DBPath     string
	InMemory   bool
	Format     output.Format
	ColorMode  output.ColorMode
	Debug      bool
}

// DefaultOptions returns default runtime options.
func DefaultOptions() Options {
	return Options{
		DBPath:    storage.DefaultPath(),
		InMemory:  false,
		Format:    output.FormatCLI,
		ColorMode: output.ColorAuto,
		Debug:     false,
	}
}

// New creates a new runtime context. Records live in postgres when a DSN is
// configured and in memory otherwise.
func New(ctx context.Context, opts Options) (*Context, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	logCfg := logging.Config{Level: logging.ParseLevel(cfg.Log.Level), JSON: cfg.Log.JSON, Output: os.Stderr}
	if opts.Debug {
		logCfg = logging.DebugConfig()
	}
	logging.Init(logCfg)

	path := opts.DBPath
	if cfg.Storage.HistoryPath != "" && (path == "" || path == storage.DefaultPath()) {
		path = cfg.Storage.HistoryPath
	}
	inMemory := opts.InMemory || cfg.Storage.InMemory || path == MemoryPath
	if path == MemoryPath {
		path = ""
	}

	db, err := storage.Open(storage.Options{
		Path:       path,
		InMemory:   inMemory,
		MaxRetries: cfg.Undo.MaxRetries,
	})
	if err != nil {
		if storage.IsDatabaseCorrupted(err) {
			return nil, terrors.Wrapf(terrors.ErrHistoryCorrupted, "open %s: %v", path, err)
		}
		return nil, WrapDiskFullError(err, "open", path)
	}

	c := &Context{
		Config:  cfg,
		DB:      db,
		Metrics: metrics.New(),
		Tracer:  otel.Tracer(TracerName),
		Debug:   opts.Debug,
	}

	tables := make([]*field.Table, 0, len(cfg.Tables))
	for _, tc := range cfg.Tables {
		table, err := tc.Build()
		if err != nil {
			_ = c.Close()
			return nil, err
		}
		tables = append(tables, table)
	}
	c.Catalog = record.NewCatalog(tables...)

	if cfg.Postgres.DSN != "" {
		c.pg, err = pgstore.Open(ctx, cfg.Postgres.DSN)
		if err != nil {
			_ = c.Close()
			return nil, err
		}
		c.Records = c.pg
	} else {
		c.Records = record.NewMemoryRepository()
	}

	var notifier notify.Notifier
	if cfg.Notify.WebhookURL != "" {
		hook, err := notify.NewWebhook(cfg.Notify.WebhookURL, cfg.Notify.Template,
			notify.NewHTTPClient(cfg.Notify.Timeout, 0, time.Second, 5*time.Second))
		if err != nil {
			_ = c.Close()
			return nil, err
		}
		notifier = hook
	}

	c.History = storage.NewUndoStore(db, c.Metrics)
	c.Undo = undo.NewService(c.History, nil, undo.WithMetrics(c.Metrics))
	c.Bus = bus.New(
		bus.Logging(),
		bus.Tracing(c.Tracer),
		bus.Metrics(c.Metrics),
		bus.RequireActor(),
		bus.Notify(notifier, c.Metrics),
	)
	c.Handlers = record.NewHandlers(c.Records, c.Catalog, c.Undo)
	c.Handlers.Register(c.Bus)
	for _, t := range command.Types() {
		if !c.Bus.Has(t) {
			_ = c.Close()
			return nil, terrors.Internal("no handler registered for command "+string(t), terrors.ErrHandlerNotFound)
		}
	}
	c.Undo.SetExecutor(c.Bus)

	formatter := output.NewFormatter()
	formatter.Format = opts.Format
	formatter.ColorMode = opts.ColorMode
	c.Formatter = formatter

	return c, nil
}

// Close closes the runtime context.
func (c *Context) Close() error {
	var first error
	if c.pg != nil {
		first = c.pg.Close()
	}
	if c.DB != nil {
		if err := c.DB.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Exec returns an execution context for actor, bound to window when set.
func (c *Context) Exec(actor ids.ActorID, window *ids.WindowID) *execctx.Context {
	ec := execctx.New(actor)
	ec.Tracer = c.Tracer
	if window != nil {
		ec = ec.WithWindow(*window)
	}
	return ec
}

// CLIFormatter returns a CLI formatter.
func (c *Context) CLIFormatter() *output.CLIFormatter {
	return output.NewCLIFormatter(c.Formatter)
}

// JSONFormatter returns a JSON formatter.
func (c *Context) JSONFormatter() *output.JSONFormatter {
	return output.NewJSONFormatter(c.Formatter)
}

// IsJSON returns true if output format is JSON.
func (c *Context) IsJSON() bool {
	return c.Formatter.Format == output.FormatJSON
}

// IsCLI returns true if output format is CLI.
func (c *Context) IsCLI() bool {
	return c.Formatter.Format == output.FormatCLI
}

// Debugf prints debug output if debug mode is enabled.
func (c *Context) Debugf(format string, args ...any) {
	if c.Debug {
		c.Formatter.Printf("[DEBUG] "+format+"\n", args...)
	}
}
