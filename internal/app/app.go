package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"sync"

	"github.com/vk/cellgrid/internal/ctxlog"
	"github.com/vk/cellgrid/internal/dispatch"
	"github.com/vk/cellgrid/internal/document"
	"github.com/vk/cellgrid/internal/execctx"
	"github.com/vk/cellgrid/internal/nativectx"
	"github.com/vk/cellgrid/internal/remotectx"
	"github.com/vk/cellgrid/internal/scheduler"
)

// Connector opens a remote execution context.
type Connector func(ctx context.Context, cfg remotectx.Config) (execctx.Context, error)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW    io.Writer
	logger  *slog.Logger
	ctx     context.Context
	config  *Config
	model   *document.Model
	connect Connector

	contexts   *execctx.Registry
	remotes    []io.Closer
	doc        *document.Document
	scheduler  *scheduler.Scheduler
	httpServer *http.Server

	closeOnce sync.Once
}

// Option customizes an App.
type Option func(*App)

// WithConnector replaces the socket.io connector, mostly for tests.
func WithConnector(c Connector) Option {
	return func(a *App) { a.connect = c }
}

// WithContext registers an additional execution context, mostly for tests.
func WithContext(c execctx.Context) Option {
	return func(a *App) {
		if err := a.contexts.Register(c); err != nil {
			a.logger.Warn("Execution context not registered.", "context", c.Name(), "error", err)
		}
	}
}

// NewApp is the constructor for the main application. It configures the
// logger and loads the document; execution contexts are connected by Run
// and Serve.
func NewApp(outW, logW io.Writer, cfg *Config, opts ...Option) (*App, error) {
	logger, err := newLogger(cfg.LogLevel, cfg.LogFormat, logW)
	if err != nil {
		return nil, err
	}
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	model, err := document.NewLoader().Load(ctx, cfg.DocumentPaths...)
	if err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	logger.Debug("Document loaded.", "nodes", len(model.Nodes), "contexts", len(model.Contexts))

	contexts, err := execctx.NewRegistry(nativectx.New(nativectx.WithName(cfg.NativeContext)))
	if err != nil {
		return nil, err
	}

	a := &App{
		outW:     outW,
		logger:   logger,
		ctx:      ctx,
		config:   cfg,
		model:    model,
		connect:  connectSocketIO,
		contexts: contexts,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func connectSocketIO(ctx context.Context, cfg remotectx.Config) (execctx.Context, error) {
	return remotectx.Connect(ctx, cfg)
}

// Scheduler returns the scheduler once the app started. This is primarily
// for testing.
func (a *App) Scheduler() *scheduler.Scheduler {
	return a.scheduler
}

// Document returns the live document once the app started.
func (a *App) Document() *document.Document {
	return a.doc
}

// start connects the contexts, builds the scheduler and feeds it the
// document and the configured values.
func (a *App) start(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)

	for _, cfg := range a.remoteConfigs() {
		c, err := a.connect(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to connect execution context %q: %w", cfg.Name, err)
		}
		if closer, ok := c.(io.Closer); ok {
			a.remotes = append(a.remotes, closer)
		}
		if err := a.contexts.Register(c); err != nil {
			return err
		}
		a.logger.Info("Execution context connected.", "context", cfg.Name, "url", cfg.URL)
	}
	a.logger.Debug("Execution contexts registered.", "names", a.contexts.Names())

	router := dispatch.New(a.contexts, a.config.NativeContext)
	a.scheduler = scheduler.New(ctx, router,
		scheduler.WithIdleWait(a.config.IdleWait),
		scheduler.WithOnUpdated(a.onUpdated),
	)

	a.doc = document.New()
	a.doc.OnChange(func(change document.Change) {
		if err := a.scheduler.Apply(ctx, change); err != nil {
			a.logger.Warn("Document change not fully applied.", "error", err)
		}
	})
	if err := a.doc.Create(a.model.Nodes...); err != nil {
		return err
	}

	names := make([]string, 0, len(a.config.Values))
	for name := range a.config.Values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := a.scheduler.SetValue(name, a.config.Values[name], scheduler.Debounced); err != nil {
			return fmt.Errorf("failed to set %q: %w", name, err)
		}
	}
	return nil
}

// remoteConfigs merges the document's contexts with the configured ones.
func (a *App) remoteConfigs() []remotectx.Config {
	byName := make(map[string]remotectx.Config)
	var order []string
	add := func(cfg remotectx.Config) {
		if _, ok := byName[cfg.Name]; !ok {
			order = append(order, cfg.Name)
		}
		byName[cfg.Name] = cfg
	}
	for _, rc := range a.model.Contexts {
		add(remotectx.Config{
			Name:               rc.Name,
			URL:                rc.URL,
			Namespace:          rc.Namespace,
			Timeout:            rc.Timeout,
			InsecureSkipVerify: rc.InsecureSkipVerify,
		})
	}
	for _, c := range a.config.Contexts {
		add(remotectx.Config{
			Name:               c.Name,
			URL:                c.URL,
			Namespace:          c.Namespace,
			Timeout:            c.Timeout,
			InsecureSkipVerify: c.InsecureSkipVerify,
		})
	}

	out := make([]remotectx.Config, 0, len(order))
	for _, name := range order {
		out = append(out, byName[name])
	}
	return out
}

func (a *App) onUpdated(r scheduler.Report) {
	a.logger.Info("Cells updated.",
		"pass", r.PassID,
		"evaluated", len(r.Evaluated),
		"errored", len(r.Errored),
		"stale", len(r.Stale),
		"rounds", r.Rounds,
		"duration", r.Duration,
	)
}

// Close stops the HTTP server, the scheduler and every remote context. It is
// safe to call more than once.
func (a *App) Close() error {
	var errs []error
	a.closeOnce.Do(func() {
		errs = append(errs, a.closeHTTPServer())
		if a.scheduler != nil {
			errs = append(errs, a.scheduler.Close())
		}
		for _, c := range a.remotes {
			errs = append(errs, c.Close())
		}
		a.logger.Debug("App closed.")
	})
	return errors.Join(errs...)
}
