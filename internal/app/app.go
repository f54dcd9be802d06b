// Package app assembles the Treeline host: database, scoped storage,
// refresh bus, registration registry, and the plugin manager.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/treelinehq/treeline/internal/config"
	"github.com/treelinehq/treeline/internal/currency"
	"github.com/treelinehq/treeline/internal/db"
	"github.com/treelinehq/treeline/internal/plugin"
	"github.com/treelinehq/treeline/internal/refresh"
	"github.com/treelinehq/treeline/internal/registry"
	"github.com/treelinehq/treeline/internal/sdk"
	"github.com/treelinehq/treeline/internal/shortcut"
	"github.com/treelinehq/treeline/internal/storage"
)

// Options configures the application.
type Options struct {
	ConfigPath string

	// Overrides for config file values; empty means use the config.
	DBPath    string
	PluginDir string
}

// Application owns every host service and the plugin manager. It is
// created by New, started with Start, and torn down by Shutdown.
type Application struct {
	cfg    config.Config
	logger *slog.Logger

	engine   *db.Engine
	store    *storage.Store
	bus      *refresh.Bus
	registry *registry.Registry
	theme    *sdk.ThemeSource

	loader  *plugin.Loader
	manager *plugin.Manager
	watcher *plugin.Watcher

	shutdownOnce sync.Once
}

// InitError wraps a failure during application bootstrap with the
// component that failed.
type InitError struct {
	Component string
	Err       error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("failed to initialize %s: %v", e.Component, e.Err)
}

func (e *InitError) Unwrap() error {
	return e.Err
}

// New creates the application and opens all host services. No plugins
// run until Start.
func New(opts Options) (*Application, error) {
	cfgPath := opts.ConfigPath
	if cfgPath == "" {
		cfgPath = config.DefaultPath()
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, &InitError{Component: "config", Err: err}
	}
	if opts.DBPath != "" {
		cfg.DBPath = opts.DBPath
	}
	if opts.PluginDir != "" {
		cfg.PluginDir = opts.PluginDir
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, &InitError{Component: "data directory", Err: err}
	}

	engine, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, &InitError{Component: "database", Err: err}
	}
	if err := engine.Migrate(context.Background()); err != nil {
		engine.Close()
		return nil, &InitError{Component: "database schema", Err: err}
	}

	store, err := storage.New(engine.DB())
	if err != nil {
		engine.Close()
		return nil, &InitError{Component: "plugin storage", Err: err}
	}

	app := &Application{
		cfg:      cfg,
		logger:   logger,
		engine:   engine,
		store:    store,
		bus:      refresh.NewBus(logger),
		registry: registry.New(logger),
		theme:    sdk.NewThemeSource(sdk.Theme(cfg.Theme)),
	}

	app.loader = plugin.NewLoader(cfg.PluginDir)
	app.manager = plugin.NewManager(app.loader, plugin.Deps{
		Engine:   engine,
		Store:    store,
		Bus:      app.bus,
		Registry: app.registry,
		Theme:    app.theme,
		Platform: shortcut.Detect(),
		Currency: currency.NewFormatter(cfg.Currency),
		Logger:   logger,
	})

	return app, nil
}

// Start discovers and activates all plugins and, when configured,
// starts the hot-reload watcher. Individual plugin failures are logged
// and do not abort startup.
func (a *Application) Start(ctx context.Context) error {
	if err := a.manager.AddDiscovered(); err != nil {
		a.logger.Warn("some plugins failed discovery", "error", err)
	}
	if err := a.manager.ActivateAll(ctx); err != nil {
		a.logger.Warn("some plugins failed activation", "error", err)
	}
	a.logger.Info("plugins started",
		"active", a.manager.CountActive(), "total", a.manager.Count())

	if a.cfg.WatchPlugins {
		watcher, err := plugin.NewWatcher(a.manager, a.loader, a.logger)
		if err != nil {
			return &InitError{Component: "plugin watcher", Err: err}
		}
		a.watcher = watcher
		go watcher.Run(ctx)
	}

	return nil
}

// Shutdown deactivates all plugins and closes every service. Safe to
// call more than once.
func (a *Application) Shutdown() {
	a.shutdownOnce.Do(func() {
		if a.watcher != nil {
			if err := a.watcher.Close(); err != nil {
				a.logger.Warn("watcher close failed", "error", err)
			}
		}
		a.manager.DeactivateAll()
		if err := a.engine.Close(); err != nil {
			a.logger.Warn("database close failed", "error", err)
		}
		a.logger.Info("shutdown complete")
	})
}

// SeedDemo populates the database with a demo scenario.
func (a *Application) SeedDemo(ctx context.Context, scenario string) error {
	if err := a.engine.SeedDemo(ctx, scenario); err != nil {
		return err
	}
	// Active plugins re-fetch through the bus like any data change.
	a.bus.Publish()
	return nil
}

// Config returns the effective configuration.
func (a *Application) Config() config.Config {
	return a.cfg
}

// Logger returns the application logger.
func (a *Application) Logger() *slog.Logger {
	return a.logger
}

// Plugins returns the plugin manager.
func (a *Application) Plugins() *plugin.Manager {
	return a.manager
}

// Registry returns the registration registry.
func (a *Application) Registry() *registry.Registry {
	return a.registry
}

// Bus returns the data-refresh bus.
func (a *Application) Bus() *refresh.Bus {
	return a.bus
}

// Theme returns the theme source.
func (a *Application) Theme() *sdk.ThemeSource {
	return a.theme
}

// Engine returns the database engine.
func (a *Application) Engine() *db.Engine {
	return a.engine
}
