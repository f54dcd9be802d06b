package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newTestApp(t *testing.T, pluginDir string) *Application {
	t.Helper()
	dir := t.TempDir()

	cfgPath := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(cfgPath, []byte("watch_plugins = false\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	app, err := New(Options{
		ConfigPath: cfgPath,
		DBPath:     filepath.Join(dir, "treeline.db"),
		PluginDir:  pluginDir,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(app.Shutdown)
	return app
}

func writeAppPlugin(t *testing.T, root, id, script string) {
	t.Helper()
	dir := filepath.Join(root, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	manifest := `{
		"id": "` + id + `",
		"name": "` + id + `",
		"version": "1.0.0",
		"permissions": {"tables": {"read": ["transactions"]}}
	}`
	if err := os.WriteFile(filepath.Join(dir, "plugin.json"), []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "main.lua"), []byte(script), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestApplicationStart(t *testing.T) {
	pluginDir := t.TempDir()
	writeAppPlugin(t, pluginDir, "goals", `
		function activate()
			tl.sidebar.section{id = "goals", title = "Goals"}
		end
	`)

	app := newTestApp(t, pluginDir)
	if err := app.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if got := app.Plugins().CountActive(); got != 1 {
		t.Errorf("active plugins = %d, want 1", got)
	}
	if got := len(app.Registry().Sections()); got != 1 {
		t.Errorf("sections = %d, want 1", got)
	}
}

func TestApplicationSeedDemoPublishesRefresh(t *testing.T) {
	pluginDir := t.TempDir()
	writeAppPlugin(t, pluginDir, "counter", `
		refreshes = 0
		function activate()
			tl.refresh.on(function()
				refreshes = refreshes + 1
				local rows = tl.sql.query("SELECT COUNT(*) AS n FROM transactions")
				tl.badge.update(rows[1].n)
			end)
		end
	`)

	app := newTestApp(t, pluginDir)
	if err := app.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := app.SeedDemo(context.Background(), "default"); err != nil {
		t.Fatalf("SeedDemo() error = %v", err)
	}

	// The plugin's refresh callback counted seeded transactions into
	// its badge.
	count, ok := app.Registry().Badge("counter")
	if !ok {
		t.Fatal("plugin badge should be set after refresh")
	}
	if count <= 0 {
		t.Errorf("badge = %d, want seeded transaction count", count)
	}
}

func TestApplicationShutdownIdempotent(t *testing.T) {
	app := newTestApp(t, t.TempDir())
	if err := app.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	app.Shutdown()
	app.Shutdown()
}

func TestApplicationBadConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(cfgPath, []byte(`theme = "plaid"`), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := New(Options{ConfigPath: cfgPath})
	if err == nil {
		t.Fatal("expected config error")
	}
	var initErr *InitError
	if !errors.As(err, &initErr) || initErr.Component != "config" {
		t.Errorf("error = %v, want InitError for config", err)
	}
}
