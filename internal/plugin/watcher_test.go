package plugin

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcherReloadsChangedPlugin(t *testing.T) {
	root := t.TempDir()
	writePluginAt(t, root, "goals", goalsManifest, `
		function activate()
			tl.command.register{id = "v1", title = "V1"}
		end
	`)

	deps := testDeps(t)
	loader := NewLoader(root)
	m := NewManager(loader, deps)
	if err := m.AddDiscovered(); err != nil {
		t.Fatal(err)
	}
	if err := m.Activate(context.Background(), "goals"); err != nil {
		t.Fatal(err)
	}

	w, err := NewWatcher(m, loader, deps.Logger)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	script := `
		function activate()
			tl.command.register{id = "v2", title = "V2"}
		end
	`
	if err := os.WriteFile(filepath.Join(root, "goals", "main.lua"), []byte(script), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		cmds := deps.Registry.Commands()
		if len(cmds) == 1 && cmds[0].Command.ID == "v2" {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("plugin was not reloaded after its script changed")
}

func TestWatcherIgnoresUnknownPaths(t *testing.T) {
	root := t.TempDir()
	deps := testDeps(t)
	loader := NewLoader(root)
	m := NewManager(loader, deps)

	w, err := NewWatcher(m, loader, deps.Logger)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	// A file that maps to no known plugin must not do anything.
	if err := os.WriteFile(filepath.Join(root, "stray.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(500 * time.Millisecond)
	if m.Count() != 0 {
		t.Errorf("Count = %d, want 0", m.Count())
	}
}

func TestWatcherCloseIdempotent(t *testing.T) {
	deps := testDeps(t)
	loader := NewLoader(t.TempDir())
	m := NewManager(loader, deps)

	w, err := NewWatcher(m, loader, deps.Logger)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
}
