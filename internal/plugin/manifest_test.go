package plugin

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "plugin.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `{
		"id": "goals",
		"name": "Savings Goals",
		"version": "1.2.0",
		"description": "Track savings goals",
		"author": "treeline",
		"permissions": {
			"tables": {
				"read": ["transactions", "accounts"],
				"write": ["sys_plugin_goals_items"],
				"create": ["sys_plugin_goals_items"]
			}
		}
	}`)

	m, err := LoadManifestFromDir(dir)
	if err != nil {
		t.Fatalf("LoadManifestFromDir failed: %v", err)
	}

	if m.ID != "goals" {
		t.Errorf("ID = %q, want goals", m.ID)
	}
	if m.Main != "main.lua" {
		t.Errorf("Main = %q, want default main.lua", m.Main)
	}
	if m.Permissions == nil {
		t.Fatal("Permissions should be parsed")
	}
	if got := len(m.Permissions.Tables.Read); got != 2 {
		t.Errorf("read scopes = %d, want 2", got)
	}
	if m.Path() != dir {
		t.Errorf("Path = %q, want %q", m.Path(), dir)
	}
	if want := filepath.Join(dir, "main.lua"); m.MainPath() != want {
		t.Errorf("MainPath = %q, want %q", m.MainPath(), want)
	}
}

func TestLoadManifestMissing(t *testing.T) {
	if _, err := LoadManifestFromDir(t.TempDir()); err == nil {
		t.Error("expected error for missing plugin.json")
	}
}

func TestLoadManifestBadJSON(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `{not json`)
	if _, err := LoadManifestFromDir(dir); err == nil {
		t.Error("expected parse error")
	}
}

func TestManifestValidate(t *testing.T) {
	tests := []struct {
		name     string
		manifest Manifest
		wantErr  error
	}{
		{
			name:     "valid",
			manifest: Manifest{ID: "budget_watch", Name: "Budget Watch", Version: "1.0.0", Main: "main.lua"},
		},
		{
			name:     "missing id",
			manifest: Manifest{Name: "x", Version: "1.0.0"},
			wantErr:  ErrMissingID,
		},
		{
			name:     "uppercase id",
			manifest: Manifest{ID: "Goals", Name: "x", Version: "1.0.0"},
			wantErr:  ErrInvalidID,
		},
		{
			name:     "hyphenated id",
			manifest: Manifest{ID: "my-plugin", Name: "x", Version: "1.0.0"},
			wantErr:  ErrInvalidID,
		},
		{
			name:     "id starting with digit",
			manifest: Manifest{ID: "1st", Name: "x", Version: "1.0.0"},
			wantErr:  ErrInvalidID,
		},
		{
			name:     "missing name",
			manifest: Manifest{ID: "goals", Version: "1.0.0"},
			wantErr:  ErrMissingName,
		},
		{
			name:     "missing version",
			manifest: Manifest{ID: "goals", Name: "x"},
			wantErr:  ErrMissingVersion,
		},
		{
			name:     "bad version",
			manifest: Manifest{ID: "goals", Name: "x", Version: "one"},
			wantErr:  ErrInvalidVersion,
		},
		{
			name:     "prerelease version",
			manifest: Manifest{ID: "goals", Name: "x", Version: "2.0.0-beta.1"},
		},
		{
			name:     "non-lua main",
			manifest: Manifest{ID: "goals", Name: "x", Version: "1.0.0", Main: "main.js"},
			wantErr:  ErrInvalidMain,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.manifest.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate failed: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `{"id": "scratch", "version": "0.1.0"}`)

	m, err := LoadManifestFromDir(dir)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if m.Name != "scratch" {
		t.Errorf("Name = %q, want id fallback", m.Name)
	}
	if m.Main != "main.lua" {
		t.Errorf("Main = %q, want main.lua", m.Main)
	}
}

func TestManifestClone(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `{
		"id": "goals",
		"version": "1.0.0",
		"permissions": {"tables": {"read": ["transactions"]}}
	}`)
	m, err := LoadManifestFromDir(dir)
	if err != nil {
		t.Fatal(err)
	}

	clone := m.Clone()
	clone.Permissions.Tables.Read[0] = "mutated"
	if m.Permissions.Tables.Read[0] != "transactions" {
		t.Error("Clone should deep-copy permission scopes")
	}
}
