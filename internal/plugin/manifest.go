package plugin

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/treelinehq/treeline/internal/plugin/permission"
)

// Manifest describes a plugin's identity and requested permissions.
// Immutable once loaded; it identifies the plugin for the remainder of
// its lifecycle.
type Manifest struct {
	// Identity
	ID          string `json:"id"`          // Unique stable identifier (e.g., "goals")
	Name        string `json:"name"`        // Human-readable name
	Version     string `json:"version"`     // Semver (e.g., "1.2.0")
	Description string `json:"description"` // Short description
	Author      string `json:"author"`      // Author name or org
	Icon        string `json:"icon"`        // Icon identifier shown in the sidebar

	// Entry point
	Main string `json:"main"` // Relative path to main Lua file (default: "main.lua")

	// Requested table scopes. Absent means deny-by-default.
	Permissions *permission.Declaration `json:"permissions"`

	// Internal: path to the plugin directory
	path string
}

// Validation errors.
var (
	ErrMissingID      = errors.New("manifest: id is required")
	ErrInvalidID      = errors.New("manifest: id must be lowercase alphanumeric with underscores")
	ErrMissingName    = errors.New("manifest: name is required")
	ErrMissingVersion = errors.New("manifest: version is required")
	ErrInvalidVersion = errors.New("manifest: version must be valid semver")
	ErrInvalidMain    = errors.New("manifest: main must be a .lua file")
)

// idPattern validates plugin ids. Ids embed directly in the
// sys_plugin_{id}_ table namespace, so they are restricted to SQL
// identifier characters.
var idPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// semverPattern validates version strings (simplified semver).
var semverPattern = regexp.MustCompile(`^\d+\.\d+\.\d+(-[a-zA-Z0-9.-]+)?(\+[a-zA-Z0-9.-]+)?$`)

// LoadManifest loads and validates a plugin manifest from a file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	m.path = filepath.Dir(path)
	m.applyDefaults()

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

// LoadManifestFromDir loads a manifest from a plugin directory.
// Looks for plugin.json in the directory.
func LoadManifestFromDir(dir string) (*Manifest, error) {
	return LoadManifest(filepath.Join(dir, "plugin.json"))
}

// NewManifestMinimal creates a minimal manifest for single-file plugins.
// A minimal manifest declares no permissions, so the plugin runs with an
// all-empty grant.
func NewManifestMinimal(id, path string) *Manifest {
	return &Manifest{
		ID:      id,
		Name:    id,
		Version: "0.0.0",
		Main:    "main.lua",
		path:    path,
	}
}

// applyDefaults sets default values for optional fields.
func (m *Manifest) applyDefaults() {
	if m.Main == "" {
		m.Main = "main.lua"
	}
	if m.Name == "" {
		m.Name = m.ID
	}
	if m.Version == "" {
		m.Version = "0.0.0"
	}
}

// Validate checks that the manifest is valid. Permission scopes are
// validated separately at activation time by permission.Normalize.
func (m *Manifest) Validate() error {
	if m.ID == "" {
		return ErrMissingID
	}
	if !idPattern.MatchString(m.ID) {
		return fmt.Errorf("%w: %s", ErrInvalidID, m.ID)
	}

	if m.Name == "" {
		return ErrMissingName
	}

	if m.Version == "" {
		return ErrMissingVersion
	}
	if !semverPattern.MatchString(m.Version) {
		return fmt.Errorf("%w: %s", ErrInvalidVersion, m.Version)
	}

	if m.Main != "" && filepath.Ext(m.Main) != ".lua" {
		return fmt.Errorf("%w: %s", ErrInvalidMain, m.Main)
	}

	return nil
}

// Path returns the path to the plugin directory.
func (m *Manifest) Path() string {
	return m.path
}

// MainPath returns the full path to the main Lua file.
func (m *Manifest) MainPath() string {
	return filepath.Join(m.path, m.Main)
}

// String returns a string representation of the manifest.
func (m *Manifest) String() string {
	return fmt.Sprintf("%s v%s", m.ID, m.Version)
}

// Clone creates a deep copy of the manifest.
func (m *Manifest) Clone() *Manifest {
	clone := *m

	if m.Permissions != nil {
		decl := permission.Declaration{
			Tables: permission.TableScopes{
				Read:   append([]string(nil), m.Permissions.Tables.Read...),
				Write:  append([]string(nil), m.Permissions.Tables.Write...),
				Create: append([]string(nil), m.Permissions.Tables.Create...),
			},
		}
		clone.Permissions = &decl
	}

	return &clone
}
