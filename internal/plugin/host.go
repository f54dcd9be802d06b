package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	plua "github.com/treelinehq/treeline/internal/plugin/lua"
	"github.com/treelinehq/treeline/internal/plugin/permission"
	"github.com/treelinehq/treeline/internal/sdk"
)

// Host manages a single plugin's grant, Lua runtime, and lifecycle. It
// exclusively owns the plugin instance; other components reach the
// plugin only through the state machine here.
type Host struct {
	mu sync.Mutex

	// Identity
	id       string
	manifest *Manifest

	// Shared host services, owned by the Manager.
	deps Deps

	// Per-activation resources. All nil outside Activating/Active.
	grant   *permission.Grant
	runtime *plua.Runtime
	api     *sdk.SDK

	state State
	err   error

	logger *slog.Logger
}

// NewHost creates a host for the given manifest. The plugin starts
// unloaded; nothing runs until Activate.
func NewHost(manifest *Manifest, deps Deps) (*Host, error) {
	if manifest == nil {
		return nil, ErrNilManifest
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Host{
		id:       manifest.ID,
		manifest: manifest,
		deps:     deps,
		state:    StateUnloaded,
		logger:   logger.With("plugin", manifest.ID),
	}, nil
}

// ID returns the plugin id.
func (h *Host) ID() string {
	return h.id
}

// Manifest returns the plugin manifest.
func (h *Host) Manifest() *Manifest {
	return h.manifest
}

// State returns the current plugin state.
func (h *Host) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Err returns the error from the last failed activation, if any.
func (h *Host) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Grant returns the active permission grant, or nil when not active.
func (h *Host) Grant() *permission.Grant {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.grant
}

// Activate normalizes the manifest permissions, builds the sandboxed
// runtime and plugin-scoped SDK, runs the plugin's main file, and calls
// its activate function. Any failure tears down every resource acquired
// so far; a failed plugin retains no partial registrations.
func (h *Host) Activate(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state == StateActive {
		return fmt.Errorf("plugin %q: %w", h.id, ErrAlreadyActive)
	}
	if !h.state.CanActivate() {
		return fmt.Errorf("plugin %q: cannot activate while %s", h.id, h.state)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	h.state = StateActivating

	// Grants are re-normalized from the manifest on every activation,
	// never reused from a previous one.
	grant, err := permission.Normalize(h.id, h.manifest.Permissions)
	if err != nil {
		return h.fail(err)
	}
	h.grant = grant

	h.runtime = plua.NewRuntime()
	h.api = sdk.New(sdk.Options{
		PluginID: h.id,
		Grant:    grant,
		Engine:   h.deps.Engine,
		Store:    h.deps.Store,
		Bus:      h.deps.Bus,
		Registry: h.deps.Registry,
		Toasts:   h.deps.Toasts,
		Theme:    h.deps.Theme,
		Platform: h.deps.Platform,
		Currency: h.deps.Currency,
		Logger:   h.logger,
	})
	plua.NewBinder(h.runtime, h.api, h.logger).Bind()

	// Registrations are only admitted while the plugin is activating or
	// active.
	h.deps.Registry.Enable(h.id)

	if err := h.runtime.DoFile(h.manifest.MainPath()); err != nil {
		return h.fail(fmt.Errorf("plugin %q: load failed: %w", h.id, err))
	}

	if h.runtime.HasFunction("activate") {
		if err := h.runtime.CallFunction("activate"); err != nil {
			return h.fail(fmt.Errorf("plugin %q: activate failed: %w", h.id, err))
		}
	}

	h.state = StateActive
	h.err = nil
	h.logger.Info("plugin activated", "version", h.manifest.Version)
	return nil
}

// Deactivate calls the plugin's deactivate function and unwinds every
// registration and subscription. The unwind is unconditional; a failing
// deactivate callback is logged and does not stop the teardown.
func (h *Host) Deactivate() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != StateActive {
		return fmt.Errorf("plugin %q: %w", h.id, ErrNotActive)
	}

	h.state = StateDeactivating

	if h.runtime.HasFunction("deactivate") {
		if err := h.runtime.CallFunction("deactivate"); err != nil {
			h.logger.Warn("deactivate callback failed", "error", err)
		}
	}

	h.teardown()
	h.state = StateUnloaded
	h.err = nil
	h.logger.Info("plugin deactivated")
	return nil
}

// fail records an activation error and releases all partial resources.
// Must be called with mu held during StateActivating.
func (h *Host) fail(err error) error {
	h.teardown()
	h.state = StateFailed
	h.err = err
	h.logger.Error("plugin activation failed", "error", err)
	return err
}

// teardown releases every per-activation resource: SDK subscriptions,
// registry records, bus subscriptions, the Lua state, and the grant.
// Must be called with mu held.
func (h *Host) teardown() {
	if h.api != nil {
		h.api.Close()
		h.api = nil
	}
	h.deps.Registry.RemovePlugin(h.id)
	h.deps.Bus.RemoveOwner(h.id)
	if h.runtime != nil {
		h.runtime.Close()
		h.runtime = nil
	}
	h.grant = nil
}

// Stats returns runtime statistics for the plugin.
func (h *Host) Stats() HostStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	stats := HostStats{
		ID:       h.id,
		Version:  h.manifest.Version,
		State:    h.state,
		HasError: h.err != nil,
	}
	if h.grant != nil {
		stats.ReadTables = len(h.grant.ReadTables())
	}
	return stats
}

// HostStats contains runtime statistics for a plugin host.
type HostStats struct {
	ID         string
	Version    string
	State      State
	ReadTables int
	HasError   bool
}
