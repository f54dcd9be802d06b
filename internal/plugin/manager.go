package plugin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/treelinehq/treeline/internal/currency"
	"github.com/treelinehq/treeline/internal/db"
	"github.com/treelinehq/treeline/internal/refresh"
	"github.com/treelinehq/treeline/internal/registry"
	"github.com/treelinehq/treeline/internal/sdk"
	"github.com/treelinehq/treeline/internal/shortcut"
	"github.com/treelinehq/treeline/internal/storage"
)

// Deps are the shared host services every plugin SDK is built against.
type Deps struct {
	Engine   *db.Engine
	Store    *storage.Store
	Bus      *refresh.Bus
	Registry *registry.Registry
	Toasts   sdk.ToastSink
	Theme    *sdk.ThemeSource
	Platform shortcut.Platform
	Currency *currency.Formatter
	Logger   *slog.Logger
}

// Manager orchestrates the lifecycle of all plugins: it owns every Host,
// builds each plugin's scoped SDK at activation, and guarantees full
// teardown on deactivation or failure.
type Manager struct {
	mu sync.RWMutex

	loader *Loader
	deps   Deps
	logger *slog.Logger

	// Hosts by plugin id, plus add order for deterministic iteration.
	plugins  map[string]*Host
	addOrder []string
}

// NewManager creates a plugin manager over the given host services.
func NewManager(loader *Loader, deps Deps) *Manager {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		loader:  loader,
		deps:    deps,
		logger:  logger,
		plugins: make(map[string]*Host),
	}
}

// Add registers a plugin from its manifest without activating it.
func (m *Manager) Add(manifest *Manifest) (*Host, error) {
	host, err := NewHost(manifest, m.deps)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.plugins[manifest.ID]; exists {
		return nil, fmt.Errorf("plugin %q: %w", manifest.ID, ErrAlreadyAdded)
	}
	m.plugins[manifest.ID] = host
	m.addOrder = append(m.addOrder, manifest.ID)
	return host, nil
}

// AddDiscovered discovers plugins through the loader and adds every
// valid one. Invalid plugins are reported, not fatal.
func (m *Manager) AddDiscovered() error {
	infos, err := m.loader.Discover()
	if err != nil {
		return err
	}

	var addErrors []error
	for _, info := range infos {
		if info.Err != nil {
			addErrors = append(addErrors, fmt.Errorf("%s: %w", info.ID, info.Err))
			continue
		}
		if _, err := m.Add(info.Manifest); err != nil {
			addErrors = append(addErrors, err)
		}
	}
	if len(addErrors) > 0 {
		return fmt.Errorf("failed to add %d plugins: %w", len(addErrors), errors.Join(addErrors...))
	}
	return nil
}

// Activate activates an added plugin. Activating an already-active id
// is rejected; a failed plugin may be activated again.
func (m *Manager) Activate(ctx context.Context, id string) error {
	host, err := m.get(id)
	if err != nil {
		return err
	}
	return host.Activate(ctx)
}

// ActivateAll activates every added plugin in add order. One plugin's
// activation failure never prevents the others from activating.
func (m *Manager) ActivateAll(ctx context.Context) error {
	var activateErrors []error
	for _, id := range m.ids(false) {
		if err := m.Activate(ctx, id); err != nil {
			activateErrors = append(activateErrors, err)
		}
	}
	if len(activateErrors) > 0 {
		return fmt.Errorf("failed to activate %d plugins: %w", len(activateErrors), errors.Join(activateErrors...))
	}
	return nil
}

// Deactivate deactivates an active plugin, unwinding all of its
// registrations and subscriptions.
func (m *Manager) Deactivate(id string) error {
	host, err := m.get(id)
	if err != nil {
		return err
	}
	return host.Deactivate()
}

// DeactivateAll deactivates all active plugins in reverse add order.
func (m *Manager) DeactivateAll() {
	for _, id := range m.ids(true) {
		host, err := m.get(id)
		if err != nil {
			continue
		}
		if host.State() != StateActive {
			continue
		}
		if err := host.Deactivate(); err != nil {
			m.logger.Warn("deactivate failed", "plugin", id, "error", err)
		}
	}
}

// Remove deactivates a plugin if needed and forgets it entirely, also
// dropping its ephemeral state. Durable settings are kept.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	host, exists := m.plugins[id]
	if !exists {
		m.mu.Unlock()
		return fmt.Errorf("plugin %q: %w", id, ErrPluginNotFound)
	}
	delete(m.plugins, id)
	for i, n := range m.addOrder {
		if n == id {
			m.addOrder = append(m.addOrder[:i], m.addOrder[i+1:]...)
			break
		}
	}
	m.mu.Unlock()

	if host.State() == StateActive {
		if err := host.Deactivate(); err != nil {
			m.logger.Warn("deactivate on remove failed", "plugin", id, "error", err)
		}
	}
	m.deps.Store.DropState(id)
	return nil
}

// Reload deactivates a plugin, reloads its manifest from disk, and
// re-activates it if it was active. New permission declarations take
// effect because activation always re-normalizes the manifest.
func (m *Manager) Reload(ctx context.Context, id string) error {
	host, err := m.get(id)
	if err != nil {
		return err
	}

	wasActive := host.State() == StateActive
	if wasActive {
		if err := host.Deactivate(); err != nil {
			return fmt.Errorf("reload deactivate failed: %w", err)
		}
	}

	manifest, err := LoadManifestFromDir(host.Manifest().Path())
	if err != nil {
		// Single-file plugins have no manifest on disk; keep the old one.
		manifest = host.Manifest()
	}
	if manifest.ID != id {
		return fmt.Errorf("plugin %q: manifest id changed to %q on reload", id, manifest.ID)
	}

	fresh, err := NewHost(manifest, m.deps)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.plugins[id] = fresh
	m.mu.Unlock()

	if wasActive {
		return fresh.Activate(ctx)
	}
	return nil
}

// Get returns a plugin host by id.
func (m *Manager) Get(id string) (*Host, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	host, exists := m.plugins[id]
	return host, exists
}

// List returns all hosts in add order.
func (m *Manager) List() []*Host {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Host, 0, len(m.addOrder))
	for _, id := range m.addOrder {
		if host, exists := m.plugins[id]; exists {
			result = append(result, host)
		}
	}
	return result
}

// ListActive returns all active hosts in add order.
func (m *Manager) ListActive() []*Host {
	var result []*Host
	for _, host := range m.List() {
		if host.State() == StateActive {
			result = append(result, host)
		}
	}
	return result
}

// Count returns the number of added plugins.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.plugins)
}

// CountActive returns the number of active plugins.
func (m *Manager) CountActive() int {
	return len(m.ListActive())
}

// Stats returns per-plugin statistics in add order.
func (m *Manager) Stats() []HostStats {
	hosts := m.List()
	stats := make([]HostStats, 0, len(hosts))
	for _, host := range hosts {
		stats = append(stats, host.Stats())
	}
	return stats
}

// Errors returns the activation errors of all failed plugins.
func (m *Manager) Errors() map[string]error {
	errs := make(map[string]error)
	for _, host := range m.List() {
		if host.State() == StateFailed && host.Err() != nil {
			errs[host.ID()] = host.Err()
		}
	}
	return errs
}

func (m *Manager) get(id string) (*Host, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	host, exists := m.plugins[id]
	if !exists {
		return nil, fmt.Errorf("plugin %q: %w", id, ErrPluginNotFound)
	}
	return host, nil
}

// ids returns plugin ids in add order, or reversed.
func (m *Manager) ids(reverse bool) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, len(m.addOrder))
	if reverse {
		for i, id := range m.addOrder {
			ids[len(m.addOrder)-1-i] = id
		}
	} else {
		copy(ids, m.addOrder)
	}
	return ids
}
