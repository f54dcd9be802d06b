// Package sdk is the host API surface handed to one plugin instance. An
// SDK is constructed by the plugin manager, bound to that plugin's id and
// normalized grant, and torn down with the plugin. Every SQL string passes
// the capability enforcer before it can reach the engine; storage is
// scoped to the plugin id; bus and theme subscriptions are tracked so
// deactivation unwinds them even when the plugin does not.
package sdk

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/treelinehq/treeline/internal/currency"
	"github.com/treelinehq/treeline/internal/db"
	"github.com/treelinehq/treeline/internal/plugin/permission"
	"github.com/treelinehq/treeline/internal/plugin/sqlguard"
	"github.com/treelinehq/treeline/internal/refresh"
	"github.com/treelinehq/treeline/internal/registry"
	"github.com/treelinehq/treeline/internal/shortcut"
	"github.com/treelinehq/treeline/internal/storage"
)

// ErrClosed is returned for calls on an SDK after its plugin was
// deactivated.
var ErrClosed = errors.New("sdk: plugin instance is closed")

// Options wires an SDK instance to the host subsystems.
type Options struct {
	PluginID string
	Grant    *permission.Grant
	Engine   *db.Engine
	Store    *storage.Store
	Bus      *refresh.Bus
	Registry *registry.Registry
	Toasts   ToastSink
	Theme    *ThemeSource
	Platform shortcut.Platform
	Currency *currency.Formatter
	Logger   *slog.Logger
}

// SDK is one plugin's view of the host.
type SDK struct {
	pluginID string
	grant    *permission.Grant
	engine   *db.Engine
	scoped   *storage.Scoped
	bus      *refresh.Bus
	registry *registry.Registry
	toasts   ToastSink
	theme    *ThemeSource
	platform shortcut.Platform
	currency *currency.Formatter
	logger   *slog.Logger

	// callMu serializes this instance's SQL calls so two Execute calls
	// issued in sequence apply in issuance order. No cross-plugin ordering
	// is implied.
	callMu sync.Mutex

	mu     sync.Mutex
	unsubs []func()
	closed bool
}

// New builds the SDK instance for one plugin.
func New(opts Options) *SDK {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	toasts := opts.Toasts
	if toasts == nil {
		toasts = &LogToastSink{Logger: logger}
	}
	cur := opts.Currency
	if cur == nil {
		cur = currency.NewFormatter("USD")
	}
	return &SDK{
		pluginID: opts.PluginID,
		grant:    opts.Grant,
		engine:   opts.Engine,
		scoped:   opts.Store.Scoped(opts.PluginID),
		bus:      opts.Bus,
		registry: opts.Registry,
		toasts:   toasts,
		theme:    opts.Theme,
		platform: opts.Platform,
		currency: cur,
		logger:   logger.With("plugin", opts.PluginID),
	}
}

// PluginID returns the owning plugin's id.
func (s *SDK) PluginID() string {
	return s.pluginID
}

// Query runs a read-only statement. The statement is classified and
// checked against the grant's read scope before any part of it executes;
// denial means nothing ran and no row is returned.
func (s *SDK) Query(ctx context.Context, sql string) ([]map[string]any, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	if err := sqlguard.AuthorizeQuery(s.grant, sql); err != nil {
		s.logger.Warn("query denied", "error", err)
		return nil, err
	}

	s.callMu.Lock()
	defer s.callMu.Unlock()
	return s.engine.Query(ctx, sql)
}

// Execute runs a write or DDL statement under the grant's write/create
// scopes and returns the affected-row count unchanged. On denial the
// statement never reaches the engine, so there are no partial effects and
// no affected-row count.
func (s *SDK) Execute(ctx context.Context, sql string) (int64, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	if err := sqlguard.AuthorizeExecute(s.grant, sql); err != nil {
		s.logger.Warn("execute denied", "error", err)
		return 0, err
	}

	s.callMu.Lock()
	defer s.callMu.Unlock()
	return s.engine.Execute(ctx, sql)
}

// Toast raises a toast notification.
func (s *SDK) Toast(level ToastLevel, message, description string) {
	s.toasts.Show(level, message, description)
}

// OpenView opens a registered view. A bare id refers to this plugin's own
// views; a qualified "plugin.view" id may target any plugin. Opening a
// missing view is a no-op and returns ViewNotFoundError.
func (s *SDK) OpenView(viewID string, props map[string]any) error {
	if err := s.check(); err != nil {
		return err
	}
	qualified := viewID
	if !strings.Contains(viewID, ".") {
		qualified = registry.QualifiedID(s.pluginID, viewID)
	}
	err := s.registry.OpenView(qualified, props)
	if err != nil {
		s.logger.Warn("open view failed", "view", qualified, "error", err)
	}
	return err
}

// OnDataRefresh subscribes to the data-refresh bus. The subscription is
// owned by this plugin and removed on deactivation; the returned
// unsubscribe is an idempotent no-op after the first call.
func (s *SDK) OnDataRefresh(fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return func() {}
	}
	unsub := s.bus.Subscribe(s.pluginID, fn)
	s.unsubs = append(s.unsubs, unsub)
	return unsub
}

// EmitDataRefresh announces that underlying data changed.
func (s *SDK) EmitDataRefresh() {
	if err := s.check(); err != nil {
		return
	}
	s.bus.Publish()
}

// UpdateBadge sets this plugin's sidebar badge; nil clears it.
func (s *SDK) UpdateBadge(count *int) {
	if err := s.check(); err != nil {
		return
	}
	s.registry.UpdateBadge(s.pluginID, count)
}

// ThemeCurrent returns the active host theme.
func (s *SDK) ThemeCurrent() Theme {
	return s.theme.Current()
}

// ThemeSubscribe registers a theme-change callback, unwound at
// deactivation like bus subscriptions.
func (s *SDK) ThemeSubscribe(fn func(Theme)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return func() {}
	}
	unsub := s.theme.Subscribe(fn)
	s.unsubs = append(s.unsubs, unsub)
	return unsub
}

// ModKey returns the platform's primary modifier label.
func (s *SDK) ModKey() string {
	return shortcut.ModKey(s.platform)
}

// FormatShortcut renders a shortcut string for the current platform.
func (s *SDK) FormatShortcut(sc string) string {
	return shortcut.Format(s.platform, sc)
}

// Currency returns the host currency formatter.
func (s *SDK) Currency() *currency.Formatter {
	return s.currency
}

// Settings decodes this plugin's durable settings into v. A plugin with
// no stored settings decodes an empty object.
func (s *SDK) Settings(v any) error {
	data, err := s.scoped.Settings()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// SaveSettings stores v as this plugin's settings document.
func (s *SDK) SaveSettings(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return &storage.StorageError{PluginID: s.pluginID, Op: "encode settings", Err: err}
	}
	return s.scoped.SetSettings(data)
}

// SettingsField reads one settings field by path without decoding the
// whole document.
func (s *SDK) SettingsField(path string) (gjson.Result, error) {
	return s.scoped.SettingsField(path)
}

// SetSettingsField updates one settings field by path.
func (s *SDK) SetSettingsField(path string, value any) error {
	return s.scoped.SetSettingsField(path, value)
}

// State decodes this plugin's ephemeral state into v. ok=false means no
// state has been written since host start; that is an expected first-read
// result, not an error.
func (s *SDK) State(v any) (bool, error) {
	data, ok := s.scoped.State()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, &storage.StorageError{PluginID: s.pluginID, Op: "decode state", Err: err}
	}
	return true, nil
}

// SaveState stores v as this plugin's ephemeral state.
func (s *SDK) SaveState(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return &storage.StorageError{PluginID: s.pluginID, Op: "encode state", Err: err}
	}
	return s.scoped.SetState(data)
}

// RegisterSidebarSection contributes a sidebar section. Valid only while
// the plugin is active.
func (s *SDK) RegisterSidebarSection(section registry.SidebarSection) error {
	return s.registry.RegisterSidebarSection(s.pluginID, section)
}

// RegisterSidebarItem contributes a sidebar item.
func (s *SDK) RegisterSidebarItem(item registry.SidebarItem) error {
	return s.registry.RegisterSidebarItem(s.pluginID, item)
}

// RegisterView contributes a view definition.
func (s *SDK) RegisterView(view registry.ViewDefinition) error {
	return s.registry.RegisterView(s.pluginID, view)
}

// RegisterCommand contributes a command.
func (s *SDK) RegisterCommand(cmd registry.Command) error {
	return s.registry.RegisterCommand(s.pluginID, cmd)
}

// Close tears the instance down: all bus and theme subscriptions are
// unwound and further calls fail with ErrClosed. Close is idempotent.
func (s *SDK) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	unsubs := s.unsubs
	s.unsubs = nil
	s.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
}

func (s *SDK) check() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}
