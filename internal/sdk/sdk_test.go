package sdk

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/treelinehq/treeline/internal/currency"
	"github.com/treelinehq/treeline/internal/db"
	"github.com/treelinehq/treeline/internal/plugin/permission"
	"github.com/treelinehq/treeline/internal/plugin/sqlguard"
	"github.com/treelinehq/treeline/internal/refresh"
	"github.com/treelinehq/treeline/internal/registry"
	"github.com/treelinehq/treeline/internal/shortcut"
	"github.com/treelinehq/treeline/internal/storage"
)

type testHost struct {
	engine *db.Engine
	store  *storage.Store
	bus    *refresh.Bus
	reg    *registry.Registry
	theme  *ThemeSource
	logger *slog.Logger
}

func newTestHost(t *testing.T) *testHost {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	engine, err := db.Open(filepath.Join(t.TempDir(), "treeline.db"))
	if err != nil {
		t.Fatalf("db.Open() error = %v", err)
	}
	t.Cleanup(func() { engine.Close() })
	if err := engine.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	store, err := storage.New(engine.DB())
	if err != nil {
		t.Fatalf("storage.New() error = %v", err)
	}

	return &testHost{
		engine: engine,
		store:  store,
		bus:    refresh.NewBus(logger),
		reg:    registry.New(logger),
		theme:  NewThemeSource(ThemeLight),
		logger: logger,
	}
}

func (h *testHost) sdkFor(t *testing.T, pluginID string, scopes permission.TableScopes) *SDK {
	t.Helper()
	grant, err := permission.Normalize(pluginID, &permission.Declaration{Tables: scopes})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	h.reg.Enable(pluginID)
	return New(Options{
		PluginID: pluginID,
		Grant:    grant,
		Engine:   h.engine,
		Store:    h.store,
		Bus:      h.bus,
		Registry: h.reg,
		Theme:    h.theme,
		Platform: shortcut.PlatformMac,
		Currency: currency.NewFormatter("USD"),
		Logger:   h.logger,
	})
}

func TestQueryEnforcesReadScope(t *testing.T) {
	host := newTestHost(t)
	s := host.sdkFor(t, "budget", permission.TableScopes{Read: []string{"transactions"}})
	ctx := context.Background()

	if _, err := s.Query(ctx, "SELECT * FROM transactions"); err != nil {
		t.Errorf("granted query denied: %v", err)
	}

	_, err := s.Query(ctx, "SELECT * FROM accounts")
	var denied *sqlguard.PermissionDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("error = %v, want *PermissionDeniedError", err)
	}
	if denied.Table != "accounts" || denied.Kind != sqlguard.KindRead {
		t.Errorf("denial = %+v", denied)
	}
}

func TestExecuteEnforcesWriteScopeAndNamespace(t *testing.T) {
	host := newTestHost(t)
	s := host.sdkFor(t, "goals", permission.TableScopes{
		Write:  []string{"sys_plugin_goals_items"},
		Create: []string{"sys_plugin_goals_items"},
	})
	ctx := context.Background()

	if _, err := s.Execute(ctx, "CREATE TABLE sys_plugin_goals_items (id INTEGER PRIMARY KEY, name TEXT)"); err != nil {
		t.Fatalf("namespaced CREATE denied: %v", err)
	}

	n, err := s.Execute(ctx, "INSERT INTO sys_plugin_goals_items (name) VALUES ('vacation')")
	if err != nil {
		t.Fatalf("namespaced INSERT denied: %v", err)
	}
	if n != 1 {
		t.Errorf("rows affected = %d, want 1", n)
	}

	if _, err := s.Execute(ctx, "DROP TABLE transactions"); err == nil {
		t.Error("DROP on a host table must be denied")
	}

	// The denied statement had no side effect.
	rows, err := host.engine.Query(ctx, "SELECT COUNT(*) AS n FROM sqlite_master WHERE name = 'transactions'")
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if n, _ := rows[0]["n"].(int64); n != 1 {
		t.Error("transactions table should still exist")
	}
}

func TestExecuteDeniedBeforeEngine(t *testing.T) {
	host := newTestHost(t)
	s := host.sdkFor(t, "budget", permission.TableScopes{Read: []string{"transactions"}})
	ctx := context.Background()

	if _, err := s.Execute(ctx, "DELETE FROM transactions"); err == nil {
		t.Fatal("ungranted DELETE must be denied")
	}

	// Host-seeded data is untouched.
	if err := host.engine.SeedDemo(ctx, "default"); err != nil {
		t.Fatalf("SeedDemo() error = %v", err)
	}
	if _, err := s.Execute(ctx, "DELETE FROM transactions"); err == nil {
		t.Fatal("ungranted DELETE must be denied")
	}
	rows, err := host.engine.Query(ctx, "SELECT COUNT(*) AS n FROM transactions")
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if n, _ := rows[0]["n"].(int64); n == 0 {
		t.Error("denied DELETE removed rows")
	}
}

func TestSettingsScopedToPlugin(t *testing.T) {
	host := newTestHost(t)
	budget := host.sdkFor(t, "budget", permission.TableScopes{})
	goals := host.sdkFor(t, "goals", permission.TableScopes{})

	if err := budget.SaveSettings(map[string]int{"x": 1}); err != nil {
		t.Fatalf("SaveSettings() error = %v", err)
	}

	var got map[string]int
	if err := budget.Settings(&got); err != nil {
		t.Fatalf("Settings() error = %v", err)
	}
	if got["x"] != 1 {
		t.Errorf("Settings() = %v", got)
	}

	var other map[string]int
	if err := goals.Settings(&other); err != nil {
		t.Fatalf("Settings() error = %v", err)
	}
	if len(other) != 0 {
		t.Errorf("goals observed budget settings: %v", other)
	}
}

func TestStateFirstReadIsMiss(t *testing.T) {
	host := newTestHost(t)
	s := host.sdkFor(t, "budget", permission.TableScopes{})

	var v map[string]any
	ok, err := s.State(&v)
	if err != nil {
		t.Fatalf("State() error = %v", err)
	}
	if ok {
		t.Error("first read should be a miss")
	}

	if err := s.SaveState(map[string]int{"scroll": 42}); err != nil {
		t.Fatalf("SaveState() error = %v", err)
	}
	var got map[string]int
	ok, err = s.State(&got)
	if err != nil || !ok || got["scroll"] != 42 {
		t.Errorf("State() = (%v, %v, %v)", got, ok, err)
	}
}

func TestOpenViewResolvesOwnNamespace(t *testing.T) {
	host := newTestHost(t)
	s := host.sdkFor(t, "budget", permission.TableScopes{})

	opened := false
	if err := s.RegisterView(registry.ViewDefinition{ID: "main", OnOpen: func(map[string]any) { opened = true }}); err != nil {
		t.Fatalf("RegisterView() error = %v", err)
	}

	if err := s.OpenView("main", nil); err != nil {
		t.Fatalf("OpenView() error = %v", err)
	}
	if !opened {
		t.Error("own view not opened")
	}

	err := s.OpenView("missing", nil)
	var notFound *registry.ViewNotFoundError
	if !errors.As(err, &notFound) {
		t.Errorf("error = %v, want *ViewNotFoundError", err)
	}
}

func TestCloseUnwindsSubscriptions(t *testing.T) {
	host := newTestHost(t)
	s := host.sdkFor(t, "budget", permission.TableScopes{})

	var refreshes, themes int
	s.OnDataRefresh(func() { refreshes++ })
	s.ThemeSubscribe(func(Theme) { themes++ })

	s.Close()
	s.Close() // idempotent

	host.bus.Publish()
	host.theme.Set(ThemeDark)

	if refreshes != 0 || themes != 0 {
		t.Errorf("closed SDK still notified: refreshes=%d themes=%d", refreshes, themes)
	}

	if _, err := s.Query(context.Background(), "SELECT 1"); !errors.Is(err, ErrClosed) {
		t.Errorf("Query() after Close error = %v, want ErrClosed", err)
	}
}

func TestEmitDataRefreshReachesOtherPlugins(t *testing.T) {
	host := newTestHost(t)
	a := host.sdkFor(t, "a", permission.TableScopes{})
	b := host.sdkFor(t, "b", permission.TableScopes{})

	var got int
	b.OnDataRefresh(func() { got++ })

	a.EmitDataRefresh()
	if got != 1 {
		t.Errorf("deliveries = %d, want 1", got)
	}
}

func TestShortcutHelpers(t *testing.T) {
	host := newTestHost(t)
	s := host.sdkFor(t, "budget", permission.TableScopes{})

	if s.ModKey() != "Cmd" {
		t.Errorf("ModKey() = %q, want Cmd", s.ModKey())
	}
	if got := s.FormatShortcut("mod+shift+b"); got != "Cmd+Shift+B" {
		t.Errorf("FormatShortcut() = %q", got)
	}
}
