// Package registry accumulates the UI contributions plugins make during
// activation: sidebar sections and items, views, and commands. Records are
// namespaced internally by (plugin id, record id), so two plugins may pick
// the same short id without colliding, while the host-facing identity stays
// globally unique.
package registry

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// SidebarSection groups sidebar items under a heading.
type SidebarSection struct {
	ID    string
	Title string
	Order int
}

// SidebarItem is a clickable sidebar entry, usually opening a view.
type SidebarItem struct {
	ID        string
	SectionID string
	Title     string
	Icon      string
	ViewID    string
}

// ViewDefinition is a mountable surface contributed by a plugin. OnOpen is
// the plugin-supplied mount callback; the registry invokes it with panic
// containment so a broken view cannot take the host down.
type ViewDefinition struct {
	ID     string
	Title  string
	OnOpen func(props map[string]any)
}

// Command is an invokable action, optionally bound to a shortcut.
type Command struct {
	ID       string
	Title    string
	Shortcut string
	Run      func()
}

// Kind names a registration record type in errors and diagnostics.
type Kind string

// Registration kinds.
const (
	KindSection Kind = "sidebar-section"
	KindItem    Kind = "sidebar-item"
	KindView    Kind = "view"
	KindCommand Kind = "command"
)

// DuplicateIDError reports a second registration of the same id by the
// same plugin for the same kind. The registration call is refused; the
// first record stays.
type DuplicateIDError struct {
	PluginID string
	Kind     Kind
	ID       string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("plugin %q: duplicate %s id %q", e.PluginID, e.Kind, e.ID)
}

// ViewNotFoundError reports an OpenView call for an unknown view id.
// Opening a missing view is a no-op, not a crash.
type ViewNotFoundError struct {
	ViewID string
}

func (e *ViewNotFoundError) Error() string {
	return fmt.Sprintf("view %q not found", e.ViewID)
}

// ErrPluginInactive is returned for registrations submitted outside the
// plugin's active window (before activation or after deactivation).
var ErrPluginInactive = fmt.Errorf("registry: plugin is not active")

type recordKey struct {
	pluginID string
	id       string
}

// QualifiedID is the host-facing, globally unique identity of a record.
func QualifiedID(pluginID, id string) string {
	return pluginID + "." + id
}

// Registry is the shared registration store. All mutation happens under a
// single lock; registrations are only accepted while the contributing
// plugin is marked active.
type Registry struct {
	mu sync.Mutex

	active   map[string]bool
	sections map[recordKey]SidebarSection
	items    map[recordKey]SidebarItem
	views    map[recordKey]ViewDefinition
	commands map[recordKey]Command
	badges   map[string]*int

	// order preserves registration order per kind for deterministic listing.
	order map[Kind][]recordKey

	logger *slog.Logger
}

// New creates an empty registry. A nil logger falls back to slog.Default.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		active:   make(map[string]bool),
		sections: make(map[recordKey]SidebarSection),
		items:    make(map[recordKey]SidebarItem),
		views:    make(map[recordKey]ViewDefinition),
		commands: make(map[recordKey]Command),
		badges:   make(map[string]*int),
		order:    make(map[Kind][]recordKey),
		logger:   logger,
	}
}

// Enable opens the registration window for a plugin. Called by the
// lifecycle controller when activation begins.
func (r *Registry) Enable(pluginID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[pluginID] = true
}

// RemovePlugin closes the plugin's registration window and removes every
// record it contributed, leaving other plugins' registrations untouched.
func (r *Registry) RemovePlugin(pluginID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.active, pluginID)
	delete(r.badges, pluginID)
	for key := range r.sections {
		if key.pluginID == pluginID {
			delete(r.sections, key)
		}
	}
	for key := range r.items {
		if key.pluginID == pluginID {
			delete(r.items, key)
		}
	}
	for key := range r.views {
		if key.pluginID == pluginID {
			delete(r.views, key)
		}
	}
	for key := range r.commands {
		if key.pluginID == pluginID {
			delete(r.commands, key)
		}
	}
	for kind, keys := range r.order {
		kept := keys[:0]
		for _, key := range keys {
			if key.pluginID != pluginID {
				kept = append(kept, key)
			}
		}
		r.order[kind] = kept
	}
}

// RegisterSidebarSection adds a sidebar section for the plugin.
func (r *Registry) RegisterSidebarSection(pluginID string, section SidebarSection) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key, err := r.admit(pluginID, KindSection, section.ID, func(k recordKey) bool {
		_, dup := r.sections[k]
		return dup
	})
	if err != nil {
		return err
	}
	r.sections[key] = section
	return nil
}

// RegisterSidebarItem adds a sidebar item for the plugin.
func (r *Registry) RegisterSidebarItem(pluginID string, item SidebarItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key, err := r.admit(pluginID, KindItem, item.ID, func(k recordKey) bool {
		_, dup := r.items[k]
		return dup
	})
	if err != nil {
		return err
	}
	r.items[key] = item
	return nil
}

// RegisterView adds a view definition for the plugin.
func (r *Registry) RegisterView(pluginID string, view ViewDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key, err := r.admit(pluginID, KindView, view.ID, func(k recordKey) bool {
		_, dup := r.views[k]
		return dup
	})
	if err != nil {
		return err
	}
	r.views[key] = view
	return nil
}

// RegisterCommand adds a command for the plugin.
func (r *Registry) RegisterCommand(pluginID string, cmd Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key, err := r.admit(pluginID, KindCommand, cmd.ID, func(k recordKey) bool {
		_, dup := r.commands[k]
		return dup
	})
	if err != nil {
		return err
	}
	r.commands[key] = cmd
	return nil
}

// admit validates a registration attempt. Caller holds the lock.
func (r *Registry) admit(pluginID string, kind Kind, id string, dup func(recordKey) bool) (recordKey, error) {
	if !r.active[pluginID] {
		return recordKey{}, fmt.Errorf("%w: %s %q from plugin %q", ErrPluginInactive, kind, id, pluginID)
	}
	if id == "" {
		return recordKey{}, fmt.Errorf("registry: %s id must not be empty (plugin %q)", kind, pluginID)
	}
	key := recordKey{pluginID: pluginID, id: id}
	if dup(key) {
		return recordKey{}, &DuplicateIDError{PluginID: pluginID, Kind: kind, ID: id}
	}
	r.order[kind] = append(r.order[kind], key)
	return key, nil
}

// OpenView opens a view by qualified id ("plugin.view"). For a caller's own
// plugin, the sdk resolves short ids before reaching here. An unknown id is
// a no-op plus a ViewNotFoundError; a panicking mount callback is contained
// and reported.
func (r *Registry) OpenView(qualifiedID string, props map[string]any) error {
	r.mu.Lock()
	var found *ViewDefinition
	for key, view := range r.views {
		if QualifiedID(key.pluginID, key.id) == qualifiedID {
			v := view
			found = &v
			break
		}
	}
	r.mu.Unlock()

	if found == nil {
		return &ViewNotFoundError{ViewID: qualifiedID}
	}
	if found.OnOpen == nil {
		return nil
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("view mount callback panicked", "view", qualifiedID, "panic", rec)
		}
	}()
	found.OnOpen(props)
	return nil
}

// HasView reports whether a qualified view id exists.
func (r *Registry) HasView(qualifiedID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key := range r.views {
		if QualifiedID(key.pluginID, key.id) == qualifiedID {
			return true
		}
	}
	return false
}

// UpdateBadge sets a plugin's sidebar badge count. A nil count clears it.
func (r *Registry) UpdateBadge(pluginID string, count *int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if count == nil {
		delete(r.badges, pluginID)
		return
	}
	c := *count
	r.badges[pluginID] = &c
}

// Badge returns a plugin's current badge count, if set.
func (r *Registry) Badge(pluginID string) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.badges[pluginID]; ok {
		return *c, true
	}
	return 0, false
}

// RegisteredSection pairs a section with its contributing plugin.
type RegisteredSection struct {
	PluginID string
	Section  SidebarSection
}

// Sections lists all sidebar sections, ordered by Order then qualified id.
func (r *Registry) Sections() []RegisteredSection {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]RegisteredSection, 0, len(r.sections))
	for _, key := range r.order[KindSection] {
		if section, ok := r.sections[key]; ok {
			out = append(out, RegisteredSection{PluginID: key.pluginID, Section: section})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Section.Order != out[j].Section.Order {
			return out[i].Section.Order < out[j].Section.Order
		}
		return QualifiedID(out[i].PluginID, out[i].Section.ID) < QualifiedID(out[j].PluginID, out[j].Section.ID)
	})
	return out
}

// RegisteredItem pairs a sidebar item with its contributing plugin.
type RegisteredItem struct {
	PluginID string
	Item     SidebarItem
}

// Items lists all sidebar items in registration order.
func (r *Registry) Items() []RegisteredItem {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]RegisteredItem, 0, len(r.items))
	for _, key := range r.order[KindItem] {
		if item, ok := r.items[key]; ok {
			out = append(out, RegisteredItem{PluginID: key.pluginID, Item: item})
		}
	}
	return out
}

// RegisteredCommand pairs a command with its contributing plugin.
type RegisteredCommand struct {
	PluginID string
	Command  Command
}

// Commands lists all commands in registration order.
func (r *Registry) Commands() []RegisteredCommand {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]RegisteredCommand, 0, len(r.commands))
	for _, key := range r.order[KindCommand] {
		if cmd, ok := r.commands[key]; ok {
			out = append(out, RegisteredCommand{PluginID: key.pluginID, Command: cmd})
		}
	}
	return out
}

// ViewIDs lists all qualified view ids in registration order.
func (r *Registry) ViewIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.views))
	for _, key := range r.order[KindView] {
		if _, ok := r.views[key]; ok {
			out = append(out, QualifiedID(key.pluginID, key.id))
		}
	}
	return out
}
