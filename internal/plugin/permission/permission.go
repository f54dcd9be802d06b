// Package permission normalizes a plugin manifest's declared table scopes
// into an immutable, enforceable grant set.
package permission

import (
	"fmt"
	"sort"
)

// Declaration is the permissions block of a plugin manifest.
type Declaration struct {
	Tables TableScopes `json:"tables"`
}

// TableScopes lists the tables a plugin requests access to.
// Table names are case-sensitive. Absent fields default to empty.
type TableScopes struct {
	Read   []string `json:"read"`
	Write  []string `json:"write"`
	Create []string `json:"create"`
}

// CreatePrefix returns the table-name prefix a plugin's own tables must use.
func CreatePrefix(pluginID string) string {
	return "sys_plugin_" + pluginID + "_"
}

// Grant is a normalized permission set derived from a manifest declaration.
// A Grant is immutable after Normalize; re-activation re-normalizes from the
// manifest rather than mutating a cached grant.
type Grant struct {
	pluginID string
	read     map[string]bool
	write    map[string]bool
	create   map[string]bool
}

// InvalidPermissionError reports a manifest permission entry that failed
// validation. It is fatal to that plugin's activation.
type InvalidPermissionError struct {
	PluginID string
	Scope    string // "read", "write", or "create"
	Table    string
	Reason   string
}

func (e *InvalidPermissionError) Error() string {
	return fmt.Sprintf("plugin %q: invalid %s permission %q: %s", e.PluginID, e.Scope, e.Table, e.Reason)
}

// Normalize validates a declaration and produces a grant for the plugin.
// A nil declaration yields an all-empty grant (deny by default).
//
// Every create entry must be namespaced under the plugin's own prefix
// (sys_plugin_<id>_); a violating entry fails normalization at load time.
func Normalize(pluginID string, decl *Declaration) (*Grant, error) {
	g := &Grant{
		pluginID: pluginID,
		read:     make(map[string]bool),
		write:    make(map[string]bool),
		create:   make(map[string]bool),
	}
	if decl == nil {
		return g, nil
	}

	if err := normalizeScope(pluginID, "read", decl.Tables.Read, g.read); err != nil {
		return nil, err
	}
	if err := normalizeScope(pluginID, "write", decl.Tables.Write, g.write); err != nil {
		return nil, err
	}
	if err := normalizeScope(pluginID, "create", decl.Tables.Create, g.create); err != nil {
		return nil, err
	}

	prefix := CreatePrefix(pluginID)
	for table := range g.create {
		if len(table) <= len(prefix) || table[:len(prefix)] != prefix {
			return nil, &InvalidPermissionError{
				PluginID: pluginID,
				Scope:    "create",
				Table:    table,
				Reason:   fmt.Sprintf("must be namespaced under %s*", prefix),
			}
		}
	}

	return g, nil
}

// normalizeScope deduplicates entries into dst, rejecting empty names.
func normalizeScope(pluginID, scope string, entries []string, dst map[string]bool) error {
	for _, table := range entries {
		if table == "" {
			return &InvalidPermissionError{
				PluginID: pluginID,
				Scope:    scope,
				Table:    table,
				Reason:   "table name must not be empty",
			}
		}
		dst[table] = true
	}
	return nil
}

// PluginID returns the id of the plugin the grant belongs to.
func (g *Grant) PluginID() string {
	return g.pluginID
}

// CanRead reports whether the grant allows reading the table.
func (g *Grant) CanRead(table string) bool {
	return g.read[table]
}

// CanWrite reports whether the grant allows INSERT/UPDATE/DELETE on the table.
// Write does not imply read.
func (g *Grant) CanWrite(table string) bool {
	return g.write[table]
}

// CanCreate reports whether the grant allows DDL on the table.
func (g *Grant) CanCreate(table string) bool {
	return g.create[table]
}

// ReadTables returns the granted read tables in sorted order.
func (g *Grant) ReadTables() []string {
	return sortedKeys(g.read)
}

// WriteTables returns the granted write tables in sorted order.
func (g *Grant) WriteTables() []string {
	return sortedKeys(g.write)
}

// CreateTables returns the granted create tables in sorted order.
func (g *Grant) CreateTables() []string {
	return sortedKeys(g.create)
}

// IsEmpty reports whether the grant allows nothing.
func (g *Grant) IsEmpty() bool {
	return len(g.read) == 0 && len(g.write) == 0 && len(g.create) == 0
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
