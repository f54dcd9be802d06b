// Package storage persists per-plugin settings and holds per-plugin
// ephemeral state. Every key is implicitly (plugin id, logical key): a
// plugin reaches its own namespace through a Scoped handle and has no API
// to address another plugin's data.
//
// Settings are durable across host restarts (SQLite-backed); state is
// in-memory and dropped on restart, which callers must treat as a normal
// first-read condition, not an error.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const settingsSchema = `
CREATE TABLE IF NOT EXISTS plugin_settings (
	plugin_id TEXT PRIMARY KEY,
	data TEXT NOT NULL,
	updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);
`

// StorageError reports an I/O or encoding failure on settings or state.
// It is recoverable: the call is rejected, the host stays up.
type StorageError struct {
	PluginID string
	Op       string
	Err      error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("plugin %q: storage %s: %v", e.PluginID, e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// ErrInvalidJSON rejects settings or state payloads that are not valid
// JSON documents.
var ErrInvalidJSON = errors.New("storage: payload is not valid JSON")

// Store is the host-wide storage backend. Concurrent writers to one
// plugin's settings serialize so the last completed write wins and no
// write is partially applied.
type Store struct {
	db *sql.DB

	mu    sync.Mutex
	state map[string][]byte
}

// New creates a store over the given database, creating its table if
// needed.
func New(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(settingsSchema); err != nil {
		return nil, fmt.Errorf("storage: init schema: %w", err)
	}
	return &Store{
		db:    db,
		state: make(map[string][]byte),
	}, nil
}

// Scoped returns the storage handle for one plugin. The handle can only
// address that plugin's namespace.
func (s *Store) Scoped(pluginID string) *Scoped {
	return &Scoped{store: s, pluginID: pluginID}
}

// DropState discards a plugin's ephemeral state, as on deactivation of a
// failed plugin. Settings are left intact.
func (s *Store) DropState(pluginID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.state, pluginID)
}

// Scoped is a plugin-bound view of the store.
type Scoped struct {
	store    *Store
	pluginID string
}

// PluginID returns the owning plugin id.
func (sc *Scoped) PluginID() string {
	return sc.pluginID
}

// Settings returns the plugin's settings document. A plugin that has
// never stored settings gets an empty object.
func (sc *Scoped) Settings() ([]byte, error) {
	var data string
	err := sc.store.db.QueryRow(
		"SELECT data FROM plugin_settings WHERE plugin_id = ?", sc.pluginID,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return []byte("{}"), nil
	}
	if err != nil {
		return nil, &StorageError{PluginID: sc.pluginID, Op: "read settings", Err: err}
	}
	return []byte(data), nil
}

// SetSettings replaces the plugin's settings document. The write is
// all-or-nothing: it happens inside a transaction and the previous
// document stays intact on failure.
func (sc *Scoped) SetSettings(data []byte) error {
	if !gjson.ValidBytes(data) {
		return &StorageError{PluginID: sc.pluginID, Op: "write settings", Err: ErrInvalidJSON}
	}

	sc.store.mu.Lock()
	defer sc.store.mu.Unlock()

	tx, err := sc.store.db.Begin()
	if err != nil {
		return &StorageError{PluginID: sc.pluginID, Op: "write settings", Err: err}
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO plugin_settings (plugin_id, data, updated_at)
		VALUES (?, ?, datetime('now'))
		ON CONFLICT(plugin_id) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at`,
		sc.pluginID, string(data))
	if err != nil {
		return &StorageError{PluginID: sc.pluginID, Op: "write settings", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &StorageError{PluginID: sc.pluginID, Op: "write settings", Err: err}
	}
	return nil
}

// SettingsField reads one field of the settings document by gjson path,
// without decoding the whole document.
func (sc *Scoped) SettingsField(path string) (gjson.Result, error) {
	data, err := sc.Settings()
	if err != nil {
		return gjson.Result{}, err
	}
	return gjson.GetBytes(data, path), nil
}

// SetSettingsField updates one field of the settings document by sjson
// path, preserving the rest of the document.
func (sc *Scoped) SetSettingsField(path string, value any) error {
	data, err := sc.Settings()
	if err != nil {
		return err
	}
	updated, err := sjson.SetBytes(data, path, value)
	if err != nil {
		return &StorageError{PluginID: sc.pluginID, Op: "write settings", Err: err}
	}
	return sc.SetSettings(updated)
}

// State returns the plugin's ephemeral state document, or ok=false when
// nothing has been written since the host started.
func (sc *Scoped) State() ([]byte, bool) {
	sc.store.mu.Lock()
	defer sc.store.mu.Unlock()

	data, ok := sc.store.state[sc.pluginID]
	if !ok {
		return nil, false
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, true
}

// SetState replaces the plugin's ephemeral state document.
func (sc *Scoped) SetState(data []byte) error {
	if !gjson.ValidBytes(data) {
		return &StorageError{PluginID: sc.pluginID, Op: "write state", Err: ErrInvalidJSON}
	}

	sc.store.mu.Lock()
	defer sc.store.mu.Unlock()

	cp := make([]byte, len(data))
	copy(cp, data)
	sc.store.state[sc.pluginID] = cp
	return nil
}

// ClearState discards the plugin's ephemeral state.
func (sc *Scoped) ClearState() {
	sc.store.DropState(sc.pluginID)
}
