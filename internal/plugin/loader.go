package plugin

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Loader discovers plugins on the filesystem. A plugin is either a
// directory carrying plugin.json (or a bare main.lua), or a standalone
// {id}.lua file that runs with no declared permissions.
type Loader struct {
	// Search paths for plugins (checked in order, first path wins)
	paths []string

	// Discovered plugins cache
	discovered map[string]*PluginInfo
}

// PluginInfo contains discovery information about a plugin.
type PluginInfo struct {
	ID       string
	Path     string
	Manifest *Manifest
	Err      error
}

// NewLoader creates a plugin loader over the given search paths. With
// no paths it uses DefaultPluginPaths.
func NewLoader(paths ...string) *Loader {
	if len(paths) == 0 {
		paths = DefaultPluginPaths()
	}
	return &Loader{
		paths:      paths,
		discovered: make(map[string]*PluginInfo),
	}
}

// DefaultPluginPaths returns the default plugin search paths.
func DefaultPluginPaths() []string {
	paths := make([]string, 0, 2)

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "treeline", "plugins"))
	}
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, "plugins"))
	}

	return paths
}

// Paths returns the configured search paths.
func (l *Loader) Paths() []string {
	return l.paths
}

// Discover finds all plugins in the search paths, sorted by id.
// Plugins with broken manifests are included with Err set so the host
// can report them; they are never silently dropped.
func (l *Loader) Discover() ([]*PluginInfo, error) {
	l.discovered = make(map[string]*PluginInfo)

	for _, basePath := range l.paths {
		if err := l.discoverInPath(basePath); err != nil {
			return nil, err
		}
	}

	plugins := make([]*PluginInfo, 0, len(l.discovered))
	for _, info := range l.discovered {
		plugins = append(plugins, info)
	}
	sort.Slice(plugins, func(i, j int) bool {
		return plugins[i].ID < plugins[j].ID
	})
	return plugins, nil
}

// discoverInPath finds plugins in a single directory. A missing path is
// not an error.
func (l *Loader) discoverInPath(basePath string) error {
	entries, err := os.ReadDir(basePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			if filepath.Ext(entry.Name()) == ".lua" {
				id := strings.TrimSuffix(entry.Name(), ".lua")
				l.addSingleFilePlugin(id, filepath.Join(basePath, entry.Name()))
			}
			continue
		}

		info := l.inspectPlugin(entry.Name(), filepath.Join(basePath, entry.Name()))
		if _, exists := l.discovered[info.ID]; !exists {
			l.discovered[info.ID] = info
		}
	}

	return nil
}

// addSingleFilePlugin registers a standalone .lua file as a plugin.
func (l *Loader) addSingleFilePlugin(id, luaPath string) {
	if _, exists := l.discovered[id]; exists {
		return
	}

	info := &PluginInfo{ID: id, Path: filepath.Dir(luaPath)}
	if !idPattern.MatchString(id) {
		info.Err = fmt.Errorf("%w: %s", ErrInvalidID, id)
		l.discovered[id] = info
		return
	}

	manifest := NewManifestMinimal(id, filepath.Dir(luaPath))
	manifest.Main = filepath.Base(luaPath)
	info.Manifest = manifest
	l.discovered[id] = info
}

// inspectPlugin examines a plugin directory and returns its info.
func (l *Loader) inspectPlugin(dirName, path string) *PluginInfo {
	info := &PluginInfo{ID: dirName, Path: path}

	manifestPath := filepath.Join(path, "plugin.json")
	if _, err := os.Stat(manifestPath); err == nil {
		manifest, err := LoadManifest(manifestPath)
		if err != nil {
			info.Err = fmt.Errorf("invalid manifest: %w", err)
			return info
		}
		info.Manifest = manifest
		info.ID = manifest.ID
		return info
	}

	// No manifest: a bare main.lua runs with no permissions.
	mainPath := filepath.Join(path, "main.lua")
	if _, err := os.Stat(mainPath); err == nil {
		if !idPattern.MatchString(dirName) {
			info.Err = fmt.Errorf("%w: %s", ErrInvalidID, dirName)
			return info
		}
		info.Manifest = NewManifestMinimal(dirName, path)
		return info
	}

	info.Err = ErrNoEntryPoint
	return info
}

// Get returns info for a discovered plugin by id.
func (l *Loader) Get(id string) (*PluginInfo, bool) {
	info, ok := l.discovered[id]
	return info, ok
}

// Find searches for a plugin by id across all paths, re-inspecting the
// filesystem if it is not in the discovery cache.
func (l *Loader) Find(id string) (*PluginInfo, error) {
	if info, ok := l.discovered[id]; ok {
		return info, nil
	}

	for _, basePath := range l.paths {
		dirPath := filepath.Join(basePath, id)
		if stat, err := os.Stat(dirPath); err == nil && stat.IsDir() {
			info := l.inspectPlugin(id, dirPath)
			if info.Err == nil {
				l.discovered[id] = info
				return info, nil
			}
		}

		luaPath := filepath.Join(basePath, id+".lua")
		if _, err := os.Stat(luaPath); err == nil {
			l.addSingleFilePlugin(id, luaPath)
			if info, ok := l.discovered[id]; ok && info.Err == nil {
				return info, nil
			}
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrPluginNotFound, id)
}

// IDs returns the ids of all discovered plugins, sorted.
func (l *Loader) IDs() []string {
	ids := make([]string, 0, len(l.discovered))
	for id := range l.discovered {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Errors returns all discovered plugins with discovery errors.
func (l *Loader) Errors() []*PluginInfo {
	var errored []*PluginInfo
	for _, id := range l.IDs() {
		if info := l.discovered[id]; info.Err != nil {
			errored = append(errored, info)
		}
	}
	return errored
}
