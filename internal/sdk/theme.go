package sdk

import (
	"sync"

	"github.com/google/uuid"
)

// Theme is the host color scheme.
type Theme string

// Themes.
const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// ThemeSource is the host-owned observable theme. Plugins read the current
// theme and subscribe to changes through their SDK instance.
type ThemeSource struct {
	mu      sync.Mutex
	current Theme
	subs    map[string]func(Theme)
}

// NewThemeSource creates a theme source. Anything but "dark" is light.
func NewThemeSource(initial Theme) *ThemeSource {
	if initial != ThemeDark {
		initial = ThemeLight
	}
	return &ThemeSource{
		current: initial,
		subs:    make(map[string]func(Theme)),
	}
}

// Current returns the active theme.
func (t *ThemeSource) Current() Theme {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Set switches the theme and notifies subscribers of the new value.
// Setting the already-active theme is a no-op.
func (t *ThemeSource) Set(theme Theme) {
	if theme != ThemeDark {
		theme = ThemeLight
	}

	t.mu.Lock()
	if theme == t.current {
		t.mu.Unlock()
		return
	}
	t.current = theme
	snapshot := make([]func(Theme), 0, len(t.subs))
	for _, fn := range t.subs {
		snapshot = append(snapshot, fn)
	}
	t.mu.Unlock()

	for _, fn := range snapshot {
		fn(theme)
	}
}

// Subscribe registers a change callback. The returned unsubscribe is
// idempotent.
func (t *ThemeSource) Subscribe(fn func(Theme)) func() {
	id := uuid.NewString()

	t.mu.Lock()
	t.subs[id] = fn
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.subs, id)
		t.mu.Unlock()
	}
}
