// Package shortcut formats keyboard shortcut strings for display. A
// shortcut is "+"-joined tokens; the "mod" token maps to Cmd on Mac
// platforms and Ctrl elsewhere, so plugins declare one binding and get
// the platform-correct label.
package shortcut

import (
	"runtime"
	"strings"
)

// Platform selects the modifier labelling family.
type Platform int

// Platform families.
const (
	PlatformOther Platform = iota
	PlatformMac
)

// Detect returns the platform family of the running host.
func Detect() Platform {
	if runtime.GOOS == "darwin" {
		return PlatformMac
	}
	return PlatformOther
}

// ModKey returns the display label of the primary modifier.
func ModKey(p Platform) string {
	if p == PlatformMac {
		return "Cmd"
	}
	return "Ctrl"
}

// labels maps known tokens to fixed display labels. Unknown tokens are
// title-cased as-is.
var labels = map[string]string{
	"shift":     "Shift",
	"alt":       "Alt",
	"ctrl":      "Ctrl",
	"cmd":       "Cmd",
	"enter":     "Enter",
	"escape":    "Esc",
	"esc":       "Esc",
	"tab":       "Tab",
	"space":     "Space",
	"backspace": "Backspace",
	"delete":    "Delete",
	"up":        "Up",
	"down":      "Down",
	"left":      "Left",
	"right":     "Right",
}

// Format renders a shortcut string deterministically for the platform:
// "mod+shift+b" -> "Cmd+Shift+B" on Mac, "Ctrl+Shift+B" elsewhere.
// Empty tokens are dropped.
func Format(p Platform, shortcut string) string {
	parts := strings.Split(shortcut, "+")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		token := strings.ToLower(strings.TrimSpace(part))
		if token == "" {
			continue
		}
		switch {
		case token == "mod":
			out = append(out, ModKey(p))
		case labels[token] != "":
			out = append(out, labels[token])
		case len(token) == 1:
			out = append(out, strings.ToUpper(token))
		default:
			out = append(out, strings.ToUpper(token[:1])+token[1:])
		}
	}
	return strings.Join(out, "+")
}
