// File: internal/executor/keys.go
package executor

import (
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp/kb"
)

// modifierNames maps the aliases the inference service uses for modifier keys
// to CDP modifier bits. "cmd" and "win" both land on Meta.
var modifierNames = map[string]input.Modifier{
	"ctrl":    input.ModifierCtrl,
	"control": input.ModifierCtrl,
	"alt":     input.ModifierAlt,
	"option":  input.ModifierAlt,
	"shift":   input.ModifierShift,
	"meta":    input.ModifierMeta,
	"cmd":     input.ModifierMeta,
	"command": input.ModifierMeta,
	"win":     input.ModifierMeta,
	"super":   input.ModifierMeta,
}

// keyNames maps spelled-out key names to the control characters the kb
// package understands. Single printable characters pass through untouched.
var keyNames = map[string]string{
	"enter":     kb.Enter,
	"return":    kb.Enter,
	"tab":       kb.Tab,
	"esc":       kb.Escape,
	"escape":    kb.Escape,
	"backspace": kb.Backspace,
	"delete":    kb.Delete,
	"del":       kb.Delete,
	"space":     " ",
	"up":        kb.ArrowUp,
	"down":      kb.ArrowDown,
	"left":      kb.ArrowLeft,
	"right":     kb.ArrowRight,
	"home":      kb.Home,
	"end":       kb.End,
	"pageup":    kb.PageUp,
	"pagedown":  kb.PageDown,
	"insert":    kb.Insert,
	"f1":        kb.F1,
	"f2":        kb.F2,
	"f3":        kb.F3,
	"f4":        kb.F4,
	"f5":        kb.F5,
	"f6":        kb.F6,
	"f7":        kb.F7,
	"f8":        kb.F8,
	"f9":        kb.F9,
	"f10":       kb.F10,
	"f11":       kb.F11,
	"f12":       kb.F12,
}

// parseKeyCombo splits a combination like "ctrl+shift+t" into its terminal
// key and modifier set. The terminal key must be last; a combo of only
// modifiers is rejected.
func parseKeyCombo(combo string) (string, []input.Modifier, error) {
	if strings.TrimSpace(combo) == "" {
		return "", nil, fmt.Errorf("empty key combination")
	}

	parts := strings.Split(combo, "+")
	var modifiers []input.Modifier
	key := ""

	for i, raw := range parts {
		part := strings.ToLower(strings.TrimSpace(raw))
		if part == "" {
			// A trailing "+" means the literal plus key.
			if i == len(parts)-1 && key == "" {
				key = "+"
				continue
			}
			return "", nil, fmt.Errorf("malformed key combination %q", combo)
		}
		if mod, ok := modifierNames[part]; ok && i < len(parts)-1 {
			modifiers = append(modifiers, mod)
			continue
		}
		if i != len(parts)-1 {
			return "", nil, fmt.Errorf("unexpected key %q before end of combination %q", part, combo)
		}
		if named, ok := keyNames[part]; ok {
			key = named
		} else {
			// Preserve the original case for single printable characters so
			// "shift+A" and plain "A" both type an uppercase A.
			key = strings.TrimSpace(raw)
		}
	}

	if key == "" {
		return "", nil, fmt.Errorf("key combination %q has no terminal key", combo)
	}
	if len([]rune(key)) > 1 && keyNames[strings.ToLower(key)] == "" && !isNamedControl(key) {
		return "", nil, fmt.Errorf("unknown key %q in combination %q", key, combo)
	}
	return key, modifiers, nil
}

// isNamedControl reports whether the key string is already a kb control
// sequence (mapped names resolve to these single-rune strings).
func isNamedControl(key string) bool {
	return len([]rune(key)) == 1
}
