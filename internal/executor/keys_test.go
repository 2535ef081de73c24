// File: internal/executor/keys_test.go
package executor

import (
	"testing"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp/kb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKeyComboSingleKeys(t *testing.T) {
	cases := map[string]string{
		"enter":     kb.Enter,
		"Return":    kb.Enter,
		"tab":       kb.Tab,
		"escape":    kb.Escape,
		"esc":       kb.Escape,
		"backspace": kb.Backspace,
		"space":     " ",
		"up":        kb.ArrowUp,
		"pagedown":  kb.PageDown,
		"a":         "a",
		"A":         "A",
		"/":         "/",
	}
	for combo, want := range cases {
		key, mods, err := parseKeyCombo(combo)
		require.NoError(t, err, combo)
		assert.Equal(t, want, key, combo)
		assert.Empty(t, mods, combo)
	}
}

func TestParseKeyComboModifiers(t *testing.T) {
	key, mods, err := parseKeyCombo("ctrl+shift+t")
	require.NoError(t, err)
	assert.Equal(t, "t", key)
	assert.Equal(t, []input.Modifier{input.ModifierCtrl, input.ModifierShift}, mods)

	// "cmd" aliases Meta, matching how macOS-trained models phrase combos.
	key, mods, err = parseKeyCombo("cmd+a")
	require.NoError(t, err)
	assert.Equal(t, "a", key)
	assert.Equal(t, []input.Modifier{input.ModifierMeta}, mods)

	key, mods, err = parseKeyCombo("alt+enter")
	require.NoError(t, err)
	assert.Equal(t, kb.Enter, key)
	assert.Equal(t, []input.Modifier{input.ModifierAlt}, mods)
}

func TestParseKeyComboEdgeCases(t *testing.T) {
	// A modifier in final position is the key itself only when it is not a
	// known modifier alias; bare "shift" therefore parses as the literal word
	// being rejected.
	_, _, err := parseKeyCombo("")
	assert.Error(t, err)

	_, _, err = parseKeyCombo("ctrl+unknownkey")
	assert.Error(t, err)

	// Trailing plus means the plus key.
	key, mods, err := parseKeyCombo("ctrl+")
	require.NoError(t, err)
	assert.Equal(t, "+", key)
	assert.Equal(t, []input.Modifier{input.ModifierCtrl}, mods)
}
