package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeSettings_Defaults(t *testing.T) {
	s, err := DecodeSettings(nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultSettings(), s)
	assert.Equal(t, ActionShow, s.DefaultStateAction)
	assert.Equal(t, ActionHide, s.ClearAction())
	assert.True(t, s.ApplyClearStateOnInit)
	assert.True(t, s.PickStatesWithLongestDefinitionOnly)
	assert.Equal(t, 500*time.Millisecond, s.Speed(ActionShow))
}

func TestDecodeSettings_WeakTyping(t *testing.T) {
	s, err := DecodeSettings(map[string]any{
		"show_animation_speed":      "250",
		"hide_animation_speed":      0,
		"apply_clear_state_on_init": "false",
		"debug":                     true,
	})
	require.NoError(t, err)

	assert.Equal(t, 250*time.Millisecond, s.Speed(ActionShow))
	assert.Equal(t, time.Duration(0), s.Speed(ActionHide))
	assert.False(t, s.ApplyClearStateOnInit)
	assert.True(t, s.Debug)
	assert.Empty(t, s.Extra)
}

func TestDecodeSettings_KeepsUnknownKeys(t *testing.T) {
	s, err := DecodeSettings(map[string]any{"volume": 7, "debug": false})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"volume": 7}, s.Extra)
}

func TestDecodeSettings_Rejects(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
	}{
		{"negative speed", map[string]any{"show_animation_speed": -1}},
		{"unknown action", map[string]any{"default_state_action": "fade"}},
		{"unknown clear action", map[string]any{"default_state_clear_action": "fade"}},
		{"not a number", map[string]any{"hide_animation_speed": "slow"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeSettings(tt.raw)
			assert.Error(t, err)
		})
	}
}

func TestSettings_ClearAction(t *testing.T) {
	tests := []struct {
		action, clear, want string
	}{
		{ActionShow, "", ActionHide},
		{ActionHide, "", ActionShow},
		{ActionShow, ActionShow, ActionShow},
		{ActionHide, ActionHide, ActionHide},
	}

	for _, tt := range tests {
		s := Settings{DefaultStateAction: tt.action, DefaultStateClearAction: tt.clear}
		assert.Equal(t, tt.want, s.ClearAction(), "action=%s clear=%q", tt.action, tt.clear)
	}
}
