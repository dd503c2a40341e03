package engine

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

// Display actions.
const (
	ActionShow = "show"
	ActionHide = "hide"
)

// DefaultAnimationSpeed applies when a manager sets no speed, in
// milliseconds.
const DefaultAnimationSpeed = 500

// Settings are the per-manager options. They arrive loosely typed (from
// CUE or Go maps) and are decoded onto DefaultSettings.
type Settings struct {
	HideAnimationSpeed int `mapstructure:"hide_animation_speed" validate:"gte=0"`
	ShowAnimationSpeed int `mapstructure:"show_animation_speed" validate:"gte=0"`

	// DefaultStateAction is applied to the entities of matched states.
	DefaultStateAction string `mapstructure:"default_state_action" validate:"oneof=show hide"`

	// DefaultStateClearAction is applied to every other entity. Empty means
	// the inverse of DefaultStateAction.
	DefaultStateClearAction string `mapstructure:"default_state_clear_action" validate:"omitempty,oneof=show hide"`

	ApplyClearStateOnInit bool `mapstructure:"apply_clear_state_on_init"`

	PickStatesWithLongestDefinitionOnly bool `mapstructure:"pick_states_with_longest_definition_only"`

	// Debug logs every pick at debug level.
	Debug bool `mapstructure:"debug"`

	// Extra keeps settings no built-in manager understands, for custom
	// manager kinds.
	Extra map[string]any `mapstructure:",remain"`
}

var settingsValidate *validator.Validate

func init() {
	settingsValidate = validator.New()
}

// DefaultSettings returns the settings every manager starts from.
func DefaultSettings() Settings {
	return Settings{
		HideAnimationSpeed:                  DefaultAnimationSpeed,
		ShowAnimationSpeed:                  DefaultAnimationSpeed,
		DefaultStateAction:                  ActionShow,
		ApplyClearStateOnInit:               true,
		PickStatesWithLongestDefinitionOnly: true,
	}
}

// DecodeSettings overlays raw onto DefaultSettings and validates the
// result. Strings such as "250" and "true" are accepted for numbers and
// booleans.
func DecodeSettings(raw map[string]any) (Settings, error) {
	s := DefaultSettings()
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &s,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return Settings{}, fmt.Errorf("build settings decoder: %w", err)
	}
	if err := dec.Decode(raw); err != nil {
		return Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	if err := settingsValidate.Struct(s); err != nil {
		return Settings{}, fmt.Errorf("validate settings: %w", err)
	}
	return s, nil
}

// ClearAction returns the action applied to entities outside the matched
// states.
func (s Settings) ClearAction() string {
	if s.DefaultStateClearAction != "" {
		return s.DefaultStateClearAction
	}
	if s.DefaultStateAction == ActionHide {
		return ActionShow
	}
	return ActionHide
}

// Speed returns the configured animation speed for action.
func (s Settings) Speed(action string) time.Duration {
	ms := s.ShowAnimationSpeed
	if action == ActionHide {
		ms = s.HideAnimationSpeed
	}
	return time.Duration(ms) * time.Millisecond
}
