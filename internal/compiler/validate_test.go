package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/stagehand/internal/ir"
)

func codesOf(errs []ValidationError) []string {
	codes := make([]string, 0, len(errs))
	for _, e := range errs {
		codes = append(codes, e.Code)
	}
	return codes
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := mustCompile(t, `
		aliases: guest: {user_role: "is_null()"}
		managers: [
			{kind: "display", states: [{when: "guest", then: ".signup", nested: [
				{when: {age: more_than: 17}, then: ".bar"},
			]}]},
			{kind: "action", states: [{when: {status: "new"}, then: {in: "greet", run_before: "display"}}]},
		]
	`)

	assert.Empty(t, Validate(cfg))
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []string
	}{
		{
			name: "no managers",
			src:  `managers: []`,
			want: []string{ErrNoManagers},
		},
		{
			name: "duplicate manager",
			src:  `managers: [{kind: "action"}, {kind: "action"}]`,
			want: []string{ErrDuplicateManager},
		},
		{
			name: "unknown kind",
			src:  `managers: [{kind: "sound"}]`,
			want: []string{ErrUnknownManagerKind},
		},
		{
			name: "invalid settings",
			src:  `managers: [{kind: "display", settings: {default_state_action: "blink"}}]`,
			want: []string{ErrInvalidSettings},
		},
		{
			name: "invalid alias name",
			src:  `aliases: "a+b": {x: 1}, managers: [{kind: "action"}]`,
			want: []string{ErrInvalidAlias},
		},
		{
			name: "undefined alias",
			src:  `managers: [{kind: "action", states: [{when: "ghost", then: "x"}]}]`,
			want: []string{ErrUndefinedAlias},
		},
		{
			name: "unknown assertion",
			src:  `managers: [{kind: "action", states: [{when: {x: sparkles: 1}, then: "x"}]}]`,
			want: []string{ErrUnknownAssertion},
		},
		{
			name: "unknown predicate in alias",
			src:  `aliases: shiny: {x: "glitter()"}, managers: [{kind: "action"}]`,
			want: []string{ErrUnknownAssertion},
		},
		{
			name: "unknown ordering hint",
			src:  `managers: [{kind: "action", states: [{when: {x: 1}, then: {in: "x", run_after: "sound"}}]}]`,
			want: []string{ErrUnknownOrderingHint},
		},
		{
			name: "collects every error",
			src: `managers: [
				{kind: "sound", settings: {show_animation_speed: -1}},
				{kind: "action", name: "sound", states: [{when: "ghost", then: "x"}]},
			]`,
			want: []string{ErrUnknownManagerKind, ErrInvalidSettings, ErrDuplicateManager, ErrUndefinedAlias},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, codesOf(Validate(mustCompile(t, tt.src))))
		})
	}
}

func TestValidate_CustomKinds(t *testing.T) {
	cfg := &ir.Config{Managers: []ir.ManagerConfig{{Kind: "sound"}}}

	assert.Equal(t, []string{ErrUnknownManagerKind}, codesOf(Validate(cfg)))
	assert.Empty(t, Validate(cfg, ir.KindAction, ir.KindDisplay, "sound"))
}

func TestValidationErrorFormat(t *testing.T) {
	err := ValidationError{Field: "managers[1].name", Message: `duplicate manager name: "action"`, Code: ErrDuplicateManager}
	assert.Equal(t, `[E102] managers[1].name: duplicate manager name: "action"`, err.Error())
}
