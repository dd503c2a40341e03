package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stagehand/internal/ir"
)

// namedManager satisfies Manager for ordering tests; only Name is used.
type namedManager struct {
	Manager
	name string
}

func (m namedManager) Name() string { return m.name }

func planFor(name string, runBefore, runAfter []string) plannedTransition {
	return plannedTransition{
		manager:    namedManager{name: name},
		transition: ir.Transition{RunBefore: runBefore, RunAfter: runAfter},
	}
}

func orderedNames(t *testing.T, planned ...plannedTransition) []string {
	t.Helper()
	ordered, err := orderByHints(planned)
	require.NoError(t, err)
	names := make([]string, len(ordered))
	for i, p := range ordered {
		names[i] = p.name()
	}
	return names
}

func TestOrderByHints(t *testing.T) {
	tests := []struct {
		name    string
		planned []plannedTransition
		want    []string
	}{
		{
			name: "run_before chains",
			planned: []plannedTransition{
				planFor("display", nil, nil),
				planFor("action", []string{"display"}, nil),
				planFor("custom", []string{"action", "display"}, nil),
			},
			want: []string{"custom", "action", "display"},
		},
		{
			name: "run_before through a third manager",
			planned: []plannedTransition{
				planFor("display", nil, nil),
				planFor("action", []string{"custom"}, nil),
				planFor("custom", []string{"display"}, nil),
			},
			want: []string{"action", "custom", "display"},
		},
		{
			name: "run_after and run_before mixed",
			planned: []plannedTransition{
				planFor("display", nil, nil),
				planFor("custom", nil, []string{"display"}),
				planFor("action", []string{"display"}, nil),
			},
			want: []string{"action", "display", "custom"},
		},
		{
			name: "run_after first in list",
			planned: []plannedTransition{
				planFor("custom", nil, []string{"display"}),
				planFor("display", nil, nil),
				planFor("action", []string{"display"}, nil),
			},
			want: []string{"action", "display", "custom"},
		},
		{
			name: "no hints keeps configuration order",
			planned: []plannedTransition{
				planFor("display", nil, nil),
				planFor("action", nil, nil),
			},
			want: []string{"display", "action"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, orderedNames(t, tt.planned...))
		})
	}
}

func TestOrderByHints_CycleIsFatal(t *testing.T) {
	_, err := orderByHints([]plannedTransition{
		planFor("action", []string{"display"}, nil),
		planFor("display", []string{"action"}, nil),
	})

	require.Error(t, err)
	assert.True(t, IsOrderingCycle(err))
	assert.ErrorIs(t, err, ErrOrderingCycle)
}

func TestMove(t *testing.T) {
	arr := []plannedTransition{planFor("a", nil, nil), planFor("b", nil, nil), planFor("c", nil, nil), planFor("d", nil, nil)}

	move(arr, 0, 2)
	assert.Equal(t, []string{"b", "c", "a", "d"}, namesOf(arr))

	move(arr, 3, 0)
	assert.Equal(t, []string{"d", "b", "c", "a"}, namesOf(arr))
}

func namesOf(arr []plannedTransition) []string {
	names := make([]string, len(arr))
	for i, p := range arr {
		names[i] = p.name()
	}
	return names
}
