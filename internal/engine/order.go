package engine

import (
	"slices"

	"github.com/roach88/stagehand/internal/ir"
)

// maxSortAttempts bounds the ordering passes before a configuration is
// declared cyclic.
const maxSortAttempts = 100

// plannedTransition is one manager's pick within a dispatch cycle.
type plannedTransition struct {
	manager    Manager
	transition ir.Transition
}

func (p plannedTransition) name() string { return p.manager.Name() }

// orderByHints orders one cycle's managers from the run_before/run_after
// hints of the rules that entered in that cycle.
//
// Each pass walks the reversed list moving every manager after the managers
// it must run before, then walks the list moving every manager after the
// managers it must run after. Passes repeat until nothing moves. Hints
// that never converge fail with ErrOrderingCycle.
func orderByHints(planned []plannedTransition) ([]plannedTransition, error) {
	arr := slices.Clone(planned)

	for attempts := 1; ; attempts++ {
		moved := false

		slices.Reverse(arr)
		for i := range arr {
			for j := range arr {
				if i < j && slices.Contains(arr[i].transition.RunBefore, arr[j].name()) {
					move(arr, i, j)
					moved = true
				}
			}
		}
		slices.Reverse(arr)

		for i := range arr {
			for j := range arr {
				if i < j && slices.Contains(arr[i].transition.RunAfter, arr[j].name()) {
					move(arr, i, j)
					moved = true
				}
			}
		}

		if !moved {
			return arr, nil
		}
		if attempts >= maxSortAttempts {
			names := make([]string, len(arr))
			for k, p := range arr {
				names[k] = p.name()
			}
			return nil, newOrderingCycleError(attempts, names)
		}
	}
}

// move removes the element at from and reinserts it at to.
func move(arr []plannedTransition, from, to int) {
	item := arr[from]
	if from < to {
		copy(arr[from:to], arr[from+1:to+1])
	} else {
		copy(arr[to+1:from+1], arr[to:from])
	}
	arr[to] = item
}
