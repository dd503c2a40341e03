package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stagehand/internal/engine"
	"github.com/roach88/stagehand/internal/ir"
)

// opsSubject is a flat subject with attributes and named operations.
type opsSubject struct {
	mu    sync.Mutex
	attrs map[string]ir.IRValue
	prev  map[string]ir.IRValue
	ops   map[string]engine.Operation
	calls []string
}

func newOpsSubject() *opsSubject {
	return &opsSubject{
		attrs: map[string]ir.IRValue{},
		prev:  map[string]ir.IRValue{},
		ops:   map[string]engine.Operation{},
	}
}

func (s *opsSubject) set(name string, v ir.IRValue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.attrs[name]; ok {
		s.prev[name] = old
	}
	s.attrs[name] = v
}

func (s *opsSubject) op(name string, err error) {
	s.ops[name] = func(context.Context) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.calls = append(s.calls, name)
		return err
	}
}

func (s *opsSubject) Get(name string) ir.IRValue {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.attrs[name]; ok {
		return v
	}
	return ir.Null
}

func (s *opsSubject) Previous(name string) ir.IRValue {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.prev[name]; ok {
		return v
	}
	return ir.Null
}

func (s *opsSubject) FindChildrenByRole(string) []engine.Subject { return nil }

func (s *opsSubject) FindFirstChildByRole(string) (engine.Subject, bool) { return nil, false }

func (s *opsSubject) Operation(name string) (engine.Operation, bool) {
	op, ok := s.ops[name]
	return op, ok
}

func checkoutConfig() ir.Config {
	return ir.Config{
		Managers: []ir.ManagerConfig{{
			Kind: ir.KindAction,
			Declarations: []ir.Declaration{
				ir.Declare(ir.Match(ir.ConditionSet{"step": ir.Equals{Value: ir.Str("ship")}}), ir.Then("ship")),
				ir.Declare(ir.Match(ir.ConditionSet{"step": ir.Equals{Value: ir.Str("pay")}}), ir.Then("charge")),
			},
		}},
	}
}

func TestJournal_RecordsDispatcherActivity(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	j, err := s.StartRun(ctx, Run{ID: "run-1", Name: "checkout", SourceHash: "h"}, nil)
	require.NoError(t, err)

	subject := newOpsSubject()
	subject.op("ship", nil)
	subject.op("charge", errors.New("card declined"))

	d, err := engine.NewDispatcher(ctx, subject, checkoutConfig(), engine.WithHooks(j.Hooks()))
	require.NoError(t, err)

	// Nothing matches yet: the pick enters nothing and is skipped.
	j.SetStep(0)
	require.NoError(t, d.Apply(ctx))

	j.SetStep(1)
	subject.set("step", ir.Str("ship"))
	require.NoError(t, d.Apply(ctx))

	j.SetStep(2)
	subject.set("step", ir.Str("pay"))
	require.Error(t, d.Apply(ctx))

	require.NoError(t, j.Err())
	assert.Equal(t, []string{"ship", "charge"}, subject.calls)

	run, err := s.ReadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, ir.EngineVersion, run.EngineVersion)
	assert.Equal(t, ir.IRVersion, run.IRVersion)

	picks, err := s.ReadPicks(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, picks, 2)

	assert.Equal(t, int64(1), picks[0].Ord)
	assert.Equal(t, int64(1), picks[0].Step)
	assert.Equal(t, "action", picks[0].Manager)
	assert.Equal(t, [][]string{{"step"}}, picks[0].Enter)
	assert.Empty(t, picks[0].Exit)
	assert.Equal(t, []string{"ship"}, picks[0].In)

	assert.Equal(t, int64(2), picks[1].Ord)
	assert.Equal(t, int64(2), picks[1].Step)
	assert.Equal(t, [][]string{{"step"}}, picks[1].Enter)
	assert.Equal(t, [][]string{{"step"}}, picks[1].Exit)
	assert.Equal(t, []string{"charge"}, picks[1].In)

	settlements, err := s.ReadSettlements(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, settlements, 2)
	assert.Equal(t, "applied", settlements[0].Outcome)
	assert.Equal(t, []string{"ship"}, settlements[0].In)
	assert.Empty(t, settlements[0].Error)
	assert.Equal(t, "failed", settlements[1].Outcome)
	assert.Contains(t, settlements[1].Error, "card declined")
}

func TestJournal_SupersededCarriesNoError(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	j, err := s.StartRun(ctx, createTestRun("run-1"), nil)
	require.NoError(t, err)

	hooks := j.Hooks()
	job := engine.Job{Seq: 4, Manager: "display", Transition: ir.Transition{In: ir.Refs(".bar")}}
	hooks.OnSettle(ctx, &engine.SettleEvent{
		Job:     job,
		Outcome: engine.OutcomeSuperseded,
		Err:     engine.ErrSuperseded,
	})
	require.NoError(t, j.Err())

	settlements, err := s.ReadSettlements(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, settlements, 1)
	assert.Equal(t, Settlement{
		RunID: "run-1", Seq: 4, Manager: "display", Outcome: "superseded",
		In: []string{".bar"}, Out: []string{},
	}, settlements[0])
}

func TestJournal_KeepsFirstWriteError(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	j, err := s.StartRun(ctx, createTestRun("run-1"), discardLogger())
	require.NoError(t, err)

	hooks := j.Hooks()
	bad := &engine.SettleEvent{Job: engine.Job{Seq: 1, Manager: "action"}, Outcome: engine.Outcome("unknown")}
	hooks.OnSettle(ctx, bad)
	first := j.Err()
	require.Error(t, first)

	require.NoError(t, s.Close())
	hooks.OnSettle(ctx, &engine.SettleEvent{Job: engine.Job{Seq: 2, Manager: "action"}, Outcome: engine.OutcomeApplied})
	assert.Equal(t, first.Error(), j.Err().Error())
}

func TestStartRun_RequiresID(t *testing.T) {
	s := createTestStore(t)

	_, err := s.StartRun(context.Background(), Run{Name: "checkout"}, nil)
	assert.Error(t, err)
}
