package engine

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stagehand/internal/ir"
)

func newTestDispatcher(t *testing.T, s Subject, cfg ir.Config, opts ...Option) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(t.Context(), s, cfg, append([]Option{WithLogger(discardLogger())}, opts...)...)
	require.NoError(t, err)
	return d
}

// bannerConfig pairs a display manager with an action manager that must
// run first.
func bannerConfig() ir.Config {
	isNew := ir.Match(ir.ConditionSet{"status": oneOf("new")})
	return ir.Config{
		Managers: []ir.ManagerConfig{
			{
				Kind:         ir.KindDisplay,
				Declarations: []ir.Declaration{ir.Declare(isNew, ir.Then(".banner"))},
			},
			{
				Kind: ir.KindAction,
				Declarations: []ir.Declaration{ir.Declare(isNew, ir.TransitionSpec{
					In:        ir.Refs("greet"),
					RunBefore: []string{"display"},
					Split:     true,
				})},
			},
		},
	}
}

func TestDispatcher_BuildsManagersInOrder(t *testing.T) {
	s := newFakeSubject().withParts("banner").withOps("greet")
	d := newTestDispatcher(t, s, bannerConfig())

	assert.Equal(t, []string{"display", "action"}, d.Names())
	m, ok := d.Manager("display")
	require.True(t, ok)
	assert.Equal(t, ir.KindDisplay, m.Kind())

	_, ok = d.Manager("sound")
	assert.False(t, ok)
	assert.Equal(t, []string{"hide .banner 0s"}, s.rec.Take(), "display clears on init")
}

func TestDispatcher_RunBeforeOrdersManagers(t *testing.T) {
	s := newFakeSubject().withParts("banner").withOps("greet")
	d := newTestDispatcher(t, s, bannerConfig())
	s.rec.Take()

	s.set("status", "new")
	require.NoError(t, d.Apply(t.Context()))

	assert.Equal(t, []string{"call greet", "show .banner 500ms"}, s.rec.Take())
}

func TestDispatcher_RunAfterOrdersManagers(t *testing.T) {
	isNew := ir.Match(ir.ConditionSet{"status": oneOf("new")})
	cfg := ir.Config{Managers: []ir.ManagerConfig{
		{
			Kind: ir.KindDisplay,
			Declarations: []ir.Declaration{ir.Declare(isNew, ir.TransitionSpec{
				In:       ir.Refs(".banner"),
				RunAfter: []string{"action"},
				Split:    true,
			})},
		},
		{
			Kind:         ir.KindAction,
			Declarations: []ir.Declaration{ir.Declare(isNew, ir.Then("greet"))},
		},
	}}
	s := newFakeSubject().withParts("banner").withOps("greet")
	d := newTestDispatcher(t, s, cfg)
	s.rec.Take()

	s.set("status", "new")
	require.NoError(t, d.Apply(t.Context()))

	assert.Equal(t, []string{"call greet", "show .banner 500ms"}, s.rec.Take())
}

func TestDispatcher_ApplyAllReentersMatchedRules(t *testing.T) {
	s := newFakeSubject().withParts("banner").withOps("greet")
	d := newTestDispatcher(t, s, bannerConfig())
	s.set("status", "new")
	require.NoError(t, d.Apply(t.Context()))
	s.rec.Take()

	require.NoError(t, d.Apply(t.Context()))
	assert.Empty(t, s.rec.Take(), "nothing changed")

	require.NoError(t, d.ApplyAll(t.Context()))
	assert.Equal(t, []string{"call greet", "show .banner 500ms"}, s.rec.Take())
}

func TestDispatcher_LockSuspendsDispatch(t *testing.T) {
	s := newFakeSubject().withParts("banner").withOps("greet")
	d := newTestDispatcher(t, s, bannerConfig())
	s.rec.Take()

	d.Lock()
	assert.True(t, d.Locked())
	s.set("status", "new")
	require.NoError(t, d.Apply(t.Context()))
	assert.Empty(t, s.rec.Take())

	d.Unlock()
	require.NoError(t, d.Apply(t.Context()))
	assert.Equal(t, []string{"call greet", "show .banner 500ms"}, s.rec.Take())
}

func TestDispatcher_ManagerFailureStopsCycle(t *testing.T) {
	s := newFakeSubject().withParts("banner")
	d := newTestDispatcher(t, s, bannerConfig())
	s.rec.Take()

	s.set("status", "new")
	err := d.Apply(t.Context())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownOperation)
	assert.Contains(t, err.Error(), `manager "action"`)
	assert.Empty(t, s.rec.Take(), "display never ran")
}

func TestNewDispatcher_Rejects(t *testing.T) {
	tests := []struct {
		name string
		cfg  ir.Config
		want error
	}{
		{
			name: "duplicate manager name",
			cfg:  ir.Config{Managers: []ir.ManagerConfig{{Kind: ir.KindAction}, {Kind: ir.KindAction}}},
			want: ErrDuplicateManager,
		},
		{
			name: "unknown kind",
			cfg:  ir.Config{Managers: []ir.ManagerConfig{{Kind: "sound"}}},
			want: ErrUnknownManagerKind,
		},
		{
			name: "unknown alias",
			cfg: ir.Config{Managers: []ir.ManagerConfig{{
				Kind:         ir.KindAction,
				Declarations: []ir.Declaration{ir.Declare(ir.Alias("missing"), ir.Then("x"))},
			}}},
			want: ErrUnknownAlias,
		},
		{
			name: "invalid settings",
			cfg: ir.Config{Managers: []ir.ManagerConfig{{
				Kind:     ir.KindDisplay,
				Settings: map[string]any{"default_state_action": "blink"},
			}}},
			want: ErrInvalidSettings,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDispatcher(t.Context(), newFakeSubject(), tt.cfg, WithLogger(discardLogger()))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNewDispatcher_NamedManagersOfOneKind(t *testing.T) {
	cfg := ir.Config{Managers: []ir.ManagerConfig{
		{Kind: ir.KindAction, Name: "analytics"},
		{Kind: ir.KindAction, Name: "effects"},
	}}
	d := newTestDispatcher(t, newFakeSubject(), cfg)
	assert.Equal(t, []string{"analytics", "effects"}, d.Names())
}

// soundVariant is a custom manager kind recording what it plays.
type soundVariant struct {
	rec     func(format string, args ...any)
	release chan struct{}
	started chan struct{}
}

func (v *soundVariant) ApplyNow(_ context.Context, job Job) error {
	if v.started != nil {
		v.started <- struct{}{}
	}
	if v.release != nil {
		<-v.release
	}
	v.rec("play %s", strings.Join(refsOf(job.Transition.In), ","))
	return nil
}

func soundConfig(settings map[string]any) ir.Config {
	var decls []ir.Declaration
	for _, track := range []string{"a", "b", "c"} {
		decls = append(decls, ir.Declare(ir.Match(ir.ConditionSet{"track": oneOf(track)}), ir.Then("track_"+track)))
	}
	return ir.Config{Managers: []ir.ManagerConfig{{Kind: "sound", Name: "audio", Settings: settings, Declarations: decls}}}
}

func TestDispatcher_CustomKindThroughRegistry(t *testing.T) {
	s := newFakeSubject()
	reg := NewRegistry()
	reg.RegisterVariant("sound", func(Subject) Variant { return &soundVariant{rec: s.rec.Record} })
	assert.Equal(t, []ir.ManagerKind{ir.KindAction, ir.KindDisplay, "sound"}, reg.Kinds())

	d := newTestDispatcher(t, s, soundConfig(map[string]any{"volume": 3}), WithRegistry(reg))

	m, ok := d.Manager("audio")
	require.True(t, ok)
	sm, ok := m.(*StateManager)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"volume": 3}, sm.Settings().Extra)

	s.set("track", "b")
	require.NoError(t, d.Apply(t.Context()))
	assert.Equal(t, []string{"play track_b"}, s.rec.Take())
}

func TestDispatcher_SupersededCycleIsNotAnError(t *testing.T) {
	s := newFakeSubject()
	v := &soundVariant{rec: s.rec.Record, release: make(chan struct{}), started: make(chan struct{}, 3)}
	reg := NewRegistry()
	reg.RegisterVariant("sound", func(Subject) Variant { return v })
	d := newTestDispatcher(t, s, soundConfig(nil), WithRegistry(reg))

	m, _ := d.Manager("audio")
	queue := m.(*StateManager).queue

	errs := make(chan error, 3)
	cycle := func() { errs <- d.Apply(t.Context()) }

	s.set("track", "a")
	go cycle()
	<-v.started

	s.set("track", "b")
	go cycle()
	require.Eventually(t, func() bool { return queue.Len() == 1 }, 2*time.Second, time.Millisecond)

	s.set("track", "c")
	go cycle()
	require.Eventually(t, func() bool { return queue.Len() == 2 }, 2*time.Second, time.Millisecond)

	close(v.release)
	for range 3 {
		assert.NoError(t, <-errs)
	}
	assert.Equal(t, []string{"play track_a", "play track_c"}, s.rec.Take())
}

func TestDispatcher_Hooks(t *testing.T) {
	var mu sync.Mutex
	var picks []string
	var settles []Outcome
	hooks := Hooks{
		OnPick: func(_ context.Context, e *PickEvent) {
			mu.Lock()
			defer mu.Unlock()
			picks = append(picks, e.Manager+":"+strings.Join(refsOf(e.Transition.In), ","))
		},
		OnSettle: func(_ context.Context, e *SettleEvent) {
			mu.Lock()
			defer mu.Unlock()
			settles = append(settles, e.Outcome)
		},
	}

	s := newFakeSubject().withParts("banner").withOps("greet")
	d := newTestDispatcher(t, s, bannerConfig(), WithHooks(hooks))
	s.set("status", "new")
	require.NoError(t, d.Apply(t.Context()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"display:.banner", "action:greet"}, picks)
	// the init clear bypasses the queue
	assert.Equal(t, []Outcome{OutcomeApplied, OutcomeApplied}, settles)
}

func TestDispatcher_Dependencies(t *testing.T) {
	cfg := ir.Config{
		Aliases: map[string][]ir.ConditionSet{
			"signed_in": {{"user.id": ir.Predicate("not_null")}},
		},
		Managers: []ir.ManagerConfig{{
			Kind: ir.KindAction,
			Declarations: []ir.Declaration{
				ir.Declare(ir.Alias("signed_in"), ir.Then("greet")),
				ir.Declare(ir.Match(ir.ConditionSet{
					"cart.count":     ir.Assertions{{Name: "more_than", Operand: ir.Int(0)}},
					"cart.old_count": ir.Equals{Value: ir.Int(0)},
					"status":         oneOf("new"),
				}), ir.Then("checkout")),
			},
		}},
	}
	d := newTestDispatcher(t, newFakeSubject(), cfg)

	assert.Equal(t, map[string][]string{
		"user": {"id"},
		"cart": {"count"},
	}, d.Dependencies())
}

func TestDispatcher_WatchTriggersApplyOnChildChange(t *testing.T) {
	s := newFakeSubject().withOps("checkout")
	cart := s.addChild("cart", "cart-1")
	cfg := ir.Config{Managers: []ir.ManagerConfig{{
		Kind: ir.KindAction,
		Declarations: []ir.Declaration{ir.Declare(
			ir.Match(ir.ConditionSet{"cart.count": ir.Assertions{{Name: "more_than", Operand: ir.Int(0)}}}),
			ir.Then("checkout"),
		)},
	}}}
	d := newTestDispatcher(t, s, cfg)

	require.NoError(t, d.Watch(t.Context()))
	assert.Equal(t, []string{"count"}, cart.published)

	cart.set("count", 2)
	s.emit(ChangeEvent, "cart")
	d.Wait()

	assert.Equal(t, []string{"call checkout"}, s.rec.Take())
}

func TestDispatcher_WatchNeedsEventSource(t *testing.T) {
	cfg := ir.Config{Managers: []ir.ManagerConfig{{
		Kind: ir.KindAction,
		Declarations: []ir.Declaration{ir.Declare(
			ir.Match(ir.ConditionSet{"cart.count": ir.Predicate("not_null")}),
			ir.Then("checkout"),
		)},
	}}}
	d := newTestDispatcher(t, bareSubject{}, cfg)

	assert.ErrorIs(t, d.Watch(t.Context()), ErrNoEventSource)
}

func TestDispatcher_WatchWithoutDependenciesIsNoop(t *testing.T) {
	d := newTestDispatcher(t, bareSubject{}, ir.Config{Managers: []ir.ManagerConfig{{Kind: ir.KindAction}}})
	assert.NoError(t, d.Watch(t.Context()))
}

func TestDispatcher_SharedClock(t *testing.T) {
	s := newFakeSubject().withParts("banner").withOps("greet")
	d := newTestDispatcher(t, s, bannerConfig(), WithClock(NewClockAt(40)))

	assert.Equal(t, int64(40), d.Clock().Current())

	s.set("status", "new")
	require.NoError(t, d.Apply(t.Context()))
	assert.Equal(t, int64(42), d.Clock().Current(), "one seq per manager job")
}
