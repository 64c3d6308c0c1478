package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kingrea/pipectx/internal/pipeline"
)

type recordingObserver struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *recordingObserver) SessionChanged(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *recordingObserver) states() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]State, 0, len(r.snaps))
	for _, s := range r.snaps {
		out = append(out, s.State)
	}
	return out
}

type countingRecorder struct {
	transitions []string
}

func (c *countingRecorder) ObserveTransition(from, to string) {
	c.transitions = append(c.transitions, from+"->"+to)
}

func shotContext(t *testing.T, shot string, taskID int) pipeline.Context {
	t.Helper()
	project := pipeline.ProjectRef{Name: "proj"}
	entity := pipeline.EntityRef{Type: "Shot", ID: shot}
	task := pipeline.TaskRef{ID: taskID, Step: "Lgt", Entity: entity}
	c, err := pipeline.NewContext(&project, &entity, &task)
	require.NoError(t, err)
	return c
}

func echoBuilder(builds *int) Builder {
	return BuilderFunc(func(ctx context.Context, c pipeline.Context) (*Registry, error) {
		*builds++
		reg := NewRegistry()
		reg.MustRegister(CommandSpec{
			Name: "Echo",
			App:  "tk-multi-echo",
			Run:  func(context.Context, pipeline.Context) error { return nil },
		})
		return reg, nil
	})
}

func newTestManager(t *testing.T, builder Builder, opts ...Option) *Manager {
	t.Helper()
	ids := 0
	opts = append([]Option{
		WithClock(func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }),
		WithIDGenerator(func() string { ids++; return fmt.Sprintf("session-%d", ids) }),
	}, opts...)
	m, err := NewManager(builder, opts...)
	require.NoError(t, err)
	return m
}

func TestRefreshBuildsActiveSession(t *testing.T) {
	builds := 0
	obs := &recordingObserver{}
	m := newTestManager(t, echoBuilder(&builds), WithObserver(obs))
	require.Equal(t, StateUninitialized, m.State())

	require.NoError(t, m.Refresh(context.Background(), Resolution{Context: shotContext(t, "shotA", 42)}))
	snap := m.Snapshot()
	require.Equal(t, StateActive, snap.State)
	require.Equal(t, "session-1", snap.SessionID)
	require.Equal(t, 42, snap.Context.Task.ID)
	require.Len(t, snap.Commands, 1)
	require.Equal(t, []State{StateActive}, obs.states())
}

func TestRefreshWithEqualContextIsNoop(t *testing.T) {
	builds := 0
	obs := &recordingObserver{}
	m := newTestManager(t, echoBuilder(&builds), WithObserver(obs))
	ctx := context.Background()

	require.NoError(t, m.Refresh(ctx, Resolution{Context: shotContext(t, "shotA", 42)}))
	require.NoError(t, m.Refresh(ctx, Resolution{Context: shotContext(t, "shotA", 42)}))
	require.Equal(t, 1, builds)
	require.Equal(t, "session-1", m.Snapshot().SessionID)
	require.Len(t, obs.states(), 1)
}

func TestRefreshTearsDownBeforeBuilding(t *testing.T) {
	var order []string
	var m *Manager
	builder := BuilderFunc(func(ctx context.Context, c pipeline.Context) (*Registry, error) {
		order = append(order, fmt.Sprintf("build:%s:%s", c.Entity.ID, m.State()))
		reg := NewRegistry()
		reg.MustRegister(CommandSpec{Name: "Echo", Run: func(context.Context, pipeline.Context) error { return nil }})
		return reg, nil
	})
	m = newTestManager(t, builder, WithObserver(ObserverFunc(func(s Snapshot) {
		order = append(order, "notify:"+string(s.State))
	})))
	ctx := context.Background()

	require.NoError(t, m.Refresh(ctx, Resolution{Context: shotContext(t, "shotA", 42)}))
	first := m.Snapshot()
	require.NoError(t, m.Refresh(ctx, Resolution{Context: shotContext(t, "shotB", 77)}))

	require.Equal(t, []string{
		"build:shotA:uninitialized",
		"notify:active",
		"notify:uninitialized",
		"build:shotB:uninitialized",
		"notify:active",
	}, order)
	require.NotEqual(t, first.SessionID, m.Snapshot().SessionID)
}

func TestRefreshClearsOldRegistry(t *testing.T) {
	var registries []*Registry
	builder := BuilderFunc(func(ctx context.Context, c pipeline.Context) (*Registry, error) {
		reg := NewRegistry()
		reg.MustRegister(CommandSpec{Name: "Echo", Run: func(context.Context, pipeline.Context) error { return nil }})
		registries = append(registries, reg)
		return reg, nil
	})
	m := newTestManager(t, builder)
	ctx := context.Background()
	require.NoError(t, m.Refresh(ctx, Resolution{Context: shotContext(t, "shotA", 42)}))
	require.NoError(t, m.Refresh(ctx, Resolution{Context: shotContext(t, "shotA", 43)}))

	require.Len(t, registries, 2)
	require.Zero(t, registries[0].Len())
	require.Equal(t, 1, registries[1].Len())
}

func TestRefreshWithErrorDisables(t *testing.T) {
	builds := 0
	m := newTestManager(t, echoBuilder(&builds))
	ctx := context.Background()
	require.NoError(t, m.Refresh(ctx, Resolution{Context: shotContext(t, "shotA", 42)}))

	require.NoError(t, m.Refresh(ctx, Resolution{Err: pipeline.ErrUnresolvedProject}))
	snap := m.Snapshot()
	require.Equal(t, StateDisabled, snap.State)
	require.ErrorIs(t, snap.Reason, pipeline.ErrUnresolvedProject)
	require.Empty(t, snap.Commands)
	require.True(t, snap.Context.IsEmpty())
}

func TestConstructionPanicDisables(t *testing.T) {
	builder := BuilderFunc(func(ctx context.Context, c pipeline.Context) (*Registry, error) {
		panic("app failed to load")
	})
	m := newTestManager(t, builder)

	err := m.Refresh(context.Background(), Resolution{Context: shotContext(t, "shotA", 42)})
	require.ErrorIs(t, err, pipeline.ErrSessionConstruction)
	require.ErrorContains(t, err, "app failed to load")
	snap := m.Snapshot()
	require.Equal(t, StateDisabled, snap.State)
	require.ErrorIs(t, snap.Reason, pipeline.ErrSessionConstruction)
	require.Empty(t, snap.SessionID)
}

func TestConstructionErrorDisables(t *testing.T) {
	builder := BuilderFunc(func(ctx context.Context, c pipeline.Context) (*Registry, error) {
		return nil, errors.New("bad app")
	})
	m := newTestManager(t, builder)
	err := m.Refresh(context.Background(), Resolution{Context: shotContext(t, "shotA", 42)})
	require.ErrorIs(t, err, pipeline.ErrSessionConstruction)
	require.Equal(t, StateDisabled, m.State())
}

func TestShutdownIsTerminal(t *testing.T) {
	builds := 0
	rec := &countingRecorder{}
	m := newTestManager(t, echoBuilder(&builds), WithRecorder(rec))
	ctx := context.Background()
	require.NoError(t, m.Refresh(ctx, Resolution{Context: shotContext(t, "shotA", 42)}))

	m.Shutdown()
	require.Equal(t, StateDestroyed, m.State())
	require.NoError(t, m.Refresh(ctx, Resolution{Context: shotContext(t, "shotB", 43)}))
	require.Equal(t, StateDestroyed, m.State())
	require.Equal(t, 1, builds)
	require.Equal(t, []string{
		"uninitialized->active",
		"active->uninitialized",
		"uninitialized->destroyed",
	}, rec.transitions)
}

func TestLaunchRunsCommandAgainstContext(t *testing.T) {
	var got pipeline.Context
	builder := BuilderFunc(func(ctx context.Context, c pipeline.Context) (*Registry, error) {
		reg := NewRegistry()
		reg.MustRegister(CommandSpec{Name: "Publish", Run: func(_ context.Context, c pipeline.Context) error {
			got = c
			return nil
		}})
		return reg, nil
	})
	m := newTestManager(t, builder)
	ctx := context.Background()

	require.Error(t, m.Launch(ctx, "Publish"))
	require.NoError(t, m.Refresh(ctx, Resolution{Context: shotContext(t, "shotA", 42)}))
	require.NoError(t, m.Launch(ctx, "Publish"))
	require.Equal(t, 42, got.Task.ID)
	require.ErrorContains(t, m.Launch(ctx, "Missing"), "unknown command")
}

func TestObserverPanicDoesNotBreakTransition(t *testing.T) {
	builds := 0
	m := newTestManager(t, echoBuilder(&builds), WithObserver(ObserverFunc(func(Snapshot) {
		panic("menu exploded")
	})))
	require.NoError(t, m.Refresh(context.Background(), Resolution{Context: shotContext(t, "shotA", 42)}))
	require.Equal(t, StateActive, m.State())
}

func TestSubscribeReceivesCurrentSnapshot(t *testing.T) {
	builds := 0
	m := newTestManager(t, echoBuilder(&builds))
	require.NoError(t, m.Refresh(context.Background(), Resolution{Context: shotContext(t, "shotA", 42)}))
	obs := &recordingObserver{}
	m.Subscribe(obs)
	require.Equal(t, []State{StateActive}, obs.states())
}
