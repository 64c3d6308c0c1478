package listener

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kingrea/pipectx/internal/chooser"
	"github.com/kingrea/pipectx/internal/directory"
	"github.com/kingrea/pipectx/internal/pipeline"
	"github.com/kingrea/pipectx/internal/resolver"
	"github.com/kingrea/pipectx/internal/session"
)

const fixturesYAML = `
users:
  - {id: 1, login: alice}
  - {id: 2, login: bob}
tasks:
  - {id: 42, project: proj, entity: {type: Shot, id: shotA}, step: Lgt, assignees: [2]}
  - {id: 43, project: proj, entity: {type: Shot, id: shotA}, step: Lgt, assignees: [2]}
  - {id: 70, project: proj, entity: {type: Shot, id: shotB}, step: Lgt, assignees: [1]}
`

type fakeHooks struct {
	load    func(string)
	save    func(string)
	startup func()
}

func (h *fakeHooks) OnSceneLoad(fn func(string)) { h.load = fn }
func (h *fakeHooks) OnSceneSave(fn func(string)) { h.save = fn }
func (h *fakeHooks) OnStartupComplete(fn func()) { h.startup = fn }

type readiness struct{ ready bool }

func (r *readiness) MarkReady() { r.ready = true }

type fixture struct {
	listener *Listener
	manager  *session.Manager
	chooser  *chooser.Scripted
	builds   int
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	store, err := directory.Open(filepath.Join(t.TempDir(), "directory.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	fx, err := directory.ParseFixtures([]byte(fixturesYAML))
	require.NoError(t, err)
	_, _, err = store.Import(context.Background(), fx)
	require.NoError(t, err)

	d, err := resolver.NewDisambiguator(store, nil, resolver.StaticLogin("alice"))
	require.NoError(t, err)
	r, err := resolver.New(resolver.Settings{Templates: []string{
		"/{project}/{Shot}/{name}.scene",
		"/{project}/{name}.scene",
	}}, d)
	require.NoError(t, err)

	f := &fixture{chooser: &chooser.Scripted{}}
	f.manager, err = session.NewManager(session.BuilderFunc(func(ctx context.Context, c pipeline.Context) (*session.Registry, error) {
		f.builds++
		return session.NewRegistry(), nil
	}))
	require.NoError(t, err)
	f.listener, err = New(r, f.chooser, f.manager, opts...)
	require.NoError(t, err)
	return f
}

func TestRegisterBindsOnlyOnce(t *testing.T) {
	f := newFixture(t)
	hooks := &fakeHooks{}
	require.True(t, f.listener.Register(hooks))
	require.False(t, f.listener.Register(&fakeHooks{}))
	require.True(t, f.listener.Registered())
	require.NotNil(t, hooks.load)
	require.NotNil(t, hooks.save)
	require.NotNil(t, hooks.startup)
}

func TestSingleAssignedTaskResolvesWithoutChooser(t *testing.T) {
	f := newFixture(t)
	hooks := &fakeHooks{}
	f.listener.Register(hooks)

	hooks.load("/proj/shotB/light.scene")
	require.Equal(t, session.StateActive, f.manager.State())
	require.Equal(t, 70, f.manager.Context().Task.ID)
	require.Empty(t, f.chooser.Requests())
}

func TestChooserPicksTaskAndReloadIsNoop(t *testing.T) {
	f := newFixture(t)
	f.chooser.Answer = pipeline.TaskRef{ID: 42, Step: "Lgt", Entity: pipeline.EntityRef{Type: "Shot", ID: "shotA"}}
	ctx := context.Background()

	f.listener.HandleScene(ctx, "/proj/shotA/final.scene")
	requests := f.chooser.Requests()
	require.Len(t, requests, 1)
	require.Equal(t, []string{"Lgt", "Shd", "FX"}, requests[0].Steps)
	require.ErrorIs(t, requests[0].Reason, pipeline.ErrNoAssignableTask)
	require.Equal(t, "shotA", requests[0].Entity.ID)

	require.Equal(t, session.StateActive, f.manager.State())
	require.Equal(t, 42, f.manager.Context().Task.ID)
	first := f.manager.Snapshot().SessionID

	f.listener.HandleScene(ctx, "/proj/shotA/final.scene")
	require.Len(t, f.chooser.Requests(), 1)
	require.Equal(t, 1, f.builds)
	require.Equal(t, first, f.manager.Snapshot().SessionID)
}

func TestProjectOnlyChoiceFillsEntityFromTask(t *testing.T) {
	f := newFixture(t)
	f.chooser.Answer = pipeline.TaskRef{ID: 70, Step: "Lgt", Entity: pipeline.EntityRef{Type: "Shot", ID: "shotB"}}

	f.listener.HandleScene(context.Background(), "/proj/notes.scene")
	require.Len(t, f.chooser.Requests(), 1)
	require.Nil(t, f.chooser.Requests()[0].Entity)
	c := f.manager.Context()
	require.Equal(t, "shotB", c.Entity.ID)
	require.Equal(t, 70, c.Task.ID)
}

func TestUnknownPathDisables(t *testing.T) {
	f := newFixture(t)
	f.listener.HandleScene(context.Background(), "/scratch/untitled.txt")
	snap := f.manager.Snapshot()
	require.Equal(t, session.StateDisabled, snap.State)
	require.ErrorIs(t, snap.Reason, pipeline.ErrUnresolvedProject)
}

func TestEmptyPathKeepsCurrentSession(t *testing.T) {
	f := newFixture(t)
	f.listener.HandleScene(context.Background(), "/proj/shotB/light.scene")
	f.listener.HandleScene(context.Background(), "")
	require.Equal(t, session.StateActive, f.manager.State())
	require.Equal(t, 1, f.builds)
}

func TestCancelDisablesByDefault(t *testing.T) {
	f := newFixture(t)
	f.chooser.Err = pipeline.ErrUserCancelled
	f.listener.HandleScene(context.Background(), "/proj/shotA/final.scene")
	snap := f.manager.Snapshot()
	require.Equal(t, session.StateDisabled, snap.State)
	require.ErrorIs(t, snap.Reason, pipeline.ErrUserCancelled)
}

func TestCancelExitsWhenConfigured(t *testing.T) {
	code := -1
	f := newFixture(t, WithExitOnCancel(func(c int) { code = c }))
	f.chooser.Err = pipeline.ErrUserCancelled
	f.listener.HandleScene(context.Background(), "/proj/shotA/final.scene")
	require.Equal(t, 1, code)
}

func TestChooserFailureDisables(t *testing.T) {
	f := newFixture(t)
	f.chooser.Err = errors.New("terminal gone")
	f.listener.HandleScene(context.Background(), "/proj/shotA/final.scene")
	require.Equal(t, session.StateDisabled, f.manager.State())
}

type panickingDeriver struct{}

func (panickingDeriver) Derive(context.Context, string, pipeline.Context) (resolver.Outcome, error) {
	panic("resolver bug")
}

func TestPanicIsContainedAndDisables(t *testing.T) {
	m, err := session.NewManager(session.BuilderFunc(func(context.Context, pipeline.Context) (*session.Registry, error) {
		return session.NewRegistry(), nil
	}))
	require.NoError(t, err)
	l, err := New(panickingDeriver{}, &chooser.Scripted{}, m)
	require.NoError(t, err)

	require.NotPanics(t, func() { l.HandleScene(context.Background(), "/proj/shotA/final.scene") })
	snap := m.Snapshot()
	require.Equal(t, session.StateDisabled, snap.State)
	require.ErrorContains(t, snap.Reason, "resolver bug")
	require.ErrorIs(t, snap.Reason, pipeline.ErrSceneHandling)
	require.NotErrorIs(t, snap.Reason, pipeline.ErrSessionConstruction)
}

func TestStartupCompleteMarksReadiness(t *testing.T) {
	r := &readiness{}
	f := newFixture(t, WithReadiness(r))
	hooks := &fakeHooks{}
	f.listener.Register(hooks)
	hooks.startup()
	require.True(t, r.ready)
}

type countingRecorder map[string]int

func (c countingRecorder) ObserveResolution(outcome string) { c[outcome]++ }

func TestOutcomesAreRecorded(t *testing.T) {
	rec := countingRecorder{}
	f := newFixture(t, WithRecorder(rec))
	f.listener.HandleScene(context.Background(), "/proj/shotB/light.scene")
	f.listener.HandleScene(context.Background(), "/elsewhere.txt")
	require.Equal(t, 1, rec[string(resolver.KindResolved)])
	require.Equal(t, 1, rec[string(resolver.KindUnresolved)])
}
