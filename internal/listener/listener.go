// internal/listener/listener.go
//
// The listener turns host scene notifications into session transitions:
// every load or save re-derives the context from the file path, asks the user
// when the resolver cannot decide, and hands the result to the session
// manager. Nothing that goes wrong in here may reach the host.

package listener

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/kingrea/pipectx/internal/chooser"
	"github.com/kingrea/pipectx/internal/pipeline"
	"github.com/kingrea/pipectx/internal/resolver"
	"github.com/kingrea/pipectx/internal/session"
)

// HostHooks is the host's callback surface.
type HostHooks interface {
	OnSceneLoad(func(path string))
	OnSceneSave(func(path string))
	OnStartupComplete(func())
}

// Deriver derives a context from a scene path.
type Deriver interface {
	Derive(ctx context.Context, filePath string, previous pipeline.Context) (resolver.Outcome, error)
}

// Sessions is the part of the session manager the listener drives.
type Sessions interface {
	Refresh(ctx context.Context, res session.Resolution) error
	Context() pipeline.Context
}

// Readiness is told when the host finished starting up.
type Readiness interface {
	MarkReady()
}

// Logger is the logging surface the listener writes to.
type Logger interface {
	Printf(format string, args ...any)
}

// Recorder counts resolution outcomes.
type Recorder interface {
	ObserveResolution(outcome string)
}

// Option customizes a Listener.
type Option func(*Listener)

// WithLogger routes diagnostics to logger.
func WithLogger(logger Logger) Option {
	return func(l *Listener) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithSteps sets the step allow-list offered by the chooser.
func WithSteps(steps []string) Option {
	return func(l *Listener) {
		if len(steps) > 0 {
			l.steps = append([]string(nil), steps...)
		}
	}
}

// WithExitOnCancel terminates the process through exit when the user
// dismisses the chooser. Without it a dismissal disables the integration.
func WithExitOnCancel(exit func(code int)) Option {
	return func(l *Listener) {
		if exit != nil {
			l.exit = exit
		}
	}
}

// WithReadiness sets who is told about startup completion.
func WithReadiness(r Readiness) Option {
	return func(l *Listener) {
		if r != nil {
			l.readiness = r
		}
	}
}

// WithRecorder counts resolution outcomes.
func WithRecorder(r Recorder) Option {
	return func(l *Listener) {
		if r != nil {
			l.recorder = r
		}
	}
}

// WithContext sets the context hook callbacks run under.
func WithContext(ctx context.Context) Option {
	return func(l *Listener) {
		if ctx != nil {
			l.baseCtx = ctx
		}
	}
}

// Listener reacts to scene events.
type Listener struct {
	deriver  Deriver
	chooser  chooser.Chooser
	sessions Sessions

	steps     []string
	exit      func(code int)
	readiness Readiness
	logger    Logger
	recorder  Recorder
	baseCtx   context.Context

	mu         sync.Mutex
	registered bool
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// New wires a listener.
func New(deriver Deriver, choose chooser.Chooser, sessions Sessions, opts ...Option) (*Listener, error) {
	if deriver == nil {
		return nil, fmt.Errorf("listener: deriver is required")
	}
	if choose == nil {
		return nil, fmt.Errorf("listener: chooser is required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("listener: session manager is required")
	}
	l := &Listener{
		deriver:  deriver,
		chooser:  choose,
		sessions: sessions,
		steps:    chooser.DefaultSteps,
		logger:   nopLogger{},
		baseCtx:  context.Background(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l, nil
}

// Register binds the listener to the host hooks. Only the first call binds;
// it returns false for every later call.
func (l *Listener) Register(hooks HostHooks) bool {
	if hooks == nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.registered {
		l.logger.Printf("listener: already registered, ignoring")
		return false
	}
	hooks.OnSceneLoad(func(path string) { l.HandleScene(l.baseCtx, path) })
	hooks.OnSceneSave(func(path string) { l.HandleScene(l.baseCtx, path) })
	hooks.OnStartupComplete(l.HandleStartupComplete)
	l.registered = true
	return true
}

// Registered reports whether Register has bound the hooks.
func (l *Listener) Registered() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.registered
}

// HandleScene re-derives the context for path and refreshes the session.
// Load and save share it.
func (l *Listener) HandleScene(ctx context.Context, path string) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Printf("listener: panic handling %q: %v\n%s", path, r, debug.Stack())
			l.observe("panic")
			l.disable(ctx, fmt.Errorf("%w: %v", pipeline.ErrSceneHandling, r))
		}
	}()
	l.logger.Printf("listener: scene event for %q", path)

	out, err := l.deriver.Derive(ctx, path, l.sessions.Context())
	if err != nil {
		l.logger.Printf("listener: resolve %q: %v", path, err)
		l.observe("error")
		l.disable(ctx, err)
		return
	}
	l.observe(string(out.Kind))

	switch out.Kind {
	case resolver.KindRetained:
		return
	case resolver.KindUnresolved:
		l.logger.Printf("listener: %v", out.Reason)
		l.disable(ctx, out.Reason)
	case resolver.KindResolved:
		l.refresh(ctx, out.Context)
	case resolver.KindNeedsChoice:
		l.choose(ctx, out)
	default:
		l.disable(ctx, fmt.Errorf("listener: unknown outcome %q", out.Kind))
	}
}

// HandleStartupComplete marks the host ready for menu publication.
func (l *Listener) HandleStartupComplete() {
	l.logger.Printf("listener: host startup complete")
	if l.readiness != nil {
		l.readiness.MarkReady()
	}
}

func (l *Listener) choose(ctx context.Context, out resolver.Outcome) {
	l.logger.Printf("listener: asking user for %s: %v", out.Context, out.Reason)
	req := chooser.Request{
		Project: *out.Context.Project,
		Entity:  out.Context.Entity,
		Steps:   l.steps,
		Reason:  out.Reason,
	}
	task, err := l.chooser.Choose(ctx, req)
	if err != nil {
		if errors.Is(err, pipeline.ErrUserCancelled) {
			l.cancelled(ctx)
			return
		}
		l.logger.Printf("listener: chooser: %v", err)
		l.disable(ctx, err)
		return
	}
	chosen, err := out.Context.WithTask(task)
	if err != nil {
		l.logger.Printf("listener: chosen task %d: %v", task.ID, err)
		l.disable(ctx, err)
		return
	}
	l.logger.Printf("listener: user chose %s", chosen)
	l.refresh(ctx, chosen)
}

func (l *Listener) cancelled(ctx context.Context) {
	if l.exit != nil {
		l.logger.Printf("listener: task selection cancelled, exiting")
		l.exit(1)
		return
	}
	l.logger.Printf("listener: task selection cancelled, disabling")
	l.disable(ctx, pipeline.ErrUserCancelled)
}

func (l *Listener) refresh(ctx context.Context, c pipeline.Context) {
	if err := l.sessions.Refresh(ctx, session.Resolution{Context: c}); err != nil {
		l.logger.Printf("listener: %v", err)
	}
}

func (l *Listener) disable(ctx context.Context, reason error) {
	if err := l.sessions.Refresh(ctx, session.Resolution{Err: reason}); err != nil {
		l.logger.Printf("listener: %v", err)
	}
}

func (l *Listener) observe(outcome string) {
	if l.recorder != nil {
		l.recorder.ObserveResolution(outcome)
	}
}
