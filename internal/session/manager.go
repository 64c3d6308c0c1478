// internal/session/manager.go
//
// The manager owns the one long-lived session of the host process. A session
// is bound to exactly one context; moving to another context tears the old
// session down before the new one is built, so two sessions never coexist.

package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kingrea/pipectx/internal/pipeline"
)

// State is the lifecycle state of the manager.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateActive        State = "active"
	StateDisabled      State = "disabled"
	StateDestroyed     State = "destroyed"
)

// Session is one live binding between a context and its commands.
type Session struct {
	ID        string
	Context   pipeline.Context
	Commands  *Registry
	CreatedAt time.Time
}

// Resolution is the outcome handed to Refresh. A non-nil Err disables the
// integration; otherwise Context is the context to run under.
type Resolution struct {
	Context pipeline.Context
	Err     error
}

// Snapshot is the full observable state after a transition.
type Snapshot struct {
	State     State
	Context   pipeline.Context
	Reason    error
	SessionID string
	Commands  []CommandSpec
}

// Observer is told about every transition with a complete snapshot.
type Observer interface {
	SessionChanged(Snapshot)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Snapshot)

// SessionChanged calls f.
func (f ObserverFunc) SessionChanged(s Snapshot) { f(s) }

// Builder constructs the commands of a session for a context.
type Builder interface {
	Build(ctx context.Context, c pipeline.Context) (*Registry, error)
}

// BuilderFunc adapts a function to Builder.
type BuilderFunc func(ctx context.Context, c pipeline.Context) (*Registry, error)

// Build calls f.
func (f BuilderFunc) Build(ctx context.Context, c pipeline.Context) (*Registry, error) {
	return f(ctx, c)
}

// Logger is the subset of the logging package the manager uses.
type Logger interface {
	Printf(format string, args ...any)
}

// Recorder counts state transitions.
type Recorder interface {
	ObserveTransition(from, to string)
}

// Option customizes a Manager.
type Option func(*Manager)

// WithLogger routes manager diagnostics to logger.
func WithLogger(logger Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock overrides the clock used for CreatedAt.
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) {
		if clock != nil {
			m.now = clock
		}
	}
}

// WithIDGenerator overrides session id generation.
func WithIDGenerator(gen func() string) Option {
	return func(m *Manager) {
		if gen != nil {
			m.newID = gen
		}
	}
}

// WithObserver subscribes o from the start.
func WithObserver(o Observer) Option {
	return func(m *Manager) {
		if o != nil {
			m.observers = append(m.observers, o)
		}
	}
}

// WithRecorder counts transitions.
func WithRecorder(r Recorder) Option {
	return func(m *Manager) {
		if r != nil {
			m.recorder = r
		}
	}
}

// Manager is the session state machine.
type Manager struct {
	// refreshMu serializes transitions; mu guards the fields below it so
	// snapshots can be read while a transition is building.
	refreshMu sync.Mutex

	mu        sync.Mutex
	state     State
	session   *Session
	reason    error
	observers []Observer

	builder  Builder
	logger   Logger
	recorder Recorder
	now      func() time.Time
	newID    func() string
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// NewManager creates a manager in StateUninitialized.
func NewManager(builder Builder, opts ...Option) (*Manager, error) {
	if builder == nil {
		return nil, fmt.Errorf("session: builder is required")
	}
	m := &Manager{
		state:   StateUninitialized,
		builder: builder,
		logger:  nopLogger{},
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m, nil
}

// Subscribe adds an observer. It receives the current snapshot immediately.
func (m *Manager) Subscribe(o Observer) {
	if o == nil {
		return
	}
	m.mu.Lock()
	m.observers = append(m.observers, o)
	snap := m.snapshotLocked()
	m.mu.Unlock()
	o.SessionChanged(snap)
}

// Refresh moves the manager to res. Refreshing with the context of the active
// session is a no-op. The returned error reports a failed construction; the
// manager is Disabled in that case.
func (m *Manager) Refresh(ctx context.Context, res Resolution) error {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	m.mu.Lock()
	switch {
	case m.state == StateDestroyed:
		m.mu.Unlock()
		m.logger.Printf("session: refresh ignored after shutdown")
		return nil
	case res.Err == nil && m.state == StateActive && m.session.Context.Equal(res.Context):
		m.mu.Unlock()
		m.logger.Printf("session: context unchanged (%s), keeping session %s", res.Context, m.session.ID)
		return nil
	}
	m.mu.Unlock()

	m.teardown()

	if res.Err != nil {
		m.disable(res.Err)
		return nil
	}
	if res.Context.IsEmpty() {
		m.disable(pipeline.ErrUnresolvedProject)
		return nil
	}

	commands, err := m.build(ctx, res.Context)
	if err != nil {
		err = fmt.Errorf("%w: %s: %w", pipeline.ErrSessionConstruction, res.Context, err)
		m.disable(err)
		return err
	}

	s := &Session{
		ID:        m.newID(),
		Context:   res.Context,
		Commands:  commands,
		CreatedAt: m.now(),
	}
	m.transition(func() {
		m.session = s
		m.state = StateActive
		m.reason = nil
	})
	m.logger.Printf("session: %s started for %s with %d command(s)", s.ID, s.Context, commands.Len())
	return nil
}

// Shutdown destroys the active session. Later refreshes are ignored.
func (m *Manager) Shutdown() {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	m.mu.Lock()
	done := m.state == StateDestroyed
	m.mu.Unlock()
	if done {
		return
	}
	m.teardown()
	m.transition(func() {
		m.state = StateDestroyed
		m.reason = nil
	})
	m.logger.Printf("session: shut down")
}

// Launch runs a command of the active session by name.
func (m *Manager) Launch(ctx context.Context, name string) error {
	m.mu.Lock()
	if m.state != StateActive || m.session == nil {
		state := m.state
		m.mu.Unlock()
		return fmt.Errorf("session: cannot launch %q while %s", name, state)
	}
	spec, ok := m.session.Commands.Lookup(name)
	current := m.session.Context
	m.mu.Unlock()
	if !ok {
		m.logger.Printf("session: unknown command %q", name)
		return fmt.Errorf("session: unknown command %q", name)
	}
	m.logger.Printf("session: launching %q for %s", name, current)
	if err := spec.Run(ctx, current); err != nil {
		return fmt.Errorf("session: run %q: %w", name, err)
	}
	return nil
}

// Snapshot returns the current state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// State returns the lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Context returns the context of the active session, or the empty context.
func (m *Manager) Context() pipeline.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return pipeline.Context{}
	}
	return m.session.Context
}

func (m *Manager) teardown() {
	m.mu.Lock()
	s := m.session
	m.mu.Unlock()
	if s == nil {
		return
	}
	m.transition(func() {
		s.Commands.Clear()
		m.session = nil
		m.state = StateUninitialized
	})
	m.logger.Printf("session: %s destroyed (%s)", s.ID, s.Context)
}

func (m *Manager) disable(reason error) {
	m.transition(func() {
		m.state = StateDisabled
		m.reason = reason
	})
	m.logger.Printf("session: disabled: %v", reason)
}

func (m *Manager) build(ctx context.Context, c pipeline.Context) (commands *Registry, err error) {
	defer func() {
		if r := recover(); r != nil {
			commands = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	commands, err = m.builder.Build(ctx, c)
	if err != nil {
		return nil, err
	}
	if commands == nil {
		return nil, errors.New("builder returned no command registry")
	}
	return commands, nil
}

// transition applies mutate under the lock and then publishes the resulting
// snapshot to every observer outside of it.
func (m *Manager) transition(mutate func()) {
	m.mu.Lock()
	from := m.state
	mutate()
	snap := m.snapshotLocked()
	observers := append([]Observer(nil), m.observers...)
	m.mu.Unlock()

	if m.recorder != nil {
		m.recorder.ObserveTransition(string(from), string(snap.State))
	}
	for _, o := range observers {
		m.notify(o, snap)
	}
}

func (m *Manager) notify(o Observer, snap Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Printf("session: observer panicked: %v", r)
		}
	}()
	o.SessionChanged(snap)
}

func (m *Manager) snapshotLocked() Snapshot {
	snap := Snapshot{State: m.state, Reason: m.reason}
	if m.session != nil {
		snap.Context = m.session.Context
		snap.SessionID = m.session.ID
		snap.Commands = m.session.Commands.Specs()
	}
	return snap
}
