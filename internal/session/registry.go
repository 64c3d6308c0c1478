package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/kingrea/pipectx/internal/pipeline"
)

// Kind tags how the host presents a command.
type Kind string

const (
	KindDefault     Kind = "default"
	KindContextMenu Kind = "context_menu"
	KindNode        Kind = "node"
	KindCustomPane  Kind = "custom_pane"
)

// ParseKind maps a config value onto a Kind. Empty means KindDefault.
func ParseKind(raw string) (Kind, error) {
	switch Kind(raw) {
	case "":
		return KindDefault, nil
	case KindDefault, KindContextMenu, KindNode, KindCustomPane:
		return Kind(raw), nil
	}
	return "", fmt.Errorf("session: unknown command kind %q", raw)
}

// Level is how much context a command needs before it is offered.
type Level int

const (
	RequiresNothing Level = iota
	RequiresProject
	RequiresEntity
	RequiresTask
)

// ParseLevel maps a config value onto a Level.
func ParseLevel(raw string) (Level, error) {
	switch raw {
	case "":
		return RequiresNothing, nil
	case "project":
		return RequiresProject, nil
	case "entity":
		return RequiresEntity, nil
	case "task":
		return RequiresTask, nil
	}
	return 0, fmt.Errorf("session: unknown requirement %q", raw)
}

// Satisfied reports whether c carries at least the required level.
func (l Level) Satisfied(c pipeline.Context) bool {
	switch l {
	case RequiresProject:
		return c.Project != nil
	case RequiresEntity:
		return c.Entity != nil
	case RequiresTask:
		return c.Task != nil
	}
	return true
}

// RunFunc executes a command against the session's context.
type RunFunc func(ctx context.Context, c pipeline.Context) error

// CommandSpec is one command offered by a session.
type CommandSpec struct {
	Name     string
	Kind     Kind
	App      string
	Hotkey   string
	Icon     string
	Requires Level
	Metadata map[string]string
	Run      RunFunc
}

// Registry is an ordered set of commands keyed by name.
type Registry struct {
	mu    sync.RWMutex
	names []string
	specs map[string]CommandSpec
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{specs: map[string]CommandSpec{}}
}

// Register adds a command. Names must be unique.
func (r *Registry) Register(spec CommandSpec) error {
	if spec.Name == "" {
		return fmt.Errorf("session: command name is required")
	}
	if spec.Run == nil {
		return fmt.Errorf("session: command %s has no run function", spec.Name)
	}
	if spec.Kind == "" {
		spec.Kind = KindDefault
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.specs[spec.Name]; exists {
		return fmt.Errorf("session: command %s already registered", spec.Name)
	}
	r.specs[spec.Name] = spec
	r.names = append(r.names, spec.Name)
	return nil
}

// MustRegister panics if registration fails.
func (r *Registry) MustRegister(spec CommandSpec) {
	if err := r.Register(spec); err != nil {
		panic(err)
	}
}

// Lookup returns the command registered under name.
func (r *Registry) Lookup(name string) (CommandSpec, bool) {
	if r == nil {
		return CommandSpec{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.specs[name]
	return spec, ok
}

// Names returns command names in registration order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.names...)
}

// Specs returns the commands in registration order.
func (r *Registry) Specs() []CommandSpec {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]CommandSpec, 0, len(r.names))
	for _, name := range r.names {
		out = append(out, r.specs[name])
	}
	return out
}

// Len returns the number of commands.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.names)
}

// Clear removes every command.
func (r *Registry) Clear() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = nil
	r.specs = map[string]CommandSpec{}
}
