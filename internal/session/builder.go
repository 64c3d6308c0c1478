package session

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"

	"github.com/kingrea/pipectx/internal/config"
	"github.com/kingrea/pipectx/internal/pipeline"
)

const (
	jumpToTracker    = "Jump to Tracker"
	jumpToFileSystem = "Jump to File System"
)

// Runner executes a configured shell command with extra environment.
type Runner func(ctx context.Context, command string, env []string) error

// Opener hands a URL or directory to the desktop.
type Opener func(ctx context.Context, target string) error

// Locator lists the filesystem locations of a context.
type Locator func(c pipeline.Context) []string

// BuilderOption customizes a ConfigBuilder.
type BuilderOption func(*ConfigBuilder)

// WithRunner swaps the shell command executor.
func WithRunner(r Runner) BuilderOption {
	return func(b *ConfigBuilder) {
		if r != nil {
			b.run = r
		}
	}
}

// WithOpener swaps the desktop opener.
func WithOpener(o Opener) BuilderOption {
	return func(b *ConfigBuilder) {
		if o != nil {
			b.open = o
		}
	}
}

// WithLocator sets how "Jump to File System" finds directories.
func WithLocator(l Locator) BuilderOption {
	return func(b *ConfigBuilder) {
		if l != nil {
			b.locate = l
		}
	}
}

// ConfigBuilder builds sessions from the commands declared in config.
type ConfigBuilder struct {
	engine     string
	trackerURL string
	commands   []config.CommandConfig
	run        Runner
	open       Opener
	locate     Locator
}

// NewConfigBuilder validates the configured commands up front so a bad
// declaration fails at startup rather than on the first scene load.
func NewConfigBuilder(cfg *config.Config, opts ...BuilderOption) (*ConfigBuilder, error) {
	if cfg == nil {
		return nil, fmt.Errorf("session: config is required")
	}
	for _, cmd := range cfg.Project.Commands {
		if _, err := ParseKind(cmd.Kind); err != nil {
			return nil, err
		}
		if _, err := ParseLevel(cmd.Requires); err != nil {
			return nil, err
		}
	}
	b := &ConfigBuilder{
		engine:     cfg.Project.Engine,
		trackerURL: cfg.Project.TrackerURL,
		commands:   append([]config.CommandConfig(nil), cfg.Project.Commands...),
		run:        shellRunner,
		open:       desktopOpener,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b, nil
}

// Build implements Builder.
func (b *ConfigBuilder) Build(ctx context.Context, c pipeline.Context) (*Registry, error) {
	reg := NewRegistry()
	if b.trackerURL != "" {
		reg.MustRegister(CommandSpec{
			Name:     jumpToTracker,
			Kind:     KindContextMenu,
			Requires: RequiresProject,
			Run: func(ctx context.Context, c pipeline.Context) error {
				return b.open(ctx, TrackerURL(b.trackerURL, c))
			},
		})
	}
	if b.locate != nil {
		reg.MustRegister(CommandSpec{
			Name:     jumpToFileSystem,
			Kind:     KindContextMenu,
			Requires: RequiresProject,
			Run: func(ctx context.Context, c pipeline.Context) error {
				locations := b.locate(c)
				if len(locations) == 0 {
					return fmt.Errorf("no filesystem location for %s", c)
				}
				for _, location := range locations {
					if err := b.open(ctx, location); err != nil {
						return err
					}
				}
				return nil
			},
		})
	}

	for _, cmd := range b.commands {
		kind, _ := ParseKind(cmd.Kind)
		level, _ := ParseLevel(cmd.Requires)
		if !level.Satisfied(c) {
			continue
		}
		command := cmd.Run
		spec := CommandSpec{
			Name:     cmd.Name,
			Kind:     kind,
			App:      cmd.App,
			Hotkey:   cmd.Hotkey,
			Icon:     cmd.Icon,
			Requires: level,
			Metadata: map[string]string{"run": command},
			Run: func(ctx context.Context, c pipeline.Context) error {
				env, err := NewEnvironment(b.engine, c, "")
				if err != nil {
					return err
				}
				return b.run(ctx, command, env.Export())
			},
		}
		if err := reg.Register(spec); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// TrackerURL expands {project}, {entity_type}, {entity_id}, {task_id} and
// {step} in pattern. Missing parts expand to empty strings.
func TrackerURL(pattern string, c pipeline.Context) string {
	var project, entityType, entityID, taskID, step string
	if c.Project != nil {
		project = c.Project.Name
	}
	if c.Entity != nil {
		entityType, entityID = c.Entity.Type, c.Entity.ID
	}
	if c.Task != nil {
		taskID, step = strconv.Itoa(c.Task.ID), c.Task.Step
	}
	return strings.NewReplacer(
		"{project}", project,
		"{entity_type}", entityType,
		"{entity_id}", entityID,
		"{task_id}", taskID,
		"{step}", step,
	).Replace(pattern)
}

func shellRunner(ctx context.Context, command string, env []string) error {
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(ctx, "cmd", "/C", command)
	} else {
		cmd = exec.CommandContext(ctx, "/bin/sh", "-c", command)
	}
	cmd.Env = append(os.Environ(), env...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func desktopOpener(ctx context.Context, target string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.CommandContext(ctx, "open", target)
	case "windows":
		cmd = exec.CommandContext(ctx, "rundll32", "url.dll,FileProtocolHandler", target)
	default:
		cmd = exec.CommandContext(ctx, "xdg-open", target)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("open %s: %w", target, err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
