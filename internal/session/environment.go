package session

import (
	"context"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"

	"github.com/kingrea/pipectx/internal/pipeline"
)

const (
	EnvEngine     = "PIPECTX_ENGINE"
	EnvContext    = "PIPECTX_CONTEXT"
	EnvFileToOpen = "PIPECTX_FILE_TO_OPEN"
)

// Environment is what a parent process hands to a host it launches so the
// host starts directly in the right context.
type Environment struct {
	Engine     string `env:"PIPECTX_ENGINE"`
	Context    string `env:"PIPECTX_CONTEXT"`
	FileToOpen string `env:"PIPECTX_FILE_TO_OPEN"`
}

// NewEnvironment serializes c for a child process.
func NewEnvironment(engine string, c pipeline.Context, fileToOpen string) (Environment, error) {
	raw, err := pipeline.Serialize(c)
	if err != nil {
		return Environment{}, fmt.Errorf("session: environment: %w", err)
	}
	return Environment{Engine: engine, Context: raw, FileToOpen: fileToOpen}, nil
}

// LoadEnvironment reads the process environment.
func LoadEnvironment() (Environment, error) {
	return parseEnvironment(env.Options{})
}

// LoadEnvironmentFrom reads vars instead of the process environment.
func LoadEnvironmentFrom(vars map[string]string) (Environment, error) {
	return parseEnvironment(env.Options{Environment: vars})
}

func parseEnvironment(opts env.Options) (Environment, error) {
	var e Environment
	if err := env.ParseWithOptions(&e, opts); err != nil {
		return Environment{}, fmt.Errorf("session: read environment: %w", err)
	}
	return e, nil
}

// Export renders the environment as KEY=VALUE pairs for exec.Cmd.Env.
func (e Environment) Export() []string {
	out := []string{EnvEngine + "=" + e.Engine, EnvContext + "=" + e.Context}
	if e.FileToOpen != "" {
		out = append(out, EnvFileToOpen+"="+e.FileToOpen)
	}
	return out
}

// ParsedContext decodes the serialized context.
func (e Environment) ParsedContext() (pipeline.Context, error) {
	return pipeline.Deserialize(e.Context)
}

// Unset removes the variables from the process environment.
func Unset() {
	for _, key := range []string{EnvEngine, EnvContext, EnvFileToOpen} {
		_ = os.Unsetenv(key)
	}
}

// Bootstrap starts a session from the variables a parent process exported and
// then clears them so child processes of the host do not inherit a stale
// context. It reports whether a session was requested.
func Bootstrap(ctx context.Context, m *Manager, e Environment, logger Logger) (bool, error) {
	if e.Engine == "" {
		return false, nil
	}
	defer Unset()
	if logger == nil {
		logger = nopLogger{}
	}
	c, err := e.ParsedContext()
	if err != nil {
		logger.Printf("session: bootstrap: %v", err)
		return true, fmt.Errorf("session: bootstrap: %w", err)
	}
	logger.Printf("session: bootstrapping %s for %s", e.Engine, c)
	return true, m.Refresh(ctx, Resolution{Context: c})
}
