// internal/config/config.go
//
// This package handles configuration and the .pipectx directory structure.
// Every project root that runs pipectx gets a .pipectx/ folder holding the
// config file, logs, and the local directory database.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// Dir is the name of the directory we create in each project root
	Dir = ".pipectx"

	defaultEngineName = "tk-katana"
	defaultMenuName   = "Shotgun"
	sgtkMenuName      = "Sgtk"

	// OnCancelDisable keeps the host running and disables the integration.
	OnCancelDisable = "disable"
	// OnCancelExit terminates the process when the user dismisses the chooser.
	OnCancelExit = "exit"

	defaultDirectoryTimeout = 10 * time.Second
	defaultMaxAttempts      = 3
)

const defaultConfigYAML = `# pipectx configuration
version: 1

engine: tk-katana

# Scene paths are matched against these templates in order. {project} names the
# project, {Shot}/{Asset} carry the entity id, {task_id} pins an explicit task.
templates:
  - pattern: /{project}/{Shot}/{name}.scene
  - pattern: /{project}/assets/{Asset}/{name}.scene

# Default pipeline step per entity type, used to narrow candidate tasks.
step_map:
  Shot: Lgt
  Asset: Shd

chooser:
  steps: [Lgt, Shd, FX]
  # disable (default) keeps the host alive when the user cancels; exit quits it.
  on_cancel: disable

directory:
  path: directory.db
  timeout: 10s
  max_attempts: 3

menu:
  use_sgtk_as_menu_name: false
  favourites: []

commands: []

# tracker_url is expanded with {project}, {entity_type}, {entity_id} and {task_id}
# for the "Jump to Tracker" command.
# tracker_url: https://tracker.example.com/{entity_type}/{entity_id}

debug_logging: false
`

// Template is a scene path pattern.
type Template struct {
	Pattern string `yaml:"pattern"`
}

// ChooserConfig configures the interactive task chooser.
type ChooserConfig struct {
	Steps    []string `yaml:"steps"`
	OnCancel string   `yaml:"on_cancel"`
}

// DirectoryConfig points at the local directory database and bounds queries.
type DirectoryConfig struct {
	Path        string        `yaml:"path"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// Favourite pins one command to the top of the menu.
type Favourite struct {
	App  string `yaml:"app"`
	Name string `yaml:"name"`
}

// MenuConfig controls the host menu.
type MenuConfig struct {
	UseSgtkAsMenuName bool        `yaml:"use_sgtk_as_menu_name"`
	Favourites        []Favourite `yaml:"favourites"`
}

// CommandConfig declares one command offered by a session.
type CommandConfig struct {
	Name     string `yaml:"name"`
	Kind     string `yaml:"kind,omitempty"`
	App      string `yaml:"app,omitempty"`
	Requires string `yaml:"requires,omitempty"`
	Run      string `yaml:"run"`
	Hotkey   string `yaml:"hotkey,omitempty"`
	Icon     string `yaml:"icon,omitempty"`
}

// ProjectConfig models .pipectx/config.yaml.
type ProjectConfig struct {
	Version      int               `yaml:"version"`
	Engine       string            `yaml:"engine"`
	Projects     []string          `yaml:"projects,omitempty"`
	Templates    []Template        `yaml:"templates"`
	StepMap      map[string]string `yaml:"step_map"`
	Chooser      ChooserConfig     `yaml:"chooser"`
	Directory    DirectoryConfig   `yaml:"directory"`
	Menu         MenuConfig        `yaml:"menu"`
	Commands     []CommandConfig   `yaml:"commands"`
	TrackerURL   string            `yaml:"tracker_url,omitempty"`
	FileRoot     string            `yaml:"file_root,omitempty"`
	Bridge       BridgeConfig      `yaml:"bridge,omitempty"`
	DebugLogging bool              `yaml:"debug_logging"`
}

// Config holds the runtime configuration.
type Config struct {
	// RootDir is the directory pipectx was started from
	RootDir string

	// StateDir is RootDir/.pipectx
	StateDir string

	Project ProjectConfig
}

// InitDir creates the .pipectx directory structure and a default config file.
//
// Structure created:
// .pipectx/
// ├── config.yaml
// └── logs/
func InitDir(rootDir string) error {
	stateDir := filepath.Join(rootDir, Dir)
	if err := os.MkdirAll(filepath.Join(stateDir, "logs"), 0o755); err != nil {
		return err
	}
	return ensureConfigFile(filepath.Join(stateDir, "config.yaml"))
}

// Load reads the configuration rooted at rootDir. A missing config file yields defaults.
func Load(rootDir string) (*Config, error) {
	cfg := &Config{
		RootDir:  rootDir,
		StateDir: filepath.Join(rootDir, Dir),
		Project:  DefaultProjectConfig(),
	}
	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ConfigPath returns the on-disk location for the config file.
func (c *Config) ConfigPath() string {
	return filepath.Join(c.StateDir, "config.yaml")
}

// LogsDir returns the path to the logs directory
func (c *Config) LogsDir() string {
	return filepath.Join(c.StateDir, "logs")
}

// DirectoryPath returns the absolute path of the directory database.
func (c *Config) DirectoryPath() string {
	return resolvePath(c.StateDir, c.Project.Directory.Path)
}

// FileRoot returns the directory project folders live under. It defaults to
// RootDir.
func (c *Config) FileRoot() string {
	if root := resolvePath(c.RootDir, c.Project.FileRoot); root != "" {
		return root
	}
	return c.RootDir
}

// MenuName returns the root menu title.
func (c *Config) MenuName() string {
	if c.Project.Menu.UseSgtkAsMenuName {
		return sgtkMenuName
	}
	return defaultMenuName
}

// ExitOnCancel reports whether a dismissed chooser should terminate the process.
func (c *Config) ExitOnCancel() bool {
	return c.Project.Chooser.OnCancel == OnCancelExit
}

// SetEngine updates the engine name and persists the config.
func (c *Config) SetEngine(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("config: engine name is required")
	}
	c.Project.Engine = name
	return c.save()
}

func (c *Config) loadProjectConfig() error {
	path := c.ConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	parsed, err := Parse(data)
	if err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	c.Project = parsed
	return nil
}

// Parse decodes, defaults, normalizes, and validates a config payload.
func Parse(data []byte) (ProjectConfig, error) {
	var parsed ProjectConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return ProjectConfig{}, err
	}
	parsed.applyDefaults()
	parsed.normalize()
	if err := parsed.validate(); err != nil {
		return ProjectConfig{}, err
	}
	return parsed, nil
}

// DefaultProjectConfig returns the configuration used when no file exists.
func DefaultProjectConfig() ProjectConfig {
	pc := ProjectConfig{}
	pc.applyDefaults()
	pc.Templates = []Template{
		{Pattern: "/{project}/{Shot}/{name}.scene"},
		{Pattern: "/{project}/assets/{Asset}/{name}.scene"},
	}
	return pc
}

func (pc *ProjectConfig) applyDefaults() {
	if pc.Version == 0 {
		pc.Version = 1
	}
	if strings.TrimSpace(pc.Engine) == "" {
		pc.Engine = defaultEngineName
	}
	if pc.StepMap == nil {
		pc.StepMap = map[string]string{"Shot": "Lgt", "Asset": "Shd"}
	}
	if len(pc.Chooser.Steps) == 0 {
		pc.Chooser.Steps = []string{"Lgt", "Shd", "FX"}
	}
	if pc.Chooser.OnCancel == "" {
		pc.Chooser.OnCancel = OnCancelDisable
	}
	if pc.Directory.Path == "" {
		pc.Directory.Path = "directory.db"
	}
	if pc.Directory.Timeout <= 0 {
		pc.Directory.Timeout = defaultDirectoryTimeout
	}
	if pc.Directory.MaxAttempts <= 0 {
		pc.Directory.MaxAttempts = defaultMaxAttempts
	}
}

func (pc *ProjectConfig) normalize() {
	pc.Engine = strings.TrimSpace(pc.Engine)
	pc.Chooser.OnCancel = strings.ToLower(strings.TrimSpace(pc.Chooser.OnCancel))
	for i := range pc.Projects {
		pc.Projects[i] = strings.TrimSpace(pc.Projects[i])
	}
	for i := range pc.Templates {
		pc.Templates[i].Pattern = filepath.ToSlash(strings.TrimSpace(pc.Templates[i].Pattern))
	}
	for i := range pc.Commands {
		cmd := &pc.Commands[i]
		cmd.Name = strings.TrimSpace(cmd.Name)
		cmd.Kind = strings.ToLower(strings.TrimSpace(cmd.Kind))
		cmd.App = strings.TrimSpace(cmd.App)
		cmd.Requires = strings.ToLower(strings.TrimSpace(cmd.Requires))
	}
	pc.TrackerURL = strings.TrimSpace(pc.TrackerURL)
	pc.FileRoot = strings.TrimSpace(pc.FileRoot)
}

func (pc *ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	if len(pc.Templates) == 0 {
		return fmt.Errorf("at least one template is required")
	}
	for i, tpl := range pc.Templates {
		if tpl.Pattern == "" {
			return fmt.Errorf("templates[%d]: pattern is required", i)
		}
		if !strings.Contains(tpl.Pattern, "{project}") {
			return fmt.Errorf("templates[%d]: pattern must contain {project}", i)
		}
	}
	switch pc.Chooser.OnCancel {
	case OnCancelDisable, OnCancelExit:
	default:
		return fmt.Errorf("chooser.on_cancel must be '%s' or '%s'", OnCancelDisable, OnCancelExit)
	}
	seen := map[string]struct{}{}
	for i, cmd := range pc.Commands {
		if cmd.Name == "" {
			return fmt.Errorf("commands[%d]: name is required", i)
		}
		if _, dup := seen[cmd.Name]; dup {
			return fmt.Errorf("commands[%d]: duplicate name %q", i, cmd.Name)
		}
		seen[cmd.Name] = struct{}{}
		switch cmd.Kind {
		case "", "default", "context_menu", "node", "custom_pane":
		default:
			return fmt.Errorf("commands[%d]: unknown kind %q", i, cmd.Kind)
		}
		switch cmd.Requires {
		case "", "project", "entity", "task":
		default:
			return fmt.Errorf("commands[%d]: requires must be project, entity or task", i)
		}
	}
	if err := pc.Bridge.validate(); err != nil {
		return fmt.Errorf("bridge: %w", err)
	}
	return nil
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return ""
	}
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}

func ensureConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultConfigYAML), 0o644)
}

func (c *Config) save() error {
	if c == nil {
		return fmt.Errorf("config: nil receiver")
	}
	c.Project.applyDefaults()
	c.Project.normalize()
	if err := c.Project.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := os.MkdirAll(c.StateDir, 0o755); err != nil {
		return fmt.Errorf("config: ensure state dir: %w", err)
	}
	data, err := yaml.Marshal(c.Project)
	if err != nil {
		return fmt.Errorf("config: encode config: %w", err)
	}
	if err := os.WriteFile(c.ConfigPath(), data, 0o644); err != nil {
		return fmt.Errorf("config: write config: %w", err)
	}
	return nil
}
