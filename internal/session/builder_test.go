package session

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kingrea/pipectx/internal/config"
	"github.com/kingrea/pipectx/internal/pipeline"
)

func builderConfig() *config.Config {
	pc := config.DefaultProjectConfig()
	pc.TrackerURL = "https://tracker.test/{entity_type}/{entity_id}?task={task_id}"
	pc.Commands = []config.CommandConfig{
		{Name: "Publish", App: "tk-multi-publish", Requires: "task", Run: "publish"},
		{Name: "Shot Overview", App: "tk-multi-overview", Kind: "custom_pane", Requires: "entity", Run: "overview"},
		{Name: "Project Browser", Kind: "node", Requires: "project", Run: "browse"},
	}
	return &config.Config{RootDir: "/jobs", Project: pc}
}

func TestConfigBuilderFiltersByRequirement(t *testing.T) {
	b, err := NewConfigBuilder(builderConfig(), WithLocator(func(pipeline.Context) []string { return []string{"/jobs/proj"} }))
	require.NoError(t, err)

	project := pipeline.ProjectRef{Name: "proj"}
	projectOnly, err := pipeline.NewContext(&project, nil, nil)
	require.NoError(t, err)
	reg, err := b.Build(context.Background(), projectOnly)
	require.NoError(t, err)
	require.Equal(t, []string{jumpToTracker, jumpToFileSystem, "Project Browser"}, reg.Names())

	reg, err = b.Build(context.Background(), shotContext(t, "shotA", 42))
	require.NoError(t, err)
	require.Equal(t, []string{jumpToTracker, jumpToFileSystem, "Publish", "Shot Overview", "Project Browser"}, reg.Names())
	spec, _ := reg.Lookup("Shot Overview")
	require.Equal(t, KindCustomPane, spec.Kind)
	require.Equal(t, RequiresEntity, spec.Requires)
}

func TestConfigBuilderRunsCommandsWithEnvironment(t *testing.T) {
	var gotCommand string
	var gotEnv []string
	runner := func(ctx context.Context, command string, env []string) error {
		gotCommand, gotEnv = command, env
		return nil
	}
	b, err := NewConfigBuilder(builderConfig(), WithRunner(runner))
	require.NoError(t, err)
	c := shotContext(t, "shotA", 42)
	reg, err := b.Build(context.Background(), c)
	require.NoError(t, err)

	spec, ok := reg.Lookup("Publish")
	require.True(t, ok)
	require.NoError(t, spec.Run(context.Background(), c))
	require.Equal(t, "publish", gotCommand)
	require.Contains(t, gotEnv, EnvEngine+"=tk-katana")

	var raw string
	for _, kv := range gotEnv {
		if strings.HasPrefix(kv, EnvContext+"=") {
			raw = strings.TrimPrefix(kv, EnvContext+"=")
		}
	}
	decoded, err := pipeline.Deserialize(raw)
	require.NoError(t, err)
	require.True(t, decoded.Equal(c))
}

func TestConfigBuilderBuiltinsUseOpener(t *testing.T) {
	var opened []string
	opener := func(ctx context.Context, target string) error {
		opened = append(opened, target)
		return nil
	}
	b, err := NewConfigBuilder(builderConfig(),
		WithOpener(opener),
		WithLocator(func(pipeline.Context) []string { return []string{"/jobs/proj/shotA", "/jobs/proj"} }))
	require.NoError(t, err)
	c := shotContext(t, "shotA", 42)
	reg, err := b.Build(context.Background(), c)
	require.NoError(t, err)

	tracker, _ := reg.Lookup(jumpToTracker)
	require.NoError(t, tracker.Run(context.Background(), c))
	files, _ := reg.Lookup(jumpToFileSystem)
	require.NoError(t, files.Run(context.Background(), c))
	require.Equal(t, []string{"https://tracker.test/Shot/shotA?task=42", "/jobs/proj/shotA", "/jobs/proj"}, opened)
}

func TestConfigBuilderRejectsUnknownKinds(t *testing.T) {
	cfg := builderConfig()
	cfg.Project.Commands = append(cfg.Project.Commands, config.CommandConfig{Name: "Odd", Kind: "panel", Run: "x"})
	_, err := NewConfigBuilder(cfg)
	require.Error(t, err)
}
