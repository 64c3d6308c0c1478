package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kingrea/pipectx/internal/config"
	"github.com/kingrea/pipectx/internal/logging"
	"github.com/kingrea/pipectx/internal/menu"
	"github.com/kingrea/pipectx/internal/resolver"
	"github.com/kingrea/pipectx/internal/session"
)

const fixturesYAML = `
users:
  - {id: 1, login: alice}
  - {id: 2, login: bob}
tasks:
  - {id: 42, project: proj, entity: {type: Shot, id: shotA}, step: Lgt, assignees: [2]}
  - {id: 43, project: proj, entity: {type: Shot, id: shotA}, step: Lgt, assignees: [1]}
`

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("pipectx %s: %v\n%s", strings.Join(args, " "), err, out.String())
	}
	return out.String()
}

func TestInitImportResolve(t *testing.T) {
	root := t.TempDir()
	execute(t, "init", "--root", root)
	if _, err := os.Stat(filepath.Join(root, ".pipectx", "config.yaml")); err != nil {
		t.Fatalf("config not created: %v", err)
	}

	fixtures := filepath.Join(root, "fixtures.yaml")
	if err := os.WriteFile(fixtures, []byte(fixturesYAML), 0o644); err != nil {
		t.Fatalf("write fixtures: %v", err)
	}
	out := execute(t, "directory", "import", fixtures, "--root", root)
	if !strings.Contains(out, "imported 2 users and 2 tasks") {
		t.Fatalf("unexpected import output %q", out)
	}

	out = execute(t, "resolve", "/proj/shotA/light.scene", "--as", "bob", "--json", "--root", root)
	var result resolveOutput
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("decode resolve output %q: %v", out, err)
	}
	if result.Kind != resolver.KindResolved || result.Context.Task == nil || result.Context.Task.ID != 42 {
		t.Fatalf("unexpected resolution %+v", result)
	}

	out = execute(t, "resolve", "/elsewhere/file.txt", "--as", "bob", "--json=false", "--root", root)
	if !strings.HasPrefix(out, string(resolver.KindUnresolved)) {
		t.Fatalf("expected unresolved, got %q", out)
	}
}

func TestMenuCommandRendersResolvedContext(t *testing.T) {
	root := t.TempDir()
	execute(t, "init", "--root", root)
	fixtures := filepath.Join(root, "fixtures.yaml")
	if err := os.WriteFile(fixtures, []byte(fixturesYAML), 0o644); err != nil {
		t.Fatalf("write fixtures: %v", err)
	}
	execute(t, "directory", "import", fixtures, "--root", root)

	out := execute(t, "menu", "/proj/shotA/light.scene", "--as", "alice", "--json=false", "--root", root)
	if !strings.Contains(out, "Lgt, Shot shotA") {
		t.Fatalf("menu missing context title:\n%s", out)
	}
}

func TestAppMenuPinsConfiguredFavourites(t *testing.T) {
	root := t.TempDir()
	execute(t, "init", "--root", root)
	c, err := config.Load(root)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	c.Project.Menu.Favourites = []config.Favourite{{App: "tk-multi-publish", Name: "Publish"}}
	a, err := newApp(context.Background(), c, logging.Nop(), appOptions{noPrompt: true})
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer a.Close()

	snap := session.Snapshot{State: session.StateActive, Commands: []session.CommandSpec{
		{Name: "Publish", App: "tk-multi-publish"},
		{Name: "Snapshot", App: "tk-multi-publish"},
	}}
	items := a.menuFor(snap).Items
	if len(items) < 5 {
		t.Fatalf("expected favourite and app submenu, got %+v", items)
	}
	if items[2].Kind != menu.ItemCommand || items[2].Title != "Publish" {
		t.Fatalf("favourite not pinned at top level: %+v", items[2])
	}
	if items[4].Kind != menu.ItemSubmenu || items[4].Title != "tk-multi-publish" {
		t.Fatalf("app submenu missing: %+v", items[4])
	}
}

func TestEngineSetPersists(t *testing.T) {
	root := t.TempDir()
	execute(t, "init", "--root", root)
	execute(t, "engine", "set", "tk-nuke", "--root", root)
	out := execute(t, "engine", "show", "--root", root)
	if strings.TrimSpace(out) != "tk-nuke" {
		t.Fatalf("engine = %q", out)
	}
}
