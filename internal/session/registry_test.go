package session

import (
	"context"
	"testing"

	"github.com/kingrea/pipectx/internal/pipeline"
)

func noop(context.Context, pipeline.Context) error { return nil }

func TestRegistryKeepsRegistrationOrder(t *testing.T) {
	reg := NewRegistry()
	for _, name := range []string{"Publish", "Loader", "Breakdown"} {
		if err := reg.Register(CommandSpec{Name: name, Run: noop}); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}
	got := reg.Names()
	want := []string{"Publish", "Loader", "Breakdown"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
	spec, ok := reg.Lookup("Loader")
	if !ok || spec.Kind != KindDefault {
		t.Fatalf("expected default kind for Loader, got %+v", spec)
	}
}

func TestRegistryRejectsDuplicatesAndMissingRun(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(CommandSpec{Name: "Publish", Run: noop})
	if err := reg.Register(CommandSpec{Name: "Publish", Run: noop}); err == nil {
		t.Fatalf("expected duplicate error")
	}
	if err := reg.Register(CommandSpec{Name: "Broken"}); err == nil {
		t.Fatalf("expected missing run error")
	}
	defer func() {
		if recover() == nil {
			t.Fatalf("expected MustRegister to panic")
		}
	}()
	reg.MustRegister(CommandSpec{})
}

func TestRegistryClear(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(CommandSpec{Name: "Publish", Run: noop})
	reg.Clear()
	if reg.Len() != 0 || len(reg.Specs()) != 0 {
		t.Fatalf("expected empty registry after clear")
	}
	if _, ok := reg.Lookup("Publish"); ok {
		t.Fatalf("expected lookup to miss after clear")
	}
}

func TestLevelSatisfied(t *testing.T) {
	project := pipeline.ProjectRef{Name: "proj"}
	projectOnly, _ := pipeline.NewContext(&project, nil, nil)
	if !RequiresProject.Satisfied(projectOnly) || RequiresEntity.Satisfied(projectOnly) {
		t.Fatalf("unexpected level checks for %s", projectOnly)
	}
	if !RequiresNothing.Satisfied(pipeline.Context{}) {
		t.Fatalf("RequiresNothing must always hold")
	}
	if _, err := ParseLevel("sequence"); err == nil {
		t.Fatalf("expected unknown level error")
	}
	if k, err := ParseKind(""); err != nil || k != KindDefault {
		t.Fatalf("expected empty kind to default, got %q %v", k, err)
	}
}
