package resolver

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/kingrea/pipectx/internal/pipeline"
)

// Kind classifies the result of deriving a context.
type Kind string

const (
	// KindRetained means the path was empty and the previous context stands.
	KindRetained Kind = "retained"
	// KindResolved carries a complete context.
	KindResolved Kind = "resolved"
	// KindUnresolved means no project could be derived; the integration disables itself.
	KindUnresolved Kind = "unresolved"
	// KindNeedsChoice means a human has to pick the task.
	KindNeedsChoice Kind = "needs-choice"
)

// Outcome is the resolver's decision for one path. For KindNeedsChoice the
// Context holds the partial context known so far (project, maybe entity).
type Outcome struct {
	Kind    Kind
	Context pipeline.Context
	Reason  error
}

// Settings configures template matching.
type Settings struct {
	Templates []string
	// Projects restricts which project names are accepted. Empty accepts any.
	Projects []string
}

// Resolver maps scene paths to contexts.
type Resolver struct {
	templates     []*Template
	projects      map[string]struct{}
	disambiguator *Disambiguator
}

// New compiles settings into a resolver.
func New(settings Settings, disambiguator *Disambiguator) (*Resolver, error) {
	if disambiguator == nil {
		return nil, fmt.Errorf("resolver: disambiguator is required")
	}
	if len(settings.Templates) == 0 {
		return nil, fmt.Errorf("resolver: at least one template is required")
	}
	r := &Resolver{disambiguator: disambiguator}
	for _, pattern := range settings.Templates {
		tpl, err := ParseTemplate(pattern)
		if err != nil {
			return nil, err
		}
		r.templates = append(r.templates, tpl)
	}
	if len(settings.Projects) > 0 {
		r.projects = make(map[string]struct{}, len(settings.Projects))
		for _, name := range settings.Projects {
			if name = strings.TrimSpace(name); name != "" {
				r.projects[name] = struct{}{}
			}
		}
	}
	return r, nil
}

// Disambiguator exposes the task disambiguator used for entity-only paths.
func (r *Resolver) Disambiguator() *Disambiguator {
	return r.disambiguator
}

// Derive decides the context for filePath. The rules apply in order and the
// first one that matches wins:
//
//  1. no project: KindUnresolved
//  2. project without entity: KindNeedsChoice, whatever previous holds
//  3. project and entity without task: the previous task when previous points
//     at the same entity, otherwise the disambiguator's answer
//  4. explicit task: KindResolved as-is, no lookups
//
// The returned error is reserved for directory failures.
func (r *Resolver) Derive(ctx context.Context, filePath string, previous pipeline.Context) (Outcome, error) {
	if strings.TrimSpace(filePath) == "" {
		return Outcome{Kind: KindRetained, Context: previous}, nil
	}
	m, ok := r.match(filePath)
	if !ok {
		return Outcome{
			Kind:   KindUnresolved,
			Reason: fmt.Errorf("%w: %s", pipeline.ErrUnresolvedProject, filePath),
		}, nil
	}
	project := pipeline.ProjectRef{Name: m.Project}

	if m.Entity == nil {
		partial, err := pipeline.NewContext(&project, nil, nil)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Kind: KindNeedsChoice, Context: partial, Reason: pipeline.ErrAmbiguousEntity}, nil
	}

	if m.TaskID > 0 {
		task := pipeline.TaskRef{ID: m.TaskID, Step: m.Step, Entity: *m.Entity}
		resolved, err := pipeline.NewContext(&project, m.Entity, &task)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Kind: KindResolved, Context: resolved}, nil
	}

	partial, err := pipeline.NewContext(&project, m.Entity, nil)
	if err != nil {
		return Outcome{}, err
	}
	if previous.Task != nil && partial.SameEntity(previous) {
		return Outcome{Kind: KindResolved, Context: previous}, nil
	}
	task, err := r.disambiguator.Resolve(ctx, project, *m.Entity)
	if err != nil {
		if pipeline.NeedsChoice(err) {
			return Outcome{Kind: KindNeedsChoice, Context: partial, Reason: err}, nil
		}
		return Outcome{}, err
	}
	resolved, err := partial.WithTask(task)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Kind: KindResolved, Context: resolved}, nil
}

// Locations lists the directories the templates place c in. Relative
// templates are rooted at root.
func (r *Resolver) Locations(c pipeline.Context, root string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, tpl := range r.templates {
		location, ok := tpl.Locate(c)
		if !ok {
			continue
		}
		if !strings.HasPrefix(location, "/") {
			location = path.Join(filepath.ToSlash(root), location)
		}
		location = filepath.FromSlash(location)
		if _, dup := seen[location]; dup {
			continue
		}
		seen[location] = struct{}{}
		out = append(out, location)
	}
	return out
}

func (r *Resolver) match(filePath string) (Match, bool) {
	for _, tpl := range r.templates {
		m, ok := tpl.Match(filePath)
		if !ok {
			continue
		}
		if r.projects != nil {
			if _, known := r.projects[m.Project]; !known {
				continue
			}
		}
		return m, true
	}
	return Match{}, false
}
