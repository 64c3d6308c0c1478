package resolver

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/kingrea/pipectx/internal/directory"
	"github.com/kingrea/pipectx/internal/pipeline"
)

// DefaultStepMap is the pipeline step each entity type narrows to.
var DefaultStepMap = map[string]string{
	"Shot":  "Lgt",
	"Asset": "Shd",
}

// Disambiguator narrows an entity to one task: first by the entity type's
// default step, then by which candidate is assigned to the current user. It
// never picks between two equally valid candidates.
type Disambiguator struct {
	dir      directory.Client
	steps    map[string]string
	identity IdentitySource
}

// NewDisambiguator builds a disambiguator. A nil steps map uses
// DefaultStepMap and a nil identity uses CurrentLogin.
func NewDisambiguator(dir directory.Client, steps map[string]string, identity IdentitySource) (*Disambiguator, error) {
	if dir == nil {
		return nil, fmt.Errorf("resolver: directory client is required")
	}
	if steps == nil {
		steps = DefaultStepMap
	}
	if identity == nil {
		identity = CurrentLogin
	}
	return &Disambiguator{dir: dir, steps: steps, identity: identity}, nil
}

// Step returns the default step for an entity type.
func (d *Disambiguator) Step(entityType string) (string, bool) {
	step, ok := d.steps[entityType]
	return step, ok && step != ""
}

// Resolve picks the task for entity. Escalations are returned as errors that
// satisfy pipeline.NeedsChoice; directory failures wrap pipeline.ErrDirectoryQuery.
func (d *Disambiguator) Resolve(ctx context.Context, project pipeline.ProjectRef, entity pipeline.EntityRef) (pipeline.TaskRef, error) {
	step, ok := d.Step(entity.Type)
	if !ok {
		return pipeline.TaskRef{}, fmt.Errorf("%w: %s", pipeline.ErrUnmappedEntityType, entity.Type)
	}
	candidates, err := d.dir.FindTasks(ctx, project, &entity, step)
	if err != nil {
		return pipeline.TaskRef{}, queryError("find tasks", err)
	}
	switch len(candidates) {
	case 0:
		return pipeline.TaskRef{}, fmt.Errorf("%w: no %s task on %s", pipeline.ErrNoAssignableTask, step, entity)
	case 1:
		return withEntity(candidates[0], entity), nil
	}

	users, err := d.dir.FindUsers(ctx, assigneeUnion(candidates))
	if err != nil {
		return pipeline.TaskRef{}, queryError("find users", err)
	}
	login, err := d.identity()
	if err == nil && login == "" {
		err = errors.New("empty login")
	}
	if err != nil {
		return pipeline.TaskRef{}, fmt.Errorf("%w: %v", pipeline.ErrNoAssignableTask, err)
	}

	var matched []pipeline.TaskRef
	for _, task := range candidates {
		for _, assignee := range task.Assignees {
			if users[assignee.ID].Login == login {
				matched = append(matched, task)
				break
			}
		}
	}
	switch len(matched) {
	case 1:
		return withEntity(withLogins(matched[0], users), entity), nil
	case 0:
		return pipeline.TaskRef{}, fmt.Errorf("%w: %d %s tasks on %s, none assigned to %s",
			pipeline.ErrNoAssignableTask, len(candidates), step, entity, login)
	default:
		return pipeline.TaskRef{}, fmt.Errorf("%w: %d %s tasks on %s assigned to %s",
			pipeline.ErrMultipleAssignedTasks, len(matched), step, entity, login)
	}
}

func queryError(op string, err error) error {
	if errors.Is(err, pipeline.ErrDirectoryQuery) {
		return fmt.Errorf("resolver: %s: %w", op, err)
	}
	return fmt.Errorf("resolver: %s: %w: %w", op, pipeline.ErrDirectoryQuery, err)
}

func assigneeUnion(tasks []pipeline.TaskRef) []int {
	seen := map[int]struct{}{}
	var ids []int
	for _, task := range tasks {
		for _, id := range task.AssigneeIDs() {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids
}

func withLogins(task pipeline.TaskRef, users map[int]pipeline.UserRef) pipeline.TaskRef {
	assignees := make([]pipeline.UserRef, 0, len(task.Assignees))
	for _, a := range task.Assignees {
		if u, ok := users[a.ID]; ok {
			assignees = append(assignees, u)
			continue
		}
		assignees = append(assignees, a)
	}
	task.Assignees = assignees
	return task
}

func withEntity(task pipeline.TaskRef, entity pipeline.EntityRef) pipeline.TaskRef {
	if task.Entity == (pipeline.EntityRef{}) {
		task.Entity = entity
	}
	return task
}
