package pipeline

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// ProjectRef identifies a production project by its short name.
type ProjectRef struct {
	Name string `json:"name"`
}

// EntityRef identifies a pipeline entity such as a shot or an asset.
type EntityRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// String renders the entity as "Shot shotA".
func (e EntityRef) String() string {
	return strings.TrimSpace(e.Type + " " + e.ID)
}

// UserRef is a directory user record.
type UserRef struct {
	ID    int    `json:"id"`
	Login string `json:"login"`
}

// TaskRef is a unit of work on an entity for one pipeline step.
type TaskRef struct {
	ID        int       `json:"id"`
	Step      string    `json:"step"`
	Entity    EntityRef `json:"entity"`
	Assignees []UserRef `json:"assignees,omitempty"`
}

// AssigneeIDs returns the ids of the task's assignees in ascending order.
func (t TaskRef) AssigneeIDs() []int {
	ids := make([]int, 0, len(t.Assignees))
	for _, u := range t.Assignees {
		ids = append(ids, u.ID)
	}
	sort.Ints(ids)
	return ids
}

func (t TaskRef) equal(other TaskRef) bool {
	if t.ID != other.ID || t.Step != other.Step || t.Entity != other.Entity {
		return false
	}
	a, b := t.AssigneeIDs(), other.AssigneeIDs()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Context is the project/entity/task the user is working against. A zero
// Context is the empty context. Values are never mutated after construction;
// the With* helpers return copies.
type Context struct {
	Project *ProjectRef `json:"project,omitempty"`
	Entity  *EntityRef  `json:"entity,omitempty"`
	Task    *TaskRef    `json:"task,omitempty"`
}

// NewContext builds a context from optional parts and validates linkage.
func NewContext(project *ProjectRef, entity *EntityRef, task *TaskRef) (Context, error) {
	ctx := Context{}
	if project != nil {
		p := *project
		ctx.Project = &p
	}
	if entity != nil {
		e := *entity
		ctx.Entity = &e
	}
	if task != nil {
		t := *task
		t.Assignees = append([]UserRef(nil), task.Assignees...)
		ctx.Task = &t
	}
	if err := ctx.Validate(); err != nil {
		return Context{}, err
	}
	return ctx, nil
}

// Validate enforces task => entity => project.
func (c Context) Validate() error {
	if c.Task != nil && c.Entity == nil {
		return fmt.Errorf("pipeline: task %d has no entity", c.Task.ID)
	}
	if c.Entity != nil && c.Project == nil {
		return fmt.Errorf("pipeline: entity %s has no project", c.Entity)
	}
	if c.Task != nil && c.Task.Entity != (EntityRef{}) && c.Task.Entity != *c.Entity {
		return fmt.Errorf("pipeline: task %d belongs to %s, not %s", c.Task.ID, c.Task.Entity, c.Entity)
	}
	return nil
}

// IsEmpty reports whether no project is set.
func (c Context) IsEmpty() bool {
	return c.Project == nil
}

// WithTask returns a copy of c bound to task. When c has no entity the task's
// own entity linkage fills it in.
func (c Context) WithTask(task TaskRef) (Context, error) {
	entity := c.Entity
	if entity == nil && task.Entity != (EntityRef{}) {
		e := task.Entity
		entity = &e
	}
	if entity != nil && task.Entity == (EntityRef{}) {
		task.Entity = *entity
	}
	return NewContext(c.Project, entity, &task)
}

// Equal compares contexts structurally.
func (c Context) Equal(other Context) bool {
	switch {
	case (c.Project == nil) != (other.Project == nil):
		return false
	case (c.Entity == nil) != (other.Entity == nil):
		return false
	case (c.Task == nil) != (other.Task == nil):
		return false
	}
	if c.Project != nil && *c.Project != *other.Project {
		return false
	}
	if c.Entity != nil && *c.Entity != *other.Entity {
		return false
	}
	if c.Task != nil && !c.Task.equal(*other.Task) {
		return false
	}
	return true
}

// SameEntity reports whether both contexts point at the same project and entity.
func (c Context) SameEntity(other Context) bool {
	if c.Project == nil || other.Project == nil || c.Entity == nil || other.Entity == nil {
		return false
	}
	return *c.Project == *other.Project && *c.Entity == *other.Entity
}

// String renders the context the way the menu titles it.
func (c Context) String() string {
	switch {
	case c.Project == nil:
		return "Empty Context"
	case c.Entity == nil:
		return "Project " + c.Project.Name
	case c.Task == nil:
		return c.Entity.String()
	default:
		return fmt.Sprintf("%s, %s", c.Task.Step, c.Entity)
	}
}

// Serialize encodes the context for hand-off to another process.
func Serialize(c Context) (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("pipeline: encode context: %w", err)
	}
	return string(data), nil
}

// Deserialize decodes a context produced by Serialize.
func Deserialize(raw string) (Context, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Context{}, fmt.Errorf("pipeline: serialized context is empty")
	}
	var c Context
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return Context{}, fmt.Errorf("pipeline: decode context: %w", err)
	}
	return NewContext(c.Project, c.Entity, c.Task)
}
