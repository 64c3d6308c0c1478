package directory

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kingrea/pipectx/internal/pipeline"
)

// Fixtures is the YAML layout accepted by Import.
//
//	users:
//	  - {id: 1, login: alice}
//	tasks:
//	  - {id: 42, project: proj, entity: {type: Shot, id: shotA}, step: Lgt, assignees: [1]}
type Fixtures struct {
	Users []FixtureUser `yaml:"users"`
	Tasks []FixtureTask `yaml:"tasks"`
}

// FixtureUser is one user row.
type FixtureUser struct {
	ID    int    `yaml:"id"`
	Login string `yaml:"login"`
}

// FixtureTask is one task row.
type FixtureTask struct {
	ID        int           `yaml:"id"`
	Project   string        `yaml:"project"`
	Entity    FixtureEntity `yaml:"entity"`
	Step      string        `yaml:"step"`
	Assignees []int         `yaml:"assignees,omitempty"`
}

// FixtureEntity names the task's entity.
type FixtureEntity struct {
	Type string `yaml:"type"`
	ID   string `yaml:"id"`
}

// ParseFixtures decodes a fixtures payload.
func ParseFixtures(data []byte) (Fixtures, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Fixtures{}, fmt.Errorf("directory: fixtures payload is empty")
	}
	var fx Fixtures
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return Fixtures{}, fmt.Errorf("directory: decode fixtures: %w", err)
	}
	return fx, nil
}

// LoadFixtures reads fixtures from a YAML file.
func LoadFixtures(path string) (Fixtures, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Fixtures{}, fmt.Errorf("directory: read %s: %w", path, err)
	}
	fx, err := ParseFixtures(data)
	if err != nil {
		return Fixtures{}, fmt.Errorf("directory: %s: %w", path, err)
	}
	return fx, nil
}

// Import writes every user and task of fx into the store and returns how
// many rows of each were written.
func (s *Store) Import(ctx context.Context, fx Fixtures) (users int, tasks int, err error) {
	for _, u := range fx.Users {
		if err := s.PutUser(ctx, pipeline.UserRef{ID: u.ID, Login: u.Login}); err != nil {
			return users, tasks, err
		}
		users++
	}
	for _, t := range fx.Tasks {
		task := pipeline.TaskRef{
			ID:     t.ID,
			Step:   strings.TrimSpace(t.Step),
			Entity: pipeline.EntityRef{Type: strings.TrimSpace(t.Entity.Type), ID: strings.TrimSpace(t.Entity.ID)},
		}
		for _, id := range t.Assignees {
			task.Assignees = append(task.Assignees, pipeline.UserRef{ID: id})
		}
		if err := s.PutTask(ctx, pipeline.ProjectRef{Name: strings.TrimSpace(t.Project)}, task); err != nil {
			return users, tasks, err
		}
		tasks++
	}
	return users, tasks, nil
}
