// internal/chooser/chooser.go
//
// The chooser is the human fallback of context resolution: whenever the
// resolver cannot pick a task on its own, the user picks one from the tasks
// of the allowed steps.

package chooser

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/kingrea/pipectx/internal/directory"
	"github.com/kingrea/pipectx/internal/pipeline"
)

// DefaultSteps is the step allow-list offered when none is configured.
var DefaultSteps = []string{"Lgt", "Shd", "FX"}

// ErrNoCandidates is returned when no task of the allowed steps exists.
var ErrNoCandidates = errors.New("chooser: no candidate tasks")

// Request describes what the user is asked to choose from.
type Request struct {
	Project pipeline.ProjectRef
	// Entity narrows the candidates. Nil offers every entity of the project.
	Entity *pipeline.EntityRef
	Steps  []string
	// Reason is the escalation that triggered the prompt.
	Reason error
}

// Chooser asks the user for a task. Implementations block until the user
// answers and return pipeline.ErrUserCancelled when the user dismisses them.
type Chooser interface {
	Choose(ctx context.Context, req Request) (pipeline.TaskRef, error)
}

// Func adapts a function to the Chooser interface.
type Func func(ctx context.Context, req Request) (pipeline.TaskRef, error)

// Choose calls f.
func (f Func) Choose(ctx context.Context, req Request) (pipeline.TaskRef, error) {
	return f(ctx, req)
}

// Candidates loads the tasks of every allowed step, in step order, with
// assignee logins filled in.
func Candidates(ctx context.Context, dir directory.Client, req Request) ([]pipeline.TaskRef, error) {
	steps := req.Steps
	if len(steps) == 0 {
		steps = DefaultSteps
	}
	var tasks []pipeline.TaskRef
	for _, step := range steps {
		found, err := dir.FindTasks(ctx, req.Project, req.Entity, step)
		if err != nil {
			return nil, fmt.Errorf("chooser: load %s tasks: %w", step, err)
		}
		found = append([]pipeline.TaskRef(nil), found...)
		sort.SliceStable(found, func(i, j int) bool { return found[i].ID < found[j].ID })
		for _, task := range found {
			if task.Entity == (pipeline.EntityRef{}) && req.Entity != nil {
				task.Entity = *req.Entity
			}
			task.Assignees = append([]pipeline.UserRef(nil), task.Assignees...)
			tasks = append(tasks, task)
		}
	}
	if len(tasks) == 0 {
		return nil, nil
	}

	var ids []int
	seen := map[int]struct{}{}
	for _, task := range tasks {
		for _, id := range task.AssigneeIDs() {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}
	if len(ids) == 0 {
		return tasks, nil
	}
	users, err := dir.FindUsers(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("chooser: load assignees: %w", err)
	}
	for i := range tasks {
		for j, a := range tasks[i].Assignees {
			if u, ok := users[a.ID]; ok {
				tasks[i].Assignees[j] = u
			}
		}
	}
	return tasks, nil
}

// Preselected answers with a fixed task id, provided that task is one of the
// candidates the request allows.
type Preselected struct {
	Directory directory.Client
	TaskID    int
}

// Choose implements Chooser.
func (p Preselected) Choose(ctx context.Context, req Request) (pipeline.TaskRef, error) {
	if p.TaskID <= 0 {
		return pipeline.TaskRef{}, pipeline.ErrUserCancelled
	}
	tasks, err := Candidates(ctx, p.Directory, req)
	if err != nil {
		return pipeline.TaskRef{}, err
	}
	for _, task := range tasks {
		if task.ID == p.TaskID {
			return task, nil
		}
	}
	return pipeline.TaskRef{}, fmt.Errorf("%w: task %d is not a candidate", ErrNoCandidates, p.TaskID)
}

// Scripted replays a fixed answer and records every request.
type Scripted struct {
	mu       sync.Mutex
	Answer   pipeline.TaskRef
	Err      error
	requests []Request
}

// Choose implements Chooser.
func (s *Scripted) Choose(ctx context.Context, req Request) (pipeline.TaskRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.Err != nil {
		return pipeline.TaskRef{}, s.Err
	}
	return s.Answer, nil
}

// Requests returns the requests seen so far.
func (s *Scripted) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}
