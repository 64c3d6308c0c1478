// Package directory is the read side of the production tracking directory:
// tasks per project/entity/step and the users assigned to them.
package directory

import (
	"context"

	"github.com/kingrea/pipectx/internal/pipeline"
)

// Client is the query surface the resolver depends on. Both calls are remote,
// fallible, and may be slow.
type Client interface {
	// FindTasks returns tasks of project ordered by id. A nil entity matches
	// every entity of the project and an empty step matches every step.
	// Returned assignees carry ids only.
	FindTasks(ctx context.Context, project pipeline.ProjectRef, entity *pipeline.EntityRef, step string) ([]pipeline.TaskRef, error)
	// FindUsers resolves user ids to user records. Unknown ids are omitted.
	FindUsers(ctx context.Context, ids []int) (map[int]pipeline.UserRef, error)
}
