package directory

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/kingrea/pipectx/internal/pipeline"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id    INTEGER PRIMARY KEY,
	login TEXT NOT NULL UNIQUE
);
CREATE TABLE IF NOT EXISTS tasks (
	id          INTEGER PRIMARY KEY,
	project     TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	entity_id   TEXT NOT NULL,
	step        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS tasks_lookup ON tasks (project, entity_type, entity_id, step);
CREATE TABLE IF NOT EXISTS task_assignees (
	task_id INTEGER NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
	user_id INTEGER NOT NULL,
	PRIMARY KEY (task_id, user_id)
);
`

// Store is a SQLite-backed directory, used as the local mirror of the
// tracking database.
type Store struct {
	sqlDB *sql.DB
}

// Open opens (creating if needed) a directory database at path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("directory: storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("directory: open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("directory: ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("directory: apply schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// FindTasks implements Client.
func (s *Store) FindTasks(ctx context.Context, project pipeline.ProjectRef, entity *pipeline.EntityRef, step string) ([]pipeline.TaskRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("directory: storage is not configured")
	}
	query := `SELECT id, entity_type, entity_id, step FROM tasks WHERE project = ?`
	args := []any{project.Name}
	if entity != nil {
		query += ` AND entity_type = ? AND entity_id = ?`
		args = append(args, entity.Type, entity.ID)
	}
	if step != "" {
		query += ` AND step = ?`
		args = append(args, step)
	}
	query += ` ORDER BY id`

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("directory: query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []pipeline.TaskRef
	index := map[int]int{}
	for rows.Next() {
		var task pipeline.TaskRef
		if err := rows.Scan(&task.ID, &task.Entity.Type, &task.Entity.ID, &task.Step); err != nil {
			return nil, fmt.Errorf("directory: scan task: %w", err)
		}
		index[task.ID] = len(tasks)
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("directory: iterate tasks: %w", err)
	}
	if len(tasks) == 0 {
		return nil, nil
	}
	if err := s.attachAssignees(ctx, tasks, index); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (s *Store) attachAssignees(ctx context.Context, tasks []pipeline.TaskRef, index map[int]int) error {
	placeholders := make([]string, 0, len(tasks))
	args := make([]any, 0, len(tasks))
	for _, task := range tasks {
		placeholders = append(placeholders, "?")
		args = append(args, task.ID)
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT task_id, user_id FROM task_assignees WHERE task_id IN (`+strings.Join(placeholders, ",")+`) ORDER BY task_id, user_id`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("directory: query assignees: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var taskID, userID int
		if err := rows.Scan(&taskID, &userID); err != nil {
			return fmt.Errorf("directory: scan assignee: %w", err)
		}
		i := index[taskID]
		tasks[i].Assignees = append(tasks[i].Assignees, pipeline.UserRef{ID: userID})
	}
	return rows.Err()
}

// FindUsers implements Client.
func (s *Store) FindUsers(ctx context.Context, ids []int) (map[int]pipeline.UserRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("directory: storage is not configured")
	}
	users := map[int]pipeline.UserRef{}
	if len(ids) == 0 {
		return users, nil
	}
	placeholders := make([]string, 0, len(ids))
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		placeholders = append(placeholders, "?")
		args = append(args, id)
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, login FROM users WHERE id IN (`+strings.Join(placeholders, ",")+`)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("directory: query users: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var user pipeline.UserRef
		if err := rows.Scan(&user.ID, &user.Login); err != nil {
			return nil, fmt.Errorf("directory: scan user: %w", err)
		}
		users[user.ID] = user
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("directory: iterate users: %w", err)
	}
	return users, nil
}

// PutUser inserts or replaces a user record.
func (s *Store) PutUser(ctx context.Context, user pipeline.UserRef) error {
	login := strings.TrimSpace(user.Login)
	if user.ID <= 0 {
		return fmt.Errorf("directory: user id must be positive")
	}
	if login == "" {
		return fmt.Errorf("directory: user %d login is required", user.ID)
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO users (id, login) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET login = excluded.login`,
		user.ID, login,
	)
	if err != nil {
		return fmt.Errorf("directory: put user %d: %w", user.ID, err)
	}
	return nil
}

// PutTask inserts or replaces a task and its assignment list.
func (s *Store) PutTask(ctx context.Context, project pipeline.ProjectRef, task pipeline.TaskRef) (err error) {
	if task.ID <= 0 {
		return fmt.Errorf("directory: task id must be positive")
	}
	if strings.TrimSpace(project.Name) == "" {
		return fmt.Errorf("directory: task %d project is required", task.ID)
	}
	if task.Entity.Type == "" || task.Entity.ID == "" {
		return fmt.Errorf("directory: task %d entity is required", task.ID)
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("directory: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO tasks (id, project, entity_type, entity_id, step) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET project = excluded.project, entity_type = excluded.entity_type,
		   entity_id = excluded.entity_id, step = excluded.step`,
		task.ID, project.Name, task.Entity.Type, task.Entity.ID, task.Step,
	); err != nil {
		return fmt.Errorf("directory: put task %d: %w", task.ID, err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM task_assignees WHERE task_id = ?`, task.ID); err != nil {
		return fmt.Errorf("directory: clear assignees for %d: %w", task.ID, err)
	}
	for _, id := range task.AssigneeIDs() {
		if _, err = tx.ExecContext(ctx, `INSERT OR IGNORE INTO task_assignees (task_id, user_id) VALUES (?, ?)`, task.ID, id); err != nil {
			return fmt.Errorf("directory: assign %d to %d: %w", id, task.ID, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("directory: commit task %d: %w", task.ID, err)
	}
	return nil
}
