package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/ldi/nudge/pkg/models"
)

const taskColumns = `id, title, description, category, priority, status,
       due_at, reminder_lead, notified, created_at, updated_at`

// Put upserts a task by id.
func (s *Store) Put(ctx context.Context, t models.Task) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO tasks (` + taskColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			category = excluded.category,
			priority = excluded.priority,
			status = excluded.status,
			due_at = excluded.due_at,
			reminder_lead = excluded.reminder_lead,
			notified = excluded.notified,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at
	`
	if _, err := db.ExecContext(ctx, query, taskArgs(t)...); err != nil {
		return storageErr(ErrWriteFailed, "put", err)
	}
	return nil
}

// Update rewrites an existing task. Unlike Put it fails with NOT_FOUND
// when no record with that id exists.
func (s *Store) Update(ctx context.Context, t models.Task) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}

	query := `
		UPDATE tasks
		SET title = ?, description = ?, category = ?, priority = ?, status = ?,
		    due_at = ?, reminder_lead = ?, notified = ?, created_at = ?, updated_at = ?
		WHERE id = ?
	`
	args := append(taskArgs(t)[1:], t.ID)
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return storageErr(ErrWriteFailed, "update", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return storageErr(ErrWriteFailed, "update", err)
	}
	if rows == 0 {
		return storageErr(ErrNotFound, "update", nil)
	}
	return nil
}

// Get retrieves a task by id. A missing id returns (nil, nil).
func (s *Store) Get(ctx context.Context, id string) (*models.Task, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = ?`
	t, err := scanTask(db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr(ErrReadFailed, "get", err)
	}
	return t, nil
}

// GetAll returns every stored task in unspecified order.
func (s *Store) GetAll(ctx context.Context) ([]models.Task, error) {
	return s.queryTasks(ctx, `SELECT `+taskColumns+` FROM tasks`)
}

// Query returns tasks matching every set field of f exactly. The
// secondary indexes cover these columns, but at the task counts this
// system sees a scan is fine.
func (s *Store) Query(ctx context.Context, f QueryFilter) ([]models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE 1=1`
	args := []any{}

	if f.Category != "" {
		query += ` AND category = ?`
		args = append(args, string(f.Category))
	}
	if f.Priority != "" {
		query += ` AND priority = ?`
		args = append(args, string(f.Priority))
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(f.Status))
	}

	return s.queryTasks(ctx, query, args...)
}

// QueryFilter is an exact-match conjunction. Zero values mean the field
// is not constrained.
type QueryFilter struct {
	Category models.Category
	Priority models.Priority
	Status   models.Status
}

// Delete removes a task. Deleting a missing id is a no-op.
func (s *Store) Delete(ctx context.Context, id string) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}

	if _, err := db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id); err != nil {
		return storageErr(ErrDeleteFailed, "delete", err)
	}
	return nil
}

// Clear removes all tasks.
func (s *Store) Clear(ctx context.Context) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}

	if _, err := db.ExecContext(ctx, `DELETE FROM tasks`); err != nil {
		return storageErr(ErrDeleteFailed, "clear", err)
	}
	return nil
}

func (s *Store) queryTasks(ctx context.Context, query string, args ...any) ([]models.Task, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr(ErrReadFailed, "query", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, storageErr(ErrReadFailed, "query", err)
		}
		tasks = append(tasks, *t)
	}

	if err := rows.Err(); err != nil {
		return nil, storageErr(ErrReadFailed, "query", err)
	}
	return tasks, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// Timestamps are stored as unix milliseconds; due times only ever carry
// minute precision but the full value round-trips regardless.
func taskArgs(t models.Task) []any {
	var dueAt sql.NullInt64
	if t.DueAt != nil {
		dueAt = sql.NullInt64{Int64: t.DueAt.UnixMilli(), Valid: true}
	}

	notified := 0
	if t.Notified {
		notified = 1
	}

	return []any{
		t.ID, t.Title, t.Description, string(t.Category), string(t.Priority),
		string(t.Status), dueAt, string(t.ReminderLead), notified,
		t.CreatedAt.UnixMilli(), t.UpdatedAt.UnixMilli(),
	}
}

func scanTask(row scanner) (*models.Task, error) {
	t := &models.Task{}
	var dueAt sql.NullInt64
	var notified int
	var createdAt, updatedAt int64

	err := row.Scan(
		&t.ID, &t.Title, &t.Description, &t.Category, &t.Priority, &t.Status,
		&dueAt, &t.ReminderLead, &notified, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if dueAt.Valid {
		d := time.UnixMilli(dueAt.Int64)
		t.DueAt = &d
	}
	t.Notified = notified == 1
	t.CreatedAt = time.UnixMilli(createdAt)
	t.UpdatedAt = time.UnixMilli(updatedAt)
	return t, nil
}
