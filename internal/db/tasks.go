package db

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

const taskColumns = "id, user_id, text, completed, due_date, reminder_time, notified_at, created_at, updated_at"

// Nullable is a field that may be left alone, set, or cleared. The zero
// value leaves the stored column untouched.
type Nullable[T any] struct {
	Set   bool
	Value *T
}

func SetTo[T any](v T) Nullable[T] { return Nullable[T]{Set: true, Value: &v} }

func Clear[T any]() Nullable[T] { return Nullable[T]{Set: true} }

// TaskUpdate describes a partial update. Text and Completed are written only
// when non-nil. DueDate and ReminderTime overwrite the column whenever Set,
// including with NULL.
type TaskUpdate struct {
	Text         *string
	Completed    *bool
	DueDate      Nullable[time.Time]
	ReminderTime Nullable[string]
}

func scanTask(row interface{ Scan(...any) error }) (*Task, error) {
	var t Task
	if err := row.Scan(&t.ID, &t.UserID, &t.Text, &t.Completed, &t.DueDate,
		&t.ReminderTime, &t.NotifiedAt, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func validateReminderTime(rt *string) error {
	if rt != nil && !ValidReminderTime(*rt) {
		return &ValidationError{Field: "reminderTime", Reason: "must be HH:MM"}
	}
	return nil
}

func (d *DB) CreateTask(ctx context.Context, userID, text string, dueDate *time.Time, reminderTime *string) (*Task, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, &ValidationError{Field: "text", Reason: "is required"}
	}
	if err := validateReminderTime(reminderTime); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	t := &Task{
		ID:           uuid.NewString(),
		UserID:       userID,
		Text:         text,
		DueDate:      utcPtr(dueDate),
		ReminderTime: reminderTime,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	_, err := d.exec(ctx, `INSERT INTO tasks (id, user_id, text, completed, due_date, reminder_time, created_at, updated_at)
		VALUES (?, ?, ?, FALSE, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.Text, t.DueDate, t.ReminderTime, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return nil, wrap("insert task", err)
	}
	return t, nil
}

// ListTasksByUser returns the user's tasks, newest first.
func (d *DB) ListTasksByUser(ctx context.Context, userID string) ([]Task, error) {
	return d.listTasks(ctx,
		"SELECT "+taskColumns+" FROM tasks WHERE user_id = ? ORDER BY created_at DESC", userID)
}

func (d *DB) GetTask(ctx context.Context, id string) (*Task, error) {
	t, err := scanTask(d.queryRow(ctx, "SELECT "+taskColumns+" FROM tasks WHERE id = ?", id))
	if err != nil {
		return nil, wrap("query task", err)
	}
	return t, nil
}

func (d *DB) UpdateTask(ctx context.Context, id string, u TaskUpdate) (*Task, error) {
	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UTC()}

	if u.Text != nil {
		text := strings.TrimSpace(*u.Text)
		if text == "" {
			return nil, &ValidationError{Field: "text", Reason: "must not be empty"}
		}
		sets = append(sets, "text = ?")
		args = append(args, text)
	}
	if u.Completed != nil {
		sets = append(sets, "completed = ?")
		args = append(args, *u.Completed)
	}
	if u.DueDate.Set {
		sets = append(sets, "due_date = ?")
		args = append(args, utcPtr(u.DueDate.Value))
	}
	if u.ReminderTime.Set {
		if err := validateReminderTime(u.ReminderTime.Value); err != nil {
			return nil, err
		}
		sets = append(sets, "reminder_time = ?")
		args = append(args, u.ReminderTime.Value)
	}
	if u.DueDate.Set || u.ReminderTime.Set {
		sets = append(sets, "notified_at = NULL")
	}

	args = append(args, id)
	res, err := d.exec(ctx, "UPDATE tasks SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return nil, wrap("update task", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrNotFound
	}
	return d.GetTask(ctx, id)
}

// DeleteTask removes the task without checking ownership.
func (d *DB) DeleteTask(ctx context.Context, id string) error {
	_, err := d.exec(ctx, "DELETE FROM tasks WHERE id = ?", id)
	return wrap("delete task", err)
}

// DueTasks returns the user's open tasks whose reminder time is exactly
// currentTime and whose due date has not passed. Tasks already notified
// during now's minute are skipped.
func (d *DB) DueTasks(ctx context.Context, userID, currentTime string, now time.Time) ([]Task, error) {
	now = now.UTC()
	return d.listTasks(ctx, "SELECT "+taskColumns+` FROM tasks
		WHERE user_id = ?
			AND completed = FALSE
			AND due_date IS NOT NULL
			AND reminder_time = ?
			AND due_date >= ?
			AND (notified_at IS NULL OR notified_at < ?)
		ORDER BY due_date ASC`,
		userID, currentTime, now, now.Truncate(time.Minute))
}

func (d *DB) MarkNotified(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, at.UTC())
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := d.exec(ctx,
		"UPDATE tasks SET notified_at = ? WHERE id IN ("+placeholders(len(ids))+")", args...)
	return wrap("mark notified", err)
}

func (d *DB) listTasks(ctx context.Context, query string, args ...any) ([]Task, error) {
	rows, err := d.query(ctx, query, args...)
	if err != nil {
		return nil, wrap("query tasks", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, wrap("scan task", err)
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("iterate tasks", err)
	}
	return tasks, nil
}
