package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"compliance-case-service/internal/models"
)

const taskColumns = `t.id, t.customer_id, t.alert_id, t.task_type, t.priority, t.status,
	t.assigned_to, t.assigned_by, t.assigned_at,
	t.completed_at, t.completed_by, t.resolution_notes,
	t.title, t.description, t.details, t.due_date, t.created_by, t.created_at, t.updated_at`

func scanTask(row pgx.Row) (models.Task, error) {
	var t models.Task
	var details []byte
	err := row.Scan(
		&t.ID, &t.CustomerID, &t.AlertID, &t.TaskType, &t.Priority, &t.Status,
		&t.AssignedTo, &t.AssignedBy, &t.AssignedAt,
		&t.CompletedAt, &t.CompletedBy, &t.ResolutionNotes,
		&t.Title, &t.Description, &details, &t.DueDate, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return models.Task{}, err
	}
	t.Details, err = unmarshalJSONB(details)
	return t, err
}

func scanTaskDetail(row pgx.Row) (models.TaskDetail, error) {
	var d models.TaskDetail
	var details []byte
	err := row.Scan(
		&d.ID, &d.CustomerID, &d.AlertID, &d.TaskType, &d.Priority, &d.Status,
		&d.AssignedTo, &d.AssignedBy, &d.AssignedAt,
		&d.CompletedAt, &d.CompletedBy, &d.ResolutionNotes,
		&d.Title, &d.Description, &details, &d.DueDate, &d.CreatedBy, &d.CreatedAt, &d.UpdatedAt,
		&d.CustomerName, &d.AssignedToName, &d.AlertScenario, &d.AlertSeverity,
	)
	if err != nil {
		return models.TaskDetail{}, err
	}
	d.Details, err = unmarshalJSONB(details)
	return d, err
}

// CreateTask inserts a task in status pending. A unique partial index on
// (alert_id) over open statuses rejects a second open task for the same alert;
// that surfaces as ErrDuplicateOpenTask so callers can fall back to updating
// the existing one.
func (s *Postgres) CreateTask(ctx context.Context, in models.TaskCreate) (models.Task, error) {
	details, err := marshalJSONB(in.Details)
	if err != nil {
		return models.Task{}, err
	}
	query := `
		INSERT INTO tasks (customer_id, alert_id, task_type, priority, status,
			title, description, details, due_date, created_by,
			assigned_to, assigned_by, assigned_at)
		VALUES ($1, $2, $3, $4, 'pending', $5, $6, $7, $8, $9, $10, $11,
			CASE WHEN $10::uuid IS NULL THEN NULL ELSE NOW() END)
		RETURNING ` + strings.ReplaceAll(taskColumns, "t.", "")
	t, err := scanTask(s.Pool.QueryRow(ctx, query,
		in.CustomerID, in.AlertID, in.TaskType, in.Priority,
		in.Title, in.Description, details, in.DueDate, in.CreatedBy,
		in.AssignedTo, in.AssignedBy))
	if isUniqueViolation(err) {
		return models.Task{}, ErrDuplicateOpenTask
	}
	if err != nil {
		return models.Task{}, fmt.Errorf("failed to insert task: %w", err)
	}
	return t, nil
}

// GetTask fetches a single task row.
func (s *Postgres) GetTask(ctx context.Context, id int64) (models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks t WHERE t.id = $1`
	t, err := scanTask(s.Pool.QueryRow(ctx, query, id))
	if noRows(err) {
		return models.Task{}, ErrNotFound
	}
	if err != nil {
		return models.Task{}, fmt.Errorf("failed to get task %d: %w", id, err)
	}
	return t, nil
}

// GetTaskDetail fetches a task joined with customer and alert context.
func (s *Postgres) GetTaskDetail(ctx context.Context, id int64) (models.TaskDetail, error) {
	query := `
		SELECT ` + taskColumns + `,
		       c.full_name, u.full_name, a.scenario, a.severity
		FROM tasks t
		LEFT JOIN customers c ON c.id = t.customer_id
		LEFT JOIN users u ON u.id = t.assigned_to
		LEFT JOIN alerts a ON a.id = t.alert_id
		WHERE t.id = $1`
	d, err := scanTaskDetail(s.Pool.QueryRow(ctx, query, id))
	if noRows(err) {
		return models.TaskDetail{}, ErrNotFound
	}
	if err != nil {
		return models.TaskDetail{}, fmt.Errorf("failed to get task %d: %w", id, err)
	}
	return d, nil
}

// ListTasks returns tasks ordered by priority rank, then due date, then age.
func (s *Postgres) ListTasks(ctx context.Context, f TaskFilters) ([]models.TaskDetail, error) {
	conditions := []string{"1=1"}
	args := []any{}
	n := 0
	arg := func(v any) string {
		n++
		args = append(args, v)
		return fmt.Sprintf("$%d", n)
	}

	if f.Status != nil {
		conditions = append(conditions, "t.status = "+arg(*f.Status))
	}
	if f.TaskType != nil {
		conditions = append(conditions, "t.task_type = "+arg(*f.TaskType))
	}
	if f.Priority != nil {
		conditions = append(conditions, "t.priority = "+arg(*f.Priority))
	}
	if f.CustomerID != nil {
		conditions = append(conditions, "t.customer_id = "+arg(*f.CustomerID))
	}
	if f.AssignedTo != nil {
		conditions = append(conditions, "t.assigned_to = "+arg(*f.AssignedTo))
	}
	if f.AlertID != nil {
		conditions = append(conditions, "t.alert_id = "+arg(*f.AlertID))
	}
	if f.Unclaimed {
		conditions = append(conditions, "t.assigned_to IS NULL AND t.status = 'pending'")
	}

	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `
		SELECT ` + taskColumns + `,
		       c.full_name, u.full_name, a.scenario, a.severity
		FROM tasks t
		LEFT JOIN customers c ON c.id = t.customer_id
		LEFT JOIN users u ON u.id = t.assigned_to
		LEFT JOIN alerts a ON a.id = t.alert_id
		WHERE ` + strings.Join(conditions, " AND ") + `
		ORDER BY
			CASE t.priority
				WHEN 'critical' THEN 1
				WHEN 'high' THEN 2
				WHEN 'medium' THEN 3
				ELSE 4
			END,
			t.due_date ASC NULLS LAST,
			t.created_at DESC
		LIMIT ` + arg(limit)

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var list []models.TaskDetail
	for rows.Next() {
		d, err := scanTaskDetail(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		list = append(list, d)
	}
	return list, rows.Err()
}

// UpdateTaskMeta patches priority/title/due_date without touching lifecycle
// columns.
func (s *Postgres) UpdateTaskMeta(ctx context.Context, id int64, u TaskMetaUpdate) (models.Task, error) {
	sets := []string{}
	args := []any{id}
	n := 1
	if u.Priority != nil {
		n++
		sets = append(sets, fmt.Sprintf("priority = $%d", n))
		args = append(args, *u.Priority)
	}
	if u.Title != nil {
		n++
		sets = append(sets, fmt.Sprintf("title = $%d", n))
		args = append(args, *u.Title)
	}
	if u.ClearDueDate {
		sets = append(sets, "due_date = NULL")
	} else if u.DueDate != nil {
		n++
		sets = append(sets, fmt.Sprintf("due_date = $%d", n))
		args = append(args, *u.DueDate)
	}
	if len(sets) == 0 {
		return s.GetTask(ctx, id)
	}
	sets = append(sets, "updated_at = NOW()")

	query := `UPDATE tasks t SET ` + strings.Join(sets, ", ") +
		` WHERE t.id = $1 RETURNING ` + strings.ReplaceAll(taskColumns, "t.", "")
	t, err := scanTask(s.Pool.QueryRow(ctx, query, args...))
	if noRows(err) {
		return models.Task{}, ErrNotFound
	}
	if err != nil {
		return models.Task{}, fmt.Errorf("failed to update task %d: %w", id, err)
	}
	return t, nil
}

// TransitionTask applies one guarded task status change, pairing the mutation
// with its history row in a single transaction.
func (s *Postgres) TransitionTask(ctx context.Context, t TaskTransition) (models.Task, error) {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return models.Task{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	from := make([]string, len(t.From))
	for i, st := range t.From {
		from[i] = string(st)
	}

	sets := []string{"status = $2", "updated_at = NOW()"}
	args := []any{t.TaskID, string(t.To), from}
	n := 3
	set := func(col string, v any) {
		n++
		sets = append(sets, fmt.Sprintf("%s = $%d", col, n))
		args = append(args, v)
	}

	m := t.Mutate
	if m.ClearAssignment {
		sets = append(sets, "assigned_to = NULL", "assigned_by = NULL", "assigned_at = NULL")
	}
	if m.AssignedTo != nil {
		set("assigned_to", *m.AssignedTo)
	}
	if m.AssignedBy != nil {
		set("assigned_by", *m.AssignedBy)
	}
	if m.AssignedAt != nil {
		set("assigned_at", *m.AssignedAt)
	}
	if m.CompletedAt != nil {
		set("completed_at", *m.CompletedAt)
	}
	if m.CompletedBy != nil {
		set("completed_by", *m.CompletedBy)
	}
	if m.ResolutionNotes != nil {
		set("resolution_notes", *m.ResolutionNotes)
	}
	if m.Priority != nil {
		set("priority", *m.Priority)
	}

	query := `
		WITH prev AS (
			SELECT id, status FROM tasks WHERE id = $1 FOR UPDATE
		)
		UPDATE tasks t SET ` + strings.Join(sets, ", ") + `
		FROM prev
		WHERE t.id = prev.id AND prev.status = ANY($3)
		RETURNING ` + taskColumns + `, prev.status`

	var task models.Task
	var details []byte
	var prevStatus string
	err = tx.QueryRow(ctx, query, args...).Scan(
		&task.ID, &task.CustomerID, &task.AlertID, &task.TaskType, &task.Priority, &task.Status,
		&task.AssignedTo, &task.AssignedBy, &task.AssignedAt,
		&task.CompletedAt, &task.CompletedBy, &task.ResolutionNotes,
		&task.Title, &task.Description, &details, &task.DueDate, &task.CreatedBy, &task.CreatedAt, &task.UpdatedAt,
		&prevStatus,
	)
	if noRows(err) {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tasks WHERE id = $1)`, t.TaskID).Scan(&exists); err != nil {
			return models.Task{}, fmt.Errorf("failed to check task %d: %w", t.TaskID, err)
		}
		if !exists {
			return models.Task{}, ErrNotFound
		}
		return models.Task{}, ErrStateMismatch
	}
	if err != nil {
		return models.Task{}, fmt.Errorf("failed to transition task %d: %w", t.TaskID, err)
	}
	if task.Details, err = unmarshalJSONB(details); err != nil {
		return models.Task{}, err
	}

	metadata, err := marshalJSONB(t.Metadata)
	if err != nil {
		return models.Task{}, err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO task_status_history (task_id, previous_status, new_status, changed_by, reason, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		t.TaskID, prevStatus, t.To, t.ChangedBy, t.Reason, metadata)
	if err != nil {
		return models.Task{}, fmt.Errorf("failed to insert task history: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return models.Task{}, fmt.Errorf("failed to commit transition: %w", err)
	}
	return task, nil
}

// FindOpenTaskForAlert returns the pending/in-progress task linked to alertID.
func (s *Postgres) FindOpenTaskForAlert(ctx context.Context, alertID int64) (models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks t
		WHERE t.alert_id = $1 AND t.status IN ('pending', 'in_progress')
		ORDER BY t.created_at ASC
		LIMIT 1`
	t, err := scanTask(s.Pool.QueryRow(ctx, query, alertID))
	if noRows(err) {
		return models.Task{}, ErrNotFound
	}
	if err != nil {
		return models.Task{}, fmt.Errorf("failed to find open task for alert %d: %w", alertID, err)
	}
	return t, nil
}

// RetargetTask points an open linked task at a new assignee and bumps its
// priority. Guarded against completed tasks in the same statement.
func (s *Postgres) RetargetTask(ctx context.Context, taskID int64, assignedTo, assignedBy uuid.UUID, priority string) (models.Task, error) {
	query := `
		UPDATE tasks t SET assigned_to = $2, assigned_by = $3, assigned_at = NOW(),
			priority = $4, updated_at = NOW()
		WHERE t.id = $1 AND t.status IN ('pending', 'in_progress')
		RETURNING ` + taskColumns
	t, err := scanTask(s.Pool.QueryRow(ctx, query, taskID, assignedTo, assignedBy, priority))
	if noRows(err) {
		var exists bool
		if err := s.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tasks WHERE id = $1)`, taskID).Scan(&exists); err != nil {
			return models.Task{}, fmt.Errorf("failed to check task %d: %w", taskID, err)
		}
		if !exists {
			return models.Task{}, ErrNotFound
		}
		return models.Task{}, ErrStateMismatch
	}
	if err != nil {
		return models.Task{}, fmt.Errorf("failed to retarget task %d: %w", taskID, err)
	}
	return t, nil
}

// TaskHistory lists a task's audit rows, newest first, with display names.
func (s *Postgres) TaskHistory(ctx context.Context, taskID int64) ([]models.TaskHistoryEntry, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT h.id, h.task_id, h.previous_status, h.new_status, h.changed_by, h.reason, h.metadata, h.created_at,
		       u.full_name
		FROM task_status_history h
		LEFT JOIN users u ON h.changed_by = u.id
		WHERE h.task_id = $1
		ORDER BY h.created_at DESC, h.id DESC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to get task history: %w", err)
	}
	defer rows.Close()

	var list []models.TaskHistoryEntry
	for rows.Next() {
		var e models.TaskHistoryEntry
		var metadata []byte
		if err := rows.Scan(&e.ID, &e.TaskID, &e.PreviousStatus, &e.NewStatus, &e.ChangedBy,
			&e.Reason, &metadata, &e.CreatedAt, &e.ChangedByName); err != nil {
			return nil, fmt.Errorf("failed to scan task history: %w", err)
		}
		if e.Metadata, err = unmarshalJSONB(metadata); err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, rows.Err()
}
