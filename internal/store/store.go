package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"compliance-case-service/internal/models"
)

var (
	// ErrNotFound indicates the entity id does not exist.
	ErrNotFound = errors.New("not found")
	// ErrStateMismatch indicates the row exists but its current status was not
	// in the transition's allowed from-set; the conditional update touched
	// zero rows.
	ErrStateMismatch = errors.New("state mismatch")
	// ErrDuplicateOpenTask indicates the unique partial index on open linked
	// tasks rejected an insert.
	ErrDuplicateOpenTask = errors.New("open task already exists for alert")
)

// AlertMutation is the set of columns an alert transition may touch besides
// status. Pointer fields are applied when non-nil; Clear flags null out whole
// field groups.
type AlertMutation struct {
	AssignedTo      *uuid.UUID
	AssignedBy      *uuid.UUID
	AssignedAt      *time.Time
	ClearAssignment bool

	EscalatedTo      *uuid.UUID
	EscalatedBy      *uuid.UUID
	EscalatedAt      *time.Time
	EscalationReason *string
	ClearEscalation  bool

	ResolutionType  *string
	ResolutionNotes *string
	ResolvedBy      *uuid.UUID
	ResolvedAt      *time.Time
	ClearResolution bool
}

// AlertTransition describes one atomic status change: the guard, the mutation
// and the audit row, applied as a single operation.
type AlertTransition struct {
	AlertID   int64
	From      []models.AlertStatus
	To        models.AlertStatus
	Mutate    AlertMutation
	ChangedBy uuid.UUID
	Reason    string
	Metadata  map[string]any
}

// TaskMutation is the set of columns a task transition may touch.
type TaskMutation struct {
	AssignedTo      *uuid.UUID
	AssignedBy      *uuid.UUID
	AssignedAt      *time.Time
	ClearAssignment bool

	CompletedAt     *time.Time
	CompletedBy     *uuid.UUID
	ResolutionNotes *string
	Priority        *string
}

// TaskTransition describes one atomic task status change.
type TaskTransition struct {
	TaskID    int64
	From      []models.TaskStatus
	To        models.TaskStatus
	Mutate    TaskMutation
	ChangedBy uuid.UUID
	Reason    string
	Metadata  map[string]any
}

// AlertFilters narrows alert listings.
type AlertFilters struct {
	Status     *models.AlertStatus
	Severity   *string
	AssignedTo *uuid.UUID
	Unassigned bool
	CustomerID *uuid.UUID
	Limit      int
	Offset     int
}

// TaskFilters narrows task listings.
type TaskFilters struct {
	Status     *models.TaskStatus
	TaskType   *string
	Priority   *string
	CustomerID *uuid.UUID
	AssignedTo *uuid.UUID
	Unclaimed  bool
	AlertID    *int64
	Limit      int
}

// AlertMetaUpdate carries the mutable non-lifecycle alert fields.
type AlertMetaUpdate struct {
	Priority *string
	DueDate  *time.Time
	// ClearDueDate nulls due_date; DueDate is ignored when set.
	ClearDueDate bool
}

// TaskMetaUpdate carries the mutable non-lifecycle task fields.
type TaskMetaUpdate struct {
	Priority *string
	Title    *string
	DueDate  *time.Time
	// ClearDueDate nulls due_date; DueDate is ignored when set.
	ClearDueDate bool
}

// Store is the persistence boundary for the lifecycle engine. The engine's
// activities are the only writers of lifecycle columns; everything else reads.
type Store interface {
	// Alerts.
	CreateAlert(ctx context.Context, in models.AlertCreate) (models.Alert, error)
	GetAlert(ctx context.Context, id int64) (models.Alert, error)
	GetAlertDetail(ctx context.Context, id int64) (models.AlertDetail, error)
	ListAlerts(ctx context.Context, f AlertFilters) ([]models.AlertDetail, int, error)
	UpdateAlertMeta(ctx context.Context, id int64, u AlertMetaUpdate) (models.Alert, error)
	TransitionAlert(ctx context.Context, t AlertTransition) (models.Alert, error)
	AppendAlertHistory(ctx context.Context, e models.AlertHistoryEntry) error
	AlertHistory(ctx context.Context, alertID int64) ([]models.AlertHistoryEntry, error)

	// Notes.
	AddAlertNote(ctx context.Context, n models.AlertNote) (models.AlertNote, error)
	ListAlertNotes(ctx context.Context, alertID int64) ([]models.AlertNote, error)
	DeleteAlertNote(ctx context.Context, alertID, noteID int64) error

	// Tasks.
	CreateTask(ctx context.Context, in models.TaskCreate) (models.Task, error)
	GetTask(ctx context.Context, id int64) (models.Task, error)
	GetTaskDetail(ctx context.Context, id int64) (models.TaskDetail, error)
	ListTasks(ctx context.Context, f TaskFilters) ([]models.TaskDetail, error)
	UpdateTaskMeta(ctx context.Context, id int64, u TaskMetaUpdate) (models.Task, error)
	TransitionTask(ctx context.Context, t TaskTransition) (models.Task, error)
	FindOpenTaskForAlert(ctx context.Context, alertID int64) (models.Task, error)
	RetargetTask(ctx context.Context, taskID int64, assignedTo, assignedBy uuid.UUID, priority string) (models.Task, error)
	TaskHistory(ctx context.Context, taskID int64) ([]models.TaskHistoryEntry, error)

	// User directory.
	UserExists(ctx context.Context, id uuid.UUID) (bool, error)
	GetUser(ctx context.Context, id uuid.UUID) (models.User, error)
}
