package models

import (
	"time"

	"github.com/google/uuid"
)

// TaskStatus is the lifecycle state of an investigation task.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	// TaskStatusCompleted is terminal: no action may move a task out of it.
	TaskStatusCompleted TaskStatus = "completed"
)

// TaskStatuses lists every valid task status.
var TaskStatuses = []TaskStatus{
	TaskStatusPending,
	TaskStatusInProgress,
	TaskStatusCompleted,
}

// TaskTypes is the closed set of accepted task types.
var TaskTypes = []string{
	"investigation",
	"escalation",
	"kyc_refresh",
	"document_request",
	"sar_filing",
}

// ValidTaskType reports whether t is a known task type.
func ValidTaskType(t string) bool {
	for _, v := range TaskTypes {
		if v == t {
			return true
		}
	}
	return false
}

// Task is a unit of investigation work, optionally linked to an alert.
type Task struct {
	ID         int64      `json:"id"`
	CustomerID *uuid.UUID `json:"customer_id,omitempty"`
	AlertID    *int64     `json:"alert_id,omitempty"`
	TaskType   string     `json:"task_type"`
	Priority   string     `json:"priority"`
	Status     TaskStatus `json:"status"`

	AssignedTo *uuid.UUID `json:"assigned_to,omitempty"`
	AssignedBy *uuid.UUID `json:"assigned_by,omitempty"`
	AssignedAt *time.Time `json:"assigned_at,omitempty"`

	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	CompletedBy     *uuid.UUID `json:"completed_by,omitempty"`
	ResolutionNotes *string    `json:"resolution_notes,omitempty"`

	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	DueDate     *time.Time     `json:"due_date,omitempty"`
	CreatedBy   uuid.UUID      `json:"created_by"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// TaskDetail is the read-side projection of a task joined with alert and
// customer context.
type TaskDetail struct {
	Task
	CustomerName   *string `json:"customer_name,omitempty"`
	AssignedToName *string `json:"assigned_to_name,omitempty"`
	AlertScenario  *string `json:"alert_scenario,omitempty"`
	AlertSeverity  *string `json:"alert_severity,omitempty"`
}

// TaskCreate carries the fields for manual task creation.
type TaskCreate struct {
	CustomerID  *uuid.UUID     `json:"customer_id,omitempty"`
	AlertID     *int64         `json:"alert_id,omitempty"`
	TaskType    string         `json:"task_type"`
	Priority    string         `json:"priority"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	DueDate     *time.Time     `json:"due_date,omitempty"`
	CreatedBy   uuid.UUID      `json:"created_by"`
	AssignedTo  *uuid.UUID     `json:"assigned_to,omitempty"`
	AssignedBy  *uuid.UUID     `json:"assigned_by,omitempty"`
}
