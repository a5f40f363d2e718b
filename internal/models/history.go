package models

import (
	"time"

	"github.com/google/uuid"
)

// AlertHistoryEntry is one immutable audit row for a realized alert transition.
type AlertHistoryEntry struct {
	ID             int64          `json:"id"`
	AlertID        int64          `json:"alert_id"`
	PreviousStatus AlertStatus    `json:"previous_status"`
	NewStatus      AlertStatus    `json:"new_status"`
	ChangedBy      uuid.UUID      `json:"changed_by"`
	Reason         string         `json:"reason,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`

	// ChangedByName is filled by read-side joins, never stored.
	ChangedByName *string `json:"changed_by_name,omitempty"`
}

// TaskHistoryEntry is one immutable audit row for a realized task transition.
type TaskHistoryEntry struct {
	ID             int64          `json:"id"`
	TaskID         int64          `json:"task_id"`
	PreviousStatus TaskStatus     `json:"previous_status"`
	NewStatus      TaskStatus     `json:"new_status"`
	ChangedBy      uuid.UUID      `json:"changed_by"`
	Reason         string         `json:"reason,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`

	ChangedByName *string `json:"changed_by_name,omitempty"`
}
