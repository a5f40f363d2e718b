package models

import (
	"time"

	"github.com/google/uuid"
)

// AlertStatus is the lifecycle state of an alert.
type AlertStatus string

const (
	// AlertStatusNew is a pseudo-state: it only ever appears as the
	// previous_status of the first history row, never on the alert row itself.
	AlertStatusNew        AlertStatus = "new"
	AlertStatusOpen       AlertStatus = "open"
	AlertStatusAssigned   AlertStatus = "assigned"
	AlertStatusInProgress AlertStatus = "in_progress"
	AlertStatusEscalated  AlertStatus = "escalated"
	AlertStatusOnHold     AlertStatus = "on_hold"
	AlertStatusResolved   AlertStatus = "resolved"
)

// AlertStatuses lists every status an alert row may carry.
var AlertStatuses = []AlertStatus{
	AlertStatusOpen,
	AlertStatusAssigned,
	AlertStatusInProgress,
	AlertStatusEscalated,
	AlertStatusOnHold,
	AlertStatusResolved,
}

// ResolutionTypes is the closed set of accepted alert resolutions.
var ResolutionTypes = []string{
	"confirmed_suspicious",
	"false_positive",
	"not_suspicious",
	"duplicate",
	"other",
}

// ValidResolutionType reports whether rt is an accepted resolution type.
func ValidResolutionType(rt string) bool {
	for _, t := range ResolutionTypes {
		if t == rt {
			return true
		}
	}
	return false
}

// Priorities is the shared priority scale for alerts and tasks.
var Priorities = []string{"low", "medium", "high", "critical"}

// ValidPriority reports whether p is a known priority.
func ValidPriority(p string) bool {
	for _, v := range Priorities {
		if v == p {
			return true
		}
	}
	return false
}

// Alert is a financial-crime alert under investigation.
type Alert struct {
	ID         int64          `json:"id"`
	CustomerID *uuid.UUID     `json:"customer_id,omitempty"`
	Type       string         `json:"type"`
	Status     AlertStatus    `json:"status"`
	Severity   string         `json:"severity"`
	Scenario   string         `json:"scenario"`
	Details    map[string]any `json:"details"`
	Priority   string         `json:"priority"`
	DueDate    *time.Time     `json:"due_date,omitempty"`

	ResolutionType  *string    `json:"resolution_type,omitempty"`
	ResolutionNotes *string    `json:"resolution_notes,omitempty"`
	ResolvedBy      *uuid.UUID `json:"resolved_by,omitempty"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`

	AssignedTo *uuid.UUID `json:"assigned_to,omitempty"`
	AssignedBy *uuid.UUID `json:"assigned_by,omitempty"`
	AssignedAt *time.Time `json:"assigned_at,omitempty"`

	EscalatedTo      *uuid.UUID `json:"escalated_to,omitempty"`
	EscalatedBy      *uuid.UUID `json:"escalated_by,omitempty"`
	EscalatedAt      *time.Time `json:"escalated_at,omitempty"`
	EscalationReason *string    `json:"escalation_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// AlertDetail is the read-side projection of an alert joined with display names.
type AlertDetail struct {
	Alert
	CustomerName    *string `json:"customer_name,omitempty"`
	AssignedToName  *string `json:"assigned_to_name,omitempty"`
	AssignedToEmail *string `json:"assigned_to_email,omitempty"`
	EscalatedToName *string `json:"escalated_to_name,omitempty"`
}

// AlertCreate carries the fields an external producer supplies for a new alert.
type AlertCreate struct {
	CustomerID *uuid.UUID     `json:"customer_id,omitempty"`
	Type       string         `json:"type"`
	Severity   string         `json:"severity"`
	Scenario   string         `json:"scenario"`
	Details    map[string]any `json:"details,omitempty"`
}
