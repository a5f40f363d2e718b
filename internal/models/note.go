package models

import (
	"time"

	"github.com/google/uuid"
)

// AlertNote is an append-only analyst comment on an alert. Notes never change
// the alert status.
type AlertNote struct {
	ID        int64     `json:"id"`
	AlertID   int64     `json:"alert_id"`
	UserID    uuid.UUID `json:"user_id"`
	Content   string    `json:"content"`
	NoteType  string    `json:"note_type"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserName *string `json:"user_name,omitempty"`
}
