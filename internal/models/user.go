package models

import "github.com/google/uuid"

// Roles recognised by the engine.
const (
	RoleAnalyst = "analyst"
	RoleManager = "manager"
	RoleAdmin   = "admin"
	RoleSystem  = "system"
)

// SystemUserID is the well-known identity recorded on automated transitions and
// substituted when an upstream caller supplies a user id the directory does not
// know. Keeps changed_by non-null on every audit row.
var SystemUserID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

// User is a directory entry for an analyst, manager or admin.
type User struct {
	ID       uuid.UUID `json:"id"`
	FullName string    `json:"full_name"`
	Email    string    `json:"email"`
	Role     string    `json:"role"`
}
