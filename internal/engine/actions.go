package engine

import (
	"github.com/google/uuid"

	"compliance-case-service/internal/models"
)

// Action is the closed set of lifecycle actions the dispatcher accepts. Each
// variant carries its own typed parameters; there is no string-keyed dispatch
// inside the engine.
type Action interface {
	Name() string
	isAction()
}

// InitAlert seeds the audit trail for a newly produced alert. When Create is
// set and the entity id is zero the alert row is created first.
type InitAlert struct {
	Create *models.AlertCreate
}

// AssignAlert moves an open alert to assigned.
type AssignAlert struct {
	AssignedTo uuid.UUID
	AssignedBy *uuid.UUID
}

// UnassignAlert returns an assigned alert to the open pool.
type UnassignAlert struct{}

// StartAlert begins work on an assigned alert.
type StartAlert struct{}

// EscalateAlert hands an in-progress alert to a senior investigator.
type EscalateAlert struct {
	EscalatedTo uuid.UUID
	Reason      string
}

// HoldAlert parks an in-progress alert.
type HoldAlert struct {
	Reason string
}

// ResumeAlert returns an escalated or held alert to in-progress.
type ResumeAlert struct{}

// ResolveAlert closes an alert with a typed resolution.
type ResolveAlert struct {
	ResolutionType  string
	ResolutionNotes string
}

// ReopenAlert reverts a resolved alert to open. Manager/admin only.
type ReopenAlert struct {
	Reason string
}

// AddAlertNote appends a comment without touching status.
type AddAlertNote struct {
	Content  string
	NoteType string
}

// ClaimTask lets the acting user pull a task from the shared queue.
type ClaimTask struct{}

// ReleaseTask returns a claimed task to the queue.
type ReleaseTask struct{}

// CompleteTask finishes a task. Completed is terminal.
type CompleteTask struct {
	ResolutionNotes string
}

// ReassignTask points a non-completed task at another user (manager action).
type ReassignTask struct {
	AssignedTo uuid.UUID
}

func (InitAlert) Name() string     { return "alert.init" }
func (AssignAlert) Name() string   { return "alert.assign" }
func (UnassignAlert) Name() string { return "alert.unassign" }
func (StartAlert) Name() string    { return "alert.start" }
func (EscalateAlert) Name() string { return "alert.escalate" }
func (HoldAlert) Name() string     { return "alert.hold" }
func (ResumeAlert) Name() string   { return "alert.resume" }
func (ResolveAlert) Name() string  { return "alert.resolve" }
func (ReopenAlert) Name() string   { return "alert.reopen" }
func (AddAlertNote) Name() string  { return "alert.add_note" }
func (ClaimTask) Name() string     { return "task.claim" }
func (ReleaseTask) Name() string   { return "task.release" }
func (CompleteTask) Name() string  { return "task.complete" }
func (ReassignTask) Name() string  { return "task.reassign" }

func (InitAlert) isAction()     {}
func (AssignAlert) isAction()   {}
func (UnassignAlert) isAction() {}
func (StartAlert) isAction()    {}
func (EscalateAlert) isAction() {}
func (HoldAlert) isAction()     {}
func (ResumeAlert) isAction()   {}
func (ResolveAlert) isAction()  {}
func (ReopenAlert) isAction()   {}
func (AddAlertNote) isAction()  {}
func (ClaimTask) isAction()     {}
func (ReleaseTask) isAction()   {}
func (CompleteTask) isAction()  {}
func (ReassignTask) isAction()  {}

// DecodeAlertAction maps a wire-format action name plus loose params onto a
// typed action. Event consumers and generic dispatch callers use this; the
// HTTP handlers bind typed bodies directly.
func DecodeAlertAction(name string, params map[string]any) (Action, error) {
	str := func(key string) string {
		v, _ := params[key].(string)
		return v
	}
	userID := func(key string) (uuid.UUID, error) {
		raw := str(key)
		if raw == "" {
			return uuid.Nil, validationf("missing %s", key)
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return uuid.Nil, validationf("invalid %s: %q", key, raw)
		}
		return id, nil
	}

	switch name {
	case "init":
		return InitAlert{}, nil
	case "assign":
		to, err := userID("assigned_to")
		if err != nil {
			return nil, err
		}
		act := AssignAlert{AssignedTo: to}
		if raw := str("assigned_by"); raw != "" {
			by, err := uuid.Parse(raw)
			if err != nil {
				return nil, validationf("invalid assigned_by: %q", raw)
			}
			act.AssignedBy = &by
		}
		return act, nil
	case "unassign":
		return UnassignAlert{}, nil
	case "start":
		return StartAlert{}, nil
	case "escalate":
		to, err := userID("escalated_to")
		if err != nil {
			return nil, err
		}
		return EscalateAlert{EscalatedTo: to, Reason: str("reason")}, nil
	case "hold":
		return HoldAlert{Reason: str("reason")}, nil
	case "resume":
		return ResumeAlert{}, nil
	case "resolve":
		return ResolveAlert{ResolutionType: str("resolution_type"), ResolutionNotes: str("resolution_notes")}, nil
	case "reopen":
		return ReopenAlert{Reason: str("reason")}, nil
	case "add_note":
		return AddAlertNote{Content: str("content"), NoteType: str("note_type")}, nil
	default:
		return nil, validationf("unknown alert action: %q", name)
	}
}
