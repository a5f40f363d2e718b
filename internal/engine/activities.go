package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"compliance-case-service/internal/logging"
	"compliance-case-service/internal/models"
	"compliance-case-service/internal/store"
)

// Actor is the resolved identity performing an action.
type Actor struct {
	ID   uuid.UUID
	Role string
}

// Activities is the library of atomic lifecycle operations. Each activity
// validates its parameters, applies the status guard and mutation as one
// conditional update, and pairs it with an audit row. Replaying an activity
// against an entity already in the target state is a safe no-op, so the
// at-least-once execution facility can retry freely.
type Activities struct {
	store store.Store
	log   *logging.Logger
	now   func() time.Time
}

// NewActivities builds the activity library. now defaults to time.Now.
func NewActivities(st store.Store, log *logging.Logger, now func() time.Time) *Activities {
	if now == nil {
		now = time.Now
	}
	return &Activities{store: st, log: log, now: now}
}

// classifyAlertMismatch re-reads the alert after a zero-row conditional update
// and decides between idempotent success and PreconditionFailed. match reports
// whether the current row already carries the action's effect.
func (a *Activities) classifyAlertMismatch(ctx context.Context, alertID int64, action string,
	target models.AlertStatus, match func(models.Alert) bool) (models.Alert, error) {

	current, err := a.store.GetAlert(ctx, alertID)
	if errors.Is(err, store.ErrNotFound) {
		return models.Alert{}, notFoundf("alert %d not found", alertID)
	}
	if err != nil {
		return models.Alert{}, err
	}
	if current.Status == target && (match == nil || match(current)) {
		// Replay of an already-applied action: report success, append nothing.
		return current, nil
	}
	return models.Alert{}, preconditionf("cannot %s alert %d in status %s", action, alertID, current.Status)
}

// InitializeAlert seeds the audit trail for a freshly produced alert,
// recording the pseudo-transition new -> open. Re-running it appends another
// informational row; it never fails on replay.
func (a *Activities) InitializeAlert(ctx context.Context, alertID int64, p InitAlert, actor Actor) (models.Alert, error) {
	var alert models.Alert
	var err error
	if alertID == 0 {
		if p.Create == nil {
			return models.Alert{}, validationf("init requires an alert id or an alert payload")
		}
		alert, err = a.store.CreateAlert(ctx, *p.Create)
		if err != nil {
			return models.Alert{}, err
		}
	} else {
		alert, err = a.store.GetAlert(ctx, alertID)
		if errors.Is(err, store.ErrNotFound) {
			return models.Alert{}, notFoundf("alert %d not found", alertID)
		}
		if err != nil {
			return models.Alert{}, err
		}
	}

	err = a.store.AppendAlertHistory(ctx, models.AlertHistoryEntry{
		AlertID:        alert.ID,
		PreviousStatus: models.AlertStatusNew,
		NewStatus:      models.AlertStatusOpen,
		ChangedBy:      actor.ID,
		Reason:         "alert created",
		Metadata: map[string]any{
			"scenario": alert.Scenario,
			"severity": alert.Severity,
		},
	})
	if err != nil {
		return models.Alert{}, err
	}
	return alert, nil
}

// AssignAlert moves open -> assigned.
func (a *Activities) AssignAlert(ctx context.Context, alertID int64, p AssignAlert, actor Actor) (models.Alert, error) {
	if p.AssignedTo == uuid.Nil {
		return models.Alert{}, validationf("assigned_to is required")
	}
	assignedBy := actor.ID
	if p.AssignedBy != nil {
		assignedBy = *p.AssignedBy
	}
	now := a.now()

	alert, err := a.store.TransitionAlert(ctx, store.AlertTransition{
		AlertID: alertID,
		From:    []models.AlertStatus{models.AlertStatusOpen},
		To:      models.AlertStatusAssigned,
		Mutate: store.AlertMutation{
			AssignedTo: &p.AssignedTo,
			AssignedBy: &assignedBy,
			AssignedAt: &now,
		},
		ChangedBy: actor.ID,
		Reason:    "alert assigned",
		Metadata:  map[string]any{"assigned_to": p.AssignedTo.String()},
	})
	if errors.Is(err, store.ErrStateMismatch) {
		return a.classifyAlertMismatch(ctx, alertID, "assign", models.AlertStatusAssigned, func(cur models.Alert) bool {
			return cur.AssignedTo != nil && *cur.AssignedTo == p.AssignedTo
		})
	}
	if errors.Is(err, store.ErrNotFound) {
		return models.Alert{}, notFoundf("alert %d not found", alertID)
	}
	return alert, err
}

// UnassignAlert moves assigned -> open and clears assignment fields.
func (a *Activities) UnassignAlert(ctx context.Context, alertID int64, _ UnassignAlert, actor Actor) (models.Alert, error) {
	alert, err := a.store.TransitionAlert(ctx, store.AlertTransition{
		AlertID:   alertID,
		From:      []models.AlertStatus{models.AlertStatusAssigned},
		To:        models.AlertStatusOpen,
		Mutate:    store.AlertMutation{ClearAssignment: true},
		ChangedBy: actor.ID,
		Reason:    "alert unassigned",
	})
	if errors.Is(err, store.ErrStateMismatch) {
		return a.classifyAlertMismatch(ctx, alertID, "unassign", models.AlertStatusOpen, func(cur models.Alert) bool {
			return cur.AssignedTo == nil
		})
	}
	if errors.Is(err, store.ErrNotFound) {
		return models.Alert{}, notFoundf("alert %d not found", alertID)
	}
	return alert, err
}

// StartAlert moves assigned -> in_progress.
func (a *Activities) StartAlert(ctx context.Context, alertID int64, _ StartAlert, actor Actor) (models.Alert, error) {
	alert, err := a.store.TransitionAlert(ctx, store.AlertTransition{
		AlertID:   alertID,
		From:      []models.AlertStatus{models.AlertStatusAssigned},
		To:        models.AlertStatusInProgress,
		ChangedBy: actor.ID,
		Reason:    "work started",
	})
	if errors.Is(err, store.ErrStateMismatch) {
		return a.classifyAlertMismatch(ctx, alertID, "start", models.AlertStatusInProgress, nil)
	}
	if errors.Is(err, store.ErrNotFound) {
		return models.Alert{}, notFoundf("alert %d not found", alertID)
	}
	return alert, err
}

// EscalateAlert moves in_progress -> escalated.
func (a *Activities) EscalateAlert(ctx context.Context, alertID int64, p EscalateAlert, actor Actor) (models.Alert, error) {
	if p.EscalatedTo == uuid.Nil {
		return models.Alert{}, validationf("escalated_to is required")
	}
	now := a.now()
	reason := p.Reason

	alert, err := a.store.TransitionAlert(ctx, store.AlertTransition{
		AlertID: alertID,
		From:    []models.AlertStatus{models.AlertStatusInProgress},
		To:      models.AlertStatusEscalated,
		Mutate: store.AlertMutation{
			EscalatedTo:      &p.EscalatedTo,
			EscalatedBy:      &actor.ID,
			EscalatedAt:      &now,
			EscalationReason: &reason,
		},
		ChangedBy: actor.ID,
		Reason:    p.Reason,
		Metadata:  map[string]any{"escalated_to": p.EscalatedTo.String()},
	})
	if errors.Is(err, store.ErrStateMismatch) {
		return a.classifyAlertMismatch(ctx, alertID, "escalate", models.AlertStatusEscalated, func(cur models.Alert) bool {
			return cur.EscalatedTo != nil && *cur.EscalatedTo == p.EscalatedTo
		})
	}
	if errors.Is(err, store.ErrNotFound) {
		return models.Alert{}, notFoundf("alert %d not found", alertID)
	}
	return alert, err
}

// HoldAlert moves in_progress -> on_hold.
func (a *Activities) HoldAlert(ctx context.Context, alertID int64, p HoldAlert, actor Actor) (models.Alert, error) {
	alert, err := a.store.TransitionAlert(ctx, store.AlertTransition{
		AlertID:   alertID,
		From:      []models.AlertStatus{models.AlertStatusInProgress},
		To:        models.AlertStatusOnHold,
		ChangedBy: actor.ID,
		Reason:    p.Reason,
	})
	if errors.Is(err, store.ErrStateMismatch) {
		return a.classifyAlertMismatch(ctx, alertID, "hold", models.AlertStatusOnHold, nil)
	}
	if errors.Is(err, store.ErrNotFound) {
		return models.Alert{}, notFoundf("alert %d not found", alertID)
	}
	return alert, err
}

// ResumeAlert moves escalated/on_hold -> in_progress.
func (a *Activities) ResumeAlert(ctx context.Context, alertID int64, _ ResumeAlert, actor Actor) (models.Alert, error) {
	alert, err := a.store.TransitionAlert(ctx, store.AlertTransition{
		AlertID:   alertID,
		From:      []models.AlertStatus{models.AlertStatusEscalated, models.AlertStatusOnHold},
		To:        models.AlertStatusInProgress,
		ChangedBy: actor.ID,
		Reason:    "work resumed",
	})
	if errors.Is(err, store.ErrStateMismatch) {
		return a.classifyAlertMismatch(ctx, alertID, "resume", models.AlertStatusInProgress, nil)
	}
	if errors.Is(err, store.ErrNotFound) {
		return models.Alert{}, notFoundf("alert %d not found", alertID)
	}
	return alert, err
}

// ResolveAlert moves in_progress/escalated/on_hold -> resolved. The resolution
// type is validated before any mutation.
func (a *Activities) ResolveAlert(ctx context.Context, alertID int64, p ResolveAlert, actor Actor) (models.Alert, error) {
	if !models.ValidResolutionType(p.ResolutionType) {
		return models.Alert{}, validationf("invalid resolution_type %q, must be one of %v", p.ResolutionType, models.ResolutionTypes)
	}
	now := a.now()

	alert, err := a.store.TransitionAlert(ctx, store.AlertTransition{
		AlertID: alertID,
		From: []models.AlertStatus{
			models.AlertStatusInProgress,
			models.AlertStatusEscalated,
			models.AlertStatusOnHold,
		},
		To: models.AlertStatusResolved,
		Mutate: store.AlertMutation{
			ResolutionType:  &p.ResolutionType,
			ResolutionNotes: &p.ResolutionNotes,
			ResolvedBy:      &actor.ID,
			ResolvedAt:      &now,
		},
		ChangedBy: actor.ID,
		Reason:    "alert resolved",
		Metadata:  map[string]any{"resolution_type": p.ResolutionType},
	})
	if errors.Is(err, store.ErrStateMismatch) {
		return a.classifyAlertMismatch(ctx, alertID, "resolve", models.AlertStatusResolved, func(cur models.Alert) bool {
			return cur.ResolutionType != nil && *cur.ResolutionType == p.ResolutionType
		})
	}
	if errors.Is(err, store.ErrNotFound) {
		return models.Alert{}, notFoundf("alert %d not found", alertID)
	}
	return alert, err
}

// ReopenAlert moves resolved -> open, clearing assignment, escalation and
// resolution fields. The manager/admin gate lives here, not at the API
// boundary, so every caller path is covered.
func (a *Activities) ReopenAlert(ctx context.Context, alertID int64, p ReopenAlert, actor Actor) (models.Alert, error) {
	if actor.Role != models.RoleManager && actor.Role != models.RoleAdmin {
		return models.Alert{}, forbiddenf("only managers can reopen alerts")
	}

	alert, err := a.store.TransitionAlert(ctx, store.AlertTransition{
		AlertID: alertID,
		From:    []models.AlertStatus{models.AlertStatusResolved},
		To:      models.AlertStatusOpen,
		Mutate: store.AlertMutation{
			ClearAssignment: true,
			ClearEscalation: true,
			ClearResolution: true,
		},
		ChangedBy: actor.ID,
		Reason:    p.Reason,
	})
	if errors.Is(err, store.ErrStateMismatch) {
		return a.classifyAlertMismatch(ctx, alertID, "reopen", models.AlertStatusOpen, func(cur models.Alert) bool {
			return cur.ResolutionType == nil
		})
	}
	if errors.Is(err, store.ErrNotFound) {
		return models.Alert{}, notFoundf("alert %d not found", alertID)
	}
	return alert, err
}

// AddNote appends a comment to an alert. Valid from any status; never touches
// status and deliberately not idempotent: every call appends a new note.
func (a *Activities) AddNote(ctx context.Context, alertID int64, p AddAlertNote, actor Actor) (models.Alert, error) {
	if p.Content == "" {
		return models.Alert{}, validationf("note content is required")
	}
	noteType := p.NoteType
	if noteType == "" {
		noteType = "comment"
	}

	alert, err := a.store.GetAlert(ctx, alertID)
	if errors.Is(err, store.ErrNotFound) {
		return models.Alert{}, notFoundf("alert %d not found", alertID)
	}
	if err != nil {
		return models.Alert{}, err
	}

	_, err = a.store.AddAlertNote(ctx, models.AlertNote{
		AlertID:  alertID,
		UserID:   actor.ID,
		Content:  p.Content,
		NoteType: noteType,
	})
	if err != nil {
		return models.Alert{}, err
	}
	return alert, nil
}
