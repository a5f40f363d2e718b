package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"compliance-case-service/internal/models"
	"compliance-case-service/internal/store"
)

// LinkTrigger names the alert action that caused a task linkage pass.
type LinkTrigger string

const (
	LinkTriggerAssign   LinkTrigger = "assign"
	LinkTriggerEscalate LinkTrigger = "escalate"
)

// severityPriority maps alert severity onto task priority.
func severityPriority(severity string) string {
	switch severity {
	case "critical":
		return "critical"
	case "high":
		return "high"
	case "low":
		return "low"
	default:
		return "medium"
	}
}

// raisePriority returns the higher of the two priorities on the shared scale.
func raisePriority(p, floor string) string {
	rank := map[string]int{"low": 0, "medium": 1, "high": 2, "critical": 3}
	if rank[p] >= rank[floor] {
		return p
	}
	return floor
}

// LinkTask keeps at most one open task attached to the alert. An existing
// pending or in_progress task is retargeted at the new owner; otherwise a
// fresh task is created. Racing creators lose to the unique partial index and
// fall back to retargeting, so the resolver converges from either side.
func (a *Activities) LinkTask(ctx context.Context, alert models.Alert, trigger LinkTrigger, owner uuid.UUID, actor Actor) (models.Task, error) {
	taskType := "investigation"
	priority := severityPriority(alert.Severity)
	due := a.now().Add(72 * time.Hour)
	title := fmt.Sprintf("Investigate alert #%d (%s)", alert.ID, alert.Scenario)
	if trigger == LinkTriggerEscalate {
		taskType = "escalation"
		priority = raisePriority(priority, "high")
		due = a.now().Add(24 * time.Hour)
		title = fmt.Sprintf("Review escalated alert #%d (%s)", alert.ID, alert.Scenario)
	}

	existing, err := a.store.FindOpenTaskForAlert(ctx, alert.ID)
	if err == nil {
		return a.store.RetargetTask(ctx, existing.ID, owner, actor.ID, raisePriority(existing.Priority, priority))
	}
	if !errors.Is(err, store.ErrNotFound) {
		return models.Task{}, err
	}

	task, err := a.store.CreateTask(ctx, models.TaskCreate{
		CustomerID:  alert.CustomerID,
		AlertID:     &alert.ID,
		TaskType:    taskType,
		Priority:    priority,
		Title:       title,
		Description: fmt.Sprintf("Follow-up work for %s alert on scenario %s", alert.Severity, alert.Scenario),
		Details:     map[string]any{"trigger": string(trigger)},
		DueDate:     &due,
		CreatedBy:   actor.ID,
		AssignedTo:  &owner,
		AssignedBy:  &actor.ID,
	})
	if errors.Is(err, store.ErrDuplicateOpenTask) {
		// Lost the race; retarget whichever task won.
		existing, findErr := a.store.FindOpenTaskForAlert(ctx, alert.ID)
		if findErr != nil {
			return models.Task{}, findErr
		}
		return a.store.RetargetTask(ctx, existing.ID, owner, actor.ID, raisePriority(existing.Priority, priority))
	}
	return task, err
}
