package engine

import (
	"context"
	"errors"

	"compliance-case-service/internal/models"
	"compliance-case-service/internal/store"
)

// classifyTaskMismatch mirrors classifyAlertMismatch for tasks.
func (a *Activities) classifyTaskMismatch(ctx context.Context, taskID int64, action string,
	target models.TaskStatus, match func(models.Task) bool) (models.Task, error) {

	current, err := a.store.GetTask(ctx, taskID)
	if errors.Is(err, store.ErrNotFound) {
		return models.Task{}, notFoundf("task %d not found", taskID)
	}
	if err != nil {
		return models.Task{}, err
	}
	if current.Status == target && (match == nil || match(current)) {
		return current, nil
	}
	return models.Task{}, preconditionf("cannot %s task %d in status %s", action, taskID, current.Status)
}

// ClaimTask moves pending -> in_progress with the acting user as assignee. A
// pending task already assigned to someone else cannot be claimed out from
// under them.
func (a *Activities) ClaimTask(ctx context.Context, taskID int64, _ ClaimTask, actor Actor) (models.Task, error) {
	current, err := a.store.GetTask(ctx, taskID)
	if errors.Is(err, store.ErrNotFound) {
		return models.Task{}, notFoundf("task %d not found", taskID)
	}
	if err != nil {
		return models.Task{}, err
	}
	if current.AssignedTo != nil && *current.AssignedTo != actor.ID {
		return models.Task{}, conflictf("task %d is assigned to another user", taskID)
	}

	now := a.now()
	task, err := a.store.TransitionTask(ctx, store.TaskTransition{
		TaskID: taskID,
		From:   []models.TaskStatus{models.TaskStatusPending},
		To:     models.TaskStatusInProgress,
		Mutate: store.TaskMutation{
			AssignedTo: &actor.ID,
			AssignedBy: &actor.ID,
			AssignedAt: &now,
		},
		ChangedBy: actor.ID,
		Reason:    "task claimed",
	})
	if errors.Is(err, store.ErrStateMismatch) {
		current, err := a.store.GetTask(ctx, taskID)
		if err != nil {
			return models.Task{}, err
		}
		if current.Status == models.TaskStatusInProgress {
			if current.AssignedTo != nil && *current.AssignedTo == actor.ID {
				// Replay of this user's own claim.
				return current, nil
			}
			return models.Task{}, conflictf("task %d is already claimed", taskID)
		}
		return models.Task{}, preconditionf("cannot claim task %d in status %s", taskID, current.Status)
	}
	if errors.Is(err, store.ErrNotFound) {
		return models.Task{}, notFoundf("task %d not found", taskID)
	}
	return task, err
}

// ReleaseTask returns an in_progress task to the queue, clearing assignment.
func (a *Activities) ReleaseTask(ctx context.Context, taskID int64, _ ReleaseTask, actor Actor) (models.Task, error) {
	task, err := a.store.TransitionTask(ctx, store.TaskTransition{
		TaskID:    taskID,
		From:      []models.TaskStatus{models.TaskStatusInProgress},
		To:        models.TaskStatusPending,
		Mutate:    store.TaskMutation{ClearAssignment: true},
		ChangedBy: actor.ID,
		Reason:    "task released",
	})
	if errors.Is(err, store.ErrStateMismatch) {
		return a.classifyTaskMismatch(ctx, taskID, "release", models.TaskStatusPending, func(cur models.Task) bool {
			return cur.AssignedTo == nil
		})
	}
	if errors.Is(err, store.ErrNotFound) {
		return models.Task{}, notFoundf("task %d not found", taskID)
	}
	return task, err
}

// CompleteTask moves in_progress -> completed. Completed is terminal, and
// completing an already-completed task is an explicit error rather than an
// idempotent no-op: a second completion means two investigators believe they
// finished the same work, which must surface.
func (a *Activities) CompleteTask(ctx context.Context, taskID int64, p CompleteTask, actor Actor) (models.Task, error) {
	now := a.now()
	mut := store.TaskMutation{
		CompletedAt: &now,
		CompletedBy: &actor.ID,
	}
	if p.ResolutionNotes != "" {
		mut.ResolutionNotes = &p.ResolutionNotes
	}

	task, err := a.store.TransitionTask(ctx, store.TaskTransition{
		TaskID:    taskID,
		From:      []models.TaskStatus{models.TaskStatusInProgress},
		To:        models.TaskStatusCompleted,
		Mutate:    mut,
		ChangedBy: actor.ID,
		Reason:    "task completed",
	})
	if errors.Is(err, store.ErrStateMismatch) {
		current, err := a.store.GetTask(ctx, taskID)
		if err != nil {
			return models.Task{}, err
		}
		return models.Task{}, preconditionf("cannot complete task %d in status %s", taskID, current.Status)
	}
	if errors.Is(err, store.ErrNotFound) {
		return models.Task{}, notFoundf("task %d not found", taskID)
	}
	return task, err
}

// ReassignTaskTo points a non-completed task at another user. A pending task
// jumps straight to in_progress for the new assignee; an in_progress task
// keeps its status, so no history row is written for the swap.
func (a *Activities) ReassignTaskTo(ctx context.Context, taskID int64, p ReassignTask, actor Actor) (models.Task, error) {
	current, err := a.store.GetTask(ctx, taskID)
	if errors.Is(err, store.ErrNotFound) {
		return models.Task{}, notFoundf("task %d not found", taskID)
	}
	if err != nil {
		return models.Task{}, err
	}

	switch current.Status {
	case models.TaskStatusCompleted:
		return models.Task{}, preconditionf("cannot reassign completed task %d", taskID)
	case models.TaskStatusInProgress:
		if current.AssignedTo != nil && *current.AssignedTo == p.AssignedTo {
			return current, nil
		}
		return a.store.RetargetTask(ctx, taskID, p.AssignedTo, actor.ID, current.Priority)
	default:
		now := a.now()
		task, err := a.store.TransitionTask(ctx, store.TaskTransition{
			TaskID: taskID,
			From:   []models.TaskStatus{models.TaskStatusPending},
			To:     models.TaskStatusInProgress,
			Mutate: store.TaskMutation{
				AssignedTo: &p.AssignedTo,
				AssignedBy: &actor.ID,
				AssignedAt: &now,
			},
			ChangedBy: actor.ID,
			Reason:    "task reassigned",
			Metadata:  map[string]any{"assigned_to": p.AssignedTo.String()},
		})
		if errors.Is(err, store.ErrStateMismatch) {
			return a.classifyTaskMismatch(ctx, taskID, "reassign", models.TaskStatusInProgress, func(cur models.Task) bool {
				return cur.AssignedTo != nil && *cur.AssignedTo == p.AssignedTo
			})
		}
		return task, err
	}
}
