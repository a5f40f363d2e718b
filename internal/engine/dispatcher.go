package engine

import (
	"context"

	"github.com/google/uuid"

	"compliance-case-service/internal/logging"
	"compliance-case-service/internal/models"
	"compliance-case-service/internal/store"
	"compliance-case-service/internal/workflow"
)

// Request is one lifecycle action against one entity.
type Request struct {
	EntityID  int64
	Action    Action
	ActorID   uuid.UUID
	ActorRole string
}

// Result is the structured outcome of a dispatched action.
type Result struct {
	Success  bool   `json:"success"`
	Entity   string `json:"entity"`
	EntityID int64  `json:"entity_id"`
	Action   string `json:"action"`
	Status   string `json:"status,omitempty"`
	Error    string `json:"error,omitempty"`
	TaskID   *int64 `json:"task_id,omitempty"`

	Err error `json:"-"`
}

// Event is what hooks receive after a successful action.
type Event struct {
	Result Result
	Alert  *models.Alert
	Task   *models.Task
}

// Hook observes successful lifecycle actions. Hooks run inline after commit
// and must not block; failures inside a hook are the hook's problem.
type Hook func(Event)

// Dispatcher routes typed actions to activities, running each on the
// execution facility so transient failures are retried with the entity id as
// the unit of serialization.
type Dispatcher struct {
	store store.Store
	fac   workflow.Facility
	acts  *Activities
	log   *logging.Logger
	hooks []Hook
}

// NewDispatcher wires the dispatcher.
func NewDispatcher(st store.Store, fac workflow.Facility, acts *Activities, log *logging.Logger) *Dispatcher {
	return &Dispatcher{store: st, fac: fac, acts: acts, log: log}
}

// OnSuccess registers a hook. Not safe to call after dispatching starts.
func (d *Dispatcher) OnSuccess(h Hook) {
	d.hooks = append(d.hooks, h)
}

// resolveActor validates the requesting identity against the user directory.
// Unknown or absent actors fall back to the system identity so audit rows
// always reference a real user row.
func (d *Dispatcher) resolveActor(ctx context.Context, actorID uuid.UUID, role string) Actor {
	if actorID == uuid.Nil {
		return Actor{ID: models.SystemUserID, Role: models.RoleSystem}
	}
	ok, err := d.store.UserExists(ctx, actorID)
	if err != nil || !ok {
		d.log.Warnf("actor %s not found, attributing action to system identity", actorID)
		return Actor{ID: models.SystemUserID, Role: models.RoleSystem}
	}
	return Actor{ID: actorID, Role: role}
}

// resolveUserRef validates a target-user reference (assignee, escalation
// target) against the directory, substituting the system identity for ids it
// does not know. The nil id passes through so the activities' own required
// checks still fire.
func (d *Dispatcher) resolveUserRef(ctx context.Context, id uuid.UUID) uuid.UUID {
	if id == uuid.Nil {
		return id
	}
	ok, err := d.store.UserExists(ctx, id)
	if err != nil || !ok {
		d.log.Warnf("user %s not found, substituting system identity", id)
		return models.SystemUserID
	}
	return id
}

// Dispatch executes one action and returns a structured result. Business
// rejections come back as Success=false with the error classified; the Err
// field carries the typed error for HTTP mapping.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) Result {
	actor := d.resolveActor(ctx, req.ActorID, req.ActorRole)

	res := Result{
		Entity:   "alert",
		EntityID: req.EntityID,
		Action:   req.Action.Name(),
	}

	var alert models.Alert
	var task models.Task
	var linkTrigger LinkTrigger
	var linkOwner uuid.UUID

	run := func(fn func(context.Context) error) error {
		return d.fac.Execute(ctx, req.Action.Name(), fn)
	}

	var err error
	switch p := req.Action.(type) {
	case InitAlert:
		err = run(func(ctx context.Context) error {
			var e error
			alert, e = d.acts.InitializeAlert(ctx, req.EntityID, p, actor)
			return e
		})
	case AssignAlert:
		p.AssignedTo = d.resolveUserRef(ctx, p.AssignedTo)
		if p.AssignedBy != nil {
			by := d.resolveUserRef(ctx, *p.AssignedBy)
			p.AssignedBy = &by
		}
		err = run(func(ctx context.Context) error {
			var e error
			alert, e = d.acts.AssignAlert(ctx, req.EntityID, p, actor)
			return e
		})
		linkTrigger, linkOwner = LinkTriggerAssign, p.AssignedTo
	case UnassignAlert:
		err = run(func(ctx context.Context) error {
			var e error
			alert, e = d.acts.UnassignAlert(ctx, req.EntityID, p, actor)
			return e
		})
	case StartAlert:
		err = run(func(ctx context.Context) error {
			var e error
			alert, e = d.acts.StartAlert(ctx, req.EntityID, p, actor)
			return e
		})
	case EscalateAlert:
		p.EscalatedTo = d.resolveUserRef(ctx, p.EscalatedTo)
		err = run(func(ctx context.Context) error {
			var e error
			alert, e = d.acts.EscalateAlert(ctx, req.EntityID, p, actor)
			return e
		})
		linkTrigger, linkOwner = LinkTriggerEscalate, p.EscalatedTo
	case HoldAlert:
		err = run(func(ctx context.Context) error {
			var e error
			alert, e = d.acts.HoldAlert(ctx, req.EntityID, p, actor)
			return e
		})
	case ResumeAlert:
		err = run(func(ctx context.Context) error {
			var e error
			alert, e = d.acts.ResumeAlert(ctx, req.EntityID, p, actor)
			return e
		})
	case ResolveAlert:
		err = run(func(ctx context.Context) error {
			var e error
			alert, e = d.acts.ResolveAlert(ctx, req.EntityID, p, actor)
			return e
		})
	case ReopenAlert:
		err = run(func(ctx context.Context) error {
			var e error
			alert, e = d.acts.ReopenAlert(ctx, req.EntityID, p, actor)
			return e
		})
	case AddAlertNote:
		err = run(func(ctx context.Context) error {
			var e error
			alert, e = d.acts.AddNote(ctx, req.EntityID, p, actor)
			return e
		})
	case ClaimTask:
		res.Entity = "task"
		err = run(func(ctx context.Context) error {
			var e error
			task, e = d.acts.ClaimTask(ctx, req.EntityID, p, actor)
			return e
		})
	case ReleaseTask:
		res.Entity = "task"
		err = run(func(ctx context.Context) error {
			var e error
			task, e = d.acts.ReleaseTask(ctx, req.EntityID, p, actor)
			return e
		})
	case CompleteTask:
		res.Entity = "task"
		err = run(func(ctx context.Context) error {
			var e error
			task, e = d.acts.CompleteTask(ctx, req.EntityID, p, actor)
			return e
		})
	case ReassignTask:
		res.Entity = "task"
		p.AssignedTo = d.resolveUserRef(ctx, p.AssignedTo)
		err = run(func(ctx context.Context) error {
			var e error
			task, e = d.acts.ReassignTaskTo(ctx, req.EntityID, p, actor)
			return e
		})
	default:
		err = validationf("unsupported action %q", req.Action.Name())
	}

	if err != nil {
		res.Error = err.Error()
		res.Err = err
		d.log.WithFields(map[string]any{
			"entity": res.Entity,
			"id":     req.EntityID,
			"action": res.Action,
		}).Warnf("action rejected: %v", err)
		return res
	}

	res.Success = true
	if res.Entity == "alert" {
		res.EntityID = alert.ID
		res.Status = string(alert.Status)
	} else {
		res.Status = string(task.Status)
	}

	// Assignment and escalation pull the linked task along. The alert
	// transition is already committed, so a linkage failure is logged and
	// left for the next assign or escalate to repair, not bubbled up.
	if linkTrigger != "" {
		linkErr := d.fac.Execute(ctx, "task.link", func(ctx context.Context) error {
			var e error
			task, e = d.acts.LinkTask(ctx, alert, linkTrigger, linkOwner, actor)
			return e
		})
		if linkErr != nil {
			d.log.Errorf("task linkage for alert %d failed: %v", alert.ID, linkErr)
		} else {
			res.TaskID = &task.ID
		}
	}

	ev := Event{Result: res}
	if res.Entity == "alert" {
		ev.Alert = &alert
	}
	if task.ID != 0 {
		ev.Task = &task
	}
	for _, h := range d.hooks {
		h(ev)
	}
	return res
}
