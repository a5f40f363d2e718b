package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"compliance-case-service/internal/models"
)

// Memory keeps the whole case store in process memory. It mirrors the Postgres
// implementation's transition semantics (guard and mutation under one lock,
// history row in the same critical section) so the engine behaves identically
// against either backend. Used by tests and single-instance mode.
type Memory struct {
	mu  sync.Mutex
	now func() time.Time

	alerts       map[int64]models.Alert
	tasks        map[int64]models.Task
	alertHistory []models.AlertHistoryEntry
	taskHistory  []models.TaskHistoryEntry
	notes        []models.AlertNote
	users        map[uuid.UUID]models.User
	customers    map[uuid.UUID]string

	nextAlertID int64
	nextTaskID  int64
	nextRowID   int64
}

// NewMemory creates an empty in-memory store. now defaults to time.Now.
func NewMemory(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{
		now:       now,
		alerts:    make(map[int64]models.Alert),
		tasks:     make(map[int64]models.Task),
		users:     make(map[uuid.UUID]models.User),
		customers: make(map[uuid.UUID]string),
	}
}

// AddUser seeds a directory entry.
func (s *Memory) AddUser(u models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

// AddCustomer seeds a customer display name.
func (s *Memory) AddCustomer(id uuid.UUID, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customers[id] = name
}

func (s *Memory) rowID() int64 {
	s.nextRowID++
	return s.nextRowID
}

func cloneDetails(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// CreateAlert inserts a new alert in status open.
func (s *Memory) CreateAlert(_ context.Context, in models.AlertCreate) (models.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextAlertID++
	a := models.Alert{
		ID:         s.nextAlertID,
		CustomerID: in.CustomerID,
		Type:       in.Type,
		Status:     models.AlertStatusOpen,
		Severity:   in.Severity,
		Scenario:   in.Scenario,
		Details:    cloneDetails(in.Details),
		Priority:   "medium",
		CreatedAt:  s.now(),
	}
	s.alerts[a.ID] = a
	return a, nil
}

// GetAlert fetches a single alert.
func (s *Memory) GetAlert(_ context.Context, id int64) (models.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return models.Alert{}, ErrNotFound
	}
	return a, nil
}

func (s *Memory) userName(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	if u, ok := s.users[*id]; ok {
		name := u.FullName
		return &name
	}
	return nil
}

func (s *Memory) alertDetail(a models.Alert) models.AlertDetail {
	d := models.AlertDetail{Alert: a}
	if a.CustomerID != nil {
		if name, ok := s.customers[*a.CustomerID]; ok {
			d.CustomerName = &name
		}
	}
	d.AssignedToName = s.userName(a.AssignedTo)
	if a.AssignedTo != nil {
		if u, ok := s.users[*a.AssignedTo]; ok {
			email := u.Email
			d.AssignedToEmail = &email
		}
	}
	d.EscalatedToName = s.userName(a.EscalatedTo)
	return d
}

// GetAlertDetail fetches an alert with display names resolved.
func (s *Memory) GetAlertDetail(_ context.Context, id int64) (models.AlertDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return models.AlertDetail{}, ErrNotFound
	}
	return s.alertDetail(a), nil
}

// ListAlerts returns a filtered page plus the unpaged total, newest first.
func (s *Memory) ListAlerts(_ context.Context, f AlertFilters) ([]models.AlertDetail, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []models.Alert
	for _, a := range s.alerts {
		if f.Status != nil && a.Status != *f.Status {
			continue
		}
		if f.Severity != nil && a.Severity != *f.Severity {
			continue
		}
		if f.Unassigned && a.AssignedTo != nil {
			continue
		}
		if !f.Unassigned && f.AssignedTo != nil && (a.AssignedTo == nil || *a.AssignedTo != *f.AssignedTo) {
			continue
		}
		if f.CustomerID != nil && (a.CustomerID == nil || *a.CustomerID != *f.CustomerID) {
			continue
		}
		matched = append(matched, a)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if f.Offset > 0 {
		if f.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[f.Offset:]
		}
	}
	if len(matched) > limit {
		matched = matched[:limit]
	}

	list := make([]models.AlertDetail, 0, len(matched))
	for _, a := range matched {
		list = append(list, s.alertDetail(a))
	}
	return list, total, nil
}

// UpdateAlertMeta patches priority/due_date.
func (s *Memory) UpdateAlertMeta(_ context.Context, id int64, u AlertMetaUpdate) (models.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return models.Alert{}, ErrNotFound
	}
	if u.Priority != nil {
		a.Priority = *u.Priority
	}
	if u.ClearDueDate {
		a.DueDate = nil
	} else if u.DueDate != nil {
		due := *u.DueDate
		a.DueDate = &due
	}
	s.alerts[id] = a
	return a, nil
}

func applyAlertMutation(a *models.Alert, m AlertMutation) {
	if m.ClearAssignment {
		a.AssignedTo, a.AssignedBy, a.AssignedAt = nil, nil, nil
	}
	if m.AssignedTo != nil {
		a.AssignedTo = m.AssignedTo
	}
	if m.AssignedBy != nil {
		a.AssignedBy = m.AssignedBy
	}
	if m.AssignedAt != nil {
		a.AssignedAt = m.AssignedAt
	}
	if m.ClearEscalation {
		a.EscalatedTo, a.EscalatedBy, a.EscalatedAt, a.EscalationReason = nil, nil, nil, nil
	}
	if m.EscalatedTo != nil {
		a.EscalatedTo = m.EscalatedTo
	}
	if m.EscalatedBy != nil {
		a.EscalatedBy = m.EscalatedBy
	}
	if m.EscalatedAt != nil {
		a.EscalatedAt = m.EscalatedAt
	}
	if m.EscalationReason != nil {
		a.EscalationReason = m.EscalationReason
	}
	if m.ClearResolution {
		a.ResolutionType, a.ResolutionNotes, a.ResolvedBy, a.ResolvedAt = nil, nil, nil, nil
	}
	if m.ResolutionType != nil {
		a.ResolutionType = m.ResolutionType
	}
	if m.ResolutionNotes != nil {
		a.ResolutionNotes = m.ResolutionNotes
	}
	if m.ResolvedBy != nil {
		a.ResolvedBy = m.ResolvedBy
	}
	if m.ResolvedAt != nil {
		a.ResolvedAt = m.ResolvedAt
	}
}

// TransitionAlert applies one guarded status change under the store lock.
func (s *Memory) TransitionAlert(_ context.Context, t AlertTransition) (models.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[t.AlertID]
	if !ok {
		return models.Alert{}, ErrNotFound
	}
	allowed := false
	for _, st := range t.From {
		if a.Status == st {
			allowed = true
			break
		}
	}
	if !allowed {
		return models.Alert{}, ErrStateMismatch
	}

	prev := a.Status
	a.Status = t.To
	applyAlertMutation(&a, t.Mutate)
	s.alerts[t.AlertID] = a

	s.alertHistory = append(s.alertHistory, models.AlertHistoryEntry{
		ID:             s.rowID(),
		AlertID:        t.AlertID,
		PreviousStatus: prev,
		NewStatus:      t.To,
		ChangedBy:      t.ChangedBy,
		Reason:         t.Reason,
		Metadata:       cloneDetails(t.Metadata),
		CreatedAt:      s.now(),
	})
	return a, nil
}

// AppendAlertHistory writes a standalone informational history row.
func (s *Memory) AppendAlertHistory(_ context.Context, e models.AlertHistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = s.rowID()
	e.CreatedAt = s.now()
	e.Metadata = cloneDetails(e.Metadata)
	s.alertHistory = append(s.alertHistory, e)
	return nil
}

// AlertHistory lists audit rows, newest first.
func (s *Memory) AlertHistory(_ context.Context, alertID int64) ([]models.AlertHistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []models.AlertHistoryEntry
	for i := len(s.alertHistory) - 1; i >= 0; i-- {
		e := s.alertHistory[i]
		if e.AlertID != alertID {
			continue
		}
		e.ChangedByName = s.userName(&e.ChangedBy)
		list = append(list, e)
	}
	return list, nil
}

// AddAlertNote appends a note.
func (s *Memory) AddAlertNote(_ context.Context, n models.AlertNote) (models.AlertNote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.alerts[n.AlertID]; !ok {
		return models.AlertNote{}, ErrNotFound
	}
	n.ID = s.rowID()
	n.CreatedAt = s.now()
	n.UpdatedAt = n.CreatedAt
	s.notes = append(s.notes, n)
	return n, nil
}

// ListAlertNotes lists notes, newest first.
func (s *Memory) ListAlertNotes(_ context.Context, alertID int64) ([]models.AlertNote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []models.AlertNote
	for i := len(s.notes) - 1; i >= 0; i-- {
		n := s.notes[i]
		if n.AlertID != alertID {
			continue
		}
		n.UserName = s.userName(&n.UserID)
		list = append(list, n)
	}
	return list, nil
}

// DeleteAlertNote removes a note.
func (s *Memory) DeleteAlertNote(_ context.Context, alertID, noteID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, n := range s.notes {
		if n.ID == noteID && n.AlertID == alertID {
			s.notes = append(s.notes[:i], s.notes[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// CreateTask inserts a pending task, enforcing one open task per alert.
func (s *Memory) CreateTask(_ context.Context, in models.TaskCreate) (models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if in.AlertID != nil {
		for _, t := range s.tasks {
			if t.AlertID != nil && *t.AlertID == *in.AlertID && t.Status != models.TaskStatusCompleted {
				return models.Task{}, ErrDuplicateOpenTask
			}
		}
	}
	s.nextTaskID++
	now := s.now()
	t := models.Task{
		ID:          s.nextTaskID,
		CustomerID:  in.CustomerID,
		AlertID:     in.AlertID,
		TaskType:    in.TaskType,
		Priority:    in.Priority,
		Status:      models.TaskStatusPending,
		Title:       in.Title,
		Description: in.Description,
		Details:     cloneDetails(in.Details),
		DueDate:     in.DueDate,
		CreatedBy:   in.CreatedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if in.AssignedTo != nil {
		t.AssignedTo = in.AssignedTo
		t.AssignedBy = in.AssignedBy
		t.AssignedAt = &now
	}
	s.tasks[t.ID] = t
	return t, nil
}

// GetTask fetches a single task.
func (s *Memory) GetTask(_ context.Context, id int64) (models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return models.Task{}, ErrNotFound
	}
	return t, nil
}

func (s *Memory) taskDetail(t models.Task) models.TaskDetail {
	d := models.TaskDetail{Task: t}
	if t.CustomerID != nil {
		if name, ok := s.customers[*t.CustomerID]; ok {
			d.CustomerName = &name
		}
	}
	d.AssignedToName = s.userName(t.AssignedTo)
	if t.AlertID != nil {
		if a, ok := s.alerts[*t.AlertID]; ok {
			scenario, severity := a.Scenario, a.Severity
			d.AlertScenario = &scenario
			d.AlertSeverity = &severity
		}
	}
	return d
}

// GetTaskDetail fetches a task with alert and customer context.
func (s *Memory) GetTaskDetail(_ context.Context, id int64) (models.TaskDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return models.TaskDetail{}, ErrNotFound
	}
	return s.taskDetail(t), nil
}

// UpdateTaskMeta patches priority/title/due_date.
func (s *Memory) UpdateTaskMeta(_ context.Context, id int64, u TaskMetaUpdate) (models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return models.Task{}, ErrNotFound
	}
	if u.Priority != nil {
		t.Priority = *u.Priority
	}
	if u.Title != nil {
		t.Title = *u.Title
	}
	if u.ClearDueDate {
		t.DueDate = nil
	} else if u.DueDate != nil {
		due := *u.DueDate
		t.DueDate = &due
	}
	t.UpdatedAt = s.now()
	s.tasks[id] = t
	return t, nil
}

var priorityRank = map[string]int{"critical": 1, "high": 2, "medium": 3, "low": 4}

// ListTasks returns tasks ordered by priority, then due date, then age.
func (s *Memory) ListTasks(_ context.Context, f TaskFilters) ([]models.TaskDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []models.Task
	for _, t := range s.tasks {
		if f.Status != nil && t.Status != *f.Status {
			continue
		}
		if f.TaskType != nil && t.TaskType != *f.TaskType {
			continue
		}
		if f.Priority != nil && t.Priority != *f.Priority {
			continue
		}
		if f.CustomerID != nil && (t.CustomerID == nil || *t.CustomerID != *f.CustomerID) {
			continue
		}
		if f.AssignedTo != nil && (t.AssignedTo == nil || *t.AssignedTo != *f.AssignedTo) {
			continue
		}
		if f.AlertID != nil && (t.AlertID == nil || *t.AlertID != *f.AlertID) {
			continue
		}
		if f.Unclaimed && (t.AssignedTo != nil || t.Status != models.TaskStatusPending) {
			continue
		}
		matched = append(matched, t)
	}
	sort.Slice(matched, func(i, j int) bool {
		ri, rj := priorityRank[matched[i].Priority], priorityRank[matched[j].Priority]
		if ri == 0 {
			ri = 4
		}
		if rj == 0 {
			rj = 4
		}
		if ri != rj {
			return ri < rj
		}
		di, dj := matched[i].DueDate, matched[j].DueDate
		if di != nil && dj != nil && !di.Equal(*dj) {
			return di.Before(*dj)
		}
		if (di == nil) != (dj == nil) {
			return di != nil
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if len(matched) > limit {
		matched = matched[:limit]
	}
	list := make([]models.TaskDetail, 0, len(matched))
	for _, t := range matched {
		list = append(list, s.taskDetail(t))
	}
	return list, nil
}

// TransitionTask applies one guarded task status change under the store lock.
func (s *Memory) TransitionTask(_ context.Context, t TaskTransition) (models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[t.TaskID]
	if !ok {
		return models.Task{}, ErrNotFound
	}
	allowed := false
	for _, st := range t.From {
		if task.Status == st {
			allowed = true
			break
		}
	}
	if !allowed {
		return models.Task{}, ErrStateMismatch
	}

	prev := task.Status
	task.Status = t.To
	task.UpdatedAt = s.now()
	m := t.Mutate
	if m.ClearAssignment {
		task.AssignedTo, task.AssignedBy, task.AssignedAt = nil, nil, nil
	}
	if m.AssignedTo != nil {
		task.AssignedTo = m.AssignedTo
	}
	if m.AssignedBy != nil {
		task.AssignedBy = m.AssignedBy
	}
	if m.AssignedAt != nil {
		task.AssignedAt = m.AssignedAt
	}
	if m.CompletedAt != nil {
		task.CompletedAt = m.CompletedAt
	}
	if m.CompletedBy != nil {
		task.CompletedBy = m.CompletedBy
	}
	if m.ResolutionNotes != nil {
		task.ResolutionNotes = m.ResolutionNotes
	}
	if m.Priority != nil {
		task.Priority = *m.Priority
	}
	s.tasks[t.TaskID] = task

	s.taskHistory = append(s.taskHistory, models.TaskHistoryEntry{
		ID:             s.rowID(),
		TaskID:         t.TaskID,
		PreviousStatus: prev,
		NewStatus:      t.To,
		ChangedBy:      t.ChangedBy,
		Reason:         t.Reason,
		Metadata:       cloneDetails(t.Metadata),
		CreatedAt:      s.now(),
	})
	return task, nil
}

// FindOpenTaskForAlert returns the pending/in-progress task linked to alertID.
func (s *Memory) FindOpenTaskForAlert(_ context.Context, alertID int64) (models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found *models.Task
	for _, t := range s.tasks {
		t := t
		if t.AlertID == nil || *t.AlertID != alertID || t.Status == models.TaskStatusCompleted {
			continue
		}
		if found == nil || t.CreatedAt.Before(found.CreatedAt) {
			found = &t
		}
	}
	if found == nil {
		return models.Task{}, ErrNotFound
	}
	return *found, nil
}

// RetargetTask points an open linked task at a new assignee.
func (s *Memory) RetargetTask(_ context.Context, taskID int64, assignedTo, assignedBy uuid.UUID, priority string) (models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return models.Task{}, ErrNotFound
	}
	if t.Status == models.TaskStatusCompleted {
		return models.Task{}, ErrStateMismatch
	}
	now := s.now()
	t.AssignedTo = &assignedTo
	t.AssignedBy = &assignedBy
	t.AssignedAt = &now
	t.Priority = priority
	t.UpdatedAt = now
	s.tasks[taskID] = t
	return t, nil
}

// TaskHistory lists audit rows, newest first.
func (s *Memory) TaskHistory(_ context.Context, taskID int64) ([]models.TaskHistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []models.TaskHistoryEntry
	for i := len(s.taskHistory) - 1; i >= 0; i-- {
		e := s.taskHistory[i]
		if e.TaskID != taskID {
			continue
		}
		e.ChangedByName = s.userName(&e.ChangedBy)
		list = append(list, e)
	}
	return list, nil
}

// UserExists checks the seeded directory.
func (s *Memory) UserExists(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.users[id]
	return ok, nil
}

// GetUser fetches a seeded directory entry.
func (s *Memory) GetUser(_ context.Context, id uuid.UUID) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return u, nil
}
