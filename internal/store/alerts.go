package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"compliance-case-service/internal/models"
)

const alertColumns = `a.id, a.customer_id, a.type, a.status, a.severity, a.scenario, a.details,
	a.priority, a.due_date, a.resolution_type, a.resolution_notes, a.resolved_by, a.resolved_at,
	a.assigned_to, a.assigned_by, a.assigned_at,
	a.escalated_to, a.escalated_by, a.escalated_at, a.escalation_reason, a.created_at`

func scanAlert(row pgx.Row) (models.Alert, error) {
	var a models.Alert
	var details []byte
	err := row.Scan(
		&a.ID, &a.CustomerID, &a.Type, &a.Status, &a.Severity, &a.Scenario, &details,
		&a.Priority, &a.DueDate, &a.ResolutionType, &a.ResolutionNotes, &a.ResolvedBy, &a.ResolvedAt,
		&a.AssignedTo, &a.AssignedBy, &a.AssignedAt,
		&a.EscalatedTo, &a.EscalatedBy, &a.EscalatedAt, &a.EscalationReason, &a.CreatedAt,
	)
	if err != nil {
		return models.Alert{}, err
	}
	a.Details, err = unmarshalJSONB(details)
	return a, err
}

func scanAlertDetail(row pgx.Row) (models.AlertDetail, error) {
	var d models.AlertDetail
	var details []byte
	err := row.Scan(
		&d.ID, &d.CustomerID, &d.Type, &d.Status, &d.Severity, &d.Scenario, &details,
		&d.Priority, &d.DueDate, &d.ResolutionType, &d.ResolutionNotes, &d.ResolvedBy, &d.ResolvedAt,
		&d.AssignedTo, &d.AssignedBy, &d.AssignedAt,
		&d.EscalatedTo, &d.EscalatedBy, &d.EscalatedAt, &d.EscalationReason, &d.CreatedAt,
		&d.CustomerName, &d.AssignedToName, &d.AssignedToEmail, &d.EscalatedToName,
	)
	if err != nil {
		return models.AlertDetail{}, err
	}
	d.Details, err = unmarshalJSONB(details)
	return d, err
}

// CreateAlert inserts a new alert in status open.
func (s *Postgres) CreateAlert(ctx context.Context, in models.AlertCreate) (models.Alert, error) {
	details, err := marshalJSONB(in.Details)
	if err != nil {
		return models.Alert{}, err
	}
	query := `
		INSERT INTO alerts (customer_id, type, status, severity, scenario, details)
		VALUES ($1, $2, 'open', $3, $4, $5)
		RETURNING ` + strings.ReplaceAll(alertColumns, "a.", "")
	a, err := scanAlert(s.Pool.QueryRow(ctx, query, in.CustomerID, in.Type, in.Severity, in.Scenario, details))
	if err != nil {
		return models.Alert{}, fmt.Errorf("failed to insert alert: %w", err)
	}
	return a, nil
}

// GetAlert fetches a single alert row.
func (s *Postgres) GetAlert(ctx context.Context, id int64) (models.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts a WHERE a.id = $1`
	a, err := scanAlert(s.Pool.QueryRow(ctx, query, id))
	if noRows(err) {
		return models.Alert{}, ErrNotFound
	}
	if err != nil {
		return models.Alert{}, fmt.Errorf("failed to get alert %d: %w", id, err)
	}
	return a, nil
}

// GetAlertDetail fetches an alert joined with customer and user display names.
func (s *Postgres) GetAlertDetail(ctx context.Context, id int64) (models.AlertDetail, error) {
	query := `
		SELECT ` + alertColumns + `,
		       c.full_name, u_assigned.full_name, u_assigned.email, u_escalated.full_name
		FROM alerts a
		LEFT JOIN customers c ON a.customer_id = c.id
		LEFT JOIN users u_assigned ON a.assigned_to = u_assigned.id
		LEFT JOIN users u_escalated ON a.escalated_to = u_escalated.id
		WHERE a.id = $1`
	d, err := scanAlertDetail(s.Pool.QueryRow(ctx, query, id))
	if noRows(err) {
		return models.AlertDetail{}, ErrNotFound
	}
	if err != nil {
		return models.AlertDetail{}, fmt.Errorf("failed to get alert %d: %w", id, err)
	}
	return d, nil
}

// ListAlerts returns a filtered page of alerts plus the unpaged total.
func (s *Postgres) ListAlerts(ctx context.Context, f AlertFilters) ([]models.AlertDetail, int, error) {
	conditions := []string{"1=1"}
	args := []any{}
	n := 0
	arg := func(v any) string {
		n++
		args = append(args, v)
		return fmt.Sprintf("$%d", n)
	}

	if f.Status != nil {
		conditions = append(conditions, "a.status = "+arg(*f.Status))
	}
	if f.Severity != nil {
		conditions = append(conditions, "a.severity = "+arg(*f.Severity))
	}
	if f.Unassigned {
		conditions = append(conditions, "a.assigned_to IS NULL")
	} else if f.AssignedTo != nil {
		conditions = append(conditions, "a.assigned_to = "+arg(*f.AssignedTo))
	}
	if f.CustomerID != nil {
		conditions = append(conditions, "a.customer_id = "+arg(*f.CustomerID))
	}
	where := strings.Join(conditions, " AND ")

	var total int
	countQuery := `SELECT COUNT(*) FROM alerts a WHERE ` + where
	if err := s.Pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count alerts: %w", err)
	}

	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `
		SELECT ` + alertColumns + `,
		       c.full_name, u_assigned.full_name, u_assigned.email, u_escalated.full_name
		FROM alerts a
		LEFT JOIN customers c ON a.customer_id = c.id
		LEFT JOIN users u_assigned ON a.assigned_to = u_assigned.id
		LEFT JOIN users u_escalated ON a.escalated_to = u_escalated.id
		WHERE ` + where + `
		ORDER BY a.created_at DESC
		LIMIT ` + arg(limit) + ` OFFSET ` + arg(f.Offset)

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var list []models.AlertDetail
	for rows.Next() {
		d, err := scanAlertDetail(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan alert: %w", err)
		}
		list = append(list, d)
	}
	return list, total, rows.Err()
}

// UpdateAlertMeta patches priority/due_date without touching lifecycle columns.
func (s *Postgres) UpdateAlertMeta(ctx context.Context, id int64, u AlertMetaUpdate) (models.Alert, error) {
	sets := []string{}
	args := []any{id}
	n := 1
	if u.Priority != nil {
		n++
		sets = append(sets, fmt.Sprintf("priority = $%d", n))
		args = append(args, *u.Priority)
	}
	if u.ClearDueDate {
		sets = append(sets, "due_date = NULL")
	} else if u.DueDate != nil {
		n++
		sets = append(sets, fmt.Sprintf("due_date = $%d", n))
		args = append(args, *u.DueDate)
	}
	if len(sets) == 0 {
		return s.GetAlert(ctx, id)
	}

	query := `UPDATE alerts a SET ` + strings.Join(sets, ", ") +
		` WHERE a.id = $1 RETURNING ` + strings.ReplaceAll(alertColumns, "a.", "")
	a, err := scanAlert(s.Pool.QueryRow(ctx, query, args...))
	if noRows(err) {
		return models.Alert{}, ErrNotFound
	}
	if err != nil {
		return models.Alert{}, fmt.Errorf("failed to update alert %d: %w", id, err)
	}
	return a, nil
}

// TransitionAlert applies one guarded status change. The status check, the
// column mutation and the history row run in a single transaction; the guard
// and the update are one statement, so concurrent dispatches on the same alert
// cannot interleave between check and act.
func (s *Postgres) TransitionAlert(ctx context.Context, t AlertTransition) (models.Alert, error) {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return models.Alert{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	from := make([]string, len(t.From))
	for i, st := range t.From {
		from[i] = string(st)
	}

	sets := []string{"status = $2"}
	args := []any{t.AlertID, string(t.To), from}
	n := 3
	set := func(col string, v any) {
		n++
		sets = append(sets, fmt.Sprintf("%s = $%d", col, n))
		args = append(args, v)
	}

	m := t.Mutate
	if m.ClearAssignment {
		sets = append(sets, "assigned_to = NULL", "assigned_by = NULL", "assigned_at = NULL")
	}
	if m.AssignedTo != nil {
		set("assigned_to", *m.AssignedTo)
	}
	if m.AssignedBy != nil {
		set("assigned_by", *m.AssignedBy)
	}
	if m.AssignedAt != nil {
		set("assigned_at", *m.AssignedAt)
	}
	if m.ClearEscalation {
		sets = append(sets, "escalated_to = NULL", "escalated_by = NULL", "escalated_at = NULL", "escalation_reason = NULL")
	}
	if m.EscalatedTo != nil {
		set("escalated_to", *m.EscalatedTo)
	}
	if m.EscalatedBy != nil {
		set("escalated_by", *m.EscalatedBy)
	}
	if m.EscalatedAt != nil {
		set("escalated_at", *m.EscalatedAt)
	}
	if m.EscalationReason != nil {
		set("escalation_reason", *m.EscalationReason)
	}
	if m.ClearResolution {
		sets = append(sets, "resolution_type = NULL", "resolution_notes = NULL", "resolved_by = NULL", "resolved_at = NULL")
	}
	if m.ResolutionType != nil {
		set("resolution_type", *m.ResolutionType)
	}
	if m.ResolutionNotes != nil {
		set("resolution_notes", *m.ResolutionNotes)
	}
	if m.ResolvedBy != nil {
		set("resolved_by", *m.ResolvedBy)
	}
	if m.ResolvedAt != nil {
		set("resolved_at", *m.ResolvedAt)
	}

	query := `
		WITH prev AS (
			SELECT id, status FROM alerts WHERE id = $1 FOR UPDATE
		)
		UPDATE alerts a SET ` + strings.Join(sets, ", ") + `
		FROM prev
		WHERE a.id = prev.id AND prev.status = ANY($3)
		RETURNING ` + alertColumns + `, prev.status`

	var a models.Alert
	var details []byte
	var prevStatus string
	err = tx.QueryRow(ctx, query, args...).Scan(
		&a.ID, &a.CustomerID, &a.Type, &a.Status, &a.Severity, &a.Scenario, &details,
		&a.Priority, &a.DueDate, &a.ResolutionType, &a.ResolutionNotes, &a.ResolvedBy, &a.ResolvedAt,
		&a.AssignedTo, &a.AssignedBy, &a.AssignedAt,
		&a.EscalatedTo, &a.EscalatedBy, &a.EscalatedAt, &a.EscalationReason, &a.CreatedAt,
		&prevStatus,
	)
	if noRows(err) {
		// Zero rows: either the alert is missing or the guard failed.
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM alerts WHERE id = $1)`, t.AlertID).Scan(&exists); err != nil {
			return models.Alert{}, fmt.Errorf("failed to check alert %d: %w", t.AlertID, err)
		}
		if !exists {
			return models.Alert{}, ErrNotFound
		}
		return models.Alert{}, ErrStateMismatch
	}
	if err != nil {
		return models.Alert{}, fmt.Errorf("failed to transition alert %d: %w", t.AlertID, err)
	}
	if a.Details, err = unmarshalJSONB(details); err != nil {
		return models.Alert{}, err
	}

	if err := insertAlertHistory(ctx, tx, models.AlertHistoryEntry{
		AlertID:        t.AlertID,
		PreviousStatus: models.AlertStatus(prevStatus),
		NewStatus:      t.To,
		ChangedBy:      t.ChangedBy,
		Reason:         t.Reason,
		Metadata:       t.Metadata,
	}); err != nil {
		return models.Alert{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return models.Alert{}, fmt.Errorf("failed to commit transition: %w", err)
	}
	return a, nil
}

func insertAlertHistory(ctx context.Context, tx pgx.Tx, e models.AlertHistoryEntry) error {
	metadata, err := marshalJSONB(e.Metadata)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO alert_status_history (alert_id, previous_status, new_status, changed_by, reason, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.AlertID, e.PreviousStatus, e.NewStatus, e.ChangedBy, e.Reason, metadata)
	if err != nil {
		return fmt.Errorf("failed to insert alert history: %w", err)
	}
	return nil
}

// AppendAlertHistory writes a standalone informational history row. Used by
// the initialization trigger, which has no status mutation to pair with.
func (s *Postgres) AppendAlertHistory(ctx context.Context, e models.AlertHistoryEntry) error {
	metadata, err := marshalJSONB(e.Metadata)
	if err != nil {
		return err
	}
	_, err = s.Pool.Exec(ctx, `
		INSERT INTO alert_status_history (alert_id, previous_status, new_status, changed_by, reason, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.AlertID, e.PreviousStatus, e.NewStatus, e.ChangedBy, e.Reason, metadata)
	if err != nil {
		return fmt.Errorf("failed to append alert history: %w", err)
	}
	return nil
}

// AlertHistory lists an alert's audit rows, newest first, with display names.
func (s *Postgres) AlertHistory(ctx context.Context, alertID int64) ([]models.AlertHistoryEntry, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT h.id, h.alert_id, h.previous_status, h.new_status, h.changed_by, h.reason, h.metadata, h.created_at,
		       u.full_name
		FROM alert_status_history h
		LEFT JOIN users u ON h.changed_by = u.id
		WHERE h.alert_id = $1
		ORDER BY h.created_at DESC, h.id DESC`, alertID)
	if err != nil {
		return nil, fmt.Errorf("failed to get alert history: %w", err)
	}
	defer rows.Close()

	var list []models.AlertHistoryEntry
	for rows.Next() {
		var e models.AlertHistoryEntry
		var metadata []byte
		if err := rows.Scan(&e.ID, &e.AlertID, &e.PreviousStatus, &e.NewStatus, &e.ChangedBy,
			&e.Reason, &metadata, &e.CreatedAt, &e.ChangedByName); err != nil {
			return nil, fmt.Errorf("failed to scan alert history: %w", err)
		}
		if e.Metadata, err = unmarshalJSONB(metadata); err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

// AddAlertNote appends a note. Notes are append-only and never touch status.
func (s *Postgres) AddAlertNote(ctx context.Context, n models.AlertNote) (models.AlertNote, error) {
	err := s.Pool.QueryRow(ctx, `
		INSERT INTO alert_notes (alert_id, user_id, content, note_type)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`,
		n.AlertID, n.UserID, n.Content, n.NoteType,
	).Scan(&n.ID, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return models.AlertNote{}, fmt.Errorf("failed to insert alert note: %w", err)
	}
	return n, nil
}

// ListAlertNotes lists an alert's notes, newest first.
func (s *Postgres) ListAlertNotes(ctx context.Context, alertID int64) ([]models.AlertNote, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT n.id, n.alert_id, n.user_id, n.content, n.note_type, n.created_at, n.updated_at, u.full_name
		FROM alert_notes n
		LEFT JOIN users u ON n.user_id = u.id
		WHERE n.alert_id = $1
		ORDER BY n.created_at DESC, n.id DESC`, alertID)
	if err != nil {
		return nil, fmt.Errorf("failed to list alert notes: %w", err)
	}
	defer rows.Close()

	var list []models.AlertNote
	for rows.Next() {
		var n models.AlertNote
		if err := rows.Scan(&n.ID, &n.AlertID, &n.UserID, &n.Content, &n.NoteType,
			&n.CreatedAt, &n.UpdatedAt, &n.UserName); err != nil {
			return nil, fmt.Errorf("failed to scan alert note: %w", err)
		}
		list = append(list, n)
	}
	return list, rows.Err()
}

// DeleteAlertNote removes a note. Deletion is direct and not audited.
func (s *Postgres) DeleteAlertNote(ctx context.Context, alertID, noteID int64) error {
	tag, err := s.Pool.Exec(ctx,
		`DELETE FROM alert_notes WHERE id = $1 AND alert_id = $2`, noteID, alertID)
	if err != nil {
		return fmt.Errorf("failed to delete alert note: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
