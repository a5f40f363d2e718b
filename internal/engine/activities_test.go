package engine

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"compliance-case-service/internal/logging"
	"compliance-case-service/internal/models"
	"compliance-case-service/internal/store"
)

var (
	analystID = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	managerID = uuid.MustParse("22222222-2222-2222-2222-222222222222")
	seniorID  = uuid.MustParse("33333333-3333-3333-3333-333333333333")
)

func fixedNow() time.Time {
	return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
}

func newTestStore() *store.Memory {
	st := store.NewMemory(fixedNow)
	st.AddUser(models.User{ID: models.SystemUserID, FullName: "System", Email: "system@localhost", Role: models.RoleSystem})
	st.AddUser(models.User{ID: analystID, FullName: "Ana Lyst", Email: "ana@example.com", Role: models.RoleAnalyst})
	st.AddUser(models.User{ID: managerID, FullName: "Mae Nager", Email: "mae@example.com", Role: models.RoleManager})
	st.AddUser(models.User{ID: seniorID, FullName: "Sen Ior", Email: "sen@example.com", Role: models.RoleManager})
	return st
}

func newTestActivities(st store.Store) *Activities {
	return NewActivities(st, logging.NewNop(), fixedNow)
}

func createOpenAlert(t *testing.T, st store.Store) models.Alert {
	t.Helper()
	alert, err := st.CreateAlert(context.Background(), models.AlertCreate{
		Type:     "aml",
		Severity: "high",
		Scenario: "structuring",
		Details:  map[string]any{"txn_count": 14},
	})
	require.NoError(t, err)
	return alert
}

func analyst() Actor { return Actor{ID: analystID, Role: models.RoleAnalyst} }
func manager() Actor { return Actor{ID: managerID, Role: models.RoleManager} }

func TestInitializeAlertWritesSeedHistory(t *testing.T) {
	st := newTestStore()
	acts := newTestActivities(st)
	ctx := context.Background()

	alert, err := acts.InitializeAlert(ctx, 0, InitAlert{Create: &models.AlertCreate{
		Type: "aml", Severity: "critical", Scenario: "rapid_movement",
	}}, Actor{ID: models.SystemUserID, Role: models.RoleSystem})
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusOpen, alert.Status)

	history, err := st.AlertHistory(ctx, alert.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.AlertStatusNew, history[0].PreviousStatus)
	assert.Equal(t, models.AlertStatusOpen, history[0].NewStatus)
	assert.Equal(t, models.SystemUserID, history[0].ChangedBy)
}

func TestAssignAlert(t *testing.T) {
	st := newTestStore()
	acts := newTestActivities(st)
	ctx := context.Background()
	alert := createOpenAlert(t, st)

	got, err := acts.AssignAlert(ctx, alert.ID, AssignAlert{AssignedTo: analystID}, manager())
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusAssigned, got.Status)
	require.NotNil(t, got.AssignedTo)
	assert.Equal(t, analystID, *got.AssignedTo)
	require.NotNil(t, got.AssignedBy)
	assert.Equal(t, managerID, *got.AssignedBy)

	history, err := st.AlertHistory(ctx, alert.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.AlertStatusOpen, history[0].PreviousStatus)
	assert.Equal(t, models.AlertStatusAssigned, history[0].NewStatus)
}

func TestAssignAlertReplayIsNoOp(t *testing.T) {
	st := newTestStore()
	acts := newTestActivities(st)
	ctx := context.Background()
	alert := createOpenAlert(t, st)

	_, err := acts.AssignAlert(ctx, alert.ID, AssignAlert{AssignedTo: analystID}, manager())
	require.NoError(t, err)

	// Same assignment replayed: success, no extra audit row.
	got, err := acts.AssignAlert(ctx, alert.ID, AssignAlert{AssignedTo: analystID}, manager())
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusAssigned, got.Status)

	history, err := st.AlertHistory(ctx, alert.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestAssignAlertToDifferentUserWhileAssignedFails(t *testing.T) {
	st := newTestStore()
	acts := newTestActivities(st)
	ctx := context.Background()
	alert := createOpenAlert(t, st)

	_, err := acts.AssignAlert(ctx, alert.ID, AssignAlert{AssignedTo: analystID}, manager())
	require.NoError(t, err)

	_, err = acts.AssignAlert(ctx, alert.ID, AssignAlert{AssignedTo: seniorID}, manager())
	require.Error(t, err)
	assert.Equal(t, KindPrecondition, KindOf(err))
}

func TestAssignAlertNotFound(t *testing.T) {
	st := newTestStore()
	acts := newTestActivities(st)

	_, err := acts.AssignAlert(context.Background(), 9999, AssignAlert{AssignedTo: analystID}, manager())
	require.Error(t, err)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestUnassignAlert(t *testing.T) {
	st := newTestStore()
	acts := newTestActivities(st)
	ctx := context.Background()
	alert := createOpenAlert(t, st)

	_, err := acts.AssignAlert(ctx, alert.ID, AssignAlert{AssignedTo: analystID}, manager())
	require.NoError(t, err)

	got, err := acts.UnassignAlert(ctx, alert.ID, UnassignAlert{}, manager())
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusOpen, got.Status)
	assert.Nil(t, got.AssignedTo)
	assert.Nil(t, got.AssignedAt)

	// Replay: open and unassigned already, no-op.
	_, err = acts.UnassignAlert(ctx, alert.ID, UnassignAlert{}, manager())
	require.NoError(t, err)
}

func TestStartRequiresAssigned(t *testing.T) {
	st := newTestStore()
	acts := newTestActivities(st)
	ctx := context.Background()
	alert := createOpenAlert(t, st)

	_, err := acts.StartAlert(ctx, alert.ID, StartAlert{}, analyst())
	require.Error(t, err)
	assert.Equal(t, KindPrecondition, KindOf(err))

	_, err = acts.AssignAlert(ctx, alert.ID, AssignAlert{AssignedTo: analystID}, manager())
	require.NoError(t, err)

	got, err := acts.StartAlert(ctx, alert.ID, StartAlert{}, analyst())
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusInProgress, got.Status)
}

func TestEscalateAlert(t *testing.T) {
	st := newTestStore()
	acts := newTestActivities(st)
	ctx := context.Background()
	alert := createOpenAlert(t, st)

	_, err := acts.AssignAlert(ctx, alert.ID, AssignAlert{AssignedTo: analystID}, manager())
	require.NoError(t, err)
	_, err = acts.StartAlert(ctx, alert.ID, StartAlert{}, analyst())
	require.NoError(t, err)

	got, err := acts.EscalateAlert(ctx, alert.ID, EscalateAlert{EscalatedTo: seniorID, Reason: "needs senior review"}, analyst())
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusEscalated, got.Status)
	require.NotNil(t, got.EscalatedTo)
	assert.Equal(t, seniorID, *got.EscalatedTo)
	require.NotNil(t, got.EscalationReason)
	assert.Equal(t, "needs senior review", *got.EscalationReason)
	// Assignment survives escalation.
	require.NotNil(t, got.AssignedTo)
	assert.Equal(t, analystID, *got.AssignedTo)
}

func TestEscalateRequiresTarget(t *testing.T) {
	st := newTestStore()
	acts := newTestActivities(st)

	_, err := acts.EscalateAlert(context.Background(), 1, EscalateAlert{}, analyst())
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestHoldAndResume(t *testing.T) {
	st := newTestStore()
	acts := newTestActivities(st)
	ctx := context.Background()
	alert := createOpenAlert(t, st)

	_, err := acts.AssignAlert(ctx, alert.ID, AssignAlert{AssignedTo: analystID}, manager())
	require.NoError(t, err)
	_, err = acts.StartAlert(ctx, alert.ID, StartAlert{}, analyst())
	require.NoError(t, err)

	got, err := acts.HoldAlert(ctx, alert.ID, HoldAlert{Reason: "awaiting documents"}, analyst())
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusOnHold, got.Status)

	got, err = acts.ResumeAlert(ctx, alert.ID, ResumeAlert{}, analyst())
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusInProgress, got.Status)
}

func TestResumeFromEscalated(t *testing.T) {
	st := newTestStore()
	acts := newTestActivities(st)
	ctx := context.Background()
	alert := createOpenAlert(t, st)

	_, err := acts.AssignAlert(ctx, alert.ID, AssignAlert{AssignedTo: analystID}, manager())
	require.NoError(t, err)
	_, err = acts.StartAlert(ctx, alert.ID, StartAlert{}, analyst())
	require.NoError(t, err)
	_, err = acts.EscalateAlert(ctx, alert.ID, EscalateAlert{EscalatedTo: seniorID, Reason: "review"}, analyst())
	require.NoError(t, err)

	got, err := acts.ResumeAlert(ctx, alert.ID, ResumeAlert{}, Actor{ID: seniorID, Role: models.RoleManager})
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusInProgress, got.Status)
}

func TestResolveAlert(t *testing.T) {
	st := newTestStore()
	acts := newTestActivities(st)
	ctx := context.Background()
	alert := createOpenAlert(t, st)

	_, err := acts.AssignAlert(ctx, alert.ID, AssignAlert{AssignedTo: analystID}, manager())
	require.NoError(t, err)
	_, err = acts.StartAlert(ctx, alert.ID, StartAlert{}, analyst())
	require.NoError(t, err)

	got, err := acts.ResolveAlert(ctx, alert.ID, ResolveAlert{ResolutionType: "false_positive", ResolutionNotes: "benign pattern"}, analyst())
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusResolved, got.Status)
	require.NotNil(t, got.ResolutionType)
	assert.Equal(t, "false_positive", *got.ResolutionType)
	require.NotNil(t, got.ResolvedBy)
	assert.Equal(t, analystID, *got.ResolvedBy)
}

func TestResolveRejectsUnknownType(t *testing.T) {
	st := newTestStore()
	acts := newTestActivities(st)

	_, err := acts.ResolveAlert(context.Background(), 1, ResolveAlert{ResolutionType: "whatever"}, analyst())
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestResolveReplaySameTypeIsNoOp(t *testing.T) {
	st := newTestStore()
	acts := newTestActivities(st)
	ctx := context.Background()
	alert := createOpenAlert(t, st)

	_, err := acts.AssignAlert(ctx, alert.ID, AssignAlert{AssignedTo: analystID}, manager())
	require.NoError(t, err)
	_, err = acts.StartAlert(ctx, alert.ID, StartAlert{}, analyst())
	require.NoError(t, err)
	_, err = acts.ResolveAlert(ctx, alert.ID, ResolveAlert{ResolutionType: "not_suspicious"}, analyst())
	require.NoError(t, err)

	_, err = acts.ResolveAlert(ctx, alert.ID, ResolveAlert{ResolutionType: "not_suspicious"}, analyst())
	require.NoError(t, err)

	// A different resolution on a resolved alert is not a replay.
	_, err = acts.ResolveAlert(ctx, alert.ID, ResolveAlert{ResolutionType: "confirmed_suspicious"}, analyst())
	require.Error(t, err)
	assert.Equal(t, KindPrecondition, KindOf(err))
}

func TestReopenRequiresManagerRole(t *testing.T) {
	st := newTestStore()
	acts := newTestActivities(st)
	ctx := context.Background()
	alert := createOpenAlert(t, st)

	_, err := acts.AssignAlert(ctx, alert.ID, AssignAlert{AssignedTo: analystID}, manager())
	require.NoError(t, err)
	_, err = acts.StartAlert(ctx, alert.ID, StartAlert{}, analyst())
	require.NoError(t, err)
	_, err = acts.ResolveAlert(ctx, alert.ID, ResolveAlert{ResolutionType: "false_positive"}, analyst())
	require.NoError(t, err)

	_, err = acts.ReopenAlert(ctx, alert.ID, ReopenAlert{Reason: "second look"}, analyst())
	require.Error(t, err)
	assert.Equal(t, KindForbidden, KindOf(err))

	got, err := acts.ReopenAlert(ctx, alert.ID, ReopenAlert{Reason: "second look"}, manager())
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusOpen, got.Status)
	assert.Nil(t, got.AssignedTo)
	assert.Nil(t, got.ResolutionType)
	assert.Nil(t, got.EscalatedTo)
}

func TestAddNote(t *testing.T) {
	st := newTestStore()
	acts := newTestActivities(st)
	ctx := context.Background()
	alert := createOpenAlert(t, st)

	_, err := acts.AddNote(ctx, alert.ID, AddAlertNote{Content: "customer contacted"}, analyst())
	require.NoError(t, err)
	_, err = acts.AddNote(ctx, alert.ID, AddAlertNote{Content: "customer contacted"}, analyst())
	require.NoError(t, err)

	notes, err := st.ListAlertNotes(ctx, alert.ID)
	require.NoError(t, err)
	// Notes are never deduplicated.
	assert.Len(t, notes, 2)
	assert.Equal(t, "comment", notes[0].NoteType)
}

func TestAddNoteRejectsEmptyContent(t *testing.T) {
	st := newTestStore()
	acts := newTestActivities(st)

	_, err := acts.AddNote(context.Background(), 1, AddAlertNote{}, analyst())
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))
}
