package events

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"compliance-case-service/internal/engine"
	"compliance-case-service/internal/logging"
	"compliance-case-service/internal/models"
	"compliance-case-service/internal/store"
	"compliance-case-service/internal/workflow"
)

func newTestConsumer(st store.Store) *Consumer {
	log := logging.NewNop()
	acts := engine.NewActivities(st, log, nil)
	fac := workflow.NewLocal(workflow.Options{MaxAttempts: 1, Retryable: engine.IsTransient}, log)
	disp := engine.NewDispatcher(st, fac, acts, log)
	return &Consumer{disp: disp, logger: log}
}

func TestHandleMessageCreatesAlert(t *testing.T) {
	st := store.NewMemory(nil)
	st.AddUser(models.User{ID: models.SystemUserID, FullName: "System", Role: models.RoleSystem})
	customerID := uuid.New()
	st.AddCustomer(customerID, "Acme Trading Ltd")
	c := newTestConsumer(st)

	payload := []byte(`{
		"customer_id": "` + customerID.String() + `",
		"type": "aml",
		"scenario": "structuring",
		"severity": "high",
		"details": {"txn_count": 14}
	}`)
	require.NoError(t, c.handleMessage(context.Background(), payload))

	alerts, total, err := st.ListAlerts(context.Background(), store.AlertFilters{})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	alert := alerts[0]
	assert.Equal(t, models.AlertStatusOpen, alert.Status)
	assert.Equal(t, "structuring", alert.Scenario)
	require.NotNil(t, alert.CustomerID)
	assert.Equal(t, customerID, *alert.CustomerID)

	history, err := st.AlertHistory(context.Background(), alert.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.SystemUserID, history[0].ChangedBy)
}

func TestHandleMessageWithExistingAlertID(t *testing.T) {
	st := store.NewMemory(nil)
	st.AddUser(models.User{ID: models.SystemUserID, FullName: "System", Role: models.RoleSystem})
	c := newTestConsumer(st)

	alert, err := st.CreateAlert(context.Background(), models.AlertCreate{
		Type: "aml", Severity: "medium", Scenario: "dormant_account",
	})
	require.NoError(t, err)

	payload := []byte(`{"alert_id": 1, "scenario": "dormant_account"}`)
	require.NoError(t, c.handleMessage(context.Background(), payload))

	history, err := st.AlertHistory(context.Background(), alert.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.AlertStatusNew, history[0].PreviousStatus)
	assert.Equal(t, models.AlertStatusOpen, history[0].NewStatus)
}

func TestHandleMessageDispatchesNamedAction(t *testing.T) {
	st := store.NewMemory(nil)
	st.AddUser(models.User{ID: models.SystemUserID, FullName: "System", Role: models.RoleSystem})
	analyst := uuid.New()
	st.AddUser(models.User{ID: analyst, FullName: "Ana Lyst", Role: models.RoleAnalyst})
	c := newTestConsumer(st)
	ctx := context.Background()

	alert, err := st.CreateAlert(ctx, models.AlertCreate{
		Type: "aml", Severity: "high", Scenario: "structuring",
	})
	require.NoError(t, err)

	payload := []byte(`{
		"alert_id": ` + "1" + `,
		"action": "assign",
		"params": {"assigned_to": "` + analyst.String() + `"}
	}`)
	require.NoError(t, c.handleMessage(ctx, payload))

	got, err := st.GetAlert(ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusAssigned, got.Status)
	require.NotNil(t, got.AssignedTo)
	assert.Equal(t, analyst, *got.AssignedTo)

	// Unknown action names and missing ids are dropped, not retried.
	require.NoError(t, c.handleMessage(ctx, []byte(`{"alert_id": 1, "action": "explode"}`)))
	require.NoError(t, c.handleMessage(ctx, []byte(`{"action": "assign"}`)))
}

type brokenStore struct {
	store.Store
	err error
}

func (b *brokenStore) CreateAlert(context.Context, models.AlertCreate) (models.Alert, error) {
	return models.Alert{}, b.err
}

func TestHandleMessageSurfacesTransientFailures(t *testing.T) {
	st := store.NewMemory(nil)
	st.AddUser(models.User{ID: models.SystemUserID, FullName: "System", Role: models.RoleSystem})
	c := newTestConsumer(&brokenStore{Store: st, err: errors.New("connection refused")})

	// An infrastructure failure must come back transient so the offset stays
	// uncommitted and the event is redelivered.
	err := c.handleMessage(context.Background(), []byte(`{"scenario": "structuring", "severity": "high"}`))
	require.Error(t, err)
	assert.True(t, engine.IsTransient(err))
}

func TestHandleMessageMissingAlertIsNotTransient(t *testing.T) {
	st := store.NewMemory(nil)
	st.AddUser(models.User{ID: models.SystemUserID, FullName: "System", Role: models.RoleSystem})
	c := newTestConsumer(st)

	// Replaying an event for a row that never existed cannot succeed; the
	// consumer commits past these instead of wedging the partition.
	err := c.handleMessage(context.Background(), []byte(`{"alert_id": 42}`))
	require.Error(t, err)
	assert.False(t, engine.IsTransient(err))
}

func TestHandleMessageDropsMalformedPayloads(t *testing.T) {
	st := store.NewMemory(nil)
	c := newTestConsumer(st)
	ctx := context.Background()

	// Broken JSON, empty event, bad customer id: all dropped without error so
	// the offset still commits and the partition keeps moving.
	require.NoError(t, c.handleMessage(ctx, []byte(`{not json`)))
	require.NoError(t, c.handleMessage(ctx, []byte(`{}`)))
	require.NoError(t, c.handleMessage(ctx, []byte(`{"scenario": "x", "customer_id": "nope"}`)))

	_, total, err := st.ListAlerts(ctx, store.AlertFilters{})
	require.NoError(t, err)
	assert.Zero(t, total)
}
