package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"compliance-case-service/internal/engine"
	"compliance-case-service/internal/events"
	"compliance-case-service/internal/logging"
	"compliance-case-service/internal/models"
	"compliance-case-service/internal/store"
	"compliance-case-service/internal/workflow"
)

var (
	analystID = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	managerID = uuid.MustParse("22222222-2222-2222-2222-222222222222")
)

func newTestRouter(t *testing.T) (*gin.Engine, *store.Memory) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logging.NewNop()

	st := store.NewMemory(nil)
	st.AddUser(models.User{ID: models.SystemUserID, FullName: "System", Role: models.RoleSystem})
	st.AddUser(models.User{ID: analystID, FullName: "Ana Lyst", Email: "ana@example.com", Role: models.RoleAnalyst})
	st.AddUser(models.User{ID: managerID, FullName: "Mae Nager", Email: "mae@example.com", Role: models.RoleManager})

	acts := engine.NewActivities(st, log, nil)
	fac := workflow.NewLocal(workflow.Options{MaxAttempts: 1, Retryable: engine.IsTransient}, log)
	disp := engine.NewDispatcher(st, fac, acts, log)
	hub := events.NewHub(log)
	return NewRouter(st, disp, hub, log, "/api/v1"), st
}

func doJSON(t *testing.T, r *gin.Engine, method, path, body string, asUser uuid.UUID, role string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if asUser != uuid.Nil {
		req.Header.Set("X-User-ID", asUser.String())
		req.Header.Set("X-User-Role", role)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func seedAlert(t *testing.T, st *store.Memory) models.Alert {
	t.Helper()
	alert, err := st.CreateAlert(context.Background(), models.AlertCreate{
		Type: "aml", Severity: "high", Scenario: "structuring",
	})
	require.NoError(t, err)
	return alert
}

func TestHealthEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAssignAlertEndpoint(t *testing.T) {
	r, st := newTestRouter(t)
	alert := seedAlert(t, st)
	path := "/api/v1/alerts/" + strconv.FormatInt(alert.ID, 10)

	w := doJSON(t, r, http.MethodPost, path+"/assign",
		`{"assigned_to": "`+analystID.String()+`"}`, managerID, models.RoleManager)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res engine.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.True(t, res.Success)
	assert.Equal(t, "assigned", res.Status)
	assert.NotNil(t, res.TaskID)
}

func TestAssignAlertRequiresBody(t *testing.T) {
	r, st := newTestRouter(t)
	alert := seedAlert(t, st)
	path := "/api/v1/alerts/" + strconv.FormatInt(alert.ID, 10)

	w := doJSON(t, r, http.MethodPost, path+"/assign", `{}`, managerID, models.RoleManager)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStartBeforeAssignReturns400(t *testing.T) {
	r, st := newTestRouter(t)
	alert := seedAlert(t, st)
	path := "/api/v1/alerts/" + strconv.FormatInt(alert.ID, 10)

	w := doJSON(t, r, http.MethodPost, path+"/start", "", analystID, models.RoleAnalyst)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUnknownAlertReturns404(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/v1/alerts/424242/start", "", analystID, models.RoleAnalyst)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/alerts/424242", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReopenForbiddenForAnalyst(t *testing.T) {
	r, st := newTestRouter(t)
	alert := seedAlert(t, st)
	path := "/api/v1/alerts/" + strconv.FormatInt(alert.ID, 10)

	doJSON(t, r, http.MethodPost, path+"/assign", `{"assigned_to": "`+analystID.String()+`"}`, managerID, models.RoleManager)
	doJSON(t, r, http.MethodPost, path+"/start", "", analystID, models.RoleAnalyst)
	w := doJSON(t, r, http.MethodPost, path+"/resolve", `{"resolution_type": "false_positive"}`, analystID, models.RoleAnalyst)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(t, r, http.MethodPost, path+"/reopen", `{"reason": "second look"}`, analystID, models.RoleAnalyst)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, r, http.MethodPost, path+"/reopen", `{"reason": "second look"}`, managerID, models.RoleManager)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestClaimConflictReturns409(t *testing.T) {
	r, st := newTestRouter(t)
	task, err := st.CreateTask(context.Background(), models.TaskCreate{
		TaskType: "kyc_refresh", Priority: "medium", Title: "Refresh KYC", CreatedBy: managerID,
	})
	require.NoError(t, err)
	path := "/api/v1/tasks/" + strconv.FormatInt(task.ID, 10)

	w := doJSON(t, r, http.MethodPost, path+"/claim", "", analystID, models.RoleAnalyst)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(t, r, http.MethodPost, path+"/claim", "", managerID, models.RoleManager)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCreateTaskEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/v1/tasks",
		`{"task_type": "sar_filing", "title": "File SAR", "priority": "critical"}`,
		managerID, models.RoleManager)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var task models.Task
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &task))
	assert.Equal(t, "sar_filing", task.TaskType)
	assert.Equal(t, managerID, task.CreatedBy)

	w = doJSON(t, r, http.MethodPost, "/api/v1/tasks",
		`{"task_type": "nonsense", "title": "x"}`, managerID, models.RoleManager)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateAlertMetaEndpoint(t *testing.T) {
	r, st := newTestRouter(t)
	alert := seedAlert(t, st)
	path := "/api/v1/alerts/" + strconv.FormatInt(alert.ID, 10)

	w := doJSON(t, r, http.MethodPatch, path, `{"priority": "critical"}`, managerID, models.RoleManager)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got models.Alert
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "critical", got.Priority)

	w = doJSON(t, r, http.MethodPatch, path, `{"priority": "urgent"}`, managerID, models.RoleManager)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateTaskMetaEndpoint(t *testing.T) {
	r, st := newTestRouter(t)
	task, err := st.CreateTask(context.Background(), models.TaskCreate{
		TaskType: "document_request", Priority: "medium", Title: "Request statements", CreatedBy: managerID,
	})
	require.NoError(t, err)
	path := "/api/v1/tasks/" + strconv.FormatInt(task.ID, 10)

	w := doJSON(t, r, http.MethodPatch, path,
		`{"priority": "high", "title": "Request six months of statements"}`,
		managerID, models.RoleManager)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got models.Task
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "high", got.Priority)
	assert.Equal(t, "Request six months of statements", got.Title)
	// Lifecycle state is untouched by a metadata patch.
	assert.Equal(t, models.TaskStatusPending, got.Status)

	w = doJSON(t, r, http.MethodPatch, path, `{"priority": "urgent"}`, managerID, models.RoleManager)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodPatch, "/api/v1/tasks/424242", `{"priority": "low"}`, managerID, models.RoleManager)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAlertNotesEndpoints(t *testing.T) {
	r, st := newTestRouter(t)
	alert := seedAlert(t, st)
	path := "/api/v1/alerts/" + strconv.FormatInt(alert.ID, 10)

	w := doJSON(t, r, http.MethodPost, path+"/notes", `{"content": "called the customer"}`, analystID, models.RoleAnalyst)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path+"/notes", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Notes []models.AlertNote `json:"notes"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Notes, 1)
	assert.Equal(t, "called the customer", body.Notes[0].Content)

	noteID := strconv.FormatInt(body.Notes[0].ID, 10)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, path+"/notes/"+noteID, nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAlertHistoryEndpoint(t *testing.T) {
	r, st := newTestRouter(t)
	alert := seedAlert(t, st)
	path := "/api/v1/alerts/" + strconv.FormatInt(alert.ID, 10)

	doJSON(t, r, http.MethodPost, path+"/assign", `{"assigned_to": "`+analystID.String()+`"}`, managerID, models.RoleManager)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path+"/history", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		History []models.AlertHistoryEntry `json:"history"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.History, 1)
	assert.Equal(t, models.AlertStatusOpen, body.History[0].PreviousStatus)
	assert.Equal(t, models.AlertStatusAssigned, body.History[0].NewStatus)
}

func TestListAlertsFilters(t *testing.T) {
	r, st := newTestRouter(t)
	seedAlert(t, st)
	second := seedAlert(t, st)
	path := "/api/v1/alerts/" + strconv.FormatInt(second.ID, 10)
	doJSON(t, r, http.MethodPost, path+"/assign", `{"assigned_to": "`+analystID.String()+`"}`, managerID, models.RoleManager)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/alerts?status=open", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Alerts []models.AlertDetail `json:"alerts"`
		Total  int                  `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Total)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/alerts?assigned_to="+analystID.String(), nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Total)
	require.Len(t, body.Alerts, 1)
	assert.Equal(t, second.ID, body.Alerts[0].ID)
}
