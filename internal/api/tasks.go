package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"compliance-case-service/internal/engine"
	"compliance-case-service/internal/models"
	"compliance-case-service/internal/store"
)

func (h *Handler) ListTasks(c *gin.Context) {
	var f store.TaskFilters
	if s := c.Query("status"); s != "" {
		status := models.TaskStatus(s)
		f.Status = &status
	}
	if s := c.Query("task_type"); s != "" {
		f.TaskType = &s
	}
	if s := c.Query("priority"); s != "" {
		f.Priority = &s
	}
	if s := c.Query("assigned_to"); s != "" {
		if s == "none" {
			f.Unclaimed = true
		} else if id, err := uuid.Parse(s); err == nil {
			f.AssignedTo = &id
		} else {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid assigned_to"})
			return
		}
	}
	if s := c.Query("customer_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid customer_id"})
			return
		}
		f.CustomerID = &id
	}
	if s := c.Query("alert_id"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid alert_id"})
			return
		}
		f.AlertID = &id
	}
	f.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))

	tasks, err := h.store.ListTasks(c.Request.Context(), f)
	if err != nil {
		h.logger.Errorf("list tasks failed: %v", err)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

// CreateTask handles manual task creation for work not driven by an alert
// transition (KYC refreshes, document requests, SAR filings).
func (h *Handler) CreateTask(c *gin.Context) {
	var body models.TaskCreate
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if !models.ValidTaskType(body.TaskType) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task_type"})
		return
	}
	if body.Priority == "" {
		body.Priority = "medium"
	}
	if !models.ValidPriority(body.Priority) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid priority"})
		return
	}
	if body.Title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
		return
	}

	actorID, _ := callerIdentity(c)
	if actorID == uuid.Nil {
		actorID = models.SystemUserID
	}
	body.CreatedBy = actorID

	task, err := h.store.CreateTask(c.Request.Context(), body)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateOpenTask) {
			c.JSON(http.StatusConflict, gin.H{"error": "an open task already exists for this alert"})
			return
		}
		h.logger.Errorf("create task failed: %v", err)
		writeError(c, err)
		return
	}
	h.logger.Infof("created task %d (%s)", task.ID, task.TaskType)
	c.JSON(http.StatusCreated, task)
}

func (h *Handler) GetTask(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	task, err := h.store.GetTaskDetail(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
			return
		}
		h.logger.Errorf("get task %d failed: %v", id, err)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// UpdateTask changes non-lifecycle fields (priority, title, due date). Status
// never moves through here.
func (h *Handler) UpdateTask(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var body struct {
		Priority     *string    `json:"priority"`
		Title        *string    `json:"title"`
		DueDate      *time.Time `json:"due_date"`
		ClearDueDate bool       `json:"clear_due_date"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if body.Priority != nil && !models.ValidPriority(*body.Priority) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid priority"})
		return
	}
	if body.Title != nil && *body.Title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title cannot be empty"})
		return
	}

	task, err := h.store.UpdateTaskMeta(c.Request.Context(), id, store.TaskMetaUpdate{
		Priority:     body.Priority,
		Title:        body.Title,
		DueDate:      body.DueDate,
		ClearDueDate: body.ClearDueDate,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
			return
		}
		h.logger.Errorf("update task %d failed: %v", id, err)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *Handler) TaskHistory(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if _, err := h.store.GetTask(c.Request.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
			return
		}
		writeError(c, err)
		return
	}
	entries, err := h.store.TaskHistory(c.Request.Context(), id)
	if err != nil {
		h.logger.Errorf("task %d history failed: %v", id, err)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": entries})
}

func (h *Handler) ClaimTask(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	h.dispatch(c, id, engine.ClaimTask{})
}

func (h *Handler) ReleaseTask(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	h.dispatch(c, id, engine.ReleaseTask{})
}

func (h *Handler) CompleteTask(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var body struct {
		ResolutionNotes string `json:"resolution_notes"`
	}
	_ = c.ShouldBindJSON(&body)
	h.dispatch(c, id, engine.CompleteTask{ResolutionNotes: body.ResolutionNotes})
}

func (h *Handler) ReassignTask(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var body struct {
		AssignedTo uuid.UUID `json:"assigned_to" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "assigned_to is required"})
		return
	}
	h.dispatch(c, id, engine.ReassignTask{AssignedTo: body.AssignedTo})
}
