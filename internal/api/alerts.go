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

func parseID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

// dispatch runs one lifecycle action for the calling identity and writes the
// structured result.
func (h *Handler) dispatch(c *gin.Context, entityID int64, action engine.Action) {
	actorID, role := callerIdentity(c)
	res := h.disp.Dispatch(c.Request.Context(), engine.Request{
		EntityID:  entityID,
		Action:    action,
		ActorID:   actorID,
		ActorRole: role,
	})
	if !res.Success {
		writeError(c, res.Err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) ListAlerts(c *gin.Context) {
	var f store.AlertFilters
	if s := c.Query("status"); s != "" {
		status := models.AlertStatus(s)
		f.Status = &status
	}
	if s := c.Query("severity"); s != "" {
		f.Severity = &s
	}
	if s := c.Query("assigned_to"); s != "" {
		switch s {
		case "none", "unassigned":
			f.Unassigned = true
		case "me":
			id, _ := callerIdentity(c)
			if id == uuid.Nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "assigned_to=me requires an identity"})
				return
			}
			f.AssignedTo = &id
		default:
			id, err := uuid.Parse(s)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid assigned_to"})
				return
			}
			f.AssignedTo = &id
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
	f.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	f.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))

	alerts, total, err := h.store.ListAlerts(c.Request.Context(), f)
	if err != nil {
		h.logger.Errorf("list alerts failed: %v", err)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts, "total": total})
}

func (h *Handler) GetAlert(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	alert, err := h.store.GetAlertDetail(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "alert not found"})
			return
		}
		h.logger.Errorf("get alert %d failed: %v", id, err)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, alert)
}

// UpdateAlert changes non-lifecycle fields (priority, due date). Status never
// moves through here.
func (h *Handler) UpdateAlert(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var body struct {
		Priority     *string    `json:"priority"`
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

	alert, err := h.store.UpdateAlertMeta(c.Request.Context(), id, store.AlertMetaUpdate{
		Priority:     body.Priority,
		DueDate:      body.DueDate,
		ClearDueDate: body.ClearDueDate,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "alert not found"})
			return
		}
		h.logger.Errorf("update alert %d failed: %v", id, err)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, alert)
}

func (h *Handler) AlertHistory(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if _, err := h.store.GetAlert(c.Request.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "alert not found"})
			return
		}
		writeError(c, err)
		return
	}
	entries, err := h.store.AlertHistory(c.Request.Context(), id)
	if err != nil {
		h.logger.Errorf("alert %d history failed: %v", id, err)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": entries})
}

func (h *Handler) AssignAlert(c *gin.Context) {
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
	h.dispatch(c, id, engine.AssignAlert{AssignedTo: body.AssignedTo})
}

func (h *Handler) UnassignAlert(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	h.dispatch(c, id, engine.UnassignAlert{})
}

func (h *Handler) StartAlert(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	h.dispatch(c, id, engine.StartAlert{})
}

func (h *Handler) EscalateAlert(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var body struct {
		EscalatedTo uuid.UUID `json:"escalated_to" binding:"required"`
		Reason      string    `json:"reason"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "escalated_to is required"})
		return
	}
	h.dispatch(c, id, engine.EscalateAlert{EscalatedTo: body.EscalatedTo, Reason: body.Reason})
}

func (h *Handler) HoldAlert(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var body struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&body)
	h.dispatch(c, id, engine.HoldAlert{Reason: body.Reason})
}

func (h *Handler) ResumeAlert(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	h.dispatch(c, id, engine.ResumeAlert{})
}

func (h *Handler) ResolveAlert(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var body struct {
		ResolutionType  string `json:"resolution_type" binding:"required"`
		ResolutionNotes string `json:"resolution_notes"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "resolution_type is required"})
		return
	}
	h.dispatch(c, id, engine.ResolveAlert{ResolutionType: body.ResolutionType, ResolutionNotes: body.ResolutionNotes})
}

func (h *Handler) ReopenAlert(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var body struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&body)
	h.dispatch(c, id, engine.ReopenAlert{Reason: body.Reason})
}

func (h *Handler) ListAlertNotes(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if _, err := h.store.GetAlert(c.Request.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "alert not found"})
			return
		}
		writeError(c, err)
		return
	}
	notes, err := h.store.ListAlertNotes(c.Request.Context(), id)
	if err != nil {
		h.logger.Errorf("list notes for alert %d failed: %v", id, err)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notes": notes})
}

func (h *Handler) AddAlertNote(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var body struct {
		Content  string `json:"content" binding:"required"`
		NoteType string `json:"note_type"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
		return
	}
	h.dispatch(c, id, engine.AddAlertNote{Content: body.Content, NoteType: body.NoteType})
}

func (h *Handler) DeleteAlertNote(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	noteID, ok := parseID(c, "note_id")
	if !ok {
		return
	}
	if err := h.store.DeleteAlertNote(c.Request.Context(), id, noteID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "note not found"})
			return
		}
		h.logger.Errorf("delete note %d on alert %d failed: %v", noteID, id, err)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": noteID})
}
