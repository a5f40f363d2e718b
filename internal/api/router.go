package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"compliance-case-service/internal/engine"
	"compliance-case-service/internal/events"
	"compliance-case-service/internal/logging"
	"compliance-case-service/internal/store"
)

// Handler carries the dependencies the HTTP layer needs. Lifecycle writes go
// through the dispatcher; reads go straight to the store.
type Handler struct {
	store  store.Store
	disp   *engine.Dispatcher
	hub    *events.Hub
	logger *logging.Logger
}

// NewRouter builds the gin engine with all routes mounted under basePath.
func NewRouter(st store.Store, disp *engine.Dispatcher, hub *events.Hub, logger *logging.Logger, basePath string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLoggingMiddleware(logger))

	h := &Handler{store: st, disp: disp, hub: hub, logger: logger}

	g := r.Group(basePath)
	{
		g.GET("/alerts", h.ListAlerts)
		g.GET("/alerts/:id", h.GetAlert)
		g.PATCH("/alerts/:id", h.UpdateAlert)
		g.GET("/alerts/:id/history", h.AlertHistory)

		g.POST("/alerts/:id/assign", h.AssignAlert)
		g.POST("/alerts/:id/unassign", h.UnassignAlert)
		g.POST("/alerts/:id/start", h.StartAlert)
		g.POST("/alerts/:id/escalate", h.EscalateAlert)
		g.POST("/alerts/:id/hold", h.HoldAlert)
		g.POST("/alerts/:id/resume", h.ResumeAlert)
		g.POST("/alerts/:id/resolve", h.ResolveAlert)
		g.POST("/alerts/:id/reopen", h.ReopenAlert)

		g.GET("/alerts/:id/notes", h.ListAlertNotes)
		g.POST("/alerts/:id/notes", h.AddAlertNote)
		g.DELETE("/alerts/:id/notes/:note_id", h.DeleteAlertNote)

		g.GET("/tasks", h.ListTasks)
		g.POST("/tasks", h.CreateTask)
		g.GET("/tasks/:id", h.GetTask)
		g.PATCH("/tasks/:id", h.UpdateTask)
		g.GET("/tasks/:id/history", h.TaskHistory)
		g.POST("/tasks/:id/claim", h.ClaimTask)
		g.POST("/tasks/:id/release", h.ReleaseTask)
		g.POST("/tasks/:id/complete", h.CompleteTask)
		g.POST("/tasks/:id/assign", h.ReassignTask)

		g.GET("/ws", h.ServeWS)
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}
