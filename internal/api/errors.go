package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"compliance-case-service/internal/engine"
)

// statusFor maps an engine error kind to an HTTP status. Transient failures
// surface as 500 with a generic message so infrastructure detail never leaks.
func statusFor(err error) int {
	switch engine.KindOf(err) {
	case engine.KindNotFound:
		return http.StatusNotFound
	case engine.KindPrecondition, engine.KindValidation:
		return http.StatusBadRequest
	case engine.KindForbidden:
		return http.StatusForbidden
	case engine.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	c.JSON(status, gin.H{"error": msg})
}
