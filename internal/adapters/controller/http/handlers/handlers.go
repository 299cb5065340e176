package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hopehouse/reminders/internal/domain/common/errorz"
	"github.com/hopehouse/reminders/pkg/logger/types"
)

// StatusFor maps a domain error to an HTTP status.
func StatusFor(err error) int {
	switch {
	case errorz.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, errorz.ErrJobInProgress):
		return http.StatusConflict
	case errors.Is(err, errorz.ErrInterrupted):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// RespondError writes err as JSON. Internal errors are logged and hidden from
// the caller. partial, when not nil, is the work done before the failure.
func RespondError(c *gin.Context, logger *types.Logger, err error, partial interface{}) {
	status := StatusFor(err)

	body := gin.H{"error": err.Error()}
	if status == http.StatusInternalServerError {
		logger.Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		body["error"] = "internal error"
	}
	if partial != nil {
		body["summary"] = partial
	}
	c.JSON(status, body)
}
