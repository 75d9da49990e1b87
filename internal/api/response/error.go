package response

import (
	"ctchen222/blog-web-api/internal/api/models"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

const internalErrorMessage = "Internal error."

// StatusCode maps an error kind onto an HTTP status.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, models.ErrMissingArgument), errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrWrongPassword), errors.Is(err, models.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, models.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrEmpty):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Error writes err as a failed response. Only *models.Error messages reach
// the client; anything else is logged and reported as an internal error.
func Error(c *gin.Context, err error) {
	var callerErr *models.Error
	if errors.As(err, &callerErr) {
		ErrorResponse(c, StatusCode(err), callerErr.Message)
		return
	}

	slog.ErrorContext(c.Request.Context(), "Request failed", "path", c.FullPath(), "error", err)
	ErrorResponse(c, http.StatusInternalServerError, internalErrorMessage)
}
