package http

import (
	"errors"
	"net/http"

	domainApproval "approval-engine/internal/domain/approval"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const (
	msgRetry     = "concurrent modification, please retry"
	msgTransient = "temporary failure, please retry"
	msgInternal  = "internal error"
)

// statusOf maps the engine's error taxonomy to an HTTP status and the
// message shown to the caller. Client errors keep their specific reason.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, domainApproval.ErrNotFound),
		errors.Is(err, domainApproval.ErrWorkflowNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, domainApproval.ErrUnauthorized):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, domainApproval.ErrValidation),
		errors.Is(err, domainApproval.ErrInvalidWorkflow),
		errors.Is(err, domainApproval.ErrInvalidApprovable):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, domainApproval.ErrConcurrencyConflict):
		return http.StatusConflict, msgRetry
	case errors.Is(err, domainApproval.ErrTerminalState),
		errors.Is(err, domainApproval.ErrInvalidTransition),
		errors.Is(err, domainApproval.ErrWorkflowInUse):
		return http.StatusConflict, err.Error()
	case errors.Is(err, domainApproval.ErrPersistence):
		return http.StatusServiceUnavailable, msgTransient
	}
	return http.StatusInternalServerError, msgInternal
}

func respondError(c echo.Context, log *zap.Logger, err error) error {
	code, msg := statusOf(err)
	if code >= http.StatusInternalServerError {
		log.Error("request failed",
			zap.String("method", c.Request().Method),
			zap.String("path", c.Path()),
			zap.Error(err))
	}
	return c.JSON(code, ErrorResponse{Error: msg})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

func validationFailed(c echo.Context, err error) error {
	return c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
		Error:   "validation failed",
		Details: ToFieldErrors(err),
	})
}
