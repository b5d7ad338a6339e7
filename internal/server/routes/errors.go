package routes

import (
	"context"
	"errors"
	"net/http"

	"github.com/OFFIS-RIT/proteus/backend/pkg/analysis"
	"github.com/OFFIS-RIT/proteus/backend/pkg/reconcile"
	"github.com/OFFIS-RIT/proteus/backend/pkg/store"

	"github.com/labstack/echo/v4"
)

type errorResponse struct {
	Message string                `json:"message"`
	Issues  []analysis.FieldIssue `json:"issues,omitempty"`
}

// analysisError maps engine and store errors to a status and body.
func analysisError(c echo.Context, err error) error {
	var verr *analysis.ValidationError
	switch {
	case errors.As(err, &verr):
		return c.JSON(http.StatusUnprocessableEntity, errorResponse{
			Message: "Analysis result failed validation",
			Issues:  verr.Issues,
		})
	case errors.Is(err, store.ErrNotFound):
		return c.JSON(http.StatusNotFound, errorResponse{Message: "No analysis result available"})
	case errors.Is(err, reconcile.ErrMissingAgent):
		return c.JSON(http.StatusBadRequest, errorResponse{Message: "No agent id given and no agent created yet"})
	case errors.Is(err, reconcile.ErrRunTimedOut):
		return c.JSON(http.StatusGatewayTimeout, errorResponse{Message: err.Error()})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return c.JSON(http.StatusServiceUnavailable, errorResponse{Message: "Request cancelled"})
	default:
		return c.JSON(http.StatusBadGateway, errorResponse{Message: err.Error()})
	}
}
