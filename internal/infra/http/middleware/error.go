package middleware

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/flowcraft/flowcraft/internal/infra/http/dto"
	"github.com/flowcraft/flowcraft/internal/pkg/errors"
)

// ErrorHandler maps a FlowError's Kind to an HTTP status, generalized from
// the teacher's error.go (same DomainError.Code → status switch, retargeted
// onto the FlowError taxonomy: Cancelled/NodeExecution/Fatal/Configuration/
// Cycle).
func ErrorHandler() echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var flowErr *errors.FlowError
		if errors.As(err, &flowErr) {
			c.JSON(statusForKind(flowErr.Kind), dto.ErrorResponse{
				Error:   string(flowErr.Kind),
				Message: flowErr.Error(),
				Code:    string(flowErr.Kind),
			})
			return
		}

		if he, ok := err.(*echo.HTTPError); ok {
			c.JSON(he.Code, dto.ErrorResponse{
				Error:   http.StatusText(he.Code),
				Message: fmt.Sprintf("%v", he.Message),
			})
			return
		}

		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "internal_error",
			Message: err.Error(),
		})
	}
}

func statusForKind(kind errors.Kind) int {
	switch kind {
	case errors.KindConfiguration:
		return http.StatusBadRequest
	case errors.KindCycle:
		return http.StatusUnprocessableEntity
	case errors.KindCancelled:
		return http.StatusConflict
	case errors.KindNodeExecution:
		return http.StatusUnprocessableEntity
	case errors.KindFatal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
