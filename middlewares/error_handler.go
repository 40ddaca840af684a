package middlewares

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/samabos/tymblok/models"
	"github.com/sirupsen/logrus"
)

// ErrorHandler maps application errors to HTTP responses. Provider-side
// failures come back as 502 so clients can tell an upstream outage from a
// bug in this service.
func ErrorHandler() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			var httpErr *echo.HTTPError
			if errors.As(err, &httpErr) {
				return err
			}

			var appErr *models.AppError
			if errors.As(err, &appErr) {
				return c.JSON(statusForKind(appErr.Kind), map[string]string{"error": appErr.Message})
			}

			logrus.WithError(err).Error("Unhandled request error")
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to process request"})
		}
	}
}

func statusForKind(kind models.ErrorKind) int {
	switch kind {
	case models.ErrorKindValidation:
		return http.StatusBadRequest
	case models.ErrorKindConflict:
		return http.StatusConflict
	case models.ErrorKindNotFound:
		return http.StatusNotFound
	case models.ErrorKindIntegration:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
