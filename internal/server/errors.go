package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/oukeidos/splitfill/internal/apperrors"
	"github.com/oukeidos/splitfill/internal/ingest"
	"github.com/oukeidos/splitfill/internal/logger"
	"github.com/oukeidos/splitfill/internal/metrics"
	"github.com/oukeidos/splitfill/internal/tracker"
)

type errorResponse struct {
	Error string `json:"error"`
}

// badRequest reports a problem with the request itself.
func badRequest(format string, args ...any) error {
	return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf(format, args...))
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, tracker.ErrItemNotFound):
		return http.StatusNotFound
	case errors.Is(err, tracker.ErrNotRetryable), errors.Is(err, tracker.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, tracker.ErrNoCredential):
		return http.StatusPreconditionFailed
	case errors.Is(err, ingest.ErrNotImage), errors.Is(err, ingest.ErrTooLarge):
		return http.StatusBadRequest
	}
	if kind, ok := apperrors.KindOf(err); ok {
		switch kind {
		case apperrors.KindValidation, apperrors.KindBadRequest, apperrors.KindDecode:
			return http.StatusBadRequest
		case apperrors.KindAuth:
			return http.StatusPreconditionFailed
		}
	}
	return http.StatusInternalServerError
}

// ErrorHandlingMiddleware renders handler errors as JSON and counts them.
func ErrorHandlingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			code := statusFor(err)
			msg := apperrors.PublicMessage(err)
			var httpErr *echo.HTTPError
			if errors.As(err, &httpErr) {
				code = httpErr.Code
				msg = http.StatusText(code)
				if s, ok := httpErr.Message.(string); ok {
					msg = s
				}
			}
			if code == http.StatusInternalServerError {
				logger.Error("Request failed", "method", c.Request().Method, "path", c.Path(), "error", err)
				msg = "internal server error"
			} else {
				logger.Debug("Request rejected", "method", c.Request().Method, "path", c.Path(), "status", code, "error", err)
			}
			metrics.HTTPErrorsTotal.WithLabelValues(strconv.Itoa(code)).Inc()

			if c.Response().Committed {
				return nil
			}
			if err := c.JSON(code, errorResponse{Error: msg}); err != nil {
				return fmt.Errorf("failed to write error response: %w", err)
			}
			return nil
		}
	}
}
