// Package httpx renders the {success, message, ...} JSON envelope used by
// every admin endpoint.
package httpx

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/rhu/rhu/internal/platform/apperr"
	"github.com/rhu/rhu/pkg/pagination"
)

// Fields are extra top-level keys merged into the envelope.
type Fields map[string]interface{}

// Respond writes {success: true, message, ...fields}.
func Respond(c echo.Context, status int, message string, fields Fields) error {
	body := make(map[string]interface{}, len(fields)+2)
	for k, v := range fields {
		body[k] = v
	}
	body["success"] = true
	body["message"] = message
	return c.JSON(status, body)
}

// List writes a paginated result inside the envelope.
func List(c echo.Context, items interface{}, total int, pg pagination.Params) error {
	return Respond(c, http.StatusOK, "", Fields{
		"data":     items,
		"total":    total,
		"limit":    pg.Limit,
		"offset":   pg.Offset,
		"has_more": pg.HasMore(total),
	})
}

// Bind decodes the request body into v and reports malformed input as a
// validation error.
func Bind(c echo.Context, v interface{}) error {
	if err := c.Bind(v); err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return apperr.Validation("malformed request: %v", he.Message)
		}
		return apperr.Validation("malformed request: %v", err)
	}
	return nil
}

// ErrorHandler renders apperr kinds and echo errors as
// {success: false, message}. Internal errors are logged with the request
// id and answered with a generic message.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		message := apperr.Message(err)

		var he *echo.HTTPError
		var ae *apperr.Error
		switch {
		case errors.As(err, &ae):
			status = apperr.HTTPStatus(ae.Kind)
		case errors.As(err, &he):
			status = he.Code
			message = fmt.Sprintf("%v", he.Message)
		}

		if status >= http.StatusInternalServerError {
			rid, _ := c.Get("request_id").(string)
			logger.Error().Err(err).
				Str("request_id", rid).
				Str("method", c.Request().Method).
				Str("path", c.Request().URL.Path).
				Msg("request failed")
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(status)
		} else {
			writeErr = c.JSON(status, map[string]interface{}{
				"success": false,
				"message": message,
			})
		}
		if writeErr != nil {
			logger.Error().Err(writeErr).Msg("write error response")
		}
	}
}
