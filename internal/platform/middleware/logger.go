package middleware

import (
	"errors"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/rhu/rhu/internal/platform/apperr"
	"github.com/rhu/rhu/internal/platform/auth"
)

// responseStatus is the status the error handler will write for err.
func responseStatus(c echo.Context, err error) int {
	if err == nil {
		return c.Response().Status
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return apperr.HTTPStatus(ae.Kind)
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return apperr.HTTPStatus(apperr.KindInternal)
}

// withActor adds the authenticated staff member, if any, to a log event.
func withActor(evt *zerolog.Event, c echo.Context) *zerolog.Event {
	if id, ok := auth.IdentityFromContext(c.Request().Context()); ok {
		evt = evt.Int64("user_id", id.UserID)
		if id.StaffID > 0 {
			evt = evt.Int64("staff_id", id.StaffID)
		}
	}
	return evt
}

// Logger writes one line per request. Client errors log at warn; server
// errors are logged by the error handler and appear here at error so a
// single grep on the request id shows both.
func Logger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := responseStatus(c, err)
			evt := logger.Info()
			switch {
			case status >= 500:
				evt = logger.Error().Err(err)
			case err != nil:
				evt = logger.Warn().Str("error_kind", string(apperr.KindOf(err))).Str("message", apperr.Message(err))
			}

			rid, _ := c.Get("request_id").(string)
			req := c.Request()
			withActor(evt, c).
				Str("request_id", rid).
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Str("route", c.Path()).
				Int("status", status).
				Dur("latency", time.Since(start)).
				Str("remote_ip", c.RealIP()).
				Msg("request")

			return err
		}
	}
}
