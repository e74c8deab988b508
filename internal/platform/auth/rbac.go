package auth

import (
	"github.com/labstack/echo/v4"

	"github.com/rhu/rhu/internal/platform/apperr"
)

// RequireStaff admits only rhu_admin staff of the given department. Patients
// with portal accounts authenticate against the same issuer and are turned
// away here.
func RequireStaff(department string) echo.MiddlewareFunc {
	denied := apperr.Forbidden(department + " staff access only")
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := IdentityFromContext(c.Request().Context())
			if !ok {
				return apperr.Unauthorized("authentication required")
			}
			if !id.IsStaffOf(department) {
				return denied
			}
			return next(c)
		}
	}
}
