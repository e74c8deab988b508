package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

func bearerToken(c echo.Context) (string, error) {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
	}
	return strings.TrimSpace(parts[1]), nil
}

func setIdentity(c echo.Context, id Identity) {
	c.Set("staff_id", id.StaffID)
	c.SetRequest(c.Request().WithContext(WithIdentity(c.Request().Context(), id)))
}

// JWTMiddleware validates bearer tokens issued by TokenIssuer and puts the
// identity on the request context.
func JWTMiddleware(tokens *TokenIssuer, skipper func(echo.Context) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skipper != nil && skipper(c) {
				return next(c)
			}
			tokenStr, err := bearerToken(c)
			if err != nil {
				return err
			}
			id, err := tokens.Parse(tokenStr)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
			}
			setIdentity(c, id)
			return next(c)
		}
	}
}

// DevAuthMiddleware is a permissive middleware for development. Requests
// without a token act as dev; a token, when sent, is still validated.
func DevAuthMiddleware(dev Identity, tokens *TokenIssuer, skipper func(echo.Context) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skipper != nil && skipper(c) {
				return next(c)
			}
			if c.Request().Header.Get("Authorization") == "" || tokens == nil {
				setIdentity(c, dev)
				return next(c)
			}
			return JWTMiddleware(tokens, nil)(next)(c)
		}
	}
}
