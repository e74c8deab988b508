package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/rhu/rhu/internal/platform/audit"
	"github.com/rhu/rhu/internal/platform/auth"
)

// AccessEntry describes one /api/v1 request for the access log.
type AccessEntry struct {
	UserID     int64
	StaffID    int64
	Username   string
	Module     string
	RecordID   int64
	Action     string // read, create, update, delete
	IPAddress  string
	UserAgent  string
	Path       string
	Method     string
	Timestamp  time.Time
	RequestID  string
	StatusCode int
}

// Audit returns middleware that puts the client address on the request
// context (picked up by audit.Recorder) and emits one structured access log
// line per /api/v1 request with the staff identity.
func Audit(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			path := req.URL.Path

			if !strings.HasPrefix(path, "/api/v1/") {
				return next(c)
			}

			c.SetRequest(req.WithContext(audit.WithClientIP(req.Context(), c.RealIP())))

			err := next(c)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}

			entry := AccessEntry{
				Timestamp:  time.Now().UTC(),
				Path:       path,
				Method:     req.Method,
				IPAddress:  c.RealIP(),
				UserAgent:  req.UserAgent(),
				StatusCode: status,
				Action:     httpMethodToAction(req.Method),
			}
			entry.Module, entry.RecordID = extractModule(path)
			if id, ok := auth.IdentityFromContext(c.Request().Context()); ok {
				entry.UserID = id.UserID
				entry.StaffID = id.StaffID
				entry.Username = id.Username
			}
			if rid, ok := c.Get("request_id").(string); ok {
				entry.RequestID = rid
			}

			logger.Info().
				Str("type", "access").
				Str("request_id", entry.RequestID).
				Int64("user_id", entry.UserID).
				Int64("staff_id", entry.StaffID).
				Str("username", entry.Username).
				Str("module", entry.Module).
				Int64("record_id", entry.RecordID).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("access")

			return err
		}
	}
}

func httpMethodToAction(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}

// extractModule parses /api/v1/<module>[/<id>...] into the module name and
// the numeric record id, if any.
func extractModule(path string) (string, int64) {
	segments := strings.Split(strings.TrimPrefix(path, "/api/v1/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		return "unknown", 0
	}
	var id int64
	if len(segments) > 1 {
		id, _ = strconv.ParseInt(segments[1], 10, 64)
	}
	return segments[0], id
}
