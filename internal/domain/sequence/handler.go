package sequence

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/rhu/rhu/internal/platform/apperr"
	"github.com/rhu/rhu/internal/platform/httpx"
)

type Handler struct {
	gen *Generator
}

func NewHandler(gen *Generator) *Handler {
	return &Handler{gen: gen}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/sequences/:prefix/peek", h.Peek)
}

// Peek answers the number the next document of a prefix would get. It is
// informative only; another request may take it first.
func (h *Handler) Peek(c echo.Context) error {
	prefix := strings.ToUpper(c.Param("prefix"))
	year := h.gen.Year()
	if v := c.QueryParam("year"); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil || y < 1000 || y > 9999 {
			return apperr.Validation("invalid year %q", v)
		}
		year = y
	}
	next, err := h.gen.Peek(c.Request().Context(), prefix, year)
	if err != nil {
		return err
	}
	return httpx.Respond(c, http.StatusOK, "", httpx.Fields{
		"prefix": prefix,
		"year":   year,
		"next":   next,
	})
}
