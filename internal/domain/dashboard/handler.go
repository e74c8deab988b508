package dashboard

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/rhu/rhu/internal/platform/httpx"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/dashboard", h.Summary)
}

func (h *Handler) Summary(c echo.Context) error {
	sum, err := h.svc.Summary(c.Request().Context())
	if err != nil {
		return err
	}
	return httpx.Respond(c, http.StatusOK, "", httpx.Fields{"dashboard": sum})
}
