package certificate

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/rhu/rhu/internal/domain/workflow"
	"github.com/rhu/rhu/internal/platform/apperr"
	"github.com/rhu/rhu/internal/platform/auth"
	"github.com/rhu/rhu/internal/platform/httpx"
	"github.com/rhu/rhu/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/certificates", h.Search)
	g.POST("/certificates", h.Request)
	g.GET("/certificates/:id", h.Get)
	g.POST("/certificates/:id/actions", h.ApplyAction)
	g.GET("/patients/:id/certificates", h.PatientCertificates)
}

func (h *Handler) Request(c echo.Context) error {
	var in RequestInput
	if err := httpx.Bind(c, &in); err != nil {
		return err
	}
	ctx := c.Request().Context()
	cert, err := h.svc.Request(ctx, auth.MustIdentity(ctx), in)
	if err != nil {
		return err
	}
	return httpx.Respond(c, http.StatusCreated, "Certificate request recorded", httpx.Fields{
		"certificate":        cert,
		"certificate_number": cert.CertificateNumber,
	})
}

func (h *Handler) Get(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	cert, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return httpx.Respond(c, http.StatusOK, "", httpx.Fields{"certificate": cert})
}

func (h *Handler) Search(c echo.Context) error {
	pg := pagination.FromContext(c)
	p := SearchParams{
		Status: workflow.State(c.QueryParam("status")),
		Query:  c.QueryParam("q"),
		Limit:  pg.Limit,
		Offset: pg.Offset,
	}
	if v := c.QueryParam("patient_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			return apperr.Validation("invalid patient_id")
		}
		p.PatientID = id
	}
	items, total, err := h.svc.Search(c.Request().Context(), p)
	if err != nil {
		return err
	}
	return httpx.List(c, items, total, pg)
}

func (h *Handler) PatientCertificates(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.Search(c.Request().Context(), SearchParams{PatientID: id, Limit: pg.Limit, Offset: pg.Offset})
	if err != nil {
		return err
	}
	return httpx.List(c, items, total, pg)
}

func (h *Handler) ApplyAction(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var in ActionInput
	if err := httpx.Bind(c, &in); err != nil {
		return err
	}
	ctx := c.Request().Context()
	cert, res, err := h.svc.ApplyAction(ctx, auth.MustIdentity(ctx), id, in)
	if err != nil {
		return err
	}
	return httpx.Respond(c, http.StatusOK, res.Transition.Title, httpx.Fields{
		"certificate": cert,
		"transition":  res,
	})
}

func pathID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid id")
	}
	return id, nil
}
