package referral

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
	g.GET("/referrals", h.Search)
	g.POST("/referrals", h.Create)
	g.GET("/referrals/:id", h.Get)
	g.POST("/referrals/:id/actions", h.ApplyAction)
	g.GET("/patients/:id/referrals", h.PatientReferrals)
}

func (h *Handler) Create(c echo.Context) error {
	var in CreateInput
	if err := httpx.Bind(c, &in); err != nil {
		return err
	}
	ctx := c.Request().Context()
	r, err := h.svc.Create(ctx, auth.MustIdentity(ctx), in)
	if err != nil {
		return err
	}
	return httpx.Respond(c, http.StatusCreated, "Referral created", httpx.Fields{
		"referral":        r,
		"referral_number": r.ReferralNumber,
	})
}

func (h *Handler) Get(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	r, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return httpx.Respond(c, http.StatusOK, "", httpx.Fields{"referral": r})
}

func (h *Handler) Search(c echo.Context) error {
	pg := pagination.FromContext(c)
	p := SearchParams{
		Status:  workflow.State(c.QueryParam("status")),
		Urgency: Urgency(c.QueryParam("urgency")),
		Query:   c.QueryParam("q"),
		Limit:   pg.Limit,
		Offset:  pg.Offset,
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

func (h *Handler) PatientReferrals(c echo.Context) error {
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
	r, res, err := h.svc.ApplyAction(ctx, auth.MustIdentity(ctx), id, in)
	if err != nil {
		return err
	}
	return httpx.Respond(c, http.StatusOK, res.Transition.Title, httpx.Fields{
		"referral":   r,
		"transition": res,
	})
}

func pathID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid id")
	}
	return id, nil
}
