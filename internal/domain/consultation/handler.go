package consultation

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/rhu/rhu/internal/domain/workflow"
	"github.com/rhu/rhu/internal/platform/apperr"
	"github.com/rhu/rhu/internal/platform/auth"
	"github.com/rhu/rhu/internal/platform/httpx"
	"github.com/rhu/rhu/pkg/pagination"
)

type Handler struct {
	svc *Service
	loc *time.Location
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc, loc: svc.loc}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/consultations", h.Search)
	g.POST("/consultations", h.RecordWalkIn)
	g.POST("/consultations/requests", h.Request)
	g.GET("/consultations/:id", h.Get)
	g.POST("/consultations/:id/actions", h.ApplyAction)
	g.GET("/consultations/:id/prescriptions", h.ListPrescriptions)
	g.POST("/consultations/:id/prescriptions", h.AddPrescription)

	g.GET("/prescriptions/:number", h.GetPrescription)
	g.GET("/medicines", h.ListMedicines)
	g.GET("/patients/:id/consultations", h.PatientHistory)
}

func (h *Handler) RecordWalkIn(c echo.Context) error {
	var in WalkInInput
	if err := httpx.Bind(c, &in); err != nil {
		return err
	}
	ctx := c.Request().Context()
	cons, rx, err := h.svc.RecordWalkIn(ctx, auth.MustIdentity(ctx), in)
	if err != nil {
		return err
	}
	fields := httpx.Fields{
		"consultation":        cons,
		"consultation_number": cons.ConsultationNumber,
	}
	if rx != nil {
		fields["prescription"] = rx
		fields["prescription_number"] = rx.PrescriptionNumber
	}
	return httpx.Respond(c, http.StatusCreated, "Consultation recorded successfully", fields)
}

func (h *Handler) Request(c echo.Context) error {
	var in RequestInput
	if err := httpx.Bind(c, &in); err != nil {
		return err
	}
	ctx := c.Request().Context()
	cons, err := h.svc.Request(ctx, auth.MustIdentity(ctx), in)
	if err != nil {
		return err
	}
	return httpx.Respond(c, http.StatusCreated, "Consultation request recorded", httpx.Fields{
		"consultation":        cons,
		"consultation_number": cons.ConsultationNumber,
	})
}

func (h *Handler) Get(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	cons, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return httpx.Respond(c, http.StatusOK, "", httpx.Fields{"consultation": cons})
}

// Search handles GET /consultations?status=&patient_id=&doctor_id=&from=&to=&q=.
// from and to are dates in the clinic time zone; to is inclusive.
func (h *Handler) Search(c echo.Context) error {
	pg := pagination.FromContext(c)
	p := SearchParams{
		Status: workflow.State(c.QueryParam("status")),
		Query:  c.QueryParam("q"),
		Limit:  pg.Limit,
		Offset: pg.Offset,
	}
	var err error
	if p.PatientID, err = queryID(c, "patient_id"); err != nil {
		return err
	}
	if p.DoctorID, err = queryID(c, "doctor_id"); err != nil {
		return err
	}
	if v := c.QueryParam("from"); v != "" {
		d, err := time.ParseInLocation("2006-01-02", v, h.loc)
		if err != nil {
			return apperr.Validation("from must be YYYY-MM-DD")
		}
		p.From = &d
	}
	if v := c.QueryParam("to"); v != "" {
		d, err := time.ParseInLocation("2006-01-02", v, h.loc)
		if err != nil {
			return apperr.Validation("to must be YYYY-MM-DD")
		}
		d = d.AddDate(0, 0, 1)
		p.To = &d
	}

	items, total, err := h.svc.Search(c.Request().Context(), p)
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
	cons, res, err := h.svc.ApplyAction(ctx, auth.MustIdentity(ctx), id, in)
	if err != nil {
		return err
	}
	return httpx.Respond(c, http.StatusOK, res.Transition.Title, httpx.Fields{
		"consultation": cons,
		"transition":   res,
	})
}

func (h *Handler) AddPrescription(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var in PrescriptionInput
	if err := httpx.Bind(c, &in); err != nil {
		return err
	}
	ctx := c.Request().Context()
	rx, err := h.svc.AddPrescription(ctx, auth.MustIdentity(ctx), id, in)
	if err != nil {
		return err
	}
	return httpx.Respond(c, http.StatusCreated, "Prescription saved successfully", httpx.Fields{
		"prescription":        rx,
		"prescription_number": rx.PrescriptionNumber,
	})
}

func (h *Handler) ListPrescriptions(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListPrescriptions(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return httpx.Respond(c, http.StatusOK, "", httpx.Fields{"data": items, "total": len(items)})
}

func (h *Handler) GetPrescription(c echo.Context) error {
	rx, err := h.svc.GetPrescription(c.Request().Context(), c.Param("number"))
	if err != nil {
		return err
	}
	return httpx.Respond(c, http.StatusOK, "", httpx.Fields{"prescription": rx})
}

func (h *Handler) ListMedicines(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	items, err := h.svc.ListMedicines(c.Request().Context(), c.QueryParam("q"), limit)
	if err != nil {
		return err
	}
	return httpx.Respond(c, http.StatusOK, "", httpx.Fields{"data": items, "total": len(items)})
}

func (h *Handler) PatientHistory(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.PatientHistory(c.Request().Context(), id, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return httpx.List(c, items, total, pg)
}

func pathID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid id")
	}
	return id, nil
}

func queryID(c echo.Context, name string) (int64, error) {
	v := c.QueryParam(name)
	if v == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid %s", name)
	}
	return id, nil
}
