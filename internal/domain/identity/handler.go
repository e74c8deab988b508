package identity

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

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

// RegisterRoutes mounts the patient, staff and barangay endpoints on a group
// already restricted to RHU staff.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/patients", h.SearchPatients)
	g.POST("/patients", h.RegisterPatient)
	g.GET("/patients/:id", h.GetPatient)
	g.PUT("/patients/:id", h.UpdatePatient)
	g.POST("/patients/:id/actions", h.PatientAction)
	g.POST("/patients/:id/activate", h.ActivatePatient)
	g.POST("/patients/:id/deactivate", h.DeactivatePatient)
	g.POST("/patients/:id/account", h.CreateAccount)
	g.POST("/patients/:id/reset-password", h.ResetPassword)
	g.GET("/patients/:id/notifications", h.ListNotifications)

	g.GET("/staff", h.ListStaff)
	g.GET("/staff/:id", h.GetStaff)

	g.GET("/barangays", h.ListBarangays)
}

func (h *Handler) RegisterPatient(c echo.Context) error {
	var in PatientInput
	if err := httpx.Bind(c, &in); err != nil {
		return err
	}
	ctx := c.Request().Context()
	p, err := h.svc.RegisterPatient(ctx, auth.MustIdentity(ctx), in)
	if err != nil {
		return err
	}
	return httpx.Respond(c, http.StatusCreated, "Patient registered successfully", httpx.Fields{
		"patient":        p,
		"patient_number": p.PatientNumber,
	})
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetPatient(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return httpx.Respond(c, http.StatusOK, "", httpx.Fields{"patient": p})
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var in PatientInput
	if err := httpx.Bind(c, &in); err != nil {
		return err
	}
	ctx := c.Request().Context()
	p, err := h.svc.UpdatePatient(ctx, auth.MustIdentity(ctx), id, in)
	if err != nil {
		return err
	}
	return httpx.Respond(c, http.StatusOK, "Patient information updated successfully", httpx.Fields{"patient": p})
}

func (h *Handler) SearchPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	q := PatientSearch{Query: c.QueryParam("q"), Limit: pg.Limit, Offset: pg.Offset}
	if q.Query == "" {
		q.Query = c.QueryParam("search")
	}
	if v := c.QueryParam("barangay_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return apperr.Validation("invalid barangay_id")
		}
		q.BarangayID = id
	}
	active, err := optionalBool(c, "active")
	if err != nil {
		return err
	}
	q.Active = active

	items, total, err := h.svc.SearchPatients(c.Request().Context(), q)
	if err != nil {
		return err
	}
	return httpx.List(c, items, total, pg)
}

type patientActionRequest struct {
	Action   string `json:"action"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// PatientAction dispatches on the action field: activate, deactivate,
// create_account or reset_password.
func (h *Handler) PatientAction(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req patientActionRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	actor := auth.MustIdentity(ctx)

	switch req.Action {
	case "activate":
		p, err := h.svc.ActivatePatient(ctx, actor, id)
		if err != nil {
			return err
		}
		return httpx.Respond(c, http.StatusOK, "Patient account activated", httpx.Fields{"patient": p})
	case "deactivate":
		p, err := h.svc.DeactivatePatient(ctx, actor, id)
		if err != nil {
			return err
		}
		return httpx.Respond(c, http.StatusOK, "Patient account deactivated", httpx.Fields{"patient": p})
	case "create_account":
		u, err := h.svc.CreateAccount(ctx, actor, id, req.Username, req.Password)
		if err != nil {
			return err
		}
		return httpx.Respond(c, http.StatusCreated, "Patient account created successfully", httpx.Fields{"user": u})
	case "reset_password":
		if err := h.svc.ResetPassword(ctx, actor, id, req.Password); err != nil {
			return err
		}
		return httpx.Respond(c, http.StatusOK, "Password reset successfully", nil)
	case "":
		return apperr.Validation("action is required")
	default:
		return apperr.Validation("unknown patient action %q", req.Action)
	}
}

func (h *Handler) ActivatePatient(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	p, err := h.svc.ActivatePatient(ctx, auth.MustIdentity(ctx), id)
	if err != nil {
		return err
	}
	return httpx.Respond(c, http.StatusOK, "Patient account activated", httpx.Fields{"patient": p})
}

func (h *Handler) DeactivatePatient(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	p, err := h.svc.DeactivatePatient(ctx, auth.MustIdentity(ctx), id)
	if err != nil {
		return err
	}
	return httpx.Respond(c, http.StatusOK, "Patient account deactivated", httpx.Fields{"patient": p})
}

func (h *Handler) CreateAccount(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req patientActionRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	u, err := h.svc.CreateAccount(ctx, auth.MustIdentity(ctx), id, req.Username, req.Password)
	if err != nil {
		return err
	}
	return httpx.Respond(c, http.StatusCreated, "Patient account created successfully", httpx.Fields{"user": u})
}

func (h *Handler) ResetPassword(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req patientActionRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	if err := h.svc.ResetPassword(ctx, auth.MustIdentity(ctx), id, req.Password); err != nil {
		return err
	}
	return httpx.Respond(c, http.StatusOK, "Password reset successfully", nil)
}

func (h *Handler) ListNotifications(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	unread := c.QueryParam("unread") == "true"
	items, total, err := h.svc.PatientNotifications(c.Request().Context(), id, unread, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return httpx.List(c, items, total, pg)
}

func (h *Handler) ListStaff(c echo.Context) error {
	f := StaffFilter{Position: c.QueryParam("position")}
	active, err := optionalBool(c, "active")
	if err != nil {
		return err
	}
	f.Active = active
	staff, err := h.svc.ListStaff(c.Request().Context(), f)
	if err != nil {
		return err
	}
	return httpx.Respond(c, http.StatusOK, "", httpx.Fields{"data": staff, "total": len(staff)})
}

func (h *Handler) GetStaff(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	st, err := h.svc.GetStaff(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return httpx.Respond(c, http.StatusOK, "", httpx.Fields{"staff": st})
}

func (h *Handler) ListBarangays(c echo.Context) error {
	all := c.QueryParam("all") == "true"
	items, err := h.svc.ListBarangays(c.Request().Context(), !all)
	if err != nil {
		return err
	}
	return httpx.Respond(c, http.StatusOK, "", httpx.Fields{"data": items, "total": len(items)})
}

func pathID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid id")
	}
	return id, nil
}

func optionalBool(c echo.Context, name string) (*bool, error) {
	v := c.QueryParam(name)
	if v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, apperr.Validation("invalid %s", name)
	}
	return &b, nil
}
