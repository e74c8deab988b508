package audit

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/rhu/rhu/internal/platform/apperr"
	"github.com/rhu/rhu/internal/platform/httpx"
	"github.com/rhu/rhu/pkg/pagination"
)

type Handler struct {
	recorder *Recorder
	loc      *time.Location
}

func NewHandler(recorder *Recorder, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{recorder: recorder, loc: loc}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/system-logs", h.Search)
}

func (h *Handler) Search(c echo.Context) error {
	pg := pagination.FromContext(c)
	p := SearchParams{
		Module: c.QueryParam("module"),
		Action: c.QueryParam("action"),
		Limit:  pg.Limit,
		Offset: pg.Offset,
	}

	var err error
	if p.UserID, err = optionalID(c, "user_id"); err != nil {
		return err
	}
	if p.RecordID, err = optionalID(c, "record_id"); err != nil {
		return err
	}
	if p.From, err = h.parseBound(c, "from", false); err != nil {
		return err
	}
	if p.To, err = h.parseBound(c, "to", true); err != nil {
		return err
	}

	items, total, err := h.recorder.Search(c.Request().Context(), p)
	if err != nil {
		return apperr.Internal(err)
	}
	if items == nil {
		items = []*Entry{}
	}
	return httpx.List(c, items, total, pg)
}

func optionalID(c echo.Context, name string) (int64, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("%s must be a positive integer", name)
	}
	return id, nil
}

// parseBound accepts a date (YYYY-MM-DD, clinic time) or an RFC 3339
// timestamp. An upper bound given as a date covers that whole day.
func (h *Handler) parseBound(c echo.Context, name string, upper bool) (*time.Time, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", raw, h.loc); err == nil {
		if upper {
			t = t.AddDate(0, 0, 1)
		}
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, apperr.Validation("%s must be a date (YYYY-MM-DD) or RFC 3339 timestamp", name)
	}
	return &t, nil
}
