// Package pagination reads limit/offset paging from list requests.
package pagination

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

type Params struct {
	Limit  int
	Offset int
}

// FromContext reads "limit" (or "per_page") and "offset" from the query
// string. A 1-based "page" is used when "offset" is absent. Bad values fall
// back to the defaults rather than failing the list.
func FromContext(c echo.Context) Params {
	limit := queryInt(c, "limit")
	if limit <= 0 {
		limit = queryInt(c, "per_page")
	}
	switch {
	case limit <= 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}

	offset := queryInt(c, "offset")
	if c.QueryParam("offset") == "" {
		if page := queryInt(c, "page"); page > 1 {
			offset = (page - 1) * limit
		}
	}
	if offset < 0 {
		offset = 0
	}
	return Params{Limit: limit, Offset: offset}
}

// HasMore reports whether rows remain after this page.
func (p Params) HasMore(total int) bool {
	return p.Offset+p.Limit < total
}

func queryInt(c echo.Context, name string) int {
	n, _ := strconv.Atoi(c.QueryParam(name))
	return n
}
