package pagination

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Params holds the listing window extracted from a request. Listings are
// newest first with a hard cap and no cursor.
type Params struct {
	Limit int
}

// FromContext reads ?limit= from the echo context. Missing, malformed and
// non-positive values fall back to DefaultLimit; larger values are capped.
func FromContext(c echo.Context) Params {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	return Params{Limit: Clamp(limit)}
}

// Clamp applies the default and the cap to a requested limit. Zero and
// negative limits mean "unspecified" and return DefaultLimit, never an empty
// page; limits above MaxLimit return MaxLimit.
func Clamp(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}
