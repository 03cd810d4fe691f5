package pagination

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 10
	MaxLimit     = 50
)

// Params holds the history query parameters of a request.
type Params struct {
	Limit               int
	IncludeConversation bool
}

// FromContext extracts history parameters from the echo context. A missing
// limit means DefaultLimit and a limit above MaxLimit is clamped; anything
// that is not a positive integer is rejected.
func FromContext(c echo.Context) (Params, error) {
	p := Params{Limit: DefaultLimit}

	if raw := c.QueryParam("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return Params{}, fmt.Errorf("limit must be a positive integer, got %q", raw)
		}
		p.Limit = limit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}

	if raw := c.QueryParam("include_conversation"); raw != "" {
		include, err := strconv.ParseBool(raw)
		if err != nil {
			return Params{}, fmt.Errorf("include_conversation must be a boolean, got %q", raw)
		}
		p.IncludeConversation = include
	}

	return p, nil
}

// Values encodes p as a query string for the history endpoint.
func (p Params) Values() url.Values {
	v := url.Values{}
	if p.Limit > 0 {
		v.Set("limit", strconv.Itoa(p.Limit))
	}
	v.Set("include_conversation", strconv.FormatBool(p.IncludeConversation))
	return v
}
