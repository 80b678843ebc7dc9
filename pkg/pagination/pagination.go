package pagination

import (
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"

	"commhub-backend/pkg/constants"
)

// Params is a limit/offset window
type Params struct {
	Limit  int
	Offset int
}

// Parse reads limit and offset strings, clamping limit to the allowed range
func Parse(limitStr, offsetStr string) (Params, error) {
	p := Params{Limit: constants.DefaultPageSize}

	if limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil {
			return Params{}, fmt.Errorf("invalid limit parameter: %w", err)
		}
		p.Limit = Clamp(l)
	}

	if offsetStr != "" {
		o, err := strconv.Atoi(offsetStr)
		if err != nil {
			return Params{}, fmt.Errorf("invalid offset parameter: %w", err)
		}
		if o > 0 {
			p.Offset = o
		}
	}

	return p, nil
}

// FromQuery parses ?limit=&offset= from the request
func FromQuery(c *gin.Context) (Params, error) {
	return Parse(c.Query("limit"), c.Query("offset"))
}

// Clamp bounds a requested page size
func Clamp(limit int) int {
	switch {
	case limit <= 0:
		return constants.DefaultPageSize
	case limit < constants.MinPageSize:
		return constants.MinPageSize
	case limit > constants.MaxPageSize:
		return constants.MaxPageSize
	}
	return limit
}
