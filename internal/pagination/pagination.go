// Package pagination parses page/limit/sort query parameters for the
// delivery-log listing.
package pagination

import (
	"net/url"
	"strconv"
)

// Params are validated pagination parameters with the database offset
// already computed.
type Params struct {
	Page   int32
	Limit  int32
	Offset int32
	Sort   string
}

const (
	MaxLimit     int32 = 100
	DefaultPage  int32 = 1
	DefaultLimit int32 = 20
	DefaultSort        = "newest"
)

func isValidSort(sort string) bool {
	switch sort {
	case "newest", "oldest":
		return true
	default:
		return false
	}
}

// FromQuery extracts pagination parameters from URL query values, clamping
// the limit and falling back to defaults on anything malformed.
func FromQuery(q url.Values) Params {
	params := Params{
		Page:  DefaultPage,
		Limit: DefaultLimit,
		Sort:  DefaultSort,
	}

	if raw := q.Get("page"); raw != "" {
		if val, err := strconv.ParseInt(raw, 10, 32); err == nil && val > 0 {
			params.Page = int32(val)
		}
	}
	if raw := q.Get("limit"); raw != "" {
		if val, err := strconv.ParseInt(raw, 10, 32); err == nil && val > 0 {
			params.Limit = int32(val)
		}
	}
	if params.Limit > MaxLimit {
		params.Limit = MaxLimit
	}
	if raw := q.Get("sort"); isValidSort(raw) {
		params.Sort = raw
	}

	params.Offset = (params.Page - 1) * params.Limit
	return params
}

// HasNext reports whether more rows exist past the current page.
func HasNext(offset, limit, total int32) bool {
	return offset+limit < total
}
