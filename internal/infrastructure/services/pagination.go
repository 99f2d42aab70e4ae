package services

import (
	"math"
	"net/url"
	"strconv"
)

// Paging controls how list endpoints slice their results.
type Paging struct {
	DefaultSize int
	MaxSize     int
}

// DefaultPaging is used by the HTTP list endpoints.
var DefaultPaging = Paging{DefaultSize: 50, MaxSize: 500}

// Page is one slice of a list plus its position.
type Page[T any] struct {
	Data        []T  `json:"data"`
	Page        int  `json:"page"`
	Size        int  `json:"size"`
	TotalItems  int  `json:"totalItems"`
	TotalPages  int  `json:"totalPages"`
	HasNext     bool `json:"hasNext"`
	HasPrevious bool `json:"hasPrevious"`
}

// Paginate slices items according to the query. "offset"/"limit" take
// precedence over "page"/"size" when either is present.
func Paginate[T any](items []T, cfg Paging, q url.Values) Page[T] {
	total := len(items)
	offset, limit := cfg.bounds(q)

	offset = min(offset, total)
	end := min(offset+limit, total)

	totalPages := int(math.Ceil(float64(total) / float64(limit)))
	if totalPages == 0 {
		totalPages = 1
	}

	data := items[offset:end]
	if data == nil {
		data = []T{}
	}
	return Page[T]{
		Data:        data,
		Page:        offset/limit + 1,
		Size:        limit,
		TotalItems:  total,
		TotalPages:  totalPages,
		HasNext:     end < total,
		HasPrevious: offset > 0,
	}
}

func (cfg Paging) bounds(q url.Values) (offset, limit int) {
	limit = cfg.DefaultSize

	if q.Has("offset") || q.Has("limit") {
		if n, ok := positive(q.Get("offset"), 0); ok {
			offset = n
		}
		if n, ok := positive(q.Get("limit"), 1); ok {
			limit = n
		}
	} else {
		page := 1
		if n, ok := positive(q.Get("page"), 1); ok {
			page = n
		}
		if n, ok := positive(q.Get("size"), 1); ok {
			limit = n
		}
		limit = cfg.clamp(limit)
		offset = (page - 1) * limit
	}

	return offset, cfg.clamp(limit)
}

func (cfg Paging) clamp(limit int) int {
	if cfg.MaxSize > 0 && limit > cfg.MaxSize {
		limit = cfg.MaxSize
	}
	if limit <= 0 {
		limit = 10
	}
	return limit
}

func positive(s string, floor int) (int, bool) {
	n, err := strconv.Atoi(s)
	if err != nil || n < floor {
		return 0, false
	}
	return n, true
}
