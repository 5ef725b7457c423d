package api

import (
	"net/http"
	"strconv"
)

// Page is a 1-based page request.
type Page struct {
	Page     int
	PageSize int
}

func (p Page) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// ParsePage reads page and page_size from the query string, defaulting to
// page 1 of 20 and capping page_size at 100.
func ParsePage(r *http.Request) Page {
	p := Page{Page: 1, PageSize: 20}
	if v := r.URL.Query().Get("page"); v != "" {
		if page, err := strconv.Atoi(v); err == nil && page > 0 {
			p.Page = page
		}
	}
	if v := r.URL.Query().Get("page_size"); v != "" {
		if pageSize, err := strconv.Atoi(v); err == nil && pageSize > 0 && pageSize <= 100 {
			p.PageSize = pageSize
		}
	}
	return p
}
