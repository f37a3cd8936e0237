package shared

import (
	"net/url"
	"strconv"
	"strings"
)

const (
	defaultPerPage = 15
	maxPerPage     = 100
)

// ListParams carries the common page/search query parameters.
type ListParams struct {
	Page    int
	PerPage int
	Search  string
}

// ParseListParams reads page, per_page and search from a query string.
func ParseListParams(q url.Values) ListParams {
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	return NewListParams(page, perPage, q.Get("search"))
}

// NewListParams normalises paging input.
func NewListParams(page, perPage int, search string) ListParams {
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	return ListParams{Page: page, PerPage: perPage, Search: strings.TrimSpace(search)}
}

// Limit returns the SQL LIMIT.
func (p ListParams) Limit() int { return p.PerPage }

// Offset returns the SQL OFFSET.
func (p ListParams) Offset() int { return (p.Page - 1) * p.PerPage }

// SearchPattern returns an ILIKE pattern for the search term.
func (p ListParams) SearchPattern() string {
	if p.Search == "" {
		return ""
	}
	replacer := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)
	return "%" + replacer.Replace(p.Search) + "%"
}

// Page is a paginated collection.
type Page[T any] struct {
	Data        []T `json:"data"`
	CurrentPage int `json:"current_page"`
	PerPage     int `json:"per_page"`
	Total       int `json:"total"`
	LastPage    int `json:"last_page"`
}

// NewPage wraps items with pagination metadata.
func NewPage[T any](items []T, params ListParams, total int) Page[T] {
	if items == nil {
		items = []T{}
	}
	perPage := params.PerPage
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	lastPage := (total + perPage - 1) / perPage
	if lastPage < 1 {
		lastPage = 1
	}
	return Page[T]{
		Data:        items,
		CurrentPage: max(params.Page, 1),
		PerPage:     perPage,
		Total:       total,
		LastPage:    lastPage,
	}
}
