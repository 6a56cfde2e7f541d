package domain

import (
	"net/url"
	"strconv"
	"strings"
)

// RecordFilter mirrors the list endpoint's filter and pagination parameters.
type RecordFilter struct {
	Search    string `json:"search,omitempty"`
	TimeRange string `json:"timeRange,omitempty"`
	Status    string `json:"status,omitempty"`
	StartDate string `json:"startDate,omitempty"`
	EndDate   string `json:"endDate,omitempty"`
	Page      int    `json:"page,omitempty"`
	PageSize  int    `json:"pageSize,omitempty"`
}

// Values encodes the filter as query parameters, omitting empty fields.
func (f RecordFilter) Values() url.Values {
	values := url.Values{}
	set := func(key, value string) {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			values.Set(key, trimmed)
		}
	}
	set("search", f.Search)
	set("timeRange", f.TimeRange)
	set("status", f.Status)
	set("startDate", f.StartDate)
	set("endDate", f.EndDate)
	if f.Page > 0 {
		values.Set("page", strconv.Itoa(f.Page))
	}
	if f.PageSize > 0 {
		values.Set("pageSize", strconv.Itoa(f.PageSize))
	}
	return values
}

// Key returns a stable string for the filter; url.Values.Encode sorts by key.
func (f RecordFilter) Key() string {
	return f.Values().Encode()
}

// WithPage returns a copy of the filter pointing at another page.
func (f RecordFilter) WithPage(page, pageSize int) RecordFilter {
	f.Page = page
	f.PageSize = pageSize
	return f
}

// RecordFilterFromValues reads a filter from query parameters.
func RecordFilterFromValues(values url.Values) RecordFilter {
	filter := RecordFilter{
		Search:    strings.TrimSpace(values.Get("search")),
		TimeRange: strings.TrimSpace(values.Get("timeRange")),
		Status:    strings.TrimSpace(values.Get("status")),
		StartDate: strings.TrimSpace(values.Get("startDate")),
		EndDate:   strings.TrimSpace(values.Get("endDate")),
	}
	if page, err := strconv.Atoi(values.Get("page")); err == nil && page > 0 {
		filter.Page = page
	}
	if size, err := strconv.Atoi(values.Get("pageSize")); err == nil && size > 0 {
		filter.PageSize = size
	}
	return filter
}
