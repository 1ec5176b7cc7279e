package views

import (
	"net/url"
	"time"

	"github.com/eringen/blogdesk/blog"
	"github.com/eringen/blogdesk/pagination"
)

// StatusClass returns CSS classes for a status badge.
func StatusClass(s blog.Status) string {
	switch s {
	case blog.StatusPublished:
		return "badge badge-success"
	case blog.StatusDraft:
		return "badge badge-warning"
	default:
		return "badge badge-muted"
	}
}

// FormatPublishDate renders a YYYY-MM-DD date as "Jan 02, 2006".
func FormatPublishDate(d string) string {
	if d == "" {
		return "No date"
	}
	t, err := time.Parse(time.DateOnly, d)
	if err != nil {
		return "Invalid date"
	}
	return t.Format("Jan 02, 2006")
}

// Initial returns the first letter of name, or "?" when it is empty.
func Initial(name string) string {
	for _, r := range name {
		return string(r)
	}
	return "?"
}

// PageNumbers lists 1..TotalPages for the page buttons.
func PageNumbers(s pagination.State) []int {
	pages := make([]int, s.TotalPages)
	for i := range pages {
		pages[i] = i + 1
	}
	return pages
}

// ShowingRange returns the 1-based first and last visible result.
func ShowingRange(s pagination.State) (from, to int) {
	to = min(s.EndIndex, s.TotalItems)
	if to == 0 {
		return 0, 0
	}
	return s.StartIndex + 1, to
}

// PageURL builds a dashboard link that keeps f and adds the given command,
// such as "page", "3" or "nav", "next".
func PageURL(f blog.Filter, key, value string) string {
	q := url.Values{}
	if f.Search != "" {
		q.Set("q", f.Search)
	}
	if f.Category != "" {
		q.Set("category", f.Category)
	}
	if f.Status != "" {
		q.Set("status", string(f.Status))
	}
	if key != "" {
		q.Set(key, value)
	}
	if len(q) == 0 {
		return "/admin/"
	}
	return "/admin/?" + q.Encode()
}
