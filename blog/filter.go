package blog

import "strings"

// Filter narrows the collection the way the dashboard does: a free-text
// search over title, description and author, plus exact category and status
// matches. Zero-valued criteria match everything.
type Filter struct {
	Search   string `json:"q"`
	Category string `json:"category"`
	Status   Status `json:"status"`
}

// Match reports whether p satisfies every criterion.
func (f Filter) Match(p Post) bool {
	if f.Category != "" && p.Category != f.Category {
		return false
	}
	if f.Status != "" && p.Status != f.Status {
		return false
	}
	term := strings.ToLower(strings.TrimSpace(f.Search))
	if term == "" {
		return true
	}
	return strings.Contains(strings.ToLower(p.Title), term) ||
		strings.Contains(strings.ToLower(p.Description), term) ||
		strings.Contains(strings.ToLower(p.Author), term)
}

// Apply returns the posts matching f, preserving order.
func (f Filter) Apply(posts []Post) []Post {
	filtered := make([]Post, 0, len(posts))
	for _, p := range posts {
		if f.Match(p) {
			filtered = append(filtered, p)
		}
	}
	return filtered
}

// Stats counts posts per status.
type Stats struct {
	Total     int `json:"total"`
	Published int `json:"published"`
	Drafts    int `json:"drafts"`
	Archived  int `json:"archived"`
}

// CountByStatus tallies posts for the dashboard header.
func CountByStatus(posts []Post) Stats {
	s := Stats{Total: len(posts)}
	for _, p := range posts {
		switch p.Status {
		case StatusPublished:
			s.Published++
		case StatusDraft:
			s.Drafts++
		case StatusArchived:
			s.Archived++
		}
	}
	return s
}
