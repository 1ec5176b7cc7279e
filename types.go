package blogdesk

import (
	"github.com/eringen/blogdesk/blog"
	"github.com/eringen/blogdesk/pagination"
)

// DashboardView is everything the admin dashboard shows for one request:
// the visible page of filtered posts, the window over them, and the
// unfiltered status counts. It is also the JSON body of GET /api/posts.
type DashboardView struct {
	Posts      []blog.Post      `json:"posts"`
	Page       pagination.State `json:"pagination"`
	Stats      blog.Stats       `json:"stats"`
	Filter     blog.Filter      `json:"filter"`
	Categories []string         `json:"categories"`
	Statuses   []blog.Status    `json:"statuses"`
	PageSizes  []int            `json:"page_sizes"`
	Dirty      bool             `json:"dirty"`
}
