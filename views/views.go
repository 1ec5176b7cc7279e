// Package views holds the default templ components for the admin pages.
package views

import (
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/a-h/templ"

	"github.com/eringen/blogdesk"
	"github.com/eringen/blogdesk/blog"
)

// Funcs returns the default components, ready to pass to blogdesk.New.
func Funcs() blogdesk.ViewFuncs {
	return blogdesk.ViewFuncs{
		AdminDashboard: Dashboard,
		NotFound:       NotFound,
		ServerError:    ServerError,
	}
}

// page accumulates markup; the first write error sticks.
type page struct {
	w   io.Writer
	err error
}

func (p *page) raw(s string) {
	if p.err == nil {
		_, p.err = io.WriteString(p.w, s)
	}
}

func (p *page) text(s string) {
	p.raw(templ.EscapeString(s))
}

func (p *page) head(title string) {
	p.raw(`<!doctype html><html lang="en"><head><meta charset="utf-8"><meta name="viewport" content="width=device-width, initial-scale=1"><title>`)
	p.text(title)
	p.raw(`</title></head><body>`)
}

func (p *page) foot() {
	p.raw(`</body></html>`)
}

// Dashboard renders the post list with stats, filters and page controls.
func Dashboard(view blogdesk.DashboardView, csrfToken string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &page{w: w}
		p.head("Dashboard")
		p.raw(`<main class="dashboard"><h1>Dashboard</h1>`)

		p.raw(`<section class="stats">`)
		for _, s := range []struct {
			label string
			value int
		}{
			{"Total Posts", view.Stats.Total},
			{"Published", view.Stats.Published},
			{"Drafts", view.Stats.Drafts},
			{"Archived", view.Stats.Archived},
		} {
			p.raw(`<div class="stat"><p class="stat-label">`)
			p.text(s.label)
			p.raw(`</p><p class="stat-value">`)
			p.text(strconv.Itoa(s.value))
			p.raw(`</p></div>`)
		}
		p.raw(`</section>`)

		filters(p, view)

		if len(view.Posts) == 0 {
			p.raw(`<div class="empty"><p>No posts found</p><p>Try adjusting your filters or search term.</p></div>`)
		} else {
			p.raw(`<ul class="posts">`)
			for _, post := range view.Posts {
				postCard(p, post, csrfToken)
			}
			p.raw(`</ul>`)
		}

		pager(p, view)

		if view.Dirty {
			p.raw(`<form method="post" action="/api/flush" class="dirty"><input type="hidden" name="_csrf" value="`)
			p.text(csrfToken)
			p.raw(`"><p>Some changes are not saved yet.</p><button type="submit">Retry save</button></form>`)
		}

		p.raw(`</main>`)
		p.foot()
		return p.err
	})
}

func filters(p *page, view blogdesk.DashboardView) {
	p.raw(`<form method="get" action="/admin/" class="filters"><input type="search" name="q" placeholder="Search posts" value="`)
	p.text(view.Filter.Search)
	p.raw(`"><select name="category"><option value="">All Categories</option>`)
	for _, c := range view.Categories {
		option(p, c, c, c == view.Filter.Category)
	}
	p.raw(`</select><select name="status"><option value="">All Status</option>`)
	for _, s := range view.Statuses {
		option(p, string(s), capitalize(string(s)), s == view.Filter.Status)
	}
	p.raw(`</select><select name="per_page">`)
	for _, n := range view.PageSizes {
		option(p, strconv.Itoa(n), strconv.Itoa(n)+" per page", n == view.Page.ItemsPerPage)
	}
	p.raw(`</select><button type="submit">Apply</button></form>`)
}

func option(p *page, value, label string, selected bool) {
	p.raw(`<option value="`)
	p.text(value)
	p.raw(`"`)
	if selected {
		p.raw(` selected`)
	}
	p.raw(`>`)
	p.text(label)
	p.raw(`</option>`)
}

func postCard(p *page, post blog.Post, csrfToken string) {
	p.raw(`<li class="post" id="post-`)
	p.text(post.ID)
	p.raw(`">`)
	if post.Image != "" {
		p.raw(`<img src="`)
		p.text(post.Image)
		p.raw(`" alt="`)
		p.text(post.Title)
		p.raw(`">`)
	}
	p.raw(`<span class="`)
	p.text(StatusClass(post.Status))
	p.raw(`">`)
	p.text(string(post.Status))
	p.raw(`</span><p class="meta">`)
	p.text(post.Category)
	p.raw(` &bull; `)
	p.text(FormatPublishDate(post.PublishDate))
	p.raw(`</p><h3>`)
	p.text(post.Title)
	p.raw(`</h3><p class="description">`)
	p.text(post.Description)
	p.raw(`</p><p class="author"><span class="avatar">`)
	p.text(Initial(post.Author))
	p.raw(`</span>`)
	p.text(post.Author)
	p.raw(`</p><button type="button" class="delete" data-id="`)
	p.text(post.ID)
	p.raw(`" data-csrf="`)
	p.text(csrfToken)
	p.raw(`">Delete</button></li>`)
}

func pager(p *page, view blogdesk.DashboardView) {
	s := view.Page
	if s.TotalPages <= 1 {
		return
	}
	from, to := ShowingRange(s)
	p.raw(`<nav class="pagination"><p>Showing `)
	p.text(strconv.Itoa(from))
	p.raw(`-`)
	p.text(strconv.Itoa(to))
	p.raw(` of `)
	p.text(strconv.Itoa(s.TotalItems))
	p.raw(` results</p>`)

	link(p, PageURL(view.Filter, "nav", "prev"), "Prev", s.CurrentPage == 1)
	for _, n := range PageNumbers(s) {
		if n == s.CurrentPage {
			p.raw(`<span class="current">`)
			p.text(strconv.Itoa(n))
			p.raw(`</span>`)
			continue
		}
		link(p, PageURL(view.Filter, "page", strconv.Itoa(n)), strconv.Itoa(n), false)
	}
	link(p, PageURL(view.Filter, "nav", "next"), "Next", s.CurrentPage == s.TotalPages)
	p.raw(`</nav>`)
}

func link(p *page, href, label string, disabled bool) {
	if disabled {
		p.raw(`<span class="disabled">`)
		p.text(label)
		p.raw(`</span>`)
		return
	}
	p.raw(`<a href="`)
	p.text(href)
	p.raw(`">`)
	p.text(label)
	p.raw(`</a>`)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// NotFound renders the 404 page.
func NotFound() templ.Component {
	return message("Not found", "The page you are looking for does not exist.")
}

// ServerError renders the 500 page.
func ServerError() templ.Component {
	return message("Something went wrong", "Please try again in a moment.")
}

func message(title, body string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &page{w: w}
		p.head(title)
		p.raw(`<main class="message"><h1>`)
		p.text(title)
		p.raw(`</h1><p>`)
		p.text(body)
		p.raw(`</p><a href="/admin/">Back to dashboard</a></main>`)
		p.foot()
		return p.err
	})
}
