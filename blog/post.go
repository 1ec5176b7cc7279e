// Package blog owns the canonical collection of blog posts: loading it
// through the schema migrations, persisting it on every mutation, and the
// field validation and filtering the admin front end applies around it.
package blog

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/eringen/blogdesk/migrate"
)

// Status is the publication state of a post.
type Status string

const (
	StatusPublished Status = "published"
	StatusDraft     Status = "draft"
	StatusArchived  Status = "archived"
)

// Statuses lists every valid status.
var Statuses = []Status{StatusPublished, StatusDraft, StatusArchived}

// Valid reports whether s is one of Statuses.
func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// Categories is the fixed set of allowed post categories.
var Categories = []string{"Technology", "Business", "Lifestyle", "Health", "Travel"}

// ValidCategory reports whether c is one of Categories.
func ValidCategory(c string) bool {
	for _, v := range Categories {
		if c == v {
			return true
		}
	}
	return false
}

// Post is a persisted blog record. Image holds a data URL.
type Post struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Author      string    `json:"author"`
	Image       string    `json:"image,omitempty"`
	PublishDate string    `json:"publishDate"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// UnmarshalJSON accepts createdAt and updatedAt as RFC 3339 timestamps or as
// bare YYYY-MM-DD dates, which older collections carry.
func (p *Post) UnmarshalJSON(data []byte) error {
	type plain Post
	aux := struct {
		*plain
		CreatedAt string `json:"createdAt"`
		UpdatedAt string `json:"updatedAt"`
	}{plain: (*plain)(p)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	var err error
	if p.CreatedAt, err = parseTimestamp("createdAt", aux.CreatedAt); err != nil {
		return err
	}
	if p.UpdatedAt, err = parseTimestamp("updatedAt", aux.UpdatedAt); err != nil {
		return err
	}
	return nil
}

func parseTimestamp(field, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, ok := migrate.ParseTime(s)
	if !ok {
		return time.Time{}, fmt.Errorf("%s: invalid timestamp %q", field, s)
	}
	return t, nil
}

// Input carries the editable fields of a new post.
type Input struct {
	Title       string `json:"title" form:"title"`
	Description string `json:"description" form:"description"`
	Category    string `json:"category" form:"category"`
	Author      string `json:"author" form:"author"`
	Image       string `json:"image,omitempty" form:"-"`
	PublishDate string `json:"publishDate" form:"publishDate"`
	Status      Status `json:"status" form:"status"`
}

// Patch holds the fields to change on an existing post; nil fields are kept.
type Patch struct {
	Title       *string
	Description *string
	Category    *string
	Author      *string
	Image       *string
	PublishDate *string
	Status      *Status
}

// Patch converts a full form submission into a Patch replacing every
// editable field. An empty Image keeps the stored one.
func (in Input) Patch() Patch {
	p := Patch{
		Title:       &in.Title,
		Description: &in.Description,
		Category:    &in.Category,
		Author:      &in.Author,
		PublishDate: &in.PublishDate,
		Status:      &in.Status,
	}
	if in.Image != "" {
		p.Image = &in.Image
	}
	return p
}

func (p Patch) apply(post *Post) {
	if p.Title != nil {
		post.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		post.Description = strings.TrimSpace(*p.Description)
	}
	if p.Category != nil {
		post.Category = *p.Category
	}
	if p.Author != nil {
		post.Author = strings.TrimSpace(*p.Author)
	}
	if p.Image != nil {
		post.Image = *p.Image
	}
	if p.PublishDate != nil {
		post.PublishDate = *p.PublishDate
	}
	if p.Status != nil {
		post.Status = *p.Status
	}
}
