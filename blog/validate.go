package blog

import (
	"strings"
	"time"
)

// ValidationResult reports per-field problems with a form submission.
// Errors is keyed by the field's JSON name.
type ValidationResult struct {
	Valid  bool              `json:"isValid"`
	Errors map[string]string `json:"errors"`
}

// Validate checks every required field independently, so a caller can show
// all problems at once. The image is not checked here: it is only required
// when creating a post, which the caller knows.
func Validate(in Input) ValidationResult {
	errs := make(map[string]string)

	if strings.TrimSpace(in.Title) == "" {
		errs["title"] = "Title is required"
	}
	if strings.TrimSpace(in.Description) == "" {
		errs["description"] = "Description is required"
	}
	switch {
	case in.Category == "":
		errs["category"] = "Category is required"
	case !ValidCategory(in.Category):
		errs["category"] = "Category must be one of " + strings.Join(Categories, ", ")
	}
	if strings.TrimSpace(in.Author) == "" {
		errs["author"] = "Author is required"
	}
	if in.PublishDate == "" {
		errs["publishDate"] = "Publish date is required"
	} else if _, err := time.Parse(time.DateOnly, in.PublishDate); err != nil {
		errs["publishDate"] = "Publish date must be YYYY-MM-DD"
	}
	switch {
	case in.Status == "":
		errs["status"] = "Status is required"
	case !in.Status.Valid():
		errs["status"] = "Status must be published, draft or archived"
	}

	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}
