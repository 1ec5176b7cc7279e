// Package pagination derives page windows over a filtered collection and
// persists the operator's page and page-size choices.
package pagination

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/eringen/blogdesk/kv"
)

// Environment variables read by Config.Finalize.
const (
	EnvDefaultPageSize = "BLOGDESK_PAGE_SIZE"
	EnvMaxPageSize     = "BLOGDESK_MAX_PAGE_SIZE"
	EnvPageSizes       = "BLOGDESK_PAGE_SIZES"
)

var defaultPageSizes = []int{5, 10, 20}

// Config bounds the page sizes the admin list starts with, offers, and
// accepts back from storage.
type Config struct {
	DefaultPageSize int   `toml:"default_page_size"`
	MaxPageSize     int   `toml:"max_page_size"`
	PageSizes       []int `toml:"page_sizes"`
}

// Finalize fills defaults, applies environment overrides, and validates.
// The offered sizes always include DefaultPageSize and are kept sorted.
func (c *Config) Finalize() error {
	if c.DefaultPageSize <= 0 {
		c.DefaultPageSize = 5
	}
	if c.MaxPageSize <= 0 {
		c.MaxPageSize = 100
	}
	c.loadEnv()

	if len(c.PageSizes) == 0 {
		for _, n := range defaultPageSizes {
			if n <= c.MaxPageSize {
				c.PageSizes = append(c.PageSizes, n)
			}
		}
	}
	if !slices.Contains(c.PageSizes, c.DefaultPageSize) {
		c.PageSizes = append(c.PageSizes, c.DefaultPageSize)
	}
	slices.Sort(c.PageSizes)
	c.PageSizes = slices.Compact(c.PageSizes)
	return c.validate()
}

// Merge overlays the non-zero fields of o onto c.
func (c *Config) Merge(o *Config) {
	if o.DefaultPageSize != 0 {
		c.DefaultPageSize = o.DefaultPageSize
	}
	if o.MaxPageSize != 0 {
		c.MaxPageSize = o.MaxPageSize
	}
	if len(o.PageSizes) > 0 {
		c.PageSizes = slices.Clone(o.PageSizes)
	}
}

// New restores a Controller over backend for a list of totalItems. It starts
// at DefaultPageSize, and a stored or requested size above MaxPageSize is
// rejected. opts are applied after those bounds.
func (c *Config) New(backend kv.Backend, totalItems int, opts ...Option) *Controller {
	opts = append([]Option{WithMaxPageSize(c.MaxPageSize)}, opts...)
	return New(backend, totalItems, c.DefaultPageSize, opts...)
}

func (c *Config) loadEnv() {
	if n, ok := envInt(EnvDefaultPageSize); ok {
		c.DefaultPageSize = n
	}
	if n, ok := envInt(EnvMaxPageSize); ok {
		c.MaxPageSize = n
	}
	if v := os.Getenv(EnvPageSizes); v != "" {
		var sizes []int
		for _, f := range strings.Split(v, ",") {
			n, err := strconv.Atoi(strings.TrimSpace(f))
			if err != nil {
				return
			}
			sizes = append(sizes, n)
		}
		c.PageSizes = sizes
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	return n, err == nil
}

func (c *Config) validate() error {
	if c.DefaultPageSize < 1 {
		return fmt.Errorf("default_page_size must be positive")
	}
	if c.MaxPageSize < 1 {
		return fmt.Errorf("max_page_size must be positive")
	}
	if c.DefaultPageSize > c.MaxPageSize {
		return fmt.Errorf("default_page_size cannot exceed max_page_size")
	}
	for _, n := range c.PageSizes {
		if n < 1 || n > c.MaxPageSize {
			return fmt.Errorf("page_sizes: %d is outside 1..%d", n, c.MaxPageSize)
		}
	}
	return nil
}
