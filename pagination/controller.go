package pagination

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/eringen/blogdesk/kv"
)

// Default backend keys for the admin post list.
const (
	KeyCurrentPage  = "blog_admin_currentPage"
	KeyItemsPerPage = "blog_admin_itemsPerPage"
)

// ErrPersist is returned when the page state could not be written. The
// in-memory state keeps the change.
var ErrPersist = errors.New("pagination: persist failed")

// State is a snapshot of the controller.
type State struct {
	CurrentPage  int `json:"page"`
	ItemsPerPage int `json:"per_page"`
	TotalItems   int `json:"total"`
	TotalPages   int `json:"total_pages"`
	StartIndex   int `json:"start"`
	EndIndex     int `json:"end"`
}

// Controller tracks the current page over a collection whose size is owned
// by the caller. CurrentPage always stays within [1, TotalPages], and every
// change of page or page size is written to the backend immediately.
type Controller struct {
	backend kv.Backend
	pageKey string
	sizeKey string
	maxSize int
	log     *slog.Logger

	mu           sync.Mutex
	totalItems   int
	currentPage  int
	itemsPerPage int
	seq          uint64

	notifyMu  sync.Mutex
	delivered uint64

	subMu  sync.Mutex
	subs   map[int]func(State)
	nextID int
}

// Option configures a Controller.
type Option func(*Controller)

// WithKeys persists state under separate keys, so independent lists do not
// share a page position.
func WithKeys(pageKey, sizeKey string) Option {
	return func(c *Controller) {
		c.pageKey = pageKey
		c.sizeKey = sizeKey
	}
}

// WithMaxPageSize rejects page sizes above n. Zero means unbounded.
func WithMaxPageSize(n int) Option {
	return func(c *Controller) {
		c.maxSize = n
	}
}

// WithLogger sets the logger used when the initial state cannot be persisted.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		c.log = l
	}
}

// New restores the persisted page state for a collection of totalItems.
// Missing, non-numeric or non-positive stored values fall back to page 1 and
// defaultPageSize. The restored, clamped state is written back at once.
func New(backend kv.Backend, totalItems, defaultPageSize int, opts ...Option) *Controller {
	c := &Controller{
		backend: backend,
		pageKey: KeyCurrentPage,
		sizeKey: KeyItemsPerPage,
		log:     slog.Default(),
		subs:    make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(c)
	}
	if defaultPageSize < 1 {
		defaultPageSize = 1
	}
	if totalItems < 0 {
		totalItems = 0
	}

	c.totalItems = totalItems
	c.currentPage = c.restore(c.pageKey, 1)
	c.itemsPerPage = c.restore(c.sizeKey, defaultPageSize)
	if c.maxSize > 0 && c.itemsPerPage > c.maxSize {
		c.itemsPerPage = defaultPageSize
	}
	c.correctLocked()
	if err := c.persistLocked(); err != nil {
		c.log.Warn("persist pagination state", "error", err)
	}
	return c
}

func (c *Controller) restore(key string, fallback int) int {
	raw, ok, err := c.backend.Get(key)
	if err != nil {
		c.log.Warn("read pagination state", "key", key, "error", err)
		return fallback
	}
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

// CurrentPage returns the 1-based current page.
func (c *Controller) CurrentPage() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentPage
}

// ItemsPerPage returns the page size.
func (c *Controller) ItemsPerPage() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.itemsPerPage
}

// TotalItems returns the collection size last given to the controller.
func (c *Controller) TotalItems() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalItems
}

// TotalPages returns max(1, ceil(TotalItems / ItemsPerPage)).
func (c *Controller) TotalPages() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalPagesLocked()
}

// StartIndex returns the index of the first item on the current page.
func (c *Controller) StartIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return (c.currentPage - 1) * c.itemsPerPage
}

// EndIndex returns the exclusive end of the current page. It may exceed the
// collection length; Slice clamps it.
func (c *Controller) EndIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentPage * c.itemsPerPage
}

// State returns a snapshot of the controller.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

// SetTotalItems updates the collection size, resetting to the first page
// when the current page no longer exists.
func (c *Controller) SetTotalItems(n int) error {
	if n < 0 {
		n = 0
	}
	return c.change(func() bool {
		if n == c.totalItems {
			return false
		}
		c.totalItems = n
		return true
	})
}

// GoToPage moves to page n when 1 <= n <= TotalPages, and is a no-op otherwise.
func (c *Controller) GoToPage(n int) error {
	return c.change(func() bool {
		if n < 1 || n > c.totalPagesLocked() || n == c.currentPage {
			return false
		}
		c.currentPage = n
		return true
	})
}

// NextPage advances one page unless already on the last.
func (c *Controller) NextPage() error {
	return c.change(func() bool {
		if c.currentPage >= c.totalPagesLocked() {
			return false
		}
		c.currentPage++
		return true
	})
}

// PrevPage goes back one page unless already on the first.
func (c *Controller) PrevPage() error {
	return c.change(func() bool {
		if c.currentPage <= 1 {
			return false
		}
		c.currentPage--
		return true
	})
}

// ChangeItemsPerPage sets the page size and always returns to the first
// page. Sizes below 1 or above the configured maximum are ignored.
func (c *Controller) ChangeItemsPerPage(n int) error {
	return c.change(func() bool {
		if n < 1 || (c.maxSize > 0 && n > c.maxSize) {
			return false
		}
		c.itemsPerPage = n
		c.currentPage = 1
		return true
	})
}

// Subscribe registers fn to receive the state after every change. States
// arrive in change order; racing changes may skip an intermediate state but
// never deliver an older one after a newer one. fn must not change the
// controller synchronously.
func (c *Controller) Subscribe(fn func(State)) (cancel func()) {
	c.subMu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	c.subMu.Unlock()

	return func() {
		c.subMu.Lock()
		delete(c.subs, id)
		c.subMu.Unlock()
	}
}

// change applies fn, self-corrects, persists and notifies when fn reports a change.
func (c *Controller) change(fn func() bool) error {
	c.mu.Lock()
	if !fn() {
		c.mu.Unlock()
		return nil
	}
	c.correctLocked()
	err := c.persistLocked()
	c.seq++
	seq, state := c.seq, c.stateLocked()
	c.mu.Unlock()

	c.publish(seq, state)
	return err
}

// publish delivers s unless a later change was already delivered.
func (c *Controller) publish(seq uint64, s State) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	if seq <= c.delivered {
		return
	}
	c.delivered = seq
	c.notify(s)
}

func (c *Controller) correctLocked() {
	if total := c.totalPagesLocked(); c.currentPage > total && total > 0 {
		c.currentPage = 1
	}
}

func (c *Controller) totalPagesLocked() int {
	pages := (c.totalItems + c.itemsPerPage - 1) / c.itemsPerPage
	if pages < 1 {
		return 1
	}
	return pages
}

func (c *Controller) stateLocked() State {
	start := (c.currentPage - 1) * c.itemsPerPage
	return State{
		CurrentPage:  c.currentPage,
		ItemsPerPage: c.itemsPerPage,
		TotalItems:   c.totalItems,
		TotalPages:   c.totalPagesLocked(),
		StartIndex:   start,
		EndIndex:     start + c.itemsPerPage,
	}
}

// persistLocked writes both values independently; a failure of one does not
// skip the other.
func (c *Controller) persistLocked() error {
	var errs []error
	if err := c.backend.Set(c.pageKey, strconv.Itoa(c.currentPage)); err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", c.pageKey, err))
	}
	if err := c.backend.Set(c.sizeKey, strconv.Itoa(c.itemsPerPage)); err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", c.sizeKey, err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrPersist, errors.Join(errs...))
	}
	return nil
}

func (c *Controller) notify(s State) {
	c.subMu.Lock()
	fns := make([]func(State), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.subMu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}

// Slice returns the items on the controller's current page, clamping the
// window to the bounds of items.
func Slice[T any](items []T, c *Controller) []T {
	s := c.State()
	start, end := s.StartIndex, s.EndIndex
	if start > len(items) {
		start = len(items)
	}
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
