package blog

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eringen/blogdesk/kv"
	"github.com/eringen/blogdesk/migrate"
)

// Backend keys owned by the store.
const (
	KeyPosts         = "blogs"
	KeySchemaVersion = "blogSchemaVersion"
)

// ErrStorageWrite is returned when the collection could not be persisted.
// The in-memory collection keeps the change; Flush retries the write.
var ErrStorageWrite = errors.New("blog: storage write failed")

// Store holds the post collection, newest first, and rewrites the whole
// collection to its backend after every mutation.
type Store struct {
	backend kv.Backend
	engine  *migrate.Engine
	log     *slog.Logger
	now     func() time.Time
	newID   func() string

	mu             sync.Mutex
	posts          []Post
	kept           []migrate.Record // stored records that do not decode; written back after posts
	dirty          bool
	pendingVersion int
	seq            uint64

	notifyMu  sync.Mutex
	delivered uint64

	subMu  sync.Mutex
	subs   map[int]func([]Post)
	nextID int
}

// revision is a collection snapshot tagged with the mutation that produced it.
type revision struct {
	seq   uint64
	posts []Post
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the logger used for recovered read failures.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) {
		s.log = l
	}
}

// WithClock replaces the time source used for timestamps.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// WithIDGenerator replaces the post id generator.
func WithIDGenerator(fn func() string) StoreOption {
	return func(s *Store) {
		s.newID = fn
	}
}

// WithMigrations replaces the migration registry, migrate.Default by default.
func WithMigrations(e *migrate.Engine) StoreOption {
	return func(s *Store) {
		s.engine = e
	}
}

// NewStore creates an empty Store over backend. Call Load before use.
func NewStore(backend kv.Backend, opts ...StoreOption) *Store {
	s := &Store{
		backend: backend,
		engine:  migrate.Default,
		log:     slog.Default(),
		now:     time.Now,
		newID:   uuid.NewString,
		posts:   []Post{},
		subs:    make(map[int]func([]Post)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load reads the persisted collection and schema version, migrating and
// re-persisting both when the stored version is behind. Unreadable or
// malformed state is logged and replaced by an empty collection. Records that
// do not decode as posts are logged and kept as stored, so later writes carry
// them along. The returned error only reports a failed write of migrated state.
func (s *Store) Load() error {
	posts, kept, migrated, version := s.read()

	s.mu.Lock()
	s.posts = posts
	s.kept = kept
	s.dirty = false
	s.pendingVersion = 0
	var err error
	if migrated {
		s.pendingVersion = version
		err = s.persistLocked()
	}
	rev := s.changeLocked()
	s.mu.Unlock()

	s.publish(rev)
	if err != nil {
		return err
	}
	if migrated {
		s.log.Info("blog collection migrated", "version", version, "posts", len(posts), "kept", len(kept))
	}
	return nil
}

func (s *Store) read() (posts []Post, kept []migrate.Record, migrated bool, version int) {
	raw, ok, err := s.backend.Get(KeyPosts)
	if err != nil {
		s.log.Warn("read blog collection", "error", err)
		return []Post{}, nil, false, 0
	}
	records := []migrate.Record{}
	if ok && raw != "" {
		records, err = migrate.Parse([]byte(raw))
		if err != nil {
			s.log.Warn("parse blog collection", "error", err)
			return []Post{}, nil, false, 0
		}
	}

	stored := s.storedVersion()
	latest := s.engine.Latest()
	migrated = stored < latest
	if migrated {
		s.log.Info("migrating blog collection", "from", stored, "to", latest)
		for _, v := range s.engine.Pending(stored) {
			step, _ := s.engine.Step(v)
			s.log.Debug("applying migration", "version", v, "name", step.Name)
		}
		records = s.engine.Migrate(records, stored)
	}
	posts, kept = s.decode(records)
	return posts, kept, migrated, latest
}

func (s *Store) storedVersion() int {
	raw, ok, err := s.backend.Get(KeySchemaVersion)
	if err != nil {
		s.log.Warn("read schema version", "error", err)
		return 0
	}
	if !ok {
		return 0
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || v < 0 {
		return 0
	}
	return v
}

func (s *Store) decode(records []migrate.Record) ([]Post, []migrate.Record) {
	posts := make([]Post, 0, len(records))
	var kept []migrate.Record
	for i, r := range records {
		b, err := json.Marshal(r)
		if err != nil {
			s.log.Warn("encode blog record", "index", i, "error", err)
			kept = append(kept, r)
			continue
		}
		var p Post
		if err := json.Unmarshal(b, &p); err != nil {
			s.log.Warn("keeping undecodable blog record", "index", i, "id", r["id"], "error", err)
			kept = append(kept, r)
			continue
		}
		posts = append(posts, p)
	}
	return posts, kept
}

// Create stores a new post built from in, which the caller has already
// validated, and returns it. The post is kept in memory even when the write
// fails with ErrStorageWrite.
func (s *Store) Create(in Input) (Post, error) {
	now := s.now().UTC()
	p := Post{
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Category:    in.Category,
		Author:      strings.TrimSpace(in.Author),
		Image:       in.Image,
		PublishDate: in.PublishDate,
		Status:      in.Status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if p.PublishDate == "" {
		p.PublishDate = now.Format(time.DateOnly)
	}

	s.mu.Lock()
	p.ID = s.uniqueIDLocked()
	posts := make([]Post, 0, len(s.posts)+1)
	posts = append(posts, p)
	s.posts = append(posts, s.posts...)
	err := s.persistLocked()
	rev := s.changeLocked()
	s.mu.Unlock()

	s.publish(rev)
	return p, err
}

func (s *Store) uniqueIDLocked() string {
	for {
		id := s.newID()
		if s.indexLocked(id) < 0 && !s.keptLocked(id) {
			return id
		}
	}
}

// Update merges p over the post with the given id and refreshes its
// UpdatedAt, even when nothing else changes. Unknown ids are ignored.
func (s *Store) Update(id string, p Patch) error {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return nil
	}
	post := s.posts[i]
	p.apply(&post)
	post.ID = s.posts[i].ID
	post.CreatedAt = s.posts[i].CreatedAt
	now := s.now().UTC()
	if !now.After(post.UpdatedAt) {
		now = post.UpdatedAt.Add(time.Millisecond)
	}
	post.UpdatedAt = now
	s.posts[i] = post
	err := s.persistLocked()
	rev := s.changeLocked()
	s.mu.Unlock()

	s.publish(rev)
	return err
}

// Delete removes the post with the given id, if any, and persists.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	if i := s.indexLocked(id); i >= 0 {
		s.posts = append(s.posts[:i:i], s.posts[i+1:]...)
	}
	err := s.persistLocked()
	rev := s.changeLocked()
	s.mu.Unlock()

	s.publish(rev)
	return err
}

// Get returns the post with the given id.
func (s *Store) Get(id string) (Post, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return Post{}, false
	}
	return s.posts[i], true
}

// List returns a copy of the collection, newest first.
func (s *Store) List() []Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Dirty reports whether the last write failed and memory is ahead of the backend.
func (s *Store) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// Flush retries persisting the collection (and a pending schema version)
// after a failed write. It is a no-op when nothing is pending.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}
	return s.persistLocked()
}

// Subscribe registers fn to receive the collection after every change.
// Snapshots arrive in mutation order; when mutations race, a subscriber may
// skip an intermediate snapshot but never receives an older one after a newer
// one. fn may read the store but must not mutate it synchronously.
// The returned func removes the subscription.
func (s *Store) Subscribe(fn func([]Post)) (cancel func()) {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// publish delivers rev unless a later revision was already delivered.
func (s *Store) publish(rev revision) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	if rev.seq <= s.delivered {
		return
	}
	s.delivered = rev.seq
	s.notify(rev.posts)
}

func (s *Store) notify(posts []Post) {
	s.subMu.Lock()
	fns := make([]func([]Post), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(posts)
	}
}

// persistLocked writes the whole collection, then any pending schema version.
// The version is only written once the collection it describes is stored.
func (s *Store) persistLocked() error {
	b, err := s.encodeLocked()
	if err != nil {
		s.dirty = true
		return fmt.Errorf("%w: encode collection: %w", ErrStorageWrite, err)
	}
	if err := s.backend.Set(KeyPosts, string(b)); err != nil {
		s.dirty = true
		return fmt.Errorf("%w: %w", ErrStorageWrite, err)
	}
	if s.pendingVersion > 0 {
		if err := s.backend.Set(KeySchemaVersion, strconv.Itoa(s.pendingVersion)); err != nil {
			s.dirty = true
			return fmt.Errorf("%w: schema version: %w", ErrStorageWrite, err)
		}
		s.pendingVersion = 0
	}
	s.dirty = false
	return nil
}

// encodeLocked marshals the posts followed by the kept raw records.
func (s *Store) encodeLocked() ([]byte, error) {
	if len(s.kept) == 0 {
		return json.Marshal(s.posts)
	}
	all := make([]any, 0, len(s.posts)+len(s.kept))
	for _, p := range s.posts {
		all = append(all, p)
	}
	for _, r := range s.kept {
		all = append(all, r)
	}
	return json.Marshal(all)
}

func (s *Store) keptLocked(id string) bool {
	for _, r := range s.kept {
		if v, ok := r["id"].(string); ok && v == id {
			return true
		}
	}
	return false
}

func (s *Store) indexLocked(id string) int {
	for i, p := range s.posts {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) changeLocked() revision {
	s.seq++
	return revision{seq: s.seq, posts: s.snapshotLocked()}
}

func (s *Store) snapshotLocked() []Post {
	out := make([]Post, len(s.posts))
	copy(out, s.posts)
	return out
}
