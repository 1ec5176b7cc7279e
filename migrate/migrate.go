// Package migrate upgrades persisted blog records across schema revisions.
//
// An Engine is an immutable, ordered registry of Steps. Each Step transforms
// the whole collection and is safe to re-apply: it only fills values that are
// absent and never overwrites one that is already set. The engine has no
// persistence side effects; the caller stores the upgraded collection and the
// new version.
package migrate

import (
	"encoding/json"
	"fmt"
	"maps"
	"sort"
	"time"
)

// Record is a persisted record in its raw, schema-agnostic form.
type Record map[string]any

// Step advances a collection to Version.
type Step struct {
	Version int
	Name    string
	Apply   func(records []Record, now time.Time) []Record
}

// Engine holds the registered steps, ordered from oldest to newest.
type Engine struct {
	steps     []Step
	byVersion map[int]int
	now       func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the time source handed to each step.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// New builds an Engine from steps. It panics if steps is empty or holds a
// non-positive or duplicated version, since either is a programming error in
// the registry itself.
func New(steps []Step, opts ...Option) *Engine {
	if len(steps) == 0 {
		panic("migrate: at least one step is required")
	}
	e := &Engine{
		steps:     make([]Step, len(steps)),
		byVersion: make(map[int]int, len(steps)),
		now:       time.Now,
	}
	copy(e.steps, steps)
	sort.SliceStable(e.steps, func(i, j int) bool { return e.steps[i].Version < e.steps[j].Version })
	for i, s := range e.steps {
		if s.Version < 1 {
			panic(fmt.Sprintf("migrate: step %q has non-positive version %d", s.Name, s.Version))
		}
		if _, ok := e.byVersion[s.Version]; ok {
			panic(fmt.Sprintf("migrate: duplicate step version %d", s.Version))
		}
		if s.Apply == nil {
			panic(fmt.Sprintf("migrate: step %d has no Apply func", s.Version))
		}
		e.byVersion[s.Version] = i
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Latest returns the highest registered version, the version a fully
// migrated collection is at.
func (e *Engine) Latest() int {
	return e.steps[len(e.steps)-1].Version
}

// Steps returns a copy of the registered steps in ascending order.
func (e *Engine) Steps() []Step {
	out := make([]Step, len(e.steps))
	copy(out, e.steps)
	return out
}

// Step returns the step registered for version.
func (e *Engine) Step(version int) (Step, bool) {
	i, ok := e.byVersion[version]
	if !ok {
		return Step{}, false
	}
	return e.steps[i], true
}

// Pending returns the versions Migrate would apply starting from from.
func (e *Engine) Pending(from int) []int {
	var versions []int
	for _, s := range e.steps {
		if s.Version > from {
			versions = append(versions, s.Version)
		}
	}
	return versions
}

// Migrate applies, in ascending order, every step whose version is greater
// than from. When from is already at or past Latest the input is returned
// unchanged. Input records are never modified.
func (e *Engine) Migrate(records []Record, from int) []Record {
	if from >= e.Latest() {
		return records
	}
	out := clone(records)
	now := e.now()
	for _, s := range e.steps {
		if s.Version <= from {
			continue
		}
		out = s.Apply(out, now)
	}
	return out
}

// Parse decodes a persisted collection, failing when data is not a JSON
// array. Elements that are not objects are dropped.
func Parse(data []byte) ([]Record, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return []Record{}, fmt.Errorf("migrate: collection is not a JSON array: %w", err)
	}
	records := make([]Record, 0, len(items))
	for _, item := range items {
		var r Record
		if err := json.Unmarshal(item, &r); err != nil || r == nil {
			continue
		}
		records = append(records, r)
	}
	return records, nil
}

// Decode is Parse without the error: anything that is not a JSON array
// yields an empty collection, so corrupt state never reaches the caller.
func Decode(data []byte) []Record {
	records, _ := Parse(data)
	return records
}

func clone(records []Record) []Record {
	out := make([]Record, len(records))
	for i, r := range records {
		out[i] = maps.Clone(r)
		if out[i] == nil {
			out[i] = Record{}
		}
	}
	return out
}

// absent reports whether key is missing, null or an empty string.
func absent(r Record, key string) bool {
	v, ok := r[key]
	if !ok || v == nil {
		return true
	}
	s, isString := v.(string)
	return isString && s == ""
}
