// Package variables implements the scoped variable store shared by every
// graph binding: declared types and constraints, coercion on write, change
// notification and serialization.
//
// The store is not safe for concurrent use. The orchestrator serializes all
// access on its own lock, so every Get and Set happens on the frame's thread.
package variables

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/AaronLay10/SentientPlay/internal/value"
)

// Scope is a variable's visibility tier.
type Scope string

const (
	ScopeGlobal Scope = "global"
	ScopeScene  Scope = "scene"
	ScopeNode   Scope = "node"
	ScopeLocal  Scope = "local"
)

// Valid reports whether s is one of the four scopes.
func (s Scope) Valid() bool {
	switch s {
	case ScopeGlobal, ScopeScene, ScopeNode, ScopeLocal:
		return true
	}
	return false
}

// owned reports whether values in this scope are keyed by an owner id.
func (s Scope) owned() bool {
	return s == ScopeNode || s == ScopeLocal
}

// Source identifies who performs a write.
type Source string

const (
	SourceUser   Source = "user"
	SourceGraph  Source = "graph"
	SourceSystem Source = "system"
)

// ErrOwnerRequired is returned when a node or local scope access has no owner.
var ErrOwnerRequired = errors.New("owner id required for node and local scope")

// ErrInvalidScope is returned for an unknown scope.
var ErrInvalidScope = errors.New("invalid scope")

// Definition declares a variable.
type Definition struct {
	Name        string
	Type        Type
	Scope       Scope
	Default     value.Value
	Min         *float64
	Max         *float64
	Step        *float64
	Readonly    bool
	Description string

	explicitDefault bool
}

// Change describes a committed write.
type Change struct {
	Name   string
	Scope  Scope
	Owner  string
	Old    value.Value
	New    value.Value
	Source Source
}

// Entry is a stored value, used for queries and snapshots.
type Entry struct {
	Name  string      `json:"name"`
	Scope Scope       `json:"scope"`
	Owner string      `json:"owner,omitempty"`
	Value value.Value `json:"-"`
}

// ReadonlyViolation reports an ignored write to a readonly variable.
// It is surfaced as a warning, never returned as an error from Set.
type ReadonlyViolation struct {
	Name   string
	Scope  Scope
	Owner  string
	Source Source
}

func (v *ReadonlyViolation) Error() string {
	return fmt.Sprintf("readonly variable %s/%s: write from %s ignored", v.Scope, v.Name, v.Source)
}

type defKey struct {
	scope Scope
	name  string
}

type slot struct {
	scope Scope
	owner string
	name  string
}

type watcher struct {
	id int
	fn func(Change)
}

// Store holds definitions and values for all four scopes.
type Store struct {
	defs          map[defKey]*Definition
	values        map[slot]value.Value
	watchers      map[defKey][]watcher
	scopeWatchers map[Scope][]watcher
	nextWatcher   int

	logger      *slog.Logger
	onViolation func(*ReadonlyViolation)
}

// NewStore creates an empty store. A nil logger falls back to slog.Default.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		defs:          make(map[defKey]*Definition),
		values:        make(map[slot]value.Value),
		watchers:      make(map[defKey][]watcher),
		scopeWatchers: make(map[Scope][]watcher),
		logger:        logger,
	}
}

// OnReadonlyViolation installs a hook called for every rejected readonly write.
func (s *Store) OnReadonlyViolation(fn func(*ReadonlyViolation)) {
	s.onViolation = fn
}

// Define declares or redeclares a variable. Existing values are kept.
func (s *Store) Define(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("variable definition: name is required")
	}
	if !def.Scope.Valid() {
		return fmt.Errorf("variable %q: %w: %q", def.Name, ErrInvalidScope, def.Scope)
	}
	if def.Type == "" {
		def.Type = TypeAny
	}
	if !def.Type.Valid() {
		return fmt.Errorf("variable %q: unknown type %q", def.Name, def.Type)
	}
	if def.Min != nil && def.Max != nil && *def.Min > *def.Max {
		return fmt.Errorf("variable %q: min %v greater than max %v", def.Name, *def.Min, *def.Max)
	}
	if value.IsNull(def.Default) {
		def.Default = zero(def.Type)
		def.explicitDefault = false
	} else {
		def.explicitDefault = true
		def.Default = clamp(Coerce(def.Default, def.Type), &def)
	}
	s.defs[defKey{def.Scope, def.Name}] = &def
	return nil
}

// Definition returns the declaration for name in scope.
func (s *Store) Definition(name string, scope Scope) (Definition, bool) {
	d, ok := s.defs[defKey{scope, name}]
	if !ok {
		return Definition{}, false
	}
	return *d, true
}

// Definitions returns all declarations sorted by scope then name.
func (s *Store) Definitions() []Definition {
	out := make([]Definition, 0, len(s.defs))
	for _, d := range s.defs {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Scope != out[j].Scope {
			return out[i].Scope < out[j].Scope
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (s *Store) slotFor(name string, scope Scope, owner string) (slot, error) {
	if !scope.Valid() {
		return slot{}, fmt.Errorf("%w: %q", ErrInvalidScope, scope)
	}
	if scope.owned() {
		if owner == "" {
			return slot{}, ErrOwnerRequired
		}
	} else {
		owner = ""
	}
	return slot{scope: scope, owner: owner, name: name}, nil
}

// Get returns the value of name in scope. Declared variables without a stored
// value return their default. ok is false when the variable is neither stored
// nor declared.
func (s *Store) Get(name string, scope Scope, owner string) (value.Value, bool) {
	sl, err := s.slotFor(name, scope, owner)
	if err != nil {
		return value.Null{}, false
	}
	return s.lookup(sl)
}

func (s *Store) lookup(sl slot) (value.Value, bool) {
	if v, ok := s.values[sl]; ok {
		return value.Clone(v), true
	}
	if d, ok := s.defs[defKey{sl.scope, sl.name}]; ok {
		return value.Clone(d.Default), true
	}
	return value.Null{}, false
}

// Set writes v, coerced to the declared type and clamped to min/max, and
// returns the stored value. Writes to a readonly variable that already holds
// a value are ignored unless source is SourceSystem; the old value is
// returned. Watchers fire only when the stored value actually changes.
func (s *Store) Set(name string, scope Scope, v value.Value, owner string, source Source) (value.Value, error) {
	sl, err := s.slotFor(name, scope, owner)
	if err != nil {
		return value.Null{}, fmt.Errorf("set %s/%s: %w", scope, name, err)
	}
	if source == "" {
		source = SourceUser
	}

	old, _ := s.lookup(sl)
	def := s.defs[defKey{scope, name}]
	_, stored := s.values[sl]

	if def != nil && def.Readonly && source != SourceSystem && (stored || def.explicitDefault) {
		violation := &ReadonlyViolation{Name: name, Scope: scope, Owner: sl.owner, Source: source}
		s.logger.Warn("readonly variable write ignored",
			"variable", name, "scope", string(scope), "owner", sl.owner, "source", string(source))
		if s.onViolation != nil {
			s.onViolation(violation)
		}
		return old, nil
	}

	next := value.Clone(v)
	if next == nil {
		next = value.Null{}
	}
	if def != nil {
		next = clamp(Coerce(next, def.Type), def)
	}

	s.values[sl] = next
	if !value.Equal(old, next) {
		s.notify(Change{Name: name, Scope: scope, Owner: sl.owner, Old: old, New: value.Clone(next), Source: source})
	}
	return value.Clone(next), nil
}

// Resolve looks name up with node > scene > global precedence. Node scope is
// only consulted when owner is non-empty.
func (s *Store) Resolve(name string, owner string) (value.Value, Scope, bool) {
	if owner != "" {
		if v, ok := s.lookup(slot{scope: ScopeNode, owner: owner, name: name}); ok {
			return v, ScopeNode, true
		}
	}
	for _, scope := range []Scope{ScopeScene, ScopeGlobal} {
		if v, ok := s.lookup(slot{scope: scope, name: name}); ok {
			return v, scope, true
		}
	}
	return value.Null{}, "", false
}

// Watch calls fn after every change to name in scope, for any owner.
// The returned function removes the watcher.
func (s *Store) Watch(name string, scope Scope, fn func(Change)) func() {
	key := defKey{scope, name}
	s.nextWatcher++
	id := s.nextWatcher
	s.watchers[key] = append(s.watchers[key], watcher{id: id, fn: fn})
	return func() {
		s.watchers[key] = removeWatcher(s.watchers[key], id)
	}
}

// WatchScope calls fn after every change to any variable in scope.
func (s *Store) WatchScope(scope Scope, fn func(Change)) func() {
	s.nextWatcher++
	id := s.nextWatcher
	s.scopeWatchers[scope] = append(s.scopeWatchers[scope], watcher{id: id, fn: fn})
	return func() {
		s.scopeWatchers[scope] = removeWatcher(s.scopeWatchers[scope], id)
	}
}

func removeWatcher(list []watcher, id int) []watcher {
	for i, w := range list {
		if w.id == id {
			return append(list[:i:i], list[i+1:]...)
		}
	}
	return list
}

func (s *Store) notify(c Change) {
	named := append([]watcher(nil), s.watchers[defKey{c.Scope, c.Name}]...)
	scoped := append([]watcher(nil), s.scopeWatchers[c.Scope]...)
	for _, w := range named {
		w.fn(c)
	}
	for _, w := range scoped {
		w.fn(c)
	}
}

// Entries returns every stored value sorted by scope, owner and name.
// Declared variables that were never written are included with their default.
func (s *Store) Entries() []Entry {
	seen := make(map[slot]bool, len(s.values))
	out := make([]Entry, 0, len(s.values)+len(s.defs))
	for sl, v := range s.values {
		seen[sl] = true
		out = append(out, Entry{Name: sl.name, Scope: sl.scope, Owner: sl.owner, Value: value.Clone(v)})
	}
	for k, d := range s.defs {
		if k.scope.owned() {
			continue
		}
		sl := slot{scope: k.scope, name: k.name}
		if !seen[sl] {
			out = append(out, Entry{Name: k.name, Scope: k.scope, Value: value.Clone(d.Default)})
		}
	}
	sortEntries(out)
	return out
}

func sortEntries(out []Entry) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].Scope != out[j].Scope {
			return out[i].Scope < out[j].Scope
		}
		if out[i].Owner != out[j].Owner {
			return out[i].Owner < out[j].Owner
		}
		return out[i].Name < out[j].Name
	})
}

// ExportScope copies the stored values of one scope.
func (s *Store) ExportScope(scope Scope) []Entry {
	var out []Entry
	for sl, v := range s.values {
		if sl.scope == scope {
			out = append(out, Entry{Name: sl.name, Scope: scope, Owner: sl.owner, Value: value.Clone(v)})
		}
	}
	sortEntries(out)
	return out
}

// ImportScope replaces every stored value of scope with entries. Watchers
// observe each value that differs from what was visible before.
func (s *Store) ImportScope(scope Scope, entries []Entry) {
	before := make(map[slot]value.Value)
	for sl := range s.values {
		if sl.scope == scope {
			before[sl], _ = s.lookup(sl)
			delete(s.values, sl)
		}
	}
	for _, e := range entries {
		sl := slot{scope: scope, owner: e.Owner, name: e.Name}
		if !scope.owned() {
			sl.owner = ""
		}
		s.values[sl] = value.Clone(e.Value)
		if _, ok := before[sl]; !ok {
			if d, declared := s.defs[defKey{sl.scope, sl.name}]; declared {
				before[sl] = value.Clone(d.Default)
			} else {
				before[sl] = value.Null{}
			}
		}
	}
	for sl, old := range before {
		now, _ := s.lookup(sl)
		if !value.Equal(old, now) {
			s.notify(Change{Name: sl.name, Scope: sl.scope, Owner: sl.owner, Old: old, New: now, Source: SourceSystem})
		}
	}
}

// ClearScope drops every stored value of scope. Definitions are kept.
func (s *Store) ClearScope(scope Scope) {
	for sl := range s.values {
		if sl.scope == scope {
			delete(s.values, sl)
		}
	}
}

// ClearOwner drops the node and local values owned by owner.
func (s *Store) ClearOwner(owner string) {
	for sl := range s.values {
		if sl.owner == owner && sl.scope.owned() {
			delete(s.values, sl)
		}
	}
}
