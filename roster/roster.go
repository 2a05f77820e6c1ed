// Package roster maintains the bidirectional identifier/display-name
// registry for channels and characters. Identifiers are stable protocol
// tokens; display names are mutable. Both directions are updated inside a
// single critical section so no reader ever observes a half-applied rename.
package roster

import (
	"strings"
	"sync"
)

// Namespace selects one of the two disjoint identifier spaces.
type Namespace int

const (
	Channels Namespace = iota
	Characters

	namespaceCount
)

func (n Namespace) String() string {
	switch n {
	case Channels:
		return "channels"
	case Characters:
		return "characters"
	}
	return "invalid"
}

// space holds one namespace. byName is keyed by the case-folded display
// name: the protocol compares names case-insensitively.
type space struct {
	mu     sync.RWMutex
	byID   map[string]string // identifier -> display name (original case)
	byName map[string]string // folded name -> identifier
}

// Registry is the shared name registry. Reads are safe from any goroutine;
// each namespace serialises its own writes independently of the other.
type Registry struct {
	spaces [namespaceCount]space
}

// New returns an empty registry.
func New() *Registry {
	r := &Registry{}
	for i := range r.spaces {
		r.spaces[i].byID = make(map[string]string)
		r.spaces[i].byName = make(map[string]string)
	}
	return r
}

func fold(name string) string { return strings.ToLower(name) }

// Upsert inserts or renames an identifier. On a rename the stale reverse
// entry is removed and the new one inserted under the same lock, so lookups
// by the old name and the new name never disagree about the identifier.
// When the name is already bound to a different identifier, that binding is
// evicted entirely; a name resolves to at most one identifier and every
// forward entry has a live reverse entry.
// It returns the previous name and whether the call changed an existing
// mapping to a different name.
func (r *Registry) Upsert(ns Namespace, id, name string) (prev string, renamed bool) {
	s := &r.spaces[ns]
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.byID[id]
	if existed && prev == name {
		return prev, false
	}
	if existed {
		delete(s.byName, fold(prev))
	}
	if holder, taken := s.byName[fold(name)]; taken && holder != id {
		delete(s.byID, holder)
	}
	s.byID[id] = name
	s.byName[fold(name)] = id
	return prev, existed
}

// Name resolves an identifier to its current display name.
func (r *Registry) Name(ns Namespace, id string) (string, bool) {
	s := &r.spaces[ns]
	s.mu.RLock()
	defer s.mu.RUnlock()
	name, ok := s.byID[id]
	return name, ok
}

// Identifier resolves a display name (case-insensitively) to its identifier.
func (r *Registry) Identifier(ns Namespace, name string) (string, bool) {
	s := &r.spaces[ns]
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byName[fold(name)]
	return id, ok
}

// Remove deletes both directions of an identifier's mapping atomically.
func (r *Registry) Remove(ns Namespace, id string) bool {
	s := &r.spaces[ns]
	s.mu.Lock()
	defer s.mu.Unlock()
	name, ok := s.byID[id]
	if !ok {
		return false
	}
	delete(s.byID, id)
	delete(s.byName, fold(name))
	return true
}

// Len reports the number of identifiers in a namespace.
func (r *Registry) Len(ns Namespace) int {
	s := &r.spaces[ns]
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// Each calls fn for every identifier/name pair in a namespace, over a
// snapshot taken under the read lock.
func (r *Registry) Each(ns Namespace, fn func(id, name string)) {
	s := &r.spaces[ns]
	s.mu.RLock()
	pairs := make(map[string]string, len(s.byID))
	for id, name := range s.byID {
		pairs[id] = name
	}
	s.mu.RUnlock()
	for id, name := range pairs {
		fn(id, name)
	}
}
