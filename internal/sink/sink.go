// Package sink receives per-target hop analysis results.
package sink

import (
	"sort"
	"sync"

	"github.com/gyaneshwarpardhi/ibhops/internal/fabric"
	"github.com/gyaneshwarpardhi/ibhops/internal/route"
)

// Entry is the result for one target. Failed pairs carry an outcome and an
// error message and no hop count.
type Entry struct {
	Node    string        `json:"node" yaml:"node"`
	GUID    fabric.GUID   `json:"guid" yaml:"guid"`
	Outcome route.Outcome `json:"outcome" yaml:"outcome"`
	Hops    *int          `json:"hops,omitempty" yaml:"hops,omitempty"`
	Path    []fabric.GUID `json:"path,omitempty" yaml:"path,omitempty"`
	Error   string        `json:"error,omitempty" yaml:"error,omitempty"`
}

// NewEntry builds the entry for target from a hop count result.
func NewEntry(target *fabric.Entity, res route.Result, err error) Entry {
	e := Entry{Node: target.Node, GUID: target.GUID, Outcome: route.OutcomeOf(err)}
	if err != nil {
		e.Error = err.Error()
		return e
	}
	hops := res.Hops
	e.Hops = &hops
	e.Path = res.Path
	return e
}

// Sink receives entries. Implementations must accept concurrent calls for
// distinct nodes.
type Sink interface {
	Record(Entry)
}

// Func adapts a function to Sink.
type Func func(Entry)

// Record implements Sink.
func (f Func) Record(e Entry) { f(e) }

// Store is an in-memory attribute store keyed by node id.
type Store struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{entries: make(map[string]Entry)}
}

// Record implements Sink.
func (s *Store) Record(e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[e.Node] = e
}

// Get returns the entry recorded for node.
func (s *Store) Get(node string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[node]
	return e, ok
}

// Len is the number of recorded entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Entries returns all entries ordered by node id.
func (s *Store) Entries() []Entry {
	s.mu.RLock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Node < out[j].Node })
	return out
}

// Tally counts entries per outcome.
func (s *Store) Tally() map[route.Outcome]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[route.Outcome]int)
	for _, e := range s.entries {
		out[e.Outcome]++
	}
	return out
}
