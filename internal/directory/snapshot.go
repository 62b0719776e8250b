package directory

import (
	"errors"
	"slices"
	"sync/atomic"
	"time"
)

// ErrNotReady is returned by lookups before the first snapshot is published.
var ErrNotReady = errors.New("directory snapshot not loaded yet")

// Snapshot is one complete build of the address table. It is never
// modified after the builder returns it.
type Snapshot struct {
	Generation uint64
	BuiltAt    time.Time
	Duration   time.Duration
	Stats      BuildStats

	entries map[string]Entity
}

func newSnapshot(generation uint64, builtAt time.Time, entries map[string]Entity) *Snapshot {
	return &Snapshot{
		Generation: generation,
		BuiltAt:    builtAt,
		entries:    entries,
	}
}

// Lookup returns the entity registered for address. The address is
// normalized before lookup.
func (s *Snapshot) Lookup(address string) (Entity, bool) {
	e, ok := s.entries[NormalizeAddress(address)]
	return e, ok
}

// Len returns the number of registered addresses.
func (s *Snapshot) Len() int {
	return len(s.entries)
}

// Addresses returns the registered addresses in sorted order.
func (s *Snapshot) Addresses() []string {
	addrs := make([]string, 0, len(s.entries))
	for a := range s.entries {
		addrs = append(addrs, a)
	}
	slices.Sort(addrs)
	return addrs
}

// LookupTable holds the currently published snapshot. Reads take no lock.
type LookupTable struct {
	current atomic.Pointer[Snapshot]
}

func NewLookupTable() *LookupTable {
	return &LookupTable{}
}

// Publish makes s the current snapshot. A nil snapshot is ignored.
func (t *LookupTable) Publish(s *Snapshot) {
	if s == nil {
		return
	}
	t.current.Store(s)
}

// Current returns the published snapshot, or ErrNotReady.
func (t *LookupTable) Current() (*Snapshot, error) {
	s := t.current.Load()
	if s == nil {
		return nil, ErrNotReady
	}
	return s, nil
}

// Ready reports whether a snapshot has been published.
func (t *LookupTable) Ready() bool {
	return t.current.Load() != nil
}
