// registry.go to keep track of all the MutatorLock instances
package lockeddump

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

var (
	// Global registry of all MutatorLock instances
	globalRegistry = newRegistry()
)

type registry struct {
	sync.RWMutex
	locks map[string]*MutatorLock
}

func newRegistry() *registry {
	return &registry{locks: make(map[string]*MutatorLock)}
}

// register adds a lock to the registry, replacing any lock of the same name
func (r *registry) register(m *MutatorLock) {
	r.Lock()
	defer r.Unlock()
	r.locks[m.name] = m
}

// unregister removes m, unless its name has since been taken by another lock
func (r *registry) unregister(m *MutatorLock) {
	r.Lock()
	defer r.Unlock()
	if r.locks[m.name] == m {
		delete(r.locks, m.name)
	}
}

// all returns the registered locks sorted by name
func (r *registry) all() []*MutatorLock {
	r.RLock()
	defer r.RUnlock()

	locks := make([]*MutatorLock, 0, len(r.locks))
	for _, m := range r.locks {
		locks = append(locks, m)
	}

	// Sort by name for consistent output
	sort.Slice(locks, func(i, j int) bool {
		return locks[i].name < locks[j].name
	})
	return locks
}

// LockFilter selects which holders DumpAllLocks lists
type LockFilter uint8

const (
	ShowShared LockFilter = 1 << iota
	ShowExclusive
)

// lockView is a filtered Dumpable view of one lock
type lockView struct {
	lock   *MutatorLock
	filter LockFilter
}

func (v lockView) Dump(w io.Writer) {
	v.lock.dumpFiltered(w, v.filter)
}

// DumpAllLocks writes the state of every registered MutatorLock to w.
// Each lock is dumped while the calling goroutine holds it in shared mode;
// locks the caller already holds are not acquired again.
// filters controls which holders are listed; none means all.
func DumpAllLocks(w io.Writer, filters ...LockFilter) error {
	locks := globalRegistry.all()

	// Combine all filters
	var combined LockFilter
	if len(filters) == 0 {
		combined = ShowShared | ShowExclusive
	} else {
		for _, f := range filters {
			combined |= f
		}
	}

	if _, err := fmt.Fprintf(w, "=== Lock Status ===\nTotal Registered Locks: %d\nActive Filters: %s\n\n",
		len(locks), describeFilters(combined)); err != nil {
		return err
	}

	self := CurrentThread()
	for _, m := range locks {
		if err := dumpLock(w, m, combined, self); err != nil {
			return fmt.Errorf("dump %s: %w", m.name, err)
		}
	}
	return nil
}

func dumpLock(w io.Writer, m *MutatorLock, filter LockFilter, self ThreadID) error {
	if !m.IsSharedHeld(self) {
		m.RLockWithPurpose("dump all locks")
		defer m.RUnlock()
	}
	_, err := NewMutatorLockedDumpable(lockView{lock: m, filter: filter}).
		WithChecker(m).
		WriteTo(w)
	return err
}

// Helper function to describe active filters for output
func describeFilters(filter LockFilter) string {
	if filter == 0 {
		return "None"
	}

	var filters []string
	if filter&ShowShared != 0 {
		filters = append(filters, "Shared")
	}
	if filter&ShowExclusive != 0 {
		filters = append(filters, "Exclusive")
	}
	return strings.Join(filters, ", ")
}
