// Copyright (c) 2024 Christoph C. Cemper
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package lockeddump

import (
	"fmt"
	"io"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

const mutatorLockName = "mutator lock"

// Locks holds the process-wide locks. MutatorLock guards the shared runtime
// state that locked dumps inspect.
var Locks = struct {
	MutatorLock *MutatorLock
}{
	MutatorLock: NewMutatorLock(mutatorLockName, time.Second, nil),
}

// MutatorLock is a reader/writer lock that knows which goroutines hold it and
// in which mode, so holds can be asserted instead of assumed.
type MutatorLock struct {
	mu             baseRWMutex
	name           string
	warningTimeout atomic.Int64 // nanoseconds
	logger         *log.Logger

	// Protected by internal mutex
	internal sync.Mutex
	holders  map[ThreadID]*holder

	// Atomic counters
	sharedAcquired    atomic.Int64
	exclusiveAcquired atomic.Int64
	contentions       atomic.Int64

	// verboseLevel controls the verbosity of logging (0-3)
	verboseLevel atomic.Int32
}

// NewMutatorLock creates a named lock and registers it for DumpAllLocks.
// Acquisitions and holds longer than warningTimeout are logged. A nil logger uses log.Default().
func NewMutatorLock(name string, warningTimeout time.Duration, logger *log.Logger) *MutatorLock {
	if logger == nil {
		logger = log.Default()
	}
	m := &MutatorLock{
		name:    name,
		logger:  logger,
		holders: make(map[ThreadID]*holder),
	}
	m.warningTimeout.Store(int64(warningTimeout))
	m.verboseLevel.Store(1)

	globalRegistry.register(m)
	return m
}

// Name returns the lock name.
func (m *MutatorLock) Name() string {
	return m.name
}

// WithVerboseLevel sets the verbose level (0-3) for the lock and returns the lock for chaining
func (m *MutatorLock) WithVerboseLevel(level int) *MutatorLock {
	if level < 0 {
		level = 0
	} else if level > 3 {
		level = 3
	}
	m.verboseLevel.Store(int32(level))
	return m
}

// SetWarningTimeout changes the contention warning threshold.
func (m *MutatorLock) SetWarningTimeout(d time.Duration) {
	m.warningTimeout.Store(int64(d))
}

// Close unregisters the lock. It refuses while the lock is held.
func (m *MutatorLock) Close() {
	m.internal.Lock()
	if n := len(m.holders); n > 0 {
		m.internal.Unlock()
		m.logger.Printf("[%s] WARNING: Attempting to close lock with %d holder(s)", m.name, n)
		return
	}
	m.internal.Unlock()

	globalRegistry.unregister(m)
}

// logVerboseAction logs lock actions when the verbose level is 3
func (m *MutatorLock) logVerboseAction(action, purpose string, self ThreadID, callerInfo string) {
	if m.verboseLevel.Load() >= 3 {
		m.logger.Printf("[%s] %s for purpose '%s' (%s, %s)", m.name, action, purpose, self, callerInfo)
	}
}

// logTimeoutWarning logs a warning if duration exceeds the warning timeout
func (m *MutatorLock) logTimeoutWarning(d time.Duration, action, purpose string, self ThreadID, callerInfo string) bool {
	timeout := time.Duration(m.warningTimeout.Load())
	if d <= timeout {
		m.logVerboseAction(action, purpose, self, callerInfo)
		return false
	}
	if m.verboseLevel.Load() == 0 {
		return true
	}
	m.logger.Printf("[%s] WARNING: %s for purpose '%s' took %v exceeding timeout of %v (%s, %s)",
		m.name, action, purpose, d, timeout, self, callerInfo)
	return true
}

// RLockWithPurpose acquires the lock in shared mode. A goroutine may re-acquire
// a shared hold it already has, but not one it holds exclusively. A re-acquire
// only counts the nested hold; the underlying RWMutex is read-locked once per
// goroutine, so a pending writer cannot wedge it.
func (m *MutatorLock) RLockWithPurpose(purpose string) {
	m.acquireShared(CurrentThread(), purpose)
}

// requireKnown panics when the goroutine id could not be determined; holds
// keyed by the zero id would be shared by unrelated goroutines.
func (m *MutatorLock) requireKnown(self ThreadID) {
	if self == 0 {
		panic(fmt.Sprintf("[%s] cannot track a hold for an %s", m.name, self))
	}
}

func (m *MutatorLock) acquireShared(self ThreadID, purpose string) {
	m.requireKnown(self)
	callerInfo := getCallerInfo()

	m.internal.Lock()
	if h, ok := m.holders[self]; ok {
		if h.mode == ExclusiveLock {
			m.internal.Unlock()
			panic(fmt.Sprintf("[%s] %s requested shared hold while holding it exclusively", m.name, self))
		}
		h.count++
		m.internal.Unlock()
		m.sharedAcquired.Add(1)
		m.logVerboseAction("Shared lock re-entered", purpose, self, callerInfo)
		return
	}
	m.internal.Unlock()

	m.logVerboseAction("Shared lock requested", purpose, self, callerInfo)

	start := time.Now()
	m.mu.RLock()
	wait := time.Since(start)

	m.internal.Lock()
	m.holders[self] = &holder{
		mode:       SharedLock,
		purpose:    purpose,
		acquiredAt: time.Now(),
		callerInfo: callerInfo,
		count:      1,
	}
	m.internal.Unlock()

	m.sharedAcquired.Add(1)
	if m.logTimeoutWarning(wait, "Shared lock acquisition", purpose, self, callerInfo) {
		m.contentions.Add(1)
	}
}

// LockWithPurpose acquires the lock in exclusive mode. It panics if the calling
// goroutine already holds the lock in any mode, since that would self-deadlock.
func (m *MutatorLock) LockWithPurpose(purpose string) {
	m.acquireExclusive(CurrentThread(), purpose)
}

func (m *MutatorLock) acquireExclusive(self ThreadID, purpose string) {
	m.requireKnown(self)
	callerInfo := getCallerInfo()

	m.internal.Lock()
	if h, ok := m.holders[self]; ok {
		m.internal.Unlock()
		panic(fmt.Sprintf("[%s] %s requested exclusive hold while holding it %s", m.name, self, h.mode))
	}
	m.internal.Unlock()

	m.logVerboseAction("Exclusive lock requested", purpose, self, callerInfo)

	start := time.Now()
	m.mu.Lock()
	wait := time.Since(start)

	m.internal.Lock()
	m.holders[self] = &holder{
		mode:       ExclusiveLock,
		purpose:    purpose,
		acquiredAt: time.Now(),
		callerInfo: callerInfo,
		count:      1,
	}
	m.internal.Unlock()

	m.exclusiveAcquired.Add(1)
	if m.logTimeoutWarning(wait, "Exclusive lock acquisition", purpose, self, callerInfo) {
		m.contentions.Add(1)
	}
}

func (m *MutatorLock) RLock() {
	m.RLockWithPurpose("unspecified")
}

func (m *MutatorLock) Lock() {
	m.LockWithPurpose("unspecified")
}

// release drops one hold of the given mode by self and returns the released
// record once the hold is fully gone.
func (m *MutatorLock) release(self ThreadID, mode LockMode) *holder {
	m.internal.Lock()
	defer m.internal.Unlock()

	h, ok := m.holders[self]
	if !ok || h.mode != mode {
		panic(fmt.Sprintf("[%s] attempting to release a %s hold not held by %s", m.name, mode, self))
	}
	h.count--
	if h.count > 0 {
		return nil
	}
	delete(m.holders, self)
	return h
}

func (m *MutatorLock) RUnlock() {
	self := CurrentThread()
	h := m.release(self, SharedLock)
	if h == nil {
		// nested hold; the outermost RUnlock releases the RWMutex
		return
	}
	m.mu.RUnlock()

	m.logTimeoutWarning(h.heldFor(), "Shared lock held", h.purpose, self, h.callerInfo)
}

func (m *MutatorLock) Unlock() {
	self := CurrentThread()
	h := m.release(self, ExclusiveLock)
	m.mu.Unlock()

	m.logTimeoutWarning(h.heldFor(), "Exclusive lock held", h.purpose, self, h.callerInfo)
}

// heldMode returns the mode self holds the lock in, if any.
func (m *MutatorLock) heldMode(self ThreadID) (LockMode, bool) {
	m.internal.Lock()
	defer m.internal.Unlock()
	h, ok := m.holders[self]
	if !ok {
		return 0, false
	}
	return h.mode, true
}

// IsSharedHeld reports whether self holds the lock in shared mode or better.
func (m *MutatorLock) IsSharedHeld(self ThreadID) bool {
	_, ok := m.heldMode(self)
	return ok
}

// IsExclusiveHeld reports whether self holds the lock exclusively.
func (m *MutatorLock) IsExclusiveHeld(self ThreadID) bool {
	mode, ok := m.heldMode(self)
	return ok && mode == ExclusiveLock
}

func (m *MutatorLock) check(self ThreadID, required LockMode) *LockInvariantViolation {
	var (
		mode LockMode
		ok   bool
	)
	if self != 0 {
		mode, ok = m.heldMode(self)
	}
	if ok && (required == SharedLock || mode == ExclusiveLock) {
		crossCheckHeld(&m.mu, m.name)
		return nil
	}
	return &LockInvariantViolation{
		Lock:     m.name,
		Thread:   self,
		Required: required,
		Holding:  ok,
		HeldMode: mode,
		Caller:   callerSite(),
	}
}

// CheckSharedHeld returns a *LockInvariantViolation unless self holds the lock
// in shared or exclusive mode. It never blocks.
func (m *MutatorLock) CheckSharedHeld(self ThreadID) error {
	if v := m.check(self, SharedLock); v != nil {
		return v
	}
	return nil
}

// CheckExclusiveHeld returns a *LockInvariantViolation unless self holds the lock exclusively.
func (m *MutatorLock) CheckExclusiveHeld(self ThreadID) error {
	if v := m.check(self, ExclusiveLock); v != nil {
		return v
	}
	return nil
}

// AssertSharedHeld returns silently if self holds the lock in shared mode or better.
// Otherwise the violation goes to the fatal handler, which by default ends the process.
func (m *MutatorLock) AssertSharedHeld(self ThreadID) {
	if v := m.check(self, SharedLock); v != nil {
		reportViolation(v, nil)
	}
}

// AssertExclusiveHeld is AssertSharedHeld for exclusive mode.
func (m *MutatorLock) AssertExclusiveHeld(self ThreadID) {
	if v := m.check(self, ExclusiveLock); v != nil {
		reportViolation(v, nil)
	}
}

// snapshot returns copies of the current holders sorted by goroutine id
func (m *MutatorLock) snapshot() []holderEntry {
	m.internal.Lock()
	entries := make([]holderEntry, 0, len(m.holders))
	for id, h := range m.holders {
		entries = append(entries, holderEntry{thread: id, holder: *h})
	}
	m.internal.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].thread < entries[j].thread
	})
	return entries
}

// Dump writes the holder table and counters. A MutatorLock is itself Dumpable.
func (m *MutatorLock) Dump(w io.Writer) {
	m.dumpFiltered(w, ShowShared|ShowExclusive)
}

func (m *MutatorLock) dumpFiltered(w io.Writer, filter LockFilter) {
	entries := m.snapshot()
	fmt.Fprintf(w, "%s: %d holder(s)\n", m.name, len(entries))
	for _, e := range entries {
		if e.holder.mode == SharedLock && filter&ShowShared == 0 ||
			e.holder.mode == ExclusiveLock && filter&ShowExclusive == 0 {
			continue
		}
		fmt.Fprintf(w, "  - %s: %s, held %v\n",
			e.thread, e.holder.String(), e.holder.heldFor().Round(time.Microsecond))
	}
	fmt.Fprintf(w, "  acquired: shared=%d exclusive=%d contentions=%d\n",
		m.sharedAcquired.Load(), m.exclusiveAcquired.Load(), m.contentions.Load())
}
