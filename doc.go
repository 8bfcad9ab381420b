/*
Package lockeddump lets runtime objects produce verbose diagnostic dumps while
enforcing that the caller holds the global mutator lock in shared mode.

A dump that walks live runtime state is only safe while no exclusive holder
(a collector, an unloading pass) can mutate that state. MutatorLockedDumpable
turns that rule into a check made at the moment of writing instead of a
comment at every call site.

Basic Usage:

	type heapStats struct{ objects int }

	func (h *heapStats) Dump(w io.Writer) { fmt.Fprintf(w, "count=%d", h.objects) }

	lockeddump.Locks.MutatorLock.RLockWithPurpose("stats")
	fmt.Fprintf(os.Stderr, "%v\n", lockeddump.NewMutatorLockedDumpable(stats))
	lockeddump.Locks.MutatorLock.RUnlock()

Writing the adapter without the shared hold is a programming error: the dump is
not produced and the violation goes to the fatal handler, which logs the
offending call site and exits the process.

Failure Handling:
  - SetFatalHandler replaces the process-wide handler (tests use this)
  - WithChecker and WithFatalHandler substitute collaborators per adapter
  - SetAssertMode(AssertWarn), or LOCKEDDUMP_ASSERT_MODE=warn, downgrades
    violations to a once-per-call-site warning; the dump is still skipped

Build Tags:
  - deadlock: back MutatorLock with github.com/sasha-s/go-deadlock
  - debug: cross-check passing assertions against the underlying sync.RWMutex
*/
package lockeddump
