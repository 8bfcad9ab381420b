package lockeddump

import (
	"fmt"
	"io"
	"strings"
)

// Dumpable is implemented by values that can describe their internal state.
// The format belongs entirely to the implementing type.
type Dumpable interface {
	Dump(w io.Writer)
}

// countingWriter counts bytes and remembers the first write error.
// Once a write fails, further writes are dropped.
type countingWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	if cw.err != nil {
		return 0, cw.err
	}
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	cw.err = err
	return n, err
}

func dumpTo[T Dumpable](value T, w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	value.Dump(cw)
	return cw.n, cw.err
}

// DumpableValue writes a value's dump without any lock precondition.
// Use it for values whose dump does not read shared runtime state.
type DumpableValue[T Dumpable] struct {
	value T
}

// NewDumpable wraps value for use with io.WriterTo and fmt call sites.
func NewDumpable[T Dumpable](value T) DumpableValue[T] {
	return DumpableValue[T]{value: value}
}

// WriteTo implements io.WriterTo.
func (d DumpableValue[T]) WriteTo(w io.Writer) (int64, error) {
	return dumpTo(d.value, w)
}

// Format implements fmt.Formatter; every verb prints the dump.
func (d DumpableValue[T]) Format(f fmt.State, _ rune) {
	_, _ = d.WriteTo(f)
}

func (d DumpableValue[T]) String() string {
	var sb strings.Builder
	_, _ = d.WriteTo(&sb)
	return sb.String()
}

// MutatorLockedDumpable borrows a Dumpable and only dumps it after asserting
// that the calling goroutine holds the mutator lock in shared mode.
//
// Build one at the point of use and write it once:
//
//	Locks.MutatorLock.RLock()
//	defer Locks.MutatorLock.RUnlock()
//	fmt.Fprintf(os.Stderr, "heap: %v\n", NewMutatorLockedDumpable(heap))
//
// The adapter does not copy or retain the value past that write. Do not store it.
type MutatorLockedDumpable[T Dumpable] struct {
	value       T
	checker     SharedHeldChecker
	self        func() ThreadID
	onViolation FatalHandler
}

// NewMutatorLockedDumpable binds value. Nothing is checked until the adapter is written.
func NewMutatorLockedDumpable[T Dumpable](value T) MutatorLockedDumpable[T] {
	return MutatorLockedDumpable[T]{value: value}
}

// WithChecker returns a copy that asserts against c instead of Locks.MutatorLock.
func (d MutatorLockedDumpable[T]) WithChecker(c SharedHeldChecker) MutatorLockedDumpable[T] {
	d.checker = c
	return d
}

// WithThread returns a copy that identifies the calling goroutine with self
// instead of CurrentThread.
func (d MutatorLockedDumpable[T]) WithThread(self func() ThreadID) MutatorLockedDumpable[T] {
	d.self = self
	return d
}

// WithFatalHandler returns a copy that reports violations to h instead of the
// process-wide fatal handler. Warn mode still takes precedence.
func (d MutatorLockedDumpable[T]) WithFatalHandler(h FatalHandler) MutatorLockedDumpable[T] {
	d.onViolation = h
	return d
}

func (d MutatorLockedDumpable[T]) checkerOrDefault() SharedHeldChecker {
	if d.checker != nil {
		return d.checker
	}
	return Locks.MutatorLock
}

func (d MutatorLockedDumpable[T]) thread() ThreadID {
	if d.self != nil {
		return d.self()
	}
	return CurrentThread()
}

// WriteTo implements io.WriterTo. It asserts the shared hold, then appends the
// value's dump to w. On a violation the dump is never called, nothing is
// written and the violation is both reported and returned.
func (d MutatorLockedDumpable[T]) WriteTo(w io.Writer) (int64, error) {
	self := d.thread()
	if err := d.checkerOrDefault().CheckSharedHeld(self); err != nil {
		v := asViolation(err, self)
		reportViolation(v, d.onViolation)
		return 0, v
	}
	return dumpTo(d.value, w)
}

// Format implements fmt.Formatter so the adapter can be passed straight to
// fmt.Fprint, log.Printf and friends. Every verb prints the dump.
func (d MutatorLockedDumpable[T]) Format(f fmt.State, _ rune) {
	_, _ = d.WriteTo(f)
}

// String dumps into a string. The lock precondition applies.
func (d MutatorLockedDumpable[T]) String() string {
	var sb strings.Builder
	_, _ = d.WriteTo(&sb)
	return sb.String()
}

// WriteInto writes d into sink and returns sink for further writes.
// Errors are dropped; use WriteTo to observe them.
func WriteInto[W io.Writer, T Dumpable](sink W, d MutatorLockedDumpable[T]) W {
	_, _ = d.WriteTo(sink)
	return sink
}
