package lockeddump

import (
	"fmt"
	"log"
	"os"
	"runtime/debug"
	"strings"
	"sync"
)

// SharedHeldChecker verifies that a goroutine holds a lock in at least shared mode.
// A nil error means the precondition holds. *MutatorLock implements it.
type SharedHeldChecker interface {
	CheckSharedHeld(self ThreadID) error
}

// SharedHeldCheckerFunc adapts a function to SharedHeldChecker.
type SharedHeldCheckerFunc func(self ThreadID) error

// implements SharedHeldChecker
func (f SharedHeldCheckerFunc) CheckSharedHeld(self ThreadID) error {
	return f(self)
}

// FatalHandler receives a lock invariant violation. The default handler
// terminates the process; a handler that returns lets the caller continue
// without performing the guarded work.
type FatalHandler func(v *LockInvariantViolation)

// AssertMode selects what a failed lock assertion does.
type AssertMode int

const (
	// AssertFatal hands violations to the fatal handler (default).
	AssertFatal AssertMode = iota
	// AssertWarn logs each violating call site once and carries on. Guarded
	// dumps are still skipped.
	AssertWarn
)

func (am AssertMode) String() string {
	switch am {
	case AssertFatal:
		return "fatal"
	case AssertWarn:
		return "warn"
	}
	return fmt.Sprintf("AssertMode(%d)", int(am))
}

// ParseAssertMode parses "fatal" or "warn" (case-insensitive).
func ParseAssertMode(s string) (AssertMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fatal", "":
		return AssertFatal, nil
	case "warn", "warning":
		return AssertWarn, nil
	}
	return AssertFatal, fmt.Errorf("unknown assert mode %q", s)
}

var (
	// exit terminates the process; swapped in tests
	exit = os.Exit

	hooks = struct {
		sync.RWMutex
		fatal  FatalHandler
		mode   AssertMode
		logger *log.Logger
	}{
		mode: AssertFatal,
	}
)

// SetFatalHandler installs the process-wide handler for lock invariant violations
// and returns a function that restores the previous one. A nil h restores the default.
func SetFatalHandler(h FatalHandler) (restore func()) {
	hooks.Lock()
	prev := hooks.fatal
	hooks.fatal = h
	hooks.Unlock()

	return func() {
		hooks.Lock()
		hooks.fatal = prev
		hooks.Unlock()
	}
}

// SetAssertMode switches between fatal and warn-only assertions and returns a restore function.
func SetAssertMode(mode AssertMode) (restore func()) {
	hooks.Lock()
	prev := hooks.mode
	hooks.mode = mode
	hooks.Unlock()

	return func() {
		hooks.Lock()
		hooks.mode = prev
		hooks.Unlock()
	}
}

// SetLogger sets the logger used for violation diagnostics. nil selects log.Default().
func SetLogger(logger *log.Logger) {
	hooks.Lock()
	hooks.logger = logger
	hooks.Unlock()
}

func packageLogger() *log.Logger {
	hooks.RLock()
	defer hooks.RUnlock()
	if hooks.logger == nil {
		return log.Default()
	}
	return hooks.logger
}

// DefaultFatalHandler logs the violation with a filtered stack trace and exits with status 1.
func DefaultFatalHandler(v *LockInvariantViolation) {
	packageLogger().Printf("FATAL: lock invariant violated: %v\nat %s\n%s",
		v, v.Caller, filterStack(debug.Stack()))
	exit(1)
}

// reportViolation routes v according to the assert mode. override, when set,
// replaces the process-wide fatal handler for this one report.
func reportViolation(v *LockInvariantViolation, override FatalHandler) {
	hooks.RLock()
	mode, handler := hooks.mode, hooks.fatal
	hooks.RUnlock()

	if mode == AssertWarn {
		warnOnce(packageLogger(), v.Lock+"@"+v.Caller,
			fmt.Sprintf("WARNING: lock invariant violated: %v (at %s)", v, v.Caller))
		return
	}
	if override != nil {
		handler = override
	}
	if handler == nil {
		handler = DefaultFatalHandler
	}
	handler(v)
}
