package lockeddump

import (
	"errors"
	"fmt"
)

// ErrLockNotHeld matches every *LockInvariantViolation via errors.Is.
var ErrLockNotHeld = errors.New("lock not held")

// LockInvariantViolation reports that a goroutine required a lock mode it did not hold.
// It describes a programming bug; see FatalHandler for how it is surfaced.
type LockInvariantViolation struct {
	Lock     string   // name of the lock
	Thread   ThreadID // goroutine that made the check
	Required LockMode // mode the caller needed
	Holding  bool     // whether Thread held the lock at all
	HeldMode LockMode // valid only when Holding
	Caller   string   // file:line of the offending call site
	Err      error    // underlying checker error, if the checker was not a MutatorLock
}

func (v *LockInvariantViolation) Error() string {
	held := "none"
	if v.Holding {
		held = v.HeldMode.String()
	}
	msg := fmt.Sprintf("%s not held in %s mode by %s (held: %s)", v.Lock, v.Required, v.Thread, held)
	if v.Err != nil {
		msg += ": " + v.Err.Error()
	}
	return msg
}

func (v *LockInvariantViolation) Is(target error) bool {
	return target == ErrLockNotHeld
}

func (v *LockInvariantViolation) Unwrap() error {
	return v.Err
}

// asViolation converts a checker error into a violation, filling in what the checker left out.
func asViolation(err error, self ThreadID) *LockInvariantViolation {
	var v *LockInvariantViolation
	if !errors.As(err, &v) {
		v = &LockInvariantViolation{
			Lock:     mutatorLockName,
			Thread:   self,
			Required: SharedLock,
			Err:      err,
		}
	}
	if v.Caller == "" {
		v.Caller = callerSite()
	}
	return v
}
