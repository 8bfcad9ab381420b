package lockeddump

import (
	"fmt"
	"strings"
	"time"
)

// LockMode is the mode a MutatorLock is held in
type LockMode int

const (
	SharedLock LockMode = iota
	ExclusiveLock
)

// stringer for LockMode
func (lm LockMode) String() string {
	switch lm {
	case SharedLock:
		return "shared"
	case ExclusiveLock:
		return "exclusive"
	}
	return fmt.Sprintf("LockMode(%d)", int(lm))
}

// holder tracks one goroutine's hold on a MutatorLock
type holder struct {
	mode       LockMode
	purpose    string
	acquiredAt time.Time
	callerInfo string
	count      int // shared re-entries by the same goroutine
}

// heldFor returns how long the hold has lasted
func (h *holder) heldFor() time.Duration {
	return time.Since(h.acquiredAt)
}

// site returns the innermost caller frame on one line
func (h *holder) site() string {
	lines := strings.SplitN(h.callerInfo, "\n", 3)
	if len(lines) >= 2 {
		return lines[0] + " " + strings.TrimSpace(lines[1])
	}
	return h.callerInfo
}

func (h *holder) String() string {
	return fmt.Sprintf("%s x%d for '%s' %s", h.mode, h.count, h.purpose, h.site())
}

// holderEntry is a holder snapshot paired with its goroutine, used for sorted dumps
type holderEntry struct {
	thread ThreadID
	holder holder
}
