//go:build deadlock

package lockeddump

import (
	"time"

	deadlock "github.com/sasha-s/go-deadlock"
)

// DeadlockEnabled is true if the deadlock detector backs MutatorLock.
// Use build tag -tags=deadlock to enable it during development.
const DeadlockEnabled = true

func init() {
	deadlock.Opts.DeadlockTimeout = 30 * time.Second
}

// baseRWMutex is the reader/writer lock underneath a MutatorLock.
type baseRWMutex struct {
	deadlock.RWMutex
}
