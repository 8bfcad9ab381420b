//go:build !deadlock

package lockeddump

import "sync"

// DeadlockEnabled is true if the deadlock detector backs MutatorLock.
const DeadlockEnabled = false

// baseRWMutex is the reader/writer lock underneath a MutatorLock.
type baseRWMutex struct {
	sync.RWMutex
}
