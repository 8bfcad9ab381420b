//go:build debug && !deadlock

package lockeddump

import (
	"fmt"

	"github.com/trailofbits/go-mutexasserts"
)

// crossCheckHeld verifies the holder table against the state of the underlying
// sync.RWMutex. A write lock also satisfies the read lock requirement.
func crossCheckHeld(mu *baseRWMutex, name string) {
	if mutexasserts.RWMutexRLocked(&mu.RWMutex) || mutexasserts.RWMutexLocked(&mu.RWMutex) {
		return
	}
	panic(fmt.Sprintf("[%s] holder table reports a hold but the underlying mutex is unlocked", name))
}
