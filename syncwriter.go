package lockeddump

import (
	"io"
	"sync"
)

// SyncWriter wraps an io.Writer with mutex protection for concurrent writes.
// Goroutines that dump into one shared sink should share a SyncWriter; a
// single Write is never interleaved with another, but separate dumps may be.
type SyncWriter struct {
	W  io.Writer
	mu sync.Mutex
}

func (sw *SyncWriter) Write(p []byte) (n int, err error) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.W.Write(p)
}
