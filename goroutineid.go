package lockeddump

import (
	"bytes"
	"fmt"
	"runtime"
	"strconv"
	"sync"
)

// ThreadID identifies a goroutine. The zero value means the id could not be determined.
type ThreadID uint64

func (id ThreadID) String() string {
	if id == 0 {
		return "unknown goroutine"
	}
	return fmt.Sprintf("goroutine %d", uint64(id))
}

var (
	// Pool of small buffers for stack header capture.
	// Uses pointer to slice to prevent copying and reduce allocations
	stackBufPool = sync.Pool{
		New: func() interface{} {
			b := make([]byte, 64)
			return &b
		},
	}

	goroutinePrefix = []byte("goroutine ")
)

// CurrentThread returns the id of the calling goroutine.
// Only the header line of the goroutine's own trace is captured
// ("goroutine 17 [running]:"), so 64 bytes are always enough.
// It returns 0 if the header cannot be parsed; a MutatorLock treats 0 as a
// goroutine that holds nothing and refuses to acquire for it.
func CurrentThread() ThreadID {
	bp := stackBufPool.Get().(*[]byte)
	defer stackBufPool.Put(bp)

	buf := *bp
	n := runtime.Stack(buf, false)
	return parseGoroutineID(buf[:n])
}

// parseGoroutineID extracts N from a trace header of the form "goroutine N [...".
func parseGoroutineID(header []byte) ThreadID {
	if !bytes.HasPrefix(header, goroutinePrefix) {
		return 0
	}
	rest := header[len(goroutinePrefix):]
	end := bytes.IndexByte(rest, ' ')
	if end <= 0 {
		return 0
	}
	id, err := strconv.ParseUint(string(rest[:end]), 10, 64)
	if err != nil {
		return 0
	}
	return ThreadID(id)
}
