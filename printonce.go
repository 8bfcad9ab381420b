package lockeddump

import (
	"log"
	"sync"
)

var (
	// Global map to track call sites that already produced a warning
	warnedSites sync.Map
)

// warnOnce logs msg the first time key is seen during the process lifetime.
// Returns true if the message was logged, false if key was already warned about.
func warnOnce(logger *log.Logger, key, msg string) bool {
	if _, loaded := warnedSites.LoadOrStore(key, true); loaded {
		return false
	}
	logger.Print(msg)
	return true
}

// resetWarnOnce clears all tracked call sites (mainly for testing)
func resetWarnOnce() {
	warnedSites.Range(func(k, _ any) bool {
		warnedSites.Delete(k)
		return true
	})
}
