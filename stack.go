package lockeddump

import (
	"fmt"
	"runtime"
	"strings"
)

// pkgPrefix is the function-name prefix of every frame inside this package.
const pkgPrefix = "github.com/christophcemper/lockeddump."

// isInternalFrame reports whether a frame belongs to the runtime, the testing
// harness, the fmt and log printers, or this package. Test files of this
// package count as application code: we want to see the test in caller info.
func isInternalFrame(f runtime.Frame) bool {
	if strings.HasSuffix(f.File, "_test.go") {
		return false
	}
	return strings.HasPrefix(f.Function, "runtime.") ||
		strings.HasPrefix(f.Function, "testing.") ||
		strings.HasPrefix(f.Function, "fmt.") ||
		strings.HasPrefix(f.Function, "log.") ||
		strings.HasPrefix(f.Function, pkgPrefix)
}

// shouldIncludeLine returns true if the line should be included in stack traces,
// filtering out runtime, testing, and debug-related frames.
func shouldIncludeLine(line string) bool {
	if strings.Contains(line, "_test.go") {
		return true
	}
	return !strings.Contains(line, "runtime/") &&
		!strings.Contains(line, "runtime.") &&
		!strings.Contains(line, "testing/") &&
		!strings.Contains(line, "testing.") &&
		!strings.Contains(line, "lockeddump.") &&
		!strings.Contains(line, "debug.Stack") &&
		!strings.Contains(line, "debug/stack")
}

// filterStack removes runtime and testing lines from stack traces
// to keep the output focused on application code.
func filterStack(stack []byte) string {
	lines := strings.Split(string(stack), "\n")
	filtered := lines[:0]
	for _, line := range lines {
		if shouldIncludeLine(line) {
			filtered = append(filtered, line)
		}
	}
	return strings.Join(filtered, "\n")
}

// applicationFrames returns up to max frames of the caller's stack that lie outside this package.
func applicationFrames(max int) []runtime.Frame {
	var pcs [32]uintptr
	n := runtime.Callers(2, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])

	var out []runtime.Frame
	for len(out) < max {
		frame, more := frames.Next()
		if frame.Function != "" && !isInternalFrame(frame) {
			out = append(out, frame)
		}
		if !more {
			break
		}
	}
	return out
}

// getCallerInfo returns the first three application frames that lead to a lock
// call, in the "func\n\tfile:line" layout of a goroutine trace.
func getCallerInfo() string {
	var sb strings.Builder
	for i, frame := range applicationFrames(3) {
		if i > 0 {
			sb.WriteString("\n")
		}
		parts := strings.Split(frame.Function, "/")
		fmt.Fprintf(&sb, "%s\n\t%s:%d", parts[len(parts)-1], frame.File, frame.Line)
	}
	if sb.Len() == 0 {
		return "unknown"
	}
	return sb.String()
}

// callerSite returns file:line of the nearest application frame.
func callerSite() string {
	frames := applicationFrames(1)
	if len(frames) == 0 {
		return "unknown"
	}
	return fmt.Sprintf("%s:%d", frames[0].File, frames[0].Line)
}
