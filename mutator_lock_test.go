package lockeddump

import (
	"bytes"
	"errors"
	"log"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestNewMutatorLock(t *testing.T) {
	name := "test-lock"
	timeout := 100 * time.Millisecond
	var buf bytes.Buffer
	logger := log.New(&buf, "", log.LstdFlags)

	m := NewMutatorLock(name, timeout, logger)
	defer m.Close()

	if m.Name() != name {
		t.Errorf("Expected name %v, got %v", name, m.Name())
	}
	if time.Duration(m.warningTimeout.Load()) != timeout {
		t.Errorf("Expected timeout %v, got %v", timeout, time.Duration(m.warningTimeout.Load()))
	}
	if m.logger != logger {
		t.Errorf("Expected logger to be set")
	}
}

func TestSharedHoldTracking(t *testing.T) {
	m := newTestLock(t, "shared-tracking")
	self := CurrentThread()

	if m.IsSharedHeld(self) {
		t.Fatal("Expected no hold before RLock")
	}

	m.RLockWithPurpose("read-test")
	if !m.IsSharedHeld(self) {
		t.Error("Expected shared hold after RLock")
	}
	if m.IsExclusiveHeld(self) {
		t.Error("Shared hold must not count as exclusive")
	}
	if err := m.CheckSharedHeld(self); err != nil {
		t.Errorf("Expected check to pass, got %v", err)
	}

	other := make(chan bool)
	go func() { other <- m.IsSharedHeld(CurrentThread()) }()
	if <-other {
		t.Error("Another goroutine must not see our hold")
	}

	m.RUnlock()
	if m.IsSharedHeld(self) {
		t.Error("Expected no hold after RUnlock")
	}
}

func TestSharedReentry(t *testing.T) {
	m := newTestLock(t, "shared-reentry")
	self := CurrentThread()

	m.RLockWithPurpose("outer")
	m.RLockWithPurpose("inner")
	m.RUnlock()
	if !m.IsSharedHeld(self) {
		t.Error("Expected outer hold to survive inner RUnlock")
	}
	m.RUnlock()
	if m.IsSharedHeld(self) {
		t.Error("Expected no hold after both RUnlocks")
	}
}

func TestSharedReentryWithWaitingWriter(t *testing.T) {
	m := newTestLock(t, "reentry-writer")
	var wg sync.WaitGroup
	outerHeld := make(chan struct{})
	writerQueued := make(chan struct{})
	reentered := make(chan struct{})
	wg.Add(2)

	// Reader takes the lock, then re-enters once a writer is queued behind it
	go func() {
		defer wg.Done()
		m.RLockWithPurpose("outer")
		close(outerHeld)
		<-writerQueued
		m.RLockWithPurpose("inner")
		close(reentered)
		m.RUnlock()
		m.RUnlock()
	}()

	<-outerHeld

	writerDone := make(chan struct{})
	go func() {
		defer wg.Done()
		m.LockWithPurpose("writer")
		close(writerDone)
		m.Unlock()
	}()

	// Give the writer time to block on the held lock
	time.Sleep(50 * time.Millisecond)
	select {
	case <-writerDone:
		t.Fatal("Writer acquired the lock while a reader held it")
	default:
	}
	close(writerQueued)

	select {
	case <-reentered:
	case <-time.After(2 * time.Second):
		t.Fatal("Nested shared hold blocked behind a waiting writer")
	}

	wg.Wait()
	if m.sharedAcquired.Load() != 2 || m.exclusiveAcquired.Load() != 1 {
		t.Errorf("Unexpected counters shared=%d exclusive=%d", m.sharedAcquired.Load(), m.exclusiveAcquired.Load())
	}
}

func TestUnknownThreadCannotAcquire(t *testing.T) {
	m := newTestLock(t, "unknown-thread")

	for name, acquire := range map[string]func(){
		"shared":    func() { m.acquireShared(0, "no-id") },
		"exclusive": func() { m.acquireExclusive(0, "no-id") },
	} {
		t.Run(name, func(t *testing.T) {
			defer func() {
				r := recover()
				if r == nil {
					t.Fatal("Expected panic when acquiring without a goroutine id")
				}
				if !strings.Contains(r.(string), "unknown goroutine") {
					t.Errorf("Unexpected panic message: %v", r)
				}
			}()
			acquire()
		})
	}

	if len(m.snapshot()) != 0 {
		t.Error("Expected no holder recorded for the unknown goroutine")
	}
}

func TestUnknownThreadNeverHeld(t *testing.T) {
	m := newTestLock(t, "unknown-held")

	// A zero key must not pass even if one slipped into the table
	m.internal.Lock()
	m.holders[0] = &holder{mode: ExclusiveLock, purpose: "stray", acquiredAt: time.Now(), count: 1}
	m.internal.Unlock()
	t.Cleanup(func() {
		m.internal.Lock()
		delete(m.holders, 0)
		m.internal.Unlock()
	})

	err := m.CheckSharedHeld(0)
	var v *LockInvariantViolation
	if !errors.As(err, &v) {
		t.Fatalf("Expected violation for the unknown goroutine, got %v", err)
	}
	if v.Holding {
		t.Errorf("Unknown goroutine must not count as holding: %+v", v)
	}
	if err := m.CheckExclusiveHeld(0); err == nil {
		t.Error("Expected exclusive check to fail for the unknown goroutine")
	}
}

func TestExclusiveHoldTracking(t *testing.T) {
	m := newTestLock(t, "exclusive-tracking")
	self := CurrentThread()

	m.LockWithPurpose("write-test")
	if !m.IsExclusiveHeld(self) || !m.IsSharedHeld(self) {
		t.Error("Expected exclusive hold to satisfy both checks")
	}
	if err := m.CheckExclusiveHeld(self); err != nil {
		t.Errorf("Expected exclusive check to pass, got %v", err)
	}
	m.Unlock()

	if m.IsSharedHeld(self) {
		t.Error("Expected no hold after Unlock")
	}
}

func TestAssertSharedHeld(t *testing.T) {
	fatal := recordFatal(t)
	m := newTestLock(t, "assert-shared")

	m.AssertSharedHeld(CurrentThread())
	if fatal.count() != 1 {
		t.Fatalf("Expected one violation, got %d", fatal.count())
	}
	if !strings.Contains(fatal.got[0].Caller, "mutator_lock_test.go") {
		t.Errorf("Expected caller in mutator_lock_test.go, got %q", fatal.got[0].Caller)
	}

	m.RLock()
	m.AssertSharedHeld(CurrentThread())
	m.RUnlock()
	if fatal.count() != 1 {
		t.Errorf("Expected no further violations while held, got %d", fatal.count())
	}
}

func TestCheckExclusiveHeldIncompatibleMode(t *testing.T) {
	fatal := recordFatal(t)
	m := newTestLock(t, "incompatible")
	self := CurrentThread()

	m.RLockWithPurpose("reader")
	defer m.RUnlock()

	err := m.CheckExclusiveHeld(self)
	var v *LockInvariantViolation
	if !errors.As(err, &v) {
		t.Fatalf("Expected violation, got %v", err)
	}
	if !v.Holding || v.HeldMode != SharedLock || v.Required != ExclusiveLock {
		t.Errorf("Unexpected violation: %+v", v)
	}
	if !strings.Contains(v.Error(), "held: shared") {
		t.Errorf("Expected message to name the held mode, got %q", v.Error())
	}

	m.AssertExclusiveHeld(self)
	if fatal.count() != 1 {
		t.Errorf("Expected AssertExclusiveHeld to report, got %d", fatal.count())
	}
}

func TestRUnlockPanic(t *testing.T) {
	m := newTestLock(t, "runlock-panic")

	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic on RUnlock without RLock")
		}
	}()

	m.RUnlock()
}

func TestUnlockPanic(t *testing.T) {
	m := newTestLock(t, "unlock-panic")

	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic on Unlock without Lock")
		}
	}()

	m.Unlock()
}

func TestUnlockWrongModePanic(t *testing.T) {
	m := newTestLock(t, "wrong-mode")
	m.RLock()
	defer m.RUnlock()

	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic on Unlock of a shared hold")
		}
	}()

	m.Unlock()
}

func TestLockWhileHoldingPanics(t *testing.T) {
	m := newTestLock(t, "self-deadlock")
	m.RLockWithPurpose("reader")
	defer m.RUnlock()

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("Expected panic on upgrade")
		}
		if !strings.Contains(r.(string), "requested exclusive hold while holding it shared") {
			t.Errorf("Unexpected panic message: %v", r)
		}
	}()

	m.LockWithPurpose("upgrade")
}

func TestLockWaitWarning(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(&SyncWriter{W: &buf}, "", log.LstdFlags)
	m := NewMutatorLock("contended", 50*time.Millisecond, logger)
	defer m.Close()

	var wg sync.WaitGroup
	held := make(chan struct{})
	wg.Add(2)

	// First goroutine holds the lock
	go func() {
		defer wg.Done()
		m.LockWithPurpose("long-write")
		close(held)
		time.Sleep(100 * time.Millisecond)
		m.Unlock()
	}()

	<-held

	// Second goroutine waits for it
	go func() {
		defer wg.Done()
		m.LockWithPurpose("waiting-write")
		m.Unlock()
	}()

	wg.Wait()

	out := buf.String()
	if !strings.Contains(out, "WARNING: Exclusive lock acquisition for purpose 'waiting-write'") {
		t.Errorf("Expected acquisition warning, got:\n%s", out)
	}
	if !strings.Contains(out, "WARNING: Exclusive lock held for purpose 'long-write'") {
		t.Errorf("Expected hold warning, got:\n%s", out)
	}
	if m.contentions.Load() != 1 {
		t.Errorf("Expected 1 contention, got %d", m.contentions.Load())
	}
}

func TestMutatorLockDump(t *testing.T) {
	m := newTestLock(t, "dumped-lock")

	m.RLockWithPurpose("reader")
	var buf bytes.Buffer
	m.Dump(&buf)
	m.RUnlock()

	out := buf.String()
	for _, want := range []string{
		"dumped-lock: 1 holder(s)",
		CurrentThread().String(),
		"shared x1 for 'reader'",
		"mutator_lock_test.go",
		"acquired: shared=1 exclusive=0 contentions=0",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected dump to contain %q, got:\n%s", want, out)
		}
	}
}

func TestCloseRefusesWhileHeld(t *testing.T) {
	withCleanRegistry(t)
	var buf bytes.Buffer
	m := NewMutatorLock("close-held", time.Second, log.New(&buf, "", 0))

	m.RLock()
	m.Close()
	if len(globalRegistry.all()) != 1 {
		t.Error("Close must not unregister a held lock")
	}
	if !strings.Contains(buf.String(), "WARNING: Attempting to close lock with 1 holder(s)") {
		t.Errorf("Expected close warning, got %q", buf.String())
	}
	m.RUnlock()

	m.Close()
	if len(globalRegistry.all()) != 0 {
		t.Error("Expected Close to unregister an unheld lock")
	}
}

func TestConcurrentReadersAndWriters(t *testing.T) {
	fatal := recordFatal(t)
	m := newTestLock(t, "readers-writers")
	var wg sync.WaitGroup
	state := 0

	// Launch multiple readers
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				m.RLockWithPurpose("concurrent-read")
				m.AssertSharedHeld(CurrentThread())
				_ = state
				m.RUnlock()
			}
		}()
	}

	// Launch competing writers
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				m.LockWithPurpose("concurrent-write")
				m.AssertExclusiveHeld(CurrentThread())
				state++
				m.Unlock()
			}
		}()
	}

	wg.Wait()

	if state != 40 {
		t.Errorf("Expected 40 writes, got %d", state)
	}
	if fatal.count() != 0 {
		t.Errorf("Expected no violations, got %d", fatal.count())
	}
	if m.sharedAcquired.Load() != 100 || m.exclusiveAcquired.Load() != 40 {
		t.Errorf("Unexpected counters shared=%d exclusive=%d", m.sharedAcquired.Load(), m.exclusiveAcquired.Load())
	}
}

// Benchmark lock operations
func BenchmarkMutatorLock(b *testing.B) {
	m := NewMutatorLock("bench", time.Second, nil)
	defer m.Close()

	b.Run("Shared", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			m.RLockWithPurpose("bench-read")
			m.RUnlock()
		}
	})

	b.Run("Assert", func(b *testing.B) {
		m.RLock()
		defer m.RUnlock()
		self := CurrentThread()
		for i := 0; i < b.N; i++ {
			m.AssertSharedHeld(self)
		}
	})
}
