package locker

import (
	"sync"
	"testing"
)

func TestLocker_ExclusiveBlocksEverything(t *testing.T) {
	l := New()

	if !l.TryLock("b1") {
		t.Fatal("TryLock() on free key failed")
	}
	if l.TryLock("b1") {
		t.Error("second TryLock() succeeded")
	}
	if l.TryRLock("b1") {
		t.Error("TryRLock() succeeded while exclusively locked")
	}
	if !l.TryLock("b2") {
		t.Error("TryLock() on another key failed")
	}

	l.Unlock("b1")
	if !l.TryRLock("b1") {
		t.Error("TryRLock() failed after Unlock()")
	}
}

func TestLocker_SharedAllowsReaders(t *testing.T) {
	var l Locker

	if !l.TryRLock("b1") || !l.TryRLock("b1") {
		t.Fatal("TryRLock() failed for concurrent readers")
	}
	if l.TryLock("b1") {
		t.Error("TryLock() succeeded while readers hold the key")
	}

	l.RUnlock("b1")
	if l.TryLock("b1") {
		t.Error("TryLock() succeeded while one reader remains")
	}
	l.RUnlock("b1")

	if l.Locked("b1") {
		t.Error("key still tracked after every lock was released")
	}
	if !l.TryLock("b1") {
		t.Error("TryLock() failed after all readers left")
	}
}

func TestLocker_UnlockWithoutLockPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Unlock() of a free key did not panic")
		}
	}()
	New().Unlock("b1")
}

func TestLocker_Concurrent(t *testing.T) {
	l := New()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.TryLock("b1") {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Errorf("%d goroutines acquired the exclusive lock, want 1", winners)
	}
}
