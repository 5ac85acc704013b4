package keylock

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLock_SerializesSameKey(t *testing.T) {
	r := New()
	var inside, maxInside int32
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := r.Lock("doc.txt")
			defer unlock()
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()
	if maxInside != 1 {
		t.Fatalf("expected at most 1 holder at a time, saw %d", maxInside)
	}
	if r.Len() != 0 {
		t.Errorf("expected entries to be collected, %d remain", r.Len())
	}
}

func TestLock_DifferentKeysRunInParallel(t *testing.T) {
	r := New()
	unlockA := r.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := r.Lock("b")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked behind a")
	}
}

func TestLockAll_ExcludesKeyedLocks(t *testing.T) {
	r := New()
	unlockA := r.Lock("a")

	acquired := make(chan func())
	go func() { acquired <- r.LockAll() }()

	select {
	case <-acquired:
		t.Fatal("LockAll acquired while a key was held")
	case <-time.After(50 * time.Millisecond):
	}

	unlockA()
	var unlockAll func()
	select {
	case unlockAll = <-acquired:
	case <-time.After(time.Second):
		t.Fatal("LockAll never acquired")
	}

	got := make(chan struct{})
	go func() {
		unlock := r.Lock("b")
		unlock()
		close(got)
	}()
	select {
	case <-got:
		t.Fatal("keyed lock acquired during LockAll")
	case <-time.After(50 * time.Millisecond):
	}

	unlockAll()
	select {
	case <-got:
	case <-time.After(time.Second):
		t.Fatal("keyed lock never acquired after LockAll released")
	}
}

func TestUnlock_IsIdempotent(t *testing.T) {
	r := New()
	unlock := r.Lock("k")
	unlock()
	unlock()

	unlockAll := r.LockAll()
	unlockAll()
	unlockAll()

	// Still usable after double release.
	r.Lock("k")()
	if r.Len() != 0 {
		t.Errorf("expected no entries, got %d", r.Len())
	}
}
