package scheduler

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestOutputLocks_ReleaseAllowsReacquire(t *testing.T) {
	locks := NewOutputLocks()

	release := locks.Acquire([]string{"out/index.html"})
	release()

	release = locks.Acquire([]string{"out/index.html"})
	release()
}

func TestOutputLocks_SamePathBlocks(t *testing.T) {
	locks := NewOutputLocks()
	order := make(chan int, 2)

	release := locks.Acquire([]string{"out/index.html"})

	go func() {
		r := locks.Acquire([]string{"out/../out/index.html"})
		order <- 2
		r()
	}()

	time.Sleep(20 * time.Millisecond)
	order <- 1
	release()

	if first := <-order; first != 1 {
		t.Errorf("expected holder to finish first, got %d", first)
	}
	<-order
}

func TestOutputLocks_DifferentPathsConcurrent(t *testing.T) {
	locks := NewOutputLocks()
	var running, peak atomic.Int32
	var wg sync.WaitGroup

	for _, path := range []string{"a.xml", "b.xml", "c.xml"} {
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			release := locks.Acquire([]string{p})
			defer release()
			n := running.Add(1)
			for {
				cur := peak.Load()
				if n <= cur || peak.CompareAndSwap(cur, n) {
					break
				}
			}
			time.Sleep(30 * time.Millisecond)
			running.Add(-1)
		}(path)
	}
	wg.Wait()

	if peak.Load() < 2 {
		t.Errorf("expected concurrent holders for distinct paths, peak %d", peak.Load())
	}
}

func TestOutputLocks_OverlappingSetsNoDeadlock(t *testing.T) {
	locks := NewOutputLocks()
	done := make(chan struct{})

	go func() {
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				locks.Acquire([]string{"x", "y", "x"})()
			}()
			go func() {
				defer wg.Done()
				locks.Acquire([]string{"y", "x"})()
			}()
		}
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("deadlock acquiring overlapping lock sets")
	}
}

func TestNormalizePaths(t *testing.T) {
	got := normalizePaths([]string{"b", "", "a/./c", "a/c", "b"})
	want := []string{"a/c", "b"}
	if len(got) != len(want) {
		t.Fatalf("normalizePaths = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("normalizePaths[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
