package threading

import (
	"sync"
	"testing"
	"time"
)

func TestThread_SendRunsOnLoop(t *testing.T) {
	th := New("test")
	defer th.Stop()

	var onLoop bool
	th.Send(func() {
		onLoop = th.IsCurrent()
	})
	if !onLoop {
		t.Fatalf("expected Send closure to observe IsCurrent")
	}
	if th.IsCurrent() {
		t.Fatalf("expected caller goroutine to not be the loop")
	}
}

func TestThread_SendReentrant(t *testing.T) {
	th := New("test")
	defer th.Stop()

	ran := false
	th.Send(func() {
		// Send from the loop itself must run inline, not deadlock.
		th.Send(func() { ran = true })
	})
	if !ran {
		t.Fatalf("expected nested Send to run")
	}
}

func TestThread_PostPreservesOrder(t *testing.T) {
	th := New("test")
	defer th.Stop()

	var mu sync.Mutex
	var got []int
	for i := 0; i < 10; i++ {
		i := i
		th.Post(nil, func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
	}

	th.Send(func() {}) // barrier

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 10 {
		t.Fatalf("expected 10 tasks, got %d", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("expected FIFO order, got %v", got)
		}
	}
}

func TestThread_PostDelayedFires(t *testing.T) {
	th := New("test")
	defer th.Stop()

	done := make(chan struct{})
	th.PostDelayed("tag", 10*time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("delayed task never fired")
	}
}

func TestThread_ClearDropsPendingAndTimers(t *testing.T) {
	th := New("test")
	defer th.Stop()

	var mu sync.Mutex
	fired := 0
	tag := "cancel-me"

	// Park the loop so the posted task stays queued while we clear it.
	parked := make(chan struct{})
	th.Post(nil, func() { <-parked })
	th.Post(tag, func() {
		mu.Lock()
		fired++
		mu.Unlock()
	})
	th.PostDelayed(tag, 20*time.Millisecond, func() {
		mu.Lock()
		fired++
		mu.Unlock()
	})
	th.Clear(tag)
	close(parked)

	time.Sleep(100 * time.Millisecond)
	th.Send(func() {}) // barrier

	mu.Lock()
	defer mu.Unlock()
	if fired != 0 {
		t.Fatalf("expected cleared tasks to never fire, got %d", fired)
	}
}

func TestThread_ClearKeepsOtherTags(t *testing.T) {
	th := New("test")
	defer th.Stop()

	ran := make(chan struct{})
	parked := make(chan struct{})
	th.Post(nil, func() { <-parked })
	th.Post("a", func() { t.Error("tag a should have been cleared") })
	th.Post("b", func() { close(ran) })
	th.Clear("a")
	close(parked)

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatalf("task with tag b never ran")
	}
}
