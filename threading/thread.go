// Package threading provides named serial event loops with synchronous and
// asynchronous dispatch. The session layer runs on a "signaling" loop and the
// transport layer on a "worker" loop; value-producing calls between the two
// use Send, notifications use Post.
package threading

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
	"time"
)

type task struct {
	tag  any
	fn   func()
	done chan struct{}
}

// Thread is a serial event loop backed by a single goroutine. All queued
// functions run in order on that goroutine.
type Thread struct {
	name string

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []task
	timers  map[*time.Timer]any
	stopped bool
	gid     int64

	wg sync.WaitGroup
}

// New starts a new event loop. Callers must Stop it when done.
func New(name string) *Thread {
	t := &Thread{
		name:   name,
		timers: make(map[*time.Timer]any),
		gid:    -1,
	}
	t.cond = sync.NewCond(&t.mu)
	t.wg.Add(1)
	go t.run()
	return t
}

func (t *Thread) Name() string { return t.name }

func (t *Thread) run() {
	defer t.wg.Done()

	t.mu.Lock()
	t.gid = goid()
	t.mu.Unlock()

	for {
		t.mu.Lock()
		for len(t.queue) == 0 && !t.stopped {
			t.cond.Wait()
		}
		if t.stopped && len(t.queue) == 0 {
			t.mu.Unlock()
			return
		}
		tk := t.queue[0]
		t.queue = t.queue[1:]
		t.mu.Unlock()

		tk.fn()
		if tk.done != nil {
			close(tk.done)
		}
	}
}

// IsCurrent reports whether the caller is running on this loop.
func (t *Thread) IsCurrent() bool {
	t.mu.Lock()
	gid := t.gid
	t.mu.Unlock()
	return gid == goid()
}

// Send runs fn on the loop and waits for it to finish. Calling Send from the
// loop itself runs fn directly.
func (t *Thread) Send(fn func()) {
	if t.IsCurrent() {
		fn()
		return
	}

	done := make(chan struct{})
	if !t.enqueue(task{fn: fn, done: done}) {
		return
	}
	<-done
}

// Post queues fn for asynchronous execution. The tag may later be passed to
// Clear to cancel the post before it runs; a nil tag is never cleared.
func (t *Thread) Post(tag any, fn func()) {
	t.enqueue(task{tag: tag, fn: fn})
}

// PostDelayed queues fn to run after d. The returned timer is managed by the
// loop; Clear with the same tag cancels it.
func (t *Thread) PostDelayed(tag any, d time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}

	var tm *time.Timer
	tm = time.AfterFunc(d, func() {
		t.mu.Lock()
		_, live := t.timers[tm]
		delete(t.timers, tm)
		t.mu.Unlock()
		if live {
			t.Post(tag, fn)
		}
	})
	t.timers[tm] = tag
}

// Clear drops every queued and scheduled task carrying tag.
func (t *Thread) Clear(tag any) {
	if tag == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	kept := t.queue[:0]
	for _, tk := range t.queue {
		if tk.tag == tag {
			if tk.done != nil {
				close(tk.done)
			}
			continue
		}
		kept = append(kept, tk)
	}
	t.queue = kept

	for tm, tmTag := range t.timers {
		if tmTag == tag {
			tm.Stop()
			delete(t.timers, tm)
		}
	}
}

// Stop drains the queue and shuts the loop down. Pending delayed tasks are
// cancelled. Stop must not be called from the loop itself.
func (t *Thread) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		t.wg.Wait()
		return
	}
	t.stopped = true
	for tm := range t.timers {
		tm.Stop()
		delete(t.timers, tm)
	}
	t.cond.Broadcast()
	t.mu.Unlock()

	t.wg.Wait()
}

func (t *Thread) enqueue(tk task) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		if tk.done != nil {
			close(tk.done)
		}
		return false
	}
	t.queue = append(t.queue, tk)
	t.cond.Signal()
	return true
}

// goid extracts the caller's goroutine id from the runtime stack header. It
// exists only so Send can detect re-entrant calls from the loop goroutine.
func goid() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	// "goroutine 123 [...":
	fields := bytes.Fields(buf[:n])
	if len(fields) < 2 {
		return -2
	}
	id, err := strconv.ParseInt(string(fields[1]), 10, 64)
	if err != nil {
		return -2
	}
	return id
}
