package eventbridge

import (
	"runtime/debug"
	"sync"
)

const (
	defaultQueueCapacity = 64
	taskFlush            = "flush"
)

type task struct {
	kind string
	fn   func()
}

// Dispatcher runs host callbacks one at a time and in submission order on a
// single goroutine, the integration's "main thread". Submissions never block.
// Capacity bounds scene events only: when it is reached one scene event is
// dropped in place, the oldest queued save first, then the incoming save,
// then the oldest queued load. Startup and flush tasks are never dropped.
type Dispatcher struct {
	logger   Logger
	capacity int

	mu      sync.Mutex
	wake    *sync.Cond
	pending []task
	closed  bool
	done    chan struct{}
}

// NewDispatcher starts the dispatch goroutine.
func NewDispatcher(capacity int, logger Logger) *Dispatcher {
	if capacity <= 0 {
		capacity = defaultQueueCapacity
	}
	if logger == nil {
		logger = nopLogger{}
	}
	d := &Dispatcher{
		logger:   logger,
		capacity: capacity,
		done:     make(chan struct{}),
	}
	d.wake = sync.NewCond(&d.mu)
	go d.loop()
	return d
}

// Submit queues fn. It reports false when fn was dropped or the dispatcher
// is closed.
func (d *Dispatcher) Submit(kind string, fn func()) bool {
	if fn == nil {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	if !isCriticalTask(kind) && d.sceneEventsLocked() >= d.capacity {
		victim := d.victimLocked(kind)
		if victim < 0 {
			d.logger.Printf("eventbridge: dropped incoming %s (queue full)", kind)
			return false
		}
		d.logger.Printf("eventbridge: dropped queued %s (queue full)", d.pending[victim].kind)
		d.pending = append(d.pending[:victim], d.pending[victim+1:]...)
	}
	d.pending = append(d.pending, task{kind: kind, fn: fn})
	d.wake.Signal()
	return true
}

// Flush blocks until every task queued before it has run.
func (d *Dispatcher) Flush() {
	done := make(chan struct{})
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.pending = append(d.pending, task{kind: taskFlush, fn: func() { close(done) }})
	d.wake.Signal()
	d.mu.Unlock()
	<-done
}

// Close stops accepting tasks, runs what is queued and waits for the
// dispatch goroutine to exit.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		d.wake.Broadcast()
	}
	d.mu.Unlock()
	<-d.done
}

// Pending reports how many tasks wait to run.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

func (d *Dispatcher) loop() {
	defer close(d.done)
	for {
		d.mu.Lock()
		for len(d.pending) == 0 && !d.closed {
			d.wake.Wait()
		}
		if len(d.pending) == 0 {
			d.mu.Unlock()
			return
		}
		next := d.pending[0]
		d.pending[0] = task{}
		d.pending = d.pending[1:]
		d.mu.Unlock()
		d.run(next)
	}
}

func (d *Dispatcher) run(t task) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Printf("eventbridge: %s handler panicked: %v\n%s", t.kind, r, debug.Stack())
		}
	}()
	t.fn()
}

func (d *Dispatcher) sceneEventsLocked() int {
	n := 0
	for _, t := range d.pending {
		if !isCriticalTask(t.kind) {
			n++
		}
	}
	return n
}

// victimLocked picks the queued task to drop for incoming, or -1 to drop
// incoming itself.
func (d *Dispatcher) victimLocked(incoming string) int {
	if i := d.oldestLocked(isPreferredDrop); i >= 0 {
		return i
	}
	if isPreferredDrop(incoming) {
		return -1
	}
	return d.oldestLocked(func(kind string) bool { return !isCriticalTask(kind) })
}

func (d *Dispatcher) oldestLocked(match func(kind string) bool) int {
	for i, t := range d.pending {
		if match(t.kind) {
			return i
		}
	}
	return -1
}

func isCriticalTask(kind string) bool {
	return kind == TypeStartupComplete || kind == taskFlush
}

func isPreferredDrop(kind string) bool {
	return kind == TypeSceneSave
}
