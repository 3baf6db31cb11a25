package flowsync

import (
	"log/slog"
	"sync"
	"time"
)

// Timer is a cancellable pending call.
type Timer interface {
	Stop() bool
}

// TimerFunc arms fn to run once after d.
type TimerFunc func(d time.Duration, fn func()) Timer

// AfterFunc is the TimerFunc backed by time.AfterFunc.
func AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// IdleRunner runs tasks off the caller's goroutine.
type IdleRunner interface {
	Run(task func())
}

// IdleQueue runs tasks one at a time on a single background goroutine, in
// submission order. Run never blocks.
type IdleQueue struct {
	logger *slog.Logger

	mu     sync.Mutex
	tasks  []func()
	closed bool

	wake chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
}

func NewIdleQueue(logger *slog.Logger) *IdleQueue {
	if logger == nil {
		logger = slog.Default()
	}

	q := &IdleQueue{
		logger: logger,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	q.wg.Add(1)

	go q.loop()

	return q
}

func (q *IdleQueue) Run(task func()) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()

		return
	}

	q.tasks = append(q.tasks, task)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Close runs the queued tasks and stops the worker. Tasks submitted after
// Close are dropped.
func (q *IdleQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()

		return
	}

	q.closed = true
	q.mu.Unlock()

	close(q.done)
	q.wg.Wait()
}

func (q *IdleQueue) loop() {
	defer q.wg.Done()

	for {
		select {
		case <-q.wake:
			q.drain()
		case <-q.done:
			q.drain()

			return
		}
	}
}

func (q *IdleQueue) drain() {
	for {
		q.mu.Lock()
		if len(q.tasks) == 0 {
			q.mu.Unlock()

			return
		}

		task := q.tasks[0]
		q.tasks[0] = nil
		q.tasks = q.tasks[1:]
		q.mu.Unlock()

		q.run(task)
	}
}

func (q *IdleQueue) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("Idle task panicked", "panic", r)
		}
	}()

	task()
}
