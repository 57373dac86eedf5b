package progress

import (
	"sync"

	"github.com/rickgao/basemap-orders/internal/model"
	"github.com/rickgao/basemap-orders/internal/poller"
)

// queue is an unbounded FIFO that doubles its ring when it reaches 70% full.
type queue[T any] struct {
	mu      sync.Mutex
	cond    *sync.Cond
	buf     []T
	head    int
	tail    int
	count   int
	closed  bool
	resizes int
}

func newQueue[T any](initialCapacity int) *queue[T] {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	q := &queue[T]{buf: make([]T, initialCapacity)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push appends item. Returns false once the queue is closed.
func (q *queue[T]) push(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	threshold := (len(q.buf) * 70) / 100
	if threshold < 1 {
		threshold = 1
	}
	if q.count+1 >= threshold {
		q.grow()
	}

	q.buf[q.tail] = item
	q.tail = (q.tail + 1) % len(q.buf)
	q.count++
	q.cond.Signal()
	return true
}

// pop blocks until an item is available. It returns false when the queue is
// closed and empty.
func (q *queue[T]) pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.count == 0 && !q.closed {
		q.cond.Wait()
	}

	var zero T
	if q.count == 0 {
		return zero, false
	}

	item := q.buf[q.head]
	q.buf[q.head] = zero
	q.head = (q.head + 1) % len(q.buf)
	q.count--
	return item, true
}

func (q *queue[T]) close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.cond.Broadcast()
}

func (q *queue[T]) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// grow doubles capacity. Must be called with the lock held.
func (q *queue[T]) grow() {
	next := make([]T, len(q.buf)*2)
	if q.count > 0 {
		if q.head < q.tail {
			copy(next, q.buf[q.head:q.tail])
		} else {
			n := copy(next, q.buf[q.head:])
			copy(next[n:], q.buf[:q.tail])
		}
	}
	q.buf = next
	q.head = 0
	q.tail = q.count
	q.resizes++
}

// Async delivers notifications to an observer on its own goroutine, in the
// order they were observed. ObserveProgress never blocks on the wrapped
// observer.
type Async struct {
	next  poller.ProgressObserver
	queue *queue[model.Progress]
	done  chan struct{}
	once  sync.Once
}

// NewAsync starts delivering to next.
func NewAsync(next poller.ProgressObserver) *Async {
	a := &Async{
		next:  next,
		queue: newQueue[model.Progress](64),
		done:  make(chan struct{}),
	}
	go a.run()
	return a
}

// ObserveProgress queues p. Notifications after Close are dropped.
func (a *Async) ObserveProgress(p model.Progress) {
	a.queue.push(p)
}

// Pending returns the number of queued notifications.
func (a *Async) Pending() int {
	return a.queue.len()
}

// Close stops accepting notifications and waits for queued ones to be delivered.
func (a *Async) Close() {
	a.once.Do(a.queue.close)
	<-a.done
}

func (a *Async) run() {
	defer close(a.done)
	for {
		p, ok := a.queue.pop()
		if !ok {
			return
		}
		a.next.ObserveProgress(p)
	}
}
