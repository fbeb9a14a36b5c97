package crawler

import "sync"

// Task is one unit of crawl work: a page URL and its distance from the
// start page.
type Task struct {
	URL   string
	Depth int
}

// queue is the FIFO task queue shared by the workers. pop blocks while the
// queue is empty but other workers may still enqueue; it reports false once
// the queue is drained or closed.
type queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []Task
	active int
	closed bool
}

func newQueue() *queue {
	q := &queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push appends t. It reports false when the queue is closed.
func (q *queue) push(t Task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.items = append(q.items, t)
	q.cond.Signal()
	return true
}

// pop removes the oldest task. Every successful pop must be followed by
// done.
func (q *queue) pop() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && q.active > 0 && !q.closed {
		q.cond.Wait()
	}
	if q.closed || len(q.items) == 0 {
		q.closed = true
		q.cond.Broadcast()
		return Task{}, false
	}

	t := q.items[0]
	q.items[0] = Task{}
	q.items = q.items[1:]
	q.active++
	return t, true
}

// done marks a popped task as finished.
func (q *queue) done() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.active--
	if q.active == 0 && len(q.items) == 0 {
		q.cond.Broadcast()
	}
}

// close wakes every waiting worker and rejects further pushes.
func (q *queue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.items = nil
	q.cond.Broadcast()
}
