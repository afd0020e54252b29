package zones

import "sync"

// lanes runs tasks in FIFO order per key. Different keys run concurrently.
// A key's goroutine exits once its queue drains.
type lanes struct {
	mu     sync.Mutex
	queues map[string][]func()
	wg     sync.WaitGroup
}

func newLanes() *lanes {
	return &lanes{queues: make(map[string][]func())}
}

func (l *lanes) enqueue(key string, task func()) {
	l.wg.Add(1)

	l.mu.Lock()
	q, running := l.queues[key]
	l.queues[key] = append(q, task)
	l.mu.Unlock()

	if !running {
		go l.drain(key)
	}
}

func (l *lanes) drain(key string) {
	for {
		l.mu.Lock()
		q := l.queues[key]
		if len(q) == 0 {
			delete(l.queues, key)
			l.mu.Unlock()
			return
		}
		task := q[0]
		l.queues[key] = q[1:]
		l.mu.Unlock()

		task()
		l.wg.Done()
	}
}

// wait blocks until every enqueued task has run.
func (l *lanes) wait() {
	l.wg.Wait()
}
