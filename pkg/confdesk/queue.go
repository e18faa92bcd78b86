package confdesk

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Queue runs submitted tasks one at a time, in submission order
type Queue interface {
	Submit(task func())
}

// serialQueue is an unbounded FIFO drained by a single goroutine. Submit never blocks.
type serialQueue struct {
	logger *zap.SugaredLogger

	lock   sync.Mutex
	tasks  []func()
	signal chan struct{}
}

func newSerialQueue(logger *zap.SugaredLogger, name string) *serialQueue {
	q := &serialQueue{
		logger: logger.Named(name),
		signal: make(chan struct{}, 1),
	}

	q.logger.Debug("Created serial queue instance")

	return q
}

func (q *serialQueue) Submit(task func()) {
	q.lock.Lock()
	q.tasks = append(q.tasks, task)
	q.lock.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Run executes tasks until ctx is done. Tasks still queued at that point are dropped.
func (q *serialQueue) Run(ctx context.Context) {
	q.logger.Debug("Queue running")

	for {
		for {
			task, ok := q.next()
			if !ok {
				break
			}

			task()

			if ctx.Err() != nil {
				break
			}
		}

		select {
		case <-q.signal:
		case <-ctx.Done():
			q.logger.Debug("Queue stopped")
			return
		}
	}
}

func (q *serialQueue) next() (func(), bool) {
	q.lock.Lock()
	defer q.lock.Unlock()

	if len(q.tasks) == 0 {
		return nil, false
	}

	task := q.tasks[0]
	q.tasks[0] = nil
	q.tasks = q.tasks[1:]

	return task, true
}

// Barrier blocks until every task submitted before it has run, or ctx is done
func Barrier(ctx context.Context, q Queue) error {
	done := make(chan struct{})
	q.Submit(func() { close(done) })

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
