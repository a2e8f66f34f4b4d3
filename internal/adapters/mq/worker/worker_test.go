package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	queue "github.com/okian/rsvp/internal/adapters/mq/queue"
	worker "github.com/okian/rsvp/internal/adapters/mq/worker"
	model "github.com/okian/rsvp/internal/domain/model"
	logging "github.com/okian/rsvp/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

type mockQueue struct {
	jobs chan queue.Job
	once sync.Once
}

func newMockQueue() *mockQueue {
	return &mockQueue{jobs: make(chan queue.Job, 10)}
}

func (mq *mockQueue) Dequeue(ctx context.Context) <-chan queue.Job { return mq.jobs }

func (mq *mockQueue) Close() error {
	mq.once.Do(func() { close(mq.jobs) })
	return nil
}

func (mq *mockQueue) add(id int64) {
	mq.jobs <- queue.Job{Guest: model.Guest{ID: id}, EnqueuedAt: time.Now()}
}

type mockNotifier struct {
	mu     sync.Mutex
	seen   []int64
	errFor map[int64]error
	panics map[int64]bool
	delay  time.Duration
}

func newMockNotifier() *mockNotifier {
	return &mockNotifier{errFor: map[int64]error{}, panics: map[int64]bool{}}
}

func (m *mockNotifier) Notify(ctx context.Context, job queue.Job) error {
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.mu.Lock()
	m.seen = append(m.seen, job.Guest.ID)
	err, boom := m.errFor[job.Guest.ID], m.panics[job.Guest.ID]
	m.mu.Unlock()
	if boom {
		panic("notifier exploded")
	}
	return err
}

func (m *mockNotifier) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.seen)
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a worker with a mock queue and notifier", t, func() {
		q := newMockQueue()
		n := newMockNotifier()
		w := worker.NewInMemoryWorker(q, n,
			worker.WithLogger(logging.NewNop()),
			worker.WithName("test-worker"),
			worker.WithJobTimeout(time.Second),
		)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		convey.Convey("When jobs are queued and the queue closes", func() {
			q.add(1)
			q.add(2)
			_ = q.Close()
			w.Run(ctx)

			convey.Convey("Then every job reaches the notifier", func() {
				convey.So(n.seen, convey.ShouldResemble, []int64{1, 2})
			})
		})

		convey.Convey("When the notifier fails or panics", func() {
			n.errFor[1] = errors.New("smtp down")
			n.panics[2] = true
			q.add(1)
			q.add(2)
			q.add(3)
			_ = q.Close()
			w.Run(ctx)

			convey.Convey("Then the worker keeps going", func() {
				convey.So(n.seen, convey.ShouldResemble, []int64{1, 2, 3})
			})
		})

		convey.Convey("When the worker is shut down while idle", func() {
			go w.Run(ctx)
			err := w.Shutdown(context.Background())

			convey.Convey("Then Run returns", func() {
				convey.So(err, convey.ShouldBeNil)
				<-w.Done()
			})
		})

		convey.Convey("When shutdown cannot complete in time", func() {
			blocked := worker.NewInMemoryWorker(q, n, worker.WithLogger(logging.NewNop()))
			expired, stop := context.WithCancel(context.Background())
			stop()
			err := blocked.Shutdown(expired)

			convey.Convey("Then a timeout error is returned", func() {
				convey.So(err, convey.ShouldWrap, context.Canceled)
			})
		})
	})
}

func TestPool(t *testing.T) {
	convey.Convey("Given a pool over a real in-memory queue", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(100))
		n := newMockNotifier()
		pool := worker.NewPool(4, q, n, logging.NewNop())
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		convey.So(pool.Size(), convey.ShouldEqual, 4)

		convey.Convey("When jobs are enqueued and the pool shuts down", func() {
			pool.Start(ctx)
			for i := int64(1); i <= 40; i++ {
				convey.So(q.Enqueue(ctx, queue.Job{Guest: model.Guest{ID: i}}), convey.ShouldBeNil)
			}
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			err := pool.Shutdown(shutdownCtx)

			convey.Convey("Then the queue is drained first", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(n.count(), convey.ShouldEqual, 40)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When workers are still busy at the deadline", func() {
			n.delay = time.Second
			pool.Start(ctx)
			_ = q.Enqueue(ctx, queue.Job{Guest: model.Guest{ID: 1}})
			time.Sleep(20 * time.Millisecond)

			shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Millisecond)
			defer done()
			err := pool.Shutdown(shutdownCtx)

			convey.Convey("Then the deadline error is reported", func() {
				convey.So(err, convey.ShouldWrap, context.DeadlineExceeded)
			})
		})

		convey.Convey("When the worker count is not positive", func() {
			p := worker.NewPool(0, q, n, logging.NewNop())

			convey.Convey("Then it falls back to the CPU count", func() {
				convey.So(p.Size(), convey.ShouldBeGreaterThan, 0)
			})
		})
	})
}
