// Package service ties the guest store to the notification pipeline and the
// live feed. It implements the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"github.com/okian/rsvp/internal/adapters/http/live"
	"github.com/okian/rsvp/internal/adapters/mq/queue"
	"github.com/okian/rsvp/internal/adapters/mq/worker"
	"github.com/okian/rsvp/internal/adapters/repository"
	"github.com/okian/rsvp/internal/domain/model"
	"github.com/okian/rsvp/pkg/logger"
	"github.com/okian/rsvp/pkg/metrics"
)

// Submission results recorded in metrics.
const (
	resultStored = "stored"
	resultFailed = "failed"
)

// ErrNoStore is returned by New when no store is supplied.
var ErrNoStore = errors.New("service requires a store")

// Service implements the RSVP operations.
type Service struct {
	mu sync.Mutex

	store     repository.Store
	notifier  worker.Notifier
	publisher live.Publisher

	queue *queue.InMemoryQueue
	pool  *worker.Pool

	workerCount    int
	queueSize      int
	jobTimeout     time.Duration
	requestTimeout time.Duration
	now            func() time.Time

	started bool
	logger  logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithNotifier enables the notification queue and workers.
func WithNotifier(n worker.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithPublisher sets where committed guests are announced.
func WithPublisher(p live.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithWorkerCount sets the number of notification workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the notification queue capacity.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithJobTimeout bounds the handling of one notification job.
func WithJobTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.jobTimeout = d
		}
	}
}

// WithRequestTimeout bounds the store work of one call.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.requestTimeout = d
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(log logger.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.logger = log
		}
	}
}

// WithClock overrides the time source stamped on notification jobs.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a Service over store.
func New(store repository.Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, ErrNoStore
	}
	s := &Service{
		store:          store,
		workerCount:    runtime.NumCPU(),
		queueSize:      1_000,
		jobTimeout:     10 * time.Second,
		requestTimeout: 5 * time.Second,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	return s, nil
}

// Start launches the notification workers when a notifier is configured.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.notifier != nil {
		s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
		s.pool = worker.NewPool(s.workerCount, s.queue, s.notifier, s.logger, worker.WithJobTimeout(s.jobTimeout))
		s.pool.Start(ctx)
	}

	s.started = true
	s.logger.Info(ctx, "rsvp service started",
		logger.Bool("notifications", s.notifier != nil),
		logger.Bool("live", s.publisher != nil),
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
	)
	return nil
}

// Stop drains pending notifications within ctx. The store is left open for
// its owner to close.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.started = false

	if s.pool != nil {
		if err := s.pool.Shutdown(ctx); err != nil {
			s.logger.Warn(ctx, "notification workers did not drain", logger.Error(err))
			return err
		}
	}
	s.logger.Info(ctx, "rsvp service stopped")
	return nil
}

// Submit stores g and, once committed, announces it and queues its
// notification. Only the store outcome is reported to the caller.
func (s *Service) Submit(ctx context.Context, g model.Guest) (model.Guest, error) { //nolint:gocritic // hugeParam: guest is a value type
	dbCtx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	saved, err := s.store.Insert(dbCtx, g)
	cancel()
	if err != nil {
		metrics.RecordSubmission(resultFailed)
		s.logger.Error(ctx, "rsvp insert failed", logger.Error(err))
		return model.Guest{}, err
	}
	metrics.RecordSubmission(resultStored)

	ctx = logger.WithFields(ctx, logger.Int64("rsvp_id", saved.ID))
	s.logger.Info(ctx, "rsvp stored")

	if s.publisher != nil {
		s.publisher.Publish(ctx, saved)
	}
	s.enqueue(ctx, saved)
	return saved, nil
}

func (s *Service) enqueue(ctx context.Context, g model.Guest) { //nolint:gocritic // hugeParam: guest is a value type
	s.mu.Lock()
	q := s.queue
	s.mu.Unlock()
	if q == nil {
		return
	}
	if err := q.Enqueue(context.WithoutCancel(ctx), model.Notification{Guest: g, EnqueuedAt: s.now()}); err != nil {
		s.logger.Warn(ctx, "notification not queued", logger.Error(err))
	}
}

// List returns guests for the admin listing.
func (s *Service) List(ctx context.Context, f model.Filter) ([]model.Guest, error) {
	ctx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	defer cancel()
	return s.store.List(ctx, f)
}

// Stats summarizes stored guests.
func (s *Service) Stats(ctx context.Context) (model.Stats, error) {
	ctx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	defer cancel()
	return s.store.Stats(ctx)
}

// Ping reports store health.
func (s *Service) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	defer cancel()
	return s.store.Ping(ctx)
}

// QueueLen returns the number of pending notification jobs.
func (s *Service) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue == nil {
		return 0
	}
	return s.queue.Len()
}
