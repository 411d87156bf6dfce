// Package recorder persists study responses in the background. It implements
// the session's persistence port: Save hands a review to a bounded queue and
// returns at once, and a fixed pool of workers writes queued reviews to the
// store, retrying failures with exponential backoff.
package recorder

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/conorfennell/flashstudy/internal/domain"
)

// Store is where reviews end up.
type Store interface {
	SaveReview(ctx context.Context, r domain.Review) error
}

// Config sizes the worker pool and the retry policy.
type Config struct {
	Workers        int
	QueueSize      int
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Workers:        2,
		QueueSize:      256,
		MaxAttempts:    5,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
	}
}

// Counts reports what happened to the reviews handed to Save.
type Counts struct {
	Saved   int64 `json:"saved"`
	Failed  int64 `json:"failed"`
	Dropped int64 `json:"dropped"`
}

// Recorder writes reviews to a Store from a pool of goroutines.
type Recorder struct {
	store  Store
	cfg    Config
	logger *slog.Logger

	jobs    chan domain.Review
	wg      sync.WaitGroup
	closeMu sync.RWMutex
	closed  bool

	saved   atomic.Int64
	failed  atomic.Int64
	dropped atomic.Int64

	// OnError, if set, is called with every review that could not be saved.
	OnError func(domain.Review, error)
}

// New creates a Recorder. Call Start before saving and Close when done.
func New(store Store, cfg Config, logger *slog.Logger) *Recorder {
	d := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = d.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.Workers * 2
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = d.MaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = d.InitialBackoff
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		store:  store,
		cfg:    cfg,
		logger: logger,
		jobs:   make(chan domain.Review, cfg.QueueSize),
	}
}

// Start launches the workers. They run until Close drains the queue or ctx is
// cancelled; cancellation also abandons any retry in progress.
func (r *Recorder) Start(ctx context.Context) {
	for i := 0; i < r.cfg.Workers; i++ {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case review, ok := <-r.jobs:
					if !ok {
						return
					}
					r.write(ctx, review)
				}
			}
		}()
	}
}

// Save queues a review and returns immediately. When the queue is full or the
// recorder is closed the review is dropped and logged.
func (r *Recorder) Save(review domain.Review) {
	r.closeMu.RLock()
	defer r.closeMu.RUnlock()
	if r.closed {
		r.drop(review, "recorder closed")
		return
	}
	select {
	case r.jobs <- review:
	default:
		r.drop(review, "queue full")
	}
}

func (r *Recorder) drop(review domain.Review, reason string) {
	r.dropped.Add(1)
	r.logger.Warn("dropping review", "card", review.CardID, "reason", reason)
}

func (r *Recorder) write(ctx context.Context, review domain.Review) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.InitialBackoff
	b.MaxInterval = r.cfg.MaxBackoff
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.cfg.MaxAttempts-1)), ctx)

	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		return r.store.SaveReview(ctx, review)
	}, policy, func(err error, wait time.Duration) {
		r.logger.Debug("retrying review save", "card", review.CardID, "attempt", attempt, "wait", wait, "error", err)
	})
	if err != nil {
		r.failed.Add(1)
		r.logger.Error("failed to save review", "card", review.CardID, "attempts", attempt, "error", err)
		if r.OnError != nil {
			r.OnError(review, err)
		}
		return
	}
	r.saved.Add(1)
}

// Close stops accepting reviews and waits for the queued ones to be written.
func (r *Recorder) Close() {
	r.closeMu.Lock()
	if r.closed {
		r.closeMu.Unlock()
		return
	}
	r.closed = true
	close(r.jobs)
	r.closeMu.Unlock()
	r.wg.Wait()
}

// Counts returns the running totals.
func (r *Recorder) Counts() Counts {
	return Counts{
		Saved:   r.saved.Load(),
		Failed:  r.failed.Load(),
		Dropped: r.dropped.Load(),
	}
}
