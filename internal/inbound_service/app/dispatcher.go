package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/omnichat/gateway/internal/core_domain"
	"github.com/omnichat/gateway/internal/inbound_service/repository"
)

// DispatcherConfig tunes the inbound worker pool.
type DispatcherConfig struct {
	Concurrency  int
	BackoffBase  time.Duration
	BackoffCap   time.Duration
	PollInterval time.Duration
	BatchSize    int
}

func (c *DispatcherConfig) applyDefaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = 10
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 2 * time.Second
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = time.Minute
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 25
	}
}

// Dispatcher drives the inbound job state machine:
// queued -> active -> processed | queued (retry) | failed.
// Jobs are claimed from the durable store and handed to a bounded worker
// pool; processing failures are retried with backoff and exhausted jobs
// dead-letter as failed.
type Dispatcher struct {
	jobs      repository.InboundJobRepository
	processor *Processor
	logger    *slog.Logger
	cfg       DispatcherConfig

	wake chan struct{}
	now  func() time.Time
}

// NewDispatcher creates an inbound Dispatcher.
func NewDispatcher(jobs repository.InboundJobRepository, processor *Processor, logger *slog.Logger, cfg DispatcherConfig) *Dispatcher {
	cfg.applyDefaults()
	return &Dispatcher{
		jobs:      jobs,
		processor: processor,
		logger:    logger.With("component", "inbound_dispatcher"),
		cfg:       cfg,
		wake:      make(chan struct{}, 1),
		now:       time.Now,
	}
}

// Notify nudges the dispatcher to poll ahead of its next interval. Safe to
// call from any goroutine; duplicate nudges coalesce.
func (d *Dispatcher) Notify() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Run polls for due jobs and feeds the worker pool until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	jobs := make(chan *core_domain.InboundJob)

	var wg sync.WaitGroup
	for i := 0; i < d.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job := <-jobs:
					d.processJob(ctx, job)
				}
			}
		}()
	}

	d.logger.InfoContext(ctx, "inbound dispatcher started",
		"concurrency", d.cfg.Concurrency, "poll_interval", d.cfg.PollInterval.String())

	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		d.pollOnce(ctx, jobs)

		select {
		case <-ctx.Done():
			wg.Wait()
			d.logger.Info("inbound dispatcher stopped")
			return
		case <-ticker.C:
		case <-d.wake:
		}
	}
}

func (d *Dispatcher) pollOnce(ctx context.Context, jobs chan<- *core_domain.InboundJob) {
	if ctx.Err() != nil {
		return
	}

	acquired, err := d.jobs.AcquireDue(ctx, d.now().UTC(), d.cfg.BatchSize)
	if err != nil {
		d.logger.ErrorContext(ctx, "failed to acquire due inbound jobs", "error", err)
		return
	}
	if len(acquired) == 0 {
		return
	}

	d.logger.DebugContext(ctx, "acquired inbound jobs", "count", len(acquired))
	for _, job := range acquired {
		select {
		case jobs <- job:
		case <-ctx.Done():
			return
		}
	}
}

// processJob runs one attempt. A processing failure requeues the job with
// backoff until its attempts are exhausted, then dead-letters it; the message
// itself stays durable throughout.
func (d *Dispatcher) processJob(ctx context.Context, job *core_domain.InboundJob) {
	logger := d.logger.With("job_id", job.ID,
		"provider", job.Message.Provider, "message_id", job.Message.MessageID)

	err := d.processor.ProcessMessage(ctx, job.Message)
	if err == nil {
		if markErr := d.jobs.MarkDone(ctx, job.ID); markErr != nil {
			logger.ErrorContext(ctx, "failed to mark inbound job processed", "error", markErr)
		}
		return
	}

	attempt := job.AttemptCount + 1
	if attempt >= job.MaxAttempts {
		logger.WarnContext(ctx, "inbound job failed after max attempts", "attempts", attempt, "error", err)
		if markErr := d.jobs.MarkFailed(ctx, job.ID, attempt, err.Error()); markErr != nil {
			logger.ErrorContext(ctx, "failed to mark inbound job failed", "error", markErr)
		}
		return
	}

	delay := inboundBackoffDelay(d.cfg.BackoffBase, d.cfg.BackoffCap, attempt)
	logger.InfoContext(ctx, "inbound processing failed, scheduling retry",
		"attempt", attempt, "retry_in", delay.String(), "error", err)
	if reqErr := d.jobs.Requeue(ctx, job.ID, d.now().UTC().Add(delay), attempt, err.Error()); reqErr != nil {
		logger.ErrorContext(ctx, "failed to requeue inbound job", "error", reqErr)
	}
}

// inboundBackoffDelay is base * 2^attemptCount, capped.
func inboundBackoffDelay(base, maxDelay time.Duration, attemptCount int) time.Duration {
	delay := base
	for i := 0; i < attemptCount; i++ {
		delay *= 2
		if delay >= maxDelay {
			return maxDelay
		}
	}
	return delay
}
