package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/omnichat/gateway/internal/core_domain"
	"github.com/omnichat/gateway/internal/outbound_service/repository"
	"github.com/omnichat/gateway/internal/platform/messagebroker"
	"github.com/omnichat/gateway/internal/provider"
	"github.com/omnichat/gateway/internal/ratelimit"
)

// rateLimitRequeueDelay is the short fixed delay for jobs denied by the rate
// limiter. The denial is not a delivery attempt.
const rateLimitRequeueDelay = 2 * time.Second

// ProviderResolver is the slice of the channel registry the dispatcher needs.
type ProviderResolver interface {
	GetProvider(ctx context.Context, channelID string) (provider.Adapter, error)
}

// DispatcherConfig tunes the outbound worker pool.
type DispatcherConfig struct {
	Concurrency        int
	RateLimitPerMinute int
	BackoffBase        time.Duration
	BackoffCap         time.Duration
	PollInterval       time.Duration
	BatchSize          int
}

func (c *DispatcherConfig) applyDefaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = 5
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

// Dispatcher drives the outbound job state machine:
// queued -> active -> delivered | queued (retry) | failed.
// Jobs are claimed from the durable store and processed by a bounded worker
// pool; text jobs are handed to workers ahead of media jobs.
type Dispatcher struct {
	jobs     repository.OutboundJobRepository
	registry ProviderResolver
	limiter  *ratelimit.Limiter
	broker   messagebroker.Publisher
	logger   *slog.Logger
	cfg      DispatcherConfig

	wake chan struct{}
	now  func() time.Time
}

// NewDispatcher creates an outbound Dispatcher.
func NewDispatcher(
	jobs repository.OutboundJobRepository,
	registry ProviderResolver,
	limiter *ratelimit.Limiter,
	broker messagebroker.Publisher,
	logger *slog.Logger,
	cfg DispatcherConfig,
) *Dispatcher {
	cfg.applyDefaults()
	return &Dispatcher{
		jobs:     jobs,
		registry: registry,
		limiter:  limiter,
		broker:   broker,
		logger:   logger.With("component", "outbound_dispatcher"),
		cfg:      cfg,
		wake:     make(chan struct{}, 1),
		now:      time.Now,
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
	textJobs := make(chan *core_domain.OutboundJob)
	mediaJobs := make(chan *core_domain.OutboundJob)

	var wg sync.WaitGroup
	for i := 0; i < d.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.workerLoop(ctx, textJobs, mediaJobs)
		}()
	}

	d.logger.InfoContext(ctx, "outbound dispatcher started",
		"concurrency", d.cfg.Concurrency, "poll_interval", d.cfg.PollInterval.String())

	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		d.pollOnce(ctx, textJobs, mediaJobs)

		select {
		case <-ctx.Done():
			wg.Wait()
			d.logger.Info("outbound dispatcher stopped")
			return
		case <-ticker.C:
		case <-d.wake:
		}
	}
}

func (d *Dispatcher) pollOnce(ctx context.Context, textJobs, mediaJobs chan<- *core_domain.OutboundJob) {
	if ctx.Err() != nil {
		return
	}

	acquired, err := d.jobs.AcquireDue(ctx, d.now().UTC(), d.cfg.BatchSize)
	if err != nil {
		d.logger.ErrorContext(ctx, "failed to acquire due jobs", "error", err)
		return
	}
	d.observeQueueDepth(ctx)
	if len(acquired) == 0 {
		return
	}

	d.logger.DebugContext(ctx, "acquired outbound jobs", "count", len(acquired))
	for _, job := range acquired {
		target := mediaJobs
		if job.Kind == core_domain.PayloadKindText {
			target = textJobs
		}
		select {
		case target <- job:
		case <-ctx.Done():
			return
		}
	}
}

// workerLoop prefers text jobs: media is only picked up when no text job is
// immediately available.
func (d *Dispatcher) workerLoop(ctx context.Context, textJobs, mediaJobs <-chan *core_domain.OutboundJob) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-textJobs:
			d.processJob(ctx, job)
		default:
		}

		select {
		case <-ctx.Done():
			return
		case job := <-textJobs:
			d.processJob(ctx, job)
		case job := <-mediaJobs:
			d.processJob(ctx, job)
		}
	}
}

func (d *Dispatcher) processJob(ctx context.Context, job *core_domain.OutboundJob) {
	timer := prometheus.NewTimer(outboundJobDurationHist.WithLabelValues(string(job.Kind)))
	defer timer.ObserveDuration()

	logger := d.logger.With("job_id", job.ID, "channel_id", job.ChannelID, "kind", job.Kind)

	if !d.limiter.Allow(job.Recipient, d.cfg.RateLimitPerMinute) {
		// Denials are not attempts; the job goes back with a short delay.
		logger.InfoContext(ctx, "job rate limited, requeueing")
		outboundJobsProcessedCounter.WithLabelValues("rate_limited").Inc()
		if err := d.jobs.Requeue(ctx, job.ID, d.now().UTC().Add(rateLimitRequeueDelay), job.AttemptCount, ""); err != nil {
			logger.ErrorContext(ctx, "failed to requeue rate-limited job", "error", err)
		}
		return
	}

	adapter, err := d.registry.GetProvider(ctx, job.ChannelID)
	if err != nil {
		// Unknown channel or provider: retrying cannot help.
		logger.ErrorContext(ctx, "failed to resolve provider adapter", "error", err)
		d.failJob(ctx, job, job.AttemptCount+1, "resolve provider: "+err.Error())
		return
	}

	var result *provider.SendResult
	switch job.Kind {
	case core_domain.PayloadKindText:
		result = adapter.SendText(ctx, job.ChannelID, job.Recipient, job.Text)
	case core_domain.PayloadKindMedia:
		if job.Media == nil {
			d.failJob(ctx, job, job.AttemptCount+1, "media job has no media payload")
			return
		}
		result = adapter.SendMedia(ctx, job.ChannelID, job.Recipient, *job.Media)
	default:
		d.failJob(ctx, job, job.AttemptCount+1, "unknown payload kind: "+string(job.Kind))
		return
	}

	if result.Success {
		if err := d.jobs.MarkDelivered(ctx, job.ID, result.MessageID); err != nil {
			logger.ErrorContext(ctx, "failed to mark job delivered", "error", err)
			return
		}
		outboundJobsProcessedCounter.WithLabelValues("delivered").Inc()
		logger.InfoContext(ctx, "job delivered", "provider_message_id", result.MessageID)
		d.publishReport(ctx, messagebroker.SubjectOutboundDelivered, job, result.MessageID, "")
		return
	}

	attempt := job.AttemptCount + 1
	if isPermanentFailure(result) {
		logger.WarnContext(ctx, "permanent provider failure", "error", result.Error, "status_code", result.StatusCode)
		d.failJob(ctx, job, attempt, result.Error)
		return
	}

	if attempt >= job.MaxAttempts {
		logger.WarnContext(ctx, "job failed after max attempts", "attempts", attempt, "error", result.Error)
		d.failJob(ctx, job, attempt, result.Error)
		return
	}

	delay := backoffDelay(d.cfg.BackoffBase, d.cfg.BackoffCap, attempt)
	logger.InfoContext(ctx, "transient provider failure, scheduling retry",
		"attempt", attempt, "retry_in", delay.String(), "error", result.Error)
	outboundJobsProcessedCounter.WithLabelValues("retrying").Inc()
	if err := d.jobs.Requeue(ctx, job.ID, d.now().UTC().Add(delay), attempt, result.Error); err != nil {
		logger.ErrorContext(ctx, "failed to requeue job for retry", "error", err)
	}
}

// failJob records the terminal failed state (dead-letter) and reports it.
func (d *Dispatcher) failJob(ctx context.Context, job *core_domain.OutboundJob, attemptCount int, errorMessage string) {
	outboundJobsProcessedCounter.WithLabelValues("failed").Inc()
	if err := d.jobs.MarkFailed(ctx, job.ID, attemptCount, errorMessage); err != nil {
		d.logger.ErrorContext(ctx, "failed to mark job failed", "job_id", job.ID, "error", err)
	}
	d.publishReport(ctx, messagebroker.SubjectOutboundFailed, job, "", errorMessage)
}

// jobReport is the terminal-state event payload.
type jobReport struct {
	JobID             string `json:"jobId"`
	ChannelID         string `json:"channelId"`
	Recipient         string `json:"recipient"`
	ProviderMessageID string `json:"providerMessageId,omitempty"`
	Error             string `json:"error,omitempty"`
}

func (d *Dispatcher) publishReport(ctx context.Context, subject string, job *core_domain.OutboundJob, providerMessageID, errorMessage string) {
	data, err := json.Marshal(jobReport{
		JobID:             job.ID,
		ChannelID:         job.ChannelID,
		Recipient:         job.Recipient,
		ProviderMessageID: providerMessageID,
		Error:             errorMessage,
	})
	if err != nil {
		return
	}
	if err := d.broker.Publish(ctx, subject, data); err != nil {
		d.logger.WarnContext(ctx, "failed to publish job report", "job_id", job.ID, "subject", subject, "error", err)
	}
}

func (d *Dispatcher) observeQueueDepth(ctx context.Context) {
	counts, err := d.jobs.CountByStatus(ctx)
	if err != nil {
		return
	}
	for _, status := range []core_domain.JobStatus{
		core_domain.JobStatusQueued, core_domain.JobStatusActive,
		core_domain.JobStatusDelivered, core_domain.JobStatusFailed,
	} {
		outboundQueueDepthGauge.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}

// isPermanentFailure distinguishes failures backoff cannot help with:
// validation-class 4xx responses and unsupported media kinds. Timeouts, 5xx,
// 408 and 429 remain retriable.
func isPermanentFailure(result *provider.SendResult) bool {
	if strings.Contains(result.Error, "unsupported media kind") {
		return true
	}
	if result.StatusCode >= 400 && result.StatusCode < 500 {
		return result.StatusCode != 408 && result.StatusCode != 429
	}
	return false
}

// backoffDelay is base * 2^attemptCount, capped.
func backoffDelay(base, maxDelay time.Duration, attemptCount int) time.Duration {
	delay := base
	for i := 0; i < attemptCount; i++ {
		delay *= 2
		if delay >= maxDelay {
			return maxDelay
		}
	}
	return delay
}
