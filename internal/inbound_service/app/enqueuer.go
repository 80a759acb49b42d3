package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/omnichat/gateway/internal/core_domain"
	"github.com/omnichat/gateway/internal/inbound_service/repository"
	"github.com/omnichat/gateway/internal/platform/messagebroker"
)

// Enqueuer persists normalized inbound messages into the durable queue and
// wakes the inbound workers. The webhook endpoint acknowledges a message only
// after Enqueue returns, so accepted messages survive worker restarts.
type Enqueuer struct {
	jobs        repository.InboundJobRepository
	broker      messagebroker.Publisher
	logger      *slog.Logger
	maxAttempts int
}

// NewEnqueuer creates an Enqueuer. maxAttempts bounds processing retries per
// message; zero or negative selects the default.
func NewEnqueuer(jobs repository.InboundJobRepository, broker messagebroker.Publisher, logger *slog.Logger, maxAttempts int) *Enqueuer {
	if maxAttempts <= 0 {
		maxAttempts = core_domain.DefaultMaxAttempts
	}
	return &Enqueuer{
		jobs:        jobs,
		broker:      broker,
		logger:      logger.With("component", "inbound_enqueuer"),
		maxAttempts: maxAttempts,
	}
}

// Enqueue persists the message as a queued job and returns once it is durable.
func (e *Enqueuer) Enqueue(ctx context.Context, msg core_domain.InboundMessage) error {
	if msg.MessageID == "" {
		return fmt.Errorf("inbound message without message id from %s", msg.Provider)
	}

	job := &core_domain.InboundJob{
		Message:       msg,
		Status:        core_domain.JobStatusQueued,
		MaxAttempts:   e.maxAttempts,
		NextAttemptAt: time.Now().UTC(),
	}
	created, err := e.jobs.Create(ctx, job)
	if err != nil {
		return fmt.Errorf("enqueue inbound job: %w", err)
	}
	inboundMessagesReceivedCounter.WithLabelValues(msg.Provider).Inc()

	// Wake the workers ahead of their next poll. Best effort: the poll loop
	// picks the job up regardless.
	wake, _ := json.Marshal(map[string]string{"jobId": created.ID})
	if err := e.broker.Publish(ctx, messagebroker.SubjectInboundMessagePrefix+msg.Provider, wake); err != nil {
		e.logger.WarnContext(ctx, "failed to publish inbound wake-up", "job_id", created.ID, "error", err)
	}

	e.logger.InfoContext(ctx, "inbound message enqueued",
		"job_id", created.ID, "provider", msg.Provider, "message_id", msg.MessageID, "channel_id", msg.ChannelID)
	return nil
}
