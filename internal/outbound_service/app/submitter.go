package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/omnichat/gateway/internal/core_domain"
	"github.com/omnichat/gateway/internal/outbound_service/repository"
	"github.com/omnichat/gateway/internal/platform/messagebroker"
)

// ChannelResolver is the slice of the channel registry the submitter needs.
type ChannelResolver interface {
	GetChannel(ctx context.Context, id string) (*core_domain.Channel, error)
}

// SubmitRequest is one outbound send request from the business layer.
type SubmitRequest struct {
	ChannelID string
	To        string
	Kind      core_domain.PayloadKind
	Text      string
	Media     *core_domain.Media
}

// Submitter accepts outbound send requests and enqueues them. Delivery outcome
// is observed asynchronously via the job id and terminal-state events.
type Submitter struct {
	jobs        repository.OutboundJobRepository
	channels    ChannelResolver
	broker      messagebroker.Publisher
	logger      *slog.Logger
	maxAttempts int
}

// NewSubmitter creates a Submitter. maxAttempts bounds delivery attempts per
// job; zero or negative selects the default.
func NewSubmitter(jobs repository.OutboundJobRepository, channels ChannelResolver, broker messagebroker.Publisher, logger *slog.Logger, maxAttempts int) *Submitter {
	if maxAttempts <= 0 {
		maxAttempts = core_domain.DefaultMaxAttempts
	}
	return &Submitter{
		jobs:        jobs,
		channels:    channels,
		broker:      broker,
		logger:      logger.With("component", "outbound_submitter"),
		maxAttempts: maxAttempts,
	}
}

// Submit validates the request, persists a queued job, and returns immediately.
func (s *Submitter) Submit(ctx context.Context, req SubmitRequest) (*core_domain.OutboundJob, error) {
	if err := validateSubmit(req); err != nil {
		return nil, err
	}

	// Fail fast on unknown channels instead of dead-lettering later.
	if _, err := s.channels.GetChannel(ctx, req.ChannelID); err != nil {
		return nil, err
	}

	job := &core_domain.OutboundJob{
		ChannelID:     req.ChannelID,
		Recipient:     req.To,
		Kind:          req.Kind,
		Text:          req.Text,
		Media:         req.Media,
		Status:        core_domain.JobStatusQueued,
		MaxAttempts:   s.maxAttempts,
		NextAttemptAt: time.Now().UTC(),
	}
	created, err := s.jobs.Create(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("enqueue outbound job: %w", err)
	}
	outboundJobsSubmittedCounter.WithLabelValues(string(req.Kind)).Inc()

	// Wake the dispatcher ahead of its next poll. Best effort: the poll loop
	// picks the job up regardless.
	wake, _ := json.Marshal(map[string]string{"jobId": created.ID})
	if err := s.broker.Publish(ctx, messagebroker.SubjectOutboundEnqueued, wake); err != nil {
		s.logger.WarnContext(ctx, "failed to publish enqueue wake-up", "job_id", created.ID, "error", err)
	}

	s.logger.InfoContext(ctx, "outbound job enqueued",
		"job_id", created.ID, "channel_id", req.ChannelID, "kind", req.Kind)
	return created, nil
}

func validateSubmit(req SubmitRequest) error {
	if req.ChannelID == "" {
		return fmt.Errorf("channelId is required")
	}
	if req.To == "" {
		return fmt.Errorf("recipient is required")
	}
	switch req.Kind {
	case core_domain.PayloadKindText:
		if req.Text == "" {
			return fmt.Errorf("text content is required for text jobs")
		}
	case core_domain.PayloadKindMedia:
		if req.Media == nil || req.Media.URL == "" {
			return fmt.Errorf("media url is required for media jobs")
		}
		if req.Media.Kind == "" {
			return fmt.Errorf("media kind is required for media jobs")
		}
	default:
		return fmt.Errorf("unknown payload kind: %q", req.Kind)
	}
	return nil
}
