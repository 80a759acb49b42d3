package repository

import (
	"context"
	"errors"
	"time"

	"github.com/omnichat/gateway/internal/core_domain"
)

// ErrJobNotFound is returned for unknown job ids.
var ErrJobNotFound = errors.New("outbound job not found")

// OutboundJobRepository is the durable queue store for outbound jobs.
//
// AcquireDue must implement single-claim semantics: a job returned to one
// caller is marked active and is not handed to any other caller until it is
// requeued, so attempts for one job are strictly sequential.
type OutboundJobRepository interface {
	Create(ctx context.Context, job *core_domain.OutboundJob) (*core_domain.OutboundJob, error)
	GetByID(ctx context.Context, id string) (*core_domain.OutboundJob, error)
	// AcquireDue atomically claims up to limit queued jobs whose NextAttemptAt
	// is due, marking them active. Text jobs are returned before media jobs.
	AcquireDue(ctx context.Context, now time.Time, limit int) ([]*core_domain.OutboundJob, error)
	MarkDelivered(ctx context.Context, id, providerMessageID string) error
	MarkFailed(ctx context.Context, id string, attemptCount int, errorMessage string) error
	// Requeue returns a job to the queue for a later attempt.
	Requeue(ctx context.Context, id string, nextAttemptAt time.Time, attemptCount int, errorMessage string) error
	// ListFailed is the dead-letter listing: terminal failed jobs, newest first.
	ListFailed(ctx context.Context, limit int) ([]*core_domain.OutboundJob, error)
	CountByStatus(ctx context.Context) (map[core_domain.JobStatus]int, error)
}
