package repository

import (
	"context"
	"errors"
	"time"

	"github.com/omnichat/gateway/internal/core_domain"
)

// ErrInboundJobNotFound is returned for unknown inbound job ids.
var ErrInboundJobNotFound = errors.New("inbound job not found")

// InboundJobRepository is the durable queue store for inbound messages.
//
// AcquireDue carries the same single-claim contract as the outbound queue: a
// job handed to one caller is marked active and withheld from every other
// caller until requeued, so attempts for one job are strictly sequential.
type InboundJobRepository interface {
	Create(ctx context.Context, job *core_domain.InboundJob) (*core_domain.InboundJob, error)
	// AcquireDue atomically claims up to limit queued jobs whose NextAttemptAt
	// is due, marking them active.
	AcquireDue(ctx context.Context, now time.Time, limit int) ([]*core_domain.InboundJob, error)
	MarkDone(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, attemptCount int, errorMessage string) error
	// Requeue returns a job to the queue for a later attempt.
	Requeue(ctx context.Context, id string, nextAttemptAt time.Time, attemptCount int, errorMessage string) error
}
