package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/omnichat/gateway/internal/core_domain"
	"github.com/omnichat/gateway/internal/inbound_service/repository"
)

type pgInboundJobRepository struct {
	db *pgxpool.Pool
}

// NewPgInboundJobRepository creates the PostgreSQL inbound job repository.
func NewPgInboundJobRepository(db *pgxpool.Pool) repository.InboundJobRepository {
	return &pgInboundJobRepository{db: db}
}

const inboundJobColumns = `id, message, status, attempt_count, max_attempts,
	next_attempt_at, error_message, created_at, updated_at`

func scanInboundJob(row pgx.Row) (*core_domain.InboundJob, error) {
	job := &core_domain.InboundJob{}
	var messageJSON []byte
	err := row.Scan(
		&job.ID, &messageJSON, &job.Status, &job.AttemptCount, &job.MaxAttempts,
		&job.NextAttemptAt, &job.ErrorMessage, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(messageJSON, &job.Message); err != nil {
		return nil, fmt.Errorf("decode message payload for inbound job %s: %w", job.ID, err)
	}
	return job, nil
}

func (r *pgInboundJobRepository) Create(ctx context.Context, job *core_domain.InboundJob) (*core_domain.InboundJob, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = core_domain.JobStatusQueued
	}
	if job.MaxAttempts == 0 {
		job.MaxAttempts = core_domain.DefaultMaxAttempts
	}
	if job.NextAttemptAt.IsZero() {
		job.NextAttemptAt = time.Now().UTC()
	}

	messageJSON, err := json.Marshal(job.Message)
	if err != nil {
		return nil, fmt.Errorf("encode message payload: %w", err)
	}

	query := `
		INSERT INTO inbound_jobs (
			id, provider, message, status, attempt_count, max_attempts,
			next_attempt_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		RETURNING created_at, updated_at
	`
	err = r.db.QueryRow(ctx, query,
		job.ID, job.Message.Provider, messageJSON, job.Status,
		job.AttemptCount, job.MaxAttempts, job.NextAttemptAt,
	).Scan(&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return job, nil
}

// AcquireDue claims due queued jobs with FOR UPDATE SKIP LOCKED so concurrent
// workers never double-claim.
func (r *pgInboundJobRepository) AcquireDue(ctx context.Context, now time.Time, limit int) ([]*core_domain.InboundJob, error) {
	query := `
		UPDATE inbound_jobs
		SET status = 'active', updated_at = now()
		WHERE id IN (
			SELECT id FROM inbound_jobs
			WHERE status = 'queued' AND next_attempt_at <= $1
			ORDER BY next_attempt_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + inboundJobColumns

	rows, err := r.db.Query(ctx, query, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*core_domain.InboundJob
	for rows.Next() {
		job, err := scanInboundJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (r *pgInboundJobRepository) MarkDone(ctx context.Context, id string) error {
	query := `
		UPDATE inbound_jobs
		SET status = 'processed', error_message = '', updated_at = now()
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrInboundJobNotFound
	}
	return nil
}

func (r *pgInboundJobRepository) MarkFailed(ctx context.Context, id string, attemptCount int, errorMessage string) error {
	query := `
		UPDATE inbound_jobs
		SET status = 'failed', attempt_count = $2, error_message = $3, updated_at = now()
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, id, attemptCount, errorMessage)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrInboundJobNotFound
	}
	return nil
}

func (r *pgInboundJobRepository) Requeue(ctx context.Context, id string, nextAttemptAt time.Time, attemptCount int, errorMessage string) error {
	query := `
		UPDATE inbound_jobs
		SET status = 'queued', next_attempt_at = $2, attempt_count = $3, error_message = $4, updated_at = now()
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, id, nextAttemptAt, attemptCount, errorMessage)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrInboundJobNotFound
	}
	return nil
}
