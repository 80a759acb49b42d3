package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/omnichat/gateway/internal/core_domain"
	"github.com/omnichat/gateway/internal/outbound_service/repository"
)

type pgOutboundJobRepository struct {
	db *pgxpool.Pool
}

// NewPgOutboundJobRepository creates the PostgreSQL outbound job repository.
func NewPgOutboundJobRepository(db *pgxpool.Pool) repository.OutboundJobRepository {
	return &pgOutboundJobRepository{db: db}
}

const jobColumns = `id, channel_id, recipient, kind, text_content, media, status,
	attempt_count, max_attempts, next_attempt_at, provider_message_id, error_message,
	created_at, updated_at`

func scanJob(row pgx.Row) (*core_domain.OutboundJob, error) {
	job := &core_domain.OutboundJob{}
	var mediaJSON []byte
	err := row.Scan(
		&job.ID, &job.ChannelID, &job.Recipient, &job.Kind, &job.Text, &mediaJSON,
		&job.Status, &job.AttemptCount, &job.MaxAttempts, &job.NextAttemptAt,
		&job.ProviderMessageID, &job.ErrorMessage, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrJobNotFound
		}
		return nil, err
	}
	if len(mediaJSON) > 0 {
		job.Media = &core_domain.Media{}
		if err := json.Unmarshal(mediaJSON, job.Media); err != nil {
			return nil, fmt.Errorf("decode media payload for job %s: %w", job.ID, err)
		}
	}
	return job, nil
}

func (r *pgOutboundJobRepository) Create(ctx context.Context, job *core_domain.OutboundJob) (*core_domain.OutboundJob, error) {
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

	var mediaJSON []byte
	if job.Media != nil {
		var err error
		mediaJSON, err = json.Marshal(job.Media)
		if err != nil {
			return nil, fmt.Errorf("encode media payload: %w", err)
		}
	}

	query := `
		INSERT INTO outbound_jobs (
			id, channel_id, recipient, kind, text_content, media, status,
			attempt_count, max_attempts, next_attempt_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		job.ID, job.ChannelID, job.Recipient, job.Kind, job.Text, mediaJSON,
		job.Status, job.AttemptCount, job.MaxAttempts, job.NextAttemptAt,
	).Scan(&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (r *pgOutboundJobRepository) GetByID(ctx context.Context, id string) (*core_domain.OutboundJob, error) {
	query := `SELECT ` + jobColumns + ` FROM outbound_jobs WHERE id = $1`
	return scanJob(r.db.QueryRow(ctx, query, id))
}

// AcquireDue claims due queued jobs with FOR UPDATE SKIP LOCKED so concurrent
// dispatchers never double-claim. Text jobs sort ahead of media jobs.
func (r *pgOutboundJobRepository) AcquireDue(ctx context.Context, now time.Time, limit int) ([]*core_domain.OutboundJob, error) {
	query := `
		UPDATE outbound_jobs
		SET status = 'active', updated_at = now()
		WHERE id IN (
			SELECT id FROM outbound_jobs
			WHERE status = 'queued' AND next_attempt_at <= $1
			ORDER BY (kind = 'text') DESC, next_attempt_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + jobColumns

	rows, err := r.db.Query(ctx, query, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*core_domain.OutboundJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (r *pgOutboundJobRepository) MarkDelivered(ctx context.Context, id, providerMessageID string) error {
	query := `
		UPDATE outbound_jobs
		SET status = 'delivered', provider_message_id = $2, error_message = '', updated_at = now()
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, id, providerMessageID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrJobNotFound
	}
	return nil
}

func (r *pgOutboundJobRepository) MarkFailed(ctx context.Context, id string, attemptCount int, errorMessage string) error {
	query := `
		UPDATE outbound_jobs
		SET status = 'failed', attempt_count = $2, error_message = $3, updated_at = now()
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, id, attemptCount, errorMessage)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrJobNotFound
	}
	return nil
}

func (r *pgOutboundJobRepository) Requeue(ctx context.Context, id string, nextAttemptAt time.Time, attemptCount int, errorMessage string) error {
	query := `
		UPDATE outbound_jobs
		SET status = 'queued', next_attempt_at = $2, attempt_count = $3, error_message = $4, updated_at = now()
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, id, nextAttemptAt, attemptCount, errorMessage)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrJobNotFound
	}
	return nil
}

func (r *pgOutboundJobRepository) ListFailed(ctx context.Context, limit int) ([]*core_domain.OutboundJob, error) {
	query := `SELECT ` + jobColumns + ` FROM outbound_jobs WHERE status = 'failed' ORDER BY updated_at DESC LIMIT $1`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*core_domain.OutboundJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (r *pgOutboundJobRepository) CountByStatus(ctx context.Context) (map[core_domain.JobStatus]int, error) {
	rows, err := r.db.Query(ctx, `SELECT status, count(*) FROM outbound_jobs GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[core_domain.JobStatus]int)
	for rows.Next() {
		var status core_domain.JobStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}
