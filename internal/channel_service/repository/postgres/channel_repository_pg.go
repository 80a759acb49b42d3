package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/omnichat/gateway/internal/channel_service/domain"
	"github.com/omnichat/gateway/internal/channel_service/repository"
	"github.com/omnichat/gateway/internal/core_domain"
)

const uniqueViolationCode = "23505"

type pgChannelRepository struct {
	db *pgxpool.Pool
}

// NewPgChannelRepository creates the PostgreSQL channel repository.
func NewPgChannelRepository(db *pgxpool.Pool) repository.ChannelRepository {
	return &pgChannelRepository{db: db}
}

const channelColumns = `id, tenant_id, provider, credential_encrypted, phone_number, status, created_at, updated_at`

func scanChannel(row pgx.Row) (*core_domain.Channel, error) {
	ch := &core_domain.Channel{}
	err := row.Scan(
		&ch.ID, &ch.TenantID, &ch.Provider, &ch.CredentialEncrypted,
		&ch.PhoneNumber, &ch.Status, &ch.CreatedAt, &ch.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrChannelNotFound
		}
		return nil, err
	}
	return ch, nil
}

func (r *pgChannelRepository) Create(ctx context.Context, channel *core_domain.Channel) (*core_domain.Channel, error) {
	if channel.ID == "" {
		channel.ID = uuid.NewString()
	}

	query := `
		INSERT INTO channels (` + channelColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		channel.ID, channel.TenantID, channel.Provider, channel.CredentialEncrypted,
		channel.PhoneNumber, channel.Status,
	).Scan(&channel.CreatedAt, &channel.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return nil, domain.ErrDuplicateChannel
		}
		return nil, err
	}
	return channel, nil
}

func (r *pgChannelRepository) GetByID(ctx context.Context, id string) (*core_domain.Channel, error) {
	query := `SELECT ` + channelColumns + ` FROM channels WHERE id = $1`
	return scanChannel(r.db.QueryRow(ctx, query, id))
}

func (r *pgChannelRepository) GetByTenant(ctx context.Context, tenantID string) ([]*core_domain.Channel, error) {
	query := `SELECT ` + channelColumns + ` FROM channels WHERE tenant_id = $1 ORDER BY created_at`
	rows, err := r.db.Query(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var channels []*core_domain.Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}

func (r *pgChannelRepository) GetByProviderPhone(ctx context.Context, providerName, phoneNumber string) (*core_domain.Channel, error) {
	query := `SELECT ` + channelColumns + ` FROM channels WHERE provider = $1 AND phone_number = $2`
	return scanChannel(r.db.QueryRow(ctx, query, providerName, phoneNumber))
}

func (r *pgChannelRepository) Update(ctx context.Context, channel *core_domain.Channel) error {
	query := `
		UPDATE channels
		SET credential_encrypted = $2, phone_number = $3, status = $4, updated_at = now()
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query,
		channel.ID, channel.CredentialEncrypted, channel.PhoneNumber, channel.Status,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrChannelNotFound
	}
	return nil
}

func (r *pgChannelRepository) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM channels WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
