package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/omnichat/gateway/internal/inbound_service/domain"
)

type pgProcessedMessageStore struct {
	db *pgxpool.Pool
}

// NewPgProcessedMessageStore creates the PostgreSQL processed-message store.
func NewPgProcessedMessageStore(db *pgxpool.Pool) domain.ProcessedMessageStore {
	return &pgProcessedMessageStore{db: db}
}

// MarkProcessed inserts the (provider, message id) pair; a conflict means the
// message was already consumed. The insert doubles as the atomic first-seen
// check, so two workers racing the same redelivery cannot both win.
func (s *pgProcessedMessageStore) MarkProcessed(ctx context.Context, provider, messageID string) (bool, error) {
	query := `
		INSERT INTO processed_messages (provider, message_id, processed_at)
		VALUES ($1, $2, now())
		ON CONFLICT (provider, message_id) DO NOTHING
	`
	tag, err := s.db.Exec(ctx, query, provider, messageID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Forget deletes the (provider, message id) pair. Called when forwarding
// failed after the claim was taken, so the retry attempt can win it again.
func (s *pgProcessedMessageStore) Forget(ctx context.Context, provider, messageID string) error {
	query := `DELETE FROM processed_messages WHERE provider = $1 AND message_id = $2`
	_, err := s.db.Exec(ctx, query, provider, messageID)
	return err
}
