package repository

import (
	"context"

	"github.com/omnichat/gateway/internal/core_domain"
)

// ChannelRepository persists channel records. Credentials reach this layer
// already encrypted; the repository never sees plaintext.
type ChannelRepository interface {
	Create(ctx context.Context, channel *core_domain.Channel) (*core_domain.Channel, error)
	GetByID(ctx context.Context, id string) (*core_domain.Channel, error)
	GetByTenant(ctx context.Context, tenantID string) ([]*core_domain.Channel, error)
	// GetByProviderPhone resolves the channel a webhook payload belongs to,
	// by provider name and the provider-side account phone number.
	GetByProviderPhone(ctx context.Context, providerName, phoneNumber string) (*core_domain.Channel, error)
	Update(ctx context.Context, channel *core_domain.Channel) error
	Delete(ctx context.Context, id string) (bool, error)
}
