package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/omnichat/gateway/internal/channel_service/domain"
	"github.com/omnichat/gateway/internal/channel_service/repository"
	"github.com/omnichat/gateway/internal/core_domain"
	"github.com/omnichat/gateway/internal/provider"
	"github.com/omnichat/gateway/internal/vault"
)

// adapterConstructor builds a provider adapter; replaced in tests.
type adapterConstructor func(name string, cfg provider.Config) (provider.Adapter, error)

// Registry owns channel records and lazily materializes provider adapters.
// The adapter cache is the only long-lived shared mutable structure in the
// gateway: reads are concurrent, writes are serialized, and entries are
// invalidated whenever their channel is updated or deleted. A cache miss is
// always recoverable by reconstruction from the persisted channel.
type Registry struct {
	repo       repository.ChannelRepository
	vault      *vault.Vault
	logger     *slog.Logger
	baseURLs   map[string]string
	httpClient *http.Client
	newAdapter adapterConstructor

	mu       sync.RWMutex
	adapters map[string]provider.Adapter
}

// NewRegistry constructs the channel registry. baseURLs optionally overrides
// provider API endpoints (used to point adapters at test doubles).
func NewRegistry(repo repository.ChannelRepository, v *vault.Vault, logger *slog.Logger, baseURLs map[string]string) *Registry {
	return &Registry{
		repo:       repo,
		vault:      v,
		logger:     logger.With("component", "channel_registry"),
		baseURLs:   baseURLs,
		newAdapter: provider.New,
		adapters:   make(map[string]provider.Adapter),
	}
}

// CreateChannel encrypts the plaintext credential and persists a new channel.
// The plaintext is not retained after the call returns.
func (r *Registry) CreateChannel(ctx context.Context, tenantID, providerName, plaintextCredential, phoneNumber string) (*core_domain.Channel, error) {
	if !provider.Supported(providerName) {
		return nil, fmt.Errorf("%w: %q", provider.ErrUnsupportedProvider, providerName)
	}
	if plaintextCredential == "" {
		return nil, fmt.Errorf("credential is required")
	}

	encrypted, err := r.vault.Encrypt(plaintextCredential)
	if err != nil {
		return nil, fmt.Errorf("encrypt credential: %w", err)
	}

	channel := &core_domain.Channel{
		TenantID:            tenantID,
		Provider:            providerName,
		CredentialEncrypted: encrypted,
		PhoneNumber:         phoneNumber,
		Status:              core_domain.ChannelStatusInactive,
	}
	created, err := r.repo.Create(ctx, channel)
	if err != nil {
		return nil, err
	}

	r.logger.InfoContext(ctx, "channel created",
		"channel_id", created.ID, "tenant_id", tenantID, "provider", providerName)
	return created, nil
}

// GetChannel returns the channel by id.
func (r *Registry) GetChannel(ctx context.Context, id string) (*core_domain.Channel, error) {
	return r.repo.GetByID(ctx, id)
}

// GetChannelsByTenant lists a tenant's channels.
func (r *Registry) GetChannelsByTenant(ctx context.Context, tenantID string) ([]*core_domain.Channel, error) {
	return r.repo.GetByTenant(ctx, tenantID)
}

// ResolveByProviderPhone finds the channel a webhook payload belongs to.
func (r *Registry) ResolveByProviderPhone(ctx context.Context, providerName, phoneNumber string) (*core_domain.Channel, error) {
	return r.repo.GetByProviderPhone(ctx, providerName, phoneNumber)
}

// UpdateChannel applies a patch. A new plaintext credential is encrypted before
// persistence. Any cached adapter for the channel is invalidated.
func (r *Registry) UpdateChannel(ctx context.Context, id string, patch core_domain.ChannelPatch) (*core_domain.Channel, error) {
	channel, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.PlaintextCredential != nil {
		encrypted, err := r.vault.Encrypt(*patch.PlaintextCredential)
		if err != nil {
			return nil, fmt.Errorf("encrypt credential: %w", err)
		}
		channel.CredentialEncrypted = encrypted
	}
	if patch.PhoneNumber != nil {
		channel.PhoneNumber = *patch.PhoneNumber
	}
	if patch.Status != nil {
		channel.Status = *patch.Status
	}

	if err := r.repo.Update(ctx, channel); err != nil {
		return nil, err
	}
	r.invalidate(id)

	r.logger.InfoContext(ctx, "channel updated", "channel_id", id)
	return channel, nil
}

// SetStatus records a provider-reported connectivity transition.
func (r *Registry) SetStatus(ctx context.Context, id string, status core_domain.ChannelStatus) error {
	_, err := r.UpdateChannel(ctx, id, core_domain.ChannelPatch{Status: &status})
	return err
}

// DeleteChannel removes the channel and drops its adapter cache entry
// immediately. The provider-side session is closed best effort first,
// resolving the adapter even when the channel was never used in this process.
func (r *Registry) DeleteChannel(ctx context.Context, id string) (bool, error) {
	adapter, err := r.GetProvider(ctx, id)
	switch {
	case err == nil:
		adapter.Disconnect(ctx, id)
	case !errors.Is(err, domain.ErrChannelNotFound):
		r.logger.WarnContext(ctx, "skipping provider disconnect for channel delete",
			"channel_id", id, "error", err)
	}
	r.invalidate(id)

	deleted, err := r.repo.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	if deleted {
		r.logger.InfoContext(ctx, "channel deleted", "channel_id", id)
	}
	return deleted, nil
}

// GetProvider returns the adapter for the channel, constructing and caching it
// on first access. The credential is decrypted transiently for construction.
func (r *Registry) GetProvider(ctx context.Context, channelID string) (provider.Adapter, error) {
	r.mu.RLock()
	adapter, ok := r.adapters[channelID]
	r.mu.RUnlock()
	if ok {
		return adapter, nil
	}

	channel, err := r.repo.GetByID(ctx, channelID)
	if err != nil {
		return nil, err
	}

	credential, err := r.vault.Decrypt(channel.CredentialEncrypted)
	if err != nil {
		return nil, fmt.Errorf("decrypt credential for channel %s: %w", channelID, err)
	}

	adapter, err = r.newAdapter(channel.Provider, provider.Config{
		Credential: credential,
		BaseURL:    r.baseURLs[channel.Provider],
		HTTPClient: r.httpClient,
		Logger:     r.logger,
	})
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Another worker may have raced construction; keep the first entry.
	if existing, ok := r.adapters[channelID]; ok {
		return existing, nil
	}
	r.adapters[channelID] = adapter
	return adapter, nil
}

func (r *Registry) invalidate(channelID string) {
	r.mu.Lock()
	delete(r.adapters, channelID)
	r.mu.Unlock()
}
