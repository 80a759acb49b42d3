package app

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/omnichat/gateway/internal/channel_service/domain"
	"github.com/omnichat/gateway/internal/core_domain"
	"github.com/omnichat/gateway/internal/provider"
	"github.com/omnichat/gateway/internal/vault"
)

// --- Mocks ---

type MockChannelRepository struct {
	mock.Mock
}

func (m *MockChannelRepository) Create(ctx context.Context, channel *core_domain.Channel) (*core_domain.Channel, error) {
	args := m.Called(ctx, channel)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*core_domain.Channel), args.Error(1)
}

func (m *MockChannelRepository) GetByID(ctx context.Context, id string) (*core_domain.Channel, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*core_domain.Channel), args.Error(1)
}

func (m *MockChannelRepository) GetByTenant(ctx context.Context, tenantID string) ([]*core_domain.Channel, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*core_domain.Channel), args.Error(1)
}

func (m *MockChannelRepository) GetByProviderPhone(ctx context.Context, providerName, phoneNumber string) (*core_domain.Channel, error) {
	args := m.Called(ctx, providerName, phoneNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*core_domain.Channel), args.Error(1)
}

func (m *MockChannelRepository) Update(ctx context.Context, channel *core_domain.Channel) error {
	args := m.Called(ctx, channel)
	return args.Error(0)
}

func (m *MockChannelRepository) Delete(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

// --- Helpers ---

func testRegistry(t *testing.T, repo *MockChannelRepository) (*Registry, *vault.Vault) {
	t.Helper()
	v, err := vault.New("registry-test-secret")
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRegistry(repo, v, logger, nil), v
}

// --- Tests ---

func TestRegistry_CreateChannel_EncryptsCredential(t *testing.T) {
	repo := new(MockChannelRepository)
	registry, v := testRegistry(t, repo)

	var stored *core_domain.Channel
	repo.On("Create", mock.Anything, mock.AnythingOfType("*core_domain.Channel")).
		Run(func(args mock.Arguments) {
			stored = args.Get(1).(*core_domain.Channel)
		}).
		Return(&core_domain.Channel{ID: "c1"}, nil)

	_, err := registry.CreateChannel(context.Background(), "t1", "acme", "super-secret-token", "+15557770000")
	require.NoError(t, err)

	require.NotNil(t, stored)
	assert.NotEqual(t, "super-secret-token", stored.CredentialEncrypted)
	assert.True(t, v.LooksEncrypted(stored.CredentialEncrypted))

	plaintext, err := v.Decrypt(stored.CredentialEncrypted)
	require.NoError(t, err)
	assert.Equal(t, "super-secret-token", plaintext)
	assert.Equal(t, core_domain.ChannelStatusInactive, stored.Status)
}

func TestRegistry_CreateChannel_UnknownProvider(t *testing.T) {
	repo := new(MockChannelRepository)
	registry, _ := testRegistry(t, repo)

	_, err := registry.CreateChannel(context.Background(), "t1", "smoke-signals", "token", "")
	assert.ErrorIs(t, err, provider.ErrUnsupportedProvider)
	repo.AssertNotCalled(t, "Create")
}

func storedChannel(v *vault.Vault, t *testing.T) *core_domain.Channel {
	t.Helper()
	encrypted, err := v.Encrypt("decrypted-token")
	require.NoError(t, err)
	return &core_domain.Channel{
		ID:                  "c1",
		TenantID:            "t1",
		Provider:            "mock",
		CredentialEncrypted: encrypted,
		Status:              core_domain.ChannelStatusActive,
	}
}

func TestRegistry_GetProvider_LazyConstructionAndCache(t *testing.T) {
	repo := new(MockChannelRepository)
	registry, v := testRegistry(t, repo)

	channel := storedChannel(v, t)
	repo.On("GetByID", mock.Anything, "c1").Return(channel, nil).Once()

	var constructions atomic.Int64
	var seenCredential string
	registry.newAdapter = func(name string, cfg provider.Config) (provider.Adapter, error) {
		constructions.Add(1)
		seenCredential = cfg.Credential
		return provider.New(name, cfg)
	}

	first, err := registry.GetProvider(context.Background(), "c1")
	require.NoError(t, err)
	second, err := registry.GetProvider(context.Background(), "c1")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int64(1), constructions.Load(), "adapter must be constructed once and cached")
	assert.Equal(t, "decrypted-token", seenCredential)
	repo.AssertExpectations(t)
}

func TestRegistry_GetProvider_UnknownChannel(t *testing.T) {
	repo := new(MockChannelRepository)
	registry, _ := testRegistry(t, repo)

	repo.On("GetByID", mock.Anything, "missing").Return(nil, domain.ErrChannelNotFound)

	_, err := registry.GetProvider(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrChannelNotFound)
}

func TestRegistry_GetProvider_CorruptCredential(t *testing.T) {
	repo := new(MockChannelRepository)
	registry, _ := testRegistry(t, repo)

	repo.On("GetByID", mock.Anything, "c1").Return(&core_domain.Channel{
		ID: "c1", Provider: "mock", CredentialEncrypted: "not-a-ciphertext",
	}, nil)

	_, err := registry.GetProvider(context.Background(), "c1")
	assert.ErrorIs(t, err, vault.ErrIntegrity)
}

func TestRegistry_UpdateChannel_InvalidatesCache(t *testing.T) {
	repo := new(MockChannelRepository)
	registry, v := testRegistry(t, repo)

	channel := storedChannel(v, t)
	repo.On("GetByID", mock.Anything, "c1").Return(channel, nil)
	repo.On("Update", mock.Anything, mock.Anything).Return(nil)

	_, err := registry.GetProvider(context.Background(), "c1")
	require.NoError(t, err)

	newCredential := "rotated-token"
	_, err = registry.UpdateChannel(context.Background(), "c1", core_domain.ChannelPatch{
		PlaintextCredential: &newCredential,
	})
	require.NoError(t, err)

	registry.mu.RLock()
	_, stillCached := registry.adapters["c1"]
	registry.mu.RUnlock()
	assert.False(t, stillCached, "update must invalidate the adapter cache entry")
}

func TestRegistry_DeleteChannel_DropsCacheEntry(t *testing.T) {
	repo := new(MockChannelRepository)
	registry, v := testRegistry(t, repo)

	channel := storedChannel(v, t)
	repo.On("GetByID", mock.Anything, "c1").Return(channel, nil)
	repo.On("Delete", mock.Anything, "c1").Return(true, nil)

	_, err := registry.GetProvider(context.Background(), "c1")
	require.NoError(t, err)

	deleted, err := registry.DeleteChannel(context.Background(), "c1")
	require.NoError(t, err)
	assert.True(t, deleted)

	registry.mu.RLock()
	_, stillCached := registry.adapters["c1"]
	registry.mu.RUnlock()
	assert.False(t, stillCached)
}

type disconnectRecorder struct {
	provider.Adapter
	disconnects atomic.Int64
}

func (d *disconnectRecorder) Disconnect(_ context.Context, _ string) {
	d.disconnects.Add(1)
}

// Deleting a channel that was never used in this process must still close the
// provider-side session.
func TestRegistry_DeleteChannel_DisconnectsUncachedAdapter(t *testing.T) {
	repo := new(MockChannelRepository)
	registry, v := testRegistry(t, repo)

	channel := storedChannel(v, t)
	repo.On("GetByID", mock.Anything, "c1").Return(channel, nil).Once()
	repo.On("Delete", mock.Anything, "c1").Return(true, nil).Once()

	recorder := &disconnectRecorder{}
	registry.newAdapter = func(name string, cfg provider.Config) (provider.Adapter, error) {
		inner, err := provider.New(name, cfg)
		if err != nil {
			return nil, err
		}
		recorder.Adapter = inner
		return recorder, nil
	}

	deleted, err := registry.DeleteChannel(context.Background(), "c1")
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Equal(t, int64(1), recorder.disconnects.Load())

	registry.mu.RLock()
	_, stillCached := registry.adapters["c1"]
	registry.mu.RUnlock()
	assert.False(t, stillCached)
}

func TestRegistry_DeleteChannel_UnknownChannel(t *testing.T) {
	repo := new(MockChannelRepository)
	registry, _ := testRegistry(t, repo)

	repo.On("GetByID", mock.Anything, "missing").Return(nil, domain.ErrChannelNotFound)
	repo.On("Delete", mock.Anything, "missing").Return(false, nil)

	deleted, err := registry.DeleteChannel(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestRegistry_SetStatus(t *testing.T) {
	repo := new(MockChannelRepository)
	registry, v := testRegistry(t, repo)

	channel := storedChannel(v, t)
	repo.On("GetByID", mock.Anything, "c1").Return(channel, nil)
	var updated *core_domain.Channel
	repo.On("Update", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			updated = args.Get(1).(*core_domain.Channel)
		}).
		Return(nil)

	err := registry.SetStatus(context.Background(), "c1", core_domain.ChannelStatusError)
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, core_domain.ChannelStatusError, updated.Status)
}
