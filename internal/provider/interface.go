// Package provider contains the adapter boundary between the gateway's
// vocabulary and each external chat provider's REST API.
package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/omnichat/gateway/internal/core_domain"
)

// Per-call deadlines for provider HTTP requests. Media transfers are given
// more headroom than text and status calls.
const (
	textRequestTimeout  = 30 * time.Second
	mediaRequestTimeout = 60 * time.Second
)

// ErrUnsupportedProvider is returned when a provider name is not in the
// registered set. Unknown names fail construction, never yield a nil adapter.
var ErrUnsupportedProvider = errors.New("unsupported provider")

// SendResult is the structured outcome of a send attempt. Expected provider
// failures (rejections, non-2xx, timeouts) land here with Success false;
// adapters do not return Go errors for "the provider said no".
type SendResult struct {
	Success    bool
	MessageID  string
	Error      string
	StatusCode int
}

// StatusInfo reports provider-side channel connectivity.
type StatusInfo struct {
	Connected   bool
	Status      string
	PhoneNumber string
	LastSeen    time.Time
}

// Adapter is implemented once per external provider. Adapters never retry;
// retry policy belongs to the outbound dispatcher.
type Adapter interface {
	Name() string
	SendText(ctx context.Context, channelID, to, text string) *SendResult
	SendMedia(ctx context.Context, channelID, to string, media core_domain.Media) *SendResult
	GetStatus(ctx context.Context, channelID string) (*StatusInfo, error)
	// Disconnect is best effort: network failures are logged, not propagated,
	// so the caller can still drop its local registration.
	Disconnect(ctx context.Context, channelID string)
	SetWebhook(ctx context.Context, channelID, url string) error
}

// Config carries everything an adapter needs to talk to its provider account.
// Credential is the decrypted channel credential; it is held in memory only.
type Config struct {
	Credential string
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

type factory func(cfg Config) Adapter

// factories is the closed set of known providers. Adding a provider means
// adding a constructor here; unknown names fail with ErrUnsupportedProvider.
var factories = map[string]factory{
	"acme":      newAcmeAdapter,
	"waconnect": newWAConnectAdapter,
	"mock":      newMockAdapterFromConfig,
}

// New constructs the adapter registered under name.
func New(name string, cfg Config) (Adapter, error) {
	f, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, name)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return f(cfg), nil
}

// Supported reports whether name is a registered provider.
func Supported(name string) bool {
	_, ok := factories[name]
	return ok
}

// Names returns the registered provider names, sorted.
func Names() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
