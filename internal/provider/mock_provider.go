package provider

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/omnichat/gateway/internal/core_domain"
)

// MockAdapter is an in-memory adapter for tests and local runs. Failure
// behavior and latency are controllable; sent messages are recorded.
type MockAdapter struct {
	logger         *slog.Logger
	FailSend       bool
	FailError      string
	FailWebhook    bool
	SimulatedDelay time.Duration

	mu   sync.Mutex
	sent []MockSentMessage
}

// MockSentMessage records one simulated send.
type MockSentMessage struct {
	ChannelID string
	To        string
	Kind      core_domain.PayloadKind
	Text      string
	Media     *core_domain.Media
}

func newMockAdapterFromConfig(cfg Config) Adapter {
	return NewMockAdapter(cfg.Logger)
}

// NewMockAdapter creates a MockAdapter that succeeds on every send.
func NewMockAdapter(logger *slog.Logger) *MockAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &MockAdapter{logger: logger.With("provider", "mock")}
}

func (m *MockAdapter) Name() string { return "mock" }

// Sent returns a copy of all recorded sends.
func (m *MockAdapter) Sent() []MockSentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockSentMessage, len(m.sent))
	copy(out, m.sent)
	return out
}

func (m *MockAdapter) record(msg MockSentMessage) {
	m.mu.Lock()
	m.sent = append(m.sent, msg)
	m.mu.Unlock()
}

func (m *MockAdapter) simulate(ctx context.Context) *SendResult {
	if m.SimulatedDelay > 0 {
		select {
		case <-time.After(m.SimulatedDelay):
		case <-ctx.Done():
			return &SendResult{Success: false, Error: "request failed: " + ctx.Err().Error()}
		}
	}
	if m.FailSend {
		errMsg := m.FailError
		if errMsg == "" {
			errMsg = "mock provider simulated send failure"
		}
		return &SendResult{Success: false, Error: errMsg, StatusCode: 500}
	}
	return &SendResult{Success: true, MessageID: "mock-" + uuid.NewString(), StatusCode: 200}
}

func (m *MockAdapter) SendText(ctx context.Context, channelID, to, text string) *SendResult {
	m.logger.DebugContext(ctx, "mock send text", "channel_id", channelID, "to", to)
	result := m.simulate(ctx)
	if result.Success {
		m.record(MockSentMessage{ChannelID: channelID, To: to, Kind: core_domain.PayloadKindText, Text: text})
	}
	return result
}

func (m *MockAdapter) SendMedia(ctx context.Context, channelID, to string, media core_domain.Media) *SendResult {
	m.logger.DebugContext(ctx, "mock send media", "channel_id", channelID, "to", to, "kind", media.Kind)
	result := m.simulate(ctx)
	if result.Success {
		mediaCopy := media
		m.record(MockSentMessage{ChannelID: channelID, To: to, Kind: core_domain.PayloadKindMedia, Media: &mediaCopy})
	}
	return result
}

func (m *MockAdapter) GetStatus(ctx context.Context, channelID string) (*StatusInfo, error) {
	return &StatusInfo{Connected: true, Status: "connected", PhoneNumber: "+10000000000"}, nil
}

func (m *MockAdapter) Disconnect(ctx context.Context, channelID string) {
	m.logger.DebugContext(ctx, "mock disconnect", "channel_id", channelID)
}

func (m *MockAdapter) SetWebhook(ctx context.Context, channelID, url string) error {
	if m.FailWebhook {
		return errors.New("mock provider simulated webhook failure")
	}
	m.logger.DebugContext(ctx, "mock set webhook", "channel_id", channelID, "url", url)
	return nil
}
