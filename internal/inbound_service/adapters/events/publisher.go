package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/omnichat/gateway/internal/core_domain"
	"github.com/omnichat/gateway/internal/platform/messagebroker"
)

// Publisher is the default MessageSink: it fans processed inbound messages out
// to business collaborators over the broker.
type Publisher struct {
	broker messagebroker.Publisher
	logger *slog.Logger
}

// NewPublisher creates an event-publishing sink.
func NewPublisher(broker messagebroker.Publisher, logger *slog.Logger) *Publisher {
	return &Publisher{
		broker: broker,
		logger: logger.With("component", "inbound_event_publisher"),
	}
}

// HandleInbound publishes the canonical message on the shared event subject.
func (p *Publisher) HandleInbound(ctx context.Context, msg core_domain.InboundMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal inbound message %s: %w", msg.MessageID, err)
	}
	if err := p.broker.Publish(ctx, messagebroker.SubjectMessageReceived, data); err != nil {
		return fmt.Errorf("publish inbound message %s: %w", msg.MessageID, err)
	}
	p.logger.DebugContext(ctx, "inbound message fanned out", "provider", msg.Provider, "message_id", msg.MessageID)
	return nil
}
