package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/omnichat/gateway/internal/core_domain"
	"github.com/omnichat/gateway/internal/inbound_service/domain"
)

// Processor consumes normalized inbound messages: de-duplicates by provider
// message id and forwards first deliveries to the business collaborators.
type Processor struct {
	store  domain.ProcessedMessageStore
	sinks  []domain.MessageSink
	logger *slog.Logger
}

// NewProcessor creates an inbound Processor.
func NewProcessor(store domain.ProcessedMessageStore, sinks []domain.MessageSink, logger *slog.Logger) *Processor {
	return &Processor{
		store:  store,
		sinks:  sinks,
		logger: logger.With("component", "inbound_processor"),
	}
}

// ProcessMessage handles one inbound message. Redelivery of an already-seen
// message id is a no-op. Sink errors are returned so the caller can count
// them; they never crash the worker.
func (p *Processor) ProcessMessage(ctx context.Context, msg core_domain.InboundMessage) error {
	timer := prometheus.NewTimer(inboundProcessingDurationHist.WithLabelValues(msg.Provider))
	defer timer.ObserveDuration()

	if msg.MessageID == "" {
		inboundMessagesProcessedCounter.WithLabelValues(msg.Provider, "error").Inc()
		return fmt.Errorf("inbound message without message id from %s", msg.Provider)
	}

	first, err := p.store.MarkProcessed(ctx, msg.Provider, msg.MessageID)
	if err != nil {
		inboundMessagesProcessedCounter.WithLabelValues(msg.Provider, "error").Inc()
		return fmt.Errorf("check message %s for duplicates: %w", msg.MessageID, err)
	}
	if !first {
		p.logger.DebugContext(ctx, "duplicate inbound message skipped",
			"provider", msg.Provider, "message_id", msg.MessageID)
		inboundMessagesProcessedCounter.WithLabelValues(msg.Provider, "duplicate").Inc()
		return nil
	}

	for _, sink := range p.sinks {
		if err := sink.HandleInbound(ctx, msg); err != nil {
			inboundMessagesProcessedCounter.WithLabelValues(msg.Provider, "error").Inc()
			// Release the first-seen claim so the retry attempt can forward
			// the message instead of skipping it as a duplicate.
			if ferr := p.store.Forget(ctx, msg.Provider, msg.MessageID); ferr != nil {
				p.logger.ErrorContext(ctx, "failed to release first-seen claim",
					"provider", msg.Provider, "message_id", msg.MessageID, "error", ferr)
			}
			return fmt.Errorf("forward message %s: %w", msg.MessageID, err)
		}
	}

	inboundMessagesProcessedCounter.WithLabelValues(msg.Provider, "processed").Inc()
	p.logger.InfoContext(ctx, "inbound message processed",
		"provider", msg.Provider, "channel_id", msg.ChannelID, "message_id", msg.MessageID, "type", msg.Type)
	return nil
}
