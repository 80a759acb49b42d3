package domain

import (
	"context"

	"github.com/omnichat/gateway/internal/core_domain"
)

// MessageSink is a business collaborator interested in inbound messages
// (conversation persistence, auto-response generation, live notification
// fan-out). Collaborators live outside the gateway; the inbound processor
// only forwards.
type MessageSink interface {
	HandleInbound(ctx context.Context, msg core_domain.InboundMessage) error
}

// ProcessedMessageStore records which provider message ids have already been
// consumed, making redelivery a no-op.
type ProcessedMessageStore interface {
	// MarkProcessed returns true when the message is seen for the first time.
	MarkProcessed(ctx context.Context, provider, messageID string) (bool, error)
	// Forget releases a first-seen claim so a failed message can be forwarded
	// again on its next attempt.
	Forget(ctx context.Context, provider, messageID string) error
}
