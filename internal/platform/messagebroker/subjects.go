package messagebroker

// NATS subjects used by the gateway services.
const (
	// SubjectOutboundEnqueued wakes the outbound dispatcher ahead of its next
	// poll when a job is submitted.
	SubjectOutboundEnqueued = "gateway.outbound.enqueued"

	// SubjectOutboundDelivered and SubjectOutboundFailed carry terminal job
	// reports for interested collaborators.
	SubjectOutboundDelivered = "gateway.outbound.delivered"
	SubjectOutboundFailed    = "gateway.outbound.failed"

	// SubjectInboundMessagePrefix is followed by the provider name, e.g.
	// "gateway.inbound.message.acme". Carries wake-up events for newly
	// persisted inbound jobs; workers subscribe to the wildcard form and
	// claim the jobs themselves from the durable queue.
	SubjectInboundMessagePrefix   = "gateway.inbound.message."
	SubjectInboundMessageWildcard = "gateway.inbound.message.*"

	// SubjectMessageReceived is the fan-out of fully processed inbound
	// messages to business collaborators.
	SubjectMessageReceived = "gateway.events.message_received"
)
