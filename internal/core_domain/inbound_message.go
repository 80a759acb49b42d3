package core_domain

import "time"

// MessageType is the canonical inbound payload type vocabulary.
type MessageType string

const (
	MessageTypeText     MessageType = "text"
	MessageTypeImage    MessageType = "image"
	MessageTypeVideo    MessageType = "video"
	MessageTypeAudio    MessageType = "audio"
	MessageTypeDocument MessageType = "document"
	MessageTypeLocation MessageType = "location"
	MessageTypeContact  MessageType = "contact"
)

// InboundJob is one inbound message awaiting processing in the durable
// queue. A webhook is acknowledged only after its job is persisted, so
// accepted messages survive worker restarts; processing failures are retried
// with backoff and exhausted jobs dead-letter as failed.
type InboundJob struct {
	ID            string         `json:"id"`
	Message       InboundMessage `json:"message"`
	Status        JobStatus      `json:"status"`
	AttemptCount  int            `json:"attemptCount"`
	MaxAttempts   int            `json:"maxAttempts"`
	NextAttemptAt time.Time      `json:"nextAttemptAt"`
	ErrorMessage  string         `json:"errorMessage,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// InboundMessage is the provider-agnostic envelope every incoming webhook
// payload is normalized into. MessageID is the provider-assigned id and must
// pass through unchanged so downstream consumers can de-duplicate on it.
type InboundMessage struct {
	Provider        string      `json:"provider"`
	ChannelID       string      `json:"channelId"`
	From            string      `json:"from"`
	MessageID       string      `json:"messageId"`
	Type            MessageType `json:"type"`
	Body            string      `json:"body,omitempty"`
	MediaURL        string      `json:"mediaUrl,omitempty"`
	Caption         string      `json:"caption,omitempty"`
	Filename        string      `json:"filename,omitempty"`
	Timestamp       time.Time   `json:"timestamp"`
	QuotedMessageID string      `json:"quotedMessageId,omitempty"`
}
