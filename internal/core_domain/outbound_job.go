package core_domain

import "time"

// JobStatus is the job state machine shared by both durable queues:
// queued -> active -> terminal, with active -> queued on retry. Outbound jobs
// terminate in delivered or failed; inbound jobs in processed or failed.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusActive    JobStatus = "active"
	JobStatusDelivered JobStatus = "delivered"
	JobStatusProcessed JobStatus = "processed"
	JobStatusFailed    JobStatus = "failed"
)

// PayloadKind distinguishes text sends from media sends.
type PayloadKind string

const (
	PayloadKindText  PayloadKind = "text"
	PayloadKindMedia PayloadKind = "media"
)

// DefaultMaxAttempts bounds provider retries per job.
const DefaultMaxAttempts = 3

// Media describes a media payload by reference; the gateway never downloads
// media itself, providers fetch from the URL.
type Media struct {
	Kind     string `json:"kind"`
	URL      string `json:"url"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// OutboundJob is one message to deliver to one recipient through one channel.
// Terminal jobs (delivered, failed) are kept for reporting; failed jobs form
// the dead-letter listing.
type OutboundJob struct {
	ID                string      `json:"id"`
	ChannelID         string      `json:"channelId"`
	Recipient         string      `json:"recipient"`
	Kind              PayloadKind `json:"kind"`
	Text              string      `json:"text,omitempty"`
	Media             *Media      `json:"media,omitempty"`
	Status            JobStatus   `json:"status"`
	AttemptCount      int         `json:"attemptCount"`
	MaxAttempts       int         `json:"maxAttempts"`
	NextAttemptAt     time.Time   `json:"nextAttemptAt"`
	ProviderMessageID string      `json:"providerMessageId,omitempty"`
	ErrorMessage      string      `json:"errorMessage,omitempty"`
	CreatedAt         time.Time   `json:"createdAt"`
	UpdatedAt         time.Time   `json:"updatedAt"`
}
