package core_domain

import "time"

// ChannelStatus reflects the provider-side connectivity of a channel.
type ChannelStatus string

const (
	ChannelStatusInactive ChannelStatus = "inactive"
	ChannelStatusActive   ChannelStatus = "active"
	ChannelStatusError    ChannelStatus = "error"
)

// Channel is a tenant-owned connection to one external messaging provider
// account. CredentialEncrypted is vault ciphertext; the plaintext credential
// only ever exists transiently in process memory.
type Channel struct {
	ID                  string        `json:"id"`
	TenantID            string        `json:"tenantId"`
	Provider            string        `json:"provider"`
	CredentialEncrypted string        `json:"-"`
	PhoneNumber         string        `json:"phoneNumber,omitempty"`
	Status              ChannelStatus `json:"status"`
	CreatedAt           time.Time     `json:"createdAt"`
	UpdatedAt           time.Time     `json:"updatedAt"`
}

// ChannelPatch carries the mutable channel fields for an update. Nil fields are
// left untouched. PlaintextCredential, when set, is encrypted before storage.
type ChannelPatch struct {
	PlaintextCredential *string
	PhoneNumber         *string
	Status              *ChannelStatus
}
