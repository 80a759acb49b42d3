package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/omnichat/gateway/internal/core_domain"
)

// CreateChannelRequestDTO links a tenant to a provider account. The credential
// travels only in this request body; it is encrypted before persistence and
// never echoed back.
type CreateChannelRequestDTO struct {
	TenantID    string `json:"tenantId" validate:"required"`
	Provider    string `json:"provider" validate:"required"`
	Credential  string `json:"credential" validate:"required"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
}

// UpdateChannelRequestDTO patches a channel; nil fields are left untouched.
type UpdateChannelRequestDTO struct {
	Credential  *string `json:"credential,omitempty"`
	PhoneNumber *string `json:"phoneNumber,omitempty"`
	Status      *string `json:"status,omitempty" validate:"omitempty,oneof=inactive active error"`
}

// ChannelResponseDTO is the external view of a channel. It never carries
// credential material, encrypted or otherwise.
type ChannelResponseDTO struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenantId"`
	Provider    string    `json:"provider"`
	PhoneNumber string    `json:"phoneNumber,omitempty"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func toChannelResponse(c *core_domain.Channel) ChannelResponseDTO {
	return ChannelResponseDTO{
		ID:          c.ID,
		TenantID:    c.TenantID,
		Provider:    c.Provider,
		PhoneNumber: c.PhoneNumber,
		Status:      string(c.Status),
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

// MediaDTO describes the media part of an outbound send request.
type MediaDTO struct {
	Kind     string `json:"kind" validate:"required,oneof=image video audio document"`
	URL      string `json:"url" validate:"required,url"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// SendMessageRequestDTO submits one outbound message on a channel.
type SendMessageRequestDTO struct {
	To    string    `json:"to" validate:"required"`
	Type  string    `json:"type" validate:"required,oneof=text media"`
	Text  string    `json:"text,omitempty"`
	Media *MediaDTO `json:"media,omitempty"`
}

// TestMessageRequestDTO sends a short text to verify channel connectivity.
type TestMessageRequestDTO struct {
	To   string `json:"to" validate:"required"`
	Text string `json:"text" validate:"required"`
}

// ConfigureWebhookRequestDTO registers the callback URL with the provider.
type ConfigureWebhookRequestDTO struct {
	URL string `json:"url" validate:"required,url"`
}

// JobResponseDTO is the external view of an outbound job.
type JobResponseDTO struct {
	ID                string     `json:"id"`
	ChannelID         string     `json:"channelId"`
	Recipient         string     `json:"to"`
	Kind              string     `json:"kind"`
	Status            string     `json:"status"`
	AttemptCount      int        `json:"attemptCount"`
	MaxAttempts       int        `json:"maxAttempts"`
	ProviderMessageID string     `json:"messageId,omitempty"`
	Error             string     `json:"error,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

func toJobResponse(j *core_domain.OutboundJob) JobResponseDTO {
	return JobResponseDTO{
		ID:                j.ID,
		ChannelID:         j.ChannelID,
		Recipient:         j.Recipient,
		Kind:              string(j.Kind),
		Status:            string(j.Status),
		AttemptCount:      j.AttemptCount,
		MaxAttempts:       j.MaxAttempts,
		ProviderMessageID: j.ProviderMessageID,
		Error:             j.ErrorMessage,
		CreatedAt:         j.CreatedAt,
		UpdatedAt:         j.UpdatedAt,
	}
}

// respondWithJSON writes payload as the JSON response body.
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			slog.Default().Error("Failed to write JSON response", "error", err)
		}
	}
}

// respondWithError writes a {"error": message} body.
func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}
