package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/omnichat/gateway/internal/core_domain"
)

// ErrGroupMessage marks a message belonging to a group conversation. The
// gateway only brokers 1:1 conversations, so these are dropped at
// normalization time.
var ErrGroupMessage = errors.New("group conversation message")

// defaultGroupSuffixes is used when no per-provider suffix is configured.
var defaultGroupSuffixes = map[string]string{
	"waconnect": "@g.us",
}

// Normalizer translates provider-shaped webhook payloads into the canonical
// inbound message model. Each provider gets its own field mapping; the group
// chat detection rule is configurable per provider.
type Normalizer struct {
	groupSuffixes map[string]string
	logger        *slog.Logger
}

// NewNormalizer creates a Normalizer. groupSuffixes overrides the built-in
// group chat id suffix per provider; pass nil to keep the defaults.
func NewNormalizer(groupSuffixes map[string]string, logger *slog.Logger) *Normalizer {
	merged := make(map[string]string, len(defaultGroupSuffixes)+len(groupSuffixes))
	for provider, suffix := range defaultGroupSuffixes {
		merged[provider] = suffix
	}
	for provider, suffix := range groupSuffixes {
		merged[provider] = suffix
	}
	return &Normalizer{
		groupSuffixes: merged,
		logger:        logger.With("component", "normalizer"),
	}
}

// NormalizeMessage maps a provider "message" event payload to the canonical
// envelope. Returns ErrGroupMessage for group conversations.
func (n *Normalizer) NormalizeMessage(provider string, data json.RawMessage) (*core_domain.InboundMessage, error) {
	switch provider {
	case "waconnect":
		return n.normalizeWAConnectMessage(data)
	case "acme":
		return n.normalizeAcmeMessage(data)
	default:
		return nil, fmt.Errorf("no message mapping for provider %q", provider)
	}
}

// StatusUpdate is the normalized form of a provider "status" event.
type StatusUpdate struct {
	Connected   bool
	PhoneNumber string
}

// NormalizeStatus maps a provider "status" event payload.
func (n *Normalizer) NormalizeStatus(provider string, data json.RawMessage) (*StatusUpdate, error) {
	switch provider {
	case "waconnect":
		var payload struct {
			Status      string `json:"status"`
			PhoneNumber string `json:"phone_number"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("decode waconnect status payload: %w", err)
		}
		return &StatusUpdate{
			Connected:   payload.Status == "authorized",
			PhoneNumber: payload.PhoneNumber,
		}, nil
	case "acme":
		var payload struct {
			Status      string `json:"status"`
			PhoneNumber string `json:"phone_number"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("decode acme status payload: %w", err)
		}
		return &StatusUpdate{
			Connected:   payload.Status == "connected",
			PhoneNumber: payload.PhoneNumber,
		}, nil
	default:
		return nil, fmt.Errorf("no status mapping for provider %q", provider)
	}
}

type waconnectWebhookMessage struct {
	ID              string `json:"id"`
	From            string `json:"from"`
	Type            string `json:"type"`
	Body            string `json:"body"`
	Timestamp       int64  `json:"timestamp"`
	ChatID          string `json:"chat_id"`
	MediaURL        string `json:"media_url"`
	Caption         string `json:"caption"`
	Filename        string `json:"filename"`
	QuotedMessageID string `json:"quoted_message_id"`
}

func (n *Normalizer) normalizeWAConnectMessage(data json.RawMessage) (*core_domain.InboundMessage, error) {
	var raw waconnectWebhookMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode waconnect message payload: %w", err)
	}
	if n.isGroupChat("waconnect", raw.ChatID) {
		return nil, ErrGroupMessage
	}
	msgType, err := messageTypeFromString(raw.Type)
	if err != nil {
		return nil, err
	}
	return &core_domain.InboundMessage{
		Provider:        "waconnect",
		From:            strings.TrimSuffix(raw.From, "@c.us"),
		MessageID:       raw.ID,
		Type:            msgType,
		Body:            raw.Body,
		MediaURL:        raw.MediaURL,
		Caption:         raw.Caption,
		Filename:        raw.Filename,
		Timestamp:       timestampFromUnix(raw.Timestamp),
		QuotedMessageID: raw.QuotedMessageID,
	}, nil
}

type acmeWebhookMessage struct {
	MessageID      string `json:"message_id"`
	Sender         string `json:"sender"`
	Kind           string `json:"kind"`
	Text           string `json:"text"`
	ConversationID string `json:"conversation_id"`
	SentAt         int64  `json:"sent_at"`
	Media          *struct {
		URL      string `json:"url"`
		Caption  string `json:"caption"`
		Filename string `json:"filename"`
	} `json:"media"`
	QuotedMessageID string `json:"quoted_message_id"`
}

func (n *Normalizer) normalizeAcmeMessage(data json.RawMessage) (*core_domain.InboundMessage, error) {
	var raw acmeWebhookMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode acme message payload: %w", err)
	}
	if n.isGroupChat("acme", raw.ConversationID) {
		return nil, ErrGroupMessage
	}
	msgType, err := messageTypeFromString(raw.Kind)
	if err != nil {
		return nil, err
	}
	msg := &core_domain.InboundMessage{
		Provider:        "acme",
		From:            raw.Sender,
		MessageID:       raw.MessageID,
		Type:            msgType,
		Body:            raw.Text,
		Timestamp:       timestampFromUnix(raw.SentAt),
		QuotedMessageID: raw.QuotedMessageID,
	}
	if raw.Media != nil {
		msg.MediaURL = raw.Media.URL
		msg.Caption = raw.Media.Caption
		msg.Filename = raw.Media.Filename
	}
	return msg, nil
}

func (n *Normalizer) isGroupChat(provider, chatID string) bool {
	suffix, ok := n.groupSuffixes[provider]
	if !ok || suffix == "" || chatID == "" {
		return false
	}
	return strings.HasSuffix(chatID, suffix)
}

// messageTypeFromString validates the provider type tag against the canonical
// set. "chat" is accepted as an alias for text.
func messageTypeFromString(raw string) (core_domain.MessageType, error) {
	switch raw {
	case "text", "chat":
		return core_domain.MessageTypeText, nil
	case "image":
		return core_domain.MessageTypeImage, nil
	case "video":
		return core_domain.MessageTypeVideo, nil
	case "audio":
		return core_domain.MessageTypeAudio, nil
	case "document":
		return core_domain.MessageTypeDocument, nil
	case "location":
		return core_domain.MessageTypeLocation, nil
	case "contact":
		return core_domain.MessageTypeContact, nil
	default:
		return "", fmt.Errorf("unsupported message type %q", raw)
	}
}

func timestampFromUnix(seconds int64) time.Time {
	if seconds <= 0 {
		return time.Now().UTC()
	}
	return time.Unix(seconds, 0).UTC()
}
