package http

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"

	"github.com/omnichat/gateway/internal/core_domain"
	"github.com/omnichat/gateway/internal/gateway_service/app"
)

const maxWebhookBodySize = 1 << 20 // 1 MB

// ChannelDirectory is the slice of the channel registry the webhook handler
// needs: resolving which channel a payload belongs to and recording
// provider-reported connectivity transitions.
type ChannelDirectory interface {
	ResolveByProviderPhone(ctx context.Context, providerName, phoneNumber string) (*core_domain.Channel, error)
	SetStatus(ctx context.Context, id string, status core_domain.ChannelStatus) error
}

// InboundQueue accepts normalized messages into the durable inbound queue.
// A nil return means the message is persisted and will be processed even if
// every worker is down right now.
type InboundQueue interface {
	Enqueue(ctx context.Context, msg core_domain.InboundMessage) error
}

// WebhookHandler ingests provider webhooks: signature validation, event
// dispatch, normalization, and hand-off to the inbound queue. It answers
// quickly and never performs provider calls inline.
type WebhookHandler struct {
	normalizer *app.Normalizer
	channels   ChannelDirectory
	queue      InboundQueue
	secrets    map[string]string
	logger     *slog.Logger
}

// NewWebhookHandler creates the webhook ingestion handler. secrets maps
// provider name to the shared webhook secret; providers without an entry skip
// signature validation.
func NewWebhookHandler(normalizer *app.Normalizer, channels ChannelDirectory, queue InboundQueue, secrets map[string]string, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		normalizer: normalizer,
		channels:   channels,
		queue:      queue,
		secrets:    secrets,
		logger:     logger.With("component", "webhook_handler"),
	}
}

// RegisterRoutes mounts the webhook endpoint.
func (h *WebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/{provider}", h.HandleWebhook)
}

// webhookEnvelope is the provider-agnostic outer shape. "account" (or
// "instance" for waconnect) identifies the receiving provider account so the
// payload can be attributed to a channel.
type webhookEnvelope struct {
	Event    string          `json:"event"`
	Account  string          `json:"account"`
	Instance string          `json:"instance"`
	Data     json.RawMessage `json:"data"`
}

// HandleWebhook processes POST /webhooks/{provider}. Unrecognized events are
// acknowledged with 200 so provider platforms do not retry-storm; only
// signature failures (401) and internal errors (500) are reported otherwise.
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	providerName := chi.URLParam(r, "provider")
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx), "provider", providerName)

	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
	rawPayload, err := io.ReadAll(r.Body)
	if err != nil {
		logger.WarnContext(ctx, "failed to read webhook body", "error", err)
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if secret, ok := h.secrets[providerName]; ok && secret != "" {
		signature := r.Header.Get(signatureHeader(providerName))
		if !verifySignature(rawPayload, signature, secret) {
			logger.WarnContext(ctx, "webhook signature verification failed", "remote_addr", r.RemoteAddr)
			respondWithError(w, http.StatusUnauthorized, "invalid signature")
			return
		}
	}

	var envelope webhookEnvelope
	if err := json.Unmarshal(rawPayload, &envelope); err != nil {
		// Unparseable bodies are acknowledged; a 4xx would put the provider
		// platform into a redelivery loop for a payload that can never parse.
		logger.WarnContext(ctx, "undecodable webhook payload ignored", "error", err)
		respondWithJSON(w, http.StatusOK, map[string]bool{"success": true})
		return
	}

	switch envelope.Event {
	case "message":
		if err := h.handleMessageEvent(ctx, logger, providerName, envelope); err != nil {
			logger.ErrorContext(ctx, "failed to enqueue inbound message", "error", err)
			respondWithError(w, http.StatusInternalServerError, "internal server error")
			return
		}
	case "status":
		h.handleStatusEvent(ctx, logger, providerName, envelope)
	default:
		logger.DebugContext(ctx, "unhandled webhook event ignored", "event", envelope.Event)
	}

	respondWithJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleMessageEvent normalizes and enqueues one inbound message. Only a
// failure to persist the message is returned (so the provider retries the
// delivery); normalization problems are logged and swallowed so the provider
// gets its 200.
func (h *WebhookHandler) handleMessageEvent(ctx context.Context, logger *slog.Logger, providerName string, envelope webhookEnvelope) error {
	msg, err := h.normalizer.NormalizeMessage(providerName, envelope.Data)
	if err != nil {
		if errors.Is(err, app.ErrGroupMessage) {
			logger.DebugContext(ctx, "group conversation message dropped")
			return nil
		}
		logger.WarnContext(ctx, "unnormalizable message payload ignored", "error", err)
		return nil
	}

	if account := envelope.accountPhone(); account != "" {
		channel, err := h.channels.ResolveByProviderPhone(ctx, providerName, account)
		if err != nil {
			logger.WarnContext(ctx, "webhook account does not match a channel", "account", account, "error", err)
		} else {
			msg.ChannelID = channel.ID
		}
	}

	if err := h.queue.Enqueue(ctx, *msg); err != nil {
		return err
	}

	logger.InfoContext(ctx, "inbound message accepted",
		"message_id", msg.MessageID, "channel_id", msg.ChannelID, "type", msg.Type)
	return nil
}

// handleStatusEvent records a connectivity transition. Failures are logged
// only: the provider already delivered its event and must not be asked to
// retry it.
func (h *WebhookHandler) handleStatusEvent(ctx context.Context, logger *slog.Logger, providerName string, envelope webhookEnvelope) {
	update, err := h.normalizer.NormalizeStatus(providerName, envelope.Data)
	if err != nil {
		logger.WarnContext(ctx, "unnormalizable status payload ignored", "error", err)
		return
	}

	phone := update.PhoneNumber
	if phone == "" {
		phone = envelope.accountPhone()
	}
	if phone == "" {
		logger.WarnContext(ctx, "status event carries no account identity, ignored")
		return
	}

	channel, err := h.channels.ResolveByProviderPhone(ctx, providerName, phone)
	if err != nil {
		logger.WarnContext(ctx, "status event does not match a channel", "account", phone, "error", err)
		return
	}

	status := core_domain.ChannelStatusInactive
	if update.Connected {
		status = core_domain.ChannelStatusActive
	}
	if err := h.channels.SetStatus(ctx, channel.ID, status); err != nil {
		logger.ErrorContext(ctx, "failed to update channel status", "channel_id", channel.ID, "error", err)
		return
	}
	logger.InfoContext(ctx, "channel status updated", "channel_id", channel.ID, "status", status)
}

func (e webhookEnvelope) accountPhone() string {
	if e.Account != "" {
		return e.Account
	}
	return e.Instance
}

// verifySignature compares the hex HMAC-SHA256 of the raw body against the
// header value in constant time.
func verifySignature(body []byte, signature, secret string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

// signatureHeader builds the per-provider signature header name, e.g.
// "X-Waconnect-Signature".
func signatureHeader(providerName string) string {
	if providerName == "" {
		return "X-Signature"
	}
	return "X-" + strings.ToUpper(providerName[:1]) + strings.ToLower(providerName[1:]) + "-Signature"
}
