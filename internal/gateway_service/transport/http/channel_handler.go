package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	channeldomain "github.com/omnichat/gateway/internal/channel_service/domain"
	"github.com/omnichat/gateway/internal/core_domain"
	outboundapp "github.com/omnichat/gateway/internal/outbound_service/app"
	"github.com/omnichat/gateway/internal/provider"
)

// ChannelService is the registry surface the HTTP layer consumes.
type ChannelService interface {
	CreateChannel(ctx context.Context, tenantID, providerName, plaintextCredential, phoneNumber string) (*core_domain.Channel, error)
	GetChannel(ctx context.Context, id string) (*core_domain.Channel, error)
	GetChannelsByTenant(ctx context.Context, tenantID string) ([]*core_domain.Channel, error)
	UpdateChannel(ctx context.Context, id string, patch core_domain.ChannelPatch) (*core_domain.Channel, error)
	DeleteChannel(ctx context.Context, id string) (bool, error)
	GetProvider(ctx context.Context, channelID string) (provider.Adapter, error)
}

// MessageSubmitter enqueues outbound jobs.
type MessageSubmitter interface {
	Submit(ctx context.Context, req outboundapp.SubmitRequest) (*core_domain.OutboundJob, error)
}

// ChannelHandler exposes channel CRUD and message submission to the admin
// surface.
type ChannelHandler struct {
	channels  ChannelService
	submitter MessageSubmitter
	validate  *validator.Validate
	logger    *slog.Logger
}

// NewChannelHandler creates the channel management handler.
func NewChannelHandler(channels ChannelService, submitter MessageSubmitter, validate *validator.Validate, logger *slog.Logger) *ChannelHandler {
	return &ChannelHandler{
		channels:  channels,
		submitter: submitter,
		validate:  validate,
		logger:    logger.With("component", "channel_handler"),
	}
}

// RegisterRoutes sets up channel management routing.
func (h *ChannelHandler) RegisterRoutes(r chi.Router) {
	r.Post("/channels", h.CreateChannel)
	r.Get("/channels", h.ListChannels)
	r.Get("/channels/{channelID}", h.GetChannel)
	r.Put("/channels/{channelID}", h.UpdateChannel)
	r.Patch("/channels/{channelID}", h.UpdateChannel)
	r.Delete("/channels/{channelID}", h.DeleteChannel)

	r.Get("/channels/{channelID}/status", h.GetChannelStatus)
	r.Post("/channels/{channelID}/messages", h.SendMessage)
	r.Post("/channels/{channelID}/test-message", h.SendTestMessage)
	r.Post("/channels/{channelID}/webhook", h.ConfigureWebhook)
}

func (h *ChannelHandler) CreateChannel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var reqDTO CreateChannelRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&reqDTO); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	defer r.Body.Close()

	if err := h.validate.Struct(reqDTO); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	channel, err := h.channels.CreateChannel(ctx, reqDTO.TenantID, reqDTO.Provider, reqDTO.Credential, reqDTO.PhoneNumber)
	if err != nil {
		h.respondChannelError(ctx, w, err, "failed to create channel")
		return
	}
	respondWithJSON(w, http.StatusCreated, toChannelResponse(channel))
}

func (h *ChannelHandler) ListChannels(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		respondWithError(w, http.StatusBadRequest, "tenant_id query parameter is required")
		return
	}

	channels, err := h.channels.GetChannelsByTenant(ctx, tenantID)
	if err != nil {
		h.respondChannelError(ctx, w, err, "failed to list channels")
		return
	}

	resp := make([]ChannelResponseDTO, 0, len(channels))
	for _, channel := range channels {
		resp = append(resp, toChannelResponse(channel))
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *ChannelHandler) GetChannel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	channel, err := h.channels.GetChannel(ctx, chi.URLParam(r, "channelID"))
	if err != nil {
		h.respondChannelError(ctx, w, err, "failed to get channel")
		return
	}
	respondWithJSON(w, http.StatusOK, toChannelResponse(channel))
}

func (h *ChannelHandler) UpdateChannel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var reqDTO UpdateChannelRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&reqDTO); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	defer r.Body.Close()

	if err := h.validate.Struct(reqDTO); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	patch := core_domain.ChannelPatch{
		PlaintextCredential: reqDTO.Credential,
		PhoneNumber:         reqDTO.PhoneNumber,
	}
	if reqDTO.Status != nil {
		status := core_domain.ChannelStatus(*reqDTO.Status)
		patch.Status = &status
	}

	channel, err := h.channels.UpdateChannel(ctx, chi.URLParam(r, "channelID"), patch)
	if err != nil {
		h.respondChannelError(ctx, w, err, "failed to update channel")
		return
	}
	respondWithJSON(w, http.StatusOK, toChannelResponse(channel))
}

func (h *ChannelHandler) DeleteChannel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	deleted, err := h.channels.DeleteChannel(ctx, chi.URLParam(r, "channelID"))
	if err != nil {
		h.respondChannelError(ctx, w, err, "failed to delete channel")
		return
	}
	if !deleted {
		respondWithError(w, http.StatusNotFound, "channel not found")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *ChannelHandler) GetChannelStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	channelID := chi.URLParam(r, "channelID")

	adapter, err := h.channels.GetProvider(ctx, channelID)
	if err != nil {
		h.respondChannelError(ctx, w, err, "failed to resolve channel provider")
		return
	}

	status, err := adapter.GetStatus(ctx, channelID)
	if err != nil {
		h.logger.ErrorContext(ctx, "provider status call failed",
			"request_id", chi_middleware.GetReqID(ctx), "channel_id", channelID, "error", err)
		respondWithError(w, http.StatusBadGateway, "provider status check failed")
		return
	}

	resp := map[string]interface{}{
		"connected": status.Connected,
		"status":    status.Status,
	}
	if status.PhoneNumber != "" {
		resp["phoneNumber"] = status.PhoneNumber
	}
	if !status.LastSeen.IsZero() {
		resp["lastSeen"] = status.LastSeen.Format(time.RFC3339)
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *ChannelHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var reqDTO SendMessageRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&reqDTO); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	defer r.Body.Close()

	if err := h.validate.Struct(reqDTO); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	submit := outboundapp.SubmitRequest{
		ChannelID: chi.URLParam(r, "channelID"),
		To:        reqDTO.To,
		Kind:      core_domain.PayloadKind(reqDTO.Type),
		Text:      reqDTO.Text,
	}
	if reqDTO.Media != nil {
		submit.Media = &core_domain.Media{
			Kind:     reqDTO.Media.Kind,
			URL:      reqDTO.Media.URL,
			Caption:  reqDTO.Media.Caption,
			Filename: reqDTO.Media.Filename,
		}
	}

	job, err := h.submitter.Submit(ctx, submit)
	if err != nil {
		h.respondSubmitError(ctx, w, err)
		return
	}
	respondWithJSON(w, http.StatusAccepted, toJobResponse(job))
}

// SendTestMessage is a thin pass-through to job submission for connectivity
// checks from the admin surface.
func (h *ChannelHandler) SendTestMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var reqDTO TestMessageRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&reqDTO); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	defer r.Body.Close()

	if err := h.validate.Struct(reqDTO); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := h.submitter.Submit(ctx, outboundapp.SubmitRequest{
		ChannelID: chi.URLParam(r, "channelID"),
		To:        reqDTO.To,
		Kind:      core_domain.PayloadKindText,
		Text:      reqDTO.Text,
	})
	if err != nil {
		h.respondSubmitError(ctx, w, err)
		return
	}
	respondWithJSON(w, http.StatusAccepted, toJobResponse(job))
}

func (h *ChannelHandler) ConfigureWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	channelID := chi.URLParam(r, "channelID")

	var reqDTO ConfigureWebhookRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&reqDTO); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	defer r.Body.Close()

	if err := h.validate.Struct(reqDTO); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	adapter, err := h.channels.GetProvider(ctx, channelID)
	if err != nil {
		h.respondChannelError(ctx, w, err, "failed to resolve channel provider")
		return
	}

	if err := adapter.SetWebhook(ctx, channelID, reqDTO.URL); err != nil {
		h.logger.ErrorContext(ctx, "provider webhook registration failed",
			"request_id", chi_middleware.GetReqID(ctx), "channel_id", channelID, "error", err)
		respondWithError(w, http.StatusBadGateway, "provider webhook registration failed")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *ChannelHandler) respondChannelError(ctx context.Context, w http.ResponseWriter, err error, logMsg string) {
	switch {
	case errors.Is(err, channeldomain.ErrChannelNotFound):
		respondWithError(w, http.StatusNotFound, "channel not found")
	case errors.Is(err, channeldomain.ErrDuplicateChannel):
		respondWithError(w, http.StatusConflict, "channel already exists for this provider account")
	case errors.Is(err, provider.ErrUnsupportedProvider):
		respondWithError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.ErrorContext(ctx, logMsg, "request_id", chi_middleware.GetReqID(ctx), "error", err)
		respondWithError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (h *ChannelHandler) respondSubmitError(ctx context.Context, w http.ResponseWriter, err error) {
	if errors.Is(err, channeldomain.ErrChannelNotFound) {
		respondWithError(w, http.StatusNotFound, "channel not found")
		return
	}
	h.logger.WarnContext(ctx, "message submission rejected",
		"request_id", chi_middleware.GetReqID(ctx), "error", err)
	respondWithError(w, http.StatusBadRequest, err.Error())
}
