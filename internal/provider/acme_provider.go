package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/omnichat/gateway/internal/core_domain"
)

const acmeDefaultBaseURL = "https://api.acme-chat.example.com"

// acmeMediaEndpoints maps canonical media kinds to Acme's per-kind send
// endpoints. Kinds outside this map are unsupported for this provider.
var acmeMediaEndpoints = map[string]string{
	"image":    "/v1/messages/image",
	"video":    "/v1/messages/video",
	"audio":    "/v1/messages/audio",
	"document": "/v1/messages/document",
}

// AcmeAdapter talks to the Acme chat REST API. Authentication is a bearer
// token (the decrypted channel credential).
type AcmeAdapter struct {
	logger     *slog.Logger
	httpClient *http.Client
	baseURL    string
	token      string
}

func newAcmeAdapter(cfg Config) Adapter {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = acmeDefaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &AcmeAdapter{
		logger:     cfg.Logger.With("provider", "acme"),
		httpClient: httpClient,
		baseURL:    baseURL,
		token:      cfg.Credential,
	}
}

func (a *AcmeAdapter) Name() string { return "acme" }

type acmeTextRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

type acmeMediaRequest struct {
	To       string `json:"to"`
	URL      string `json:"url"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
}

type acmeSendResponse struct {
	MessageID string `json:"message_id"`
}

type acmeErrorResponse struct {
	Error string `json:"error"`
}

type acmeStatusResponse struct {
	Status      string `json:"status"`
	PhoneNumber string `json:"phone_number"`
	LastSeen    int64  `json:"last_seen"`
}

func (a *AcmeAdapter) SendText(ctx context.Context, channelID, to, text string) *SendResult {
	return a.send(ctx, "send_text", "/v1/messages/text", textRequestTimeout,
		acmeTextRequest{To: to, Body: text})
}

func (a *AcmeAdapter) SendMedia(ctx context.Context, channelID, to string, media core_domain.Media) *SendResult {
	endpoint, ok := acmeMediaEndpoints[media.Kind]
	if !ok {
		// Structured failure, no network call, so batch sends continue.
		return &SendResult{Success: false, Error: fmt.Sprintf("unsupported media kind: %s", media.Kind)}
	}
	return a.send(ctx, "send_media", endpoint, mediaRequestTimeout,
		acmeMediaRequest{To: to, URL: media.URL, Caption: media.Caption, Filename: media.Filename})
}

func (a *AcmeAdapter) send(ctx context.Context, operation, endpoint string, timeout time.Duration, payload any) *SendResult {
	start := time.Now()
	result := a.doSend(ctx, endpoint, timeout, payload)
	observeRequest("acme", operation, result.Success, time.Since(start).Seconds())
	return result
}

func (a *AcmeAdapter) doSend(ctx context.Context, endpoint string, timeout time.Duration, payload any) *SendResult {
	body, err := json.Marshal(payload)
	if err != nil {
		return &SendResult{Success: false, Error: fmt.Sprintf("marshal request: %v", err)}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return &SendResult{Success: false, Error: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.token)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		a.logger.WarnContext(ctx, "acme request failed", "endpoint", endpoint, "error", err)
		return &SendResult{Success: false, Error: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &SendResult{Success: false, StatusCode: resp.StatusCode,
			Error: fmt.Sprintf("read response (status %d): %v", resp.StatusCode, err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &SendResult{Success: false, StatusCode: resp.StatusCode,
			Error: acmeErrorMessage(resp.StatusCode, respBody)}
	}

	var sendResp acmeSendResponse
	if err := json.Unmarshal(respBody, &sendResp); err != nil {
		// 2xx with an unparseable body still counts as accepted.
		a.logger.WarnContext(ctx, "acme success response not parseable", "endpoint", endpoint, "error", err)
		return &SendResult{Success: true, StatusCode: resp.StatusCode}
	}
	return &SendResult{Success: true, MessageID: sendResp.MessageID, StatusCode: resp.StatusCode}
}

// acmeErrorMessage prefers the provider's own error text when present, falling
// back to "http <status>: <statusText>".
func acmeErrorMessage(statusCode int, body []byte) string {
	var errResp acmeErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return errResp.Error
	}
	return fmt.Sprintf("http %d: %s", statusCode, http.StatusText(statusCode))
}

func (a *AcmeAdapter) GetStatus(ctx context.Context, channelID string) (*StatusInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, textRequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/v1/instance/status", nil)
	if err != nil {
		return nil, fmt.Errorf("acme: build status request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.token)

	start := time.Now()
	resp, err := a.httpClient.Do(req)
	if err != nil {
		observeRequest("acme", "get_status", false, time.Since(start).Seconds())
		return nil, fmt.Errorf("acme: status request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		observeRequest("acme", "get_status", false, time.Since(start).Seconds())
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("acme: %s", acmeErrorMessage(resp.StatusCode, body))
	}

	var statusResp acmeStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&statusResp); err != nil {
		observeRequest("acme", "get_status", false, time.Since(start).Seconds())
		return nil, fmt.Errorf("acme: decode status response: %w", err)
	}
	observeRequest("acme", "get_status", true, time.Since(start).Seconds())

	info := &StatusInfo{
		Connected:   statusResp.Status == "connected",
		Status:      statusResp.Status,
		PhoneNumber: statusResp.PhoneNumber,
	}
	if statusResp.LastSeen > 0 {
		info.LastSeen = time.Unix(statusResp.LastSeen, 0).UTC()
	}
	return info, nil
}

func (a *AcmeAdapter) Disconnect(ctx context.Context, channelID string) {
	ctx, cancel := context.WithTimeout(ctx, textRequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, a.baseURL+"/v1/instance/session", nil)
	if err != nil {
		a.logger.WarnContext(ctx, "acme disconnect request build failed", "channel_id", channelID, "error", err)
		return
	}
	req.Header.Set("Authorization", "Bearer "+a.token)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		// Best effort: the caller is removing its local registration and that
		// must still succeed.
		a.logger.WarnContext(ctx, "acme disconnect failed", "channel_id", channelID, "error", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		a.logger.WarnContext(ctx, "acme disconnect rejected", "channel_id", channelID, "status_code", resp.StatusCode)
	}
}

func (a *AcmeAdapter) SetWebhook(ctx context.Context, channelID, url string) error {
	body, err := json.Marshal(map[string]string{"url": url})
	if err != nil {
		return fmt.Errorf("acme: marshal webhook request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, textRequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, a.baseURL+"/v1/instance/webhook", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("acme: build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.token)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("acme: webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("acme: set webhook: %s", acmeErrorMessage(resp.StatusCode, respBody))
	}
	return nil
}
