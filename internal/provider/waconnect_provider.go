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

const waconnectDefaultBaseURL = "https://api.waconnect.example.io"

// waconnectMediaKinds is the set of media kinds WAConnect accepts through its
// single sendFileByUrl endpoint.
var waconnectMediaKinds = map[string]bool{
	"image":    true,
	"video":    true,
	"audio":    true,
	"document": true,
}

// WAConnectAdapter talks to a WhatsApp-style hosted API. Unlike Acme it
// addresses recipients by chat id (number + "@c.us") and authenticates with an
// instance token header rather than a bearer token.
type WAConnectAdapter struct {
	logger     *slog.Logger
	httpClient *http.Client
	baseURL    string
	token      string
}

func newWAConnectAdapter(cfg Config) Adapter {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = waconnectDefaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &WAConnectAdapter{
		logger:     cfg.Logger.With("provider", "waconnect"),
		httpClient: httpClient,
		baseURL:    baseURL,
		token:      cfg.Credential,
	}
}

func (a *WAConnectAdapter) Name() string { return "waconnect" }

func waconnectChatID(to string) string { return to + "@c.us" }

type waconnectTextRequest struct {
	ChatID string `json:"chatId"`
	Body   string `json:"body"`
}

type waconnectFileRequest struct {
	ChatID   string `json:"chatId"`
	FileURL  string `json:"fileUrl"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
}

type waconnectSendResponse struct {
	Sent bool   `json:"sent"`
	ID   string `json:"id"`
}

type waconnectErrorResponse struct {
	Message string `json:"message"`
}

type waconnectStatusResponse struct {
	AccountStatus string `json:"accountStatus"`
	Phone         string `json:"phone"`
	LastSeenEpoch int64  `json:"lastSeenEpoch"`
}

func (a *WAConnectAdapter) SendText(ctx context.Context, channelID, to, text string) *SendResult {
	return a.send(ctx, "send_text", "/api/sendMessage", textRequestTimeout,
		waconnectTextRequest{ChatID: waconnectChatID(to), Body: text})
}

func (a *WAConnectAdapter) SendMedia(ctx context.Context, channelID, to string, media core_domain.Media) *SendResult {
	if !waconnectMediaKinds[media.Kind] {
		return &SendResult{Success: false, Error: fmt.Sprintf("unsupported media kind: %s", media.Kind)}
	}
	return a.send(ctx, "send_media", "/api/sendFileByUrl", mediaRequestTimeout,
		waconnectFileRequest{
			ChatID:   waconnectChatID(to),
			FileURL:  media.URL,
			Caption:  media.Caption,
			Filename: media.Filename,
		})
}

func (a *WAConnectAdapter) send(ctx context.Context, operation, endpoint string, timeout time.Duration, payload any) *SendResult {
	start := time.Now()
	result := a.doSend(ctx, endpoint, timeout, payload)
	observeRequest("waconnect", operation, result.Success, time.Since(start).Seconds())
	return result
}

func (a *WAConnectAdapter) doSend(ctx context.Context, endpoint string, timeout time.Duration, payload any) *SendResult {
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
	req.Header.Set("X-Instance-Token", a.token)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		a.logger.WarnContext(ctx, "waconnect request failed", "endpoint", endpoint, "error", err)
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
			Error: waconnectErrorMessage(resp.StatusCode, respBody)}
	}

	var sendResp waconnectSendResponse
	if err := json.Unmarshal(respBody, &sendResp); err != nil {
		a.logger.WarnContext(ctx, "waconnect success response not parseable", "endpoint", endpoint, "error", err)
		return &SendResult{Success: true, StatusCode: resp.StatusCode}
	}
	if !sendResp.Sent {
		// WAConnect can answer 200 with sent:false on account-side rejection.
		return &SendResult{Success: false, StatusCode: resp.StatusCode,
			Error: "provider rejected message"}
	}
	return &SendResult{Success: true, MessageID: sendResp.ID, StatusCode: resp.StatusCode}
}

func waconnectErrorMessage(statusCode int, body []byte) string {
	var errResp waconnectErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Message != "" {
		return errResp.Message
	}
	return fmt.Sprintf("http %d: %s", statusCode, http.StatusText(statusCode))
}

func (a *WAConnectAdapter) GetStatus(ctx context.Context, channelID string) (*StatusInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, textRequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/api/status", nil)
	if err != nil {
		return nil, fmt.Errorf("waconnect: build status request: %w", err)
	}
	req.Header.Set("X-Instance-Token", a.token)

	start := time.Now()
	resp, err := a.httpClient.Do(req)
	if err != nil {
		observeRequest("waconnect", "get_status", false, time.Since(start).Seconds())
		return nil, fmt.Errorf("waconnect: status request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		observeRequest("waconnect", "get_status", false, time.Since(start).Seconds())
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("waconnect: %s", waconnectErrorMessage(resp.StatusCode, body))
	}

	var statusResp waconnectStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&statusResp); err != nil {
		observeRequest("waconnect", "get_status", false, time.Since(start).Seconds())
		return nil, fmt.Errorf("waconnect: decode status response: %w", err)
	}
	observeRequest("waconnect", "get_status", true, time.Since(start).Seconds())

	info := &StatusInfo{
		Connected:   statusResp.AccountStatus == "authorized",
		Status:      statusResp.AccountStatus,
		PhoneNumber: statusResp.Phone,
	}
	if statusResp.LastSeenEpoch > 0 {
		info.LastSeen = time.Unix(statusResp.LastSeenEpoch, 0).UTC()
	}
	return info, nil
}

func (a *WAConnectAdapter) Disconnect(ctx context.Context, channelID string) {
	ctx, cancel := context.WithTimeout(ctx, textRequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/logout", nil)
	if err != nil {
		a.logger.WarnContext(ctx, "waconnect logout request build failed", "channel_id", channelID, "error", err)
		return
	}
	req.Header.Set("X-Instance-Token", a.token)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		a.logger.WarnContext(ctx, "waconnect logout failed", "channel_id", channelID, "error", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		a.logger.WarnContext(ctx, "waconnect logout rejected", "channel_id", channelID, "status_code", resp.StatusCode)
	}
}

func (a *WAConnectAdapter) SetWebhook(ctx context.Context, channelID, url string) error {
	body, err := json.Marshal(map[string]string{"webhookUrl": url})
	if err != nil {
		return fmt.Errorf("waconnect: marshal webhook request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, textRequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/setSettings", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("waconnect: build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Instance-Token", a.token)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("waconnect: webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("waconnect: set webhook: %s", waconnectErrorMessage(resp.StatusCode, respBody))
	}
	return nil
}
