package provider

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnichat/gateway/internal/core_domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func newTestAcme(t *testing.T, handler http.HandlerFunc) (*AcmeAdapter, *httptest.Server) {
	t.Helper()
	server := newTestServer(t, handler)
	adapter, err := New("acme", Config{
		Credential: "test-api-key",
		BaseURL:    server.URL,
		HTTPClient: server.Client(),
		Logger:     testLogger(),
	})
	require.NoError(t, err)
	return adapter.(*AcmeAdapter), server
}

func TestNew_UnknownProvider(t *testing.T) {
	_, err := New("carrier-pigeon", Config{})
	assert.ErrorIs(t, err, ErrUnsupportedProvider)
}

func TestAcme_SendText_Success(t *testing.T) {
	adapter, _ := newTestAcme(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/messages/text", r.URL.Path)
		assert.Equal(t, "Bearer test-api-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req acmeTextRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "+15551230000", req.To)
		assert.Equal(t, "hi", req.Body)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(acmeSendResponse{MessageID: "m1"})
	})

	result := adapter.SendText(context.Background(), "c1", "+15551230000", "hi")
	assert.True(t, result.Success)
	assert.Equal(t, "m1", result.MessageID)
	assert.Empty(t, result.Error)
}

func TestAcme_SendText_ProviderError(t *testing.T) {
	adapter, _ := newTestAcme(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(acmeErrorResponse{Error: "recipient is not reachable"})
	})

	result := adapter.SendText(context.Background(), "c1", "+15551230000", "hi")
	assert.False(t, result.Success)
	assert.Equal(t, http.StatusUnprocessableEntity, result.StatusCode)
	assert.Equal(t, "recipient is not reachable", result.Error)
}

func TestAcme_SendText_OpaqueError(t *testing.T) {
	adapter, _ := newTestAcme(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("<html>bad gateway</html>"))
	})

	result := adapter.SendText(context.Background(), "c1", "+15551230000", "hi")
	assert.False(t, result.Success)
	assert.Equal(t, "http 502: Bad Gateway", result.Error)
}

func TestAcme_SendMedia_EndpointPerKind(t *testing.T) {
	var gotPath string
	adapter, _ := newTestAcme(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewEncoder(w).Encode(acmeSendResponse{MessageID: "m2"})
	})

	result := adapter.SendMedia(context.Background(), "c1", "+15551230000", core_domain.Media{
		Kind: "image", URL: "https://cdn.example.com/a.jpg", Caption: "look",
	})
	assert.True(t, result.Success)
	assert.Equal(t, "/v1/messages/image", gotPath)
}

func TestAcme_SendMedia_UnsupportedKind(t *testing.T) {
	var calls atomic.Int64
	adapter, _ := newTestAcme(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})

	result := adapter.SendMedia(context.Background(), "c1", "+15551230000", core_domain.Media{
		Kind: "sticker", URL: "https://cdn.example.com/s.webp",
	})
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "unsupported media kind")
	assert.Equal(t, int64(0), calls.Load(), "unsupported media must not hit the network")
}

func TestAcme_SendText_NetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // connection refused from here on

	adapter, err := New("acme", Config{
		Credential: "k", BaseURL: server.URL, Logger: testLogger(),
	})
	require.NoError(t, err)

	result := adapter.SendText(context.Background(), "c1", "+15551230000", "hi")
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "request failed")
}

func TestAcme_GetStatus(t *testing.T) {
	adapter, _ := newTestAcme(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/instance/status", r.URL.Path)
		json.NewEncoder(w).Encode(acmeStatusResponse{
			Status: "connected", PhoneNumber: "+15557770000", LastSeen: 1700000000,
		})
	})

	info, err := adapter.GetStatus(context.Background(), "c1")
	require.NoError(t, err)
	assert.True(t, info.Connected)
	assert.Equal(t, "connected", info.Status)
	assert.Equal(t, "+15557770000", info.PhoneNumber)
	assert.Equal(t, int64(1700000000), info.LastSeen.Unix())
}

func TestAcme_SetWebhook_Error(t *testing.T) {
	adapter, _ := newTestAcme(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		w.WriteHeader(http.StatusForbidden)
	})

	err := adapter.SetWebhook(context.Background(), "c1", "https://gw.example.com/webhooks/acme")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http 403")
}

func TestAcme_Disconnect_NetworkFailureDoesNotPanic(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	adapter, err := New("acme", Config{Credential: "k", BaseURL: server.URL, Logger: testLogger()})
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		adapter.Disconnect(context.Background(), "c1")
	})
}
