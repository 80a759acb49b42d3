package app

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnichat/gateway/internal/core_domain"
)

func testNormalizer(t *testing.T, groupSuffixes map[string]string) *Normalizer {
	t.Helper()
	return NewNormalizer(groupSuffixes, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestNormalizeMessage_WAConnectText(t *testing.T) {
	n := testNormalizer(t, nil)
	data := json.RawMessage(`{
		"id": "wm1",
		"from": "+15551230000",
		"type": "text",
		"body": "hello",
		"timestamp": 1700000000,
		"chat_id": "+15551230000"
	}`)

	msg, err := n.NormalizeMessage("waconnect", data)
	require.NoError(t, err)

	assert.Equal(t, "waconnect", msg.Provider)
	assert.Equal(t, "wm1", msg.MessageID)
	assert.Equal(t, core_domain.MessageTypeText, msg.Type)
	assert.Equal(t, "hello", msg.Body)
	assert.Equal(t, "+15551230000", msg.From)
	assert.Equal(t, int64(1700000000), msg.Timestamp.Unix())
}

func TestNormalizeMessage_WAConnectStripsChatSuffixFromSender(t *testing.T) {
	n := testNormalizer(t, nil)
	data := json.RawMessage(`{"id":"wm2","from":"+15551230000@c.us","type":"chat","body":"hi","chat_id":"+15551230000@c.us"}`)

	msg, err := n.NormalizeMessage("waconnect", data)
	require.NoError(t, err)
	assert.Equal(t, "+15551230000", msg.From)
	assert.Equal(t, core_domain.MessageTypeText, msg.Type, `"chat" is the text alias`)
}

func TestNormalizeMessage_WAConnectGroupDropped(t *testing.T) {
	n := testNormalizer(t, nil)
	data := json.RawMessage(`{"id":"wm3","from":"+15551230000","type":"text","body":"group hi","chat_id":"12036304@g.us"}`)

	msg, err := n.NormalizeMessage("waconnect", data)
	require.ErrorIs(t, err, ErrGroupMessage)
	assert.Nil(t, msg)
}

func TestNormalizeMessage_GroupSuffixConfigurable(t *testing.T) {
	n := testNormalizer(t, map[string]string{"acme": ":group"})
	data := json.RawMessage(`{"message_id":"am1","sender":"+15551230000","kind":"text","text":"x","conversation_id":"conv-7:group"}`)

	_, err := n.NormalizeMessage("acme", data)
	require.ErrorIs(t, err, ErrGroupMessage)
}

func TestNormalizeMessage_WAConnectMedia(t *testing.T) {
	n := testNormalizer(t, nil)
	data := json.RawMessage(`{
		"id": "wm4",
		"from": "+15551230000",
		"type": "image",
		"timestamp": 1700000050,
		"chat_id": "+15551230000",
		"media_url": "https://cdn.example.com/a.jpg",
		"caption": "look",
		"filename": "a.jpg"
	}`)

	msg, err := n.NormalizeMessage("waconnect", data)
	require.NoError(t, err)
	assert.Equal(t, core_domain.MessageTypeImage, msg.Type)
	assert.Equal(t, "https://cdn.example.com/a.jpg", msg.MediaURL)
	assert.Equal(t, "look", msg.Caption)
	assert.Equal(t, "a.jpg", msg.Filename)
}

func TestNormalizeMessage_AcmeDocumentWithQuote(t *testing.T) {
	n := testNormalizer(t, nil)
	data := json.RawMessage(`{
		"message_id": "am2",
		"sender": "+15559870000",
		"kind": "document",
		"conversation_id": "conv-9",
		"sent_at": 1700000100,
		"media": {"url": "https://cdn.example.com/q.pdf", "filename": "q.pdf"},
		"quoted_message_id": "am1"
	}`)

	msg, err := n.NormalizeMessage("acme", data)
	require.NoError(t, err)
	assert.Equal(t, "acme", msg.Provider)
	assert.Equal(t, core_domain.MessageTypeDocument, msg.Type)
	assert.Equal(t, "https://cdn.example.com/q.pdf", msg.MediaURL)
	assert.Equal(t, "q.pdf", msg.Filename)
	assert.Equal(t, "am1", msg.QuotedMessageID)
}

func TestNormalizeMessage_UnsupportedType(t *testing.T) {
	n := testNormalizer(t, nil)
	data := json.RawMessage(`{"id":"wm5","from":"+1555","type":"sticker","chat_id":"+1555"}`)

	_, err := n.NormalizeMessage("waconnect", data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported message type")
}

func TestNormalizeMessage_UnknownProvider(t *testing.T) {
	n := testNormalizer(t, nil)
	_, err := n.NormalizeMessage("telegram", json.RawMessage(`{}`))
	require.Error(t, err)
}

func TestNormalizeMessage_MissingTimestampDefaultsToNow(t *testing.T) {
	n := testNormalizer(t, nil)
	data := json.RawMessage(`{"id":"wm6","from":"+1555","type":"text","body":"x","chat_id":"+1555"}`)

	msg, err := n.NormalizeMessage("waconnect", data)
	require.NoError(t, err)
	assert.False(t, msg.Timestamp.IsZero())
}

func TestNormalizeStatus(t *testing.T) {
	n := testNormalizer(t, nil)

	update, err := n.NormalizeStatus("waconnect", json.RawMessage(`{"status":"authorized","phone_number":"+15551110000"}`))
	require.NoError(t, err)
	assert.True(t, update.Connected)
	assert.Equal(t, "+15551110000", update.PhoneNumber)

	update, err = n.NormalizeStatus("waconnect", json.RawMessage(`{"status":"notAuthorized"}`))
	require.NoError(t, err)
	assert.False(t, update.Connected)

	update, err = n.NormalizeStatus("acme", json.RawMessage(`{"status":"connected","phone_number":"+15552220000"}`))
	require.NoError(t, err)
	assert.True(t, update.Connected)

	_, err = n.NormalizeStatus("telegram", json.RawMessage(`{}`))
	require.Error(t, err)
}
