package vault

import (
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestVault(t *testing.T) *Vault {
	t.Helper()
	v, err := New("test-secret")
	require.NoError(t, err)
	return v
}

func TestNew_EmptySecret(t *testing.T) {
	v, err := New("")
	assert.Nil(t, v)
	assert.ErrorIs(t, err, ErrNoSecret)
}

func TestVault_RoundTrip(t *testing.T) {
	v := newTestVault(t)

	cases := []string{
		"",
		"simple-api-token",
		"token with spaces and symbols !@#$%^&*()",
		"unicode: héllo wörld 你好 مرحبا",
		string([]byte{0x00, 0x01, 0xff, 0xfe, 0x7f}),
	}
	for _, plaintext := range cases {
		blob, err := v.Encrypt(plaintext)
		require.NoError(t, err)

		got, err := v.Decrypt(blob)
		require.NoError(t, err)
		assert.Equal(t, plaintext, got)
	}
}

func TestVault_EncryptIsNonDeterministic(t *testing.T) {
	v := newTestVault(t)

	first, err := v.Encrypt("same-plaintext")
	require.NoError(t, err)
	second, err := v.Encrypt("same-plaintext")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestVault_DecryptTampered(t *testing.T) {
	v := newTestVault(t)

	blob, err := v.Encrypt("credential")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(blob)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0x01
	tampered := base64.StdEncoding.EncodeToString(raw)

	got, err := v.Decrypt(tampered)
	assert.Empty(t, got)
	assert.True(t, errors.Is(err, ErrIntegrity))
}

func TestVault_DecryptTruncated(t *testing.T) {
	v := newTestVault(t)

	blob, err := v.Encrypt("credential")
	require.NoError(t, err)

	_, err = v.Decrypt(blob[:8])
	assert.ErrorIs(t, err, ErrIntegrity)
}

func TestVault_DecryptGarbage(t *testing.T) {
	v := newTestVault(t)

	_, err := v.Decrypt("not base64 at all !!!")
	assert.ErrorIs(t, err, ErrIntegrity)

	_, err = v.Decrypt(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.ErrorIs(t, err, ErrIntegrity)
}

func TestVault_LooksEncrypted(t *testing.T) {
	v := newTestVault(t)

	blob, err := v.Encrypt("credential")
	require.NoError(t, err)

	assert.True(t, v.LooksEncrypted(blob))
	assert.False(t, v.LooksEncrypted("plaintext-token"))
	assert.False(t, v.LooksEncrypted(""))
}

func TestVault_DifferentSecretsCannotDecrypt(t *testing.T) {
	a, err := New("secret-a")
	require.NoError(t, err)
	b, err := New("secret-b")
	require.NoError(t, err)

	blob, err := a.Encrypt("credential")
	require.NoError(t, err)

	_, err = b.Decrypt(blob)
	assert.ErrorIs(t, err, ErrIntegrity)
}
