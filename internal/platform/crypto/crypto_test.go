package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func TestNewAesGcmService_InvalidKeys(t *testing.T) {
	tests := []struct {
		name   string
		hexKey string
	}{
		{"not hex", "zzzz"},
		{"31 bytes", "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcd"},
		{"33 bytes", testKey + "00"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := NewAesGcmService(tt.hexKey)
			assert.Error(t, err)
			assert.Nil(t, svc)
		})
	}
}

func TestEncryptDecrypt_Roundtrip(t *testing.T) {
	svc, err := NewAesGcmService(testKey)
	require.NoError(t, err)

	ct1, err := svc.Encrypt("oauth-access-token")
	require.NoError(t, err)
	ct2, err := svc.Encrypt("oauth-access-token")
	require.NoError(t, err)
	assert.NotEqual(t, ct1, ct2, "nonces must differ")

	plain, err := svc.Decrypt(ct1)
	require.NoError(t, err)
	assert.Equal(t, "oauth-access-token", plain)
}

func TestEncryptDecrypt_Empty(t *testing.T) {
	svc, err := NewAesGcmService(testKey)
	require.NoError(t, err)

	ct, err := svc.Encrypt("")
	require.NoError(t, err)
	assert.Empty(t, ct)

	plain, err := svc.Decrypt("")
	require.NoError(t, err)
	assert.Empty(t, plain)
}

func TestDecrypt_Errors(t *testing.T) {
	svc, err := NewAesGcmService(testKey)
	require.NoError(t, err)

	_, err = svc.Decrypt("not-valid-hex!!!")
	assert.Error(t, err)

	_, err = svc.Decrypt("abcd")
	assert.ErrorIs(t, err, ErrCiphertextTooShort)

	ct, err := svc.Encrypt("token")
	require.NoError(t, err)
	tampered := ct[:len(ct)-2] + "00"
	if tampered == ct {
		tampered = ct[:len(ct)-2] + "11"
	}
	_, err = svc.Decrypt(tampered)
	assert.Error(t, err)
}
