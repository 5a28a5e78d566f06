package identity

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestTokenRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		secret := rapid.SliceOfN(rapid.Byte(), 32, 32).Draw(rt, "secret")
		plaintext := rapid.SliceOfN(rapid.Byte(), 0, 512).Draw(rt, "plaintext")

		encKey, macKey, err := DeriveTokenKeys(secret, "test")
		require.NoError(rt, err)

		token, err := EncryptToken(encKey, macKey, plaintext)
		require.NoError(rt, err)

		got, err := DecryptToken(encKey, macKey, token)
		require.NoError(rt, err)
		require.True(rt, bytes.Equal(got, plaintext))
	})
}

func TestTokenBitFlipFailsAuthentication(t *testing.T) {
	secret := bytes.Repeat([]byte{0x42}, 32)
	encKey, macKey, err := DeriveTokenKeys(secret, "test")
	require.NoError(t, err)

	token, err := EncryptToken(encKey, macKey, []byte("hello reticulum"))
	require.NoError(t, err)

	for i := range token {
		flipped := make([]byte, len(token))
		copy(flipped, token)
		flipped[i] ^= 0x01
		_, err := DecryptToken(encKey, macKey, flipped)
		require.Error(t, err, "bit flip at byte %d should have failed authentication", i)
	}
}

func TestEncryptForRecipientRoundTrip(t *testing.T) {
	priv, pub, err := GenerateX25519()
	require.NoError(t, err)

	plaintext := []byte("a 383-byte MDU payload would go here")
	ciphertext, err := EncryptForRecipient(pub, plaintext)
	require.NoError(t, err)

	got, err := DecryptFromSender(priv, ciphertext)
	require.NoError(t, err)
	require.Equal(t, plaintext, got)
}

func TestPKCS7PadUnpadRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		data := rapid.SliceOfN(rapid.Byte(), 0, 256).Draw(rt, "data")
		padded := pkcs7Pad(data, 16)
		require.Equal(rt, 0, len(padded)%16)
		unpadded, err := pkcs7Unpad(padded, 16)
		require.NoError(rt, err)
		require.True(rt, bytes.Equal(unpadded, data))
	})
}
