// Package identity implements Reticulum's cryptographic identity layer:
// X25519/Ed25519 keypairs, destination hashing, and the encrypted token
// construction used to protect data addressed to a SINGLE destination.
package identity

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

// HashLen is the truncated identity/destination hash length in bytes (128 bits).
const HashLen = 16

// NameHashLen is the truncated aspect name-hash length in bytes (80 bits),
// matching the wire format's name_hash field (spec.md §3, §6).
const NameHashLen = 10

// Trunc16 returns the first 16 bytes of SHA-256(data).
func Trunc16(data ...[]byte) [HashLen]byte {
	h := sha256.New()
	for _, d := range data {
		h.Write(d)
	}
	sum := h.Sum(nil)
	var out [HashLen]byte
	copy(out[:], sum[:HashLen])
	return out
}

// Trunc10 returns the first 10 bytes of SHA-256(data), used for aspect name hashes.
func Trunc10(data ...[]byte) [NameHashLen]byte {
	h := sha256.New()
	for _, d := range data {
		h.Write(d)
	}
	sum := h.Sum(nil)
	var out [NameHashLen]byte
	copy(out[:], sum[:NameHashLen])
	return out
}

// SHA256Sum hashes data with SHA-256.
func SHA256Sum(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// SHA512Sum hashes data with SHA-512.
func SHA512Sum(data []byte) [64]byte {
	return sha512.Sum512(data)
}

// HMACSHA256 computes HMAC-SHA256(key, data).
func HMACSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

// HKDFExpand derives n bytes of key material via HKDF-SHA256 with the given salt/info.
func HKDFExpand(secret, salt, info []byte, n int) ([]byte, error) {
	kdf := hkdf.New(sha256.New, secret, salt, info)
	out := make([]byte, n)
	if _, err := io.ReadFull(kdf, out); err != nil {
		return nil, fmt.Errorf("hkdf expand: %w", err)
	}
	return out, nil
}

// GenerateX25519 creates a fresh X25519 keypair.
func GenerateX25519() (priv, pub [32]byte, err error) {
	if _, err = rand.Read(priv[:]); err != nil {
		return priv, pub, fmt.Errorf("generate x25519 private key: %w", err)
	}
	pubBytes, err := ScalarBaseMult(priv)
	if err != nil {
		return priv, pub, fmt.Errorf("derive x25519 public key: %w", err)
	}
	copy(pub[:], pubBytes)
	return priv, pub, nil
}

// ScalarBaseMult computes priv * basepoint on Curve25519, deriving the
// public half of an X25519 private scalar (used directly by callers that
// derive private scalars outside of GenerateX25519, e.g. ratchet epoch keys).
func ScalarBaseMult(priv [32]byte) ([]byte, error) {
	return curve25519.X25519(priv[:], curve25519.Basepoint)
}

// ECDH performs X25519(priv, pub) and rejects degenerate (all-zero) results.
func ECDH(priv, pub [32]byte) ([32]byte, error) {
	var out [32]byte
	shared, err := curve25519.X25519(priv[:], pub[:])
	if err != nil {
		return out, fmt.Errorf("x25519: %w", err)
	}
	copy(out[:], shared)
	if isZero(out[:]) {
		return out, fmt.Errorf("x25519 produced all-zeros shared secret")
	}
	return out, nil
}

// GenerateEd25519 creates a fresh Ed25519 keypair.
func GenerateEd25519() (priv ed25519.PrivateKey, pub ed25519.PublicKey, err error) {
	pub, priv, err = ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("generate ed25519 key: %w", err)
	}
	return priv, pub, nil
}

// Sign produces an Ed25519 signature over message.
func Sign(priv ed25519.PrivateKey, message []byte) []byte {
	return ed25519.Sign(priv, message)
}

// Verify checks an Ed25519 signature.
func Verify(pub ed25519.PublicKey, message, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(pub, message, sig)
}

// pkcs7Pad pads data to a multiple of blockSize per PKCS#7.
func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - (len(data) % blockSize)
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

// pkcs7Unpad strips PKCS#7 padding, rejecting malformed padding in constant-ish time.
func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("pkcs7 unpad: invalid length %d", len(data))
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return nil, fmt.Errorf("pkcs7 unpad: invalid padding length %d", padLen)
	}
	expected := make([]byte, padLen)
	for i := range expected {
		expected[i] = byte(padLen)
	}
	if subtle.ConstantTimeCompare(data[len(data)-padLen:], expected) != 1 {
		return nil, fmt.Errorf("pkcs7 unpad: bad padding bytes")
	}
	return data[:len(data)-padLen], nil
}

// aesCBCEncrypt encrypts plaintext under AES-256-CBC with a fresh random IV,
// returning iv || ciphertext.
func aesCBCEncrypt(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}
	padded := pkcs7Pad(plaintext, aes.BlockSize)
	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("generate iv: %w", err)
	}
	ciphertext := make([]byte, len(padded))
	cbc := cipher.NewCBCEncrypter(block, iv)
	cbc.CryptBlocks(ciphertext, padded)
	return append(iv, ciphertext...), nil
}

// aesCBCDecrypt decrypts iv || ciphertext produced by aesCBCEncrypt.
func aesCBCDecrypt(key, ivAndCiphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}
	if len(ivAndCiphertext) < aes.BlockSize || (len(ivAndCiphertext)-aes.BlockSize)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("malformed ciphertext length %d", len(ivAndCiphertext))
	}
	iv := ivAndCiphertext[:aes.BlockSize]
	ciphertext := ivAndCiphertext[aes.BlockSize:]
	if len(ciphertext) == 0 {
		return nil, fmt.Errorf("empty ciphertext")
	}
	plainPadded := make([]byte, len(ciphertext))
	cbc := cipher.NewCBCDecrypter(block, iv)
	cbc.CryptBlocks(plainPadded, ciphertext)
	return pkcs7Unpad(plainPadded, aes.BlockSize)
}

func isZero(b []byte) bool {
	var acc byte
	for _, v := range b {
		acc |= v
	}
	return acc == 0
}
