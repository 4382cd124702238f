package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// Blob layout: "HYBRID:" || RSA_OAEP_SHA256(aesKey) || nonce || tag || ct,
// base64-encoded for storage. Blobs without the prefix are legacy bare
// RSA-OAEP ciphertexts.
const (
	hybridPrefix = "HYBRID:"
	aesKeySize   = 16
	nonceSize    = 12
	tagSize      = 16
)

// ErrDecryptFailed is the opaque error surfaced for any decryption
// problem other than a missing private key. The underlying cause is for
// logs only.
var ErrDecryptFailed = errors.New("decryption failed")

// Encrypt seals plaintext for a tenant's public key using a fresh AES
// key wrapped with RSA-OAEP.
func Encrypt(pub *rsa.PublicKey, plaintext string) (string, error) {
	aesKey := make([]byte, aesKeySize)
	if _, err := rand.Read(aesKey); err != nil {
		return "", fmt.Errorf("aes key: %w", err)
	}

	block, err := aes.NewCipher(aesKey)
	if err != nil {
		return "", fmt.Errorf("new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("new gcm: %w", err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}

	// Seal appends the tag after the ciphertext; the wire layout wants
	// the tag first.
	sealed := aead.Seal(nil, nonce, []byte(plaintext), nil)
	ct := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]

	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, aesKey, nil)
	if err != nil {
		return "", fmt.Errorf("wrap key: %w", err)
	}

	blob := make([]byte, 0, len(hybridPrefix)+len(wrapped)+nonceSize+tagSize+len(ct))
	blob = append(blob, hybridPrefix...)
	blob = append(blob, wrapped...)
	blob = append(blob, nonce...)
	blob = append(blob, tag...)
	blob = append(blob, ct...)

	return base64.StdEncoding.EncodeToString(blob), nil
}

// Decrypt inverts Encrypt. Blobs lacking the hybrid prefix fall back to
// a direct RSA-OAEP decrypt for legacy records. Every failure mode maps
// to ErrDecryptFailed with the cause wrapped for logging.
func Decrypt(priv *rsa.PrivateKey, encoded string) (string, error) {
	blob, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}

	if !strings.HasPrefix(string(blob), hybridPrefix) {
		plain, err := rsa.DecryptOAEP(sha256.New(), nil, priv, blob, nil)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrDecryptFailed, err)
		}
		return string(plain), nil
	}

	body := blob[len(hybridPrefix):]
	keyLen := priv.Size()
	if len(body) < keyLen+nonceSize+tagSize {
		return "", fmt.Errorf("%w: blob too short", ErrDecryptFailed)
	}

	wrapped := body[:keyLen]
	nonce := body[keyLen : keyLen+nonceSize]
	tag := body[keyLen+nonceSize : keyLen+nonceSize+tagSize]
	ct := body[keyLen+nonceSize+tagSize:]

	aesKey, err := rsa.DecryptOAEP(sha256.New(), nil, priv, wrapped, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}

	block, err := aes.NewCipher(aesKey)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}

	sealed := make([]byte, 0, len(ct)+tagSize)
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)

	plain, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}
	return string(plain), nil
}

// Obfuscate masks a secret for display: short values disappear entirely
// behind twenty stars, longer ones keep the first six and last two
// characters around a fixed-width mask.
func Obfuscate(s string) string {
	if len(s) <= 8 {
		return strings.Repeat("*", 20)
	}
	return s[:6] + strings.Repeat("*", 12) + s[len(s)-2:]
}
