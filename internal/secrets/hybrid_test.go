package secrets

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	key := testKey(t)

	for _, plaintext := range []string{
		"sk-ABCDEFGHIJKL",
		"",
		"short",
		strings.Repeat("x", 4096),
	} {
		blob, err := Encrypt(&key.PublicKey, plaintext)
		require.NoError(t, err)

		decoded, err := base64.StdEncoding.DecodeString(blob)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(string(decoded), "HYBRID:"))

		got, err := Decrypt(key, blob)
		require.NoError(t, err)
		assert.Equal(t, plaintext, got)
	}
}

func TestDecrypt_LegacyBareOAEP(t *testing.T) {
	key := testKey(t)

	ct, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, &key.PublicKey, []byte("legacy-api-key"), nil)
	require.NoError(t, err)
	blob := base64.StdEncoding.EncodeToString(ct)

	got, err := Decrypt(key, blob)
	require.NoError(t, err)
	assert.Equal(t, "legacy-api-key", got)
}

func TestDecrypt_WrongKeyIsOpaque(t *testing.T) {
	key := testKey(t)
	other := testKey(t)

	blob, err := Encrypt(&key.PublicKey, "secret")
	require.NoError(t, err)

	_, err = Decrypt(other, blob)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDecryptFailed)
}

func TestDecrypt_GarbageInput(t *testing.T) {
	key := testKey(t)

	_, err := Decrypt(key, "not base64 at all!!!")
	assert.ErrorIs(t, err, ErrDecryptFailed)

	_, err = Decrypt(key, base64.StdEncoding.EncodeToString([]byte("HYBRID:tooshort")))
	assert.ErrorIs(t, err, ErrDecryptFailed)
}

func TestObfuscate(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"sk-ABCDEFGHIJKL", "sk-ABC************KL"},
		{"12345678", strings.Repeat("*", 20)},
		{"", strings.Repeat("*", 20)},
		{"123456789", "123456************89"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Obfuscate(tc.in), "input %q", tc.in)
	}
}

func TestFSKeyStore_Lifecycle(t *testing.T) {
	base := t.TempDir()
	store := NewFSKeyStore(base)

	pubPEM, err := store.Generate("team-1")
	require.NoError(t, err)
	assert.Contains(t, pubPEM, "PUBLIC KEY")

	pub, err := ParsePublicPEM(pubPEM)
	require.NoError(t, err)

	blob, err := Encrypt(pub, "hello")
	require.NoError(t, err)

	priv, err := store.LoadPrivate("team-1")
	require.NoError(t, err)

	got, err := Decrypt(priv, blob)
	require.NoError(t, err)
	assert.Equal(t, "hello", got)

	require.NoError(t, store.Destroy("team-1"))
	_, err = store.LoadPrivate("team-1")
	assert.ErrorIs(t, err, ErrPrivateKeyNotFound)
}
