package secrets

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrPrivateKeyNotFound is returned when a tenant's private key file is
// missing from the store.
var ErrPrivateKeyNotFound = errors.New("private key not found")

const rsaKeyBits = 2048

// KeyStore manages per-tenant RSA keypairs. The filesystem implementation
// is the default backing; the interface leaves room for a KMS.
type KeyStore interface {
	// Generate creates a fresh keypair for the team and returns the
	// public half as PEM. The private half stays inside the store.
	Generate(teamID string) (publicPEM string, err error)
	// LoadPrivate returns the team's private key, or
	// ErrPrivateKeyNotFound when none exists.
	LoadPrivate(teamID string) (*rsa.PrivateKey, error)
	// Destroy removes all key material for the team.
	Destroy(teamID string) error
}

// FSKeyStore keeps private keys under <base>/keys/teams/<team-id>/private.pem.
type FSKeyStore struct {
	base string
}

func NewFSKeyStore(base string) *FSKeyStore {
	return &FSKeyStore{base: base}
}

func (s *FSKeyStore) teamDir(teamID string) string {
	return filepath.Join(s.base, "keys", "teams", teamID)
}

func (s *FSKeyStore) Generate(teamID string) (string, error) {
	key, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return "", fmt.Errorf("generate keypair: %w", err)
	}

	dir := s.teamDir(teamID)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create key dir: %w", err)
	}

	privPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	if err := os.WriteFile(filepath.Join(dir, "private.pem"), privPEM, 0o600); err != nil {
		return "", fmt.Errorf("write private key: %w", err)
	}

	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return "", fmt.Errorf("marshal public key: %w", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})

	return string(pubPEM), nil
}

func (s *FSKeyStore) LoadPrivate(teamID string) (*rsa.PrivateKey, error) {
	raw, err := os.ReadFile(filepath.Join(s.teamDir(teamID), "private.pem"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrPrivateKeyNotFound
		}
		return nil, fmt.Errorf("read private key: %w", err)
	}

	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, errors.New("malformed private key pem")
	}

	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		// Keys imported from elsewhere may be PKCS#8.
		parsed, err8 := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err8 != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		rsaKey, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("private key is not RSA")
		}
		return rsaKey, nil
	}
	return key, nil
}

func (s *FSKeyStore) Destroy(teamID string) error {
	return os.RemoveAll(s.teamDir(teamID))
}

// ParsePublicPEM decodes a PEM public key as stored on the team record.
func ParsePublicPEM(pemStr string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, errors.New("malformed public key pem")
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("public key is not RSA")
	}
	return pub, nil
}
