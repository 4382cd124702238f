package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/loomworklabs/parley/internal/core/domain"
	"github.com/loomworklabs/parley/internal/core/ports"
	"github.com/loomworklabs/parley/internal/platform/logger"
	"github.com/loomworklabs/parley/internal/secrets"
	"github.com/loomworklabs/parley/internal/store"
)

// CredentialService owns the enroll/read/decrypt lifecycle of tenant
// provider credentials. Secrets are encrypted per team on write and only
// ever leave here obfuscated, except for the request-scoped plaintext the
// bundle factory asks for.
type CredentialService struct {
	repo     store.Repository
	registry ports.Registry
	keys     secrets.KeyStore
	log      *zap.Logger
}

func NewCredentialService(repo store.Repository, registry ports.Registry, keys secrets.KeyStore) *CredentialService {
	return &CredentialService{
		repo:     repo,
		registry: registry,
		keys:     keys,
		log:      logger.Get(),
	}
}

// Enroll validates a credential form submission against the provider's
// schema, probes the provider with the plaintext values, then encrypts
// the secret fields with the team's public key and upserts the row.
// Secret fields holding the hidden sentinel are replaced with the stored
// plaintext before the probe, so an update that does not retype the key
// still validates it.
func (s *CredentialService) Enroll(ctx context.Context, teamID, providerName string, values map[string]interface{}) error {
	schema, err := s.registry.Get(providerName)
	if err != nil {
		return err
	}

	validated, err := domain.ValidateAgainstForm(schema.CredentialForm, values)
	if err != nil {
		return domain.Wrap(domain.CodeCredentialInvalid, err, "invalid credentials for %s", providerName)
	}

	if err := s.restoreHidden(ctx, teamID, providerName, schema, validated); err != nil {
		return err
	}

	collection, err := s.registry.Collection(providerName, domain.ModelTypeLLM)
	if err != nil {
		return err
	}
	if err := collection.ValidateCredentials(ctx, schema.ValidateModel, validated); err != nil {
		s.log.Info("credential probe failed",
			zap.String("team_id", teamID),
			zap.String("provider", providerName),
			zap.Error(err))
		return domain.Wrap(domain.CodeCredentialInvalid, err, "credentials for %s were rejected by the provider", providerName)
	}

	team, err := s.repo.Teams().Get(ctx, teamID)
	if err != nil {
		return s.mapStoreErr(err, "team %s", teamID)
	}
	pub, err := secrets.ParsePublicPEM(team.PublicKeyPEM)
	if err != nil {
		return domain.Wrap(domain.CodeCredentialDecrypt, err, "credential handling failed")
	}

	sealed := make(map[string]interface{}, len(validated))
	for _, entity := range schema.CredentialForm {
		v, ok := validated[entity.Name]
		if !ok || v == nil {
			continue
		}
		if entity.Type == domain.EntityTypeSecret {
			plain, _ := v.(string)
			blob, err := secrets.Encrypt(pub, plain)
			if err != nil {
				return domain.Wrap(domain.CodeCredentialDecrypt, err, "credential handling failed")
			}
			sealed[entity.Name] = blob
			continue
		}
		sealed[entity.Name] = v
	}

	encoded, err := json.Marshal(sealed)
	if err != nil {
		return domain.Wrap(domain.CodeCredentialDecrypt, err, "credential handling failed")
	}

	now := time.Now().UTC()
	return s.repo.Credentials().Upsert(ctx, &domain.TenantCredential{
		ID:              uuid.NewString(),
		TeamID:          teamID,
		ProviderName:    providerName,
		EncryptedConfig: string(encoded),
		IsValid:         true,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
}

// Get returns the stored credential values with every secret field
// obfuscated. Missing rows surface as not_found.
func (s *CredentialService) Get(ctx context.Context, teamID, providerName string) (map[string]interface{}, error) {
	schema, err := s.registry.Get(providerName)
	if err != nil {
		return nil, err
	}

	plain, err := s.decrypt(ctx, teamID, providerName, false)
	if err != nil {
		return nil, err
	}

	out := make(map[string]interface{}, len(plain))
	for k, v := range plain {
		out[k] = v
	}
	for _, entity := range schema.CredentialForm {
		if entity.Type != domain.EntityTypeSecret {
			continue
		}
		if v, ok := out[entity.Name].(string); ok {
			out[entity.Name] = secrets.Obfuscate(v)
		}
	}
	return out, nil
}

// Decrypt returns the plaintext credential map for a model call. The
// caller must not persist or log the result. Rows marked invalid are
// rejected with credential_not_enabled.
func (s *CredentialService) Decrypt(ctx context.Context, teamID, providerName string) (map[string]interface{}, error) {
	return s.decrypt(ctx, teamID, providerName, true)
}

func (s *CredentialService) Delete(ctx context.Context, teamID, providerName string) error {
	if _, err := s.registry.Get(providerName); err != nil {
		return err
	}
	if err := s.repo.Credentials().Delete(ctx, teamID, providerName); err != nil {
		return s.mapStoreErr(err, "credentials for %s", providerName)
	}
	return nil
}

// restoreHidden swaps hidden sentinels for the stored plaintext values.
// A sentinel without a stored row is a client error.
func (s *CredentialService) restoreHidden(ctx context.Context, teamID, providerName string, schema *domain.ProviderSchema, validated map[string]interface{}) error {
	var stored map[string]interface{}
	for _, entity := range schema.CredentialForm {
		if entity.Type != domain.EntityTypeSecret {
			continue
		}
		v, ok := validated[entity.Name].(string)
		if !ok || v != domain.HiddenValue {
			continue
		}
		if stored == nil {
			var err error
			stored, err = s.decrypt(ctx, teamID, providerName, false)
			if err != nil {
				if domain.IsCode(err, domain.CodeNotFound) {
					return domain.E(domain.CodeCredentialInvalid, "%s has no stored value to keep", entity.Name)
				}
				return err
			}
		}
		prev, ok := stored[entity.Name].(string)
		if !ok || prev == "" {
			return domain.E(domain.CodeCredentialInvalid, "%s has no stored value to keep", entity.Name)
		}
		validated[entity.Name] = prev
	}
	return nil
}

func (s *CredentialService) decrypt(ctx context.Context, teamID, providerName string, requireEnabled bool) (map[string]interface{}, error) {
	cred, err := s.repo.Credentials().Get(ctx, teamID, providerName)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			if requireEnabled {
				return nil, domain.E(domain.CodeCredentialNotEnabled, "no credentials enrolled for %s", providerName)
			}
			return nil, domain.E(domain.CodeNotFound, "no credentials enrolled for %s", providerName)
		}
		return nil, err
	}
	if requireEnabled && !cred.IsValid {
		return nil, domain.E(domain.CodeCredentialNotEnabled, "credentials for %s are disabled", providerName)
	}

	priv, err := s.keys.LoadPrivate(teamID)
	if err != nil {
		if errors.Is(err, secrets.ErrPrivateKeyNotFound) {
			return nil, domain.Wrap(domain.CodeCredentialDecrypt, err, "credential decryption failed")
		}
		return nil, domain.Wrap(domain.CodeCredentialDecrypt, err, "credential decryption failed")
	}

	// Legacy rows hold one bare RSA blob whose plaintext is the whole
	// JSON config. Current rows are a JSON object with per-field blobs.
	raw := cred.EncryptedConfig
	var sealed map[string]interface{}
	if !strings.HasPrefix(strings.TrimSpace(raw), "{") {
		plain, err := secrets.Decrypt(priv, raw)
		if err != nil {
			return nil, domain.Wrap(domain.CodeCredentialDecrypt, err, "credential decryption failed")
		}
		var out map[string]interface{}
		if err := json.Unmarshal([]byte(plain), &out); err != nil {
			return nil, domain.Wrap(domain.CodeCredentialDecrypt, err, "credential decryption failed")
		}
		return out, nil
	}
	if err := json.Unmarshal([]byte(raw), &sealed); err != nil {
		return nil, domain.Wrap(domain.CodeCredentialDecrypt, err, "credential decryption failed")
	}

	schema, err := s.registry.Get(providerName)
	if err != nil {
		return nil, err
	}

	out := make(map[string]interface{}, len(sealed))
	for k, v := range sealed {
		out[k] = v
	}
	for _, entity := range schema.CredentialForm {
		if entity.Type != domain.EntityTypeSecret {
			continue
		}
		blob, ok := sealed[entity.Name].(string)
		if !ok {
			continue
		}
		plain, err := secrets.Decrypt(priv, blob)
		if err != nil {
			return nil, domain.Wrap(domain.CodeCredentialDecrypt, err, "credential decryption failed")
		}
		out[entity.Name] = plain
	}
	return out, nil
}

func (s *CredentialService) mapStoreErr(err error, format string, args ...interface{}) error {
	if errors.Is(err, store.ErrNotFound) {
		return domain.Wrap(domain.CodeNotFound, err, format, args...)
	}
	return err
}
