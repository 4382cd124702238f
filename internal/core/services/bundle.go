package services

import (
	"context"

	"github.com/loomworklabs/parley/internal/core/domain"
	"github.com/loomworklabs/parley/internal/core/ports"
)

// BundleFactory assembles the request-scoped ModelBundle: provider and
// model schemas, the live collection, decrypted credentials and the
// processed parameter map.
type BundleFactory struct {
	registry    ports.Registry
	credentials *CredentialService
}

func NewBundleFactory(registry ports.Registry, credentials *CredentialService) *BundleFactory {
	return &BundleFactory{registry: registry, credentials: credentials}
}

// Build resolves cfg for the team and layers overrides on top of the
// stored parameters before validating the merged map against the model's
// parameter form.
func (f *BundleFactory) Build(ctx context.Context, teamID string, cfg *domain.ProviderModelConfig, overrides map[string]interface{}) (*ports.ModelBundle, error) {
	if cfg == nil || cfg.ProviderName == "" || cfg.ModelName == "" {
		return nil, domain.E(domain.CodeInvalidModel, "session has no model configuration")
	}

	provider, err := f.registry.Get(cfg.ProviderName)
	if err != nil {
		return nil, err
	}
	model, err := f.registry.ModelSchema(cfg.ProviderName, cfg.ModelName, domain.ModelTypeLLM)
	if err != nil {
		return nil, err
	}
	collection, err := f.registry.Collection(cfg.ProviderName, domain.ModelTypeLLM)
	if err != nil {
		return nil, err
	}

	credentials, err := f.credentials.Decrypt(ctx, teamID, cfg.ProviderName)
	if err != nil {
		return nil, err
	}

	merged := map[string]interface{}{}
	for k, v := range cfg.Parameters {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}

	parameters, err := domain.ValidateAgainstForm(model.ParameterConfigs, merged)
	if err != nil {
		return nil, err
	}

	return &ports.ModelBundle{
		Provider:    provider,
		Model:       model,
		Collection:  collection,
		Credentials: credentials,
		Parameters:  parameters,
	}, nil
}
