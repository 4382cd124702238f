// Package registry holds the process-wide provider catalog. Providers
// and their model collections are registered explicitly at startup; the
// registry is read-only afterwards, so readers need no locking.
package registry

import (
	"fmt"
	"os"

	goversion "github.com/hashicorp/go-version"
	"github.com/loomworklabs/parley/internal/core/domain"
	"github.com/loomworklabs/parley/internal/core/ports"
)

type providerEntry struct {
	schema      *domain.ProviderSchema
	collections map[domain.ModelType]ports.ModelCollection
}

// Registry implements ports.Registry. Registration order is preserved so
// List is stable across runs.
type Registry struct {
	serverVersion *goversion.Version
	order         []string
	providers     map[string]*providerEntry
}

// New creates an empty registry. serverVersion gates provider schemas
// that declare a min_server_version newer than this build.
func New(serverVersion string) (*Registry, error) {
	v, err := goversion.NewVersion(serverVersion)
	if err != nil {
		return nil, fmt.Errorf("invalid server version %q: %w", serverVersion, err)
	}
	return &Registry{
		serverVersion: v,
		providers:     make(map[string]*providerEntry),
	}, nil
}

// RegisterProvider parses <confDir>/<name>.yaml and adds the provider.
// Duplicate names and missing or malformed schemas fail loudly; startup
// should abort on error.
func (r *Registry) RegisterProvider(name, confDir string) error {
	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("provider %q already registered", name)
	}

	schema, err := loadProviderSchema(name, confDir)
	if err != nil {
		return err
	}

	if schema.MinServerVersion != "" {
		min, err := goversion.NewVersion(schema.MinServerVersion)
		if err != nil {
			return fmt.Errorf("provider %q: invalid min_server_version: %w", name, err)
		}
		if r.serverVersion.LessThan(min) {
			return fmt.Errorf("provider %q requires server >= %s", name, schema.MinServerVersion)
		}
	}

	r.order = append(r.order, name)
	r.providers[name] = &providerEntry{
		schema:      schema,
		collections: make(map[domain.ModelType]ports.ModelCollection),
	}
	return nil
}

// RegisterCollection attaches a model collection and loads its model
// schemas from <confDir>/<model-type>/*.yaml. A missing config directory
// skips the collection silently so partial deployments keep starting;
// an unknown provider is a wiring bug and fails.
func (r *Registry) RegisterCollection(providerName string, collection ports.ModelCollection, confDir string) error {
	entry, ok := r.providers[providerName]
	if !ok {
		return fmt.Errorf("collection registered for unknown provider %q", providerName)
	}

	mt := collection.ModelType()
	modelDir := modelTypeDir(confDir, mt)
	if _, err := os.Stat(modelDir); os.IsNotExist(err) {
		return nil
	}

	models, err := loadModelSchemas(modelDir, mt)
	if err != nil {
		return fmt.Errorf("provider %q: %w", providerName, err)
	}

	entry.collections[mt] = collection
	entry.schema.Models = append(entry.schema.Models, models...)
	return nil
}

func (r *Registry) List() []*domain.ProviderSchema {
	out := make([]*domain.ProviderSchema, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.providers[name].schema)
	}
	return out
}

func (r *Registry) Get(name string) (*domain.ProviderSchema, error) {
	entry, ok := r.providers[name]
	if !ok {
		return nil, domain.E(domain.CodeInvalidProvider, "invalid provider %q", name)
	}
	return entry.schema, nil
}

func (r *Registry) Collection(provider string, mt domain.ModelType) (ports.ModelCollection, error) {
	entry, ok := r.providers[provider]
	if !ok {
		return nil, domain.E(domain.CodeInvalidProvider, "invalid provider %q", provider)
	}
	if !entry.schema.SupportsModelType(mt) {
		return nil, domain.E(domain.CodeUnsupportedModelType, "provider %q does not support %s models", provider, mt)
	}
	coll, ok := entry.collections[mt]
	if !ok {
		return nil, domain.E(domain.CodeUnsupportedModelType, "no %s collection attached for provider %q", mt, provider)
	}
	return coll, nil
}

func (r *Registry) ModelSchema(provider, model string, mt domain.ModelType) (*domain.ModelSchema, error) {
	entry, ok := r.providers[provider]
	if !ok {
		return nil, domain.E(domain.CodeInvalidProvider, "invalid provider %q", provider)
	}
	for _, m := range entry.schema.Models {
		if m.ID == model && m.ModelType == mt {
			return m, nil
		}
	}
	return nil, domain.E(domain.CodeInvalidModel, "invalid model %q for provider %q", model, provider)
}
