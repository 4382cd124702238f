package ports

import (
	"context"

	"github.com/loomworklabs/parley/internal/core/domain"
)

// CollectionCall is everything a model collection needs to invoke one
// model: decrypted credentials, the processed parameter map, and the
// message list.
type CollectionCall struct {
	Model       string
	Credentials map[string]interface{}
	Messages    []domain.PromptMessage
	Parameters  map[string]interface{}
	Stop        []string
	User        string
}

// ChunkResult carries either one streamed chunk or the error that ended
// the stream.
type ChunkResult struct {
	Chunk *domain.ResultChunk
	Err   error
}

// ModelCollection is the per-(provider, model-type) capability object.
type ModelCollection interface {
	ModelType() domain.ModelType

	// ValidateCredentials verifies live usability of submitted
	// credentials against the provider's canonical probe model.
	ValidateCredentials(ctx context.Context, model string, credentials map[string]interface{}) error

	// CountTokens measures the message list with the collection's token
	// counter.
	CountTokens(model string, messages []domain.PromptMessage) int

	// Invoke performs a blocking call and returns the complete result.
	Invoke(ctx context.Context, call *CollectionCall) (*domain.Result, error)

	// InvokeStream starts a streaming call. The returned channel is a
	// finite, non-restartable sequence; the final chunk carries a finish
	// reason and aggregated usage. Abandoning the channel cancels the
	// producer via ctx.
	InvokeStream(ctx context.Context, call *CollectionCall) (<-chan ChunkResult, error)
}

// Registry exposes the process-wide provider catalog.
type Registry interface {
	// List returns provider schemas in registration order.
	List() []*domain.ProviderSchema
	// Get fails with invalid_provider for unknown names.
	Get(name string) (*domain.ProviderSchema, error)
	// Collection fails with unsupported_model_type unless the provider
	// declares the type and a collection is attached for it.
	Collection(provider string, mt domain.ModelType) (ModelCollection, error)
	// ModelSchema fails with invalid_model for unknown models.
	ModelSchema(provider, model string, mt domain.ModelType) (*domain.ModelSchema, error)
}

// ModelBundle is the request-scoped composition handed to the generator.
// Credentials are plaintext here and must not outlive the request.
type ModelBundle struct {
	Provider    *domain.ProviderSchema
	Model       *domain.ModelSchema
	Collection  ModelCollection
	Credentials map[string]interface{}
	Parameters  map[string]interface{}
}

// ContextProvider resolves collection-backed assistant context. The
// default deployment has none and assistants fall back to empty context.
type ContextProvider interface {
	Fetch(ctx context.Context, collectionConfig, query string) (string, error)
}

// Cache is a small marshal-aware cache used for Limit lookups. Backed by
// Redis when enabled, by an in-process map otherwise.
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}
