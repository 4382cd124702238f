package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/loomworklabs/parley/internal/core/domain"
	"gopkg.in/yaml.v3"
)

// Shared parameter templates, referenced from schema files through
// use_template so every provider declares common knobs identically.
var parameterTemplates = map[string]domain.ConfigEntity{
	"max_tokens": {
		Name:    "max_tokens",
		Type:    domain.EntityTypeInt,
		Label:   map[string]string{"en": "Max Tokens"},
		Min:     floatPtr(1),
		Max:     floatPtr(32768),
		Default: 512,
	},
	"temperature": {
		Name:      "temperature",
		Type:      domain.EntityTypeFloat,
		Label:     map[string]string{"en": "Temperature"},
		Min:       floatPtr(0),
		Max:       floatPtr(2),
		Precision: intPtr(2),
		Default:   1.0,
	},
	"top_p": {
		Name:      "top_p",
		Type:      domain.EntityTypeFloat,
		Label:     map[string]string{"en": "Top P"},
		Min:       floatPtr(0),
		Max:       floatPtr(1),
		Precision: intPtr(2),
		Default:   1.0,
	},
	"presence_penalty": {
		Name:      "presence_penalty",
		Type:      domain.EntityTypeFloat,
		Label:     map[string]string{"en": "Presence Penalty"},
		Min:       floatPtr(-2),
		Max:       floatPtr(2),
		Precision: intPtr(2),
		Default:   0.0,
	},
	"frequency_penalty": {
		Name:      "frequency_penalty",
		Type:      domain.EntityTypeFloat,
		Label:     map[string]string{"en": "Frequency Penalty"},
		Min:       floatPtr(-2),
		Max:       floatPtr(2),
		Precision: intPtr(2),
		Default:   0.0,
	},
}

func loadProviderSchema(name, confDir string) (*domain.ProviderSchema, error) {
	path := filepath.Join(confDir, name+".yaml")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("provider schema %s: %w", path, err)
	}

	var schema domain.ProviderSchema
	if err := yaml.Unmarshal(raw, &schema); err != nil {
		return nil, fmt.Errorf("provider schema %s: %w", path, err)
	}
	if schema.ID == "" {
		schema.ID = name
	}
	if schema.ID != name {
		return nil, fmt.Errorf("provider schema %s: id %q does not match directory %q", path, schema.ID, name)
	}
	if len(schema.SupportedModelTypes) == 0 {
		return nil, fmt.Errorf("provider schema %s: no supported model types", path)
	}

	schema.CredentialForm, err = expandTemplates(schema.CredentialForm)
	if err != nil {
		return nil, fmt.Errorf("provider schema %s: %w", path, err)
	}
	return &schema, nil
}

func modelTypeDir(confDir string, mt domain.ModelType) string {
	return filepath.Join(confDir, string(mt))
}

func loadModelSchemas(dir string, mt domain.ModelType) ([]*domain.ModelSchema, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("model schema dir %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	out := make([]*domain.ModelSchema, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("model schema %s: %w", path, err)
		}
		var schema domain.ModelSchema
		if err := yaml.Unmarshal(raw, &schema); err != nil {
			return nil, fmt.Errorf("model schema %s: %w", path, err)
		}
		if schema.ID == "" {
			return nil, fmt.Errorf("model schema %s: missing id", path)
		}
		if schema.ModelType == "" {
			schema.ModelType = mt
		}
		schema.ParameterConfigs, err = expandTemplates(schema.ParameterConfigs)
		if err != nil {
			return nil, fmt.Errorf("model schema %s: %w", path, err)
		}
		out = append(out, &schema)
	}
	return out, nil
}

// expandTemplates replaces use_template references with the shared
// entity, letting the schema file override name-level fields it sets
// explicitly.
func expandTemplates(form []domain.ConfigEntity) ([]domain.ConfigEntity, error) {
	out := make([]domain.ConfigEntity, 0, len(form))
	for _, entity := range form {
		if entity.UseTemplate == "" {
			out = append(out, entity)
			continue
		}
		tmpl, ok := parameterTemplates[entity.UseTemplate]
		if !ok {
			return nil, fmt.Errorf("unknown parameter template %q", entity.UseTemplate)
		}
		merged := tmpl
		if entity.Name != "" {
			merged.Name = entity.Name
		}
		if entity.Default != nil {
			merged.Default = entity.Default
		}
		if entity.Min != nil {
			merged.Min = entity.Min
		}
		if entity.Max != nil {
			merged.Max = entity.Max
		}
		merged.Required = entity.Required
		out = append(out, merged)
	}
	return out, nil
}

func floatPtr(f float64) *float64 { return &f }
func intPtr(i int) *int           { return &i }
