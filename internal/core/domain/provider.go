package domain

// ModelType enumerates the kinds of models a provider can expose. Only
// LLM collections exist today; the schema format reserves room for more.
type ModelType string

const (
	ModelTypeLLM ModelType = "llm"
)

// EntityType is the declared type of a configuration form field.
type EntityType string

const (
	EntityTypeInt     EntityType = "int"
	EntityTypeFloat   EntityType = "float"
	EntityTypeString  EntityType = "string"
	EntityTypeText    EntityType = "text"
	EntityTypeBoolean EntityType = "boolean"
	EntityTypeObject  EntityType = "object"
	EntityTypeSecret  EntityType = "secret"
)

// HiddenValue is the sentinel a client submits in place of a secret it
// wants preserved across an update.
const HiddenValue = "[__HIDDEN__]"

// ConfigEntity is one declarative form field: a credential input or a
// tunable inference parameter. Entities of type "object" nest their own
// parameter list; "secret" values are encrypted at rest and obfuscated on
// every read path.
type ConfigEntity struct {
	Name        string            `yaml:"name" json:"name"`
	Type        EntityType        `yaml:"type" json:"type"`
	Label       map[string]string `yaml:"label,omitempty" json:"label,omitempty"`
	Required    bool              `yaml:"required" json:"required"`
	Default     interface{}       `yaml:"default,omitempty" json:"default,omitempty"`
	Min         *float64          `yaml:"min,omitempty" json:"min,omitempty"`
	Max         *float64          `yaml:"max,omitempty" json:"max,omitempty"`
	Precision   *int              `yaml:"precision,omitempty" json:"precision,omitempty"`
	Options     []string          `yaml:"options,omitempty" json:"options,omitempty"`
	Parameters  []ConfigEntity    `yaml:"parameters,omitempty" json:"parameters,omitempty"`
	UseTemplate string            `yaml:"use_template,omitempty" json:"use_template,omitempty"`
}

// ProviderSchema is the declarative description of one upstream provider,
// parsed once from conf at startup. Models is empty until the registry
// attaches the provider's model collections.
type ProviderSchema struct {
	ID                  string            `yaml:"id" json:"id"`
	Label               map[string]string `yaml:"label" json:"label"`
	Description         map[string]string `yaml:"description,omitempty" json:"description,omitempty"`
	IconSmall           string            `yaml:"icon_small,omitempty" json:"icon_small,omitempty"`
	IconLarge           string            `yaml:"icon_large,omitempty" json:"icon_large,omitempty"`
	SupportedModelTypes []ModelType       `yaml:"supported_model_types" json:"supported_model_types"`
	CredentialForm      []ConfigEntity    `yaml:"credential_form" json:"credential_form"`
	// ValidateModel is the canonical model name used when probing whether
	// submitted credentials are actually usable.
	ValidateModel    string `yaml:"validate_model,omitempty" json:"-"`
	MinServerVersion string `yaml:"min_server_version,omitempty" json:"-"`

	Models []*ModelSchema `yaml:"-" json:"models"`
}

// SupportsModelType reports whether the provider declares the model type.
func (p *ProviderSchema) SupportsModelType(mt ModelType) bool {
	for _, t := range p.SupportedModelTypes {
		if t == mt {
			return true
		}
	}
	return false
}

// Well-known model schema property keys.
const (
	PropContextSize     = "context_size"
	PropMode            = "mode"
	PropInputUnitPrice  = "input_unit_price"
	PropOutputUnitPrice = "output_unit_price"
	PropPriceUnit       = "price_unit"
	PropCurrency        = "currency"
)

// DefaultContextSize is assumed for models whose schema omits the
// context_size property.
const DefaultContextSize = 2000

// ModelSchema describes one model of a provider: its identity, static
// properties and the tunable parameter form.
type ModelSchema struct {
	ID               string                 `yaml:"id" json:"id"`
	Label            map[string]string      `yaml:"label,omitempty" json:"label,omitempty"`
	ModelType        ModelType              `yaml:"model_type" json:"model_type"`
	Properties       map[string]interface{} `yaml:"properties,omitempty" json:"properties,omitempty"`
	ParameterConfigs []ConfigEntity         `yaml:"parameter_configs,omitempty" json:"parameter_configs,omitempty"`
}

// ContextSize returns the model's input+output token budget, falling back
// to DefaultContextSize when the schema does not declare one.
func (m *ModelSchema) ContextSize() int {
	if m == nil || m.Properties == nil {
		return DefaultContextSize
	}
	if n, ok := numericProperty(m.Properties[PropContextSize]); ok && n > 0 {
		return int(n)
	}
	return DefaultContextSize
}

// StringProperty reads a string-valued property, empty when absent.
func (m *ModelSchema) StringProperty(key string) string {
	if m == nil || m.Properties == nil {
		return ""
	}
	if s, ok := m.Properties[key].(string); ok {
		return s
	}
	return ""
}

// NumericProperty reads a numeric property, 0 when absent.
func (m *ModelSchema) NumericProperty(key string) float64 {
	if m == nil || m.Properties == nil {
		return 0
	}
	n, _ := numericProperty(m.Properties[key])
	return n
}

func numericProperty(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}

// ProviderModelConfig binds a session (or prompt, or assistant) to one
// provider/model pair plus its stored inference parameters.
type ProviderModelConfig struct {
	ProviderName string                 `json:"provider_name"`
	ModelName    string                 `json:"model_name"`
	Parameters   map[string]interface{} `json:"parameters,omitempty"`
}
