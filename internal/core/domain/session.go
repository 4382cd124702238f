package domain

import "time"

type SessionType string

const (
	SessionTypeLLM       SessionType = "llm"
	SessionTypePrompt    SessionType = "prompt"
	SessionTypeAssistant SessionType = "assistant"
)

type SessionMode string

const (
	SessionModeChat       SessionMode = "chat"
	SessionModeCompletion SessionMode = "completion"
)

// DefaultSessionName is what a fresh session is called before the first
// message renames it.
const DefaultSessionName = "New Chat"

// Session binds a user's conversation to exactly one generation source:
// a raw model config, a Prompt or an Assistant, selected by Type.
type Session struct {
	ID          string
	TeamID      string
	OwnerID     string
	Name        string
	Type        SessionType
	Mode        SessionMode
	ModelConfig *ProviderModelConfig
	PromptID    string
	AssistantID string
	CreatedAt   time.Time
}

// SessionMessage is one completed exchange, ordered by CreatedAt.
type SessionMessage struct {
	ID        string
	SessionID string
	OwnerID   string
	Query     string
	Answer    string
	Usage     Usage
	CreatedAt time.Time
}

type PromptType string

const (
	PromptTypeSimple   PromptType = "simple"
	PromptTypeAdvanced PromptType = "advanced"
)

// PromptTemplate is the generation-facing view of a Prompt or Assistant.
type PromptTemplate struct {
	Type   PromptType
	Simple string
}

// Prompt is a reusable pre-prompt bound to a model config.
type Prompt struct {
	ID          string
	TeamID      string
	Name        string
	Type        PromptType
	PrePrompt   string
	ModelConfig *ProviderModelConfig
	CreatedAt   time.Time
}

type ContextSource string

const (
	ContextSourceFiles       ContextSource = "files"
	ContextSourceCollections ContextSource = "collections"
)

// Assistant is a pre-prompt plus a file- or collection-backed context
// source, bound to a model config.
type Assistant struct {
	ID               string
	TeamID           string
	Name             string
	PrePrompt        string
	ContextSource    ContextSource
	CollectionConfig string
	ModelConfig      *ProviderModelConfig
	CreatedAt        time.Time
}

// Team is the tenant. PublicKeyPEM is the RSA public half used to wrap
// credential payload keys; the private half lives in the key store.
type Team struct {
	ID           string
	Name         string
	OwnerID      string
	PublicKeyPEM string
	CreatedAt    time.Time
}

type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

type User struct {
	ID        string
	Email     string
	Name      string
	CreatedAt time.Time
}

// TenantCredential stores a team's encrypted provider credentials.
// EncryptedConfig is either a JSON object (secret fields as hybrid blobs)
// or, for legacy rows, a single bare RSA-OAEP blob.
type TenantCredential struct {
	ID              string
	TeamID          string
	ProviderName    string
	EncryptedConfig string
	IsValid         bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Limit keys currently enforced.
const (
	LimitKeyMessage = "MESSAGE"
)

// Limit is a scoped quota. Exactly one row exists per (key, user, team);
// a user-scoped limit overrides a team-scoped one, which overrides the
// global row (both scopes null).
type Limit struct {
	ID     string
	Key    string
	Value  int64
	UserID string
	TeamID string
}
