package domain

type PromptRole string

const (
	RoleSystem    PromptRole = "system"
	RoleUser      PromptRole = "user"
	RoleAssistant PromptRole = "assistant"
)

// PromptMessage is one role-tagged message handed to a model collection.
type PromptMessage struct {
	Role    PromptRole `json:"role"`
	Content string     `json:"content"`
}

/// Result is the terminal output of one generation: the prompt that was
// sent, the assistant message that came back, and the usage accounting.
type Result struct {
	Model    string          `json:"model"`
	Messages []PromptMessage `json:"messages"`
	Message  PromptMessage   `json:"message"`
	Usage    Usage           `json:"usage"`
}

// ResultChunk is one streamed increment. The final chunk of a stream
// carries a non-empty FinishReason and the aggregated usage.
type ResultChunk struct {
	Model        string        `json:"model"`
	Delta        PromptMessage `json:"delta"`
	FinishReason string        `json:"finish_reason,omitempty"`
	Usage        *Usage        `json:"usage,omitempty"`
}
