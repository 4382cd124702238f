package api

// GenerateRequest drives one generation turn against a session. It is the
// body of the blocking HTTP endpoint and of every WebSocket frame the
// client sends.
type GenerateRequest struct {
	Query string `json:"query"`

	// Files are names of previously uploaded session sidecar files whose
	// contents should be appended to the query. Unknown names are skipped.
	Files []string `json:"files,omitempty"`

	// Parameters override the session's stored inference parameters and
	// are validated against the model's parameter form.
	Parameters map[string]interface{} `json:"parameters,omitempty"`

	// Stream selects chunked delivery on the HTTP path. WebSocket frames
	// always stream.
	Stream bool `json:"stream,omitempty"`
}

// EnrollCredentialRequest carries a provider credential form submission.
// Secret fields may hold the hidden sentinel to keep their stored value.
type EnrollCredentialRequest struct {
	Credentials map[string]interface{} `json:"credentials" binding:"required"`
}

// CreateSessionRequest opens a new chat or completion session bound to a
// model, prompt or assistant.
type CreateSessionRequest struct {
	Name         string                 `json:"name,omitempty"`
	Type         string                 `json:"session_type" binding:"required,oneof=llm prompt assistant"`
	Mode         string                 `json:"session_mode" binding:"required,oneof=chat completion"`
	ProviderName string                 `json:"provider_name,omitempty"`
	ModelName    string                 `json:"model_name,omitempty"`
	Parameters   map[string]interface{} `json:"parameters,omitempty"`
	PromptID     string                 `json:"prompt_id,omitempty"`
	AssistantID  string                 `json:"assistant_id,omitempty"`
}
