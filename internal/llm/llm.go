// Package llm holds the shared plumbing for provider model collections:
// upstream error mapping and token estimation. Each provider lives in its
// own subpackage and is attached to the registry at startup.
package llm

import (
	"errors"

	"github.com/pkoukk/tiktoken-go"

	"github.com/loomworklabs/parley/internal/core/domain"
	"github.com/loomworklabs/parley/internal/httpclient"
)

// WrapUpstream converts transport failures into the domain taxonomy.
// Timeouts within the model-call budget become provider_timeout, every
// other upstream failure becomes model_call_failed.
func WrapUpstream(provider string, err error) error {
	if err == nil {
		return nil
	}
	if httpclient.IsTimeout(err) {
		return domain.Wrap(domain.CodeProviderTimeout, err, "%s did not respond in time", provider)
	}
	var ue *httpclient.UpstreamError
	if errors.As(err, &ue) {
		return domain.Wrap(domain.CodeModelCallFailed, err, "%s returned status %d", provider, ue.StatusCode)
	}
	return domain.Wrap(domain.CodeModelCallFailed, err, "%s call failed", provider)
}

// overhead per message for chat-formatted prompts, matching the
// cl100k chat packing rules.
const (
	tokensPerMessage = 4
	tokensPerReply   = 3
)

// CountChatTokens estimates the token footprint of a chat prompt using
// the encoding registered for model, falling back to cl100k_base for
// models tiktoken does not know.
func CountChatTokens(model string, messages []domain.PromptMessage) int {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
		if err != nil {
			// last resort, the rough 4-chars-per-token rule
			total := 0
			for _, m := range messages {
				total += tokensPerMessage + (len(m.Content)+3)/4
			}
			return total + tokensPerReply
		}
	}

	total := 0
	for _, m := range messages {
		total += tokensPerMessage
		total += len(enc.Encode(m.Content, nil, nil))
		total += len(enc.Encode(string(m.Role), nil, nil))
	}
	return total + tokensPerReply
}

// FloatParam reads a numeric parameter, tolerating the int/float split
// that parameter processing produces for whole-number precision.
func FloatParam(params map[string]interface{}, name string) *float64 {
	if params == nil {
		return nil
	}
	switch v := params[name].(type) {
	case float64:
		return &v
	case int:
		f := float64(v)
		return &f
	}
	return nil
}

// IntParam reads an integer parameter.
func IntParam(params map[string]interface{}, name string) *int {
	if params == nil {
		return nil
	}
	switch v := params[name].(type) {
	case int:
		return &v
	case float64:
		n := int(v)
		return &n
	}
	return nil
}
