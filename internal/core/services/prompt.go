package services

import (
	"strings"

	"github.com/loomworklabs/parley/internal/core/domain"
)

// TokenCounter measures a prompt with the owning collection's tokenizer.
type TokenCounter func(messages []domain.PromptMessage) int

// historyFetchCap bounds how much stored history one generation may pull
// in, regardless of the model's context size.
const historyFetchCap = 500

// AssemblePrompt renders the simple prompt form: a system message built
// from the pre-prompt and retrieved context, the session history as
// alternating user/assistant pairs (oldest first) and the current query
// last, with any file excerpt appended to it. Without a query the prompt
// text itself becomes the user message, a completion-style single turn,
// and no system message is emitted.
func AssemblePrompt(prePrompt, contextText string, history []*domain.SessionMessage, query, filesExcerpt string) []domain.PromptMessage {
	var messages []domain.PromptMessage

	system := prePrompt
	if contextText != "" {
		system += "\nCONTEXT:" + contextText + "\n"
	}
	if strings.TrimSpace(system) != "" && query != "" {
		messages = append(messages, domain.PromptMessage{Role: domain.RoleSystem, Content: system})
	}

	for _, m := range history {
		messages = append(messages,
			domain.PromptMessage{Role: domain.RoleUser, Content: m.Query},
			domain.PromptMessage{Role: domain.RoleAssistant, Content: m.Answer},
		)
	}

	user := query
	if user == "" {
		user = system
	} else if filesExcerpt != "" {
		user += "\n" + filesExcerpt
	}
	return append(messages, domain.PromptMessage{Role: domain.RoleUser, Content: user})
}

// FitPromptToBudget assembles the prompt, then drops history pairs oldest
// first until contextSize leaves room for both the prompt and the
// reserved completion tokens. The newest exchange is always retained; if
// the prompt still does not fit, the preflight check downstream decides.
func FitPromptToBudget(counter TokenCounter, contextSize, maxTokens int, prePrompt, contextText string, history []*domain.SessionMessage, query, filesExcerpt string) []domain.PromptMessage {
	for {
		messages := AssemblePrompt(prePrompt, contextText, history, query, filesExcerpt)
		remaining := contextSize - maxTokens - counter(messages)
		if remaining >= 0 || len(history) <= 1 {
			return messages
		}
		history = history[1:]
	}
}
