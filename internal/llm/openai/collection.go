package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/loomworklabs/parley/internal/core/domain"
	"github.com/loomworklabs/parley/internal/core/ports"
	"github.com/loomworklabs/parley/internal/httpclient"
	"github.com/loomworklabs/parley/internal/llm"
)

const defaultBaseURL = "https://api.openai.com/v1"

type Collection struct {
	client httpclient.HTTPClient
}

func NewCollection(client httpclient.HTTPClient) *Collection {
	if client == nil {
		client = httpclient.NewModelClient()
	}
	return &Collection{client: client}
}

func (c *Collection) ModelType() domain.ModelType {
	return domain.ModelTypeLLM
}

func (c *Collection) CountTokens(model string, messages []domain.PromptMessage) int {
	return llm.CountChatTokens(model, messages)
}

type chatRequest struct {
	Model         string                 `json:"model"`
	Messages      []domain.PromptMessage `json:"messages"`
	Stream        bool                   `json:"stream"`
	StreamOptions *streamOptions         `json:"stream_options,omitempty"`
	Stop          []string               `json:"stop,omitempty"`
	User          string                 `json:"user,omitempty"`

	Temperature      *float64 `json:"temperature,omitempty"`
	TopP             *float64 `json:"top_p,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
	MaxTokens        *int     `json:"max_tokens,omitempty"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"delta"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (c *Collection) endpoint(credentials map[string]interface{}) string {
	base := defaultBaseURL
	if v, ok := credentials["openai_api_base"].(string); ok && v != "" {
		base = v
	}
	return strings.TrimRight(base, "/") + "/chat/completions"
}

func (c *Collection) headers(credentials map[string]interface{}) map[string]string {
	headers := map[string]string{}
	if key, ok := credentials["openai_api_key"].(string); ok {
		headers["Authorization"] = "Bearer " + key
	}
	if org, ok := credentials["openai_organization"].(string); ok && org != "" {
		headers["OpenAI-Organization"] = org
	}
	return headers
}

func (c *Collection) buildRequest(call *ports.CollectionCall, stream bool) *chatRequest {
	req := &chatRequest{
		Model:    call.Model,
		Messages: call.Messages,
		Stream:   stream,
		Stop:     call.Stop,
		User:     call.User,
	}
	if stream {
		req.StreamOptions = &streamOptions{IncludeUsage: true}
	}
	req.Temperature = llm.FloatParam(call.Parameters, "temperature")
	req.TopP = llm.FloatParam(call.Parameters, "top_p")
	req.PresencePenalty = llm.FloatParam(call.Parameters, "presence_penalty")
	req.FrequencyPenalty = llm.FloatParam(call.Parameters, "frequency_penalty")
	req.MaxTokens = llm.IntParam(call.Parameters, "max_tokens")
	return req
}

// ValidateCredentials performs a minimal one-token completion against the
// probe model to prove the submitted key is live.
func (c *Collection) ValidateCredentials(ctx context.Context, model string, credentials map[string]interface{}) error {
	one := 1
	req := &chatRequest{
		Model:     model,
		Messages:  []domain.PromptMessage{{Role: domain.RoleUser, Content: "ping"}},
		MaxTokens: &one,
	}
	var resp chatResponse
	err := httpclient.SendRequest(ctx, c.client, http.MethodPost, c.endpoint(credentials), c.headers(credentials), req, &resp)
	return llm.WrapUpstream("openai", err)
}

func (c *Collection) Invoke(ctx context.Context, call *ports.CollectionCall) (*domain.Result, error) {
	start := time.Now()
	var resp chatResponse
	err := httpclient.SendRequest(ctx, c.client, http.MethodPost, c.endpoint(call.Credentials), c.headers(call.Credentials), c.buildRequest(call, false), &resp)
	if err != nil {
		return nil, llm.WrapUpstream("openai", err)
	}
	if len(resp.Choices) == 0 {
		return nil, domain.E(domain.CodeModelCallFailed, "openai returned no choices")
	}

	message := domain.PromptMessage{
		Role:    domain.RoleAssistant,
		Content: resp.Choices[0].Message.Content,
	}

	inTokens, outTokens := 0, 0
	if resp.Usage != nil {
		inTokens = resp.Usage.PromptTokens
		outTokens = resp.Usage.CompletionTokens
	} else {
		inTokens = c.CountTokens(call.Model, call.Messages)
		outTokens = c.CountTokens(call.Model, []domain.PromptMessage{message})
	}

	return &domain.Result{
		Model:    call.Model,
		Messages: call.Messages,
		Message:  message,
		Usage: domain.Usage{
			InputTokens:  inTokens,
			OutputTokens: outTokens,
			TotalTokens:  inTokens + outTokens,
			Latency:      time.Since(start).Seconds(),
		},
	}, nil
}

func (c *Collection) InvokeStream(ctx context.Context, call *ports.CollectionCall) (<-chan ports.ChunkResult, error) {
	ch := make(chan ports.ChunkResult)
	start := time.Now()

	go func() {
		defer close(ch)

		var (
			finishReason string
			inTokens     int
			outTokens    int
			sawUsage     bool
			assembled    strings.Builder
		)

		err := httpclient.StreamRequest(ctx, c.client, http.MethodPost, c.endpoint(call.Credentials), c.headers(call.Credentials), c.buildRequest(call, true), func(line string) error {
			if !strings.HasPrefix(line, "data: ") {
				return nil
			}
			data := strings.TrimPrefix(line, "data: ")
			if data == "[DONE]" {
				return nil
			}

			var resp chatResponse
			if err := json.Unmarshal([]byte(data), &resp); err != nil {
				return nil
			}

			if resp.Usage != nil {
				inTokens = resp.Usage.PromptTokens
				outTokens = resp.Usage.CompletionTokens
				sawUsage = true
			}
			if len(resp.Choices) == 0 {
				return nil
			}
			choice := resp.Choices[0]
			if choice.FinishReason != "" {
				finishReason = choice.FinishReason
			}
			if choice.Delta.Content == "" {
				return nil
			}
			assembled.WriteString(choice.Delta.Content)

			select {
			case ch <- ports.ChunkResult{Chunk: &domain.ResultChunk{
				Model: call.Model,
				Delta: domain.PromptMessage{Role: domain.RoleAssistant, Content: choice.Delta.Content},
			}}:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil {
			select {
			case ch <- ports.ChunkResult{Err: llm.WrapUpstream("openai", err)}:
			case <-ctx.Done():
			}
			return
		}

		if !sawUsage {
			inTokens = c.CountTokens(call.Model, call.Messages)
			outTokens = c.CountTokens(call.Model, []domain.PromptMessage{{Role: domain.RoleAssistant, Content: assembled.String()}})
		}
		if finishReason == "" {
			finishReason = "stop"
		}

		usage := domain.Usage{
			InputTokens:  inTokens,
			OutputTokens: outTokens,
			TotalTokens:  inTokens + outTokens,
			Latency:      time.Since(start).Seconds(),
		}
		select {
		case ch <- ports.ChunkResult{Chunk: &domain.ResultChunk{
			Model:        call.Model,
			Delta:        domain.PromptMessage{Role: domain.RoleAssistant},
			FinishReason: finishReason,
			Usage:        &usage,
		}}:
		case <-ctx.Done():
		}
	}()

	return ch, nil
}
