package ollama

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
	Model    string                 `json:"model"`
	Messages []domain.PromptMessage `json:"messages"`
	Stream   bool                   `json:"stream"`
	Options  map[string]interface{} `json:"options,omitempty"`
}

// chatResponse covers both the blocking reply and each streamed JSON
// line; Ollama uses one shape for both.
type chatResponse struct {
	Model   string `json:"model"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done            bool   `json:"done"`
	DoneReason      string `json:"done_reason"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

func (c *Collection) endpoint(credentials map[string]interface{}) string {
	base := "http://localhost:11434"
	if v, ok := credentials["ollama_base_url"].(string); ok && v != "" {
		base = v
	}
	return strings.TrimRight(base, "/") + "/api/chat"
}

func (c *Collection) buildRequest(call *ports.CollectionCall, stream bool) *chatRequest {
	req := &chatRequest{
		Model:    call.Model,
		Messages: call.Messages,
		Stream:   stream,
	}
	options := map[string]interface{}{}
	if v := llm.FloatParam(call.Parameters, "temperature"); v != nil {
		options["temperature"] = *v
	}
	if v := llm.FloatParam(call.Parameters, "top_p"); v != nil {
		options["top_p"] = *v
	}
	if v := llm.IntParam(call.Parameters, "max_tokens"); v != nil {
		options["num_predict"] = *v
	}
	if len(call.Stop) > 0 {
		options["stop"] = call.Stop
	}
	if len(options) > 0 {
		req.Options = options
	}
	return req
}

func (c *Collection) ValidateCredentials(ctx context.Context, model string, credentials map[string]interface{}) error {
	req := &chatRequest{
		Model:    model,
		Messages: []domain.PromptMessage{{Role: domain.RoleUser, Content: "ping"}},
		Options:  map[string]interface{}{"num_predict": 1},
	}
	var resp chatResponse
	err := httpclient.SendRequest(ctx, c.client, http.MethodPost, c.endpoint(credentials), nil, req, &resp)
	return llm.WrapUpstream("ollama", err)
}

func (c *Collection) Invoke(ctx context.Context, call *ports.CollectionCall) (*domain.Result, error) {
	start := time.Now()
	var resp chatResponse
	err := httpclient.SendRequest(ctx, c.client, http.MethodPost, c.endpoint(call.Credentials), nil, c.buildRequest(call, false), &resp)
	if err != nil {
		return nil, llm.WrapUpstream("ollama", err)
	}

	return &domain.Result{
		Model:    call.Model,
		Messages: call.Messages,
		Message:  domain.PromptMessage{Role: domain.RoleAssistant, Content: resp.Message.Content},
		Usage: domain.Usage{
			InputTokens:  resp.PromptEvalCount,
			OutputTokens: resp.EvalCount,
			TotalTokens:  resp.PromptEvalCount + resp.EvalCount,
			Latency:      time.Since(start).Seconds(),
		},
	}, nil
}

func (c *Collection) InvokeStream(ctx context.Context, call *ports.CollectionCall) (<-chan ports.ChunkResult, error) {
	ch := make(chan ports.ChunkResult)
	start := time.Now()

	go func() {
		defer close(ch)

		var final chatResponse

		err := httpclient.StreamRequest(ctx, c.client, http.MethodPost, c.endpoint(call.Credentials), nil, c.buildRequest(call, true), func(line string) error {
			var resp chatResponse
			if err := json.Unmarshal([]byte(line), &resp); err != nil {
				return nil
			}
			if resp.Done {
				final = resp
				return nil
			}
			if resp.Message.Content == "" {
				return nil
			}
			select {
			case ch <- ports.ChunkResult{Chunk: &domain.ResultChunk{
				Model: call.Model,
				Delta: domain.PromptMessage{Role: domain.RoleAssistant, Content: resp.Message.Content},
			}}:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil {
			select {
			case ch <- ports.ChunkResult{Err: llm.WrapUpstream("ollama", err)}:
			case <-ctx.Done():
			}
			return
		}

		finishReason := final.DoneReason
		if finishReason == "" {
			finishReason = "stop"
		}
		usage := domain.Usage{
			InputTokens:  final.PromptEvalCount,
			OutputTokens: final.EvalCount,
			TotalTokens:  final.PromptEvalCount + final.EvalCount,
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
