package anthropic

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

const (
	defaultBaseURL = "https://api.anthropic.com"
	apiVersion     = "2023-06-01"
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

// Anthropic ships no public tokenizer, the cl100k estimate is close
// enough for budgeting.
func (c *Collection) CountTokens(model string, messages []domain.PromptMessage) int {
	return llm.CountChatTokens(model, messages)
}

type messagesRequest struct {
	Model         string                 `json:"model"`
	System        string                 `json:"system,omitempty"`
	Messages      []domain.PromptMessage `json:"messages"`
	MaxTokens     int                    `json:"max_tokens"`
	Stream        bool                   `json:"stream,omitempty"`
	StopSequences []string               `json:"stop_sequences,omitempty"`
	Temperature   *float64               `json:"temperature,omitempty"`
	TopP          *float64               `json:"top_p,omitempty"`
	Metadata      *requestMetadata       `json:"metadata,omitempty"`
}

type requestMetadata struct {
	UserID string `json:"user_id,omitempty"`
}

type messagesResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// streamEvent is the union of the SSE event payloads we care about.
type streamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type       string `json:"type"`
		Text       string `json:"text"`
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
	Message struct {
		Usage struct {
			InputTokens int `json:"input_tokens"`
		} `json:"usage"`
	} `json:"message"`
	Usage struct {
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (c *Collection) endpoint(credentials map[string]interface{}) string {
	base := defaultBaseURL
	if v, ok := credentials["anthropic_api_url"].(string); ok && v != "" {
		base = v
	}
	return strings.TrimRight(base, "/") + "/v1/messages"
}

func (c *Collection) headers(credentials map[string]interface{}) map[string]string {
	headers := map[string]string{
		"anthropic-version": apiVersion,
	}
	if key, ok := credentials["anthropic_api_key"].(string); ok {
		headers["x-api-key"] = key
	}
	return headers
}

// buildRequest splits the leading system message out of the prompt, the
// messages endpoint takes it as a top-level field.
func (c *Collection) buildRequest(call *ports.CollectionCall, stream bool) *messagesRequest {
	req := &messagesRequest{
		Model:         call.Model,
		Stream:        stream,
		StopSequences: call.Stop,
		MaxTokens:     1024,
	}
	for _, m := range call.Messages {
		if m.Role == domain.RoleSystem && req.System == "" && len(req.Messages) == 0 {
			req.System = m.Content
			continue
		}
		req.Messages = append(req.Messages, m)
	}
	if n := llm.IntParam(call.Parameters, "max_tokens"); n != nil {
		req.MaxTokens = *n
	}
	req.Temperature = llm.FloatParam(call.Parameters, "temperature")
	req.TopP = llm.FloatParam(call.Parameters, "top_p")
	if call.User != "" {
		req.Metadata = &requestMetadata{UserID: call.User}
	}
	return req
}

func (c *Collection) ValidateCredentials(ctx context.Context, model string, credentials map[string]interface{}) error {
	req := &messagesRequest{
		Model:     model,
		Messages:  []domain.PromptMessage{{Role: domain.RoleUser, Content: "ping"}},
		MaxTokens: 1,
	}
	var resp messagesResponse
	err := httpclient.SendRequest(ctx, c.client, http.MethodPost, c.endpoint(credentials), c.headers(credentials), req, &resp)
	return llm.WrapUpstream("anthropic", err)
}

func (c *Collection) Invoke(ctx context.Context, call *ports.CollectionCall) (*domain.Result, error) {
	start := time.Now()
	var resp messagesResponse
	err := httpclient.SendRequest(ctx, c.client, http.MethodPost, c.endpoint(call.Credentials), c.headers(call.Credentials), c.buildRequest(call, false), &resp)
	if err != nil {
		return nil, llm.WrapUpstream("anthropic", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return &domain.Result{
		Model:    call.Model,
		Messages: call.Messages,
		Message:  domain.PromptMessage{Role: domain.RoleAssistant, Content: text.String()},
		Usage: domain.Usage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
			TotalTokens:  resp.Usage.InputTokens + resp.Usage.OutputTokens,
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
		)

		err := httpclient.StreamRequest(ctx, c.client, http.MethodPost, c.endpoint(call.Credentials), c.headers(call.Credentials), c.buildRequest(call, true), func(line string) error {
			if !strings.HasPrefix(line, "data: ") {
				return nil
			}

			var ev streamEvent
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
				return nil
			}

			switch ev.Type {
			case "message_start":
				inTokens = ev.Message.Usage.InputTokens
			case "content_block_delta":
				if ev.Delta.Text == "" {
					return nil
				}
				select {
				case ch <- ports.ChunkResult{Chunk: &domain.ResultChunk{
					Model: call.Model,
					Delta: domain.PromptMessage{Role: domain.RoleAssistant, Content: ev.Delta.Text},
				}}:
				case <-ctx.Done():
					return ctx.Err()
				}
			case "message_delta":
				if ev.Delta.StopReason != "" {
					finishReason = ev.Delta.StopReason
				}
				if ev.Usage.OutputTokens > 0 {
					outTokens = ev.Usage.OutputTokens
				}
			}
			return nil
		})
		if err != nil {
			select {
			case ch <- ports.ChunkResult{Err: llm.WrapUpstream("anthropic", err)}:
			case <-ctx.Done():
			}
			return
		}

		if finishReason == "" {
			finishReason = "end_turn"
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
