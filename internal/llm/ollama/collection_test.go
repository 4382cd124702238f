package ollama_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworklabs/parley/internal/core/domain"
	"github.com/loomworklabs/parley/internal/core/ports"
	"github.com/loomworklabs/parley/internal/llm/ollama"
)

func TestInvoke(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{
			"model": "llama3",
			"message": {"role": "assistant", "content": "Hi from llama"},
			"done": true,
			"done_reason": "stop",
			"prompt_eval_count": 11,
			"eval_count": 4
		}`))
	}))
	defer server.Close()

	collection := ollama.NewCollection(server.Client())

	result, err := collection.Invoke(context.Background(), &ports.CollectionCall{
		Model:       "llama3",
		Credentials: map[string]interface{}{"ollama_base_url": server.URL},
		Messages:    []domain.PromptMessage{{Role: domain.RoleUser, Content: "Hi"}},
	})

	require.NoError(t, err)
	assert.Equal(t, "Hi from llama", result.Message.Content)
	assert.Equal(t, 11, result.Usage.InputTokens)
	assert.Equal(t, 4, result.Usage.OutputTokens)
}

func TestInvokeStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		lines := []string{
			`{"model":"llama3","message":{"role":"assistant","content":"Hel"},"done":false}`,
			`{"model":"llama3","message":{"role":"assistant","content":"lo"},"done":false}`,
			`{"model":"llama3","message":{"role":"assistant","content":""},"done":true,"done_reason":"stop","prompt_eval_count":8,"eval_count":2}`,
		}
		for _, line := range lines {
			_, _ = fmt.Fprintln(w, line)
			flusher.Flush()
		}
	}))
	defer server.Close()

	collection := ollama.NewCollection(server.Client())

	ch, err := collection.InvokeStream(context.Background(), &ports.CollectionCall{
		Model:       "llama3",
		Credentials: map[string]interface{}{"ollama_base_url": server.URL},
		Messages:    []domain.PromptMessage{{Role: domain.RoleUser, Content: "Hi"}},
	})
	require.NoError(t, err)

	var text string
	var final *domain.ResultChunk
	for res := range ch {
		require.NoError(t, res.Err)
		if res.Chunk.FinishReason != "" {
			final = res.Chunk
			continue
		}
		text += res.Chunk.Delta.Content
	}

	assert.Equal(t, "Hello", text)
	require.NotNil(t, final)
	assert.Equal(t, "stop", final.FinishReason)
	require.NotNil(t, final.Usage)
	assert.Equal(t, 8, final.Usage.InputTokens)
	assert.Equal(t, 2, final.Usage.OutputTokens)
}
