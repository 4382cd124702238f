package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworklabs/parley/internal/core/domain"
	"github.com/loomworklabs/parley/internal/secrets"
)

type generatorFixture struct {
	generator  *Generator
	repo       *memRepo
	collection *fakeCollection
	files      *fakeFileStore
	user       *domain.User
}

func newGeneratorFixture(t *testing.T, contextSize int) *generatorFixture {
	t.Helper()

	repo := newMemRepo()
	keys := secrets.NewFSKeyStore(t.TempDir())
	publicPEM, err := keys.Generate("team1")
	require.NoError(t, err)
	repo.teams["team1"] = &domain.Team{ID: "team1", Name: "Team One", PublicKeyPEM: publicPEM}

	user := &domain.User{ID: "u1", Name: "Sam"}
	repo.users["u1"] = user

	collection := &fakeCollection{answer: "a fine answer", streamText: []string{"Hel", "lo"}}
	registry := newFakeRegistry(collection, contextSize)

	credentials := NewCredentialService(repo, registry, keys)
	require.NoError(t, credentials.Enroll(context.Background(), "team1", "acme", map[string]interface{}{
		"api_key": "sk-test",
	}))

	repo.sessions["s1"] = &domain.Session{
		ID:      "s1",
		TeamID:  "team1",
		OwnerID: "u1",
		Name:    domain.DefaultSessionName,
		Type:    domain.SessionTypeLLM,
		Mode:    domain.SessionModeChat,
		ModelConfig: &domain.ProviderModelConfig{
			ProviderName: "acme",
			ModelName:    "acme-chat",
		},
	}

	bundles := NewBundleFactory(registry, credentials)
	quota := NewQuotaService(repo, nil)
	fileStore := newFakeFileStore()
	return &generatorFixture{
		generator:  NewGenerator(repo, bundles, quota, nil, fileStore),
		repo:       repo,
		collection: collection,
		files:      fileStore,
		user:       user,
	}
}

func TestGenerateBlocking(t *testing.T) {
	f := newGeneratorFixture(t, 1000)

	result, err := f.generator.Generate(context.Background(), f.user, GenerateOptions{
		SessionID: "s1",
		Query:     "Hello",
	})
	require.NoError(t, err)

	assert.Equal(t, "a fine answer", result.Message.Content)
	assert.Equal(t, 5, result.Usage.InputTokens)
	assert.Equal(t, 7, result.Usage.OutputTokens)
	assert.Equal(t, "0.000019", result.Usage.TotalPrice.String())

	messages := f.repo.messages["s1"]
	require.Len(t, messages, 1)
	assert.Equal(t, "Hello", messages[0].Query)
	assert.Equal(t, "a fine answer", messages[0].Answer)

	// a short first query names the session verbatim
	assert.Equal(t, "Hello", f.repo.sessions["s1"].Name)
}

func TestGenerateRenameLongQuery(t *testing.T) {
	f := newGeneratorFixture(t, 1000)

	query := "abcdefghijklmnopqrstuvwxyz1234"
	_, err := f.generator.Generate(context.Background(), f.user, GenerateOptions{
		SessionID: "s1",
		Query:     query,
	})
	require.NoError(t, err)

	assert.Equal(t, "abcdefghijklmnopq...", f.repo.sessions["s1"].Name)
}

func TestGenerateKeepsExplicitName(t *testing.T) {
	f := newGeneratorFixture(t, 1000)
	f.repo.sessions["s1"].Name = "Budget review"

	_, err := f.generator.Generate(context.Background(), f.user, GenerateOptions{
		SessionID: "s1",
		Query:     "Hello",
	})
	require.NoError(t, err)

	assert.Equal(t, "Budget review", f.repo.sessions["s1"].Name)
}

func TestGenerateNoRenameAfterFirstTurn(t *testing.T) {
	f := newGeneratorFixture(t, 1000)
	seedMessage(f.repo, "s1", "earlier", "answer", time.Now().Add(-time.Hour))
	// a session manually renamed back to the default keeps it once it
	// has history
	f.repo.sessions["s1"].Name = domain.DefaultSessionName

	_, err := f.generator.Generate(context.Background(), f.user, GenerateOptions{
		SessionID: "s1",
		Query:     "another question",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.DefaultSessionName, f.repo.sessions["s1"].Name)
}

func TestGenerateTrimsHistoryToBudget(t *testing.T) {
	f := newGeneratorFixture(t, 100)

	// one token per rune: three 30-token pairs plus a 10-token query is
	// 100, over the 100-20 budget, so the oldest pair must go
	base := time.Now().Add(-time.Hour)
	seedMessage(f.repo, "s1", "aaaaaaaaaaaaaaa", "AAAAAAAAAAAAAAA", base)
	seedMessage(f.repo, "s1", "bbbbbbbbbbbbbbb", "BBBBBBBBBBBBBBB", base.Add(time.Minute))
	seedMessage(f.repo, "s1", "ccccccccccccccc", "CCCCCCCCCCCCCCC", base.Add(2*time.Minute))

	_, err := f.generator.Generate(context.Background(), f.user, GenerateOptions{
		SessionID:  "s1",
		Query:      "0123456789",
		Parameters: map[string]interface{}{"max_tokens": 20},
	})
	require.NoError(t, err)

	sent := f.collection.lastCall.Messages
	require.Len(t, sent, 5)
	assert.Equal(t, "bbbbbbbbbbbbbbb", sent[0].Content)
	assert.Equal(t, "ccccccccccccccc", sent[2].Content)
	assert.Equal(t, "0123456789", sent[4].Content)
}

func TestGenerateCompletionModeSkipsHistory(t *testing.T) {
	f := newGeneratorFixture(t, 1000)
	f.repo.sessions["s1"].Mode = domain.SessionModeCompletion
	seedMessage(f.repo, "s1", "earlier question", "earlier answer", time.Now().Add(-time.Hour))

	_, err := f.generator.Generate(context.Background(), f.user, GenerateOptions{
		SessionID: "s1",
		Query:     "fresh query",
	})
	require.NoError(t, err)

	sent := f.collection.lastCall.Messages
	require.Len(t, sent, 1)
	assert.Equal(t, domain.RoleUser, sent[0].Role)
	assert.Equal(t, "fresh query", sent[0].Content)
}

func TestGenerateAssistantFileContext(t *testing.T) {
	f := newGeneratorFixture(t, 1000)
	f.repo.assistants["a1"] = &domain.Assistant{
		ID:            "a1",
		TeamID:        "team1",
		PrePrompt:     "You are helpful.",
		ContextSource: domain.ContextSourceFiles,
	}
	f.repo.sessions["s1"].Type = domain.SessionTypeAssistant
	f.repo.sessions["s1"].AssistantID = "a1"
	f.files.contexts["a1"] = "alpha beta"

	_, err := f.generator.Generate(context.Background(), f.user, GenerateOptions{
		SessionID: "s1",
		Query:     "what is alpha?",
	})
	require.NoError(t, err)

	sent := f.collection.lastCall.Messages
	require.Len(t, sent, 2)
	assert.Equal(t, domain.RoleSystem, sent[0].Role)
	assert.Equal(t, "You are helpful.\nCONTEXT:alpha beta\n", sent[0].Content)
	assert.Equal(t, "what is alpha?", sent[1].Content)
}

func TestGenerateFileExcerptsOnUserMessage(t *testing.T) {
	f := newGeneratorFixture(t, 1000)
	f.files.excerpts["s1|notes.txt"] = "from the notes"
	f.files.excerpts["s1|draft.txt"] = "from the draft"

	_, err := f.generator.Generate(context.Background(), f.user, GenerateOptions{
		SessionID: "s1",
		Query:     "summarize",
		Files:     []string{"notes.txt", "draft.txt", "missing.txt"},
	})
	require.NoError(t, err)

	sent := f.collection.lastCall.Messages
	require.Len(t, sent, 1)
	assert.Equal(t, "summarize\nfrom the notes from the draft", sent[0].Content)
}

func TestGenerateContextExceeded(t *testing.T) {
	f := newGeneratorFixture(t, 10)

	_, err := f.generator.Generate(context.Background(), f.user, GenerateOptions{
		SessionID: "s1",
		Query:     "this query is far too long for a ten token window",
	})
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.CodeContextExceeded))
}

func TestGenerateQuotaExceeded(t *testing.T) {
	f := newGeneratorFixture(t, 1000)
	f.repo.limits = append(f.repo.limits, &domain.Limit{ID: "l1", Key: domain.LimitKeyMessage, Value: 1})
	seedMessage(f.repo, "s1", "earlier", "answer", time.Now().Add(-time.Hour))

	_, err := f.generator.Generate(context.Background(), f.user, GenerateOptions{
		SessionID: "s1",
		Query:     "one more",
	})
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.CodeQuotaExceeded))
}

func TestGenerateForbidden(t *testing.T) {
	f := newGeneratorFixture(t, 1000)
	stranger := &domain.User{ID: "u2"}

	_, err := f.generator.Generate(context.Background(), stranger, GenerateOptions{
		SessionID: "s1",
		Query:     "Hello",
	})
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.CodeForbidden))
}

func TestGenerateStream(t *testing.T) {
	f := newGeneratorFixture(t, 1000)

	ch, err := f.generator.GenerateStream(context.Background(), f.user, GenerateOptions{
		SessionID: "s1",
		Query:     "Hello",
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
	require.NotNil(t, final.Usage)
	assert.Equal(t, "0.000019", final.Usage.TotalPrice.String())

	messages := f.repo.messages["s1"]
	require.Len(t, messages, 1)
	assert.Equal(t, "Hello", messages[0].Answer)
	assert.Equal(t, "Hello", f.repo.sessions["s1"].Name)
}
