package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/loomworklabs/parley/internal/core/domain"
	"github.com/loomworklabs/parley/internal/core/ports"
	"github.com/loomworklabs/parley/internal/platform/logger"
	"github.com/loomworklabs/parley/internal/store"
	"github.com/loomworklabs/parley/internal/store/files"
)

// renameCutoff is the query length above which the auto-generated
// session name is truncated.
const (
	renameCutoff   = 20
	renameKeep     = 17
	renameEllipsis = "..."
)

// GenerateOptions is one generation turn against a session.
type GenerateOptions struct {
	SessionID  string
	Query      string
	Files      []string
	Parameters map[string]interface{}
}

// Generator runs the full generation pipeline: authorize, check quota,
// resolve the session's generation source, assemble and budget the
// prompt, call the model and persist the finished exchange.
type Generator struct {
	repo    store.Repository
	bundles *BundleFactory
	quota   *QuotaService
	context ports.ContextProvider
	files   files.Store
	log     *zap.Logger
}

func NewGenerator(repo store.Repository, bundles *BundleFactory, quota *QuotaService, contextProvider ports.ContextProvider, fileStore files.Store) *Generator {
	return &Generator{
		repo:    repo,
		bundles: bundles,
		quota:   quota,
		context: contextProvider,
		files:   fileStore,
		log:     logger.Get(),
	}
}

// generation is the prepared state shared by the blocking and streaming
// paths.
type generation struct {
	session   *domain.Session
	bundle    *ports.ModelBundle
	messages  []domain.PromptMessage
	query     string
	firstTurn bool
	started   time.Time
}

// Generate performs a blocking turn and returns the complete result.
func (g *Generator) Generate(ctx context.Context, user *domain.User, opts GenerateOptions) (*domain.Result, error) {
	gen, err := g.prepare(ctx, user, opts)
	if err != nil {
		return nil, err
	}

	result, err := gen.bundle.Collection.Invoke(ctx, g.call(gen, user))
	if err != nil {
		return nil, err
	}

	result.Usage = g.price(gen, result.Usage)
	if err := g.persist(ctx, gen, user, result.Message.Content, result.Usage); err != nil {
		return nil, err
	}
	return result, nil
}

// GenerateStream performs a streaming turn. The exchange is persisted
// only after the upstream stream finishes cleanly; the final chunk is
// re-emitted with priced usage.
func (g *Generator) GenerateStream(ctx context.Context, user *domain.User, opts GenerateOptions) (<-chan ports.ChunkResult, error) {
	gen, err := g.prepare(ctx, user, opts)
	if err != nil {
		return nil, err
	}

	upstream, err := gen.bundle.Collection.InvokeStream(ctx, g.call(gen, user))
	if err != nil {
		return nil, err
	}

	out := make(chan ports.ChunkResult)
	go func() {
		defer close(out)

		var answer strings.Builder
		for res := range upstream {
			if res.Err != nil {
				out <- res
				return
			}
			chunk := res.Chunk
			answer.WriteString(chunk.Delta.Content)

			if chunk.FinishReason != "" {
				usage := domain.Usage{}
				if chunk.Usage != nil {
					usage = *chunk.Usage
				}
				usage = g.price(gen, usage)
				chunk.Usage = &usage

				if err := g.persist(ctx, gen, user, answer.String(), usage); err != nil {
					out <- ports.ChunkResult{Err: err}
					return
				}
			}

			select {
			case out <- ports.ChunkResult{Chunk: chunk}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (g *Generator) prepare(ctx context.Context, user *domain.User, opts GenerateOptions) (*generation, error) {
	session, err := g.repo.Sessions().Get(ctx, opts.SessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domain.E(domain.CodeNotFound, "session %s not found", opts.SessionID)
		}
		return nil, err
	}
	if session.OwnerID != user.ID {
		return nil, domain.E(domain.CodeForbidden, "session belongs to another user")
	}

	if err := g.quota.CheckMessage(ctx, user.ID, session.TeamID); err != nil {
		return nil, err
	}

	modelConfig, prePrompt, contextText, err := g.resolveSource(ctx, session, opts)
	if err != nil {
		return nil, err
	}

	bundle, err := g.bundles.Build(ctx, session.TeamID, modelConfig, opts.Parameters)
	if err != nil {
		return nil, err
	}

	priorMessages, err := g.repo.Sessions().CountMessages(ctx, session.ID)
	if err != nil {
		return nil, err
	}

	// memory only applies to chat-mode sessions; completion mode is a
	// fresh single turn every time
	var history []*domain.SessionMessage
	if session.Mode == domain.SessionModeChat {
		recent, err := g.repo.Sessions().RecentMessages(ctx, session.ID, historyFetchCap)
		if err != nil {
			return nil, err
		}
		history = reverseMessages(recent)
	}

	contextSize := bundle.Model.ContextSize()
	maxTokens := intParam(bundle.Parameters, "max_tokens")
	counter := func(messages []domain.PromptMessage) int {
		return bundle.Collection.CountTokens(bundle.Model.ID, messages)
	}

	excerpt := g.fileExcerpts(session.ID, opts.Files)
	messages := FitPromptToBudget(counter, contextSize, maxTokens, prePrompt, contextText, history, opts.Query, excerpt)

	// Preflight: the prompt itself must leave room in the window. The
	// completion reservation is clamped rather than rejected.
	remaining := contextSize - counter(messages)
	if remaining <= 0 {
		return nil, domain.E(domain.CodeContextExceeded, "prompt does not fit the model's context window of %d tokens", contextSize)
	}
	if maxTokens > remaining {
		bundle.Parameters["max_tokens"] = remaining
	}

	return &generation{
		session:   session,
		bundle:    bundle,
		messages:  messages,
		query:     opts.Query,
		firstTurn: priorMessages == 0,
		started:   time.Now(),
	}, nil
}

// resolveSource maps the session type to its model config, pre-prompt
// and retrieved context.
func (g *Generator) resolveSource(ctx context.Context, session *domain.Session, opts GenerateOptions) (*domain.ProviderModelConfig, string, string, error) {
	var (
		modelConfig *domain.ProviderModelConfig
		prePrompt   string
		contextText string
	)

	switch session.Type {
	case domain.SessionTypeLLM:
		modelConfig = session.ModelConfig

	case domain.SessionTypePrompt:
		prompt, err := g.repo.Prompts().Get(ctx, session.PromptID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, "", "", domain.E(domain.CodeNotFound, "prompt %s not found", session.PromptID)
			}
			return nil, "", "", err
		}
		prePrompt = prompt.PrePrompt
		modelConfig = prompt.ModelConfig
		if modelConfig == nil {
			modelConfig = session.ModelConfig
		}

	case domain.SessionTypeAssistant:
		assistant, err := g.repo.Assistants().Get(ctx, session.AssistantID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, "", "", domain.E(domain.CodeNotFound, "assistant %s not found", session.AssistantID)
			}
			return nil, "", "", err
		}
		prePrompt = assistant.PrePrompt
		modelConfig = assistant.ModelConfig
		if modelConfig == nil {
			modelConfig = session.ModelConfig
		}
		switch assistant.ContextSource {
		case domain.ContextSourceFiles:
			if g.files != nil {
				fetched, err := g.files.ContextFiles(assistant.ID)
				if err != nil {
					g.log.Warn("assistant context read failed, continuing without",
						zap.String("assistant_id", assistant.ID),
						zap.Error(err))
				} else {
					contextText = fetched
				}
			}
		case domain.ContextSourceCollections:
			if g.context != nil {
				fetched, err := g.context.Fetch(ctx, assistant.CollectionConfig, opts.Query)
				if err != nil {
					g.log.Warn("context fetch failed, continuing without",
						zap.String("assistant_id", assistant.ID),
						zap.Error(err))
				} else {
					contextText = fetched
				}
			}
		}

	default:
		return nil, "", "", domain.E(domain.CodeParameterInvalid, "unknown session type %q", session.Type)
	}

	return modelConfig, prePrompt, contextText, nil
}

// fileExcerpts concatenates the excerpts of the named sidecar files with
// single spaces. Unknown names are skipped.
func (g *Generator) fileExcerpts(sessionID string, names []string) string {
	if g.files == nil || len(names) == 0 {
		return ""
	}
	var parts []string
	for _, name := range names {
		excerpt, err := g.files.Excerpt(sessionID, name)
		if err != nil {
			g.log.Warn("sidecar file read failed", zap.String("file", name), zap.Error(err))
			continue
		}
		if excerpt != "" {
			parts = append(parts, excerpt)
		}
	}
	return strings.Join(parts, " ")
}

func (g *Generator) call(gen *generation, user *domain.User) *ports.CollectionCall {
	return &ports.CollectionCall{
		Model:       gen.bundle.Model.ID,
		Credentials: gen.bundle.Credentials,
		Messages:    gen.messages,
		Parameters:  gen.bundle.Parameters,
		User:        user.ID,
	}
}

// price replaces the collection's raw token counts with a fully priced
// usage record from the model schema.
func (g *Generator) price(gen *generation, raw domain.Usage) domain.Usage {
	latency := raw.Latency
	if latency == 0 {
		latency = time.Since(gen.started).Seconds()
	}
	return domain.NewUsage(gen.bundle.Model, raw.InputTokens, raw.OutputTokens, latency)
}

func (g *Generator) persist(ctx context.Context, gen *generation, user *domain.User, answer string, usage domain.Usage) error {
	err := g.repo.Sessions().AppendMessage(ctx, &domain.SessionMessage{
		ID:        uuid.NewString(),
		SessionID: gen.session.ID,
		OwnerID:   user.ID,
		Query:     gen.query,
		Answer:    answer,
		Usage:     usage,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	if gen.firstTurn && gen.query != "" && gen.session.Name == domain.DefaultSessionName {
		name := AutoName(gen.query)
		if err := g.repo.Sessions().Rename(ctx, gen.session.ID, name); err != nil {
			g.log.Warn("session rename failed", zap.String("session_id", gen.session.ID), zap.Error(err))
		} else {
			gen.session.Name = name
		}
	}
	return nil
}

// AutoName derives a session name from its first query: queries longer
// than twenty runes are cut to seventeen plus an ellipsis.
func AutoName(query string) string {
	runes := []rune(query)
	if len(runes) > renameCutoff {
		return string(runes[:renameKeep]) + renameEllipsis
	}
	return query
}

func reverseMessages(newestFirst []*domain.SessionMessage) []*domain.SessionMessage {
	out := make([]*domain.SessionMessage, len(newestFirst))
	for i, m := range newestFirst {
		out[len(newestFirst)-1-i] = m
	}
	return out
}

func intParam(params map[string]interface{}, name string) int {
	if params == nil {
		return 0
	}
	switch v := params[name].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}
