package services

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/loomworklabs/parley/internal/core/domain"
	"github.com/loomworklabs/parley/internal/core/ports"
	"github.com/loomworklabs/parley/internal/store"
)

// memRepo is an in-memory store.Repository for service tests.
type memRepo struct {
	mu          sync.Mutex
	teams       map[string]*domain.Team
	members     map[string]domain.Role // userID|teamID
	users       map[string]*domain.User
	sessions    map[string]*domain.Session
	messages    map[string][]*domain.SessionMessage
	credentials map[string]*domain.TenantCredential // teamID|provider
	prompts     map[string]*domain.Prompt
	assistants  map[string]*domain.Assistant
	limits      []*domain.Limit
}

func newMemRepo() *memRepo {
	return &memRepo{
		teams:       map[string]*domain.Team{},
		members:     map[string]domain.Role{},
		users:       map[string]*domain.User{},
		sessions:    map[string]*domain.Session{},
		messages:    map[string][]*domain.SessionMessage{},
		credentials: map[string]*domain.TenantCredential{},
		prompts:     map[string]*domain.Prompt{},
		assistants:  map[string]*domain.Assistant{},
	}
}

func (r *memRepo) Teams() store.TeamRepository             { return (*memTeams)(r) }
func (r *memRepo) Users() store.UserRepository             { return (*memUsers)(r) }
func (r *memRepo) Sessions() store.SessionRepository       { return (*memSessions)(r) }
func (r *memRepo) Credentials() store.CredentialRepository { return (*memCredentials)(r) }
func (r *memRepo) Prompts() store.PromptRepository         { return (*memPrompts)(r) }
func (r *memRepo) Assistants() store.AssistantRepository   { return (*memAssistants)(r) }
func (r *memRepo) Limits() store.LimitRepository           { return (*memLimits)(r) }
func (r *memRepo) Close() error                            { return nil }

func (r *memRepo) WithTx(ctx context.Context, fn func(repo store.Repository) error) error {
	return fn(r)
}

type memTeams memRepo

func (r *memTeams) Get(_ context.Context, id string) (*domain.Team, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.teams[id]; ok {
		return t, nil
	}
	return nil, store.ErrNotFound
}

func (r *memTeams) Create(_ context.Context, team *domain.Team) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.teams[team.ID] = team
	return nil
}

func (r *memTeams) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.teams[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.teams, id)
	return nil
}

func (r *memTeams) MemberRole(_ context.Context, userID, teamID string) (domain.Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if role, ok := r.members[userID+"|"+teamID]; ok {
		return role, nil
	}
	return "", store.ErrNotFound
}

func (r *memTeams) AddMember(_ context.Context, teamID, userID string, role domain.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[userID+"|"+teamID] = role
	return nil
}

type memUsers memRepo

func (r *memUsers) Get(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		return u, nil
	}
	return nil, store.ErrNotFound
}

func (r *memUsers) GetByTokenHash(_ context.Context, hash string) (*domain.User, error) {
	return nil, store.ErrNotFound
}

func (r *memUsers) Create(_ context.Context, user *domain.User, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.ID] = user
	return nil
}

type memSessions memRepo

func (r *memSessions) Get(_ context.Context, id string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		return s, nil
	}
	return nil, store.ErrNotFound
}

func (r *memSessions) Create(_ context.Context, s *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
	return nil
}

func (r *memSessions) ListByOwner(_ context.Context, teamID, ownerID string) ([]*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Session
	for _, s := range r.sessions {
		if s.TeamID == teamID && s.OwnerID == ownerID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *memSessions) Rename(_ context.Context, id, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return store.ErrNotFound
	}
	s.Name = name
	return nil
}

func (r *memSessions) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.sessions, id)
	delete(r.messages, id)
	return nil
}

func (r *memSessions) CountMessages(_ context.Context, sessionID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.messages[sessionID])), nil
}

func (r *memSessions) CountTeamMessages(_ context.Context, teamID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, msgs := range r.messages {
		if s, ok := r.sessions[id]; ok && s.TeamID == teamID {
			n += int64(len(msgs))
		}
	}
	return n, nil
}

func (r *memSessions) RecentMessages(_ context.Context, sessionID string, limit int) ([]*domain.SessionMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := append([]*domain.SessionMessage(nil), r.messages[sessionID]...)
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].CreatedAt.After(msgs[j].CreatedAt) })
	if len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

func (r *memSessions) AppendMessage(_ context.Context, m *domain.SessionMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages[m.SessionID] = append(r.messages[m.SessionID], m)
	return nil
}

type memCredentials memRepo

func (r *memCredentials) Get(_ context.Context, teamID, providerName string) (*domain.TenantCredential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.credentials[teamID+"|"+providerName]; ok {
		return c, nil
	}
	return nil, store.ErrNotFound
}

func (r *memCredentials) Upsert(_ context.Context, c *domain.TenantCredential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.credentials[c.TeamID+"|"+c.ProviderName] = c
	return nil
}

func (r *memCredentials) Delete(_ context.Context, teamID, providerName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := teamID + "|" + providerName
	if _, ok := r.credentials[key]; !ok {
		return store.ErrNotFound
	}
	delete(r.credentials, key)
	return nil
}

type memPrompts memRepo

func (r *memPrompts) Get(_ context.Context, id string) (*domain.Prompt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.prompts[id]; ok {
		return p, nil
	}
	return nil, store.ErrNotFound
}

func (r *memPrompts) Create(_ context.Context, p *domain.Prompt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prompts[p.ID] = p
	return nil
}

type memAssistants memRepo

func (r *memAssistants) Get(_ context.Context, id string) (*domain.Assistant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.assistants[id]; ok {
		return a, nil
	}
	return nil, store.ErrNotFound
}

func (r *memAssistants) Create(_ context.Context, a *domain.Assistant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assistants[a.ID] = a
	return nil
}

type memLimits memRepo

func (r *memLimits) Find(_ context.Context, key, userID, teamID string) ([]*domain.Limit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Limit
	for _, l := range r.limits {
		if l.Key != key {
			continue
		}
		switch {
		case l.UserID == userID && l.UserID != "":
			out = append(out, l)
		case l.UserID == "" && l.TeamID == teamID && l.TeamID != "":
			out = append(out, l)
		case l.UserID == "" && l.TeamID == "":
			out = append(out, l)
		}
	}
	return out, nil
}

func (r *memLimits) Upsert(_ context.Context, l *domain.Limit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limits = append(r.limits, l)
	return nil
}

// fakeFileStore keys session excerpts by "sessionID|name" and assistant
// context by assistant ID.
type fakeFileStore struct {
	excerpts map[string]string
	contexts map[string]string
}

func newFakeFileStore() *fakeFileStore {
	return &fakeFileStore{
		excerpts: map[string]string{},
		contexts: map[string]string{},
	}
}

func (f *fakeFileStore) Save(sessionID, name string, content []byte) error {
	f.excerpts[sessionID+"|"+name] = string(content)
	return nil
}

func (f *fakeFileStore) Excerpt(sessionID, name string) (string, error) {
	return f.excerpts[sessionID+"|"+name], nil
}

func (f *fakeFileStore) Remove(sessionID string) error {
	for key := range f.excerpts {
		if strings.HasPrefix(key, sessionID+"|") {
			delete(f.excerpts, key)
		}
	}
	return nil
}

func (f *fakeFileStore) ContextFiles(assistantID string) (string, error) {
	return f.contexts[assistantID], nil
}

// fakeCollection is a deterministic ModelCollection: one token per rune,
// canned answers, scripted probe results.
type fakeCollection struct {
	probeErr   error
	answer     string
	lastCall   *ports.CollectionCall
	streamText []string
}

func (f *fakeCollection) ModelType() domain.ModelType { return domain.ModelTypeLLM }

func (f *fakeCollection) ValidateCredentials(_ context.Context, _ string, _ map[string]interface{}) error {
	return f.probeErr
}

func (f *fakeCollection) CountTokens(_ string, messages []domain.PromptMessage) int {
	n := 0
	for _, m := range messages {
		n += len([]rune(m.Content))
	}
	return n
}

func (f *fakeCollection) Invoke(_ context.Context, call *ports.CollectionCall) (*domain.Result, error) {
	f.lastCall = call
	return &domain.Result{
		Model:    call.Model,
		Messages: call.Messages,
		Message:  domain.PromptMessage{Role: domain.RoleAssistant, Content: f.answer},
		Usage:    domain.Usage{InputTokens: 5, OutputTokens: 7, TotalTokens: 12, Latency: 0.1},
	}, nil
}

func (f *fakeCollection) InvokeStream(_ context.Context, call *ports.CollectionCall) (<-chan ports.ChunkResult, error) {
	f.lastCall = call
	ch := make(chan ports.ChunkResult)
	go func() {
		defer close(ch)
		for _, text := range f.streamText {
			ch <- ports.ChunkResult{Chunk: &domain.ResultChunk{
				Model: call.Model,
				Delta: domain.PromptMessage{Role: domain.RoleAssistant, Content: text},
			}}
		}
		usage := domain.Usage{InputTokens: 5, OutputTokens: 7, TotalTokens: 12, Latency: 0.1}
		ch <- ports.ChunkResult{Chunk: &domain.ResultChunk{
			Model:        call.Model,
			Delta:        domain.PromptMessage{Role: domain.RoleAssistant},
			FinishReason: "stop",
			Usage:        &usage,
		}}
	}()
	return ch, nil
}

// fakeRegistry serves one provider with one model.
type fakeRegistry struct {
	provider   *domain.ProviderSchema
	model      *domain.ModelSchema
	collection ports.ModelCollection
}

func newFakeRegistry(collection ports.ModelCollection, contextSize int) *fakeRegistry {
	return &fakeRegistry{
		provider: &domain.ProviderSchema{
			ID:                  "acme",
			Label:               map[string]string{"en": "Acme"},
			SupportedModelTypes: []domain.ModelType{domain.ModelTypeLLM},
			ValidateModel:       "acme-chat",
			CredentialForm: []domain.ConfigEntity{
				{Name: "api_key", Type: domain.EntityTypeSecret, Required: true},
				{Name: "base_url", Type: domain.EntityTypeString},
			},
		},
		model: &domain.ModelSchema{
			ID:        "acme-chat",
			ModelType: domain.ModelTypeLLM,
			Properties: map[string]interface{}{
				domain.PropContextSize:     contextSize,
				domain.PropInputUnitPrice:  0.001,
				domain.PropOutputUnitPrice: 0.002,
				domain.PropPriceUnit:       1000,
			},
			ParameterConfigs: []domain.ConfigEntity{
				{Name: "max_tokens", Type: domain.EntityTypeInt, Min: floatp(1), Max: floatp(4096)},
				{Name: "temperature", Type: domain.EntityTypeFloat, Min: floatp(0), Max: floatp(2)},
			},
		},
		collection: collection,
	}
}

func floatp(f float64) *float64 { return &f }

func (r *fakeRegistry) List() []*domain.ProviderSchema { return []*domain.ProviderSchema{r.provider} }

func (r *fakeRegistry) Get(name string) (*domain.ProviderSchema, error) {
	if name != r.provider.ID {
		return nil, domain.E(domain.CodeInvalidProvider, "unknown provider %s", name)
	}
	return r.provider, nil
}

func (r *fakeRegistry) Collection(provider string, mt domain.ModelType) (ports.ModelCollection, error) {
	if provider != r.provider.ID || mt != domain.ModelTypeLLM {
		return nil, domain.E(domain.CodeUnsupportedModelType, "no collection for %s/%s", provider, mt)
	}
	return r.collection, nil
}

func (r *fakeRegistry) ModelSchema(provider, model string, mt domain.ModelType) (*domain.ModelSchema, error) {
	if provider != r.provider.ID {
		return nil, domain.E(domain.CodeInvalidProvider, "unknown provider %s", provider)
	}
	if model != r.model.ID || mt != domain.ModelTypeLLM {
		return nil, domain.E(domain.CodeInvalidModel, "unknown model %s", model)
	}
	return r.model, nil
}

func seedMessage(repo *memRepo, sessionID, query, answer string, at time.Time) {
	_ = (*memSessions)(repo).AppendMessage(context.Background(), &domain.SessionMessage{
		ID:        query,
		SessionID: sessionID,
		Query:     query,
		Answer:    answer,
		CreatedAt: at,
	})
}
